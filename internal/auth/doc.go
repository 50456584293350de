// Package auth implements the authentication gate in front of the sitegate
// HTTP API.
//
// The gate extracts a credential from the request (a Bearer token in the
// Authorization header, else the API key header), resolves it against the
// API key registry and either attaches the authenticated tenant and key to
// the request or rejects it with a JSON error envelope:
//
//	gate := auth.NewGate(keys,
//	    auth.WithRealm("sitegate-api"),
//	    auth.WithLogger(logger),
//	)
//	router.Use(gate.Middleware())
//
// Handlers read the principal with PrincipalFromGin or PrincipalFromContext.
package auth
