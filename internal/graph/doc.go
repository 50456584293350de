// Package graph is a small client for Microsoft Graph and the SharePoint
// REST API.
//
// Every request is authorized through an Authorizer, normally the OAuth
// token supplier. A 401 response invalidates the cached token once and
// replays the request. Non-2xx responses surface as *HTTPError carrying the
// decoded body, or the raw text when the body is not JSON. An optional
// circuit breaker guards the upstream against repeated 5xx and transport
// failures.
package graph
