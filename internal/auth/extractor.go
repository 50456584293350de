package auth

import (
	"net/http"
	"net/textproto"
)

// ExtractCredential returns the credential presented with r. A Bearer
// Authorization header wins over the API key header; when the API key
// header is repeated only its first value is used.
func ExtractCredential(r *http.Request, apiKeyHeader string) string {
	if authz := r.Header.Get(HeaderAuthorization); authz != "" {
		if m := bearerPattern.FindStringSubmatch(authz); m != nil {
			return m[1]
		}
	}

	if apiKeyHeader == "" {
		apiKeyHeader = HeaderXAPIKey
	}
	values := r.Header[textproto.CanonicalMIMEHeaderKey(apiKeyHeader)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
