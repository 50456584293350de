package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	// ErrNotJSON is returned when a successful response body cannot be
	// decoded into the caller's value.
	ErrNotJSON = errors.New("response body is not valid JSON")

	// ErrNoHost is returned for SharePoint calls without a host.
	ErrNoHost = errors.New("SharePoint host must be configured to call SharePoint REST APIs")

	// ErrCircuitOpen is returned while the circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("graph circuit breaker is open")
)

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string

	// Body is the decoded JSON body, the raw text when it is not JSON, or
	// nil when empty.
	Body any
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("request failed: %s: %s", status, msg)
	}
	return "request failed: " + status
}

// Message extracts the upstream error message from a Graph
// ({"error":{"message"}}) or SharePoint verbose ({"error":{"message":{"value"}}})
// body.
func (e *HTTPError) Message() string {
	body, ok := e.Body.(map[string]any)
	if !ok {
		if s, ok := e.Body.(string); ok && len(s) <= 256 {
			return s
		}
		return ""
	}
	inner, ok := body["error"].(map[string]any)
	if !ok {
		if odata, ok := body["odata.error"].(map[string]any); ok {
			inner = odata
		} else {
			return ""
		}
	}
	switch msg := inner["message"].(type) {
	case string:
		return msg
	case map[string]any:
		if v, ok := msg["value"].(string); ok {
			return v
		}
	}
	return ""
}

// IsStatus reports whether err is an *HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == status
}
