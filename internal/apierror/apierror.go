// Package apierror writes the JSON error envelope shared by every HTTP
// response that reports a failure.
package apierror

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// Error names used in the envelope's "error" field.
const (
	Unauthorized        = "UnauthorizedError"
	Forbidden           = "ForbiddenError"
	TooManyRequests     = "TooManyRequestsError"
	BadRequest          = "ValidationError"
	NotFound            = "NotFoundError"
	MethodNotAllowed    = "MethodNotAllowedError"
	PayloadTooLarge     = "PayloadTooLargeError"
	BadGateway          = "UpstreamError"
	ServiceUnavailable  = "ServiceUnavailableError"
	GatewayTimeout      = "GatewayTimeoutError"
	InternalServerError = "InternalServerError"
)

// Envelope is the body of every error response.
type Envelope struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	Timestamp string         `json:"timestamp"`
	Path      string         `json:"path"`
	Details   map[string]any `json:"details,omitempty"`
}

// New builds an envelope for the request in c.
func New(c *gin.Context, name, message string, details map[string]any) Envelope {
	return Envelope{
		Error:     name,
		Message:   message,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Path:      c.Request.URL.Path,
		Details:   details,
	}
}

// Abort writes the envelope with status and stops the handler chain.
func Abort(c *gin.Context, status int, name, message string, details map[string]any) {
	c.AbortWithStatusJSON(status, New(c, name, message, details))
}

// NameForStatus returns the envelope error name for an HTTP status.
func NameForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return BadRequest
	case http.StatusUnauthorized:
		return Unauthorized
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	case http.StatusMethodNotAllowed:
		return MethodNotAllowed
	case http.StatusRequestEntityTooLarge:
		return PayloadTooLarge
	case http.StatusTooManyRequests:
		return TooManyRequests
	case http.StatusBadGateway:
		return BadGateway
	case http.StatusServiceUnavailable:
		return ServiceUnavailable
	case http.StatusGatewayTimeout:
		return GatewayTimeout
	default:
		return InternalServerError
	}
}

func requestID(c *gin.Context) string {
	if id := observability.RequestIDFromContext(c.Request.Context()); id != "" {
		return id
	}
	return "n/a"
}
