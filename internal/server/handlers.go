package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/vyrodovalexey/sitegate/internal/apierror"
	"github.com/vyrodovalexey/sitegate/internal/auth"
	"github.com/vyrodovalexey/sitegate/internal/auth/oauth"
	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/observability"
	"github.com/vyrodovalexey/sitegate/internal/provision"
	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

// Provisioner runs the tenant site actions.
type Provisioner interface {
	Provision(ctx context.Context, t *tenant.Tenant, req provision.ProvisionRequest) (*provision.ProvisionResult, error)
	List(ctx context.Context, t *tenant.Tenant, req provision.ListRequest) (*provision.ListResult, error)
	Share(ctx context.Context, t *tenant.Tenant, req provision.ShareRequest) (*provision.ShareResult, error)
}

type handlers struct {
	svc    Provisioner
	logger observability.Logger
	now    func() time.Time
}

func (h *handlers) principal(c *gin.Context) (*tenant.Tenant, bool) {
	p, err := auth.PrincipalFromGin(c)
	if err != nil || p.Tenant == nil {
		h.logger.WithContext(c.Request.Context()).Error("request reached handler without a principal",
			observability.String("path", c.Request.URL.Path),
		)
		apierror.Abort(c, http.StatusInternalServerError, apierror.InternalServerError, auth.MessageMisconfigured, nil)
		return nil, false
	}
	return p.Tenant, true
}

func (h *handlers) provision(c *gin.Context) {
	t, ok := h.principal(c)
	if !ok {
		return
	}

	var req provision.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeBindError(c, err)
		return
	}

	res, err := h.svc.Provision(c.Request.Context(), t, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) list(c *gin.Context) {
	t, ok := h.principal(c)
	if !ok {
		return
	}

	var req provision.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.writeBindError(c, err)
		return
	}

	res, err := h.svc.List(c.Request.Context(), t, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) share(c *gin.Context) {
	t, ok := h.principal(c)
	if !ok {
		return
	}

	var req provision.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(h.now()) {
		apierror.Abort(c, http.StatusBadRequest, apierror.BadRequest, "expiresAt must be in the future",
			map[string]any{"field": "expiresAt"})
		return
	}

	res, err := h.svc.Share(c.Request.Context(), t, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// writeBindError reports a request that failed to decode or validate.
func (h *handlers) writeBindError(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)

	var (
		validationErrs validator.ValidationErrors
		maxBytesErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validationErrs):
		fields := make([]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, fe.Field())
		}
		apierror.Abort(c, http.StatusBadRequest, apierror.BadRequest,
			"Invalid request: "+validationErrs.Error(), map[string]any{"fields": fields})
	case errors.As(err, &maxBytesErr):
		apierror.Abort(c, http.StatusRequestEntityTooLarge, apierror.PayloadTooLarge, "Request body too large", nil)
	default:
		apierror.Abort(c, http.StatusBadRequest, apierror.BadRequest, "Malformed request: "+err.Error(), nil)
	}
}

// writeError maps err to a status and writes the envelope. Upstream and
// internal failures are logged; client errors are not.
func (h *handlers) writeError(c *gin.Context, err error) {
	status, message, details := classify(err)

	if status >= http.StatusInternalServerError {
		h.logger.WithContext(c.Request.Context()).Error("request failed",
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", status),
			observability.Error(err),
		)
	}
	_ = c.Error(err)
	apierror.Abort(c, status, apierror.NameForStatus(status), message, details)
}

func classify(err error) (int, string, map[string]any) {
	var (
		httpErr  *graph.HTTPError
		tokenErr *oauth.UpstreamError
	)

	switch {
	case errors.Is(err, provision.ErrInvalidRequest), errors.Is(err, provision.ErrNoHost):
		return http.StatusBadRequest, err.Error(), nil
	case errors.Is(err, provision.ErrDriveNotFound), errors.Is(err, provision.ErrItemNotFound):
		return http.StatusNotFound, err.Error(), nil
	case errors.Is(err, graph.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "Upstream temporarily unavailable", nil
	case errors.Is(err, provision.ErrSiteTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timed out waiting for upstream", nil
	case errors.As(err, &httpErr):
		details := map[string]any{"upstreamStatus": httpErr.StatusCode}
		if msg := httpErr.Message(); msg != "" {
			details["upstreamMessage"] = msg
		}
		return http.StatusBadGateway, "Upstream request failed", details
	case errors.As(err, &tokenErr):
		return http.StatusBadGateway, "Failed to acquire upstream access token",
			map[string]any{"upstreamStatus": tokenErr.StatusCode}
	case errors.Is(err, oauth.ErrTokenRequestFailed), errors.Is(err, oauth.ErrInvalidResponse),
		errors.Is(err, provision.ErrSiteCreationFailed), errors.Is(err, provision.ErrEmptyResponse),
		errors.Is(err, graph.ErrNotJSON):
		return http.StatusBadGateway, err.Error(), nil
	default:
		return http.StatusInternalServerError, "An unexpected error occurred", nil
	}
}
