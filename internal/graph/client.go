package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// API labels.
const (
	APIGraph      = "graph"
	APISharePoint = "sharepoint"
)

const (
	maxResponseBytes = 10 << 20

	contentTypeJSON         = "application/json"
	contentTypeODataVerbose = "application/json;odata=verbose"
)

// Authorizer authorizes outgoing requests. *oauth.Supplier implements it.
type Authorizer interface {
	// Transport wraps base so every request carries a bearer token.
	Transport(base http.RoundTripper) http.RoundTripper

	// Invalidate drops the cached token so the next request fetches a new one.
	Invalidate(ctx context.Context)
}

// Request describes one upstream call. Path is appended to the API base
// and must already be escaped.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header
}

// Client calls Microsoft Graph and SharePoint REST.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Authorizer
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// WithBaseTransport sets the transport under the authorizing layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = c.auth.Transport(rt)
	}
}

// New creates a Client from cfg.
func New(cfg config.GraphConfig, auth Authorizer, opts ...Option) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultGraphBaseURL
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultGraphTimeout
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: auth.Transport(http.DefaultTransport),
		},
		auth:    auth,
		logger:  observability.NopLogger(),
		metrics: GetSharedMetrics(),
		tracer:  observability.Tracer("graph"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if cfg.BreakerThreshold > 0 {
		c.breaker = c.newBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout.Duration())
	}

	return c
}

func (c *Client) newBreaker(threshold int, timeout time.Duration) *gobreaker.CircuitBreaker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	minRequests := uint32(threshold) //nolint:gosec // validated non-negative

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph",
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			var he *HTTPError
			if errors.As(err, &he) {
				return he.StatusCode < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			c.metrics.breakerTransition.WithLabelValues(from.String(), to.String()).Inc()
		},
	})
}

// BaseURL returns the Graph base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Graph performs req against Microsoft Graph and decodes a JSON response
// into out when out is non-nil.
func (c *Client) Graph(ctx context.Context, req Request, out any) error {
	return c.do(ctx, APIGraph, c.baseURL, req, out, contentTypeJSON, "")
}

// SharePoint performs req against the SharePoint REST API at host using
// the verbose OData format.
func (c *Client) SharePoint(ctx context.Context, host string, req Request, out any) error {
	if host == "" {
		return ErrNoHost
	}
	return c.do(ctx, APISharePoint, strings.TrimRight(host, "/"), req, out,
		contentTypeODataVerbose, contentTypeODataVerbose)
}

func (c *Client) do(ctx context.Context, api, base string, req Request, out any, contentType, accept string) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	target := base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	ctx, span := c.tracer.Start(ctx, api+".request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("graph.api", api),
			attribute.String("graph.path", req.Path),
		),
	)
	defer span.End()

	raw, err := c.execute(ctx, api, target, req, payload, contentType, accept)
	if err != nil && IsStatus(err, http.StatusUnauthorized) {
		c.logger.Warn("upstream rejected access token; refreshing once",
			observability.String("api", api),
			observability.String("path", req.Path),
		)
		c.auth.Invalidate(ctx)
		c.metrics.tokenRetries.Inc()
		raw, err = c.execute(ctx, api, target, req, payload, contentType, accept)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("failed to parse response as JSON",
			observability.String("api", api),
			observability.String("path", req.Path),
			observability.Error(err),
		)
		return fmt.Errorf("%w: %s %s", ErrNotJSON, req.Method, req.Path)
	}
	return nil
}

// execute sends one attempt through the breaker when configured.
func (c *Client) execute(
	ctx context.Context,
	api, target string,
	req Request,
	payload []byte,
	contentType, accept string,
) ([]byte, error) {
	attempt := func() ([]byte, error) {
		return c.roundTrip(ctx, api, target, req, payload, contentType, accept)
	}
	if c.breaker == nil {
		return attempt()
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return attempt()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	raw, _ := result.([]byte)
	return raw, err
}

func (c *Client) roundTrip(
	ctx context.Context,
	api, target string,
	req Request,
	payload []byte,
	contentType, accept string,
) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observe(api, req.Method, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.observe(api, req.Method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{
			Method:     req.Method,
			URL:        req.Path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       decodeLenient(raw),
		}
		c.logger.Error("request failed",
			observability.String("api", api),
			observability.String("method", req.Method),
			observability.String("path", req.Path),
			observability.Int("status", resp.StatusCode),
			observability.String("upstream_message", herr.Message()),
		)
		return nil, herr
	}

	return raw, nil
}

// decodeLenient returns the JSON value of raw, the raw text when it is not
// JSON, or nil when empty.
func decodeLenient(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(raw)
	}
	return v
}

// EscapeOData quotes s for use inside a single-quoted OData literal.
func EscapeOData(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// FilterEq returns query values for $filter=field eq 'value'.
func FilterEq(field, value string) url.Values {
	return url.Values{"$filter": {fmt.Sprintf("%s eq '%s'", field, EscapeOData(value))}}
}
