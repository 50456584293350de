package health

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/vyrodovalexey/sitegate/internal/cache"
	"github.com/vyrodovalexey/sitegate/internal/graph"
)

// ErrSkipped is returned by a check that does not apply to the current
// configuration.
var ErrSkipped = errors.New("check skipped")

// HealthCheck is one readiness dependency.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthCheck.
type HealthCheckFunc struct {
	name      string
	checkFunc func(ctx context.Context) error
}

// Name returns the name of the health check.
func (f *HealthCheckFunc) Name() string {
	return f.name
}

// Check performs the health check.
func (f *HealthCheckFunc) Check(ctx context.Context) error {
	return f.checkFunc(ctx)
}

// NewHealthCheckFunc creates a new health check function.
func NewHealthCheckFunc(name string, check func(ctx context.Context) error) *HealthCheckFunc {
	return &HealthCheckFunc{
		name:      name,
		checkFunc: check,
	}
}

// TokenSource yields Graph access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GraphAPI is the Graph half of *graph.Client.
type GraphAPI interface {
	Graph(ctx context.Context, req graph.Request, out any) error
}

// SharePointAPI is the SharePoint half of *graph.Client.
type SharePointAPI interface {
	SharePoint(ctx context.Context, host string, req graph.Request, out any) error
}

// GraphCheck acquires a token and reads the root site id.
func GraphCheck(tokens TokenSource, api GraphAPI) HealthCheck {
	return NewHealthCheckFunc(CheckGraph, func(ctx context.Context) error {
		if _, err := tokens.Token(ctx); err != nil {
			return fmt.Errorf("token acquisition failed: %w", err)
		}

		var root struct {
			ID string `json:"id"`
		}
		err := api.Graph(ctx, graph.Request{
			Path:  "/sites/root",
			Query: url.Values{"$select": {"id"}},
		}, &root)
		if err != nil {
			return fmt.Errorf("root site lookup failed: %w", err)
		}
		if root.ID == "" {
			return errors.New("root site lookup returned no id")
		}
		return nil
	})
}

// SharePointCheck reads the web id of host. It is skipped when host is empty.
func SharePointCheck(host string, api SharePointAPI) HealthCheck {
	return NewHealthCheckFunc(CheckSharePoint, func(ctx context.Context) error {
		if host == "" {
			return fmt.Errorf("%w: no SharePoint host configured", ErrSkipped)
		}

		var web struct {
			D struct {
				ID string `json:"Id"`
			} `json:"d"`
		}
		err := api.SharePoint(ctx, host, graph.Request{
			Path:  "/_api/web",
			Query: url.Values{"$select": {"Id"}},
		}, &web)
		if err != nil {
			return fmt.Errorf("web lookup failed: %w", err)
		}
		return nil
	})
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisCheck pings the distributed cache. It is skipped when the cache is
// disabled.
func RedisCheck(p Pinger) HealthCheck {
	return NewHealthCheckFunc(CheckRedis, func(ctx context.Context) error {
		if p == nil {
			return fmt.Errorf("%w: redis not configured", ErrSkipped)
		}
		err := p.Ping(ctx)
		if errors.Is(err, cache.ErrCacheDisabled) {
			return fmt.Errorf("%w: redis not configured", ErrSkipped)
		}
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	})
}
