package provision

import (
	"context"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// RequiredLibraries are the document libraries every site carries.
var RequiredLibraries = []string{
	"Projects",
	"Assets",
	"Data",
	"Deliverables",
	"Templates",
	LibraryLegalFinance,
}

// Well-known library names.
const (
	LibraryLegalFinance = "Legal & Finance"
	LibraryDeliverables = "Deliverables"
)

// API is the subset of *graph.Client the service needs.
type API interface {
	Graph(ctx context.Context, req graph.Request, out any) error
	SharePoint(ctx context.Context, host string, req graph.Request, out any) error
}

// Service runs provisioning actions.
type Service struct {
	api          API
	logger       observability.Logger
	attempts     int
	interval     time.Duration
	editorsGroup string
	viewersGroup string
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPolling sets how often and how many times a new site is polled.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if interval >= 0 {
			s.interval = interval
		}
	}
}

// WithGroups sets the editor and viewer security group names.
func WithGroups(editors, viewers string) Option {
	return func(s *Service) {
		if editors != "" {
			s.editorsGroup = editors
		}
		if viewers != "" {
			s.viewersGroup = viewers
		}
	}
}

// WithSettings applies the provisioning settings of cfg.
func WithSettings(cfg config.SharePointDefaults) Option {
	return func(s *Service) {
		WithPolling(cfg.ProvisionAttempts, cfg.ProvisionInterval.Duration())(s)
		WithGroups(cfg.EditorsGroup, cfg.ViewersGroup)(s)
	}
}

// NewService creates a Service over api.
func NewService(api API, opts ...Option) *Service {
	s := &Service{
		api:          api,
		logger:       observability.NopLogger(),
		attempts:     config.DefaultProvisionAttempts,
		interval:     config.DefaultProvisionInterval,
		editorsGroup: config.DefaultEditorsGroup,
		viewersGroup: config.DefaultViewersGroup,
		sleep:        sleepContext,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
