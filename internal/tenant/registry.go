package tenant

import (
	"maps"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// Registry is the immutable table of tenants.
type Registry struct {
	byID  map[string]*Tenant
	order []*Tenant
}

// NewRegistry normalizes cfgs against defaults. A tenant whose id repeats
// an earlier one is logged and skipped; an empty result is a warning only.
func NewRegistry(
	cfgs []config.TenantConfig,
	defaults config.SharePointDefaults,
	logger observability.Logger,
) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := &Registry{
		byID:  make(map[string]*Tenant, len(cfgs)),
		order: make([]*Tenant, 0, len(cfgs)),
	}

	for i := range cfgs {
		cfg := &cfgs[i]
		if cfg.ID == "" {
			logger.Error("tenant skipped: missing id", observability.Int("index", i))
			continue
		}
		if _, dup := r.byID[cfg.ID]; dup {
			logger.Error("tenant skipped: duplicate id", observability.String("tenant_id", cfg.ID))
			continue
		}

		t := normalize(cfg, defaults)
		r.byID[t.ID] = t
		r.order = append(r.order, t)
	}

	if len(r.order) == 0 {
		logger.Warn("no tenants configured; every request will be rejected")
	} else {
		logger.Info("tenant registry loaded", observability.Int("tenants", len(r.order)))
	}

	return r
}

func normalize(cfg *config.TenantConfig, defaults config.SharePointDefaults) *Tenant {
	return &Tenant{
		ID:     cfg.ID,
		Name:   cfg.Name,
		Active: config.IsActive(cfg.Active),
		Site: SiteSettings{
			DisplayName: firstNonEmpty(cfg.SharePoint.SiteDisplayName, defaults.SiteDisplayName, cfg.Name),
			SiteType:    firstNonEmpty(cfg.SharePoint.SiteType, defaults.SiteType),
			Host:        firstNonEmpty(cfg.SharePoint.Host, defaults.Host),
			SitePath:    cfg.SharePoint.SitePath,
		},
		Metadata: maps.Clone(cfg.Metadata),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Get returns a copy of the tenant with the given id.
func (r *Registry) Get(id string) (*Tenant, bool) {
	t, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// List returns copies of all tenants in configuration order.
func (r *Registry) List() []*Tenant {
	out := make([]*Tenant, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, t.clone())
	}
	return out
}

// Default returns the first active tenant, if any.
func (r *Registry) Default() (*Tenant, bool) {
	for _, t := range r.order {
		if t.Active {
			return t.clone(), true
		}
	}
	return nil, false
}

// Len returns the number of registered tenants.
func (r *Registry) Len() int {
	return len(r.order)
}
