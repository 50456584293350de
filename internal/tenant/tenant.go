package tenant

import "maps"

// SiteSettings are the normalized collaboration-site settings of a tenant.
type SiteSettings struct {
	DisplayName string
	SiteType    string
	Host        string
	SitePath    string
}

// Tenant is one normalized tenant record.
type Tenant struct {
	ID       string
	Name     string
	Active   bool
	Site     SiteSettings
	Metadata map[string]string
}

// clone returns a copy that shares nothing mutable with t.
func (t *Tenant) clone() *Tenant {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

// Lookup resolves tenants by id.
type Lookup interface {
	Get(id string) (*Tenant, bool)
}
