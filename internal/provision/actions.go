package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/observability"
	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

// ProvisionRequest asks for a tenant's site with its libraries and groups.
type ProvisionRequest struct {
	SiteType    string `json:"siteType,omitempty" binding:"omitempty,oneof=team communication"`
	DisplayName string `json:"displayName,omitempty" binding:"omitempty,min=1"`
}

// ProvisionResult describes the provisioned site.
type ProvisionResult struct {
	TenantID string `json:"tenantId"`
	SiteContext
}

// ListRequest asks for a folder listing.
type ListRequest struct {
	LibraryName string `form:"libraryName" binding:"required"`
	Path        string `form:"path"`
	DisplayName string `form:"displayName"`
}

// ListResult is a folder listing.
type ListResult struct {
	TenantID string      `json:"tenantId"`
	Items    []DriveItem `json:"items"`
	SiteID   string      `json:"siteId"`
	SiteURL  string      `json:"siteUrl,omitempty"`
}

// ShareRequest asks for an anonymous link in the Deliverables library.
type ShareRequest struct {
	Path        string     `json:"path" binding:"required"`
	Type        string     `json:"type,omitempty" binding:"omitempty,oneof=view edit"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
}

// ShareResult carries the created link.
type ShareResult struct {
	TenantID string `json:"tenantId"`
	Link     string `json:"link"`
	SiteID   string `json:"siteId"`
	SiteURL  string `json:"siteUrl,omitempty"`
}

// Provision ensures the tenant's site, its libraries and its permission groups.
func (s *Service) Provision(ctx context.Context, t *tenant.Tenant, req ProvisionRequest) (*ProvisionResult, error) {
	site, err := s.EnsureSite(ctx, ResolveSiteOptions(t, Override{
		DisplayName: req.DisplayName,
		SiteType:    req.SiteType,
	}))
	if err != nil {
		return nil, err
	}
	if err := s.EnsureLibraries(ctx, site.SiteID); err != nil {
		return nil, err
	}
	if err := s.EnsurePermissions(ctx, site.SiteID); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("site provisioned",
		observability.String("site_id", site.SiteID),
		observability.String("site_type", site.SiteType),
	)
	return &ProvisionResult{TenantID: t.ID, SiteContext: *site}, nil
}

// List returns the contents of a folder in one of the tenant's libraries.
func (s *Service) List(ctx context.Context, t *tenant.Tenant, req ListRequest) (*ListResult, error) {
	if req.LibraryName == "" {
		return nil, fmt.Errorf("%w: libraryName is required", ErrInvalidRequest)
	}
	path := req.Path
	if path == "" {
		path = "/"
	}

	site, err := s.EnsureSite(ctx, ResolveSiteOptions(t, Override{DisplayName: req.DisplayName}))
	if err != nil {
		return nil, err
	}
	driveID, err := s.ResolveDriveID(ctx, site.SiteID, req.LibraryName)
	if err != nil {
		return nil, err
	}
	items, err := s.ListFolder(ctx, site.SiteID, driveID, path)
	if err != nil {
		return nil, err
	}

	return &ListResult{TenantID: t.ID, Items: items, SiteID: site.SiteID, SiteURL: site.SiteURL}, nil
}

// Share creates an anonymous, optionally expiring link to a Deliverables item.
func (s *Service) Share(ctx context.Context, t *tenant.Tenant, req ShareRequest) (*ShareResult, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	linkType := req.Type
	if linkType == "" {
		linkType = ShareView
	}
	if linkType != ShareView && linkType != ShareEdit {
		return nil, fmt.Errorf("%w: type must be view or edit", ErrInvalidRequest)
	}

	site, err := s.EnsureSite(ctx, ResolveSiteOptions(t, Override{DisplayName: req.DisplayName}))
	if err != nil {
		return nil, err
	}
	driveID, err := s.ResolveDriveID(ctx, site.SiteID, LibraryDeliverables)
	if err != nil {
		return nil, err
	}
	itemID, err := s.ResolveItemID(ctx, site.SiteID, driveID, req.Path)
	if err != nil {
		return nil, err
	}
	link, err := s.CreateShareLink(ctx, ShareLinkOptions{
		DriveID:   driveID,
		ItemID:    itemID,
		Type:      linkType,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("share link created",
		observability.String("site_id", site.SiteID),
		observability.String("type", linkType),
	)
	return &ShareResult{TenantID: t.ID, Link: link, SiteID: site.SiteID, SiteURL: site.SiteURL}, nil
}
