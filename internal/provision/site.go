package provision

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// SiteContext identifies a provisioned site.
type SiteContext struct {
	SiteID   string `json:"siteId"`
	GroupID  string `json:"groupId,omitempty"`
	SiteURL  string `json:"siteUrl,omitempty"`
	SiteType string `json:"siteType"`
}

// Group is a Microsoft 365 or security group.
type Group struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	MailNickname string `json:"mailNickname"`
}

type site struct {
	ID     string `json:"id"`
	WebURL string `json:"webUrl"`
}

type groupList struct {
	Value []Group `json:"value"`
}

// SharePoint site manager status codes.
const (
	siteStatusNotFound     = 0
	siteStatusProvisioning = 1
	siteStatusReady        = 2
	siteStatusError        = 3
)

// Communication site template and locale.
const (
	communicationTemplate = "SITEPAGEPUBLISHING#0"
	defaultLCID           = 1033
	emptyDesignID         = "00000000-0000-0000-0000-000000000000"
)

// EnsureSite returns the site described by opts, creating it when absent.
func (s *Service) EnsureSite(ctx context.Context, opts SiteOptions) (*SiteContext, error) {
	switch opts.SiteType {
	case config.SiteTypeCommunication:
		return s.EnsureCommunicationSite(ctx, opts)
	case config.SiteTypeTeam, "":
		return s.EnsureTeamSite(ctx, opts.DisplayName)
	default:
		return nil, fmt.Errorf("%w: unsupported site type %q", ErrInvalidRequest, opts.SiteType)
	}
}

// EnsureTeamSite finds the unified group named displayName, or creates it
// and waits for its SharePoint site.
func (s *Service) EnsureTeamSite(ctx context.Context, displayName string) (*SiteContext, error) {
	if displayName == "" {
		return nil, fmt.Errorf("%w: site display name is required", ErrInvalidRequest)
	}

	group, err := s.findGroup(ctx, displayName)
	if err != nil {
		return nil, err
	}

	if group != nil {
		root, err := s.groupSite(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("found existing team site",
			observability.String("display_name", displayName),
			observability.String("site_id", root.ID),
		)
		return &SiteContext{SiteID: root.ID, GroupID: group.ID, SiteURL: root.WebURL, SiteType: config.SiteTypeTeam}, nil
	}

	var created Group
	err = s.api.Graph(ctx, graph.Request{
		Method: http.MethodPost,
		Path:   "/groups",
		Body: map[string]any{
			"displayName":     displayName,
			"mailNickname":    MailNickname(displayName),
			"groupTypes":      []string{"Unified"},
			"mailEnabled":     true,
			"securityEnabled": false,
		},
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to create unified group: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create group: %w", ErrEmptyResponse)
	}

	s.logger.Info("created unified group, waiting for SharePoint site provisioning",
		observability.String("group_id", created.ID),
	)

	root, err := s.pollGroupSite(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return &SiteContext{SiteID: root.ID, GroupID: created.ID, SiteURL: root.WebURL, SiteType: config.SiteTypeTeam}, nil
}

func (s *Service) findGroup(ctx context.Context, displayName string) (*Group, error) {
	var groups groupList
	err := s.api.Graph(ctx, graph.Request{
		Path:  "/groups",
		Query: graph.FilterEq("displayName", displayName),
	}, &groups)
	if err != nil {
		return nil, fmt.Errorf("failed to look up group %q: %w", displayName, err)
	}
	if len(groups.Value) == 0 {
		return nil, nil
	}
	return &groups.Value[0], nil
}

func (s *Service) groupSite(ctx context.Context, groupID string) (*site, error) {
	var root site
	if err := s.api.Graph(ctx, graph.Request{Path: "/groups/" + groupID + "/sites/root"}, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

func (s *Service) pollGroupSite(ctx context.Context, groupID string) (*site, error) {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		root, err := s.groupSite(ctx, groupID)
		switch {
		case err == nil && root.ID != "":
			return root, nil
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("waiting for site provisioning",
				observability.Int("attempt", attempt),
				observability.Error(err),
			)
		}

		if attempt < s.attempts {
			if err := s.sleep(ctx, s.interval); err != nil {
				return nil, err
			}
		}
	}
	return nil, ErrSiteTimeout
}

type siteStatus struct {
	D struct {
		Status  int    `json:"Status"`
		SiteURL string `json:"SiteUrl"`
	} `json:"d"`
}

type siteCreate struct {
	D struct {
		Create struct {
			SiteStatus int    `json:"SiteStatus"`
			SiteURL    string `json:"SiteUrl"`
		} `json:"Create"`
	} `json:"d"`
}

// EnsureCommunicationSite finds or creates the communication site at
// opts.Host/sites/<path> through the SharePoint site manager and resolves
// its Graph site id.
func (s *Service) EnsureCommunicationSite(ctx context.Context, opts SiteOptions) (*SiteContext, error) {
	if opts.Host == "" {
		return nil, ErrNoHost
	}
	path := opts.SitePath
	if path == "" {
		path = SitePath(opts.DisplayName)
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: site path is required", ErrInvalidRequest)
	}

	host := strings.TrimRight(opts.Host, "/")
	siteURL := host + "/sites/" + path

	status, err := s.siteStatus(ctx, host, siteURL)
	if err != nil {
		return nil, err
	}

	switch status {
	case siteStatusReady:
		s.logger.Info("found existing communication site", observability.String("site_url", siteURL))
	case siteStatusError:
		return nil, fmt.Errorf("%w: %s", ErrSiteCreationFailed, siteURL)
	case siteStatusNotFound:
		if status, err = s.createCommunicationSite(ctx, host, siteURL, opts.DisplayName); err != nil {
			return nil, err
		}
		if status != siteStatusReady {
			if err := s.pollSiteStatus(ctx, host, siteURL); err != nil {
				return nil, err
			}
		}
	default:
		if err := s.pollSiteStatus(ctx, host, siteURL); err != nil {
			return nil, err
		}
	}

	hostname := host
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		hostname = u.Host
	}

	var resolved site
	err = s.api.Graph(ctx, graph.Request{Path: "/sites/" + hostname + ":/sites/" + url.PathEscape(path)}, &resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve site %s: %w", siteURL, err)
	}
	if resolved.ID == "" {
		return nil, fmt.Errorf("resolve site: %w", ErrEmptyResponse)
	}
	if resolved.WebURL == "" {
		resolved.WebURL = siteURL
	}

	return &SiteContext{SiteID: resolved.ID, SiteURL: resolved.WebURL, SiteType: config.SiteTypeCommunication}, nil
}

func (s *Service) siteStatus(ctx context.Context, host, siteURL string) (int, error) {
	var out siteStatus
	err := s.api.SharePoint(ctx, host, graph.Request{
		Path:  "/_api/SPSiteManager/status",
		Query: url.Values{"url": {"'" + graph.EscapeOData(siteURL) + "'"}},
	}, &out)
	if err != nil {
		return 0, fmt.Errorf("failed to query site status: %w", err)
	}
	return out.D.Status, nil
}

func (s *Service) createCommunicationSite(ctx context.Context, host, siteURL, title string) (int, error) {
	var out siteCreate
	err := s.api.SharePoint(ctx, host, graph.Request{
		Method: http.MethodPost,
		Path:   "/_api/SPSiteManager/create",
		Body: map[string]any{
			"request": map[string]any{
				"__metadata":          map[string]string{"type": "Microsoft.SharePoint.Portal.SPSiteCreationRequest"},
				"Title":               title,
				"Url":                 siteURL,
				"Lcid":                defaultLCID,
				"ShareByEmailEnabled": false,
				"Description":         "",
				"WebTemplate":         communicationTemplate,
				"SiteDesignId":        emptyDesignID,
			},
		},
	}, &out)
	if err != nil {
		return 0, fmt.Errorf("failed to create communication site: %w", err)
	}

	s.logger.Info("requested communication site",
		observability.String("site_url", siteURL),
		observability.Int("status", out.D.Create.SiteStatus),
	)
	if out.D.Create.SiteStatus == siteStatusError {
		return 0, fmt.Errorf("%w: %s", ErrSiteCreationFailed, siteURL)
	}
	return out.D.Create.SiteStatus, nil
}

func (s *Service) pollSiteStatus(ctx context.Context, host, siteURL string) error {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := s.sleep(ctx, s.interval); err != nil {
			return err
		}

		status, err := s.siteStatus(ctx, host, siteURL)
		switch {
		case err != nil:
			s.logger.Warn("waiting for site provisioning",
				observability.Int("attempt", attempt),
				observability.Error(err),
			)
		case status == siteStatusReady:
			return nil
		case status == siteStatusError:
			return fmt.Errorf("%w: %s", ErrSiteCreationFailed, siteURL)
		}
	}
	return ErrSiteTimeout
}
