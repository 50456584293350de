package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

// EnsurePermissions ensures the editor and viewer security groups exist and
// grants them write and read on the Legal & Finance library. A site without
// that library is left unchanged.
func (s *Service) EnsurePermissions(ctx context.Context, siteID string) error {
	editors, err := s.ensureSecurityGroup(ctx, s.editorsGroup)
	if err != nil {
		return err
	}
	viewers, err := s.ensureSecurityGroup(ctx, s.viewersGroup)
	if err != nil {
		return err
	}

	driveID, err := s.ResolveDriveID(ctx, siteID, LibraryLegalFinance)
	if errors.Is(err, ErrDriveNotFound) {
		s.logger.Warn("Legal & Finance drive not found to set permissions",
			observability.String("site_id", siteID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	drivePath := "/drives/" + driveID
	err = s.api.Graph(ctx, graph.Request{
		Method: http.MethodPost,
		Path:   drivePath + "/root/listItem/breakRoleInheritance",
		Body:   map[string]bool{"retainInheritedPermissions": false},
	}, nil)
	if err != nil {
		s.logger.Warn("failed to break inheritance (may already be broken or unsupported)",
			observability.Error(err),
		)
	}

	if err := s.grant(ctx, drivePath, editors.ID, "write"); err != nil {
		return err
	}
	return s.grant(ctx, drivePath, viewers.ID, "read")
}

func (s *Service) ensureSecurityGroup(ctx context.Context, displayName string) (*Group, error) {
	existing, err := s.findGroup(ctx, displayName)
	if err != nil || existing != nil {
		return existing, err
	}

	var created Group
	err = s.api.Graph(ctx, graph.Request{
		Method: http.MethodPost,
		Path:   "/groups",
		Body: map[string]any{
			"displayName":     displayName,
			"mailEnabled":     false,
			"securityEnabled": true,
			"mailNickname":    MailNickname(displayName),
		},
	}, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to create security group %q: %w", displayName, err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create security group: %w", ErrEmptyResponse)
	}

	s.logger.Info("created security group",
		observability.String("display_name", displayName),
		observability.String("group_id", created.ID),
	)
	return &created, nil
}

func (s *Service) grant(ctx context.Context, drivePath, groupID, role string) error {
	err := s.api.Graph(ctx, graph.Request{
		Method: http.MethodPost,
		Path:   drivePath + "/items/root/invite",
		Body: map[string]any{
			"requireSignIn":  true,
			"sendInvitation": false,
			"roles":          []string{role},
			"recipients":     []map[string]string{{"objectId": groupID}},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to grant %s to group %s: %w", role, groupID, err)
	}
	return nil
}
