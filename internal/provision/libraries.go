package provision

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/sitegate/internal/graph"
	"github.com/vyrodovalexey/sitegate/internal/observability"
)

type listCollection struct {
	Value []struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"value"`
}

// EnsureLibraries creates every required library missing from the site.
func (s *Service) EnsureLibraries(ctx context.Context, siteID string) error {
	for _, name := range RequiredLibraries {
		if _, err := s.EnsureDocumentLibrary(ctx, siteID, name); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDocumentLibrary creates the library name on the site unless it
// exists. It reports whether a library was created.
func (s *Service) EnsureDocumentLibrary(ctx context.Context, siteID, name string) (bool, error) {
	listsPath := "/sites/" + siteID + "/lists"

	var existing listCollection
	err := s.api.Graph(ctx, graph.Request{Path: listsPath, Query: graph.FilterEq("displayName", name)}, &existing)
	if err != nil {
		return false, fmt.Errorf("failed to look up library %q: %w", name, err)
	}
	if len(existing.Value) > 0 {
		s.logger.Debug("library already exists",
			observability.String("site_id", siteID),
			observability.String("library", name),
		)
		return false, nil
	}

	err = s.api.Graph(ctx, graph.Request{
		Method: http.MethodPost,
		Path:   listsPath,
		Body: map[string]any{
			"displayName": name,
			"list":        map[string]string{"template": "documentLibrary"},
		},
	}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create library %q: %w", name, err)
	}

	s.logger.Info("created document library",
		observability.String("site_id", siteID),
		observability.String("library", name),
	)
	return true, nil
}
