package provision

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/sitegate/internal/graph"
)

// Share link kinds.
const (
	ShareView = "view"
	ShareEdit = "edit"
)

// DriveItem is one entry of a folder listing.
type DriveItem struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	WebURL               string     `json:"webUrl,omitempty"`
	Size                 int64      `json:"size,omitempty"`
	LastModifiedDateTime *time.Time `json:"lastModifiedDateTime,omitempty"`
	Folder               *Folder    `json:"folder,omitempty"`
	File                 *File      `json:"file,omitempty"`
}

// Folder marks a DriveItem as a folder.
type Folder struct {
	ChildCount int `json:"childCount"`
}

// File marks a DriveItem as a file.
type File struct {
	MimeType string `json:"mimeType,omitempty"`
}

// ResolveDriveID returns the id of the site's library named libraryName.
func (s *Service) ResolveDriveID(ctx context.Context, siteID, libraryName string) (string, error) {
	var drives struct {
		Value []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"value"`
	}
	if err := s.api.Graph(ctx, graph.Request{Path: "/sites/" + siteID + "/drives"}, &drives); err != nil {
		return "", fmt.Errorf("failed to list drives: %w", err)
	}
	for _, d := range drives.Value {
		if d.Name == libraryName {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDriveNotFound, libraryName)
}

// isRootPath reports whether p addresses the drive root.
func isRootPath(p string) bool {
	trimmed := strings.TrimLeft(p, "/")
	return trimmed == "" || trimmed == "."
}

func drivePrefix(siteID, driveID string) string {
	return "/sites/" + siteID + "/drives/" + driveID
}

// ListFolder returns the children of path in the drive.
func (s *Service) ListFolder(ctx context.Context, siteID, driveID, path string) ([]DriveItem, error) {
	target := drivePrefix(siteID, driveID) + "/root/children"
	if !isRootPath(path) {
		target = drivePrefix(siteID, driveID) + "/root:/" + url.PathEscape(strings.TrimLeft(path, "/")) + ":/children"
	}

	var out struct {
		Value []DriveItem `json:"value"`
	}
	if err := s.api.Graph(ctx, graph.Request{Path: target}, &out); err != nil {
		return nil, fmt.Errorf("failed to list folder %q: %w", path, err)
	}
	if out.Value == nil {
		return []DriveItem{}, nil
	}
	return out.Value, nil
}

// ResolveItemID returns the item id at path, or "root" for the drive root.
func (s *Service) ResolveItemID(ctx context.Context, siteID, driveID, path string) (string, error) {
	if isRootPath(path) {
		return "root", nil
	}

	var item struct {
		ID string `json:"id"`
	}
	target := drivePrefix(siteID, driveID) + "/root:/" + url.PathEscape(strings.TrimLeft(path, "/"))
	if err := s.api.Graph(ctx, graph.Request{Path: target}, &item); err != nil {
		if graph.IsStatus(err, http.StatusNotFound) {
			return "", fmt.Errorf("%w: %s", ErrItemNotFound, path)
		}
		return "", fmt.Errorf("failed to resolve item %q: %w", path, err)
	}
	if item.ID == "" {
		return "", fmt.Errorf("%w: %s", ErrItemNotFound, path)
	}
	return item.ID, nil
}

// ShareLinkOptions describe an anonymous sharing link.
type ShareLinkOptions struct {
	DriveID   string
	ItemID    string
	Type      string
	ExpiresAt *time.Time
}

// CreateShareLink creates an anonymous link to the item and returns its URL.
func (s *Service) CreateShareLink(ctx context.Context, opts ShareLinkOptions) (string, error) {
	linkType := opts.Type
	if linkType == "" {
		linkType = ShareView
	}
	if linkType != ShareView && linkType != ShareEdit {
		return "", fmt.Errorf("%w: share type must be view or edit", ErrInvalidRequest)
	}

	body := map[string]any{
		"type":  linkType,
		"scope": "anonymous",
	}
	if opts.ExpiresAt != nil {
		body["expirationDateTime"] = opts.ExpiresAt.UTC().Format(time.RFC3339)
	}

	var out struct {
		Link struct {
			WebURL string `json:"webUrl"`
		} `json:"link"`
	}
	err := s.api.Graph(ctx, graph.Request{
		Method: http.MethodPost,
		Path:   "/drives/" + opts.DriveID + "/items/" + opts.ItemID + "/createLink",
		Body:   body,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("failed to create share link: %w", err)
	}
	return out.Link.WebURL, nil
}
