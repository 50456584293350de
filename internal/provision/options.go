package provision

import (
	"regexp"
	"strings"

	"github.com/vyrodovalexey/sitegate/internal/config"
	"github.com/vyrodovalexey/sitegate/internal/tenant"
)

// SiteOptions identify the site an action operates on.
type SiteOptions struct {
	DisplayName string
	SiteType    string
	Host        string
	SitePath    string
}

// Override carries per-request site settings. Empty fields defer to the
// tenant.
type Override struct {
	DisplayName string
	SiteType    string
}

// ResolveSiteOptions merges a request override with the tenant's settings.
// The tenant's settings already fall back to the global defaults and, for
// the display name, to the tenant name.
func ResolveSiteOptions(t *tenant.Tenant, override Override) SiteOptions {
	opts := SiteOptions{
		DisplayName: firstNonEmpty(override.DisplayName, t.Site.DisplayName, t.Name),
		SiteType:    firstNonEmpty(override.SiteType, t.Site.SiteType, config.SiteTypeTeam),
		Host:        t.Site.Host,
		SitePath:    t.Site.SitePath,
	}
	return opts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9-]+`)
	dashes     = regexp.MustCompile(`-{2,}`)
)

// MailNickname derives a group mail nickname from a display name.
func MailNickname(displayName string) string {
	return whitespace.ReplaceAllString(strings.ToLower(displayName), "-")
}

// SitePath derives a URL-safe site path from a display name.
func SitePath(displayName string) string {
	slug := nonSlug.ReplaceAllString(MailNickname(strings.TrimSpace(displayName)), "")
	return strings.Trim(dashes.ReplaceAllString(slug, "-"), "-")
}
