package client

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRegistryURL is the public npm registry.
const DefaultRegistryURL = "https://registry.npmjs.org"

// URLs constructs URLs for an npm-compatible registry.
type URLs struct {
	BaseURL string
}

// NewURLs returns a URL builder for baseURL, or the public registry if empty.
func NewURLs(baseURL string) *URLs {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	return &URLs{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// Metadata returns the packument URL for name. The scope separator of a
// scoped name is escaped as the registry expects.
func (u *URLs) Metadata(name string) string {
	return fmt.Sprintf("%s/%s", u.BaseURL, escapeName(name))
}

// Tarball returns the conventional tarball URL for name at version.
func (u *URLs) Tarball(name, version string) string {
	if version == "" {
		return ""
	}
	shortName := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		shortName = name[i+1:]
	}
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", u.BaseURL, name, shortName, version)
}

// Page returns the human-facing package page.
func (u *URLs) Page(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	}
	return fmt.Sprintf("https://www.npmjs.com/package/%s", name)
}

func escapeName(name string) string {
	if strings.HasPrefix(name, "@") {
		return "@" + url.PathEscape(name[1:])
	}
	return url.PathEscape(name)
}
