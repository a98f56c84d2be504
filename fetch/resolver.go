package fetch

import (
	"errors"
	"strings"

	"github.com/git-pkgs/extstatus/client"
)

// ErrNoDownloadURL is returned when no tarball location can be derived.
var ErrNoDownloadURL = errors.New("no download URL available")

// ArtifactInfo describes where a version's tarball lives.
type ArtifactInfo struct {
	URL      string
	Filename string
}

// Resolver determines tarball URLs for package versions.
type Resolver struct {
	urls *client.URLs
}

// NewResolver creates a resolver for the registry behind urls.
func NewResolver(urls *client.URLs) *Resolver {
	if urls == nil {
		urls = client.NewURLs("")
	}
	return &Resolver{urls: urls}
}

// Resolve returns the tarball for name@version. hint is the dist.tarball URL
// advertised by the registry metadata and wins when present.
func (r *Resolver) Resolve(name, version, hint string) (*ArtifactInfo, error) {
	url := hint
	if url == "" {
		url = r.urls.Tarball(name, version)
	}
	if url == "" {
		return nil, ErrNoDownloadURL
	}
	return &ArtifactInfo{URL: url, Filename: filenameFromURL(url)}, nil
}

func filenameFromURL(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
