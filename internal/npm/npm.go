// Package npm provides a registry client for npm-compatible registries.
package npm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/git-pkgs/extstatus/client"
	"github.com/git-pkgs/extstatus/fetch"
	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/metrics"
)

// Registry fetches extension metadata and tarballs from an npm registry.
type Registry struct {
	client   *client.Client
	urls     *client.URLs
	fetcher  fetch.TarballFetcher
	resolver *fetch.Resolver
	contents *expirable.LRU[string, *core.Manifest]

	// download is the fetcher New created itself, closed by Close.
	download *fetch.Fetcher
}

// Published tarballs are immutable, so unpacked manifests are kept for a
// while and shared across discovery runs.
const (
	contentsCacheSize = 512
	contentsCacheTTL  = time.Hour
)

// New creates a registry client. An empty baseURL selects the public npm
// registry; nil client or fetcher select defaults.
func New(baseURL string, c *client.Client, f fetch.TarballFetcher) *Registry {
	if c == nil {
		c = client.DefaultClient()
	}
	var download *fetch.Fetcher
	if f == nil {
		download = fetch.NewFetcher()
		f = fetch.NewCircuitBreakerFetcher(download)
	}
	urls := client.NewURLs(baseURL)
	return &Registry{
		client:   c,
		urls:     urls,
		fetcher:  f,
		resolver: fetch.NewResolver(urls),
		contents: expirable.NewLRU[string, *core.Manifest](contentsCacheSize, nil, contentsCacheTTL),
		download: download,
	}
}

// Close stops the background work of a fetcher New created. A fetcher passed
// in by the caller is left alone.
func (r *Registry) Close() {
	if r.download != nil {
		r.download.Close()
	}
}

// URLs returns the registry's URL builder.
func (r *Registry) URLs() *client.URLs {
	return r.urls
}

type packageResponse struct {
	ID          string                 `json:"_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Versions    map[string]versionInfo `json:"versions"`
	DistTags    map[string]string      `json:"dist-tags"`
}

type versionInfo struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Deprecated   any               `json:"deprecated"`
	Dist         distInfo          `json:"dist"`
}

type distInfo struct {
	Shasum    string `json:"shasum"`
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
}

func (r *Registry) fetchPackument(ctx context.Context, name string) (*packageResponse, error) {
	var resp packageResponse
	if err := r.client.GetJSON(ctx, r.urls.Metadata(name), &resp); err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsNotFound() {
			return nil, &client.NotFoundError{Name: name}
		}
		return nil, &core.RegistryError{Name: name, Err: err}
	}
	return &resp, nil
}

// FetchMetadata returns every published version of name with its declared
// runtime dependencies. Order is unspecified.
func (r *Registry) FetchMetadata(ctx context.Context, name string) ([]core.VersionInfo, error) {
	resp, err := r.fetchPackument(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]core.VersionInfo, 0, len(resp.Versions))
	for num, v := range resp.Versions {
		versions = append(versions, core.VersionInfo{
			Number:       num,
			Dependencies: v.Dependencies,
			Deprecated:   deprecationMessage(v.Deprecated),
			Tarball:      v.Dist.Tarball,
		})
	}
	return versions, nil
}

// FetchPackageContents downloads name@version and returns the manifest it
// was published with. Only the one tarball is downloaded, and a recently
// unpacked version is served from memory.
func (r *Registry) FetchPackageContents(ctx context.Context, name, version string) (*core.Manifest, error) {
	key := name + "@" + version
	if m, ok := r.contents.Get(key); ok {
		metrics.TarballFetches.WithLabelValues(metrics.ResultCached).Inc()
		return m, nil
	}

	info, err := r.resolver.Resolve(name, version, "")
	if err != nil {
		return nil, err
	}

	artifact, err := r.fetcher.Fetch(ctx, info.URL)
	if errors.Is(err, fetch.ErrNotFound) {
		// Some registries rewrite tarball paths; ask the packument.
		artifact, err = r.fetchAdvertised(ctx, name, version)
	}
	if err != nil {
		metrics.TarballFetches.WithLabelValues(metrics.ResultFailure).Inc()
		if errors.Is(err, fetch.ErrNotFound) || errors.Is(err, client.ErrNotFound) {
			return nil, &client.NotFoundError{Name: name, Version: version}
		}
		return nil, &core.RegistryError{Name: name, Err: err}
	}
	defer func() { _ = artifact.Body.Close() }()

	m, err := ReadTarball(artifact.Body)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", key, err)
	}
	metrics.TarballFetches.WithLabelValues(metrics.ResultSuccess).Inc()
	r.contents.Add(key, m)
	return m, nil
}

func (r *Registry) fetchAdvertised(ctx context.Context, name, version string) (*fetch.Artifact, error) {
	resp, err := r.fetchPackument(ctx, name)
	if err != nil {
		return nil, err
	}
	v, ok := resp.Versions[version]
	if !ok || v.Dist.Tarball == "" {
		return nil, fetch.ErrNotFound
	}
	info, err := r.resolver.Resolve(name, version, v.Dist.Tarball)
	if err != nil {
		return nil, err
	}
	return r.fetcher.Fetch(ctx, info.URL)
}

// deprecated is a string message, though some old packuments carry a bool.
func deprecationMessage(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case bool:
		if d {
			return "deprecated"
		}
	}
	return ""
}
