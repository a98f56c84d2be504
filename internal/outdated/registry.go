package outdated

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/git-pkgs/extstatus/internal/compat"
	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/logging"
)

// InstalledSource lists installed extensions and the host's core ranges.
type InstalledSource interface {
	ListInstalled(ctx context.Context, appDir string) ([]core.PackageRef, error)
	CoreConstraints(ctx context.Context, appDir string) (core.ConstraintSet, error)
}

// RegistryDiscoverer resolves the newest compatible version of every
// installed extension against a package registry.
type RegistryDiscoverer struct {
	source      InstalledSource
	registry    core.Registry
	resolver    *compat.Resolver
	concurrency int
	log         *slog.Logger
}

// RegistryOption configures a RegistryDiscoverer.
type RegistryOption func(*RegistryDiscoverer)

// WithConcurrency bounds how many packages are resolved at once.
func WithConcurrency(n int) RegistryOption {
	return func(d *RegistryDiscoverer) {
		d.concurrency = n
	}
}

// WithValidator rejects candidates whose published manifest is not a valid
// extension.
func WithValidator(v compat.ManifestValidator) RegistryOption {
	return func(d *RegistryDiscoverer) {
		d.resolver = compat.NewResolver(d.registry, v)
	}
}

// WithRegistryLogger sets the logger for per-package failures. By default
// the logger carried by the discovery context is used.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(d *RegistryDiscoverer) {
		d.log = l
	}
}

// NewRegistryDiscoverer creates a discoverer backed by registry.
func NewRegistryDiscoverer(source InstalledSource, registry core.Registry, opts ...RegistryOption) *RegistryDiscoverer {
	d := &RegistryDiscoverer{
		source:      source,
		registry:    registry,
		resolver:    compat.NewResolver(registry, nil),
		concurrency: core.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover resolves every installed extension. A package whose lookup fails
// or that has no compatible version is left out of the result.
func (d *RegistryDiscoverer) Discover(ctx context.Context, appDir string) (map[string]core.OutdatedEntry, error) {
	refs, err := d.source.ListInstalled(ctx, appDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNoInstalledList, err)
	}
	cs, err := d.source.CoreConstraints(ctx, appDir)
	if err != nil {
		return nil, fmt.Errorf("reading core constraints: %w", err)
	}

	var (
		mu     sync.Mutex
		result = make(map[string]core.OutdatedEntry, len(refs))
	)
	err = core.ForEachLimit(ctx, refs, d.concurrency, func(ctx context.Context, ref core.PackageRef) {
		entry, ok := d.resolve(ctx, ref, cs)
		if !ok {
			return
		}
		mu.Lock()
		result[ref.Name] = entry
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *RegistryDiscoverer) logger(ctx context.Context) *slog.Logger {
	if d.log != nil {
		return d.log
	}
	return logging.FromContext(ctx)
}

func (d *RegistryDiscoverer) resolve(ctx context.Context, ref core.PackageRef, cs core.ConstraintSet) (core.OutdatedEntry, bool) {
	versions, err := d.registry.FetchMetadata(ctx, ref.Name)
	if err != nil {
		d.logger(ctx).Debug("metadata lookup failed", logging.KeyPackage, ref.Name, logging.KeyError, err)
		return core.OutdatedEntry{}, false
	}

	wanted, err := d.resolver.ResolveContext(ctx, ref.Name, versions, cs)
	if err != nil {
		d.logger(ctx).Debug("resolution failed", logging.KeyPackage, ref.Name, logging.KeyError, err)
		return core.OutdatedEntry{}, false
	}
	if wanted == "" || olderThan(wanted, ref.InstalledVersion) {
		return core.OutdatedEntry{}, false
	}

	latest, ok := compat.Latest(current(versions))
	if !ok || olderThan(latest, wanted) {
		latest = wanted
	}
	return core.OutdatedEntry{Wanted: wanted, Latest: latest}, true
}

// current drops deprecated versions.
func current(versions []core.VersionInfo) []core.VersionInfo {
	out := make([]core.VersionInfo, 0, len(versions))
	for _, v := range versions {
		if v.Deprecated == "" {
			out = append(out, v)
		}
	}
	return out
}

// olderThan reports whether a < b. An unparsable installed version never
// hides a resolved one.
func olderThan(a, b string) bool {
	va, err := semver.NewVersion(a)
	if err != nil {
		return false
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return false
	}
	return va.LessThan(vb)
}
