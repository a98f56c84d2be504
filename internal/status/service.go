package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/git-pkgs/extstatus/internal/buildcheck"
	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/logging"
	"github.com/git-pkgs/extstatus/internal/metrics"
	"github.com/git-pkgs/extstatus/internal/outdated"
)

// ErrMissingName is returned by Perform for an empty extension name.
var ErrMissingName = errors.New("extension name is required")

// Result is the outcome of Perform.
type Result struct {
	Status  core.Status `json:"status" yaml:"status"`
	Message string      `json:"message,omitempty" yaml:"message,omitempty"`
}

// Service answers status queries for application directories. It owns one
// outdated cache per directory.
type Service struct {
	host      core.Host
	disc      outdated.Discoverer
	invoker   core.Invoker
	cacheOpts []outdated.Option
	fast      bool
	log       *slog.Logger

	mu     sync.Mutex
	caches map[string]*outdated.Cache
}

// Option configures a Service.
type Option func(*Service)

// WithCacheOptions passes options to every outdated cache the service creates.
func WithCacheOptions(opts ...outdated.Option) Option {
	return func(s *Service) {
		s.cacheOpts = append(s.cacheOpts, opts...)
	}
}

// WithFastBuildCheck skips version comparison in build diagnostics.
func WithFastBuildCheck(fast bool) Option {
	return func(s *Service) {
		s.fast = fast
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

// NewService creates a Service. invoker may be nil when Perform is unused.
func NewService(host core.Host, disc outdated.Discoverer, invoker core.Invoker, opts ...Option) *Service {
	s := &Service{
		host:    host,
		disc:    disc,
		invoker: invoker,
		log:     logging.L("status"),
		caches:  map[string]*outdated.Cache{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) cache(appDir string) *outdated.Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[appDir]
	if !ok {
		c = outdated.NewCache(appDir, s.disc, s.cacheOpts...)
		s.caches[appDir] = c
	}
	return c
}

// Outdated waits for the outdated map of appDir, starting a new generation
// first when refresh is set.
func (s *Service) Outdated(ctx context.Context, appDir string, refresh bool) (map[string]core.OutdatedEntry, error) {
	return s.generation(appDir, refresh).Wait(ctx)
}

func (s *Service) generation(appDir string, refresh bool) *outdated.Future {
	if refresh {
		return s.cache(appDir).Refresh()
	}
	return s.cache(appDir).Get()
}

// Status returns one entry per installed extension plus entries for
// extensions pending uninstall. Only a missing installed list or an ended
// context fail the call; other unavailable data degrades the entries.
func (s *Service) Status(ctx context.Context, appDir string, refresh bool) ([]core.StatusEntry, error) {
	log := s.log.With(logging.KeyAppDir, appDir)

	refs, err := s.host.ListInstalled(ctx, appDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNoInstalledList, err)
	}

	// Start discovery before reading the rest so the two overlap.
	future := s.generation(appDir, refresh)

	in := Input{
		Installed: refs,
		Manifests: make(map[string]*core.Manifest, len(refs)),
		Staged: func(name string) *core.Manifest {
			m, err := s.host.ReadStagedManifest(ctx, appDir, name)
			if err != nil {
				log.Debug("reading staged manifest", logging.KeyPackage, name, logging.KeyError, err)
			}
			return m
		},
	}
	for _, ref := range refs {
		m, err := s.host.ReadManifest(ctx, ref)
		if err != nil {
			log.Debug("reading manifest", logging.KeyPackage, ref.Name, logging.KeyError, err)
			continue
		}
		in.Manifests[ref.Name] = m
	}
	if in.Disabled, err = s.host.Disabled(ctx, appDir); err != nil {
		log.Warn("reading disabled extensions", logging.KeyError, err)
	}
	if in.Core, err = s.host.CoreExtensions(ctx, appDir); err != nil {
		log.Warn("reading core extensions", logging.KeyError, err)
	}
	if in.CompatErrors, err = s.host.CompatErrors(ctx, appDir); err != nil {
		log.Warn("checking compatibility", logging.KeyError, err)
	}
	diags, err := s.host.BuildDiagnostics(ctx, appDir, s.fast)
	if err != nil {
		log.Warn("checking build", logging.KeyError, err)
	}
	in.Build = buildcheck.Classify(diags)

	if in.Outdated, err = future.Wait(ctx); err != nil {
		return nil, err
	}
	return Aggregate(in), nil
}

// InvalidateOutdated drops the memoized outdated map of appDir, or of every
// directory when appDir is empty.
func (s *Service) InvalidateOutdated(appDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appDir != "" {
		if c, ok := s.caches[appDir]; ok {
			c.Invalidate()
		}
		return
	}
	for _, c := range s.caches {
		c.Invalidate()
	}
}

// Perform runs action on the named extension through the host invoker.
// Install and uninstall invalidate the directory's outdated map.
func (s *Service) Perform(ctx context.Context, appDir string, action core.Action, name string) (Result, error) {
	if !action.Valid() {
		return Result{}, &core.UnknownActionError{Action: action.String()}
	}
	if name == "" {
		return Result{}, ErrMissingName
	}
	if s.invoker == nil {
		return Result{}, errors.New("no invoker configured")
	}

	s.log.Info("performing action", "action", action.String(), logging.KeyPackage, name, logging.KeyAppDir, appDir)
	changed, err := s.invoker.Invoke(ctx, appDir, action, name)
	if action == core.Install || action == core.Uninstall {
		s.InvalidateOutdated(appDir)
	}
	if err != nil {
		metrics.Actions.WithLabelValues(action.String(), metrics.ResultFailure).Inc()
		return Result{}, fmt.Errorf("%s %s: %w", action, name, err)
	}
	if action == core.Uninstall && !changed {
		metrics.Actions.WithLabelValues(action.String(), metrics.ResultFailure).Inc()
		return Result{Status: core.StatusError, Message: fmt.Sprintf("%s is not installed", name)}, nil
	}
	metrics.Actions.WithLabelValues(action.String(), metrics.ResultSuccess).Inc()
	return Result{Status: core.StatusOK}, nil
}

// AppDirs returns the directories the service holds caches for.
func (s *Service) AppDirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirs := make([]string, 0, len(s.caches))
	for d := range s.caches {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Close stops every running discovery.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.caches {
		c.Close()
	}
}
