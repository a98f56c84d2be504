// Package extstatus reports whether the extensions installed in a host
// application are up to date and safe to upgrade, and runs install,
// uninstall, enable and disable actions on them.
//
// Basic usage:
//
//	m := extstatus.New()
//	defer m.Close()
//
//	entries, err := m.Status(ctx, "/usr/local/share/jupyter/lab", false)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, e := range entries {
//		fmt.Println(e.Name, e.InstalledVersion, e.LatestVersion, e.Status)
//	}
//
// The latest version reported for an extension is the newest published
// version whose dependencies are compatible with the host's core packages,
// not merely the newest release.
package extstatus

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/git-pkgs/extstatus/client"
	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/extension"
	"github.com/git-pkgs/extstatus/internal/host"
	"github.com/git-pkgs/extstatus/internal/metrics"
	"github.com/git-pkgs/extstatus/internal/npm"
	"github.com/git-pkgs/extstatus/internal/outdated"
	"github.com/git-pkgs/extstatus/internal/status"
)

// Re-export types from internal/core
type (
	// StatusEntry is one row of the status report.
	StatusEntry = core.StatusEntry

	// Status is the per-extension health: ok, warning or error.
	Status = core.Status

	// OutdatedEntry records the wanted and latest version of one extension.
	OutdatedEntry = core.OutdatedEntry

	// Action is an extension state change.
	Action = core.Action

	// Host gives read access to an application directory.
	Host = core.Host

	// Invoker performs extension actions.
	Invoker = core.Invoker

	// Registry fetches extension metadata and published manifests.
	Registry = core.Registry

	// ValidationError is a dependency compatibility violation.
	ValidationError = core.ValidationError

	// UnknownActionError is returned for commands outside the Action set.
	UnknownActionError = core.UnknownActionError

	// Result is the outcome of Perform.
	Result = status.Result
)

// Re-export constants
const (
	StatusOK      = core.StatusOK
	StatusWarning = core.StatusWarning
	StatusError   = core.StatusError

	Install   = core.Install
	Uninstall = core.Uninstall
	Enable    = core.Enable
	Disable   = core.Disable
)

// Re-export errors
var (
	ErrRegistryUnavailable = core.ErrRegistryUnavailable
	ErrDiscoveryTimeout    = core.ErrDiscoveryTimeout
	ErrNoInstalledList     = core.ErrNoInstalledList
	ErrMissingName         = status.ErrMissingName
	ErrNotFound            = client.ErrNotFound
)

// ParseAction converts a command name into an Action.
func ParseAction(s string) (Action, error) {
	return core.ParseAction(s)
}

// PURL returns the npm package URL of an extension version.
func PURL(name, version string) string {
	return core.PURL(name, version)
}

type settings struct {
	registryURL   string
	client        *client.Client
	registry      core.Registry
	host          core.Host
	invoker       core.Invoker
	concurrency   int
	timeout       time.Duration
	outdatedArgv  []string
	useCommand    bool
	extensionArgv []string
	fast          bool
}

// Option configures a Manager.
type Option func(*settings)

// WithRegistryURL selects an npm-compatible registry.
func WithRegistryURL(url string) Option {
	return func(s *settings) { s.registryURL = url }
}

// WithClient sets the HTTP client used for registry metadata.
func WithClient(c *client.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithRegistry replaces the registry client entirely.
func WithRegistry(r Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithHost replaces the file-system host.
func WithHost(h Host) Option {
	return func(s *settings) { s.host = h }
}

// WithInvoker replaces the command invoker.
func WithInvoker(inv Invoker) Option {
	return func(s *settings) { s.invoker = inv }
}

// WithConcurrency bounds how many extensions are resolved at once.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.concurrency = n }
}

// WithDiscoveryTimeout sets the wall-clock budget for outdated discovery.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithCommandDiscovery discovers outdated extensions by running argv in the
// staging directory instead of querying the registry.
func WithCommandDiscovery(argv []string) Option {
	return func(s *settings) {
		s.useCommand = true
		s.outdatedArgv = argv
	}
}

// WithExtensionCommand sets the command the default invoker runs.
func WithExtensionCommand(argv []string) Option {
	return func(s *settings) { s.extensionArgv = argv }
}

// WithFastBuildCheck skips version comparison in build diagnostics.
func WithFastBuildCheck(fast bool) Option {
	return func(s *settings) { s.fast = fast }
}

// Manager answers status queries and performs actions for any number of
// application directories.
type Manager struct {
	svc   *status.Service
	owned *npm.Registry
}

// New creates a Manager. Without options it queries the public npm
// registry and reads application directories from the file system.
func New(opts ...Option) *Manager {
	s := &settings{
		concurrency: core.DefaultConcurrency,
		timeout:     outdated.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	fsHost := host.New()
	if s.host == nil {
		s.host = fsHost
	}
	if s.invoker == nil {
		s.invoker = host.NewCommandInvoker(s.extensionArgv, fsHost)
	}

	var (
		disc  outdated.Discoverer
		owned *npm.Registry
	)
	if s.useCommand {
		disc = outdated.NewCommandDiscoverer(s.outdatedArgv)
	} else {
		if s.registry == nil {
			owned = npm.New(s.registryURL, s.client, nil)
			s.registry = owned
		}
		disc = outdated.NewRegistryDiscoverer(s.host, s.registry,
			outdated.WithConcurrency(s.concurrency),
			outdated.WithValidator(extension.Validator{}))
	}

	svc := status.NewService(s.host, disc, s.invoker,
		status.WithCacheOptions(outdated.WithTimeout(s.timeout)),
		status.WithFastBuildCheck(s.fast))
	return &Manager{svc: svc, owned: owned}
}

// Status returns the status of every extension in appDir. refresh discards
// the memoized outdated information first.
func (m *Manager) Status(ctx context.Context, appDir string, refresh bool) ([]StatusEntry, error) {
	return m.svc.Status(ctx, appDir, refresh)
}

// Outdated returns the compatible updates known for appDir.
func (m *Manager) Outdated(ctx context.Context, appDir string, refresh bool) (map[string]OutdatedEntry, error) {
	return m.svc.Outdated(ctx, appDir, refresh)
}

// InvalidateOutdated drops memoized outdated information for appDir, or for
// every directory when appDir is empty.
func (m *Manager) InvalidateOutdated(appDir string) {
	m.svc.InvalidateOutdated(appDir)
}

// Perform runs a named action ("install", "uninstall", "enable" or
// "disable") on an extension.
func (m *Manager) Perform(ctx context.Context, appDir, action, name string) (Result, error) {
	a, err := core.ParseAction(action)
	if err != nil {
		return Result{}, err
	}
	return m.svc.Perform(ctx, appDir, a, name)
}

// Close stops running discoveries and the download machinery of a registry
// client the Manager created. A registry supplied with WithRegistry is not
// closed.
func (m *Manager) Close() {
	m.svc.Close()
	if m.owned != nil {
		m.owned.Close()
	}
}

// DefaultClient returns a client with sensible defaults:
// - 30s timeout
// - 5 retries with exponential backoff
// - Retry on 429 and 5xx responses
func DefaultClient() *client.Client {
	return client.DefaultClient()
}

// Metrics returns the gatherer for discovery, download and action metrics,
// for exposing through a Prometheus handler.
func Metrics() prometheus.Gatherer {
	return metrics.Registry
}
