// Package core provides the shared types, errors and helpers used by the
// extension status components.
package core

// PackageRef identifies an installed extension package.
type PackageRef struct {
	Name             string
	InstalledVersion string
	ManifestPath     string
}

// Manifest is the subset of a package.json the status components read.
type Manifest struct {
	Name         string
	Version      string
	Description  string
	Main         string
	Keywords     []string
	Dependencies map[string]string
	JupyterLab   map[string]any // the "jupyterlab" block, nil when absent
	Files        []string       // paths extracted from the published tarball, relative to the package root
	Raw          map[string]any // the decoded document, used for schema validation
}

// VersionInfo describes one published version of a package.
type VersionInfo struct {
	Number       string
	Dependencies map[string]string
	Deprecated   string
	Tarball      string
}

// ConstraintSet is the host's current core dependency constraint set.
type ConstraintSet struct {
	// Ranges maps a core package name to the semver range the host ships.
	Ranges map[string]string
	// Singletons, when non-empty, restricts compatibility checks to these
	// packages. A singleton without an entry in Ranges is a missing core package.
	Singletons []string
}

// Core reports whether name is checked against the host constraints and
// returns its range.
func (cs ConstraintSet) Core(name string) (rng string, checked bool) {
	rng, ok := cs.Ranges[name]
	if len(cs.Singletons) == 0 {
		return rng, ok
	}
	for _, s := range cs.Singletons {
		if s == name {
			return rng, true
		}
	}
	return "", false
}

// OutdatedEntry records update information for one package.
// Wanted never exceeds a version compatible with the host constraints.
type OutdatedEntry struct {
	Wanted string `json:"wanted_version" yaml:"wanted_version"`
	Latest string `json:"latest_version" yaml:"latest_version"`
}

// Status is the per-package health reported to callers.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// StatusEntry is one row of the status report.
type StatusEntry struct {
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description" yaml:"description"`
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	Core             bool   `json:"core" yaml:"core"`
	LatestVersion    string `json:"latest_version" yaml:"latest_version"`
	InstalledVersion string `json:"installed_version" yaml:"installed_version"`
	Status           Status `json:"status" yaml:"status"`
	Installed        *bool  `json:"installed,omitempty" yaml:"installed,omitempty"`
	Message          string `json:"message,omitempty" yaml:"message,omitempty"`
	PURL             string `json:"purl,omitempty" yaml:"purl,omitempty"`
}

// BuildActions buckets pending build diagnostics by kind.
type BuildActions struct {
	Install   []string
	Uninstall []string
	Update    []string
}

// Pending reports whether name appears in any bucket.
func (b BuildActions) Pending(name string) bool {
	return contains(b.Install, name) || contains(b.Uninstall, name) || contains(b.Update, name)
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}
