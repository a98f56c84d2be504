package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRegistryUnavailable is returned when the registry cannot be reached
	// or answers with a server error.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrDiscoveryTimeout is returned when outdated discovery exceeds its budget.
	ErrDiscoveryTimeout = errors.New("outdated discovery timed out")

	// ErrNoInstalledList is returned when the host cannot list installed extensions.
	ErrNoInstalledList = errors.New("installed extension list unavailable")
)

// RegistryError wraps a failed registry request for one package.
type RegistryError struct {
	Name string
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Name, e.Err)
}

func (e *RegistryError) Unwrap() []error {
	return []error{ErrRegistryUnavailable, e.Err}
}

// InvalidManifestError is returned when a published package does not
// qualify as a host extension.
type InvalidManifestError struct {
	Name     string
	Version  string
	Problems []string
}

func (e *InvalidManifestError) Error() string {
	return fmt.Sprintf("%s@%s is not a valid extension: %s", e.Name, e.Version, strings.Join(e.Problems, "; "))
}

// ValidationError is a single dependency compatibility violation.
type ValidationError struct {
	Dependency    string
	CoreRange     string
	DeclaredRange string
	Missing       bool
}

func (e ValidationError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%s is a core package but the host provides no version of it", e.Dependency)
	}
	return fmt.Sprintf("%s: host provides %q, extension requires %q", e.Dependency, e.CoreRange, e.DeclaredRange)
}

// UnknownActionError is returned for commands outside the Action set.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}
