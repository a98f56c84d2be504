package core

import "context"

// Registry is the interface implemented by package registry clients.
type Registry interface {
	// FetchMetadata retrieves every published version of a package together
	// with its declared dependencies.
	FetchMetadata(ctx context.Context, name string) ([]VersionInfo, error)

	// FetchPackageContents downloads and unpacks one exact version and
	// returns its published manifest.
	FetchPackageContents(ctx context.Context, name, version string) (*Manifest, error)
}

// Host gives read access to an application directory's extension state.
type Host interface {
	// ListInstalled returns the installed extensions in their natural order.
	ListInstalled(ctx context.Context, appDir string) ([]PackageRef, error)

	// CoreConstraints returns the host's current core dependency ranges.
	CoreConstraints(ctx context.Context, appDir string) (ConstraintSet, error)

	// CompatErrors returns dependency violations keyed by installed package name.
	CompatErrors(ctx context.Context, appDir string) (map[string][]ValidationError, error)

	// BuildDiagnostics returns the raw build check messages.
	BuildDiagnostics(ctx context.Context, appDir string, fast bool) ([]string, error)

	// ReadManifest reads an installed package's manifest.
	ReadManifest(ctx context.Context, ref PackageRef) (*Manifest, error)

	// ReadStagedManifest reads a package from the build staging area.
	// It returns nil, nil when the package is not staged.
	ReadStagedManifest(ctx context.Context, appDir, name string) (*Manifest, error)

	// Disabled returns the set of disabled extension names.
	Disabled(ctx context.Context, appDir string) (map[string]bool, error)

	// CoreExtensions returns the names of extensions shipped with the host.
	CoreExtensions(ctx context.Context, appDir string) (map[string]bool, error)
}

// Invoker performs the actual install/uninstall/enable/disable mutation.
type Invoker interface {
	Invoke(ctx context.Context, appDir string, action Action, name string) (changed bool, err error)
}
