// Package host reads extension state from a host application directory
// and runs the host's extension commands.
//
// Layout:
//
//	<app>/extensions/<name>/package.json          installed extensions
//	<app>/staging/package.json                    last build: dependencies, resolutions, jupyterlab block
//	<app>/staging/node_modules/<name>/package.json staged manifests
//	<app>/settings/build_config.json              disabledExtensions
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/git-pkgs/extstatus/internal/buildcheck"
	"github.com/git-pkgs/extstatus/internal/compat"
	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/logging"
	"github.com/git-pkgs/extstatus/internal/npm"
)

// AppDir implements core.Host over the file system.
type AppDir struct {
	log *slog.Logger
}

// New creates a file-system host.
func New() *AppDir {
	return &AppDir{log: logging.L("host")}
}

var _ core.Host = (*AppDir)(nil)

// nameSet decodes either a list of names or an object keyed by name. Object
// entries whose value is false are excluded.
type nameSet map[string]bool

func (s *nameSet) UnmarshalJSON(data []byte) error {
	out := nameSet{}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		for _, n := range list {
			out[n] = true
		}
		*s = out
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("expected a list or object of names: %w", err)
	}
	for n, v := range obj {
		if b, ok := v.(bool); ok && !b {
			continue
		}
		out[n] = true
	}
	*s = out
	return nil
}

type stagingPackage struct {
	Dependencies map[string]string `json:"dependencies"`
	Resolutions  map[string]string `json:"resolutions"`
	JupyterLab   struct {
		SingletonPackages []string `json:"singletonPackages"`
		CoreExtensions    nameSet  `json:"coreExtensions"`
	} `json:"jupyterlab"`
}

type buildConfig struct {
	DisabledExtensions nameSet `json:"disabledExtensions"`
}

// readJSON decodes path into v. A missing file leaves v untouched and
// reports found=false.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

func (a *AppDir) staging(appDir string) (*stagingPackage, error) {
	var pkg stagingPackage
	if _, err := readJSON(filepath.Join(appDir, "staging", "package.json"), &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ListInstalled returns installed extensions ordered by directory name.
func (a *AppDir) ListInstalled(ctx context.Context, appDir string) ([]core.PackageRef, error) {
	if _, err := os.Stat(appDir); err != nil {
		return nil, err
	}
	root := filepath.Join(appDir, "extensions")
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "@") {
			scoped, err := os.ReadDir(filepath.Join(root, e.Name()))
			if err != nil {
				return nil, err
			}
			for _, s := range scoped {
				if s.IsDir() {
					dirs = append(dirs, filepath.Join(e.Name(), s.Name()))
				}
			}
			continue
		}
		dirs = append(dirs, e.Name())
	}

	refs := make([]core.PackageRef, 0, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(root, dir, "package.json")
		m, err := readManifest(path)
		if err != nil {
			a.log.Debug("skipping extension directory", "dir", dir, logging.KeyError, err)
			continue
		}
		name := m.Name
		if name == "" {
			name = filepath.ToSlash(dir)
		}
		refs = append(refs, core.PackageRef{Name: name, InstalledVersion: m.Version, ManifestPath: path})
	}
	return refs, nil
}

// CoreConstraints returns the resolutions and singleton packages of the
// last build. A directory that was never built has no constraints.
func (a *AppDir) CoreConstraints(ctx context.Context, appDir string) (core.ConstraintSet, error) {
	pkg, err := a.staging(appDir)
	if err != nil {
		return core.ConstraintSet{}, err
	}
	return core.ConstraintSet{Ranges: pkg.Resolutions, Singletons: pkg.JupyterLab.SingletonPackages}, nil
}

// CoreExtensions returns the extensions shipped with the host.
func (a *AppDir) CoreExtensions(ctx context.Context, appDir string) (map[string]bool, error) {
	pkg, err := a.staging(appDir)
	if err != nil {
		return nil, err
	}
	return pkg.JupyterLab.CoreExtensions, nil
}

// CompatErrors checks every installed extension against the core constraints.
func (a *AppDir) CompatErrors(ctx context.Context, appDir string) (map[string][]core.ValidationError, error) {
	refs, err := a.ListInstalled(ctx, appDir)
	if err != nil {
		return nil, err
	}
	cs, err := a.CoreConstraints(ctx, appDir)
	if err != nil {
		return nil, err
	}

	errs := map[string][]core.ValidationError{}
	for _, ref := range refs {
		m, err := a.ReadManifest(ctx, ref)
		if err != nil {
			continue
		}
		if v := compat.Check(m.Dependencies, cs); len(v) > 0 {
			errs[ref.Name] = v
		}
	}
	return errs, nil
}

// BuildDiagnostics compares installed extensions with the last build.
// Version changes are not reported when fast is set.
func (a *AppDir) BuildDiagnostics(ctx context.Context, appDir string, fast bool) ([]string, error) {
	refs, err := a.ListInstalled(ctx, appDir)
	if err != nil {
		return nil, err
	}
	pkg, err := a.staging(appDir)
	if err != nil {
		return nil, err
	}

	var msgs []string
	installed := make(map[string]bool, len(refs))
	for _, ref := range refs {
		installed[ref.Name] = true
		built, ok := pkg.Dependencies[ref.Name]
		switch {
		case !ok:
			msgs = append(msgs, buildcheck.InstallMessage(ref.Name))
		case !fast && built != ref.InstalledVersion:
			msgs = append(msgs, buildcheck.UpdateMessage(ref.Name, built, ref.InstalledVersion))
		}
	}

	built := make([]string, 0, len(pkg.Dependencies))
	for name := range pkg.Dependencies {
		built = append(built, name)
	}
	sort.Strings(built)
	for _, name := range built {
		if installed[name] || pkg.JupyterLab.CoreExtensions[name] {
			continue
		}
		if _, corePkg := pkg.Resolutions[name]; corePkg {
			continue
		}
		msgs = append(msgs, buildcheck.UninstallMessage(name))
	}
	return msgs, nil
}

// ReadManifest reads an installed extension's package.json.
func (a *AppDir) ReadManifest(ctx context.Context, ref core.PackageRef) (*core.Manifest, error) {
	return readManifest(ref.ManifestPath)
}

// ReadStagedManifest reads a package from the staging area's node_modules.
func (a *AppDir) ReadStagedManifest(ctx context.Context, appDir, name string) (*core.Manifest, error) {
	m, err := readManifest(filepath.Join(appDir, "staging", "node_modules", filepath.FromSlash(name), "package.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return m, err
}

// Disabled returns the disabled extensions from the build config.
func (a *AppDir) Disabled(ctx context.Context, appDir string) (map[string]bool, error) {
	var cfg buildConfig
	if _, err := readJSON(filepath.Join(appDir, "settings", "build_config.json"), &cfg); err != nil {
		return nil, err
	}
	if cfg.DisabledExtensions == nil {
		return map[string]bool{}, nil
	}
	return cfg.DisabledExtensions, nil
}

// Installed reports whether name has an extension directory.
func (a *AppDir) Installed(appDir, name string) bool {
	_, err := os.Stat(filepath.Join(appDir, "extensions", filepath.FromSlash(name), "package.json"))
	return err == nil
}

func readManifest(path string) (*core.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return npm.ParseManifest(data)
}
