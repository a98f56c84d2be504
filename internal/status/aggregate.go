// Package status merges outdated information, pending build actions and
// compatibility errors into one status record per extension.
package status

import (
	"strings"

	"github.com/git-pkgs/extstatus/internal/core"
)

// StagedLookup reads the staged manifest of a package pending removal.
// It returns nil when the package is not staged.
type StagedLookup func(name string) *core.Manifest

// Input is everything Aggregate combines.
type Input struct {
	Installed    []core.PackageRef
	Manifests    map[string]*core.Manifest
	Disabled     map[string]bool
	Core         map[string]bool
	CompatErrors map[string][]core.ValidationError
	Build        core.BuildActions
	Outdated     map[string]core.OutdatedEntry
	Staged       StagedLookup
}

// Aggregate returns installed packages in their given order followed by
// packages that are only pending uninstall.
func Aggregate(in Input) []core.StatusEntry {
	entries := make([]core.StatusEntry, 0, len(in.Installed)+len(in.Build.Uninstall))
	installed := make(map[string]bool, len(in.Installed))

	for _, ref := range in.Installed {
		installed[ref.Name] = true

		var description string
		if m := in.Manifests[ref.Name]; m != nil {
			description = m.Description
		}
		latest := ref.InstalledVersion
		if e, ok := in.Outdated[ref.Name]; ok && e.Wanted != "" {
			latest = e.Wanted
		}
		status, message := classify(ref.Name, in.CompatErrors[ref.Name], in.Build)
		yes := true

		entries = append(entries, core.StatusEntry{
			Name:             ref.Name,
			Description:      description,
			Enabled:          !in.Disabled[ref.Name],
			Core:             in.Core[ref.Name],
			LatestVersion:    latest,
			InstalledVersion: ref.InstalledVersion,
			Status:           status,
			Installed:        &yes,
			Message:          message,
			PURL:             core.PURL(ref.Name, ref.InstalledVersion),
		})
	}

	seen := map[string]bool{}
	for _, name := range in.Build.Uninstall {
		if installed[name] || seen[name] {
			continue
		}
		seen[name] = true

		var m *core.Manifest
		if in.Staged != nil {
			m = in.Staged(name)
		}
		var description, version string
		if m != nil {
			description, version = m.Description, m.Version
		}
		no := false
		entries = append(entries, core.StatusEntry{
			Name:             name,
			Description:      description,
			Enabled:          false,
			Core:             in.Core[name],
			LatestVersion:    version,
			InstalledVersion: version,
			Status:           core.StatusWarning,
			Installed:        &no,
			Message:          "pending uninstall",
			PURL:             core.PURL(name, version),
		})
	}
	return entries
}

// classify applies the precedence error over warning over ok.
func classify(name string, compatErrs []core.ValidationError, build core.BuildActions) (core.Status, string) {
	if len(compatErrs) > 0 {
		msgs := make([]string, len(compatErrs))
		for i, e := range compatErrs {
			msgs[i] = e.Error()
		}
		return core.StatusError, strings.Join(msgs, "; ")
	}

	var pending []string
	for _, b := range []struct {
		label string
		names []string
	}{
		{"pending install", build.Install},
		{"pending uninstall", build.Uninstall},
		{"pending update", build.Update},
	} {
		for _, n := range b.names {
			if n == name {
				pending = append(pending, b.label)
				break
			}
		}
	}
	if len(pending) > 0 {
		return core.StatusWarning, strings.Join(pending, ", ")
	}
	return core.StatusOK, ""
}
