// Package compat decides which published version of an extension is the
// newest one still compatible with the host's core dependencies.
package compat

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/logging"
)

// Check validates declared dependencies against the host constraint set and
// returns every violation. Dependencies on packages the host does not treat
// as core are ignored, as are ranges that cannot be verified.
func Check(deps map[string]string, cs core.ConstraintSet) []core.ValidationError {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []core.ValidationError
	for _, name := range names {
		declared := deps[name]
		coreRange, checked := cs.Core(name)
		if !checked {
			continue
		}
		if _, present := cs.Ranges[name]; !present {
			errs = append(errs, core.ValidationError{Dependency: name, DeclaredRange: declared, Missing: true})
			continue
		}
		if ok, known := Overlap(coreRange, declared); known && !ok {
			errs = append(errs, core.ValidationError{Dependency: name, CoreRange: coreRange, DeclaredRange: declared})
		}
	}
	return errs
}

type candidate struct {
	info    core.VersionInfo
	version *semver.Version
}

// SortDescending returns versions ordered newest first. A release ranks
// above its own prereleases. Unparsable version strings are dropped.
func SortDescending(versions []core.VersionInfo) []core.VersionInfo {
	cands := parseCandidates(versions)
	out := make([]core.VersionInfo, len(cands))
	for i, c := range cands {
		out[i] = c.info
	}
	return out
}

func parseCandidates(versions []core.VersionInfo) []candidate {
	cands := make([]candidate, 0, len(versions))
	for _, v := range versions {
		sv, err := semver.NewVersion(v.Number)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{info: v, version: sv})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].version.GreaterThan(cands[j].version)
	})
	return cands
}

// Resolve returns the newest version whose declared dependencies satisfy cs,
// judged on registry metadata alone.
func Resolve(versions []core.VersionInfo, cs core.ConstraintSet) (string, bool) {
	for _, c := range parseCandidates(versions) {
		if len(Check(c.info.Dependencies, cs)) == 0 {
			return c.info.Number, true
		}
	}
	return "", false
}

// Latest returns the newest published version regardless of constraints.
func Latest(versions []core.VersionInfo) (string, bool) {
	cands := parseCandidates(versions)
	if len(cands) == 0 {
		return "", false
	}
	return cands[0].info.Number, true
}

// ContentsFetcher retrieves the manifest a version was published with.
type ContentsFetcher interface {
	FetchPackageContents(ctx context.Context, name, version string) (*core.Manifest, error)
}

// ManifestValidator rejects manifests that do not describe a host extension.
type ManifestValidator interface {
	Validate(m *core.Manifest) error
}

// Resolver confirms metadata candidates against the real published manifest.
type Resolver struct {
	contents  ContentsFetcher
	validator ManifestValidator
	log       *slog.Logger
}

// NewResolver creates a Resolver. validator may be nil.
func NewResolver(contents ContentsFetcher, validator ManifestValidator) *Resolver {
	return &Resolver{
		contents:  contents,
		validator: validator,
		log:       logging.L("compat"),
	}
}

// ResolveContext walks versions newest first. A candidate whose metadata is
// compatible has its published manifest fetched once and re-checked; if that
// manifest is incompatible or not a valid extension the walk continues with
// the next older version. It returns "" when nothing qualifies. Registry
// failures are returned so the caller can drop the package.
func (r *Resolver) ResolveContext(ctx context.Context, name string, versions []core.VersionInfo, cs core.ConstraintSet) (string, error) {
	for _, c := range parseCandidates(versions) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if len(Check(c.info.Dependencies, cs)) != 0 {
			continue
		}

		m, err := r.contents.FetchPackageContents(ctx, name, c.info.Number)
		if err != nil {
			if errors.Is(err, core.ErrRegistryUnavailable) || ctx.Err() != nil {
				return "", err
			}
			r.log.Debug("skipping candidate", "package", name, "version", c.info.Number, "error", err)
			continue
		}
		if violations := Check(m.Dependencies, cs); len(violations) != 0 {
			r.log.Debug("published manifest incompatible", "package", name, "version", c.info.Number, "violations", len(violations))
			continue
		}
		if r.validator != nil {
			if err := r.validator.Validate(m); err != nil {
				r.log.Debug("candidate rejected", "package", name, "version", c.info.Number, "error", err)
				continue
			}
		}
		return c.info.Number, nil
	}
	return "", nil
}
