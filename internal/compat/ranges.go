package compat

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var versionLiteral = regexp.MustCompile(`v?(\d+)(?:\.(\d+|[xX*]))?(?:\.(\d+|[xX*]))?(-[0-9A-Za-z.-]+)?`)

// Overlap reports whether some version satisfies both ranges. known is false
// when either range cannot be parsed as a semver range (git URLs, file:
// specs, dist-tags), in which case compatibility cannot be verified.
//
// Overlap is decided by probing: every version literal mentioned in either
// range, and its next patch, minor and major, is tested against both ranges.
// For the range forms npm uses, a non-empty intersection contains one of
// those boundary versions.
func Overlap(a, b string) (overlap bool, known bool) {
	ca, err := parseRange(a)
	if err != nil {
		return false, false
	}
	cb, err := parseRange(b)
	if err != nil {
		return false, false
	}

	for _, v := range probes(a, b) {
		if ca.Check(v) && cb.Check(v) {
			return true, true
		}
	}
	return false, true
}

// Satisfies reports whether version is inside rng. Unparsable input never
// satisfies.
func Satisfies(version, rng string) bool {
	c, err := parseRange(rng)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

func parseRange(s string) (*semver.Constraints, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "latest" {
		s = "*"
	}
	return semver.NewConstraint(s)
}

func probes(ranges ...string) []*semver.Version {
	seen := map[string]bool{}
	var out []*semver.Version
	add := func(v semver.Version) {
		if key := v.String(); !seen[key] {
			seen[key] = true
			vv := v
			out = append(out, &vv)
		}
	}

	add(*semver.MustParse("0.0.0"))
	for _, r := range ranges {
		for _, m := range versionLiteral.FindAllStringSubmatch(r, -1) {
			lit := m[1] + "." + wildcardZero(m[2]) + "." + wildcardZero(m[3]) + m[4]
			v, err := semver.NewVersion(lit)
			if err != nil {
				continue
			}
			add(*v)
			add(v.IncPatch())
			add(v.IncMinor())
			add(v.IncMajor())
		}
	}
	return out
}

func wildcardZero(s string) string {
	switch s {
	case "", "x", "X", "*":
		return "0"
	}
	return s
}
