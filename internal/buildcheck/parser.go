// Package buildcheck classifies pending build diagnostics by package.
package buildcheck

import (
	"regexp"

	"github.com/git-pkgs/extstatus/internal/core"
)

var (
	installPattern   = regexp.MustCompile(`^(\S+) needs to be included in build$`)
	uninstallPattern = regexp.MustCompile(`^(\S+) needs to be removed from build$`)
	updatePattern    = regexp.MustCompile(`^(\S+) changed from (\S+) to (\S+)$`)
)

// Classify buckets each message by the action it announces. Unmatched
// messages are ignored and each name is listed once per bucket.
func Classify(messages []string) core.BuildActions {
	var actions core.BuildActions
	for _, msg := range messages {
		if m := installPattern.FindStringSubmatch(msg); m != nil {
			actions.Install = appendOnce(actions.Install, m[1])
		} else if m := uninstallPattern.FindStringSubmatch(msg); m != nil {
			actions.Uninstall = appendOnce(actions.Uninstall, m[1])
		} else if m := updatePattern.FindStringSubmatch(msg); m != nil {
			actions.Update = appendOnce(actions.Update, m[1])
		}
	}
	return actions
}

// InstallMessage is the diagnostic for an extension missing from the build.
func InstallMessage(name string) string {
	return name + " needs to be included in build"
}

// UninstallMessage is the diagnostic for a built extension no longer installed.
func UninstallMessage(name string) string {
	return name + " needs to be removed from build"
}

// UpdateMessage is the diagnostic for a version change since the last build.
func UpdateMessage(name, from, to string) string {
	return name + " changed from " + from + " to " + to
}

func appendOnce(list []string, name string) []string {
	for _, s := range list {
		if s == name {
			return list
		}
	}
	return append(list, name)
}
