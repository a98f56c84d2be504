package core

import "strings"

// Action is a state change the host can perform on an extension.
type Action int

const (
	Install Action = iota + 1
	Uninstall
	Enable
	Disable
)

var actionNames = map[Action]string{
	Install:   "install",
	Uninstall: "uninstall",
	Enable:    "enable",
	Disable:   "disable",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// ParseAction converts a command name into an Action.
func ParseAction(s string) (Action, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, &UnknownActionError{Action: s}
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}
