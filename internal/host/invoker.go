package host

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/logging"
)

// DefaultCommand is the host's extension management command.
var DefaultCommand = []string{"jupyter", "labextension"}

// CommandInvoker performs extension actions by running the host's command
// line tool as "<argv> <action> <name> --app-dir <appDir>".
type CommandInvoker struct {
	argv []string
	fs   *AppDir
	log  *slog.Logger
}

// NewCommandInvoker creates an invoker. An empty argv selects DefaultCommand.
func NewCommandInvoker(argv []string, fs *AppDir) *CommandInvoker {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if fs == nil {
		fs = New()
	}
	return &CommandInvoker{argv: argv, fs: fs, log: logging.L("invoker")}
}

var _ core.Invoker = (*CommandInvoker)(nil)

// Invoke runs the command. changed reports whether an install or uninstall
// altered the installed set; enable and disable always report true.
func (c *CommandInvoker) Invoke(ctx context.Context, appDir string, action core.Action, name string) (bool, error) {
	if !action.Valid() {
		return false, &core.UnknownActionError{Action: action.String()}
	}
	before := c.fs.Installed(appDir, name)

	args := append(append([]string{}, c.argv[1:]...), action.String(), name, "--app-dir", appDir)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("%s %s: %w: %s", c.argv[0], strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	c.log.Debug("command finished", "action", action.String(), logging.KeyPackage, name, "output", strings.TrimSpace(string(out)))

	after := c.fs.Installed(appDir, name)
	switch action {
	case core.Install:
		return after, nil
	case core.Uninstall:
		return before && !after, nil
	}
	return true, nil
}
