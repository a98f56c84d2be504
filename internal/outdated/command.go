package outdated

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/logging"
)

// DefaultCommand lists outdated staging dependencies as line-delimited JSON.
var DefaultCommand = []string{"yarn", "outdated", "--json"}

// CommandDiscoverer runs a package manager's outdated report in the
// application's staging directory.
type CommandDiscoverer struct {
	argv []string
}

// NewCommandDiscoverer creates a discoverer running argv. An empty argv
// selects DefaultCommand.
func NewCommandDiscoverer(argv []string) *CommandDiscoverer {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	return &CommandDiscoverer{argv: argv}
}

// Discover runs the command and parses its report. The command exits
// non-zero when anything is outdated, so its output is parsed regardless.
func (d *CommandDiscoverer) Discover(ctx context.Context, appDir string) (map[string]core.OutdatedEntry, error) {
	cmd := exec.CommandContext(ctx, d.argv[0], d.argv[1:]...)
	cmd.Dir = filepath.Join(appDir, "staging")
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", core.ErrDiscoveryTimeout, ctx.Err())
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", d.argv[0], err)
		}
		logging.FromContext(ctx).Debug("outdated command exited non-zero", "code", exitErr.ExitCode(), "stderr", stderr.String())
	}
	return ParseReport(out), nil
}

type reportLine struct {
	Type string `json:"type"`
	Data struct {
		Body [][]string `json:"body"`
	} `json:"data"`
}

// ParseReport extracts entries from the table rows of a line-delimited JSON
// outdated report. Rows are name, current, wanted, latest and any trailing
// columns; lines that are not table records are skipped.
func ParseReport(out []byte) map[string]core.OutdatedEntry {
	result := map[string]core.OutdatedEntry{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec reportLine
		if err := json.Unmarshal(line, &rec); err != nil || rec.Type != "table" {
			continue
		}
		for _, row := range rec.Data.Body {
			if len(row) < 4 {
				continue
			}
			result[row[0]] = core.OutdatedEntry{Wanted: row[2], Latest: row[3]}
		}
	}
	return result
}
