package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/gobwas/glob"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/git-pkgs/extstatus"
	"github.com/git-pkgs/extstatus/internal/config"
	"github.com/git-pkgs/extstatus/internal/logging"
)

type app struct {
	cfgFile string
	output  string
	match   []string
	cfg     *config.Config
	manager *extstatus.Manager
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "extstatus",
		Short:         "Report and manage host application extensions",
		Long:          `extstatus lists installed extensions with the newest version each can safely upgrade to, and installs, uninstalls, enables or disables them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logging.Init(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
			a.cfg = cfg
			a.manager = extstatus.New(managerOptions(cfg)...)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.manager != nil {
				a.manager.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/extstatus/config.yaml)")
	pf.String("app-dir", "", "host application directory")
	pf.String("registry", "", "npm-compatible registry URL")
	pf.String("discovery", "", "outdated discovery: registry or command")
	pf.Duration("timeout", 0, "outdated discovery budget")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")
	pf.StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")
	pf.StringSliceVar(&a.match, "match", nil, "only show extensions whose name matches one of these glob patterns")

	root.AddCommand(a.statusCmd(), a.outdatedCmd())
	for _, name := range []string{"install", "uninstall", "enable", "disable"} {
		root.AddCommand(a.actionCmd(name))
	}
	return root
}

func managerOptions(cfg *config.Config) []extstatus.Option {
	opts := []extstatus.Option{
		extstatus.WithRegistryURL(cfg.RegistryURL),
		extstatus.WithConcurrency(cfg.Concurrency),
		extstatus.WithDiscoveryTimeout(cfg.DiscoveryTimeout),
		extstatus.WithExtensionCommand(cfg.ExtensionCommand),
		extstatus.WithFastBuildCheck(cfg.FastBuildCheck),
	}
	if cfg.Discovery == config.DiscoveryCommand {
		opts = append(opts, extstatus.WithCommandDiscovery(cfg.OutdatedCommand))
	}
	return opts
}

func (a *app) appDir() (string, error) {
	if a.cfg.AppDir == "" {
		return "", errors.New("no application directory: set --app-dir or app_dir")
	}
	return a.cfg.AppDir, nil
}

func (a *app) statusCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every installed extension and its update status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.appDir()
			if err != nil {
				return err
			}
			match, err := a.matcher()
			if err != nil {
				return err
			}
			all, err := a.manager.Status(cmd.Context(), dir, refresh)
			if err != nil {
				return err
			}
			entries := make([]extstatus.StatusEntry, 0, len(all))
			for _, e := range all {
				if match(e.Name) {
					entries = append(entries, e)
				}
			}
			return a.render(cmd.OutOrStdout(), entries, func(t table.Writer) {
				t.AppendHeader(table.Row{"Name", "Installed", "Latest", "Enabled", "Status", "Message"})
				for _, e := range entries {
					t.AppendRow(table.Row{e.Name, dash(e.InstalledVersion), dash(e.LatestVersion), e.Enabled, e.Status, e.Message})
				}
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "discard cached update information first")
	return cmd
}

func (a *app) outdatedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outdated",
		Short: "List extensions with a compatible update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.appDir()
			if err != nil {
				return err
			}
			match, err := a.matcher()
			if err != nil {
				return err
			}
			all, err := a.manager.Outdated(cmd.Context(), dir, false)
			if err != nil {
				return err
			}
			m := make(map[string]extstatus.OutdatedEntry, len(all))
			names := make([]string, 0, len(all))
			for name, e := range all {
				if match(name) {
					m[name] = e
					names = append(names, name)
				}
			}
			sort.Strings(names)
			return a.render(cmd.OutOrStdout(), m, func(t table.Writer) {
				t.AppendHeader(table.Row{"Name", "Wanted", "Latest"})
				for _, name := range names {
					t.AppendRow(table.Row{name, m[name].Wanted, m[name].Latest})
				}
			})
		},
	}
}

func (a *app) actionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <name>",
		Short: fmt.Sprintf("%s an extension", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.appDir()
			if err != nil {
				return err
			}
			res, err := a.manager.Perform(cmd.Context(), dir, action, args[0])
			if err != nil {
				return err
			}
			if err := a.render(cmd.OutOrStdout(), res, func(t table.Writer) {
				t.AppendHeader(table.Row{"Extension", "Action", "Status", "Message"})
				t.AppendRow(table.Row{args[0], action, res.Status, res.Message})
			}); err != nil {
				return err
			}
			if res.Status == extstatus.StatusError {
				return fmt.Errorf("%s %s failed", action, args[0])
			}
			return nil
		},
	}
}

// matcher compiles the --match patterns. With no patterns every name matches.
func (a *app) matcher() (func(string) bool, error) {
	if len(a.match) == 0 {
		return func(string) bool { return true }, nil
	}
	globs := make([]glob.Glob, 0, len(a.match))
	for _, p := range a.match {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid --match pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return func(name string) bool {
		for _, g := range globs {
			if g.Match(name) {
				return true
			}
		}
		return false
	}, nil
}

func (a *app) render(out io.Writer, v any, rows func(table.Writer)) error {
	switch a.output {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		t := table.NewWriter()
		t.SetOutputMirror(out)
		rows(t)
		style := table.StyleLight
		style.Options.DrawBorder = false
		t.SetStyle(style)
		t.Render()
		return nil
	}
	return fmt.Errorf("unknown output format %q", a.output)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
