// Package config loads extstatus settings from a YAML file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/git-pkgs/extstatus/client"
	"github.com/git-pkgs/extstatus/internal/core"
	"github.com/git-pkgs/extstatus/internal/outdated"
)

// EnvPrefix prefixes environment overrides, e.g. EXTSTATUS_APP_DIR.
const EnvPrefix = "EXTSTATUS"

// Discovery modes.
const (
	DiscoveryRegistry = "registry"
	DiscoveryCommand  = "command"
)

type Config struct {
	AppDir           string        `mapstructure:"app_dir"`
	RegistryURL      string        `mapstructure:"registry_url"`
	Concurrency      int           `mapstructure:"concurrency"`
	Discovery        string        `mapstructure:"discovery"`
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`
	OutdatedCommand  []string      `mapstructure:"outdated_command"`
	ExtensionCommand []string      `mapstructure:"extension_command"`
	FastBuildCheck   bool          `mapstructure:"fast_build_check"`
	LogFormat        string        `mapstructure:"log_format"`
	LogLevel         string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_dir", "")
	v.SetDefault("registry_url", client.DefaultRegistryURL)
	v.SetDefault("concurrency", core.DefaultConcurrency)
	v.SetDefault("discovery", DiscoveryRegistry)
	v.SetDefault("discovery_timeout", outdated.DefaultTimeout)
	v.SetDefault("outdated_command", outdated.DefaultCommand)
	v.SetDefault("extension_command", []string{"jupyter", "labextension"})
	v.SetDefault("fast_build_check", false)
	v.SetDefault("log_format", "text")
	v.SetDefault("log_level", "info")
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"app-dir":    "app_dir",
	"registry":   "registry_url",
	"log-level":  "log_level",
	"log-format": "log_format",
	"discovery":  "discovery",
	"timeout":    "discovery_timeout",
}

// Dir returns the directory searched for config.yaml.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "extstatus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "extstatus")
}

// Load reads cfgFile, or config.yaml from Dir when cfgFile is empty, then
// applies environment overrides and any set flags. A missing default config
// file is not an error.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.DiscoveryTimeout <= 0 {
		return fmt.Errorf("discovery_timeout must be positive, got %s", c.DiscoveryTimeout)
	}
	switch c.Discovery {
	case DiscoveryRegistry:
	case DiscoveryCommand:
		if len(c.OutdatedCommand) == 0 {
			return errors.New("outdated_command is required for command discovery")
		}
	default:
		return fmt.Errorf("unknown discovery mode %q", c.Discovery)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
