// Package config loads ffs settings from defaults, an optional config file,
// FFS_* environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ffs/internal/logging"
	"github.com/steveyegge/ffs/internal/watch"
)

// Configuration keys.
const (
	KeyQueueCapacity     = "queue.capacity"
	KeyMaxParallel       = "dispatch.max_parallel"
	KeyWatchBackend      = "watch.backend"
	KeyRenameWindow      = "watch.rename_window"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
	KeyLogFile           = "log.file"
	KeyLogMaxSizeMB      = "log.max_size_mb"
	KeyLogMaxBackups     = "log.max_backups"
	KeyLogMaxAgeDays     = "log.max_age_days"
	KeyDashboardAddr     = "dashboard.addr"
	envPrefix            = "FFS"
	configName           = "ffs"
	defaultQueueCapacity = 100
)

// FlagKeys maps command-line flag names to the keys they override.
var FlagKeys = map[string]string{
	"queue-capacity": KeyQueueCapacity,
	"max-parallel":   KeyMaxParallel,
	"backend":        KeyWatchBackend,
	"rename-window":  KeyRenameWindow,
	"log-level":      KeyLogLevel,
	"log-format":     KeyLogFormat,
	"log-file":       KeyLogFile,
	"dashboard":      KeyDashboardAddr,
}

// Config is the effective configuration.
type Config struct {
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" yaml:"dispatch"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
}

// QueueConfig sizes the event queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// DispatchConfig bounds notification-level parallelism.
type DispatchConfig struct {
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`
}

// WatchConfig selects and tunes the event source.
type WatchConfig struct {
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	RenameWindow time.Duration `mapstructure:"rename_window" yaml:"rename_window"`
}

// MarshalYAML writes the rename window as a duration string rather than
// nanoseconds.
func (w WatchConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Backend      string `yaml:"backend"`
		RenameWindow string `yaml:"rename_window"`
	}{w.Backend, w.RenameWindow.String()}, nil
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Logging converts the section to a logging.Config.
func (l LogConfig) Logging() logging.Config {
	return logging.Config{
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

// DashboardConfig enables the live dashboard when Addr is set.
type DashboardConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyQueueCapacity, defaultQueueCapacity)
	v.SetDefault(KeyMaxParallel, runtime.NumCPU())
	v.SetDefault(KeyWatchBackend, watch.BackendFSNotify)
	v.SetDefault(KeyRenameWindow, watch.DefaultRenameWindow)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogMaxAgeDays, 28)
	v.SetDefault(KeyDashboardAddr, "")
}

// Default returns the configuration with nothing but defaults applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load builds the effective configuration. file names an explicit config
// file; when empty, ffs.{yaml,toml,json} is looked up in the working
// directory and then in $HOME/.config/ffs, and a missing file is not an
// error. flags may be nil; only flags named in FlagKeys are bound.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyQueueCapacity, c.Queue.Capacity)
	}
	if c.Dispatch.MaxParallel < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyMaxParallel, c.Dispatch.MaxParallel)
	}
	switch c.Watch.Backend {
	case watch.BackendFSNotify, watch.BackendNotify:
	default:
		return fmt.Errorf("%s: unknown backend %q", KeyWatchBackend, c.Watch.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%s: unknown format %q", KeyLogFormat, c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	return nil
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
