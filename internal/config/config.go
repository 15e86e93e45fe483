// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads scripthost settings from built-in defaults, an
// optional YAML file and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/scripthost/internal/logging"
	"github.com/holomush/scripthost/internal/plugin"
	"github.com/holomush/scripthost/internal/xdg"
)

// Error codes.
const (
	CodeLoad    = "CONFIG_LOAD_FAILED"
	CodeInvalid = "CONFIG_INVALID"
)

// Config is the full host configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Plugins PluginsConfig `koanf:"plugins"`
	Runtime RuntimeConfig `koanf:"runtime"`
	Metrics MetricsConfig `koanf:"metrics"`
	KV      KVConfig      `koanf:"kv"`
}

// LogConfig selects the log encoding and threshold.
type LogConfig struct {
	Format string `koanf:"format" validate:"log_format"`
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// PluginsConfig says where plugins come from. Dir is scanned for manifests;
// Entries are registered directly.
type PluginsConfig struct {
	Dir     string        `koanf:"dir"`
	Entries []PluginEntry `koanf:"entries" validate:"dive"`
}

// PluginEntry registers one script without a manifest.
type PluginEntry struct {
	Name         string   `koanf:"name" validate:"required,plugin_name"`
	Script       string   `koanf:"script" validate:"required"`
	Capabilities []string `koanf:"capabilities"`
}

// RuntimeConfig tunes the shared runtime.
type RuntimeConfig struct {
	// Libraries are opt-in standard libraries: io, os, debug, channel.
	Libraries []string `koanf:"libraries" validate:"dive,oneof=io os debug channel"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// KVConfig selects the store behind host.kv_*. An empty DatabaseURL keeps
// values in memory.
type KVConfig struct {
	DatabaseURL string `koanf:"database_url" validate:"omitempty,url"`
}

// Defaults used for flags that are never set.
const (
	DefaultLogFormat   = logging.FormatJSON
	DefaultLogLevel    = "info"
	DefaultMetricsAddr = "127.0.0.1:9100"
)

// flagKeys maps flag names to config keys. Flags not listed here, such as
// --config, are not config values.
var flagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"plugins-dir":  "plugins.dir",
	"libraries":    "runtime.libraries",
	"metrics-addr": "metrics.addr",
	"database-url": "kv.database_url",
}

// RegisterFlags adds the config flags to fs. Their defaults are the built-in
// defaults; a flag only overrides the file when it is set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: $XDG_CONFIG_HOME/scripthost/config.yaml)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", DefaultLogLevel, "log level (debug, info, warn, error)")
	fs.String("plugins-dir", "", "directory scanned for plugin manifests")
	fs.StringSlice("libraries", nil, "extra standard libraries to open (io, os, debug, channel)")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL URL for the plugin KV store (empty = in memory)")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("plugin_name", func(fl validator.FieldLevel) bool {
		return plugin.ValidName(fl.Field().String())
	})
	_ = v.RegisterValidation("log_format", func(fl validator.FieldLevel) bool {
		return logging.ValidFormat(fl.Field().String())
	})
	return v
}

// Load reads the config file named by --config, or the XDG default when it
// exists, then applies the flags in fs and validates the result. fs must
// have been passed to RegisterFlags and parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, explicit, err := configPath(fs)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.In("config").Code(CodeLoad).With("path", path).Wrap(err)
			}
		}
	}

	provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, oops.In("config").Code(CodeLoad).Wrapf(err, "load flags")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Code(CodeLoad).Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configPath returns the file to read and whether the user named it.
func configPath(fs *pflag.FlagSet) (string, bool, error) {
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), true, nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		// No HOME: run on defaults and flags alone.
		return "", false, nil //nolint:nilerr // a missing home only disables the default file
	}
	return path, false, nil
}

// Validate checks every field constraint and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.In("config").Code(CodeInvalid).Wrap(err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldPath(fe)+" failed "+fe.Tag())
	}
	return oops.In("config").Code(CodeInvalid).
		With("fields", fields).
		Errorf("invalid configuration: %s", strings.Join(fields, "; "))
}

// fieldPath trims the root struct name: "Config.Log.Format" -> "Log.Format".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
