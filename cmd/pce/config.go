// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PCE Contributors

package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/pce-editor/pce/internal/logging"
	"github.com/pce-editor/pce/internal/xdg"
)

const serviceName = "pce"

const defaultShutdownTimeout = 5 * time.Second

// config is the host configuration. Values come from flags, then the config
// file, then flag defaults.
type config struct {
	PluginsDir      string        `koanf:"plugins-dir"`
	LogFormat       string        `koanf:"log-format"`
	LogLevel        string        `koanf:"log-level"`
	MetricsAddr     string        `koanf:"metrics-addr"`
	EditorID        string        `koanf:"editor-id"`
	ShutdownTimeout time.Duration `koanf:"shutdown-timeout"`
}

// registerConfigFlags adds the flags every subcommand shares.
func registerConfigFlags(flags *pflag.FlagSet) {
	pluginsDir, err := xdg.PluginsDir()
	if err != nil {
		pluginsDir = ""
	}

	flags.String("plugins-dir", pluginsDir, "directory containing plugin subdirectories")
	flags.String("log-format", logging.FormatText, "log format (json or text)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve /metrics and health probes on this address")
	flags.String("editor-id", "", "editor identifier (random if empty)")
	flags.Duration("shutdown-timeout", defaultShutdownTimeout, "how long to wait for plugins to stop")
}

// loadConfig merges the config file at path (or the default config file if
// it exists) with flags. Flags set on the command line win.
func loadConfig(flags *pflag.FlagSet, path string) (*config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		if def, err := xdg.ConfigFile(); err == nil {
			path = def
		}
	}
	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		switch {
		case err == nil:
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, oops.In("config").Code("INVALID_CONFIG").With("path", path).Wrapf(err, "load config file")
		}
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.In("config").Code("INVALID_CONFIG").Wrapf(err, "load flags")
	}

	var cfg config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Code("INVALID_CONFIG").Wrapf(err, "decode config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *config) validate() error {
	if c.PluginsDir == "" {
		return oops.In("config").Code("INVALID_CONFIG").
			Hint("set --plugins-dir or plugins-dir in the config file").
			Errorf("plugins directory is not set")
	}
	if c.ShutdownTimeout <= 0 {
		return oops.In("config").Code("INVALID_CONFIG").
			With("shutdown_timeout", c.ShutdownTimeout.String()).
			Errorf("shutdown timeout must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case logging.FormatJSON, logging.FormatText:
	default:
		return oops.In("config").Code("INVALID_CONFIG").
			With("log_format", c.LogFormat).
			Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// setupLogging installs the default logger described by cfg.
func (c *config) setupLogging() (*slog.Logger, error) {
	return logging.SetDefault(serviceName, version, c.LogFormat, c.LogLevel)
}

// resolveConfig is the common prologue of every subcommand.
func resolveConfig(flags *pflag.FlagSet) (*config, *slog.Logger, error) {
	cfg, err := loadConfig(flags, configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.setupLogging()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
