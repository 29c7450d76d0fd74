// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

// Package config loads plughost configuration from a YAML file and
// command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/plughost/plughost/internal/logging"
	"github.com/plughost/plughost/internal/plugin"
	"github.com/plughost/plughost/internal/xdg"
)

// PluginPathEnv lists extra search directories, separated like PATH. They
// are searched before the configured ones.
const PluginPathEnv = "PLUGHOST_PLUGIN_PATH"

// FileName is the config file looked up in the config directory.
const FileName = "config.yaml"

// Loader kinds.
const (
	LoaderNative  = "native"
	LoaderProcess = "process"
)

// Config keys, shared by the YAML file and the flags that override them.
const (
	KeySearchPaths   = "search-paths"
	KeyCacheFile     = "cache-file"
	KeyBundlePattern = "bundle-pattern"
	KeyBinaryPattern = "binary-pattern"
	KeyArch          = "arch"
	KeyLoader        = "loader"
	KeyLoadRetries   = "load-retries"
	KeyLogFormat     = "log-format"
	KeyLogLevel      = "log-level"
)

// CodeInvalid marks configuration that failed validation.
const CodeInvalid = "CONFIG_INVALID"

// Config is the plughost configuration.
type Config struct {
	SearchPaths   []string    `koanf:"search-paths" json:"search-paths,omitempty" jsonschema:"description=Directories searched for plugin binaries in order"`
	CacheFile     string      `koanf:"cache-file" json:"cache-file,omitempty" jsonschema:"description=Plugin cache file read before and written after a scan"`
	BundlePattern string      `koanf:"bundle-pattern" json:"bundle-pattern,omitempty" jsonschema:"description=Glob matching bundle directory names"`
	BinaryPattern string      `koanf:"binary-pattern" json:"binary-pattern,omitempty" jsonschema:"description=Glob matching bare plugin binary names"`
	Arch          string      `koanf:"arch" json:"arch,omitempty" jsonschema:"description=Architecture directory inside bundles such as linux-amd64"`
	Loader        string      `koanf:"loader" json:"loader,omitempty" jsonschema:"enum=native,enum=process,description=How plugin binaries are loaded"`
	LoadRetries   int         `koanf:"load-retries" json:"load-retries,omitempty" jsonschema:"minimum=0,description=Extra handshake attempts for the process loader"`
	APIs          []APIConfig `koanf:"apis" json:"apis,omitempty" jsonschema:"description=Plugin APIs the host understands"`
	LogFormat     string      `koanf:"log-format" json:"log-format,omitempty" jsonschema:"enum=json,enum=text"`
	LogLevel      string      `koanf:"log-level" json:"log-level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// APIConfig registers one plugin API version range.
type APIConfig struct {
	Name               string   `koanf:"name" json:"name" jsonschema:"minLength=1"`
	MinVersion         int      `koanf:"min-version" json:"min-version" jsonschema:"minimum=0"`
	MaxVersion         int      `koanf:"max-version" json:"max-version" jsonschema:"minimum=0"`
	RequiredProperties []string `koanf:"required-properties" json:"required-properties,omitempty"`
	KeptProperties     []string `koanf:"kept-properties" json:"kept-properties,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		BundlePattern: plugin.DefaultBundlePattern,
		BinaryPattern: plugin.DefaultBinaryPattern,
		Arch:          plugin.DefaultArch(),
		Loader:        LoaderNative,
		LoadRetries:   1,
		LogFormat:     "text",
		LogLevel:      "info",
	}
}

// RegisterFlags adds the flags that override config keys to flags, with the
// defaults as flag defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.StringSlice(KeySearchPaths, nil, "plugin search directories (default: user and system plugin dirs)")
	flags.String(KeyCacheFile, "", "plugin cache file (default: XDG_CACHE_HOME/plughost/"+xdg.CacheFileName+")")
	flags.String(KeyBundlePattern, d.BundlePattern, "glob matching bundle directory names")
	flags.String(KeyBinaryPattern, d.BinaryPattern, "glob matching bare plugin binaries")
	flags.String(KeyArch, d.Arch, "architecture directory inside bundles")
	flags.String(KeyLoader, d.Loader, "binary loader (native or process)")
	flags.Int(KeyLoadRetries, d.LoadRetries, "extra handshake attempts for the process loader")
	flags.String(KeyLogFormat, d.LogFormat, "log format (json or text)")
	flags.String(KeyLogLevel, d.LogLevel, "log level (debug, info, warn, error)")
}

// Load reads the config file at path, then applies flags that were set on
// flags. An empty path loads FileName from the config directory if it exists.
// The file is validated against the config schema before it is applied.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if dir, err := xdg.ConfigDir(); err == nil {
			path = filepath.Join(dir, FileName)
		}
	}

	k := koanf.New(".")
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		switch {
		case err == nil:
			if err := ValidateSchema(data); err != nil {
				return nil, oops.Code(CodeInvalid).With("path", path).Wrapf(err, "invalid config file")
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.With("path", path).Wrapf(err, "load config file")
			}
		case explicit || !errors.Is(err, fs.ErrNotExist):
			return nil, oops.With("path", path).Wrapf(err, "read config file")
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "decode config")
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths fills default search paths and cache file, then prepends
// the directories from PluginPathEnv.
func (c *Config) resolvePaths() error {
	if len(c.SearchPaths) == 0 {
		if dir, err := xdg.PluginsDir(); err == nil {
			c.SearchPaths = append(c.SearchPaths, dir)
		}
		c.SearchPaths = append(c.SearchPaths, SystemPluginsDir)
	}
	if env := os.Getenv(PluginPathEnv); env != "" {
		var extra []string
		for _, dir := range filepath.SplitList(env) {
			if dir != "" {
				extra = append(extra, dir)
			}
		}
		c.SearchPaths = append(extra, c.SearchPaths...)
	}
	if c.CacheFile == "" {
		f, err := xdg.CacheFile()
		if err != nil {
			return oops.Code(CodeInvalid).Wrapf(err, "no cache file configured")
		}
		c.CacheFile = f
	}
	return nil
}

// SystemPluginsDir is always searched when no search paths are configured.
const SystemPluginsDir = "/usr/local/lib/plughost/plugins"

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	if c.Loader != LoaderNative && c.Loader != LoaderProcess {
		return oops.Code(CodeInvalid).With("loader", c.Loader).
			Errorf("loader must be %q or %q, got %q", LoaderNative, LoaderProcess, c.Loader)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code(CodeInvalid).With("log_format", c.LogFormat).
			Errorf("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code(CodeInvalid).Wrap(err)
	}
	if c.LoadRetries < 0 {
		return oops.Code(CodeInvalid).Errorf("load-retries must not be negative")
	}
	for _, p := range []string{c.BundlePattern, c.BinaryPattern} {
		if _, err := glob.Compile(p); err != nil {
			return oops.Code(CodeInvalid).With("pattern", p).Wrapf(err, "invalid pattern")
		}
	}
	for _, api := range c.APIs {
		if api.Name == "" {
			return oops.Code(CodeInvalid).Errorf("api name is required")
		}
		if api.MinVersion > api.MaxVersion {
			return oops.Code(CodeInvalid).With("api", api.Name).
				Errorf("api %s: min-version %d exceeds max-version %d", api.Name, api.MinVersion, api.MaxVersion)
		}
	}
	return nil
}
