// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/localipc/lib/service"
	"github.com/bureau-foundation/localipc/lib/trust"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "LOCALIPC_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// productionRequirement is installed on listeners that name no
// requirement when the environment is production.
const productionRequirement = "same-user"

// Config is the daemon configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// RuntimeDirectory holds the listener sockets. Empty means
	// service.DefaultDirectory.
	RuntimeDirectory string `yaml:"runtime_directory"`

	// SocketPermissions is the octal mode applied to each socket file.
	SocketPermissions string `yaml:"socket_permissions"`

	// DefaultRequirement applies to listeners that name none.
	DefaultRequirement string `yaml:"default_requirement"`

	Log LogConfig `yaml:"log"`

	// Listeners are the endpoints the daemon registers.
	Listeners []ListenerConfig `yaml:"listeners"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// ListenerConfig describes one endpoint.
type ListenerConfig struct {
	Name string `yaml:"name"`

	// Requirement is a trust expression. Empty falls back to
	// Config.DefaultRequirement.
	Requirement string `yaml:"requirement"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	RuntimeDirectory   string     `yaml:"runtime_directory,omitempty"`
	SocketPermissions  string     `yaml:"socket_permissions,omitempty"`
	DefaultRequirement string     `yaml:"default_requirement,omitempty"`
	Log                *LogConfig `yaml:"log,omitempty"`
}

// Default returns the base configuration a file is merged into.
func Default() *Config {
	return &Config{
		Environment:       Development,
		SocketPermissions: "0600",
		Log: LogConfig{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// Load loads configuration from the file named by LOCALIPC_CONFIG.
// There is no fallback: an unset variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// section for the selected environment, and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	cfg.applyDefaultRequirement()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{}
		}
		// Production never runs an unguarded listener.
		if overrides.DefaultRequirement == "" && c.DefaultRequirement == "" {
			overrides.DefaultRequirement = productionRequirement
		}
	}

	if overrides == nil {
		return
	}

	if overrides.RuntimeDirectory != "" {
		c.RuntimeDirectory = overrides.RuntimeDirectory
	}
	if overrides.SocketPermissions != "" {
		c.SocketPermissions = overrides.SocketPermissions
	}
	if overrides.DefaultRequirement != "" {
		c.DefaultRequirement = overrides.DefaultRequirement
	}
	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

func (c *Config) applyDefaultRequirement() {
	for i := range c.Listeners {
		if strings.TrimSpace(c.Listeners[i].Requirement) == "" {
			c.Listeners[i].Requirement = c.DefaultRequirement
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in the runtime
// directory.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
		"UID":  strconv.Itoa(os.Getuid()),
	}
	c.RuntimeDirectory = expandVars(c.RuntimeDirectory, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if _, err := c.SocketMode(); err != nil {
		errs = append(errs, err)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != FormatText && c.Log.Format != FormatJSON {
		errs = append(errs, fmt.Errorf("log.format must be %s or %s, got %q", FormatText, FormatJSON, c.Log.Format))
	}

	if c.DefaultRequirement != "" {
		if _, err := trust.Parse(c.DefaultRequirement); err != nil {
			errs = append(errs, fmt.Errorf("default_requirement: %w", err))
		}
	}

	seen := make(map[string]bool, len(c.Listeners))
	for i, listener := range c.Listeners {
		if err := service.ValidateName(listener.Name); err != nil {
			errs = append(errs, fmt.Errorf("listeners[%d]: %w", i, err))
		} else if seen[listener.Name] {
			errs = append(errs, fmt.Errorf("listeners[%d]: duplicate name %q", i, listener.Name))
		}
		seen[listener.Name] = true

		if strings.TrimSpace(listener.Requirement) != "" {
			if _, err := trust.Parse(listener.Requirement); err != nil {
				errs = append(errs, fmt.Errorf("listeners[%d] (%s) requirement: %w", i, listener.Name, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SocketMode parses SocketPermissions. Only permission bits are
// accepted.
func (c *Config) SocketMode() (fs.FileMode, error) {
	mode, err := strconv.ParseUint(c.SocketPermissions, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("socket_permissions %q is not an octal mode", c.SocketPermissions)
	}
	if mode&^0o777 != 0 {
		return 0, fmt.Errorf("socket_permissions %q has bits outside 0777", c.SocketPermissions)
	}
	return fs.FileMode(mode), nil
}

// NewLogger builds the slog logger selected by c.Log, writing to w.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	switch c.Log.Format {
	case FormatText, "":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Log.Format)
	}
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", name, err)
	}
	return level, nil
}
