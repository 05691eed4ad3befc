package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/tsbridge/internal/tsserver"
)

// Default values.
const (
	DefaultTSServerPath   = "tsserver"
	DefaultMaxRestarts    = 5
	DefaultRequestTimeout = "10s"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config is the complete bridge configuration.
type Config struct {
	TypeScript LanguageConfig  `toml:"typescript" yaml:"typescript"`
	JavaScript LanguageConfig  `toml:"javascript" yaml:"javascript"`
	TSServer   TSServerConfig  `toml:"tsserver" yaml:"tsserver"`
	Workspace  WorkspaceConfig `toml:"workspace" yaml:"workspace"`
	Plugins    []PluginConfig  `toml:"plugins" yaml:"plugins"`
	Logging    LoggingConfig   `toml:"logging" yaml:"logging"`
}

// LanguageConfig holds per-language settings.
type LanguageConfig struct {
	Validate ValidateConfig `toml:"validate" yaml:"validate"`
}

// ValidateConfig switches diagnostics for a language.
type ValidateConfig struct {
	Enable bool `toml:"enable" yaml:"enable"`
}

// TSServerConfig describes how to run tsserver.
type TSServerConfig struct {
	Path                     string   `toml:"path" yaml:"path"`
	NodePath                 string   `toml:"node_path" yaml:"node_path"`
	Args                     []string `toml:"args" yaml:"args"`
	Locale                   string   `toml:"locale" yaml:"locale"`
	EnableProjectDiagnostics bool     `toml:"enable_project_diagnostics" yaml:"enable_project_diagnostics"`
	UseSeparateSyntaxServer  bool     `toml:"use_separate_syntax_server" yaml:"use_separate_syntax_server"`
	MaxRestarts              int      `toml:"max_restarts" yaml:"max_restarts"`
	RequestTimeout           string   `toml:"request_timeout" yaml:"request_timeout"`
}

// WorkspaceConfig describes the workspace.
type WorkspaceConfig struct {
	Root string `toml:"root" yaml:"root"`
	// CaseInsensitive overrides file-system case detection when set.
	CaseInsensitive *bool `toml:"case_insensitive" yaml:"case_insensitive"`
}

// PluginConfig names a tsserver plugin and the extra languages it serves.
type PluginConfig struct {
	Name      string   `toml:"name" yaml:"name"`
	Languages []string `toml:"languages" yaml:"languages"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TypeScript: LanguageConfig{Validate: ValidateConfig{Enable: true}},
		JavaScript: LanguageConfig{Validate: ValidateConfig{Enable: true}},
		TSServer: TSServerConfig{
			Path:           DefaultTSServerPath,
			MaxRestarts:    DefaultMaxRestarts,
			RequestTimeout: DefaultRequestTimeout,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.TSServer.Path == "" {
		errs = append(errs, &ValidationError{Path: "tsserver.path", Message: "must not be empty", Value: `""`})
	}
	if c.TSServer.MaxRestarts < 0 {
		errs = append(errs, &ValidationError{Path: "tsserver.max_restarts", Message: "must not be negative", Value: c.TSServer.MaxRestarts})
	}
	if d, err := time.ParseDuration(c.TSServer.RequestTimeout); err != nil || d <= 0 {
		errs = append(errs, &ValidationError{Path: "tsserver.request_timeout", Message: "must be a positive duration", Value: c.TSServer.RequestTimeout})
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, &ValidationError{Path: "logging.format", Message: "must be text or json", Value: c.Logging.Format})
	}
	for i, p := range c.Plugins {
		if p.Name == "" {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("plugins[%d].name", i), Message: "must not be empty", Value: `""`})
		}
	}

	return errors.Join(errs...)
}

// Timeout returns the request timeout as a duration.
func (c TSServerConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultRequestTimeout)
	}
	return d
}

// Mode returns the server mode implied by the configuration. With a
// separate syntax server the main process runs without full semantic
// support.
func (c TSServerConfig) Mode() tsserver.ServerMode {
	if c.UseSeparateSyntaxServer {
		return tsserver.ServerModePartialSemantic
	}
	return tsserver.ServerModeSemantic
}

// TSPlugins converts the plugin list for the tsserver client.
func (c *Config) TSPlugins() []tsserver.Plugin {
	plugins := make([]tsserver.Plugin, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		plugins = append(plugins, tsserver.Plugin{Name: p.Name, Languages: p.Languages})
	}
	return plugins
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.TSServer.Args = append([]string(nil), c.TSServer.Args...)
	if c.Workspace.CaseInsensitive != nil {
		v := *c.Workspace.CaseInsensitive
		out.Workspace.CaseInsensitive = &v
	}
	out.Plugins = make([]PluginConfig, len(c.Plugins))
	for i, p := range c.Plugins {
		out.Plugins[i] = PluginConfig{Name: p.Name, Languages: append([]string(nil), p.Languages...)}
	}
	return &out
}
