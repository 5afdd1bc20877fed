// Package config loads verforge configuration.
//
// Values are layered, highest priority last: built-in defaults, the project's
// verforge.yaml, VERFORGE_* environment variables and explicitly set
// command-line flags.
package config

import (
	"github.com/verforge/verforge/internal/binder"
	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/directive"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "verforge.yaml"
	ConfigFileNameAlt = "verforge.yml"
)

// Defaults.
const (
	DefaultSharedRoot   = "src"
	DefaultOutput       = "build/versions"
	DefaultDescriptor   = "build.gradle"
	DefaultStatePath    = ".verforge/state.db"
	DefaultOrdering     = "declared"
	DefaultOutputFormat = "auto"
	DefaultLogFormat    = "text"
	DefaultServePort    = 8765
)

// Config holds all configuration options.
type Config struct {
	// ProjectRoot anchors every relative path. It is not read from the file.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the file that was loaded, if any.
	ConfigFile string `koanf:"-"`

	SharedRoot   string          `koanf:"shared_root"`
	Output       string          `koanf:"output"`
	Descriptor   string          `koanf:"descriptor"`
	StatePath    string          `koanf:"state_path"`
	Ordering     string          `koanf:"ordering"`
	Parallelism  int             `koanf:"parallelism"`
	Include      []string        `koanf:"include"`
	Exclude      []string        `koanf:"exclude"`
	Verbatim     []string        `koanf:"verbatim"`
	Directive    DirectiveConfig `koanf:"directive"`
	Versions     []VersionEntry  `koanf:"versions"`
	VersionsFile string          `koanf:"versions_file"`
	Plugins      PluginsConfig   `koanf:"plugins"`
	Verbose      bool            `koanf:"verbose"`
	OutputFormat string          `koanf:"output_format"`
	LogFormat    string          `koanf:"log_format"`
	Serve        *ServeConfig    `koanf:"serve"`
}

// ServeConfig holds configuration for the HTTP API server.
type ServeConfig struct {
	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
}

// DefaultServeConfig returns a ServeConfig with default values.
func DefaultServeConfig() *ServeConfig {
	return &ServeConfig{
		Port:  DefaultServePort,
		Watch: true,
	}
}

// GetServeConfig returns the serve config with defaults applied for any unset values.
func (c *Config) GetServeConfig() *ServeConfig {
	if c.Serve == nil {
		return DefaultServeConfig()
	}
	sc := *c.Serve
	if sc.Port == 0 {
		sc.Port = DefaultServePort
	}
	return &sc
}

// DirectiveConfig configures directive syntax.
type DirectiveConfig struct {
	Open      string `koanf:"open" yaml:"open,omitempty"`
	Close     string `koanf:"close" yaml:"close,omitempty"`
	TrimLines bool   `koanf:"trim_lines" yaml:"trim_lines"`
}

// VersionEntry declares one target. In YAML it is either a bare id or a map.
type VersionEntry struct {
	ID           string           `koanf:"id" yaml:"id"`
	Enabled      *bool            `koanf:"enabled" yaml:"enabled,omitempty"`
	Dependencies []coords.Request `koanf:"dependencies" yaml:"dependencies,omitempty"`
}

// IsEnabled reports whether the entry is enabled. Entries are enabled unless
// they say otherwise.
func (v VersionEntry) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// PluginsConfig configures the plugin resolution boundary.
type PluginsConfig struct {
	Repositories []coords.Repository `koanf:"repositories" yaml:"repositories,omitempty"`
	Rules        []coords.Rule       `koanf:"rules" yaml:"rules,omitempty"`
}

// DirectiveOptions returns the directive syntax options.
func (c *Config) DirectiveOptions() directive.Options {
	return directive.Options{
		Open:      c.Directive.Open,
		Close:     c.Directive.Close,
		TrimLines: c.Directive.TrimLines,
	}
}

// DiscoverOptions returns the shared tree filters.
func (c *Config) DiscoverOptions() binder.DiscoverOptions {
	return binder.DiscoverOptions{
		Include:  c.Include,
		Exclude:  c.Exclude,
		Verbatim: c.Verbatim,
	}
}

// HistoryEnabled reports whether runs are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.StatePath != ""
}
