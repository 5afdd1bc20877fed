package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by the loader.
// A double underscore separates nesting levels:
// VERFORGE_DIRECTIVE__TRIM_LINES sets directive.trim_lines.
const EnvPrefix = "VERFORGE_"

// loggerKey is used to store logger in context.
type loggerKey struct{}

// configKey is used to store the loaded config in context.
type configKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// flagKeys maps flag names that differ from their config key.
var flagKeys = map[string]string{
	"state":  "state_path",
	"format": "output_format",
}

// pathFlags are flags holding paths, resolved against the working directory
// rather than the project root.
var pathFlags = []string{"shared-root", "output", "descriptor", "state", "versions-file"}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if configExistsIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Explicit --project-dir flag
//  2. Directory of an explicit config file
//  3. Search upward from CWD for verforge.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Changed("project-dir") {
		if dir, _ := flags.GetString("project-dir"); dir != "" {
			if abs, err := filepath.Abs(dir); err == nil {
				return abs
			}
			return filepath.Clean(dir)
		}
	}

	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Defaults returns the default configuration values keyed by config key.
func Defaults() map[string]any {
	return map[string]any{
		"shared_root":          DefaultSharedRoot,
		"output":               DefaultOutput,
		"descriptor":           DefaultDescriptor,
		"state_path":           DefaultStatePath,
		"ordering":             DefaultOrdering,
		"parallelism":          0,
		"directive.open":       "",
		"directive.close":      "",
		"directive.trim_lines": true,
		"verbose":              false,
		"output_format":        DefaultOutputFormat,
		"log_format":           DefaultLogFormat,
	}
}

// LoadConfig loads configuration from defaults, the config file, environment
// variables and flags. Precedence (highest to lowest): flags > env vars >
// config file > defaults. cfgFile may be empty to search for one.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	projectRoot := inferProjectRoot(cfgFile, flags)

	// Paths given as flags are relative to the working directory.
	flagPaths := make(map[string]string)
	if flags != nil {
		for _, name := range pathFlags {
			if f := flags.Lookup(name); f != nil && f.Changed && f.Value.String() != "" {
				abs, err := filepath.Abs(f.Value.String())
				if err != nil {
					return nil, fmt.Errorf("invalid --%s: %w", name, err)
				}
				flagPaths[name] = abs
			}
		}
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		cfgFile = configExistsIn(projectRoot)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Load environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				versionEntryHook(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve paths against the project root, or the working directory
	// for paths given as flags.
	cfg.ProjectRoot = projectRoot
	cfg.ConfigFile = cfgFile
	resolve := func(dst *string, flag string) {
		if abs, ok := flagPaths[flag]; ok {
			*dst = abs
			return
		}
		*dst = resolvePathRelativeTo(*dst, projectRoot)
	}
	resolve(&cfg.SharedRoot, "shared-root")
	resolve(&cfg.Output, "output")
	resolve(&cfg.Descriptor, "descriptor")
	resolve(&cfg.StatePath, "state")
	resolve(&cfg.VersionsFile, "versions-file")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// versionEntryHook lets a versions list mix bare ids with maps. Numbers are
// rejected: YAML reads 1.20 as the float 1.2, losing the id.
func versionEntryHook() mapstructure.DecodeHookFuncType {
	entryType := reflect.TypeOf(VersionEntry{})
	return func(from, to reflect.Type, data any) (any, error) {
		if to != entryType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return VersionEntry{ID: v}, nil
		case int, int64, uint64, float32, float64:
			return nil, fmt.Errorf("version %v must be quoted (YAML reads it as a number)", v)
		}
		return data, nil
	}
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// WithConfig returns a context carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the config stored by WithConfig, or nil.
func FromContext(ctx context.Context) *Config {
	if ctx == nil {
		return nil
	}
	cfg, _ := ctx.Value(configKey{}).(*Config)
	return cfg
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}
