package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/verforge/verforge/internal/registry"
)

var (
	outputFormats = []string{"auto", "text", "markdown", "json"}
	logFormats    = []string{"text", "json"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SharedRoot == "" {
		return fmt.Errorf("shared_root is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output is required")
	}
	if err := checkDisjoint(c.SharedRoot, c.Output); err != nil {
		return err
	}
	switch registry.Ordering(c.Ordering) {
	case registry.OrderDeclared, registry.OrderSemver:
	default:
		return fmt.Errorf("unknown ordering %q (want declared or semver)", c.Ordering)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	if !slices.Contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("unknown output_format %q (want one of %v)", c.OutputFormat, outputFormats)
	}
	if !slices.Contains(logFormats, c.LogFormat) {
		return fmt.Errorf("unknown log_format %q (want one of %v)", c.LogFormat, logFormats)
	}
	if c.Serve != nil && (c.Serve.Port < 0 || c.Serve.Port > 65535) {
		return fmt.Errorf("serve.port out of range: %d", c.Serve.Port)
	}
	return nil
}

// ValidateDirectories checks that the shared root exists.
func (c *Config) ValidateDirectories() error {
	info, err := os.Stat(c.SharedRoot)
	if os.IsNotExist(err) {
		return fmt.Errorf("shared root does not exist: %s\nHint: Create the directory or use --shared-root to specify a different path", c.SharedRoot)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("shared root is not a directory: %s", c.SharedRoot)
	}
	return nil
}

// checkDisjoint rejects a shared root and output directory that are equal or
// nested in either direction.
func checkDisjoint(shared, output string) error {
	absShared, err := filepath.Abs(shared)
	if err != nil {
		return err
	}
	absOut, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	switch {
	case absShared == absOut:
		return fmt.Errorf("output must differ from shared_root (%s)", shared)
	case isWithin(absOut, absShared):
		return fmt.Errorf("output %s must not be inside shared_root %s", output, shared)
	case isWithin(absShared, absOut):
		return fmt.Errorf("shared_root %s must not be inside output %s", shared, output)
	}
	return nil
}

func isWithin(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && filepath.IsLocal(rel)
}
