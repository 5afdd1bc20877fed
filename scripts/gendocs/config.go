package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/verforge/verforge/internal/config"
)

// ConfigField documents one configuration key.
type ConfigField struct {
	Key         string
	Type        string
	Default     string // used when the key has no built-in default
	Description string
}

// configFields lists every key of verforge.yaml. Defaults come from
// config.Defaults() where one exists.
var configFields = []ConfigField{
	{Key: "shared_root", Type: "path", Description: "Shared source tree every target is generated from"},
	{Key: "output", Type: "path", Description: "Parent directory of the per-target build contexts"},
	{Key: "descriptor", Type: "path", Description: "Build descriptor linked into every build context"},
	{Key: "state_path", Type: "path", Description: "Run history database; empty disables history"},
	{Key: "ordering", Type: "string", Description: "Target ranking: declared or semver"},
	{Key: "parallelism", Type: "int", Description: "Targets built concurrently; 0 means one per CPU"},
	{Key: "include", Type: "[]glob", Description: "Only shared files matching one of these are processed"},
	{Key: "exclude", Type: "[]glob", Description: "Shared files and directories to skip"},
	{Key: "verbatim", Type: "[]glob", Description: "Files copied without directive processing, in addition to binary files"},
	{Key: "directive.open", Type: "string", Description: "Opening delimiter of a directive (empty means /*#)"},
	{Key: "directive.close", Type: "string", Description: "Closing delimiter of a directive (empty means */)"},
	{Key: "directive.trim_lines", Type: "bool", Description: "Drop lines that hold nothing but a directive"},
	{Key: "versions", Type: "[]version", Description: "Declared targets: a quoted id or a map with id, enabled and dependencies"},
	{Key: "versions_file", Type: "path", Description: "Comment-toggle version list; a // prefix disables an entry"},
	{Key: "plugins.repositories", Type: "[]repository", Description: "Resolution sources in priority order (name, url)"},
	{Key: "plugins.rules", Type: "[]rule", Description: "Id rewrite rules (match, kind, module); the first match wins"},
	{Key: "serve.port", Type: "int", Default: fmt.Sprint(config.DefaultServePort), Description: "Port of the serve API"},
	{Key: "serve.watch", Type: "bool", Default: "true", Description: "Rebuild on change while serving"},
	{Key: "verbose", Type: "bool", Description: "Debug logging"},
	{Key: "output_format", Type: "string", Description: "auto, text, markdown or json"},
	{Key: "log_format", Type: "string", Description: "text or json"},
}

// generateConfigDocs generates the configuration reference page.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating config docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "verforge configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph("verforge reads " + InlineCode(config.ConfigFileName) + " from the project root, found by searching upward from the working directory. Relative paths are resolved against the project root.")

	w.Header(2, "Keys")
	defaults := config.Defaults()
	var rows [][]string
	for _, f := range configFields {
		def := f.Default
		if v, ok := defaults[f.Key]; ok {
			def = fmt.Sprint(v)
		}
		if def != "" {
			def = InlineCode(def)
		}
		rows = append(rows, []string{InlineCode(f.Key), f.Type, def, cleanDescription(f.Description)})
	}
	w.Table([]string{"Key", "Type", "Default", "Description"}, rows)

	w.Header(2, "Precedence")
	w.BulletList([]string{
		"Built-in defaults",
		InlineCode(config.ConfigFileName),
		InlineCode(config.EnvPrefix+"*") + " environment variables",
		"Command-line flags",
	})
	w.Paragraph("Later sources override earlier ones. Version ids must be quoted in YAML: an unquoted 1.20 would be read as the number 1.2.")

	w.Header(2, "Example")
	w.CodeBlock("yaml", `shared_root: src
output: build/versions
versions:
  - "1.19.4"
  - id: "1.20.1"
    dependencies:
      - id: com.replaymod.preprocess
        version: 48e02ad
  - id: "1.21.1"
    enabled: false
plugins:
  repositories:
    - name: jitpack
      url: https://jitpack.io
  rules:
    - match: com.replaymod.preprocess
      module: "com.github.ReplayMod:preprocessor:${version}"`)

	filename := filepath.Join(outDir, "configuration.md")
	if err := os.WriteFile(filename, w.Bytes(), 0600); err != nil {
		return err
	}
	log.Printf("  Generated configuration.md")
	return nil
}

// configKeys returns every documented key, sorted.
func configKeys() []string {
	keys := make([]string, 0, len(configFields))
	for _, f := range configFields {
		keys = append(keys, f.Key)
	}
	sort.Strings(keys)
	return keys
}

// envName returns the environment variable that sets key.
func envName(key string) string {
	return config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}
