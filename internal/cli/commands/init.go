package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/verforge/verforge/internal/cli/output"
	"github.com/verforge/verforge/internal/config"
	"github.com/verforge/verforge/internal/coords"
	"gopkg.in/yaml.v3"
)

// scaffold is the initial verforge.yaml.
type scaffold struct {
	SharedRoot string                 `yaml:"shared_root"`
	Output     string                 `yaml:"output"`
	Descriptor string                 `yaml:"descriptor"`
	Ordering   string                 `yaml:"ordering"`
	Exclude    []string               `yaml:"exclude,omitempty"`
	Directive  config.DirectiveConfig `yaml:"directive"`
	Versions   []config.VersionEntry  `yaml:"versions"`
	Plugins    config.PluginsConfig   `yaml:"plugins"`
}

const scaffoldHeader = `# verforge project configuration.
#
# versions are declared oldest first; their order defines the ranks used by
# version conditions. Quote ids that look like numbers ("1.20", not 1.20).
`

const exampleSource = `package com.example;

public final class ExampleMod {
    public static final String NAME = "example";

    /*#if GTE 1.20.1*/
    public void render(GuiGraphics graphics) {
        graphics.drawString(NAME, 0, 0);
    }
    /*#else*/
    public void render(PoseStack stack) {
        font.draw(stack, NAME, 0, 0);
    }
    /*#endif*/

    /*#if RANGE 1.19.4 1.20.1*/
    // only compiled for the middle of the range
    /*#endif*/
}
`

func defaultScaffold() scaffold {
	disabled := false
	return scaffold{
		SharedRoot: config.DefaultSharedRoot,
		Output:     config.DefaultOutput,
		Descriptor: config.DefaultDescriptor,
		Ordering:   config.DefaultOrdering,
		Exclude:    []string{".git", "**/*.orig"},
		Directive:  config.DirectiveConfig{TrimLines: true},
		Versions: []config.VersionEntry{
			{ID: "1.19.4"},
			{ID: "1.20.1", Dependencies: []coords.Request{
				{ID: "com.replaymod.preprocess", Version: "48e02ad"},
			}},
			{ID: "1.21.1", Enabled: &disabled},
		},
		Plugins: config.PluginsConfig{
			Repositories: []coords.Repository{
				{Name: "fabric", URL: "https://maven.fabricmc.net/"},
				{Name: "gradlePluginPortal", URL: "https://plugins.gradle.org/m2/"},
				{Name: "jitpack", URL: "https://jitpack.io"},
			},
			Rules: []coords.Rule{
				{Match: "com.replaymod.preprocess", Module: "com.github.ReplayMod:preprocessor:${version}"},
			},
		},
	}
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new verforge project",
		Long: `Initialize a new verforge project with a default configuration.

This creates:
  - verforge.yaml with three example targets and plugin rules
  - src/ for the shared source tree

Use --example to also add a source file using version conditions.`,
		Example: `  # Initialize in current directory
  verforge init

  # Initialize a new directory with an example source file
  verforge init my-mod --example

  # Force overwrite existing config
  verforge init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputMode(cmd))
			return runInit(r, dir, force, example)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Add an example source file")

	return cmd
}

// outputMode returns the configured output mode without requiring a
// loadable project.
func outputMode(cmd *cobra.Command) output.OutputMode {
	if cfg := config.FromContext(cmd.Context()); cfg != nil {
		return output.Mode(cfg.OutputFormat)
	}
	return output.ModeAuto
}

func runInit(r *output.Renderer, dir string, force, example bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	var buf bytes.Buffer
	buf.WriteString(scaffoldHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(defaultScaffold()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	r.StatusLine(config.ConfigFileName, "success", "")

	srcDir := filepath.Join(dir, config.DefaultSharedRoot)
	if err := os.MkdirAll(srcDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", srcDir, err)
	}
	r.StatusLine(config.DefaultSharedRoot+"/", "success", "")

	if example {
		rel := filepath.Join("com", "example", "ExampleMod.java")
		p := filepath.Join(srcDir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(exampleSource), 0o600); err != nil {
			return err
		}
		r.StatusLine(filepath.ToSlash(filepath.Join(config.DefaultSharedRoot, rel)), "success", "")
	}

	r.Println()
	r.Success("verforge project initialized!")
	r.Println()
	r.Println("Next steps:")
	r.Println("  1. Declare your targets under versions: in " + config.ConfigFileName)
	r.Println("  2. Put the shared sources in src/")
	r.Println("  3. Run 'verforge check' to validate version conditions")
	r.Println("  4. Run 'verforge build' to generate one build context per target")
	return nil
}
