package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewExpandCommand creates the expand command.
func NewExpandCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "expand <file>",
		Short: "Print one shared file as a target would see it",
		Long: `Expand the directives of a single shared source file for one target and
print the result. Nothing is written. Disabled targets can be expanded too.

The file may be given relative to the shared root or as a path inside it.`,
		Example: `  # Show what 1.20.1 compiles
  verforge expand com/example/Mod.java --target 1.20.1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd, args[0], target)
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "Target to expand for (required)")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runExpand(cmd *cobra.Command, file, target string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	eng, cleanup, err := cc.NewEngine(engineOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	rel, err := sharedRel(cc.Cfg.SharedRoot, file)
	if err != nil {
		return err
	}
	data, err := eng.ExpandFile(rel, target)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// sharedRel maps a user-supplied file to a path relative to the shared root.
// An existing path inside the shared root wins; anything else is taken as
// already relative to it.
func sharedRel(sharedRoot, file string) (string, error) {
	if _, err := os.Stat(file); err == nil {
		abs, err := filepath.Abs(file)
		if err != nil {
			return "", err
		}
		if rel, err := filepath.Rel(sharedRoot, abs); err == nil && filepath.IsLocal(rel) {
			return rel, nil
		}
	}
	if !filepath.IsLocal(file) {
		return "", fmt.Errorf("%s is not inside the shared root %s", file, sharedRoot)
	}
	return file, nil
}
