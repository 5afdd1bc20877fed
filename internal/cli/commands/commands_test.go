package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verforge/verforge/internal/binder"
	"github.com/verforge/verforge/internal/cli/output"
	"github.com/verforge/verforge/internal/testutil"
)

const modSource = "class Mod {\n" +
	"    /*#if GTE 1.20*/\n" +
	"    void render(GuiGraphics g) {}\n" +
	"    /*#else*/\n" +
	"    void render(PoseStack s) {}\n" +
	"    /*#endif*/\n" +
	"}\n"

const projectConfig = `output_format: json
versions:
  - "1.19"
  - id: "1.20"
    dependencies:
      - id: com.replaymod.preprocess
        version: 48e02ad
      - id: foo.bar
        version: "1.0"
  - id: "1.21"
    enabled: false
plugins:
  repositories:
    - name: fabric
      url: https://maven.fabricmc.net/
    - name: jitpack
      url: https://jitpack.io
  rules:
    - match: com.replaymod.preprocess
      module: "com.github.ReplayMod:preprocessor:${version}"
`

// setupProject creates a project in a temporary directory, changes into it
// and returns its path.
func setupProject(t *testing.T, cfg string, files map[string]string) string {
	t.Helper()
	t.Chdir(t.TempDir())
	root, err := os.Getwd()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "verforge.yaml"), []byte(cfg), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o750))
	testutil.WriteTree(t, filepath.Join(root, "src"), files)
	return root
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewBuildCommand(), "build", []string{"target", "enable", "no-history"}},
		{NewCheckCommand(), "check", nil},
		{NewExpandCommand(), "expand <file>", []string{"target"}},
		{NewTargetsCommand(), "targets", []string{"enabled"}},
		{NewResolveCommand(), "resolve <id> [version]", nil},
		{NewHistoryCommand(), "history [run-id]", []string{"limit"}},
		{NewWatchCommand(), "watch", []string{"target", "enable", "debounce"}},
		{NewServeCommand(), "serve", []string{"port", "watch", "no-history", "debounce"}},
		{NewCleanCommand(), "clean [target...]", nil},
		{NewInitCommand(), "init [directory]", []string{"force", "example"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Long, "Long should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}

	assert.Equal(t, []string{"run"}, NewBuildCommand().Aliases)
}

func TestBuildCommand(t *testing.T) {
	root := setupProject(t, projectConfig, map[string]string{"Mod.java": modSource})

	out, err := execute(t, NewBuildCommand())
	require.NoError(t, err)

	res := decode[output.BuildOutput](t, out)
	assert.Equal(t, "success", res.Status)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.Units)
	assert.Equal(t, 1, res.Directives)
	require.Len(t, res.Targets, 2)
	assert.Equal(t, "1.19", res.Targets[0].Target)
	assert.Equal(t, "1.20", res.Targets[1].Target)
	assert.Equal(t, []string{"com.github.ReplayMod:preprocessor:48e02ad", "foo.bar:1.0"}, res.Targets[1].Dependencies)

	built := testutil.ReadTree(t, filepath.Join(root, "build", "versions"))
	assert.Contains(t, built["1.19/Mod.java"], "PoseStack")
	assert.Contains(t, built["1.20/Mod.java"], "GuiGraphics")
	assert.NotContains(t, built, "1.21/Mod.java")

	// the run was recorded
	out, err = execute(t, NewHistoryCommand())
	require.NoError(t, err)
	hist := decode[output.HistoryOutput](t, out)
	require.Len(t, hist.Runs, 1)
	assert.Equal(t, res.RunID, hist.Runs[0].ID)
	assert.Equal(t, "completed", hist.Runs[0].Status)

	out, err = execute(t, NewHistoryCommand(), res.RunID)
	require.NoError(t, err)
	detail := decode[output.RunInfo](t, out)
	require.Len(t, detail.Results, 2)
	assert.Equal(t, "success", detail.Results[1].Status)
}

func TestBuildCommand_SelectAndEnable(t *testing.T) {
	root := setupProject(t, projectConfig, map[string]string{"Mod.java": modSource})

	_, err := execute(t, NewBuildCommand(), "--target", "1.21", "--no-history")
	assert.ErrorContains(t, err, `target "1.21" is disabled`)

	out, err := execute(t, NewBuildCommand(), "--enable", "1.21", "--target", "1.21", "--no-history")
	require.NoError(t, err)
	res := decode[output.BuildOutput](t, out)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, 2, res.Targets[0].Rank)
	assert.Empty(t, res.RunID)

	built := testutil.ReadTree(t, filepath.Join(root, "build", "versions"))
	assert.Contains(t, built["1.21/Mod.java"], "GuiGraphics")
	assert.NotContains(t, built, "1.19/Mod.java")
	_, err = os.Stat(filepath.Join(root, ".verforge"))
	assert.True(t, os.IsNotExist(err), "no history store expected")
}

func TestBuildCommand_ValidationFailureWritesNothing(t *testing.T) {
	root := setupProject(t, projectConfig, map[string]string{
		"Mod.java": modSource,
		"Bad.java": "/*#if GTE 9.9*/x/*#endif*/\n",
	})

	_, err := execute(t, NewBuildCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, err.Error(), `unknown version reference "9.9"`)

	_, err = os.Stat(filepath.Join(root, "build"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildCommand_MarkdownSummary(t *testing.T) {
	setupProject(t, "versions: [\"1.19\", \"1.20\"]\n", map[string]string{"Mod.java": modSource})

	out, err := execute(t, NewBuildCommand(), "--no-history")
	require.NoError(t, err)
	assert.Contains(t, out, "# Build (1 units, 1 directives)")
	assert.Contains(t, out, "- ✓ 1.19")
	assert.Contains(t, out, "2 of 2 targets built")
}

func TestCheckCommand(t *testing.T) {
	t.Run("valid, disabled references allowed", func(t *testing.T) {
		setupProject(t, projectConfig, map[string]string{
			"Mod.java":  modSource,
			"Next.java": "/*#if EQ 1.21*/next/*#endif*/\n",
			"icon.png":  "\x89PNG\x00\x01",
		})

		out, err := execute(t, NewCheckCommand())
		require.NoError(t, err)
		res := decode[output.CheckOutput](t, out)
		assert.True(t, res.Valid)
		assert.Equal(t, 3, res.Units)
		assert.Equal(t, 1, res.Verbatim)
		assert.Equal(t, 2, res.Directives)
		assert.Equal(t, 3, res.Targets)
	})

	t.Run("every problem reported", func(t *testing.T) {
		setupProject(t, projectConfig, map[string]string{
			"A.java": "/*#if GTE 9.9*/x/*#endif*/\n",
			"B.java": "/*#if GTE 1.20*/x\n",
		})

		out, err := execute(t, NewCheckCommand())
		require.Error(t, err)
		res := decode[output.CheckOutput](t, out)
		assert.False(t, res.Valid)
		assert.Len(t, res.Errors, 2)
	})
}

func TestExpandCommand(t *testing.T) {
	setupProject(t, projectConfig, map[string]string{"com/example/Mod.java": modSource})

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"relative to shared root", []string{"com/example/Mod.java", "--target", "1.19"}, "PoseStack", ""},
		{"path inside shared root", []string{"src/com/example/Mod.java", "-t", "1.20"}, "GuiGraphics", ""},
		{"disabled target", []string{"com/example/Mod.java", "-t", "1.21"}, "GuiGraphics", ""},
		{"unknown target", []string{"com/example/Mod.java", "-t", "9.9"}, "", `unknown target "9.9"`},
		{"outside shared root", []string{"../x.java", "-t", "1.19"}, "", "not inside the shared root"},
		{"missing target flag", []string{"com/example/Mod.java"}, "", "required flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewExpandCommand(), tt.args...)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
			assert.NotContains(t, out, "/*#")
		})
	}
}

func TestTargetsCommand(t *testing.T) {
	root := setupProject(t, projectConfig, nil)

	out, err := execute(t, NewTargetsCommand())
	require.NoError(t, err)
	res := decode[output.TargetsOutput](t, out)
	assert.Equal(t, "declared", res.Ordering)
	require.Len(t, res.Targets, 3)
	for i, tgt := range res.Targets {
		assert.Equal(t, i, tgt.Rank)
	}
	assert.False(t, res.Targets[2].Enabled)
	assert.Equal(t, filepath.Join(root, "build", "versions", "1.20"), res.Targets[1].OutputRoot)
	assert.Equal(t, []string{"com.github.ReplayMod:preprocessor:48e02ad", "foo.bar:1.0"}, res.Targets[1].Dependencies)

	out, err = execute(t, NewTargetsCommand(), "--enabled")
	require.NoError(t, err)
	assert.Len(t, decode[output.TargetsOutput](t, out).Targets, 2)
}

func TestResolveCommand(t *testing.T) {
	setupProject(t, projectConfig, nil)

	tests := []struct {
		name      string
		args      []string
		want      string
		rewritten bool
	}{
		{"rewritten", []string{"com.replaymod.preprocess", "48e02ad"}, "com.github.ReplayMod:preprocessor:48e02ad", true},
		{"pass-through", []string{"foo.bar", "1.0"}, "foo.bar:1.0", false},
		{"no version", []string{"foo.bar"}, "foo.bar", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewResolveCommand(), tt.args...)
			require.NoError(t, err)
			res := decode[output.ResolveOutput](t, out)
			assert.Equal(t, tt.want, res.Coordinate)
			assert.Equal(t, tt.rewritten, res.Rewritten)
			require.Len(t, res.Candidates, 2)
			assert.Equal(t, "fabric", res.Candidates[0].Repository)
			assert.Equal(t, 1, res.Candidates[1].Priority)
		})
	}
}

func TestCleanCommand(t *testing.T) {
	root := setupProject(t, projectConfig, map[string]string{"Mod.java": modSource})
	_, err := execute(t, NewBuildCommand(), "--no-history")
	require.NoError(t, err)

	_, err = execute(t, NewCleanCommand(), "1.19")
	require.NoError(t, err)
	built := testutil.ReadTree(t, filepath.Join(root, "build", "versions"))
	assert.NotContains(t, built, "1.19/Mod.java")
	assert.Contains(t, built, "1.20/Mod.java")

	// a directory not produced by a build is never removed
	handMade := filepath.Join(root, "build", "versions", "1.21")
	testutil.WriteTree(t, handMade, map[string]string{"notes.txt": "mine"})
	_, err = execute(t, NewCleanCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a generated tree")
	assert.FileExists(t, filepath.Join(handMade, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(root, "build", "versions", "1.20", binder.MarkerFile))

	_, err = execute(t, NewCleanCommand(), "9.9")
	assert.ErrorContains(t, err, `unknown target "9.9"`)
}

func TestHistoryCommand_Empty(t *testing.T) {
	setupProject(t, projectConfig, nil)

	out, err := execute(t, NewHistoryCommand())
	require.NoError(t, err)
	assert.Empty(t, decode[output.HistoryOutput](t, out).Runs)
}

func TestHistoryCommand_Disabled(t *testing.T) {
	setupProject(t, "state_path: \"\"\nversions: [\"1.20\"]\n", nil)

	_, err := execute(t, NewHistoryCommand())
	assert.ErrorContains(t, err, "run history is disabled")
}
