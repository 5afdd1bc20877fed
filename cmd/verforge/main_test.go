package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verforge/verforge/internal/cli"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "verforge v")
}

func TestHelpCommand(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)

	for _, expected := range []string{"build", "check", "expand", "targets", "resolve", "history", "watch", "init"} {
		assert.Contains(t, out, expected)
	}
}

func TestInitThenBuild(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := run(t, "init", "--example")
	require.NoError(t, err)

	out, err := run(t, "build", "--format", "markdown")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 of 2 targets built")

	wd, err := os.Getwd()
	require.NoError(t, err)
	for _, id := range []string{"1.19.4", "1.20.1"} {
		assert.FileExists(t, filepath.Join(wd, "build", "versions", id, "com", "example", "ExampleMod.java"))
	}
	assert.NoDirExists(t, filepath.Join(wd, "build", "versions", "1.21.1"))
}
