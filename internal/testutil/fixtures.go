package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/verforge/verforge/internal/registry"
)

// Registry freezes a registry declaring ids in order, all enabled.
func Registry(t testing.TB, ids ...string) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()
	for _, id := range ids {
		require.NoError(t, b.Register(id, true))
	}
	r, err := b.Freeze()
	require.NoError(t, err)
	return r
}

// Target looks up id in r and fails the test if it is missing.
func Target(t testing.TB, r *registry.Registry, id string) registry.Target {
	t.Helper()
	tgt, ok := r.Lookup(id)
	require.True(t, ok, "target %s not registered", id)
	return tgt
}

// WriteTree creates files under root. Keys are slash-separated relative
// paths.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

// ReadTree returns every regular file under root keyed by slash-separated
// relative path. A missing root yields an empty map.
func ReadTree(t testing.TB, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return out
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p) //nolint:gosec // G304: test fixture path
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}
