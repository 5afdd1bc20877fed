package coords

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()
	m, err := New([]Rule{
		{Match: "com.replaymod.preprocess", Module: "com.github.ReplayMod:preprocessor:${version}"},
		{Match: "net.fabricmc.", Kind: MatchPrefix, Module: "net.fabricmc:${id}:${version}"},
		{Match: "org.example.*", Module: "org.example:all"},
	}, []Repository{
		{Name: "fabric", URL: "https://maven.fabricmc.net"},
		{Name: "portal", URL: "https://plugins.gradle.org/m2"},
		{Name: "jitpack", URL: "https://jitpack.io"},
	})
	require.NoError(t, err)
	return m
}

func TestMapper_Resolve(t *testing.T) {
	m := newTestMapper(t)

	tests := []struct {
		name       string
		id         string
		version    string
		wantModule string
		wantString string
		wantRule   int
	}{
		{
			name:       "exact rewrite",
			id:         "com.replaymod.preprocess",
			version:    "88169fc",
			wantModule: "com.github.ReplayMod:preprocessor:88169fc",
			wantString: "com.github.ReplayMod:preprocessor:88169fc",
			wantRule:   0,
		},
		{
			name:       "prefix rewrite",
			id:         "net.fabricmc.fabric-loom",
			version:    "1.6",
			wantModule: "net.fabricmc:net.fabricmc.fabric-loom:1.6",
			wantString: "net.fabricmc:net.fabricmc.fabric-loom:1.6",
			wantRule:   1,
		},
		{
			name:       "glob rewrite without version placeholder",
			id:         "org.example.tools",
			version:    "2.0",
			wantModule: "org.example:all",
			wantString: "org.example:all:2.0",
			wantRule:   2,
		},
		{
			name:       "pass-through",
			id:         "foo.bar",
			version:    "",
			wantModule: "foo.bar",
			wantString: "foo.bar",
			wantRule:   -1,
		},
		{
			name:       "pass-through with version",
			id:         "foo.bar",
			version:    "1.0",
			wantModule: "foo.bar",
			wantString: "foo.bar:1.0",
			wantRule:   -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := m.Resolve(tt.id, tt.version)
			assert.Equal(t, tt.id, c.ID)
			assert.Equal(t, tt.wantModule, c.Module)
			assert.Equal(t, tt.wantString, c.String())
			assert.Equal(t, tt.wantRule, c.Rule)
			assert.Equal(t, tt.wantRule >= 0, c.Rewritten())
		})
	}
}

func TestMapper_FirstMatchWins(t *testing.T) {
	m, err := New([]Rule{
		{Match: "a.", Kind: MatchPrefix, Module: "first"},
		{Match: "a.b", Module: "second"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "first", m.Resolve("a.b", "").Module)
}

func TestMapper_Candidates(t *testing.T) {
	m := newTestMapper(t)

	cands := m.Candidates("com.replaymod.preprocess", "1.0")
	require.Len(t, cands, 3)
	names := []string{cands[0].Repository.Name, cands[1].Repository.Name, cands[2].Repository.Name}
	assert.Equal(t, []string{"fabric", "portal", "jitpack"}, names)
	for i, c := range cands {
		assert.Equal(t, i, c.Priority)
		assert.Equal(t, "com.github.ReplayMod:preprocessor:1.0", c.Coordinate.Module)
	}
}

func TestMapper_ResolveAll(t *testing.T) {
	m := newTestMapper(t)

	got := m.ResolveAll([]Request{
		{ID: "foo.bar"},
		{ID: "com.replaymod.preprocess", Version: "v2"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "foo.bar", got[0].String())
	assert.Equal(t, "com.github.ReplayMod:preprocessor:v2", got[1].String())
}

func TestMapper_BraceGlob(t *testing.T) {
	m, err := New([]Rule{{Match: "org.{alpha,beta}.*", Module: "org.example:${id}:${version}"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, MatchGlob, m.Rules()[0].Kind, "kind inferred from metacharacters")

	assert.Equal(t, 0, m.Resolve("org.beta.plugin", "1.0").Rule)
	assert.Equal(t, -1, m.Resolve("org.gamma.plugin", "1.0").Rule)
}

func TestNew_InvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		repos []Repository
	}{
		{"missing match", []Rule{{Module: "x"}}, nil},
		{"missing module", []Rule{{Match: "x"}}, nil},
		{"unknown kind", []Rule{{Match: "x", Kind: "regex", Module: "y"}}, nil},
		{"bad glob", []Rule{{Match: "[x", Kind: MatchGlob, Module: "y"}}, nil},
		{"repository without url", nil, []Repository{{Name: "empty"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.rules, tt.repos)
			assert.Error(t, err)
		})
	}
}

type fakeFetcher struct {
	ok    string
	tried []string
}

func (f *fakeFetcher) Fetch(_ context.Context, c Candidate) error {
	f.tried = append(f.tried, c.Repository.Name)
	if c.Repository.Name == f.ok {
		return nil
	}
	return errors.New("not found")
}

func TestFetchFirst(t *testing.T) {
	m := newTestMapper(t)
	cands := m.Candidates("com.replaymod.preprocess", "1.0")

	t.Run("stops at first success", func(t *testing.T) {
		f := &fakeFetcher{ok: "portal"}
		got, err := FetchFirst(context.Background(), f, cands)
		require.NoError(t, err)
		assert.Equal(t, "portal", got.Repository.Name)
		assert.Equal(t, []string{"fabric", "portal"}, f.tried)
	})

	t.Run("all fail", func(t *testing.T) {
		f := &fakeFetcher{}
		_, err := FetchFirst(context.Background(), f, cands)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jitpack: not found")
		assert.Len(t, f.tried, 3)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		f := &fakeFetcher{ok: "fabric"}
		_, err := FetchFirst(ctx, f, cands)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, f.tried)
	})
}
