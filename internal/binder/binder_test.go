package binder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verforge/verforge/internal/coords"
	"github.com/verforge/verforge/internal/directive"
	"github.com/verforge/verforge/internal/predicate"
	"github.com/verforge/verforge/internal/registry"
	"github.com/verforge/verforge/internal/testutil"
)

var sharedFiles = map[string]string{
	"com/example/Mod.java": "class Mod {\n" +
		"    /*#if GTE 1.20*/\n" +
		"    void render() {}\n" +
		"    /*#else*/\n" +
		"    void draw() {}\n" +
		"    /*#endif*/\n" +
		"}\n",
	"assets/lang.json": `{"name": "mod"}`,
}

type fixture struct {
	shared string
	base   string
	reg    *registry.Registry
	units  []*directive.Unit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		shared: filepath.Join(dir, "src"),
		base:   filepath.Join(dir, "build", "versions"),
		reg:    testutil.Registry(t, "1.19", "1.20", "1.21"),
	}
	testutil.WriteTree(t, f.shared, sharedFiles)

	files, err := Discover(f.shared, DiscoverOptions{})
	require.NoError(t, err)
	f.units, err = Prepare(files, directive.DefaultOptions())
	require.NoError(t, err)
	return f
}

func (f *fixture) binder(t *testing.T) *Binder {
	return New(Config{
		OutputBase: f.base,
		SharedRoot: f.shared,
		Descriptor: "build.gradle",
		Logger:     testutil.NewTestLogger(t),
		Now:        func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
}

func TestBind_WritesExpandedTree(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)

	bc, err := b.Bind(context.Background(), testutil.Target(t, f.reg, "1.19"), f.reg, f.units)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.base, "1.19"), bc.OutputRoot)
	assert.Equal(t, filepath.Clean(f.shared), bc.SharedRoot)
	assert.Equal(t, "build.gradle", bc.Descriptor)
	assert.Equal(t, []string{"assets/lang.json", "com/example/Mod.java"}, bc.Files)

	tree := testutil.ReadTree(t, bc.OutputRoot)
	assert.Equal(t, "class Mod {\n    void draw() {}\n}\n", tree["com/example/Mod.java"])
	assert.Equal(t, `{"name": "mod"}`, tree["assets/lang.json"])
	assert.Contains(t, tree, MarkerFile)

	m, err := ReadMarker(bc.OutputRoot)
	require.NoError(t, err)
	assert.Equal(t, "1.19", m.Target)
	assert.Equal(t, 0, m.Rank)
	assert.Equal(t, 2, m.Files)
	assert.Equal(t, "build.gradle", m.Descriptor)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), m.GeneratedAt)
}

func TestBind_IsolatedOutputs(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)
	before := testutil.ReadTree(t, f.shared)

	roots := make(map[string]string)
	for _, tgt := range f.reg.Targets() {
		bc, err := b.Bind(context.Background(), tgt, f.reg, f.units)
		require.NoError(t, err)
		for _, other := range roots {
			assert.NotEqual(t, other, bc.OutputRoot)
		}
		roots[tgt.ID] = bc.OutputRoot
	}

	assert.Equal(t, before, testutil.ReadTree(t, f.shared), "shared root must never be modified")

	newer := testutil.ReadTree(t, roots["1.21"])
	require.NoError(t, os.RemoveAll(roots["1.20"]))

	assert.Equal(t, newer, testutil.ReadTree(t, roots["1.21"]))
	assert.Contains(t, testutil.ReadTree(t, roots["1.19"])["com/example/Mod.java"], "draw")
	assert.Contains(t, newer["com/example/Mod.java"], "render")
}

func TestBind_RefusesUnmarkedDirectory(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)
	handmade := filepath.Join(f.base, "1.20")
	testutil.WriteTree(t, handmade, map[string]string{"notes.txt": "keep me"})

	_, err := b.Bind(context.Background(), testutil.Target(t, f.reg, "1.20"), f.reg, f.units)

	var bindE *ContextBindError
	require.True(t, errors.As(err, &bindE), "expected ContextBindError, got %v", err)
	assert.Equal(t, "1.20", bindE.Target)
	assert.Contains(t, err.Error(), "not a generated tree")
	assert.Equal(t, map[string]string{"notes.txt": "keep me"}, testutil.ReadTree(t, handmade))
}

func TestBind_RefusesForeignMarker(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)
	out := filepath.Join(f.base, "1.20")
	require.NoError(t, os.MkdirAll(out, 0o750))
	require.NoError(t, writeMarker(out, &Marker{Target: "1.19"}))

	_, err := b.Bind(context.Background(), testutil.Target(t, f.reg, "1.20"), f.reg, f.units)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `generated for target "1.19"`)
}

func TestBind_ReplacesPreviousGeneration(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)
	tgt := testutil.Target(t, f.reg, "1.21")

	bc, err := b.Bind(context.Background(), tgt, f.reg, f.units)
	require.NoError(t, err)
	testutil.WriteTree(t, bc.OutputRoot, map[string]string{"stale/Old.java": "old"})

	_, err = b.Bind(context.Background(), tgt, f.reg, f.units)
	require.NoError(t, err)

	tree := testutil.ReadTree(t, bc.OutputRoot)
	assert.NotContains(t, tree, "stale/Old.java")
	assert.Contains(t, tree, "com/example/Mod.java")
}

// cancellingRanker cancels the run the first time a version is ranked,
// i.e. while the first unit with directives is being expanded.
type cancellingRanker struct {
	predicate.Ranker
	cancel context.CancelFunc
}

func (c cancellingRanker) Rank(id string) (int, bool) {
	c.cancel()
	return c.Ranker.Rank(id)
}

func TestBind_CancellationLeavesNoPartialTree(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)
	tgt := testutil.Target(t, f.reg, "1.20")

	// directive unit first so cancellation happens between units
	units := []*directive.Unit{f.units[1], f.units[0]}
	require.True(t, units[0].HasDirectives())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := b.Bind(ctx, tgt, cancellingRanker{Ranker: f.reg, cancel: cancel}, units)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(f.base)
	require.NoError(t, err)
	assert.Empty(t, entries, "no output root and no staging directory may remain")
}

func TestBind_CancelledKeepsPreviousGeneration(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)
	tgt := testutil.Target(t, f.reg, "1.20")

	bc, err := b.Bind(context.Background(), tgt, f.reg, f.units)
	require.NoError(t, err)
	before := testutil.ReadTree(t, bc.OutputRoot)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Bind(ctx, tgt, f.reg, f.units)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, testutil.ReadTree(t, bc.OutputRoot))
}

func TestBind_OutputOverlappingSharedRoot(t *testing.T) {
	dir := t.TempDir()
	reg := testutil.Registry(t, "src")
	shared := filepath.Join(dir, "src")
	testutil.WriteTree(t, shared, map[string]string{"A.java": "a"})

	b := New(Config{OutputBase: dir, SharedRoot: shared})
	_, err := b.Bind(context.Background(), testutil.Target(t, reg, "src"), reg, nil)

	var bindE *ContextBindError
	require.True(t, errors.As(err, &bindE))
	assert.Contains(t, err.Error(), "overlaps shared root")
	assert.Equal(t, map[string]string{"A.java": "a"}, testutil.ReadTree(t, shared))
}

func TestBind_OutputInsideSharedRoot(t *testing.T) {
	shared := t.TempDir()
	reg := testutil.Registry(t, "1.20")
	testutil.WriteTree(t, shared, map[string]string{"A.java": "a"})
	unit := directive.Literal("A.java", []byte("a"))

	b := New(Config{OutputBase: filepath.Join(shared, "gen"), SharedRoot: shared})
	_, err := b.Bind(context.Background(), testutil.Target(t, reg, "1.20"), reg, []*directive.Unit{unit})

	var bindE *ContextBindError
	require.True(t, errors.As(err, &bindE), "expected ContextBindError, got %v", err)
	assert.Contains(t, err.Error(), "inside shared root")
	assert.Equal(t, map[string]string{"A.java": "a"}, testutil.ReadTree(t, shared))

	assert.Error(t, b.Clean("1.20"))
}

func TestBind_ExpansionErrorIsPerTarget(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)
	bad, err := directive.Parse([]byte("/*#if EQ 9.9*/x/*#endif*/"), "Bad.java", directive.DefaultOptions())
	require.NoError(t, err)

	_, err = b.Bind(context.Background(), testutil.Target(t, f.reg, "1.19"), f.reg, []*directive.Unit{bad})

	var bindE *ContextBindError
	require.True(t, errors.As(err, &bindE))
	var unknown *predicate.UnknownVersionReferenceError
	assert.True(t, errors.As(err, &unknown))
	_, statErr := os.Stat(filepath.Join(f.base, "1.19"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBind_RejectsEscapingUnit(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)

	_, err := b.Bind(context.Background(), testutil.Target(t, f.reg, "1.19"), f.reg,
		[]*directive.Unit{directive.Literal("../escape.txt", []byte("x"))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the output root")
	_, statErr := os.Stat(filepath.Join(f.base, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBind_ResolvesDependencies(t *testing.T) {
	f := newFixture(t)
	mapper, err := coords.New([]coords.Rule{
		{Match: "com.replaymod.preprocess", Module: "com.github.ReplayMod:preprocessor:${version}"},
	}, nil)
	require.NoError(t, err)

	rb := registry.NewBuilder()
	require.NoError(t, rb.Register("1.20", true,
		coords.Request{ID: "com.replaymod.preprocess", Version: "48e02ad"},
		coords.Request{ID: "foo.bar", Version: "1.0"},
	))
	reg, err := rb.Freeze()
	require.NoError(t, err)

	b := New(Config{OutputBase: f.base, SharedRoot: f.shared, Mapper: mapper})
	bc, err := b.Bind(context.Background(), testutil.Target(t, reg, "1.20"), reg, f.units)
	require.NoError(t, err)

	require.Len(t, bc.Dependencies, 2)
	assert.Equal(t, "com.github.ReplayMod:preprocessor:48e02ad", bc.Dependencies[0].String())
	assert.True(t, bc.Dependencies[0].Rewritten())
	assert.Equal(t, "foo.bar:1.0", bc.Dependencies[1].String())
	assert.False(t, bc.Dependencies[1].Rewritten())

	m, err := ReadMarker(bc.OutputRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.github.ReplayMod:preprocessor:48e02ad", "foo.bar:1.0"}, m.Dependencies)
}

func TestBind_NilMapperPassesThrough(t *testing.T) {
	b := New(Config{})
	deps := b.resolve([]coords.Request{{ID: "foo.bar", Version: "2"}})
	require.Len(t, deps, 1)
	assert.Equal(t, coords.Coordinate{ID: "foo.bar", Module: "foo.bar", Version: "2", Rule: -1}, deps[0])
}

func TestClean(t *testing.T) {
	f := newFixture(t)
	b := f.binder(t)

	bc, err := b.Bind(context.Background(), testutil.Target(t, f.reg, "1.19"), f.reg, f.units)
	require.NoError(t, err)
	require.NoError(t, b.Clean("1.19"))
	_, statErr := os.Stat(bc.OutputRoot)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, b.Clean("1.20"), "cleaning a missing tree is a no-op")

	testutil.WriteTree(t, filepath.Join(f.base, "1.21"), map[string]string{"mine.txt": "x"})
	assert.Error(t, b.Clean("1.21"))
}
