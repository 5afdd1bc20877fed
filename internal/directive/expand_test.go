package directive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verforge/verforge/internal/predicate"
	"github.com/verforge/verforge/internal/registry"
)

func mcRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	b := registry.NewBuilder()
	require.NoError(t, b.Register("1.19", true))
	require.NoError(t, b.Register("1.20", true))
	require.NoError(t, b.Register("1.21", false))
	r, err := b.Freeze()
	require.NoError(t, err)
	return r
}

func expandAll(t *testing.T, src string, opts Options) map[string]string {
	t.Helper()
	r := mcRegistry(t)
	u, err := Parse([]byte(src), "Unit.java", opts)
	require.NoError(t, err)

	out := make(map[string]string)
	for _, tgt := range r.Targets() {
		b, err := u.Expand(tgt, r)
		require.NoError(t, err, "expand for %s", tgt.ID)
		out[tgt.ID] = string(b)
	}
	return out
}

func TestExpand_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts Options
		want map[string]string
	}{
		{
			name: "inline gte",
			src:  "X/*#if GTE 1.20*/Y/*#endif*/Z",
			want: map[string]string{"1.19": "XZ", "1.20": "XYZ", "1.21": "XYZ"},
		},
		{
			name: "no directives",
			src:  "/* plain */ class A { int x = 2 */ 1; }",
			want: map[string]string{
				"1.19": "/* plain */ class A { int x = 2 */ 1; }",
				"1.20": "/* plain */ class A { int x = 2 */ 1; }",
				"1.21": "/* plain */ class A { int x = 2 */ 1; }",
			},
		},
		{
			name: "false outer collapses nested",
			src:  "<</*#if EQ 1.19*/a/*#if GTE 1.19*/b/*#endif*/c/*#endif*/>>",
			want: map[string]string{"1.19": "<<abc>>", "1.20": "<<>>", "1.21": "<<>>"},
		},
		{
			name: "elif chain",
			src:  "/*#if EQ 1.19*/old/*#elif EQ 1.20*/mid/*#else*/new/*#endif*/",
			want: map[string]string{"1.19": "old", "1.20": "mid", "1.21": "new"},
		},
		{
			name: "first true branch wins",
			src:  "/*#if GTE 1.19*/first/*#elif GTE 1.20*/second/*#endif*/",
			want: map[string]string{"1.19": "first", "1.20": "first", "1.21": "first"},
		},
		{
			name: "range and not",
			src:  "[/*#if RANGE 1.19 1.20*/r/*#endif*//*#if NOT (EQ 1.20)*/n/*#endif*/]",
			want: map[string]string{"1.19": "[rn]", "1.20": "[r]", "1.21": "[n]"},
		},
		{
			name: "infix sugar",
			src:  "/*#if < 1.20*/lt/*#endif*//*#if != 1.19*/ne/*#endif*/",
			want: map[string]string{"1.19": "lt", "1.20": "ne", "1.21": "ne"},
		},
		{
			name: "custom delimiters",
			src:  "a{#if EQ 1.20#}b{#endif#}c",
			opts: Options{Open: "{#", Close: "#}"},
			want: map[string]string{"1.19": "ac", "1.20": "abc", "1.21": "ac"},
		},
		{
			name: "empty input",
			src:  "",
			want: map[string]string{"1.19": "", "1.20": "", "1.21": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandAll(t, tt.src, tt.opts))
		})
	}
}

func TestExpand_TrimLines(t *testing.T) {
	src := "class A {\n" +
		"    /*#if GTE 1.20*/\n" +
		"    void newApi() {}\n" +
		"    /*#else*/\n" +
		"    void oldApi() {}\n" +
		"    /*#endif*/\n" +
		"}\n"

	got := expandAll(t, src, DefaultOptions())
	assert.Equal(t, "class A {\n    void oldApi() {}\n}\n", got["1.19"])
	assert.Equal(t, "class A {\n    void newApi() {}\n}\n", got["1.20"])
}

func TestExpand_TrimLinesDisabled(t *testing.T) {
	src := "a\n/*#if EQ 1.20*/\nb\n/*#endif*/\nc\n"

	trimmed := expandAll(t, src, DefaultOptions())
	assert.Equal(t, "a\nb\nc\n", trimmed["1.20"])
	assert.Equal(t, "a\nc\n", trimmed["1.19"])

	raw := expandAll(t, src, Options{})
	assert.Equal(t, "a\n\nb\n\nc\n", raw["1.20"])
	assert.Equal(t, "a\n\nc\n", raw["1.19"])
}

func TestExpand_Deterministic(t *testing.T) {
	r := mcRegistry(t)
	tgt, _ := r.Lookup("1.20")
	src := []byte("x/*#if OR (EQ 1.19) (GTE 1.21)*/a/*#else*/b/*#endif*/y")

	u, err := Parse(src, "d", DefaultOptions())
	require.NoError(t, err)

	first, err := u.Expand(tgt, r)
	require.NoError(t, err)
	for range 10 {
		again, err := u.Expand(tgt, r)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "xby", string(first))
}

func TestExpand_UnknownVersion(t *testing.T) {
	r := mcRegistry(t)
	tgt, _ := r.Lookup("1.19")

	// the unknown reference sits in a branch 1.19 would never reach
	src := "a/*#if EQ 1.19*/b/*#elif GTE 9.9*/c/*#endif*/d"
	u, err := Parse([]byte(src), "Unknown.java", DefaultOptions())
	require.NoError(t, err, "unknown versions are not a parse error")

	verr := u.Validate(r)
	require.Error(t, verr)

	var ref *ReferenceError
	require.True(t, errors.As(verr, &ref))
	assert.Equal(t, "Unknown.java", ref.Pos.Unit)
	assert.Equal(t, 17, ref.Pos.Offset)

	var unknown *predicate.UnknownVersionReferenceError
	require.True(t, errors.As(verr, &unknown))
	assert.Equal(t, "9.9", unknown.Version)

	out, err := u.Expand(tgt, r)
	assert.Nil(t, out)
	assert.True(t, errors.As(err, &unknown))
}

func TestExpand_ValidateReportsEveryReference(t *testing.T) {
	r := mcRegistry(t)
	src := "/*#if EQ 2.0*/a/*#endif*//*#if RANGE 1.19 3.0*/b/*#endif*/"
	u, err := Parse([]byte(src), "multi", DefaultOptions())
	require.NoError(t, err)

	err = u.Validate(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"2.0"`)
	assert.Contains(t, err.Error(), `"3.0"`)
}

func TestExpand_DisabledTargetsStillRank(t *testing.T) {
	r := mcRegistry(t)
	tgt, _ := r.Lookup("1.20")

	out, err := Expand([]byte("/*#if LTE 1.21*/ok/*#endif*/"), "u", tgt, r, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
}

func TestExpand_Literal(t *testing.T) {
	r := mcRegistry(t)
	tgt, _ := r.Lookup("1.19")
	data := []byte("\x00\x01/*#if EQ 9.9*/")

	out, err := Literal("blob.bin", data).Expand(tgt, r)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestExpand_ParseErrorSurfaces(t *testing.T) {
	r := mcRegistry(t)
	tgt, _ := r.Lookup("1.19")

	_, err := Expand([]byte("a/*#if EQ 1.19*/b"), "open.java", tgt, r, DefaultOptions())
	var mal *MalformedDirectiveError
	require.True(t, errors.As(err, &mal))
	assert.Equal(t, 1, mal.Offset())
}
