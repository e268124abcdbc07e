package merge

import (
	"context"
	"strings"
	"testing"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/docgen"
	"github.com/codalotl/aidoc/internal/javasyntax"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calcSrc = `package demo;

class Calc {
    private int total;

    int add(int a, int b) {
        return a + b;
    }

    /** Computes X. */
    @Override
    public String toString() {
        return "calc";
    }
}
`

// extract parses src and extracts the declaration named name ("Type.member").
func extract(t *testing.T, src []byte, name string) decl.Context {
	t.Helper()
	tree, err := javasyntax.Parse(context.Background(), src)
	require.NoError(t, err)
	n, ok := tree.Find(name)
	require.True(t, ok, "declaration %s not found", name)
	c, err := decl.Extract(src, decl.Range{Start: n.Span.Start, End: n.Header.End}, tree, decl.Options{})
	require.NoError(t, err)
	return c
}

func addDoc() docgen.Doc {
	return docgen.Doc{
		Summary: "Adds two integers.",
		Params:  []docgen.ParamDoc{{Name: "a", Description: "first addend"}, {Name: "b", Description: "second addend"}},
		Return:  "the sum of a and b",
	}
}

func paramReturnConfig() config.Doc {
	cfg := config.Default().Doc
	cfg.Verbosity = config.VerbosityStandard
	cfg.IncludeTags = []config.Tag{config.TagParam, config.TagReturn}
	return cfg
}

func TestMergeInsertsAboveDeclaration(t *testing.T) {
	src := []byte(calcSrc)
	c := extract(t, src, "Calc.add")

	res, err := Merge(src, c, addDoc(), paramReturnConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)

	want := strings.Replace(calcSrc, "    int add(int a, int b) {", `    /**
     * Adds two integers.
     *
     * @param a first addend
     * @param b second addend
     * @return the sum of a and b
     */
    int add(int a, int b) {`, 1)
	if diff := cmp.Diff(want, string(res.Text)); diff != "" {
		t.Errorf("merged text mismatch (-want +got):\n%s", diff)
	}

	at := strings.Index(calcSrc, "    int add")
	assert.Equal(t, decl.Range{Start: at, End: at}, res.Edit.Range)
}

func TestMergeKeepsCRLFLineEndings(t *testing.T) {
	src := []byte(strings.ReplaceAll(calcSrc, "\n", "\r\n"))
	c := extract(t, src, "Calc.add")

	res, err := Merge(src, c, addDoc(), paramReturnConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)

	out := string(res.Text)
	assert.Equal(t, strings.Count(out, "\n"), strings.Count(out, "\r\n"), "every line must end in CRLF")
	assert.Contains(t, out, "total;\r\n\r\n    /**\r\n     * Adds two integers.\r\n")
	assert.Contains(t, out, "     */\r\n    int add(int a, int b) {\r\n")

	cfg := paramReturnConfig()
	cfg.OverwriteExisting = true
	again, err := Merge(res.Text, extract(t, res.Text, "Calc.add"), addDoc(), cfg)
	require.NoError(t, err)
	assert.Equal(t, out, string(again.Text))
}

func TestMergeSkipsCommentAboveLineComment(t *testing.T) {
	src := []byte(strings.Replace(calcSrc, "    int add(int a, int b) {", "    /** Computes X. */\n    // TODO tidy\n    int add(int a, int b) {", 1))
	c := extract(t, src, "Calc.add")
	require.True(t, c.HasExistingComment)
	assert.Equal(t, "/** Computes X. */", c.ExistingComment)

	res, err := Merge(src, c, addDoc(), paramReturnConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, string(src), string(res.Text))

	cfg := paramReturnConfig()
	cfg.OverwriteExisting = true
	res, err = Merge(src, c, addDoc(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(res.Text), "Adds two integers."))
	assert.NotContains(t, string(res.Text), "Computes X.")
	assert.Contains(t, string(res.Text), "     */\n    // TODO tidy\n    int add(int a, int b) {")
}

func TestMergeKeepsTextOutsideEdit(t *testing.T) {
	src := []byte(calcSrc)
	c := extract(t, src, "Calc.add")

	res, err := Merge(src, c, addDoc(), paramReturnConfig())
	require.NoError(t, err)

	e := res.Edit
	assert.Equal(t, calcSrc[:e.Range.Start], string(res.Text[:e.Range.Start]))
	assert.Equal(t, calcSrc[e.Range.End:], string(res.Text[e.Range.Start+len(e.Text):]))
	assert.Equal(t, e.Text, string(res.Text[e.Range.Start:e.Range.Start+len(e.Text)]))
}

func TestMergeSkipsExistingComment(t *testing.T) {
	src := []byte(calcSrc)
	c := extract(t, src, "Calc.toString")
	require.True(t, c.HasExistingComment)

	res, err := Merge(src, c, docgen.Doc{Summary: "Returns a label.", Return: "the label"}, paramReturnConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, res.Status)
	assert.Equal(t, calcSrc, string(res.Text))
	assert.Equal(t, Edit{}, res.Edit)
}

func TestMergeOverwritesExistingComment(t *testing.T) {
	src := []byte(calcSrc)
	c := extract(t, src, "Calc.toString")
	cfg := paramReturnConfig()
	cfg.OverwriteExisting = true
	doc := docgen.Doc{Summary: "Returns a label.", Return: "the label"}

	res, err := Merge(src, c, doc, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)

	want := strings.Replace(calcSrc, "/** Computes X. */", `/**
     * Returns a label.
     *
     * @return the label
     */`, 1)
	if diff := cmp.Diff(want, string(res.Text)); diff != "" {
		t.Errorf("merged text mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, c.CommentRange, res.Edit.Range)
}

func TestMergeIsIdempotent(t *testing.T) {
	cfg := paramReturnConfig()
	first, err := Merge([]byte(calcSrc), extract(t, []byte(calcSrc), "Calc.add"), addDoc(), cfg)
	require.NoError(t, err)

	again := extract(t, first.Text, "Calc.add")
	require.True(t, again.HasExistingComment)

	skipped, err := Merge(first.Text, again, addDoc(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.Equal(t, string(first.Text), string(skipped.Text))

	cfg.OverwriteExisting = true
	rewritten, err := Merge(first.Text, again, addDoc(), cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, rewritten.Status)
	if diff := cmp.Diff(string(first.Text), string(rewritten.Text)); diff != "" {
		t.Errorf("second merge changed text (-first +second):\n%s", diff)
	}
}

func TestMergeAnnotatedDeclaration(t *testing.T) {
	src := strings.Replace(calcSrc, "    /** Computes X. */\n", "", 1)
	c := extract(t, []byte(src), "Calc.toString")
	require.False(t, c.HasExistingComment)

	res, err := Merge([]byte(src), c, docgen.Doc{Summary: "Returns a label.", Return: "the label"}, paramReturnConfig())
	require.NoError(t, err)
	assert.Contains(t, string(res.Text), "     * @return the label\n     */\n    @Override\n    public String toString() {")
}

func TestMergeField(t *testing.T) {
	src := []byte(calcSrc)
	c := extract(t, src, "Calc.total")

	res, err := Merge(src, c, docgen.Doc{Summary: "Running total."}, paramReturnConfig())
	require.NoError(t, err)
	assert.Contains(t, string(res.Text), "class Calc {\n    /** Running total. */\n    private int total;\n")
}

func TestMergeRangeConflict(t *testing.T) {
	src := []byte(calcSrc)
	add := extract(t, src, "Calc.add")
	toString := extract(t, src, "Calc.toString")

	tests := []struct {
		name string
		src  string
		c    decl.Context
	}{
		{"declaration shifted", strings.Replace(calcSrc, "class Calc {", "class Calc {\n    // new line", 1), add},
		{"header edited", strings.Replace(calcSrc, "int add(int a, int b)", "int add(int a, int c)", 1), add},
		{"comment edited", strings.Replace(calcSrc, "Computes X.", "Computes Y.", 1), toString},
		{"text truncated", calcSrc[:20], add},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := paramReturnConfig()
			cfg.OverwriteExisting = true
			_, err := Merge([]byte(tt.src), tt.c, addDoc(), cfg)
			assert.ErrorIs(t, err, ErrRangeConflict)
		})
	}
}

func TestVerifyRejectsDistantChange(t *testing.T) {
	src := []byte("aaaa\nbbbb\ncccc\n")
	out := []byte("aaaa\nbbbb\nXXXX\n")
	err := verify(src, out, Edit{Range: decl.Range{Start: 0, End: 0}, Text: ""})
	assert.ErrorIs(t, err, ErrRangeConflict)

	assert.NoError(t, verify(src, Apply(src, Edit{Range: decl.Range{Start: 5, End: 5}, Text: "/** x */\n"}), Edit{Range: decl.Range{Start: 5, End: 5}, Text: "/** x */\n"}))
}
