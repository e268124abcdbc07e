package apply

import (
	"strings"
	"testing"

	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/merge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const src = "class A {\n    int x;\n    int y;\n}\n"

func insertAt(t *testing.T, before, text string) merge.Result {
	t.Helper()
	at := strings.Index(src, before)
	require.GreaterOrEqual(t, at, 0)
	return merge.Result{Status: merge.StatusApplied, Edit: merge.Edit{Range: decl.Range{Start: at, End: at}, Text: text}}
}

func TestAll(t *testing.T) {
	results := []merge.Result{
		insertAt(t, "    int x;", "    /** X. */\n"),
		{Status: merge.StatusSkipped, Text: []byte(src)},
		insertAt(t, "    int y;", "    /** Y. */\n"),
	}

	out, err := All([]byte(src), results)
	require.NoError(t, err)
	assert.Equal(t, "class A {\n    /** X. */\n    int x;\n    /** Y. */\n    int y;\n}\n", string(out))

	// Order of results does not matter.
	out2, err := All([]byte(src), []merge.Result{results[2], results[0]})
	require.NoError(t, err)
	assert.Equal(t, string(out), string(out2))
}

func TestAllReplace(t *testing.T) {
	text := "/** Old. */\nint x;\n"
	res := merge.Result{Status: merge.StatusApplied, Edit: merge.Edit{Range: decl.Range{Start: 0, End: 11}, Text: "/** New. */"}}
	out, err := All([]byte(text), []merge.Result{res})
	require.NoError(t, err)
	assert.Equal(t, "/** New. */\nint x;\n", string(out))
}

func TestAllOverlap(t *testing.T) {
	a := merge.Result{Status: merge.StatusApplied, Edit: merge.Edit{Range: decl.Range{Start: 2, End: 8}, Text: "a"}}
	b := merge.Result{Status: merge.StatusApplied, Edit: merge.Edit{Range: decl.Range{Start: 5, End: 12}, Text: "b"}}
	_, err := All([]byte(src), []merge.Result{a, b})
	assert.ErrorIs(t, err, ErrOverlap)

	same := insertAt(t, "    int x;", "    /** X. */\n")
	_, err = All([]byte(src), []merge.Result{same, same})
	assert.ErrorIs(t, err, ErrOverlap)

	bad := merge.Result{Status: merge.StatusApplied, Edit: merge.Edit{Range: decl.Range{Start: 5, End: 500}}}
	_, err = All([]byte(src), []merge.Result{bad})
	assert.Error(t, err)
}

func TestUnifiedDiff(t *testing.T) {
	out, err := All([]byte(src), []merge.Result{insertAt(t, "    int y;", "    /** Y. */\n")})
	require.NoError(t, err)

	d, err := UnifiedDiff("A.java", []byte(src), out, false)
	require.NoError(t, err)
	assert.Contains(t, d, "--- a/A.java\n")
	assert.Contains(t, d, "+++ b/A.java\n")
	assert.Contains(t, d, "+    /** Y. */\n")
	assert.Contains(t, d, "     int y;\n")
	assert.NotContains(t, d, "\x1b[")

	colored, err := UnifiedDiff("A.java", []byte(src), out, true)
	require.NoError(t, err)
	assert.Contains(t, colored, green+"+    /** Y. */"+reset+"\n")

	none, err := UnifiedDiff("A.java", []byte(src), []byte(src), true)
	require.NoError(t, err)
	assert.Empty(t, none)
}
