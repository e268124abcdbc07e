package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addContext() decl.Context {
	return decl.Context{
		Kind:          decl.KindMethod,
		Name:          "add",
		Signature:     "int add(int a, int b)",
		Parameters:    []decl.Param{{Name: "a", Type: "int"}, {Name: "b", Type: "int"}},
		ReturnType:    "int",
		EnclosingType: "Calc",
		Header:        "int add(int a, int b)",
		Snippet:       "int add(int a, int b) {\n    return a + b;\n}",
	}
}

func TestBuildMethod(t *testing.T) {
	cfg := config.Default().Doc
	req, err := Build(addContext(), cfg)
	require.NoError(t, err)

	assert.Contains(t, req.System, "single JSON object")
	assert.Contains(t, req.System, `"params"`)
	assert.Contains(t, req.User, "Document the following method")
	assert.Contains(t, req.User, "- Signature: int add(int a, int b)")
	assert.Contains(t, req.User, "- Parameters (in order): a (int), b (int)")
	assert.Contains(t, req.User, "- Declared in: Calc")
	assert.Contains(t, req.User, "return a + b;")
	assert.Contains(t, req.User, "Write in English.")
	assert.Contains(t, req.User, "Requested tags: param, return, throws.")
	assert.Contains(t, req.User, `"return" must describe the returned value`)

	assert.Equal(t, []string{"a", "b"}, req.Expect.Params)
	assert.True(t, req.Expect.Returns)
	assert.True(t, req.Expect.Wants(config.TagParam))
	assert.False(t, req.Expect.Wants(config.TagAuthor))
	assert.Len(t, req.Fingerprint, 64)
	assert.Greater(t, req.Tokens, 50)
	assert.False(t, req.Truncated)
}

func TestBuildIsDeterministic(t *testing.T) {
	cfg := config.Default().Doc
	a, err := Build(addContext(), cfg)
	require.NoError(t, err)
	b, err := Build(addContext(), cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFingerprint(t *testing.T) {
	cfg := config.Default().Doc
	base := Fingerprint(addContext(), cfg)

	reformatted := addContext()
	reformatted.Signature = "int  add( int a,\n int b )"
	assert.Equal(t, base, Fingerprint(reformatted, cfg))

	withComment := addContext()
	withComment.ExistingComment = "/** Adds. */"
	assert.NotEqual(t, base, Fingerprint(withComment, cfg))

	otherSig := addContext()
	otherSig.Signature = "long add(long a, long b)"
	assert.NotEqual(t, base, Fingerprint(otherSig, cfg))

	terse := cfg
	terse.Verbosity = config.VerbosityTerse
	assert.NotEqual(t, base, Fingerprint(addContext(), terse))
}

func TestBuildTemplatesPerKind(t *testing.T) {
	cfg := config.Default().Doc
	tests := []struct {
		kind decl.Kind
		want string
	}{
		{decl.KindClass, "type-level Javadoc"},
		{decl.KindRecord, "document each component as a parameter"},
		{decl.KindField, "Document the following field"},
		{decl.KindTestMethod, "scenario under test"},
		{decl.KindConstructor, "Document the following constructor"},
	}
	for _, tt := range tests {
		c := addContext()
		c.Kind = tt.kind
		req, err := Build(c, cfg)
		require.NoError(t, err, tt.kind.String())
		assert.Contains(t, req.User, tt.want, tt.kind.String())
		assert.Equal(t, tt.kind, req.Kind)
	}

	c := addContext()
	c.Kind = decl.KindUnsupported
	_, err := Build(c, cfg)
	assert.ErrorIs(t, err, decl.ErrUnsupportedDeclaration)
}

func TestBuildExistingCommentAndNoTags(t *testing.T) {
	cfg := config.Default().Doc
	cfg.IncludeTags = nil
	cfg.TargetLanguage = "Chinese"

	c := addContext()
	c.ExistingComment = "/**\n * Adds numbers.\n * @custom keep\n */"
	req, err := Build(c, cfg)
	require.NoError(t, err)

	assert.Contains(t, req.User, "Write in Chinese.")
	assert.Contains(t, req.User, "No tags were requested")
	assert.Contains(t, req.User, "@custom keep")
	assert.NotContains(t, req.User, `"return" must describe`)
	assert.Empty(t, req.Expect.Tags)
	assert.Equal(t, []string{"a", "b"}, req.Expect.Params)
}

func TestBuildTokenBudget(t *testing.T) {
	var body strings.Builder
	body.WriteString("int add(int a, int b) {\n")
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&body, "    total += compute(a, b, %d);\n", i)
	}
	body.WriteString("}")

	c := addContext()
	c.Snippet = body.String()

	cfg := config.Default().Doc
	cfg.MaxPromptTokens = 0
	full, err := Build(c, cfg)
	require.NoError(t, err)

	cfg.MaxPromptTokens = full.Tokens / 2
	req, err := Build(c, cfg)
	require.NoError(t, err)
	assert.True(t, req.Truncated)
	assert.LessOrEqual(t, req.Tokens, cfg.MaxPromptTokens)
	assert.Contains(t, req.User, "int add(int a, int b) {")
	assert.Contains(t, req.User, "// ... truncated")
	assert.Equal(t, full.Fingerprint, req.Fingerprint)

	cfg.MaxPromptTokens = 10
	_, err = Build(c, cfg)
	assert.ErrorIs(t, err, ErrTokenBudgetExceeded)
}
