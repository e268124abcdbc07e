package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codalotl/aidoc/internal/apply"
	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/docgen"
	"github.com/codalotl/aidoc/internal/javasyntax"
	"github.com/codalotl/aidoc/internal/llmcomplete"
	"github.com/codalotl/aidoc/internal/prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const calcSrc = `package demo;

class Calc {
    private int total;

    int add(int a, int b) {
        return a + b;
    }

    /** Computes X. */
    public String toString() {
        return "calc";
    }

    void reset() {
        total = 0;
    }
}
`

// stubGen documents any request from its Expect shape. It tracks peak concurrency and can block until ctx is done.
type stubGen struct {
	delay time.Duration
	block bool

	mu       sync.Mutex
	calls    int
	inflight int
	peak     int
}

func (s *stubGen) Generate(ctx context.Context, req prompt.Request) (docgen.Doc, error) {
	s.mu.Lock()
	s.calls++
	s.inflight++
	s.peak = max(s.peak, s.inflight)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return docgen.Doc{}, fmt.Errorf("%w: %w", docgen.ErrCancelled, ctx.Err())
	}
	if s.block {
		<-ctx.Done()
		return docgen.Doc{}, fmt.Errorf("%w: %w", docgen.ErrCancelled, ctx.Err())
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	doc := docgen.Doc{Summary: "Documents " + req.Name + "."}
	for _, p := range req.Expect.Params {
		doc.Params = append(doc.Params, docgen.ParamDoc{Name: p, Description: "the " + p})
	}
	if req.Expect.Returns {
		doc.Return = "the result"
	}
	return doc, nil
}

func (s *stubGen) stats() (calls, peak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.peak
}

func javaFile(t *testing.T, path, src string, kinds ...decl.Kind) File {
	t.Helper()
	tree, err := javasyntax.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	return File{Path: path, Src: []byte(src), View: tree, Ranges: Ranges(tree, kinds...)}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Doc.IncludeTags = []config.Tag{config.TagParam, config.TagReturn}
	cfg.Client.Timeout = time.Second
	cfg.Client.BaseDelay = time.Millisecond
	cfg.Client.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	f := javaFile(t, "Calc.java", calcSrc)
	tree := f.View.(*javasyntax.Tree)
	add, ok := tree.Find("Calc.add")
	require.True(t, ok)
	f.Ranges = []decl.Range{{Start: add.Span.Start, End: add.Header.End}}

	cfg := testConfig()
	mock := llmcomplete.NewMock(map[string]string{
		"int add(": `{"summary": "Adds two integers.", "params": [{"name": "a", "description": "first addend"}, {"name": "b", "description": "second addend"}], "return": "the sum of a and b"}`,
	})
	co := New(docgen.New(mock, cfg.Client, nil), nil)

	res := co.Run(context.Background(), []File{f}, cfg)
	require.Len(t, res.Outcomes, 1)
	o := res.Outcomes[0]
	require.NoError(t, o.Err)
	assert.Equal(t, StatusApplied, o.Status)
	assert.Equal(t, decl.KindMethod, o.Kind)
	assert.Equal(t, "add", o.Name)
	assert.Equal(t, 1, res.Applied)
	assert.NotEmpty(t, res.RunID)

	out, err := apply.All(f.Src, res.MergeResults("Calc.java"))
	require.NoError(t, err)
	want := strings.Replace(calcSrc, "    int add(int a, int b) {", `    /**
     * Adds two integers.
     *
     * @param a first addend
     * @param b second addend
     * @return the sum of a and b
     */
    int add(int a, int b) {`, 1)
	assert.Equal(t, want, string(out))
}

func TestRunWholeFile(t *testing.T) {
	f := javaFile(t, "Calc.java", calcSrc)
	require.Len(t, f.Ranges, 5)

	gen := &stubGen{}
	res := New(gen, nil).Run(context.Background(), []File{f}, testConfig())

	require.Len(t, res.Outcomes, 5)
	var names []string
	for _, o := range res.Outcomes {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"Calc", "total", "add", "toString", "reset"}, names)
	assert.Equal(t, StatusSkipped, res.Outcomes[3].Status)
	assert.Equal(t, 4, res.Applied)
	assert.Equal(t, 1, res.Skipped)

	calls, _ := gen.stats()
	assert.Equal(t, 4, calls)

	out, err := apply.All(f.Src, res.MergeResults("Calc.java"))
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "/**\n * Documents Calc.\n */\nclass Calc {")
	assert.Contains(t, text, "    /** Documents total. */\n    private int total;")
	assert.Contains(t, text, "    /** Computes X. */\n    public String toString()")
	assert.Contains(t, text, "     * Documents reset.\n     */\n    void reset() {")
}

func TestRunKeepsExistingComments(t *testing.T) {
	f := javaFile(t, "Calc.java", calcSrc)
	tree := f.View.(*javasyntax.Tree)
	n, ok := tree.Find("Calc.toString")
	require.True(t, ok)
	f.Ranges = []decl.Range{{Start: n.Span.Start, End: n.Header.End}}

	gen := &stubGen{}
	res := New(gen, nil).Run(context.Background(), []File{f}, testConfig())
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, StatusSkipped, res.Outcomes[0].Status)

	out, err := apply.All(f.Src, res.MergeResults("Calc.java"))
	require.NoError(t, err)
	assert.Equal(t, calcSrc, string(out))

	calls, _ := gen.stats()
	assert.Zero(t, calls)
}

func TestRunRecordsEachFailure(t *testing.T) {
	f := javaFile(t, "Calc.java", calcSrc, decl.KindMethod)
	require.Len(t, f.Ranges, 3)
	f.Ranges = append(f.Ranges[:1], append([]decl.Range{{Start: 1, End: 5}}, f.Ranges[1:]...)...)

	res := New(&stubGen{}, nil).Run(context.Background(), []File{f}, testConfig())

	require.Len(t, res.Outcomes, 4)
	assert.Equal(t, StatusApplied, res.Outcomes[0].Status)
	assert.Equal(t, StatusFailed, res.Outcomes[1].Status)
	assert.Equal(t, StageExtract, res.Outcomes[1].Stage)
	assert.ErrorIs(t, res.Outcomes[1].Err, decl.ErrInvalidRange)
	assert.Equal(t, StatusSkipped, res.Outcomes[2].Status)
	assert.Equal(t, StatusApplied, res.Outcomes[3].Status)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
}

func TestRunGenerateFailure(t *testing.T) {
	f := javaFile(t, "Calc.java", calcSrc, decl.KindMethod)
	cfg := testConfig()
	mock := llmcomplete.NewMock(map[string]string{
		"int add(":    "not json",
		"void reset(": `{"summary": "Resets the total."}`,
	})
	co := New(docgen.New(mock, cfg.Client, nil), nil)

	res := co.Run(context.Background(), []File{f}, cfg)
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
	assert.Equal(t, StageGenerate, res.Outcomes[0].Stage)
	assert.ErrorIs(t, res.Outcomes[0].Err, docgen.ErrMalformedResponse)
	assert.Equal(t, StatusSkipped, res.Outcomes[1].Status)
	assert.Equal(t, StatusApplied, res.Outcomes[2].Status)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var b strings.Builder
	b.WriteString("class Many {\n")
	for i := range 12 {
		fmt.Fprintf(&b, "    void m%d() {\n    }\n\n", i)
	}
	b.WriteString("}\n")
	f := javaFile(t, "Many.java", b.String(), decl.KindMethod)
	require.Len(t, f.Ranges, 12)

	cfg := testConfig()
	cfg.Client.Concurrency = 2
	gen := &stubGen{delay: 5 * time.Millisecond}

	res := New(gen, nil).Run(context.Background(), []File{f}, cfg)
	assert.Equal(t, 12, res.Applied)

	calls, peak := gen.stats()
	assert.Equal(t, 12, calls)
	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestRunCancelled(t *testing.T) {
	src := strings.Replace(calcSrc, "    /** Computes X. */\n", "", 1)
	f := javaFile(t, "Calc.java", src)
	cfg := testConfig()
	cfg.Client.Concurrency = 1
	gen := &stubGen{block: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- New(gen, nil).Run(ctx, []File{f}, cfg) }()

	require.Eventually(t, func() bool {
		calls, _ := gen.stats()
		return calls == 1
	}, 2*time.Second, time.Millisecond)
	cancel()

	res := <-done
	require.Len(t, res.Outcomes, 5)
	assert.Equal(t, 5, res.Cancelled)
	for _, o := range res.Outcomes {
		assert.Equal(t, StatusCancelled, o.Status)
		assert.ErrorIs(t, o.Err, docgen.ErrCancelled)
	}
	calls, _ := gen.stats()
	assert.Equal(t, 1, calls)
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := javaFile(t, "Calc.java", calcSrc)
	gen := &stubGen{}
	res := New(gen, nil).Run(ctx, []File{f, f}, testConfig())
	assert.Len(t, res.Outcomes, 10)
	assert.Equal(t, 10, res.Cancelled)
	calls, _ := gen.stats()
	assert.Zero(t, calls)
}

func TestRanges(t *testing.T) {
	f := javaFile(t, "Calc.java", calcSrc, decl.KindField, decl.KindClass)
	require.Len(t, f.Ranges, 2)
	assert.True(t, strings.HasPrefix(calcSrc[f.Ranges[0].Start:], "class Calc"))
	assert.Equal(t, "private int total", calcSrc[f.Ranges[1].Start:f.Ranges[1].End])
}
