// Package batch runs the documentation pipeline over many declarations at once. Each declaration is independent: a failure is recorded against that declaration
// and the rest carry on. Remote calls are bounded by the configured concurrency.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/docgen"
	"github.com/codalotl/aidoc/internal/merge"
	"github.com/codalotl/aidoc/internal/prompt"
	"github.com/codalotl/aidoc/internal/q/health"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Generator produces documentation for a request. *docgen.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req prompt.Request) (docgen.Doc, error)
}

var _ Generator = (*docgen.Client)(nil)

// File is one source text and the declarations to document in it.
type File struct {
	Path   string
	Src    []byte
	View   decl.SyntaxView
	Ranges []decl.Range // each as accepted by decl.Extract
}

type Status int

const (
	StatusApplied Status = iota + 1
	StatusSkipped
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Stage names the pipeline step an outcome reached.
type Stage string

const (
	StageExtract  Stage = "extract"
	StagePrompt   Stage = "prompt"
	StageGenerate Stage = "generate"
	StageMerge    Stage = "merge"
)

// Outcome is the result for one requested declaration.
type Outcome struct {
	Path   string
	Range  decl.Range
	Kind   decl.Kind // KindUnsupported if extraction failed
	Name   string
	Status Status
	Stage  Stage        // the failing stage for StatusFailed; the last stage reached otherwise
	Err    error        // set for StatusFailed and StatusCancelled
	Merge  merge.Result // computed against File.Src; set for StatusApplied and StatusSkipped
}

// Result holds one Outcome per requested declaration, in request order.
type Result struct {
	RunID    string
	Outcomes []Outcome

	Applied   int
	Skipped   int
	Failed    int
	Cancelled int
	Elapsed   time.Duration
}

// MergeResults returns the merge results for path, in request order, ready for apply.All.
func (r Result) MergeResults(path string) []merge.Result {
	var out []merge.Result
	for _, o := range r.Outcomes {
		if o.Path == path && (o.Status == StatusApplied || o.Status == StatusSkipped) {
			out = append(out, o.Merge)
		}
	}
	return out
}

// Coordinator runs batches. It holds no per-run state and may run several batches concurrently.
type Coordinator struct {
	gen Generator
	health.Ctx
}

func New(gen Generator, logger *slog.Logger) *Coordinator {
	return &Coordinator{gen: gen, Ctx: health.NewCtx(logger)}
}

// Run documents every range in files and returns one outcome per range, in order. At most cfg.Client.Concurrency remote calls are in flight at once. If ctx is
// cancelled, in-flight calls are aborted and declarations that have not started are marked StatusCancelled.
func (co *Coordinator) Run(ctx context.Context, files []File, cfg config.Config) Result {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	log := co.With("run", res.RunID)

	type job struct {
		file *File
		r    decl.Range
	}
	var jobs []job
	for i := range files {
		for _, r := range files[i].Ranges {
			jobs = append(jobs, job{file: &files[i], r: r})
			res.Outcomes = append(res.Outcomes, Outcome{Path: files[i].Path, Range: r, Status: StatusCancelled, Err: context.Canceled})
		}
	}

	limit := max(cfg.Client.Concurrency, 1)
	log.Log("batch.start", "files", len(files), "declarations", len(jobs), "concurrency", limit)

	sem := semaphore.NewWeighted(int64(limit))
	var g errgroup.Group
	g.SetLimit(2 * limit)
	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res.Outcomes[i] = co.process(ctx, log, sem, j.file, j.r, cfg)
			return nil
		})
	}
	_ = g.Wait()

	for i := range res.Outcomes {
		o := &res.Outcomes[i]
		if o.Status == StatusCancelled && ctx.Err() != nil {
			o.Err = fmt.Errorf("%w: %w", docgen.ErrCancelled, context.Cause(ctx))
		}
		switch o.Status {
		case StatusApplied:
			res.Applied++
		case StatusSkipped:
			res.Skipped++
		case StatusFailed:
			res.Failed++
		case StatusCancelled:
			res.Cancelled++
		}
	}
	res.Elapsed = time.Since(start)
	log.Log("batch.done", "applied", res.Applied, "skipped", res.Skipped, "failed", res.Failed, "cancelled", res.Cancelled, "elapsed", res.Elapsed.Round(time.Millisecond))
	return res
}

// process runs one declaration through extract, prompt, generate, and merge.
func (co *Coordinator) process(ctx context.Context, log health.Ctx, sem *semaphore.Weighted, f *File, r decl.Range, cfg config.Config) Outcome {
	o := Outcome{Path: f.Path, Range: r, Stage: StageExtract}
	fail := func(stage Stage, err error) Outcome {
		o.Stage = stage
		o.Err = err
		o.Status = StatusFailed
		if errors.Is(err, docgen.ErrCancelled) {
			o.Status = StatusCancelled
		}
		log.Log("batch.declaration_failed", "path", f.Path, "offset", r.Start, "name", o.Name, "stage", string(stage), "err", err.Error())
		return o
	}

	if ctx.Err() != nil {
		o.Status = StatusCancelled
		o.Err = fmt.Errorf("%w: %w", docgen.ErrCancelled, ctx.Err())
		return o
	}

	c, err := decl.Extract(f.Src, r, f.View, decl.Options{MaxSnippetLines: cfg.Doc.MaxSnippetLines})
	if err != nil {
		return fail(StageExtract, err)
	}
	o.Kind, o.Name = c.Kind, c.Name

	if c.HasExistingComment && !cfg.Doc.OverwriteExisting {
		m, err := merge.Merge(f.Src, c, docgen.Doc{}, cfg.Doc)
		if err != nil {
			return fail(StageMerge, err)
		}
		o.Stage, o.Merge = StageMerge, m
		o.Status = StatusSkipped
		log.Debug("batch.skipped", "path", f.Path, "name", c.Name)
		return o
	}

	req, err := prompt.Build(c, cfg.Doc)
	if err != nil {
		return fail(StagePrompt, err)
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		o.Stage = StageGenerate
		o.Status = StatusCancelled
		o.Err = fmt.Errorf("%w: %w", docgen.ErrCancelled, err)
		return o
	}
	doc, err := co.gen.Generate(ctx, req)
	sem.Release(1)
	if err != nil {
		return fail(StageGenerate, err)
	}

	m, err := merge.Merge(f.Src, c, doc, cfg.Doc)
	if err != nil {
		return fail(StageMerge, err)
	}
	o.Stage, o.Merge = StageMerge, m
	o.Status = StatusApplied
	if m.Status == merge.StatusSkipped {
		o.Status = StatusSkipped
	}
	log.Debug("batch.merged", "path", f.Path, "name", c.Name, "kind", c.Kind.String())
	return o
}

// Ranges returns the extractor ranges (declaration start through header end) of every supported declaration in view, in source order. If kinds is non-empty, only
// those kinds are returned.
func Ranges(view decl.SyntaxView, kinds ...decl.Kind) []decl.Range {
	var out []decl.Range
	for _, n := range view.Declarations() {
		if !n.Kind.Supported() {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, n.Kind) {
			continue
		}
		out = append(out, decl.Range{Start: n.Span.Start, End: n.Header.End})
	}
	return out
}
