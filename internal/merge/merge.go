// Package merge writes generated documentation into source text. It never touches the live document: Merge takes bytes and returns new bytes plus the single edit
// that produced them, and refuses to merge when the source no longer matches what was extracted.
package merge

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/docgen"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrRangeConflict is returned when the declaration or its comment is no longer where extraction found it, or when a merge would change text outside the comment.
var ErrRangeConflict = errors.New("merge: range conflict")

type Status int

const (
	StatusApplied Status = iota + 1
	StatusSkipped        // an existing comment was kept; Text equals the input
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Edit replaces Range in the original text with Text. An insertion has an empty Range.
type Edit struct {
	Range decl.Range
	Text  string
}

// Result is the outcome of one merge.
type Result struct {
	Status  Status
	Text    []byte // full new source text
	Edit    Edit   // zero when Status is StatusSkipped
	Comment string // rendered comment block
}

// Merge renders doc as a Javadoc comment and places it on the declaration described by c. An existing doc comment is replaced only if cfg.OverwriteExisting is set;
// otherwise the result is StatusSkipped with src unchanged. A new comment is inserted on its own lines directly above the declaration, indented like it.
func Merge(src []byte, c decl.Context, doc docgen.Doc, cfg config.Doc) (Result, error) {
	if err := checkRanges(src, c); err != nil {
		return Result{}, err
	}
	if c.HasExistingComment && !cfg.OverwriteExisting {
		return Result{Status: StatusSkipped, Text: bytes.Clone(src)}, nil
	}

	comment := Render(doc, c.Kind, c.Indent, cfg)
	eol := lineEnding(src, c.SourceRange.Start)
	if eol != "\n" {
		comment = strings.ReplaceAll(strings.ReplaceAll(comment, "\r\n", "\n"), "\n", eol)
	}

	var e Edit
	switch {
	case c.HasExistingComment:
		e = Edit{Range: c.CommentRange, Text: comment}
	case c.Inline:
		e = Edit{Range: decl.Range{Start: c.SourceRange.Start, End: c.SourceRange.Start}, Text: comment + eol + c.Indent}
	default:
		at := lineStart(src, c.SourceRange.Start)
		e = Edit{Range: decl.Range{Start: at, End: at}, Text: c.Indent + comment + eol}
	}

	out := Apply(src, e)
	if err := verify(src, out, e); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusApplied, Text: out, Edit: e, Comment: comment}, nil
}

// Apply returns a copy of src with e applied. The caller guarantees that e.Range is valid for src.
func Apply(src []byte, e Edit) []byte {
	out := make([]byte, 0, len(src)-e.Range.Len()+len(e.Text))
	out = append(out, src[:e.Range.Start]...)
	out = append(out, e.Text...)
	out = append(out, src[e.Range.End:]...)
	return out
}

// checkRanges confirms that the header and existing comment recorded in c are still at their recorded offsets in src.
func checkRanges(src []byte, c decl.Context) error {
	r := c.SourceRange
	if !r.Valid(len(src)) || r.Len() == 0 || c.Header == "" {
		return fmt.Errorf("%w: declaration range [%d,%d) is not valid for %d bytes", ErrRangeConflict, r.Start, r.End, len(src))
	}
	if !bytes.HasPrefix(src[r.Start:], []byte(c.Header)) {
		return fmt.Errorf("%w: %s %q moved or changed since extraction", ErrRangeConflict, c.Kind, c.Name)
	}
	if !c.HasExistingComment {
		return nil
	}
	cr := c.CommentRange
	if !cr.Valid(len(src)) || cr.End > r.Start || string(src[cr.Start:cr.End]) != c.ExistingComment {
		return fmt.Errorf("%w: comment on %s %q moved or changed since extraction", ErrRangeConflict, c.Kind, c.Name)
	}
	return nil
}

// verify diffs src against out and checks that every change lies in the edit's neighborhood. The diff may slide a change by up to len(e.Text) bytes when the
// inserted text repeats its surroundings (ex: indentation), so that much slack is allowed on each side.
func verify(src, out []byte, e Edit) error {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(src), string(out), false)

	lo, hi := -1, -1
	pos := 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += len(d.Text)
		case diffmatchpatch.DiffDelete:
			if lo < 0 {
				lo = pos
			}
			pos += len(d.Text)
			hi = pos
		case diffmatchpatch.DiffInsert:
			if lo < 0 {
				lo = pos
			}
			hi = max(hi, pos)
		}
	}
	if lo < 0 {
		if e.Range.Len() == 0 && e.Text == "" {
			return nil
		}
		// Replacing a comment with identical text.
		if string(src[e.Range.Start:e.Range.End]) == e.Text {
			return nil
		}
		return fmt.Errorf("%w: merge produced no change", ErrRangeConflict)
	}

	slack := len(e.Text)
	if lo < e.Range.Start-slack || hi > e.Range.End+slack {
		return fmt.Errorf("%w: merge changed text at [%d,%d), outside the comment at [%d,%d)", ErrRangeConflict, lo, hi, e.Range.Start, e.Range.End)
	}
	suffix := len(src) - e.Range.End
	if !bytes.Equal(src[:e.Range.Start], out[:e.Range.Start]) || !bytes.Equal(src[e.Range.End:], out[len(out)-suffix:]) {
		return fmt.Errorf("%w: merge changed text outside the comment", ErrRangeConflict)
	}
	return nil
}

// lineEnding returns the terminator of the line containing offset, falling back to the previous line's when that line is the last and unterminated.
func lineEnding(src []byte, offset int) string {
	end := offset + bytes.IndexByte(src[offset:], '\n')
	if end < offset {
		end = bytes.LastIndexByte(src[:offset], '\n')
	}
	if end > 0 && src[end-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

func lineStart(src []byte, offset int) int {
	for offset > 0 && src[offset-1] != '\n' {
		offset--
	}
	return offset
}
