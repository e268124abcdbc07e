// Package apply lands merge results in source text on the host side. Results computed independently against the same original text are applied together, last
// offset first, so earlier edits don't shift later ranges.
package apply

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/codalotl/aidoc/internal/merge"

	"github.com/pmezard/go-difflib/difflib"
)

// ErrOverlap is returned when two edits touch the same text, or insert at the same offset.
var ErrOverlap = errors.New("apply: overlapping edits")

// All applies every StatusApplied result in results to src and returns the new text. Skipped results are ignored. src is not modified.
func All(src []byte, results []merge.Result) ([]byte, error) {
	var edits []merge.Edit
	for _, r := range results {
		if r.Status != merge.StatusApplied {
			continue
		}
		if !r.Edit.Range.Valid(len(src)) {
			return nil, fmt.Errorf("apply: edit [%d,%d) is outside the %d-byte text", r.Edit.Range.Start, r.Edit.Range.End, len(src))
		}
		edits = append(edits, r.Edit)
	}

	slices.SortFunc(edits, func(a, b merge.Edit) int {
		if a.Range.Start != b.Range.Start {
			return b.Range.Start - a.Range.Start
		}
		return b.Range.End - a.Range.End
	})
	for i := 1; i < len(edits); i++ {
		later, earlier := edits[i-1], edits[i]
		if earlier.Range.End > later.Range.Start || earlier.Range.Start == later.Range.Start {
			return nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlap, earlier.Range.Start, earlier.Range.End, later.Range.Start, later.Range.End)
		}
	}

	out := bytes.Clone(src)
	for _, e := range edits {
		out = merge.Apply(out, e)
	}
	return out, nil
}

// ANSI colors for UnifiedDiff.
const (
	reset    = "\x1b[0m"
	red      = "\x1b[31m"
	green    = "\x1b[32m"
	cyan     = "\x1b[36m"
	cyanBold = "\x1b[1;36m"
)

// UnifiedDiff renders a unified diff of oldText to newText with three lines of context, or "" if they are equal. If color, lines carry ANSI color codes.
func UnifiedDiff(name string, oldText, newText []byte, color bool) (string, error) {
	if bytes.Equal(oldText, newText) {
		return "", nil
	}
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(oldText)),
		B:        difflib.SplitLines(string(newText)),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("apply: diffing %s: %w", name, err)
	}
	if !color {
		return s, nil
	}

	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		body, nl := strings.CutSuffix(l, "\n")
		code := ""
		switch {
		case strings.HasPrefix(body, "---"), strings.HasPrefix(body, "+++"):
			code = cyanBold
		case strings.HasPrefix(body, "@@"):
			code = cyan
		case strings.HasPrefix(body, "-"):
			code = red
		case strings.HasPrefix(body, "+"):
			code = green
		}
		if code != "" {
			body = code + body + reset
		}
		b.WriteString(body)
		if nl {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
