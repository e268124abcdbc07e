package decl

import (
	"fmt"
	"slices"
	"strings"
)

// snippet returns the declaration's source text, dedented by indent. If it has more than maxLines lines, member bodies listed in n.Elide are replaced with "{ ... }"
// first; if it is still too long, it is cut after maxLines lines.
func snippet(src []byte, n Node, indent string, maxLines int) string {
	text := string(src[n.Span.Start:n.Span.End])

	if countLines(text) > maxLines && len(n.Elide) > 0 {
		text = elide(src, n)
	}

	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = strings.TrimPrefix(lines[i], indent)
	}
	if len(lines) > maxLines {
		omitted := len(lines) - maxLines
		lines = append(lines[:maxLines], fmt.Sprintf("// ... %d more lines", omitted))
	}
	return strings.Join(lines, "\n")
}

func elide(src []byte, n Node) string {
	bodies := slices.Clone(n.Elide)
	slices.SortFunc(bodies, func(a, b Range) int { return a.Start - b.Start })

	var b strings.Builder
	pos := n.Span.Start
	for _, body := range bodies {
		if body.Start < pos || body.End > n.Span.End || body.Len() == 0 {
			continue
		}
		b.Write(src[pos:body.Start])
		b.WriteString("{ ... }")
		pos = body.End
	}
	b.Write(src[pos:n.Span.End])
	return b.String()
}

func countLines(s string) int {
	return strings.Count(s, "\n") + 1
}
