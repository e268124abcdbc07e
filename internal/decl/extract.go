package decl

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidRange is returned when the requested range is outside the text or does not line up with a declaration the syntax view knows about.
var ErrInvalidRange = errors.New("invalid declaration range")

// ErrUnsupportedDeclaration is returned for declarations that cannot carry a doc comment we generate (ex: static initializers, enum constants).
var ErrUnsupportedDeclaration = errors.New("unsupported declaration")

// DefaultMaxSnippetLines is used when Options.MaxSnippetLines is zero.
const DefaultMaxSnippetLines = 1000

// Options controls Extract.
type Options struct {
	MaxSnippetLines int // Snippets longer than this have member bodies elided, then are cut. Zero uses DefaultMaxSnippetLines.
}

// Context is everything the rest of the pipeline knows about one declaration. It is created by Extract and must be treated as read-only; nothing downstream mutates
// it.
type Context struct {
	Kind          Kind
	Name          string
	Signature     string   // modifiers + header with whitespace normalized; annotations excluded
	Modifiers     []string // sorted, deduplicated keyword modifiers
	Annotations   []string // in source order
	Parameters    []Param
	ReturnType    string // empty when there is no return type (constructors, types, fields)
	ThrownTypes   []string
	EnclosingType string

	ExistingComment    string // verbatim /** ... */ text, including custom tags
	HasExistingComment bool
	CommentRange       Range // valid only if HasExistingComment

	SourceRange Range  // the range Extract was called with
	Header      string // raw header text as it appears in the source; used to detect edits made after extraction
	Indent      string // leading whitespace of the declaration's line
	Inline      bool   // true if other code precedes the declaration on its line
	Snippet     string // declaration text handed to the model, dedented and possibly shortened
}

// Returns reports whether the declaration produces a value that deserves a @return tag.
func (c Context) Returns() bool {
	return c.ReturnType != "" && c.ReturnType != "void"
}

// ParamNames returns parameter names in declaration order.
func (c Context) ParamNames() []string {
	names := make([]string, len(c.Parameters))
	for i, p := range c.Parameters {
		names[i] = p.Name
	}
	return names
}

// Extract builds the Context for the declaration at r in src. r.Start must be the first byte of the declaration (its first annotation or modifier) and r.End must be
// either the end of the whole declaration or the end of its header, as reported by view. Any existing doc comment is captured verbatim; whitespace inside the signature
// is normalized so that formatting differences don't change it.
func Extract(src []byte, r Range, view SyntaxView, opts Options) (Context, error) {
	if view == nil || !r.Valid(len(src)) || r.Len() == 0 {
		return Context{}, fmt.Errorf("%w: [%d,%d) in %d bytes", ErrInvalidRange, r.Start, r.End, len(src))
	}
	n, ok := view.DeclarationAt(r)
	if !ok {
		return Context{}, fmt.Errorf("%w: no declaration starts at offset %d", ErrInvalidRange, r.Start)
	}
	if r.End != n.Span.End && r.End != n.Header.End {
		return Context{}, fmt.Errorf("%w: declaration at %d ends at %d (header %d), not %d", ErrInvalidRange, r.Start, n.Span.End, n.Header.End, r.End)
	}
	if !n.Span.Valid(len(src)) || !n.Header.Valid(len(src)) || n.SigStart < n.Span.Start || n.SigStart > n.Header.End {
		return Context{}, fmt.Errorf("%w: syntax view is out of date with the source text", ErrInvalidRange)
	}
	if !n.Kind.Supported() {
		return Context{}, fmt.Errorf("%w: %s", ErrUnsupportedDeclaration, n.Raw)
	}

	if opts.MaxSnippetLines <= 0 {
		opts.MaxSnippetLines = DefaultMaxSnippetLines
	}

	kind := n.Kind
	if kind == KindMethod && isTestMethod(n.Annotations) {
		kind = KindTestMethod
	}

	c := Context{
		Kind:          kind,
		Name:          n.Name,
		Modifiers:     modifierSet(n.Modifiers),
		Annotations:   slices.Clone(n.Annotations),
		ThrownTypes:   make([]string, 0, len(n.Throws)),
		EnclosingType: n.Enclosing,
		SourceRange:   r,
		Header:        string(src[n.Header.Start:n.Header.End]),
	}
	for _, p := range n.Params {
		c.Parameters = append(c.Parameters, Param{Name: p.Name, Type: NormalizeSignature(p.Type)})
	}
	for _, t := range n.Throws {
		c.ThrownTypes = append(c.ThrownTypes, NormalizeSignature(t))
	}
	if kind.IsCallable() && kind != KindConstructor {
		c.ReturnType = NormalizeSignature(n.Type)
	}

	sig := strings.Join(n.Modifiers, " ") + " " + string(src[n.SigStart:n.Header.End])
	c.Signature = strings.TrimRight(NormalizeSignature(sig), "{;= ")

	c.Indent, c.Inline = lineIndent(src, n.Span.Start)

	if n.Comment != nil && isDocComment(src, *n.Comment, n.Span.Start) {
		c.HasExistingComment = true
		c.CommentRange = *n.Comment
		c.ExistingComment = string(src[n.Comment.Start:n.Comment.End])
	}

	c.Snippet = snippet(src, n, c.Indent, opts.MaxSnippetLines)

	return c, nil
}

// NormalizeSignature collapses whitespace runs to single spaces, removes spaces just inside brackets and before commas, and puts exactly one space after each comma.
// Two spellings of the same signature normalize to the same string.
func NormalizeSignature(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == ' ' {
			var prev, next byte
			if b.Len() > 0 {
				prev = b.String()[b.Len()-1]
			}
			if i+1 < len(s) {
				next = s[i+1]
			}
			if prev == '(' || prev == '<' || prev == '[' || next == ')' || next == '>' || next == ']' || next == ',' {
				continue
			}
		}
		b.WriteByte(ch)
		if ch == ',' && i+1 < len(s) && s[i+1] != ' ' {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func modifierSet(mods []string) []string {
	out := slices.Clone(mods)
	slices.Sort(out)
	return slices.Compact(out)
}

var testAnnotations = map[string]bool{
	"Test":              true,
	"ParameterizedTest": true,
	"RepeatedTest":      true,
	"TestFactory":       true,
	"TestTemplate":      true,
}

func isTestMethod(annotations []string) bool {
	for _, a := range annotations {
		name := strings.TrimPrefix(strings.TrimSpace(a), "@")
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		if testAnnotations[strings.TrimSpace(name)] {
			return true
		}
	}
	return false
}

// isDocComment reports whether the comment at r is a /** doc comment that sits directly above the declaration starting at declStart.
func isDocComment(src []byte, r Range, declStart int) bool {
	if !r.Valid(len(src)) || r.End > declStart {
		return false
	}
	text := string(src[r.Start:r.End])
	if !strings.HasPrefix(text, "/**") || text == "/**/" || !strings.HasSuffix(text, "*/") {
		return false
	}
	return Attached(string(src[r.End:declStart]))
}

// Attached reports whether a comment followed by gap still attaches to the declaration after gap, which holds when gap is only whitespace and // line comments.
func Attached(gap string) bool {
	for _, line := range strings.Split(gap, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "//") {
			return false
		}
	}
	return true
}

// lineIndent returns the leading whitespace of the line containing offset, and whether non-whitespace text precedes offset on that line.
func lineIndent(src []byte, offset int) (indent string, inline bool) {
	start := lineStart(src, offset)
	prefix := src[start:offset]
	i := 0
	for i < len(prefix) && (prefix[i] == ' ' || prefix[i] == '\t') {
		i++
	}
	return string(prefix[:i]), i < len(prefix)
}

func lineStart(src []byte, offset int) int {
	for offset > 0 && src[offset-1] != '\n' {
		offset--
	}
	return offset
}
