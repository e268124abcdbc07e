package decl

// Range is a half-open byte range [Start, End) into source text.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes in r.
func (r Range) Len() int { return r.End - r.Start }

// Valid reports whether r is a non-inverted range inside a text of length n.
func (r Range) Valid(n int) bool {
	return r.Start >= 0 && r.Start <= r.End && r.End <= n
}

// Overlaps reports whether r and o share at least one byte. Two empty ranges at the same offset also overlap, since edits at the same insertion point conflict.
func (r Range) Overlaps(o Range) bool {
	if r.Len() == 0 && o.Len() == 0 {
		return r.Start == o.Start
	}
	return r.Start < o.End && o.Start < r.End
}

// Param is a single formal parameter.
type Param struct {
	Name string
	Type string // ex: "int", "List<String>", "String..."
}

// Node is what a SyntaxView knows about one declaration. It is a plain value so the extractor does not depend on any particular parser.
type Node struct {
	Kind Kind
	Raw  string // the parser's own name for the node (ex: "static_initializer"); informational
	Name string // for multi-variable fields, names are joined with ", "

	Span     Range // annotations and modifiers through the closing brace or semicolon
	Header   Range // Span.Start up to (not including) the body; for fields, through the last declarator name
	SigStart int   // offset just after the modifiers; the signature text runs from here to Header.End

	Modifiers   []string // keyword modifiers in source order (ex: "public", "static")
	Annotations []string // annotation text in source order (ex: "@Override", "@Test")
	Type        string   // return type for methods, declared type for fields
	Params      []Param
	Throws      []string
	Enclosing   string // simple name of the innermost enclosing type; empty for top-level types

	Comment *Range  // the block comment (/* or /**) directly above the declaration, separated only by whitespace
	Elide   []Range // member bodies that may be replaced by "{ ... }" when the snippet is too long
}

// SyntaxView is the parsed view of one source text that the host supplies alongside it.
type SyntaxView interface {
	// DeclarationAt returns the declaration (supported or not) whose Span starts at r.Start. ok is false if no declaration starts there.
	DeclarationAt(r Range) (n Node, ok bool)

	// Declarations returns all declarations in source order, including unsupported ones.
	Declarations() []Node
}
