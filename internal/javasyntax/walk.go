package javasyntax

import (
	"strings"

	"github.com/codalotl/aidoc/internal/decl"

	sitter "github.com/smacker/go-tree-sitter"
)

var typeKinds = map[string]decl.Kind{
	"class_declaration":           decl.KindClass,
	"interface_declaration":       decl.KindInterface,
	"enum_declaration":            decl.KindEnum,
	"record_declaration":          decl.KindRecord,
	"annotation_type_declaration": decl.KindAnnotation,
}

var memberKinds = map[string]decl.Kind{
	"method_declaration":              decl.KindMethod,
	"constructor_declaration":         decl.KindConstructor,
	"compact_constructor_declaration": decl.KindConstructor,
	"field_declaration":               decl.KindField,
	"constant_declaration":            decl.KindField,
}

// unsupported declarations are reported so callers can see them, but they cannot be documented.
var unsupported = map[string]bool{
	"static_initializer":                  true,
	"enum_constant":                       true,
	"annotation_type_element_declaration": true,
	"block":                               true, // instance initializer
}

// bodyContainers are nodes whose named children are members of the enclosing type.
var bodyContainers = map[string]bool{
	"class_body":             true,
	"interface_body":         true,
	"enum_body":              true,
	"enum_body_declarations": true,
	"annotation_type_body":   true,
}

type walker struct {
	src   []byte
	nodes []decl.Node
	types []int // indexes into nodes of the enclosing type declarations, innermost last
}

// walkMembers visits the named children of a program or type body.
func (w *walker) walkMembers(parent *sitter.Node) {
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		child := parent.NamedChild(i)
		if child == nil {
			continue
		}
		typ := child.Type()
		switch {
		case bodyContainers[typ]:
			w.walkMembers(child)
		case typeKinds[typ] != decl.KindUnsupported:
			w.addType(child, typeKinds[typ])
		case memberKinds[typ] != decl.KindUnsupported:
			w.addMember(child, memberKinds[typ])
		case unsupported[typ] && len(w.types) > 0:
			w.addUnsupported(child)
		}
	}
}

func (w *walker) addType(n *sitter.Node, kind decl.Kind) {
	d := w.base(n, kind)
	if body := n.ChildByFieldName("body"); body != nil {
		d.Header.End = w.trimEnd(d.Span.Start, int(body.StartByte()))
	}
	if kind == decl.KindRecord {
		d.Params = w.params(n.ChildByFieldName("parameters"))
	}

	w.nodes = append(w.nodes, d)
	w.types = append(w.types, len(w.nodes)-1)
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkMembers(body)
	}
	w.types = w.types[:len(w.types)-1]
}

func (w *walker) addMember(n *sitter.Node, kind decl.Kind) {
	d := w.base(n, kind)

	switch kind {
	case decl.KindField:
		d.Type = w.text(n.ChildByFieldName("type"))
		var names []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c == nil || c.Type() != "variable_declarator" {
				continue
			}
			if name := c.ChildByFieldName("name"); name != nil {
				names = append(names, w.text(name))
				d.Header.End = int(name.EndByte())
				if dims := c.ChildByFieldName("dimensions"); dims != nil {
					d.Header.End = int(dims.EndByte())
				}
			}
		}
		d.Name = strings.Join(names, ", ")
	default:
		d.Type = w.text(n.ChildByFieldName("type"))
		d.Params = w.params(n.ChildByFieldName("parameters"))
		d.Throws = w.throws(n)
		if body := n.ChildByFieldName("body"); body != nil {
			d.Header.End = w.trimEnd(d.Span.Start, int(body.StartByte()))
			bodyRange := decl.Range{Start: int(body.StartByte()), End: int(body.EndByte())}
			for _, ti := range w.types {
				w.nodes[ti].Elide = append(w.nodes[ti].Elide, bodyRange)
			}
		}
	}

	w.nodes = append(w.nodes, d)
}

func (w *walker) addUnsupported(n *sitter.Node) {
	d := w.base(n, decl.KindUnsupported)
	if name := n.ChildByFieldName("name"); name != nil {
		d.Header.End = int(name.EndByte())
	}
	w.nodes = append(w.nodes, d)
}

// base fills in what every declaration has: span, header defaulting to the span minus a trailing semicolon, modifiers, annotations, name, enclosing type, and the
// comment directly above.
func (w *walker) base(n *sitter.Node, kind decl.Kind) decl.Node {
	d := decl.Node{
		Kind: kind,
		Raw:  n.Type(),
		Span: decl.Range{Start: int(n.StartByte()), End: int(n.EndByte())},
	}
	d.Header = decl.Range{Start: d.Span.Start, End: w.trimEnd(d.Span.Start, d.Span.End)}
	d.SigStart = d.Span.Start

	if name := n.ChildByFieldName("name"); name != nil {
		d.Name = w.text(name)
	}
	if len(w.types) > 0 {
		d.Enclosing = w.nodes[w.types[len(w.types)-1]].Name
	}

	if mods := w.modifiersNode(n); mods != nil {
		d.Modifiers, d.Annotations = w.modifiers(mods)
		d.SigStart = w.skipSpace(int(mods.EndByte()))
		if d.SigStart > d.Header.End {
			d.SigStart = d.Header.End
		}
	}

	prev := n.PrevSibling()
	for prev != nil && prev.Type() == "line_comment" {
		prev = prev.PrevSibling()
	}
	if prev != nil && prev.Type() == "block_comment" {
		r := decl.Range{Start: int(prev.StartByte()), End: int(prev.EndByte())}
		if decl.Attached(string(w.src[r.End:d.Span.Start])) {
			d.Comment = &r
		}
	}
	return d
}

func (w *walker) modifiersNode(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c != nil && c.Type() == "modifiers" {
			return c
		}
	}
	return nil
}

// modifiers splits a modifiers node into keywords and annotations, both in source order.
func (w *walker) modifiers(mods *sitter.Node) (keywords []string, annotations []string) {
	for i := 0; i < int(mods.ChildCount()); i++ {
		c := mods.Child(i)
		if c == nil {
			continue
		}
		switch c.Type() {
		case "marker_annotation", "annotation":
			annotations = append(annotations, strings.Join(strings.Fields(w.text(c)), " "))
		case "line_comment", "block_comment":
		default:
			keywords = append(keywords, w.text(c))
		}
	}
	return keywords, annotations
}

func (w *walker) params(list *sitter.Node) []decl.Param {
	if list == nil {
		return nil
	}
	var out []decl.Param
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		if p == nil {
			continue
		}
		switch p.Type() {
		case "formal_parameter":
			typ := w.text(p.ChildByFieldName("type"))
			name := p.ChildByFieldName("name")
			if dims := p.ChildByFieldName("dimensions"); dims != nil {
				typ += w.text(dims)
			}
			out = append(out, decl.Param{Name: w.text(name), Type: typ})
		case "spread_parameter":
			out = append(out, w.spread(p))
		}
	}
	return out
}

// spread handles a varargs parameter (ex: "final String... names"). Its name sits in a nested declarator in some grammar versions, so it is recovered from the text.
func (w *walker) spread(p *sitter.Node) decl.Param {
	start := int(p.StartByte())
	if mods := w.modifiersNode(p); mods != nil {
		start = w.skipSpace(int(mods.EndByte()))
	}
	text := string(w.src[start:p.EndByte()])
	i := strings.LastIndex(text, "...")
	if i < 0 {
		return decl.Param{Type: strings.TrimSpace(text)}
	}
	name := strings.TrimSpace(text[i+3:])
	if j := strings.IndexAny(name, "=["); j >= 0 {
		name = strings.TrimSpace(name[:j])
	}
	return decl.Param{Name: name, Type: strings.TrimSpace(text[:i]) + "..."}
}

func (w *walker) throws(n *sitter.Node) []string {
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() != "throws" {
			continue
		}
		for j := 0; j < int(c.NamedChildCount()); j++ {
			if t := c.NamedChild(j); t != nil {
				out = append(out, w.text(t))
			}
		}
	}
	return out
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

// trimEnd moves end back over whitespace and a trailing semicolon, never past start.
func (w *walker) trimEnd(start, end int) int {
	for end > start && isSpace(w.src[end-1]) {
		end--
	}
	if end > start && w.src[end-1] == ';' {
		end--
	}
	for end > start && isSpace(w.src[end-1]) {
		end--
	}
	return end
}

func (w *walker) skipSpace(i int) int {
	for i < len(w.src) && isSpace(w.src[i]) {
		i++
	}
	return i
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}
