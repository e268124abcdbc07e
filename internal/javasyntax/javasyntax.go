// Package javasyntax parses Java source with tree-sitter and exposes the declarations it finds as a decl.SyntaxView.
//
// Only declaration headers, modifiers, and the comments directly above declarations are inspected. Method bodies are never descended into, so local and anonymous
// classes are not reported.
package javasyntax

import (
	"context"
	"errors"
	"strings"

	"github.com/codalotl/aidoc/internal/decl"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// ErrParse is returned when tree-sitter produces no tree at all (ex: the parse was cancelled). Syntax errors inside the file are not fatal; see Tree.HasErrors.
var ErrParse = errors.New("javasyntax: parse failed")

// Tree is the declaration view of one parsed Java file. It holds plain values only; the tree-sitter tree is released before Parse returns.
type Tree struct {
	nodes     []decl.Node
	byStart   map[int]int // Span.Start -> index into nodes
	hasErrors bool
}

var _ decl.SyntaxView = (*Tree)(nil)

// Parse parses src as a Java compilation unit.
func Parse(ctx context.Context, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, errors.Join(ErrParse, err)
	}
	if tree == nil {
		return nil, ErrParse
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &walker{src: src}
	w.walkMembers(root)

	t := &Tree{
		nodes:     w.nodes,
		byStart:   make(map[int]int, len(w.nodes)),
		hasErrors: root.HasError(),
	}
	for i, n := range t.nodes {
		if _, ok := t.byStart[n.Span.Start]; !ok {
			t.byStart[n.Span.Start] = i
		}
	}
	return t, nil
}

// DeclarationAt returns the declaration whose span starts at r.Start.
func (t *Tree) DeclarationAt(r decl.Range) (decl.Node, bool) {
	i, ok := t.byStart[r.Start]
	if !ok {
		return decl.Node{}, false
	}
	return t.nodes[i], true
}

// Declarations returns every declaration in source order, including unsupported ones (ex: static initializers, enum constants).
func (t *Tree) Declarations() []decl.Node {
	out := make([]decl.Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// HasErrors reports whether tree-sitter had to recover from syntax errors. Declarations near an error may be missing or have surprising ranges.
func (t *Tree) HasErrors() bool {
	return t.hasErrors
}

// Find returns the first supported declaration named name, optionally qualified by its enclosing type as "Type.name".
func (t *Tree) Find(name string) (decl.Node, bool) {
	enclosing := ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		enclosing, name = name[:i], name[i+1:]
	}
	for _, n := range t.nodes {
		if !n.Kind.Supported() || n.Name != name {
			continue
		}
		if enclosing != "" && n.Enclosing != enclosing {
			continue
		}
		return n, true
	}
	return decl.Node{}, false
}
