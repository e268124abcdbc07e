package docgen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/prompt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// wireDoc is the JSON shape the model is told to answer with.
type wireDoc struct {
	Summary string `json:"summary"`
	Params  []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"params"`
	Return string `json:"return"`
	Throws []struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"throws"`
	Since  string `json:"since"`
	Author string `json:"author"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// Parse cleans a raw model reply and validates it against exp. Cleaning removes a <think>...</think> preamble and unwraps a markdown code fence; after that the text
// must be exactly one JSON object with no unknown keys. Parameters are reordered to declaration order. Content for tags that were not requested is dropped.
func Parse(reply string, exp prompt.Expect) (Doc, error) {
	text := cleanReply(reply)
	if text == "" {
		return Doc{}, malformed("empty reply")
	}

	var w wireDoc
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Doc{}, malformed("decoding JSON: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Doc{}, malformed("trailing data after JSON object")
	}

	doc := Doc{Summary: strings.TrimSpace(w.Summary)}
	if doc.Summary == "" {
		return Doc{}, malformed("empty summary")
	}

	if exp.Wants(config.TagParam) {
		byName := make(map[string]string, len(w.Params))
		for _, p := range w.Params {
			name := strings.TrimSpace(p.Name)
			if _, dup := byName[name]; dup {
				return Doc{}, malformed("parameter %q documented twice", name)
			}
			if !slices.Contains(exp.Params, name) {
				return Doc{}, malformed("documented parameter %q is not in the signature", name)
			}
			byName[name] = strings.TrimSpace(p.Description)
		}
		for _, name := range exp.Params {
			desc, ok := byName[name]
			if !ok || desc == "" {
				return Doc{}, malformed("parameter %q is not documented", name)
			}
			doc.Params = append(doc.Params, ParamDoc{Name: name, Description: desc})
		}
	}

	if exp.Returns && exp.Wants(config.TagReturn) {
		doc.Return = strings.TrimSpace(w.Return)
		if doc.Return == "" {
			return Doc{}, malformed("return value is not documented")
		}
	}

	if exp.Wants(config.TagThrows) {
		byType := make(map[string]string, len(w.Throws))
		for _, t := range w.Throws {
			declared, ok := matchThrows(exp.Throws, t.Type)
			if !ok {
				return Doc{}, malformed("documented exception %q is not declared", t.Type)
			}
			if _, dup := byType[declared]; dup {
				return Doc{}, malformed("exception %q documented twice", declared)
			}
			byType[declared] = strings.TrimSpace(t.Description)
		}
		for _, declared := range exp.Throws {
			if desc, ok := byType[declared]; ok && desc != "" {
				doc.Throws = append(doc.Throws, ThrowsDoc{Type: declared, Description: desc})
			}
		}
	}

	if exp.Wants(config.TagSince) {
		doc.Since = strings.TrimSpace(w.Since)
	}
	if exp.Wants(config.TagAuthor) {
		doc.Author = strings.TrimSpace(w.Author)
	}
	return doc, nil
}

// cleanReply strips reasoning output and a surrounding code fence.
func cleanReply(reply string) string {
	if i := strings.LastIndex(reply, "</think>"); i >= 0 {
		reply = reply[i+len("</think>"):]
	}
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "{") {
		return reply
	}
	if code, ok := firstFencedBlock([]byte(reply)); ok {
		return strings.TrimSpace(code)
	}
	return reply
}

func firstFencedBlock(src []byte) (string, bool) {
	root := goldmark.New().Parser().Parse(gmtext.NewReader(src))
	if root == nil {
		return "", false
	}
	var code string
	found := false
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		code = buf.String()
		found = true
		return ast.WalkStop, nil
	})
	return code, found
}

// matchThrows finds the declared type matching t, comparing simple names so that "IOException" matches "java.io.IOException".
func matchThrows(declared []string, t string) (string, bool) {
	t = simpleName(t)
	for _, d := range declared {
		if simpleName(d) == t {
			return d, true
		}
	}
	return "", false
}

func simpleName(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.IndexByte(t, '<'); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		t = t[i+1:]
	}
	return t
}
