package merge

import (
	"strings"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/docgen"
	"github.com/codalotl/aidoc/internal/q/uni"
)

// minTextWidth keeps deeply indented comments readable when the configured line width is nearly used up by indentation.
const minTextWidth = 30

// continuation is the extra indent for wrapped tag lines.
const continuation = "    "

// Render returns the Javadoc block for doc without leading indentation on its first line; every following line starts with indent. Lines are wrapped so that, with
// indentation, they fit in cfg.MaxLineWidth display columns.
func Render(doc docgen.Doc, kind decl.Kind, indent string, cfg config.Doc) string {
	width := cfg.MaxLineWidth
	if width <= 0 {
		width = config.Default().Doc.MaxLineWidth
	}
	textWidth := max(width-uni.TextWidth(indent, nil)-len(" * "), minTextWidth)

	paragraphs := splitParagraphs(escape(doc.Summary))
	tags := tagLines(doc, cfg, textWidth)

	if kind == decl.KindField && len(tags) == 0 && len(paragraphs) == 1 {
		single := "/** " + paragraphs[0] + " */"
		if uni.TextWidth(indent, nil)+uni.TextWidth(single, nil) <= width {
			return single
		}
	}

	var lines []string
	for i, p := range paragraphs {
		if i > 0 {
			lines = append(lines, "")
			p = "<p>" + p
		}
		lines = append(lines, uni.Wrap(p, textWidth, nil)...)
	}
	if len(tags) > 0 {
		lines = append(lines, "")
		lines = append(lines, tags...)
	}

	var b strings.Builder
	b.WriteString("/**\n")
	for _, l := range lines {
		b.WriteString(indent)
		if l == "" {
			b.WriteString(" *\n")
			continue
		}
		b.WriteString(" * ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(indent)
	b.WriteString(" */")
	return b.String()
}

func tagLines(doc docgen.Doc, cfg config.Doc, width int) []string {
	var lines []string
	add := func(tag, text string) {
		wrapped := uni.Wrap(escape(tag+" "+text), max(width-len(continuation), minTextWidth), nil)
		for i, l := range wrapped {
			if i > 0 {
				l = continuation + l
			}
			lines = append(lines, l)
		}
	}

	for _, p := range doc.Params {
		add("@param "+p.Name, p.Description)
	}
	if doc.Return != "" {
		add("@return", doc.Return)
	}
	for _, t := range doc.Throws {
		add("@throws "+t.Type, t.Description)
	}
	if cfg.Has(config.TagSince) {
		if since := firstNonEmpty(cfg.Since, doc.Since); since != "" {
			add("@since", since)
		}
	}
	if cfg.Has(config.TagAuthor) {
		if author := firstNonEmpty(cfg.Author, doc.Author); author != "" {
			add("@author", author)
		}
	}
	return lines
}

// splitParagraphs splits text on blank lines. Whitespace inside a paragraph is collapsed later by wrapping.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// escape keeps generated text from closing the comment early.
func escape(s string) string {
	return strings.ReplaceAll(s, "*/", "*&#47;")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
