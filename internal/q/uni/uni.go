// Package uni measures and wraps text for monospace display. Doc comments are written in whatever human language the user picks, so widths are counted in terminal columns
// over grapheme clusters rather than bytes or runes.
package uni

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/graphemes"
	"github.com/mattn/go-runewidth"
)

// Options control width calculation. Currently only relevant for East Asian code points and their locale.
type Options struct {
	EastAsianWidth   bool // if true, treats ambiguous East Asian code points as 2 wide. Use if the locale is one of CJK.
	TreatEmojiAsWide bool // Only considered if EastAsianWidth. If true, treats emoji as wide (2 columns).
}

// TextWidth returns the text width of str for monospace fonts. If opts is nil, locale is assumed to be non-East Asian.
func TextWidth[T string | []byte](str T, opts *Options) int {
	return textWidth(str, conditionFromOptions(opts))
}

// RuneWidth returns the width of r for monospace fonts. If opts is nil, locale is assumed to be non-East Asian.
func RuneWidth(r rune, opts *Options) int {
	return conditionFromOptions(opts).RuneWidth(r)
}

// Iterator iterates over grapheme clusters.
type Iterator[T string | []byte] struct {
	iter *graphemes.Iterator[T]
	cond *runewidth.Condition
}

// NewGraphemeIterator returns a new grapheme iterator for str (string or []byte). If opts is nil, locale is assumed to be non-East Asian.
func NewGraphemeIterator[T string | []byte](str T, opts *Options) *Iterator[T] {
	return newIterator(str, conditionFromOptions(opts))
}

func newIterator[T string | []byte](str T, cond *runewidth.Condition) *Iterator[T] {
	return &Iterator[T]{iter: newGraphemeIterator(str), cond: cond}
}

func (iter *Iterator[T]) Next() bool {
	return iter.iter.Next()
}

func (iter *Iterator[T]) Value() T {
	return iter.iter.Value()
}

// Start returns the byte position of the current grapheme in the original data.
func (iter *Iterator[T]) Start() int {
	return iter.iter.Start()
}

// End returns the byte position after the current grapheme in the original data.
func (iter *Iterator[T]) End() int {
	return iter.iter.End()
}

// TextWidth returns the display width of the current grapheme.
func (iter *Iterator[T]) TextWidth() int {
	return textWidth(iter.iter.Value(), iter.cond)
}

// Wrap collapses whitespace in text and splits it into lines no wider than width columns. Words are kept whole, except words containing wide (ex: CJK) characters: those
// scripts don't separate words with spaces, so they are broken between grapheme clusters. A single word wider than width that has no wide characters (ex: a URL) gets a
// line of its own rather than being split. A width <= 0 disables wrapping.
func Wrap(text string, width int, opts *Options) []string {
	cond := conditionFromOptions(opts)
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if width <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var lines []string
	var line strings.Builder
	lineWidth := 0
	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, strings.TrimRight(line.String(), " "))
			line.Reset()
			lineWidth = 0
		}
	}

	for _, word := range words {
		w := textWidth(word, cond)
		sep := 0
		if lineWidth > 0 {
			sep = 1
		}
		if lineWidth+sep+w <= width {
			if sep == 1 {
				line.WriteByte(' ')
			}
			line.WriteString(word)
			lineWidth += sep + w
			continue
		}

		if !hasWide(word, cond) {
			flush()
			line.WriteString(word)
			lineWidth = w
			continue
		}

		if sep == 1 {
			if lineWidth+1 < width {
				line.WriteByte(' ')
				lineWidth++
			} else {
				flush()
			}
		}
		iter := newIterator(word, cond)
		for iter.Next() {
			gw := iter.TextWidth()
			if lineWidth > 0 && lineWidth+gw > width {
				flush()
			}
			line.WriteString(iter.Value())
			lineWidth += gw
		}
	}
	flush()

	return lines
}

func hasWide(s string, cond *runewidth.Condition) bool {
	for _, r := range s {
		if cond.RuneWidth(r) >= 2 {
			return true
		}
	}
	return false
}

func conditionFromOptions(opts *Options) *runewidth.Condition {
	cond := runewidth.NewCondition()
	cond.EastAsianWidth = false
	cond.StrictEmojiNeutral = true

	if opts == nil {
		return cond
	}

	cond.EastAsianWidth = opts.EastAsianWidth
	if opts.EastAsianWidth && opts.TreatEmojiAsWide {
		cond.StrictEmojiNeutral = false
	}

	return cond
}

func newGraphemeIterator[T string | []byte](text T) *graphemes.Iterator[T] {
	switch v := any(text).(type) {
	case string:
		iter := graphemes.FromString(v)
		return any(&iter).(*graphemes.Iterator[T])
	case []byte:
		iter := graphemes.FromBytes(v)
		return any(&iter).(*graphemes.Iterator[T])
	default:
		panic("unsupported type")
	}
}

func textWidth[T string | []byte](text T, cond *runewidth.Condition) int {
	switch v := any(text).(type) {
	case string:
		return cond.StringWidth(v)
	case []byte:
		return cond.StringWidth(string(v))
	default:
		panic("unsupported type")
	}
}
