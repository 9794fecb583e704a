// Package segment splits long-form text into the units that are synthesized
// independently.
//
// Markdown-style headings ("# Title", "## Part two") are the primary
// boundaries: every heading opens a new segment that runs until the next
// heading. Documents without headings fall back to blank-line separated
// paragraphs. Fragments shorter than the minimum length are dropped.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinLength is the shortest trimmed segment kept by default.
const DefaultMinLength = 5

var (
	headingPattern   = regexp.MustCompile(`(?:^|\n)(#+ [^\n]+)`)
	paragraphPattern = regexp.MustCompile(`\n\n+`)
)

// Segment is one ordered piece of the source text.
type Segment struct {
	Index   int
	Content string
}

// Segmenter splits text into segments. The zero value uses DefaultMinLength.
type Segmenter struct {
	MinLength int
}

// New returns a Segmenter dropping segments shorter than minLength runes.
func New(minLength int) *Segmenter {
	return &Segmenter{MinLength: minLength}
}

// Segment splits text in document order. It has no side effects and
// returns the same result for the same input.
func (s *Segmenter) Segment(text string) []Segment {
	minLength := DefaultMinLength
	if s != nil && s.MinLength > 0 {
		minLength = s.MinLength
	}

	pieces := splitHeadings(text)
	if len(pieces) <= 1 {
		pieces = splitParagraphs(text)
	}

	segments := make([]Segment, 0, len(pieces))
	for _, p := range pieces {
		if utf8.RuneCountInString(p) < minLength {
			continue
		}
		segments = append(segments, Segment{Index: len(segments), Content: p})
	}

	return segments
}

// Parts returns only the segment contents.
func (s *Segmenter) Parts(text string) []string {
	segments := s.Segment(text)

	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = seg.Content
	}

	return parts
}

// splitHeadings groups text into heading-led sections. Prose before the
// first heading forms its own section. Returned pieces are trimmed and
// non-empty.
func splitHeadings(text string) []string {
	matches := headingPattern.FindAllStringSubmatchIndex(text, -1)

	var (
		pieces []string
		buf    strings.Builder
	)

	flush := func() {
		if p := strings.TrimSpace(buf.String()); p != "" {
			pieces = append(pieces, p)
		}
		buf.Reset()
	}

	last := 0
	for _, m := range matches {
		// m[0]:m[1] covers the optional leading newline, m[2]:m[3] the heading line.
		buf.WriteString(text[last:m[0]])
		flush()

		buf.WriteString(strings.TrimSpace(text[m[2]:m[3]]))
		last = m[1]
	}
	buf.WriteString(text[last:])
	flush()

	return pieces
}

func splitParagraphs(text string) []string {
	var pieces []string
	for _, p := range paragraphPattern.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			pieces = append(pieces, p)
		}
	}

	return pieces
}
