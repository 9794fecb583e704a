package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contents(segments []Segment) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = s.Content
	}
	return out
}

func TestSegment_Empty(t *testing.T) {
	s := New(DefaultMinLength)

	assert.Empty(t, s.Segment(""))
	assert.Empty(t, s.Segment("   \n\n  \n"))
}

func TestSegment_SingleParagraph(t *testing.T) {
	s := New(DefaultMinLength)

	got := s.Segment("  Una sola frase larga sin saltos de linea.  ")
	require.Len(t, got, 1)
	assert.Equal(t, "Una sola frase larga sin saltos de linea.", got[0].Content)
	assert.Equal(t, 0, got[0].Index)
}

func TestSegment_Headings(t *testing.T) {
	s := New(DefaultMinLength)

	got := s.Segment("# A\nfoo\n# B\nbar")
	assert.Equal(t, []string{"# A\nfoo", "# B\nbar"}, contents(got))
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
}

func TestSegment_LeadingProseBecomesFirstSegment(t *testing.T) {
	s := New(DefaultMinLength)

	text := "Introduction before any heading.\n## Chapter one\nFirst body.\n\nMore of chapter one.\n## Chapter two\nSecond body."
	got := contents(s.Segment(text))

	assert.Equal(t, []string{
		"Introduction before any heading.",
		"## Chapter one\nFirst body.\n\nMore of chapter one.",
		"## Chapter two\nSecond body.",
	}, got)
}

func TestSegment_SingleHeadingFallsBackToParagraphs(t *testing.T) {
	s := New(DefaultMinLength)

	text := "# Only title\nFirst paragraph here.\n\n\nSecond paragraph here."
	got := contents(s.Segment(text))

	assert.Equal(t, []string{
		"# Only title\nFirst paragraph here.",
		"Second paragraph here.",
	}, got)
}

func TestSegment_ParagraphFallback(t *testing.T) {
	s := New(DefaultMinLength)

	text := "First paragraph.\n\nSecond paragraph.\n\n\n\nThird paragraph."
	assert.Equal(t, []string{"First paragraph.", "Second paragraph.", "Third paragraph."}, contents(s.Segment(text)))
}

func TestSegment_HashWithoutSpaceIsNotHeading(t *testing.T) {
	s := New(DefaultMinLength)

	text := "#hashtag line\nstill the same paragraph"
	got := s.Segment(text)
	require.Len(t, got, 1)
	assert.Equal(t, text, got[0].Content)
}

func TestSegment_DropsShortFragmentsAnywhere(t *testing.T) {
	s := New(DefaultMinLength)

	text := "ok\n\nA real paragraph.\n\n.\n\nAnother real one.\n\n  !! "
	got := s.Segment(text)

	assert.Equal(t, []string{"A real paragraph.", "Another real one."}, contents(got))
	for i, seg := range got {
		assert.Equal(t, i, seg.Index)
		assert.GreaterOrEqual(t, len([]rune(strings.TrimSpace(seg.Content))), DefaultMinLength)
	}
}

func TestSegment_MinLengthCountsRunes(t *testing.T) {
	s := New(5)

	// four runes, more than five bytes
	assert.Empty(t, s.Segment("ñáéí"))
	assert.Len(t, s.Segment("ñáéíó"), 1)
}

func TestSegment_CustomMinLength(t *testing.T) {
	s := New(20)

	text := "Short one.\n\nThis paragraph is comfortably long."
	assert.Equal(t, []string{"This paragraph is comfortably long."}, contents(s.Segment(text)))
}

func TestSegment_Idempotent(t *testing.T) {
	s := New(DefaultMinLength)
	text := "Preface text.\n# One\nalpha beta\n# Two\ngamma delta"

	assert.Equal(t, s.Segment(text), s.Segment(text))
}

func TestSegment_ZeroValue(t *testing.T) {
	var s Segmenter

	assert.Empty(t, s.Segment("tiny"))
	assert.Len(t, s.Segment("long enough"), 1)
}

func TestParts(t *testing.T) {
	s := New(DefaultMinLength)

	assert.Equal(t, []string{"# A\nfoo", "# B\nbar"}, s.Parts("# A\nfoo\n# B\nbar"))
	assert.Empty(t, s.Parts(""))
}
