package sequence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/stepsynth-go/internal/note"
)

type want struct {
	kind   note.Kind
	name   string
	octave int
	steps  int
}

func rest() want { return want{kind: note.KindRest, steps: 1} }

func checkSequence(t *testing.T, got Sequence, wants []want) {
	t.Helper()
	require.Len(t, got, len(wants))
	for i, w := range wants {
		n := got[i]
		if n.Kind != w.kind || n.Steps != w.steps {
			t.Fatalf("entry %d = %v (%s, %d steps), want %s with %d steps", i, n, n.Kind, n.Steps, w.kind, w.steps)
		}
		if w.kind != note.KindRest && (n.Name != w.name || n.Octave != w.octave) {
			t.Fatalf("entry %d = %s%d, want %s%d", i, n.Name, n.Octave, w.name, w.octave)
		}
	}
}

func TestParseSeparateNotes(t *testing.T) {
	checkSequence(t, Parse("A4 A4"), []want{
		{note.KindSounding, "A", 4, 1},
		{note.KindSounding, "A", 4, 1},
	})
}

func TestParseCollapsesWhitespaceRuns(t *testing.T) {
	checkSequence(t, Parse("A4 Bb2  C#5 "), []want{
		{note.KindSounding, "A", 4, 1},
		{note.KindSounding, "Bb", 2, 1},
		{note.KindSounding, "C#", 5, 1},
	})
	checkSequence(t, Parse("A4 - - -   "), []want{
		{note.KindSounding, "A", 4, 4},
		rest(), rest(), rest(),
	})
}

func TestParseTies(t *testing.T) {
	checkSequence(t, Parse("A4 - - -"), []want{
		{note.KindSounding, "A", 4, 4},
		rest(), rest(), rest(),
	})
	checkSequence(t, Parse("A4 - - - C2 - D4 G3 - -"), []want{
		{note.KindSounding, "A", 4, 4},
		rest(), rest(), rest(),
		{note.KindSounding, "C", 2, 2},
		rest(),
		{note.KindSounding, "D", 4, 1},
		{note.KindSounding, "G", 3, 3},
		rest(), rest(),
	})
}

func TestParseLeadingTiesAreRests(t *testing.T) {
	checkSequence(t, Parse("- - - -"), []want{rest(), rest(), rest(), rest()})
	checkSequence(t, Parse("- - E3 -"), []want{
		rest(), rest(),
		{note.KindSounding, "E", 3, 2},
		rest(),
	})
}

func TestParseKeepsBadNamesAsSilentSteps(t *testing.T) {
	seq := Parse("V3 - - -")
	checkSequence(t, seq, []want{
		{note.KindUnpitched, "V", 3, 4},
		rest(), rest(), rest(),
	})
	assert.Zero(t, seq.SoundingCount())
}

func TestParseRestMarkers(t *testing.T) {
	seq := Parse("C4 . _ D4")
	require.Len(t, seq, 4)
	assert.Equal(t, note.KindRest, seq[1].Kind)
	assert.Equal(t, note.KindRest, seq[2].Kind)
	assert.Equal(t, 2, seq.SoundingCount())
}

func TestParseEmpty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("   \t\n"))
}

func TestStrictParseReportsEveryBadToken(t *testing.T) {
	p := NewParser(ParserConfig{Strict: true})
	_, err := p.Parse("A4 V3 - C#5 Q")
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Index)
	assert.Equal(t, "V3", perr.Token)
	var nerr *note.ParseError
	assert.True(t, errors.As(err, &nerr))
	assert.Contains(t, err.Error(), "Q")

	seq, err := p.Parse("A4 - Bb2 .")
	require.NoError(t, err)
	assert.Len(t, seq, 4)
}

func TestLabelsAndLongest(t *testing.T) {
	seq := Parse("A4 - - C2 .")
	assert.Equal(t, []string{"A4", "-", "-", "C2", "."}, seq.Labels())
	assert.Equal(t, "A4 - - C2 .", seq.String())

	assert.Equal(t, 0, Longest())
	assert.Equal(t, 4, Longest(Parse("A1 A1"), Parse("A1 A1 A1 A1"), Parse("A1 A1 A1")))
}
