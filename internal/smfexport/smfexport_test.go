package smfexport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/stepsynth-go/internal/song"
)

type noteSpan struct {
	key     uint8
	on, off int64
	channel uint8
}

func readNotes(t *testing.T, data []byte) (*smf.SMF, [][]noteSpan) {
	t.Helper()
	s, err := smf.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)
	var tracks [][]noteSpan
	for _, tr := range s.Tracks {
		var tick int64
		open := map[uint8]int{}
		var spans []noteSpan
		for _, ev := range tr {
			tick += int64(ev.Delta)
			var ch, key, vel uint8
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel):
				open[key] = len(spans)
				spans = append(spans, noteSpan{key: key, on: tick, channel: ch})
			case ev.Message.GetNoteOff(&ch, &key, &vel):
				spans[open[key]].off = tick
			}
		}
		tracks = append(tracks, spans)
	}
	return s, tracks
}

func TestEncodeSingleTrack(t *testing.T) {
	s := song.Song{
		Tempo: 120,
		Tracks: []song.Track{
			{Name: "Lead", Notes: song.Rows{"A4 - . C4 X9 A4"}, Volume: 1},
		},
	}
	data, err := Encode(s)
	require.NoError(t, err)

	sm, tracks := readNotes(t, data)
	assert.Equal(t, smf.MetricTicks(TicksPerQuarter), sm.TimeFormat)
	require.Len(t, tracks, 2, "tempo track plus one")
	assert.Empty(t, tracks[0])

	var bpm float64
	found := false
	for _, ev := range sm.Tracks[0] {
		if ev.Message.GetMetaTempo(&bpm) {
			found = true
		}
	}
	require.True(t, found)
	assert.InDelta(t, 120, bpm, 1e-6)

	assert.Equal(t, []noteSpan{
		{key: 69, on: 0, off: 2 * TicksPerStep},
		{key: 72, on: 3 * TicksPerStep, off: 4 * TicksPerStep},
		{key: 69, on: 5 * TicksPerStep, off: 6 * TicksPerStep},
	}, tracks[1])
}

func TestEncodeChordsAndChannels(t *testing.T) {
	s := song.Song{
		Tempo: 100,
		Tracks: []song.Track{
			{Notes: song.Rows{"C4 C4", "E4 E4"}, Volume: 1},
			{Notes: song.Rows{"A2"}, Volume: 1},
		},
	}
	data, err := Encode(s)
	require.NoError(t, err)
	_, tracks := readNotes(t, data)
	require.Len(t, tracks, 3)

	chords := tracks[1]
	require.Len(t, chords, 4)
	for _, n := range chords {
		assert.Equal(t, uint8(0), n.channel)
		assert.Equal(t, n.on+TicksPerStep, n.off)
	}
	assert.Equal(t, uint8(1), tracks[2][0].channel)
	assert.Equal(t, uint8(45), tracks[2][0].key)
}

func TestMutedTrackHasNoNotes(t *testing.T) {
	s := song.Default()
	s.Tracks[1].Muted = true
	data, err := Encode(s)
	require.NoError(t, err)
	_, tracks := readNotes(t, data)
	require.Len(t, tracks, 4)
	assert.NotEmpty(t, tracks[1])
	assert.Empty(t, tracks[2])
	assert.NotEmpty(t, tracks[3])
}

func TestTiedNoteExtendsTrack(t *testing.T) {
	s := song.Song{Tempo: 100, Tracks: []song.Track{{Notes: song.Rows{"C4 - -"}}}}
	data, err := Encode(s)
	require.NoError(t, err)
	sm, err := smf.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)
	var total int64
	for _, ev := range sm.Tracks[1] {
		total += int64(ev.Delta)
	}
	assert.Equal(t, int64(3*TicksPerStep), total)
}
