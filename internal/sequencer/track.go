package sequencer

import (
	"github.com/cbegin/stepsynth-go/internal/note"
	"github.com/cbegin/stepsynth-go/internal/sequence"
)

// Scheduler plays one note between two absolute times on the backend
// timeline. Implementations must not retain the note past the call.
type Scheduler interface {
	ScheduleNote(n note.Note, gateOn, gateOff float64)
}

// Track walks one sequence. Its cursor state belongs to whichever transport
// drives it; a track must not be shared between transports.
type Track struct {
	scheduler Scheduler
	seq       sequence.Sequence
	muted     bool

	index    int
	cursor   float64 // time of the step at index
	finished bool
}

func NewTrack(s Scheduler, seq sequence.Sequence, muted bool) *Track {
	return &Track{scheduler: s, seq: seq, muted: muted}
}

// Reset rewinds to the first step, starting at time start.
func (t *Track) Reset(start float64) {
	t.index = 0
	t.cursor = start
	t.finished = false
}

// Tick schedules every step that starts before end. Each entry takes one
// step; a sounding note is gated for its full tied length. At the end of the
// sequence the track wraps when loop is set and finishes otherwise.
func (t *Track) Tick(end, stepInterval float64, loop bool) {
	if t.finished {
		return
	}
	if len(t.seq) == 0 {
		t.finished = true
		return
	}
	for t.cursor < end {
		n := t.seq[t.index]
		if !t.muted && n.IsSounding() {
			t.scheduler.ScheduleNote(n, t.cursor, t.cursor+stepInterval*float64(n.Steps))
		}
		t.index++
		if t.index >= len(t.seq) {
			if !loop {
				t.finished = true
				return
			}
			t.index = 0
		}
		t.cursor += stepInterval
	}
}

// Finished reports whether a non-looping pass reached the end.
func (t *Track) Finished() bool { return t.finished }

// Cursor is the time of the next unscheduled step.
func (t *Track) Cursor() float64 { return t.cursor }

func (t *Track) Index() int { return t.index }

func (t *Track) Sequence() sequence.Sequence { return t.seq }

// SetSequence swaps the notes without rewinding. When the new sequence is
// shorter the index wraps into it.
func (t *Track) SetSequence(seq sequence.Sequence) {
	t.seq = seq
	if len(seq) == 0 {
		t.index = 0
		return
	}
	if t.index >= len(seq) {
		t.index %= len(seq)
	}
}

func (t *Track) Muted() bool { return t.muted }

// SetMuted silences the track. A muted track keeps advancing so it stays in
// step with the others.
func (t *Track) SetMuted(muted bool) { t.muted = muted }

// seek places the cursor at the given global step, as if the track had been
// playing since step zero.
func (t *Track) seek(cursor float64, step int, loop bool) {
	t.cursor = cursor
	t.finished = false
	switch {
	case len(t.seq) == 0:
		t.index = 0
	case loop:
		t.index = step % len(t.seq)
	case step >= len(t.seq):
		t.index = 0
		t.finished = true
	default:
		t.index = step
	}
}
