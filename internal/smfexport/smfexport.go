// Package smfexport writes songs as Standard MIDI Files.
package smfexport

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/stepsynth-go/internal/song"
)

const (
	// TicksPerQuarter is the file resolution. A step is a sixteenth note.
	TicksPerQuarter = 960
	TicksPerStep    = TicksPerQuarter / 4
	Velocity        = 100
)

type event struct {
	tick uint32
	on   bool
	key  uint8
}

// Encode renders one pass of the song: a tempo track followed by one track
// per song track, each on its own channel. Muted tracks are written without
// notes so track numbering stays aligned. Notes outside the MIDI key range
// are dropped.
func Encode(s song.Song) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Write(w io.Writer, s song.Song) error {
	tempo := s.Tempo
	if tempo <= 0 {
		tempo = song.DefaultTempo
	}
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var meta smf.Track
	meta.Add(0, smf.MetaMeter(4, 4))
	meta.Add(0, smf.MetaTempo(tempo))
	meta.Close(0)
	if err := sm.Add(meta); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	for i, t := range s.Tracks {
		ch := uint8(i % 16)
		var events []event
		if !t.Muted {
			events = trackEvents(t)
		}
		var track smf.Track
		if t.Name != "" {
			track.Add(0, smf.MetaTrackSequenceName(t.Name))
		}
		var last uint32
		for _, ev := range events {
			delta := ev.tick - last
			last = ev.tick
			if ev.on {
				track.Add(delta, midi.NoteOn(ch, ev.key, Velocity))
			} else {
				track.Add(delta, midi.NoteOff(ch, ev.key))
			}
		}
		end := uint32(maxSteps(t)) * TicksPerStep
		var tail uint32
		if end > last {
			tail = end - last
		}
		track.Close(tail)
		if err := sm.Add(track); err != nil {
			return fmt.Errorf("add track %d: %w", i+1, err)
		}
	}

	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// trackEvents lists note ons and offs for every row, offs first when they
// share a tick so a repeated key retriggers cleanly.
func trackEvents(t song.Track) []event {
	var events []event
	for _, seq := range t.Sequences() {
		for step, n := range seq {
			key, ok := n.MIDIKey()
			if !ok {
				continue
			}
			on := uint32(step) * TicksPerStep
			off := on + uint32(n.Steps)*TicksPerStep
			events = append(events, event{tick: on, on: true, key: key}, event{tick: off, key: key})
		}
	}
	sort.SliceStable(events, func(a, b int) bool {
		if events[a].tick != events[b].tick {
			return events[a].tick < events[b].tick
		}
		return !events[a].on && events[b].on
	})
	return events
}

// maxSteps includes notes tied past the last step.
func maxSteps(t song.Track) int {
	steps := 0
	for _, seq := range t.Sequences() {
		steps = max(steps, len(seq))
		for i, n := range seq {
			if n.IsSounding() {
				steps = max(steps, i+n.Steps)
			}
		}
	}
	return steps
}
