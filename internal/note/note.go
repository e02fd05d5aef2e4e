package note

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	ReferenceFrequency = 440.0
	MiddleOctave       = 4
	// MIDI key of the reference pitch A4.
	referenceKey = 69
)

// Kind separates notes that sound from the ones that only take up time.
type Kind int

const (
	KindRest Kind = iota
	KindSounding
	// KindUnpitched is a note whose text could not be resolved to a pitch.
	// It occupies its steps like a rest but keeps the original spelling.
	KindUnpitched
)

func (k Kind) String() string {
	switch k {
	case KindRest:
		return "rest"
	case KindSounding:
		return "sounding"
	case KindUnpitched:
		return "unpitched"
	default:
		return "unknown"
	}
}

// PitchClass indexes the twelve normalized note names, counting semitones up from A.
type PitchClass int

var pitchNames = [12]string{"A", "A#", "B", "C", "C#", "D", "D#", "E", "F", "F#", "G", "G#"}

// Ratios relative to A. These are rational, not equal-tempered.
var pitchRatios = [12]float64{
	1.0,
	16.0 / 15.0,
	9.0 / 8.0,
	6.0 / 5.0,
	5.0 / 4.0,
	4.0 / 3.0,
	45.0 / 32.0,
	3.0 / 2.0,
	8.0 / 5.0,
	5.0 / 3.0,
	9.0 / 5.0,
	15.0 / 8.0,
}

var enharmonics = map[string]PitchClass{
	"A": 0, "G##": 0, "Bbb": 0,
	"A#": 1, "Bb": 1, "Cbb": 1,
	"B": 2, "A##": 2, "Cb": 2,
	"C": 3, "B#": 3, "Dbb": 3,
	"C#": 4, "B##": 4, "Db": 4,
	"D": 5, "C##": 5, "Ebb": 5,
	"D#": 6, "Eb": 6, "Fbb": 6,
	"E": 7, "D##": 7, "Fb": 7,
	"F": 8, "E#": 8, "Gbb": 8,
	"F#": 9, "E##": 9, "Gb": 9,
	"G": 10, "F##": 10, "Abb": 10,
	"G#": 11, "Ab": 11,
}

func (pc PitchClass) String() string {
	if pc < 0 || int(pc) >= len(pitchNames) {
		return "?"
	}
	return pitchNames[pc]
}

// Ratio returns the pitch class ratio to A.
func (pc PitchClass) Ratio() float64 {
	if pc < 0 || int(pc) >= len(pitchRatios) {
		return 0
	}
	return pitchRatios[pc]
}

// Normalize resolves a spelled note name (including double sharps and flats)
// to its pitch class.
func Normalize(name string) (PitchClass, bool) {
	pc, ok := enharmonics[name]
	return pc, ok
}

// IsRestName reports whether name denotes silence.
func IsRestName(name string) bool {
	return name == "" || name == "." || name == "_"
}

// Frequency returns the frequency of a spelled name in an octave. The second
// result is false for rests and names that do not resolve to a pitch class.
func Frequency(name string, octave int) (float64, bool) {
	pc, ok := Normalize(name)
	if !ok {
		return 0, false
	}
	return pitchFrequency(pc, octave), true
}

func pitchFrequency(pc PitchClass, octave int) float64 {
	return pc.Ratio() * ReferenceFrequency * math.Pow(2, float64(octave-MiddleOctave))
}

// Note is one timed entry of a sequence.
type Note struct {
	Kind   Kind
	Name   string // as written, e.g. "Bb"
	Pitch  PitchClass
	Octave int
	Steps  int
}

// Sounding builds a pitched note.
func Sounding(pc PitchClass, octave int, steps int) Note {
	return Note{Kind: KindSounding, Name: pc.String(), Pitch: pc, Octave: octave, Steps: clampSteps(steps)}
}

// Rest builds a silent note.
func Rest(steps int) Note {
	return Note{Kind: KindRest, Steps: clampSteps(steps)}
}

// New builds a note from text fields the way the sequence parser sees them.
// It never fails: names that cannot be resolved, and octaves that are not
// integers, produce an unpitched note that occupies its steps silently.
func New(name string, octave string, steps int) Note {
	if IsRestName(name) && (octave == "" || IsRestName(octave)) {
		return Rest(steps)
	}
	pc, ok := Normalize(name)
	oct, err := strconv.Atoi(octave)
	if !ok || err != nil {
		n := Note{Kind: KindUnpitched, Name: name, Steps: clampSteps(steps)}
		if err == nil {
			n.Octave = oct
		}
		return n
	}
	return Note{Kind: KindSounding, Name: name, Pitch: pc, Octave: oct, Steps: clampSteps(steps)}
}

// FromToken splits a single note token: every character but the last is the
// name, the last is the octave digit.
func FromToken(token string, steps int) Note {
	if IsRestName(token) {
		return Rest(steps)
	}
	if len(token) < 2 {
		return Note{Kind: KindUnpitched, Name: token, Steps: clampSteps(steps)}
	}
	return New(token[:len(token)-1], token[len(token)-1:], steps)
}

// ParseError describes a note token that does not resolve to a pitch.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("note %q: %s", e.Token, e.Reason)
}

// Parse is the strict form of FromToken. Rest markers are accepted; anything
// else must be a known name followed by an octave digit.
func Parse(token string) (Note, error) {
	token = strings.TrimSpace(token)
	if IsRestName(token) {
		return Rest(1), nil
	}
	if len(token) < 2 {
		return Note{}, &ParseError{Token: token, Reason: "missing octave"}
	}
	name, octave := token[:len(token)-1], token[len(token)-1:]
	if _, err := strconv.Atoi(octave); err != nil {
		return Note{}, &ParseError{Token: token, Reason: "octave is not a digit"}
	}
	if _, ok := Normalize(name); !ok {
		return Note{}, &ParseError{Token: token, Reason: fmt.Sprintf("unknown pitch name %q", name)}
	}
	return New(name, octave, 1), nil
}

// IsSounding reports whether the note should produce a voice.
func (n Note) IsSounding() bool {
	return n.Kind == KindSounding
}

// Frequency is zero for anything that does not sound.
func (n Note) Frequency() float64 {
	if n.Kind != KindSounding {
		return 0
	}
	return pitchFrequency(n.Pitch, n.Octave)
}

// MIDIKey maps the note onto the equal-tempered key grid. Octaves in this
// model start at A, so A4 is key 69 and C4 sits three semitones above it.
func (n Note) MIDIKey() (uint8, bool) {
	if n.Kind != KindSounding {
		return 0, false
	}
	key := referenceKey + (n.Octave-MiddleOctave)*12 + int(n.Pitch)
	if key < 0 || key > 127 {
		return 0, false
	}
	return uint8(key), true
}

// WithSteps returns a copy with a new step count.
func (n Note) WithSteps(steps int) Note {
	n.Steps = clampSteps(steps)
	return n
}

func (n Note) String() string {
	switch n.Kind {
	case KindRest:
		return "."
	case KindSounding:
		return n.Name + strconv.Itoa(n.Octave)
	default:
		return n.Name + "?"
	}
}

func clampSteps(steps int) int {
	if steps < 1 {
		return 1
	}
	return steps
}
