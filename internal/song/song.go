// Package song describes what a player plays: tempo, loop mode, master
// amplitude and the tracks, each an instrument with rows of note text.
package song

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/stepsynth-go/internal/instrument"
	"github.com/cbegin/stepsynth-go/internal/sequence"
)

const (
	DefaultTempo     = 100.0
	DefaultAmplitude = 0.25
)

type Song struct {
	Tempo     float64 `yaml:"tempo"`
	Loop      bool    `yaml:"loop"`
	Amplitude float64 `yaml:"amplitude"`
	Tracks    []Track `yaml:"tracks"`
}

// Delay is the feedback delay on a track's channel. A zero time disables it.
type Delay struct {
	Time     float64 `yaml:"time"`
	Feedback float64 `yaml:"feedback"`
}

// Track is one instrument and the note rows it plays. Each row runs as its
// own sequence, so a track with several rows plays chords.
type Track struct {
	Name       string            `yaml:"name"`
	Preset     string            `yaml:"preset,omitempty"`
	Instrument instrument.Config `yaml:"instrument"`
	Notes      Rows              `yaml:"notes"`
	Muted      bool              `yaml:"muted,omitempty"`
	Volume     float64           `yaml:"volume"`
	Delay      Delay             `yaml:"delay,omitempty"`
}

// Rows is note text, one string per row. In YAML it is either a single
// string or a list of them.
type Rows []string

func (r *Rows) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*r = Rows{s}
		return nil
	}
	var rows []string
	if err := value.Decode(&rows); err != nil {
		return err
	}
	*r = rows
	return nil
}

// UnmarshalYAML starts every track from its preset, or the default
// instrument, so files only need to spell out what differs.
func (t *Track) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := value.Decode(&head); err != nil {
		return err
	}
	inst := instrument.DefaultConfig()
	if head.Preset != "" {
		p, ok := Preset(head.Preset)
		if !ok {
			return fmt.Errorf("line %d: unknown preset %q", value.Line, head.Preset)
		}
		inst = p
	}
	type plain Track
	tr := plain{Volume: 1, Instrument: inst}
	if err := value.Decode(&tr); err != nil {
		return err
	}
	*t = Track(tr)
	return nil
}

// Parse reads a YAML song. Fields left out keep the defaults of an empty
// song: tempo 100, looping, amplitude 0.25.
func Parse(data []byte) (Song, error) {
	s := Song{Tempo: DefaultTempo, Loop: true, Amplitude: DefaultAmplitude}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Song{}, fmt.Errorf("parse song: %w", err)
	}
	return s, nil
}

func Load(path string) (Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Song{}, err
	}
	s, err := Parse(data)
	if err != nil {
		return Song{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Marshal writes the song back out as YAML.
func (s Song) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Problem is one thing Validate found wrong.
type Problem struct {
	Track int // -1 for song-level problems
	Err   error
}

// ValidationError collects every problem in a song.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	for i, p := range e.Problems {
		if i > 0 {
			b.WriteString("; ")
		}
		if p.Track >= 0 {
			fmt.Fprintf(&b, "track %d: ", p.Track+1)
		}
		b.WriteString(p.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, len(e.Problems))
	for i, p := range e.Problems {
		errs[i] = p.Err
	}
	return errs
}

var ErrNoTracks = errors.New("song has no tracks")

// Validate checks the song strictly: every note token must sound or rest,
// and every instrument must be playable. Players accept songs that fail it;
// malformed notes just stay silent.
func (s Song) Validate() error {
	var problems []Problem
	add := func(track int, err error) {
		problems = append(problems, Problem{Track: track, Err: err})
	}
	if s.Tempo <= 0 {
		add(-1, fmt.Errorf("tempo must be positive, got %v", s.Tempo))
	}
	if s.Amplitude < 0 {
		add(-1, fmt.Errorf("amplitude must not be negative, got %v", s.Amplitude))
	}
	if len(s.Tracks) == 0 {
		add(-1, ErrNoTracks)
	}
	strict := sequence.NewParser(sequence.ParserConfig{Strict: true})
	for i, t := range s.Tracks {
		if err := t.Instrument.Validate(); err != nil {
			add(i, err)
		}
		for r, row := range t.Notes {
			if _, err := strict.Parse(row); err != nil {
				add(i, fmt.Errorf("row %d: %w", r+1, err))
			}
		}
		if t.Volume < 0 {
			add(i, errors.New("volume must not be negative"))
		}
		if t.Delay.Time < 0 || t.Delay.Feedback < 0 || t.Delay.Feedback >= 1 {
			add(i, errors.New("delay time must not be negative and feedback must be within [0,1)"))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Sequences parses every row of every track leniently.
func (t Track) Sequences() []sequence.Sequence {
	seqs := make([]sequence.Sequence, len(t.Notes))
	for i, row := range t.Notes {
		seqs[i] = sequence.Parse(row)
	}
	return seqs
}

// StepCount is the length of the longest row in the song.
func (s Song) StepCount() int {
	var all []sequence.Sequence
	for _, t := range s.Tracks {
		all = append(all, t.Sequences()...)
	}
	return sequence.Longest(all...)
}

// WithNotes returns a copy of the song whose track i plays rows instead.
// Out of range indexes are ignored.
func (s Song) WithNotes(i int, rows ...string) Song {
	if i < 0 || i >= len(s.Tracks) {
		return s
	}
	s.Tracks = append([]Track(nil), s.Tracks...)
	s.Tracks[i].Notes = append(Rows(nil), rows...)
	return s
}
