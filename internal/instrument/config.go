package instrument

import (
	"errors"
	"fmt"

	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/lfo"
	"github.com/cbegin/stepsynth-go/internal/note"
)

type Kind string

const (
	KindSynth  Kind = "synth"
	KindSample Kind = "sample"
)

// FilterMode selects what moves the filter cutoff. The two are exclusive.
type FilterMode string

const (
	FilterModeLFO      FilterMode = "lfo"
	FilterModeEnvelope FilterMode = "envelope"
)

type NoiseType string

const (
	WhiteNoise NoiseType = "white"
	PinkNoise  NoiseType = "pink"
)

// Oscillator is one tone generator of a synth instrument.
type Oscillator struct {
	Waveform  string  `yaml:"waveform"`
	Octave    int     `yaml:"octave"`
	Detune    float64 `yaml:"detune"` // cents
	Amplitude float64 `yaml:"amplitude"`
}

type Noise struct {
	Type      NoiseType `yaml:"type"`
	Amplitude float64   `yaml:"amplitude"`
}

// LFO describes a modulation oscillator. Amplitude is in the units of the
// parameter it drives: cents for pitch, Hz for the filter cutoff.
type LFO struct {
	Waveform  string  `yaml:"waveform"`
	Frequency float64 `yaml:"frequency"`
	Amplitude float64 `yaml:"amplitude"`
}

// Active reports whether the LFO would move its target at all.
func (l LFO) Active() bool {
	return l.Frequency > 0 && l.Amplitude > 0
}

// FilterEnvelope is an ADSR whose output, scaled by Amount (Hz), is added to
// the cutoff.
type FilterEnvelope struct {
	envelope.Params `yaml:",inline"`
	Amount          float64 `yaml:"amount"`
}

type Filter struct {
	Cutoff    float64        `yaml:"cutoff"`
	Resonance float64        `yaml:"resonance"`
	Mode      FilterMode     `yaml:"mode"`
	LFO       LFO            `yaml:"lfo"`
	Envelope  FilterEnvelope `yaml:"envelope"`
}

// Sample configures a sample instrument. RootNote is the pitch the recording
// plays at unshifted, written like a sequence token ("A4").
type Sample struct {
	Path     string `yaml:"path"`
	RootNote string `yaml:"root"`
	Loop     bool   `yaml:"loop"`
}

// Config is the full description of an instrument.
type Config struct {
	Kind        Kind            `yaml:"kind"`
	Amplitude   float64         `yaml:"amplitude"`
	Oscillators []Oscillator    `yaml:"oscillators,omitempty"`
	Noise       Noise           `yaml:"noise"`
	LFO         LFO             `yaml:"lfo"`
	Filter      Filter          `yaml:"filter"`
	Envelope    envelope.Params `yaml:"envelope"`
	Sample      Sample          `yaml:"sample,omitempty"`
}

// DefaultConfig is a plain two-oscillator saw lead.
func DefaultConfig() Config {
	return Config{
		Kind:      KindSynth,
		Amplitude: 1.0,
		Oscillators: []Oscillator{
			{Waveform: "sawtooth", Amplitude: 1.0},
			{Waveform: "sawtooth", Detune: 6, Amplitude: 1.0},
		},
		Noise:  Noise{Type: WhiteNoise},
		LFO:    LFO{Waveform: "sine", Frequency: 5},
		Filter: Filter{Cutoff: 2200, Mode: FilterModeLFO, LFO: LFO{Waveform: "sine", Frequency: 5}},
		Envelope: envelope.Params{
			Attack:  0.04,
			Sustain: 1.0,
			Release: 0.2,
		},
	}
}

var ErrNoRootNote = errors.New("sample instrument needs a root note")

// RootFrequency is the frequency a sample plays at without shifting.
func (c Config) RootFrequency() (float64, error) {
	if c.Sample.RootNote == "" {
		return 0, ErrNoRootNote
	}
	n, err := note.Parse(c.Sample.RootNote)
	if err != nil {
		return 0, fmt.Errorf("sample root: %w", err)
	}
	if !n.IsSounding() {
		return 0, ErrNoRootNote
	}
	return n.Frequency(), nil
}

// Validate checks the fields that would otherwise produce silent or broken voices.
func (c Config) Validate() error {
	var errs []error
	switch c.Kind {
	case KindSynth:
		if len(c.Oscillators) == 0 {
			errs = append(errs, errors.New("synth instrument needs at least one oscillator"))
		}
		for i, o := range c.Oscillators {
			if w, ok := lfo.ParseWaveform(o.Waveform); !ok || w == lfo.WaveRandom {
				errs = append(errs, fmt.Errorf("oscillator %d: unknown waveform %q", i+1, o.Waveform))
			}
		}
		if c.Noise.Type != "" && c.Noise.Type != WhiteNoise && c.Noise.Type != PinkNoise {
			errs = append(errs, fmt.Errorf("unknown noise type %q", c.Noise.Type))
		}
	case KindSample:
		if _, err := c.RootFrequency(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown instrument kind %q", c.Kind))
	}
	switch c.Filter.Mode {
	case FilterModeLFO, FilterModeEnvelope, "":
	default:
		errs = append(errs, fmt.Errorf("unknown filter mode %q", c.Filter.Mode))
	}
	if c.Filter.Cutoff < 0 {
		errs = append(errs, errors.New("filter cutoff must not be negative"))
	}
	envs := []struct {
		name string
		p    envelope.Params
	}{{"envelope", c.Envelope}, {"filter envelope", c.Filter.Envelope.Params}}
	for _, e := range envs {
		if e.p.Attack < 0 || e.p.Decay < 0 || e.p.Release < 0 {
			errs = append(errs, fmt.Errorf("%s times must not be negative", e.name))
		}
		if e.p.Sustain < 0 || e.p.Sustain > 1 {
			errs = append(errs, fmt.Errorf("%s sustain must be within [0,1]", e.name))
		}
	}
	return errors.Join(errs...)
}
