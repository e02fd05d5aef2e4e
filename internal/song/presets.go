package song

import (
	"sort"
	"strings"

	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/instrument"
)

var presets = map[string]func() instrument.Config{
	"lead":   leadPreset,
	"chords": chordsPreset,
	"bass":   bassPreset,
}

// Preset returns a fresh copy of a named instrument. Names are case
// insensitive.
func Preset(name string) (instrument.Config, bool) {
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return instrument.Config{}, false
	}
	return p(), true
}

func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func leadPreset() instrument.Config {
	return instrument.Config{
		Kind:      instrument.KindSynth,
		Amplitude: 1,
		Oscillators: []instrument.Oscillator{
			{Waveform: "sawtooth", Amplitude: 1},
			{Waveform: "sawtooth", Detune: 6, Amplitude: 1},
		},
		Noise: instrument.Noise{Type: instrument.PinkNoise},
		LFO:   instrument.LFO{Waveform: "sine", Frequency: 5, Amplitude: 6},
		Filter: instrument.Filter{
			Cutoff: 2200,
			Mode:   instrument.FilterModeLFO,
			LFO:    instrument.LFO{Waveform: "sine", Frequency: 5, Amplitude: 0.46 * 2200},
			Envelope: instrument.FilterEnvelope{
				Params: envelope.Params{Attack: 0.04, Sustain: 1, Release: 0.2},
			},
		},
		Envelope: envelope.Params{Attack: 0.04, Sustain: 1, Release: 0.2},
	}
}

func chordsPreset() instrument.Config {
	return instrument.Config{
		Kind:      instrument.KindSynth,
		Amplitude: 1,
		Oscillators: []instrument.Oscillator{
			{Waveform: "triangle", Amplitude: 1},
			{Waveform: "sine", Detune: 6, Amplitude: 1},
		},
		Noise: instrument.Noise{Type: instrument.PinkNoise},
		LFO:   instrument.LFO{Waveform: "sine", Frequency: 5},
		Filter: instrument.Filter{
			Cutoff: 1400,
			Mode:   instrument.FilterModeLFO,
			LFO:    instrument.LFO{Waveform: "sine", Frequency: 2.4, Amplitude: 0.78 * 1400},
			Envelope: instrument.FilterEnvelope{
				Params: envelope.Params{Attack: 0.04, Sustain: 1, Release: 0.2},
			},
		},
		Envelope: envelope.Params{Attack: 0.05, Sustain: 1},
	}
}

func bassPreset() instrument.Config {
	return instrument.Config{
		Kind:      instrument.KindSynth,
		Amplitude: 1,
		Oscillators: []instrument.Oscillator{
			{Waveform: "sawtooth", Amplitude: 1},
			{Waveform: "sawtooth", Amplitude: 1},
		},
		Noise: instrument.Noise{Type: instrument.PinkNoise},
		LFO:   instrument.LFO{Waveform: "sine", Frequency: 5},
		Filter: instrument.Filter{
			Cutoff: 1200,
			Mode:   instrument.FilterModeLFO,
			LFO:    instrument.LFO{Waveform: "sine", Frequency: 5},
			Envelope: instrument.FilterEnvelope{
				Params: envelope.Params{Attack: 0.04, Sustain: 1, Release: 0.2},
			},
		},
		Envelope: envelope.Params{Attack: 0.02, Sustain: 1},
	}
}

func repeat(bar string, n int) string {
	return strings.TrimSpace(strings.Repeat(bar+" ", n))
}

// Default is the song a new player starts with.
func Default() Song {
	return Song{
		Tempo:     DefaultTempo,
		Loop:      true,
		Amplitude: DefaultAmplitude,
		Tracks: []Track{
			{
				Name:       "Lead",
				Preset:     "lead",
				Instrument: leadPreset(),
				Notes:      Rows{repeat("G2 - - - . . . .", 2)},
				Volume:     1,
			},
			{
				Name:       "Chords",
				Preset:     "chords",
				Instrument: chordsPreset(),
				Notes: Rows{
					repeat("G3 - - .", 4),
					repeat("Eb3 - - .", 4),
					repeat("C3 - - .", 4),
				},
				Volume: 1,
			},
			{
				Name:       "Bass",
				Preset:     "bass",
				Instrument: bassPreset(),
				Notes:      Rows{repeat("C1 . . .", 4)},
				Volume:     1,
			},
		},
	}
}
