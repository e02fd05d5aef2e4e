// Package instrument turns notes into voices: the oscillator layout, the
// modulation, and the gain and cutoff automation a rendering backend applies
// between gate on and the end of the release.
package instrument

import (
	"math"
	"sync/atomic"

	"github.com/cbegin/stepsynth-go/internal/automation"
	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/note"
)

// OscillatorVoice is an oscillator resolved for one note.
type OscillatorVoice struct {
	Waveform  string
	Frequency float64
	Detune    float64 // cents
	Amplitude float64
}

// Voice is one sounding instance of an instrument. Until it is gated off
// GateOff and ReleaseEnd are +Inf.
type Voice struct {
	ID      uint64
	Channel int
	Kind    Kind

	GateOn     float64
	GateOff    float64
	ReleaseEnd float64

	Frequency   float64
	Oscillators []OscillatorVoice
	Noise       Noise

	// Sample playback.
	Sample       string
	PlaybackRate float64
	Loop         bool

	PitchLFO  LFO
	FilterLFO LFO
	Resonance float64

	Gain   automation.Lane
	Cutoff automation.Lane
}

// Released reports whether the voice has a scheduled end.
func (v Voice) Released() bool {
	return !math.IsInf(v.ReleaseEnd, 1)
}

// Events lists the voice's automation in time order.
func (v Voice) Events() []automation.Event {
	return automation.Merge(v.Gain, v.Cutoff)
}

// Sink receives voices. Scheduling a voice whose ID was seen before replaces
// its automation.
type Sink interface {
	ScheduleVoice(Voice)
}

var lastVoiceID atomic.Uint64

// Plan computes the voice for a note played from gateOn to gateOff. It is
// pure apart from allocating an ID. Notes that do not sound produce no voice.
func Plan(cfg Config, n note.Note, gateOn, gateOff float64) (Voice, bool) {
	v, ok := gateOnVoice(cfg, n, gateOn, gateOff)
	if !ok {
		return Voice{}, false
	}
	return gateOffVoice(cfg, v, gateOff), true
}

// baseAmplitude is the peak of the gain envelope. Synth voices share it
// between their oscillators and the noise source.
func baseAmplitude(cfg Config) float64 {
	if cfg.Kind == KindSample {
		return cfg.Amplitude
	}
	return cfg.Amplitude / float64(len(cfg.Oscillators)+1)
}

// gateOnVoice builds the voice and its attack and decay automation. With an
// open-ended gateOff (+Inf) the envelope runs through to sustain.
func gateOnVoice(cfg Config, n note.Note, gateOn, gateOff float64) (Voice, bool) {
	freq := n.Frequency()
	if !n.IsSounding() || freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return Voice{}, false
	}
	v := Voice{
		ID:         lastVoiceID.Add(1),
		Kind:       cfg.Kind,
		GateOn:     gateOn,
		GateOff:    math.Inf(1),
		ReleaseEnd: math.Inf(1),
		Frequency:  freq,
		Resonance:  cfg.Filter.Resonance,
	}

	switch cfg.Kind {
	case KindSample:
		root, err := cfg.RootFrequency()
		if err != nil {
			return Voice{}, false
		}
		v.Sample = cfg.Sample.Path
		v.PlaybackRate = freq / root
		v.Loop = cfg.Sample.Loop
	default:
		v.Oscillators = make([]OscillatorVoice, len(cfg.Oscillators))
		for i, o := range cfg.Oscillators {
			v.Oscillators[i] = OscillatorVoice{
				Waveform:  o.Waveform,
				Frequency: freq * math.Pow(2, float64(o.Octave)),
				Detune:    o.Detune,
				Amplitude: o.Amplitude,
			}
		}
		v.Noise = cfg.Noise
		if cfg.LFO.Active() {
			v.PitchLFO = cfg.LFO
		}
	}

	v.Gain = automation.NewLane(automation.Gain, 0)
	amp := envelope.Calculate(baseAmplitude(cfg), cfg.Envelope, gateOn, gateOff)
	scheduleAttackDecay(&v.Gain, amp, 0, gateOff)

	cutoff := cfg.Filter.Cutoff
	v.Cutoff = automation.NewLane(automation.Cutoff, cutoff)
	switch cfg.Filter.Mode {
	case FilterModeEnvelope:
		fenv := envelope.Calculate(cfg.Filter.Envelope.Amount, cfg.Filter.Envelope.Params, gateOn, gateOff)
		scheduleAttackDecay(&v.Cutoff, fenv, cutoff, gateOff)
	default:
		v.Cutoff.SetAt(cutoff, gateOn)
		if cfg.Filter.LFO.Active() {
			v.FilterLFO = cfg.Filter.LFO
			// The wobble swings both ways around the cutoff; its depth
			// cannot exceed the cutoff or the frequency would go negative.
			v.FilterLFO.Amplitude = math.Min(cutoff, cfg.Filter.LFO.Amplitude)
		}
	}
	return v, true
}

// scheduleAttackDecay writes an envelope onto a lane, offset by base.
func scheduleAttackDecay(l *automation.Lane, c envelope.Calculated, base, gateOff float64) {
	l.SetAt(base, c.GateOnTime)
	l.LinearTo(base+c.AttackEndAmplitude, c.AttackEndTime)
	if c.AttackEndTime < gateOff {
		l.LinearTo(base+c.DecayEndAmplitude, c.DecayEndTime)
	}
}

// gateOffVoice schedules the release. Each lane is held at its value at
// gateOff, dropping anything planned later, so a voice released early
// releases from wherever its attack or decay had reached.
func gateOffVoice(cfg Config, v Voice, gateOff float64) Voice {
	v.GateOff = gateOff
	v.ReleaseEnd = envelope.ReleaseEnd(gateOff, cfg.Envelope.Release)

	v.Gain = v.Gain.HoldAt(gateOff)
	v.Gain.LinearTo(0, v.ReleaseEnd)

	if cfg.Filter.Mode == FilterModeEnvelope {
		v.Cutoff = v.Cutoff.HoldAt(gateOff)
		v.Cutoff.LinearTo(cfg.Filter.Cutoff, envelope.ReleaseEnd(gateOff, cfg.Filter.Envelope.Release))
	}
	return v
}

// Instrument schedules notes for one track onto a sink.
type Instrument struct {
	cfg     Config
	sink    Sink
	channel int
}

func New(cfg Config, sink Sink, channel int) *Instrument {
	return &Instrument{cfg: cfg, sink: sink, channel: channel}
}

func (i *Instrument) Config() Config { return i.cfg }

// ScheduleNote plans a note with a known duration and hands it to the sink.
func (i *Instrument) ScheduleNote(n note.Note, gateOn, gateOff float64) {
	v, ok := Plan(i.cfg, n, gateOn, gateOff)
	if !ok {
		return
	}
	v.Channel = i.channel
	i.sink.ScheduleVoice(v)
}

// GateOn starts a note whose end is not known yet, as when a key is held.
// The returned voice must be passed to GateOff to release it.
func (i *Instrument) GateOn(n note.Note, gateOn float64) (Voice, bool) {
	v, ok := gateOnVoice(i.cfg, n, gateOn, math.Inf(1))
	if !ok {
		return Voice{}, false
	}
	v.Channel = i.channel
	i.sink.ScheduleVoice(v)
	return v, true
}

// GateOff releases a voice started with GateOn and reschedules it.
func (i *Instrument) GateOff(v Voice, gateOff float64) Voice {
	if gateOff < v.GateOn {
		gateOff = v.GateOn
	}
	v = gateOffVoice(i.cfg, v, gateOff)
	i.sink.ScheduleVoice(v)
	return v
}
