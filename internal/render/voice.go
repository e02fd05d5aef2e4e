package render

import (
	"math"

	"github.com/cbegin/stepsynth-go/internal/instrument"
	"github.com/cbegin/stepsynth-go/internal/lfo"
)

const twoPi = math.Pi * 2

type waveform int

const (
	waveSine waveform = iota
	waveSquare
	waveSaw
	waveTriangle
)

// parseWaveform shares the name table of the LFOs. Unknown names, and the
// random shape that only modulators use, play as a sine.
func parseWaveform(name string) waveform {
	w, _ := lfo.ParseWaveform(name)
	switch w {
	case lfo.WaveSquare:
		return waveSquare
	case lfo.WaveSaw:
		return waveSaw
	case lfo.WaveTriangle:
		return waveTriangle
	default:
		return waveSine
	}
}

type oscillator struct {
	wave      waveform
	freq      float64
	detune    float64 // cents
	amplitude float64
	phase     float64
}

// voice is the rendering state of one scheduled instrument.Voice.
type voice struct {
	params instrument.Voice

	oscs      []oscillator
	noise     []float32
	noisePos  int
	sample    *sampleData
	samplePos float64
	sampleEnd bool

	pitchLFO  lfo.LFO
	filterLFO lfo.LFO
	filter    svf
}

func newVoice(params instrument.Voice, noise []float32, sample *sampleData) *voice {
	v := &voice{}
	v.update(params)
	v.oscs = make([]oscillator, len(params.Oscillators))
	for i, o := range params.Oscillators {
		v.oscs[i] = oscillator{
			wave:      parseWaveform(o.Waveform),
			freq:      o.Frequency,
			detune:    o.Detune,
			amplitude: o.Amplitude,
		}
	}
	if params.Noise.Amplitude > 0 {
		v.noise = noise
	}
	v.sample = sample
	if params.PitchLFO.Active() {
		w, _ := lfo.ParseWaveform(params.PitchLFO.Waveform)
		v.pitchLFO.Set(params.PitchLFO.Amplitude, params.PitchLFO.Frequency, w)
	}
	if params.FilterLFO.Active() {
		w, _ := lfo.ParseWaveform(params.FilterLFO.Waveform)
		v.filterLFO.Set(params.FilterLFO.Amplitude, params.FilterLFO.Frequency, w)
	}
	return v
}

// update replaces the automation of a voice that is already sounding.
// Oscillator phase and filter state carry over.
func (v *voice) update(params instrument.Voice) {
	v.params = params
	v.filter.setResonance(params.Resonance)
}

func (v *voice) done(t float64) bool {
	return t >= v.params.ReleaseEnd
}

// render produces one sample at time t, after the filter and the gain.
func (v *voice) render(t, sampleRate float64) float64 {
	var sig float64
	switch v.params.Kind {
	case instrument.KindSample:
		sig = v.renderSample(sampleRate)
	default:
		cents := v.pitchLFO.Sample(sampleRate)
		for i := range v.oscs {
			o := &v.oscs[i]
			freq := o.freq * math.Pow(2, (o.detune+cents)/1200)
			sig += renderWave(o, freq/sampleRate) * o.amplitude
		}
		if v.noise != nil {
			sig += float64(v.noise[v.noisePos]) * v.params.Noise.Amplitude
			v.noisePos++
			if v.noisePos >= len(v.noise) {
				v.noisePos = 0
			}
		}
	}
	cutoff := v.params.Cutoff.ValueAt(t) + v.filterLFO.Sample(sampleRate)
	sig = v.filter.lowpass(sig, cutoff, sampleRate)
	return sig * v.params.Gain.ValueAt(t)
}

func (v *voice) renderSample(sampleRate float64) float64 {
	if v.sample == nil || v.sampleEnd || len(v.sample.data) == 0 {
		return 0
	}
	data := v.sample.data
	i := int(v.samplePos)
	frac := v.samplePos - float64(i)
	next := i + 1
	if next >= len(data) {
		if v.params.Loop {
			next = 0
		} else {
			next = i
		}
	}
	out := float64(data[i])*(1-frac) + float64(data[next])*frac
	v.samplePos += v.params.PlaybackRate * v.sample.rate / sampleRate
	if v.samplePos >= float64(len(data)) {
		if v.params.Loop {
			v.samplePos = math.Mod(v.samplePos, float64(len(data)))
		} else {
			v.sampleEnd = true
		}
	}
	return out
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func renderWave(o *oscillator, dt float64) float64 {
	var out float64
	switch o.wave {
	case waveSquare:
		out = -1.0
		if o.phase < 0.5 {
			out = 1
		}
		out += polyBLEP(o.phase, dt)
		out -= polyBLEP(math.Mod(o.phase+0.5, 1), dt)
	case waveSaw:
		out = 2*o.phase - 1
		out -= polyBLEP(o.phase, dt)
	case waveTriangle:
		out = 1 - 2*math.Abs(2*o.phase-1)
	default:
		out = math.Sin(twoPi * o.phase)
	}
	o.phase += dt
	for o.phase >= 1 {
		o.phase -= 1
	}
	return out
}

// svf is a two-pole state variable lowpass in trapezoidal form, stable for
// any cutoff below Nyquist.
type svf struct {
	k        float64 // 1/Q
	ic1, ic2 float64
}

func (f *svf) setResonance(q float64) {
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	f.k = 1 / q
}

func (f *svf) lowpass(x, cutoff, sampleRate float64) float64 {
	cutoff = clamp(cutoff, 10, sampleRate*0.49)
	g := math.Tan(math.Pi * cutoff / sampleRate)
	a1 := 1 / (1 + g*(g+f.k))
	a2 := g * a1
	a3 := g * a2
	v3 := x - f.ic2
	v1 := a1*f.ic1 + a2*v3
	v2 := f.ic2 + a2*f.ic1 + a3*v3
	f.ic1 = 2*v1 - f.ic1
	f.ic2 = 2*v2 - f.ic2
	return v2
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
