package lfo

import (
	"math"
	"strings"
)

// Waveform constants. The names accepted by ParseWaveform follow oscillator
// type names ("sine", "square", "sawtooth", "triangle").
const (
	WaveSaw      = 0
	WaveSquare   = 1
	WaveTriangle = 2
	WaveRandom   = 3
	WaveSine     = 4
)

// ParseWaveform maps a waveform name to its constant. Unknown names fall back
// to sine and report false.
func ParseWaveform(name string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sine", "sin":
		return WaveSine, true
	case "square":
		return WaveSquare, true
	case "sawtooth", "saw":
		return WaveSaw, true
	case "triangle":
		return WaveTriangle, true
	case "random":
		return WaveRandom, true
	default:
		return WaveSine, false
	}
}

// LFO is a low-frequency oscillator that produces per-sample modulation.
// Each voice owns its own, started at gate on.
type LFO struct {
	depth    float64 // in the units of the modulated parameter: cents or Hz
	rateHz   float64
	waveform int
	phase    float64 // [0, 1)
	randVal  float64 // held random value for sample-and-hold
}

// Set configures the LFO parameters.
func (l *LFO) Set(depth, rateHz float64, waveform int) {
	l.depth = depth
	l.rateHz = rateHz
	if waveform < WaveSaw || waveform > WaveSine {
		waveform = WaveSine
	}
	l.waveform = waveform
}

// Sample advances the LFO by one sample and returns a value in [-depth, +depth].
// Returns 0 if depth or rate is zero.
func (l *LFO) Sample(sampleRate float64) float64 {
	if l.depth == 0 || l.rateHz == 0 || sampleRate == 0 {
		return 0
	}

	var waveVal float64
	switch l.waveform {
	case WaveSine:
		waveVal = math.Sin(2 * math.Pi * l.phase)
	case WaveSaw:
		waveVal = 1.0 - 2.0*l.phase
	case WaveSquare:
		if l.phase < 0.5 {
			waveVal = 1.0
		} else {
			waveVal = -1.0
		}
	case WaveRandom:
		waveVal = l.randVal
	default: // WaveTriangle
		if l.phase < 0.5 {
			waveVal = 4.0*l.phase - 1.0
		} else {
			waveVal = 3.0 - 4.0*l.phase
		}
	}

	oldPhase := l.phase
	l.phase += l.rateHz / sampleRate
	for l.phase >= 1.0 {
		l.phase -= 1.0
	}

	// Sample-and-hold picks a new value at each cycle boundary.
	if l.waveform == WaveRandom && l.phase < oldPhase {
		l.randVal = math.Sin(l.phase*12345.6789+l.randVal*67890.1234) * 2.0
		l.randVal -= math.Floor(l.randVal)
		l.randVal = l.randVal*2.0 - 1.0
	}

	return waveVal * l.depth
}

// Active returns true if the LFO has non-zero depth and rate.
func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

// Reset zeros the LFO phase.
func (l *LFO) Reset() {
	l.phase = 0
	l.randVal = 0
}
