package effects

import "math"

// MaxDelay bounds the delay time a Delay accepts, in seconds.
const MaxDelay = 4.0

// MaxFeedback keeps the repeats decaying.
const MaxFeedback = 0.95

// Delay is a feedback delay line.
type Delay struct {
	sampleRate float64
	buf        []float32
	size       int
	pos        int
	feedback   float32
	dry, wet   float32
}

// NewDelay creates a delay that crossfades its input with the delayed signal.
// wet is the mix 0..1; feedback is clamped to 0..MaxFeedback.
func NewDelay(sampleRate int, seconds float64, feedback, wet float32) *Delay {
	wet = clamp(wet, 0, 1)
	d := &Delay{
		sampleRate: float64(sampleRate),
		buf:        make([]float32, int(MaxDelay*float64(sampleRate))+1),
		dry:        1 - wet,
		wet:        wet,
	}
	d.SetTime(seconds)
	d.SetFeedback(feedback)
	return d
}

// NewEcho creates a delay that adds the delayed signal on top of the
// untouched input, as a send bus would.
func NewEcho(sampleRate int, seconds float64, feedback float32) *Delay {
	d := NewDelay(sampleRate, seconds, feedback, 1)
	d.dry = 1
	return d
}

// SetTime changes the delay time. Anything shorter than one sample
// bypasses the delay line.
func (d *Delay) SetTime(seconds float64) {
	size := int(math.Min(seconds, MaxDelay) * d.sampleRate)
	if size < 1 {
		size = 0
	}
	if size != d.size {
		d.size = size
		d.Reset()
	}
}

func (d *Delay) SetFeedback(feedback float32) {
	d.feedback = clamp(feedback, 0, MaxFeedback)
}

// Bypassed reports whether the delay passes its input through unchanged.
func (d *Delay) Bypassed() bool { return d.size == 0 }

func (d *Delay) Process(x float32) float32 {
	if d.size == 0 {
		return x
	}
	delayed := d.buf[d.pos]
	d.buf[d.pos] = x + delayed*d.feedback
	d.pos++
	if d.pos >= d.size {
		d.pos = 0
	}
	return x*d.dry + delayed*d.wet
}

func (d *Delay) Reset() {
	clear(d.buf)
	d.pos = 0
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
