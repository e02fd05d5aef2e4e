// Package envelope computes linear attack-decay-sustain-release breakpoints
// for a single note.
package envelope

import "math"

// MinRelease keeps release ramps from collapsing to zero length, which clicks.
const MinRelease = 0.005

// Params configures an envelope. Times are in seconds; Sustain is a fraction
// of the base amplitude.
type Params struct {
	Attack  float64 `yaml:"attack"`
	Decay   float64 `yaml:"decay"`
	Sustain float64 `yaml:"sustain"`
	Release float64 `yaml:"release"`
}

// Calculated holds the absolute breakpoints of one gated note. The release
// stage is not part of it; see ReleaseEnd.
type Calculated struct {
	GateOnTime         float64
	GateOffTime        float64
	AttackEndTime      float64
	AttackEndAmplitude float64
	DecayEndTime       float64
	DecayEndAmplitude  float64
}

// Calculate returns the attack and decay breakpoints for a note gated on and
// off at the given times. All ramps are linear. When the gate closes during
// the attack the attack is cut short at a proportionally lower amplitude and
// no decay follows; when it closes during the decay the decay is cut short at
// the interpolated amplitude.
func Calculate(base float64, p Params, gateOn, gateOff float64) Calculated {
	c := Calculated{GateOnTime: gateOn, GateOffTime: gateOff}

	c.AttackEndTime = gateOn + p.Attack
	c.AttackEndAmplitude = base
	if c.AttackEndTime >= gateOff && p.Attack > 0 {
		c.AttackEndTime = gateOff
		c.AttackEndAmplitude = base * (gateOff - gateOn) / p.Attack
		c.DecayEndTime = c.AttackEndTime
		c.DecayEndAmplitude = c.AttackEndAmplitude
		return c
	}

	c.DecayEndTime = c.AttackEndTime + p.Decay
	sustain := base * p.Sustain
	if gateOff >= c.DecayEndTime || p.Decay <= 0 {
		c.DecayEndAmplitude = sustain
		return c
	}
	elapsed := (gateOff - c.AttackEndTime) / p.Decay
	c.DecayEndTime = gateOff
	c.DecayEndAmplitude = c.AttackEndAmplitude - (c.AttackEndAmplitude-sustain)*elapsed
	return c
}

// AttackClipped reports whether the gate closed before the attack finished.
func (c Calculated) AttackClipped() bool {
	return c.AttackEndTime >= c.GateOffTime && c.AttackEndTime > c.GateOnTime
}

// ValueAt evaluates the envelope at t between gate on and gate off. Before the
// gate opens it is zero; after the gate closes it holds the gate-off value.
func (c Calculated) ValueAt(t float64) float64 {
	if t > c.GateOffTime {
		t = c.GateOffTime
	}
	switch {
	case t < c.GateOnTime:
		return 0
	case t < c.AttackEndTime:
		return lerp(0, c.AttackEndAmplitude, (t-c.GateOnTime)/(c.AttackEndTime-c.GateOnTime))
	case t < c.DecayEndTime:
		return lerp(c.AttackEndAmplitude, c.DecayEndAmplitude, (t-c.AttackEndTime)/(c.DecayEndTime-c.AttackEndTime))
	default:
		return c.DecayEndAmplitude
	}
}

// ReleaseEnd is when a release starting at gateOff reaches zero.
func ReleaseEnd(gateOff, release float64) float64 {
	return gateOff + math.Max(MinRelease, release)
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}
