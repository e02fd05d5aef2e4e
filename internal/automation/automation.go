// Package automation models timed parameter changes for a voice. A Lane is a
// closed-form function of time, so the value at any instant can be computed
// by evaluation instead of being read back from a running backend.
package automation

import (
	"fmt"
	"sort"
)

// Target names the voice parameter an event drives.
type Target int

const (
	Gain Target = iota
	Cutoff
)

func (t Target) String() string {
	switch t {
	case Gain:
		return "gain"
	case Cutoff:
		return "cutoff"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Ramp is how a parameter travels to an event's value.
type Ramp int

const (
	// Instant jumps to the value at the event time.
	Instant Ramp = iota
	// Linear ramps from the previous event, reaching the value at the event time.
	Linear
)

func (r Ramp) String() string {
	if r == Linear {
		return "linear"
	}
	return "instant"
}

// Event is one automation point handed to the rendering backend.
type Event struct {
	Target Target
	Time   float64
	Value  float64
	Ramp   Ramp
}

// Lane is the ordered event list for one target. Initial is the value before
// the first event.
type Lane struct {
	Target  Target
	Initial float64
	Events  []Event
}

func NewLane(target Target, initial float64) Lane {
	return Lane{Target: target, Initial: initial}
}

// SetAt jumps to v at time t.
func (l *Lane) SetAt(v, t float64) {
	l.add(Event{Target: l.Target, Time: t, Value: v, Ramp: Instant})
}

// LinearTo ramps from the previous event to v, arriving at time t.
func (l *Lane) LinearTo(v, t float64) {
	l.add(Event{Target: l.Target, Time: t, Value: v, Ramp: Linear})
}

// add keeps events ordered by time; events at equal times stay in insertion order.
func (l *Lane) add(e Event) {
	i := sort.Search(len(l.Events), func(i int) bool { return l.Events[i].Time > e.Time })
	l.Events = append(l.Events, Event{})
	copy(l.Events[i+1:], l.Events[i:])
	l.Events[i] = e
}

// ValueAt evaluates the lane at t.
func (l Lane) ValueAt(t float64) float64 {
	prevTime, prevValue := 0.0, l.Initial
	havePrev := false
	for _, e := range l.Events {
		if e.Time > t {
			if e.Ramp == Linear && havePrev && e.Time > prevTime {
				frac := (t - prevTime) / (e.Time - prevTime)
				return prevValue + (e.Value-prevValue)*frac
			}
			return prevValue
		}
		prevTime, prevValue = e.Time, e.Value
		havePrev = true
	}
	return prevValue
}

// HoldAt returns a copy of the lane with every event at or after t removed
// and the value the lane had at t pinned there. Ramps scheduled after it
// start from where the parameter actually is.
func (l Lane) HoldAt(t float64) Lane {
	v := l.ValueAt(t)
	held := Lane{Target: l.Target, Initial: l.Initial}
	for _, e := range l.Events {
		if e.Time < t {
			held.Events = append(held.Events, e)
		}
	}
	held.SetAt(v, t)
	return held
}

// End is the time of the last event, or 0 for an empty lane.
func (l Lane) End() float64 {
	if len(l.Events) == 0 {
		return 0
	}
	return l.Events[len(l.Events)-1].Time
}

// Merge flattens lanes into one time-ordered event list.
func Merge(lanes ...Lane) []Event {
	var out []Event
	for _, l := range lanes {
		out = append(out, l.Events...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
