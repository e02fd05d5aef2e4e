package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAtInstantAndLinear(t *testing.T) {
	l := NewLane(Gain, 0.3)
	l.SetAt(0, 1)
	l.LinearTo(1, 2)
	l.LinearTo(0.5, 4)

	cases := []struct {
		t    float64
		want float64
	}{
		{0, 0.3},
		{1, 0},
		{1.5, 0.5},
		{2, 1},
		{3, 0.75},
		{4, 0.5},
		{10, 0.5},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, l.ValueAt(tc.t), 1e-12, "t=%v", tc.t)
	}
}

func TestLinearWithoutPreviousEventHoldsInitial(t *testing.T) {
	l := NewLane(Cutoff, 800)
	l.LinearTo(1600, 1)
	assert.Equal(t, 800.0, l.ValueAt(0.5))
	assert.Equal(t, 1600.0, l.ValueAt(1))
}

func TestEventsStayOrdered(t *testing.T) {
	l := NewLane(Gain, 0)
	l.LinearTo(1, 2)
	l.SetAt(0, 1)
	l.SetAt(0.2, 1)
	require.Len(t, l.Events, 3)
	assert.Equal(t, 0.0, l.Events[0].Value)
	assert.Equal(t, 0.2, l.Events[1].Value)
	assert.Equal(t, 2.0, l.Events[2].Time)
	assert.Equal(t, 2.0, l.End())
}

func TestHoldAtCancelsLaterEvents(t *testing.T) {
	l := NewLane(Gain, 0)
	l.SetAt(0, 0)
	l.LinearTo(1, 1)
	l.LinearTo(0.5, 2)

	held := l.HoldAt(0.5)
	require.Len(t, held.Events, 2)
	assert.Equal(t, Instant, held.Events[1].Ramp)
	assert.InDelta(t, 0.5, held.Events[1].Value, 1e-12)
	assert.InDelta(t, 0.5, held.ValueAt(3), 1e-12)

	held.LinearTo(0, 1.5)
	assert.InDelta(t, 0.25, held.ValueAt(1.0), 1e-12)

	// The source lane is untouched.
	assert.Len(t, l.Events, 3)
	assert.InDelta(t, 1.0, l.ValueAt(1), 1e-12)
}

func TestMerge(t *testing.T) {
	g := NewLane(Gain, 0)
	g.SetAt(0, 1)
	g.LinearTo(1, 3)
	c := NewLane(Cutoff, 100)
	c.SetAt(100, 1)
	c.LinearTo(200, 2)

	events := Merge(g, c)
	require.Len(t, events, 4)
	assert.Equal(t, Gain, events[0].Target)
	assert.Equal(t, Cutoff, events[1].Target)
	assert.Equal(t, 2.0, events[2].Time)
	assert.Equal(t, 3.0, events[3].Time)
}
