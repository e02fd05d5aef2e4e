package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/stepsynth-go/internal/note"
	"github.com/cbegin/stepsynth-go/internal/sequence"
)

type scheduled struct {
	note    string
	gateOn  float64
	gateOff float64
}

type recordingScheduler struct {
	mu    sync.Mutex
	notes []scheduled
}

func (r *recordingScheduler) ScheduleNote(n note.Note, gateOn, gateOff float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, scheduled{note: n.String(), gateOn: gateOn, gateOff: gateOff})
}

func (r *recordingScheduler) all() []scheduled {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduled(nil), r.notes...)
}

type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t float64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// testOptions never lets the ticker fire, so only Start and explicit Tick
// calls schedule anything.
func testOptions() Options {
	opts := DefaultOptions()
	opts.TickInterval = time.Hour
	opts.Tempo = 120 // 0.125 s steps
	return opts
}

func TestTrackTickSchedulesTiedNotes(t *testing.T) {
	rec := &recordingScheduler{}
	tr := NewTrack(rec, sequence.Parse("A4 - C4 D4"), false)
	tr.Reset(0)

	tr.Tick(0.3, 0.125, false)
	got := rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, scheduled{"A4", 0, 0.25}, got[0])
	assert.Equal(t, scheduled{"C4", 0.25, 0.375}, got[1])
	assert.False(t, tr.Finished())
	assert.Equal(t, 3, tr.Index())
	assert.Equal(t, 0.375, tr.Cursor())

	tr.Tick(10, 0.125, false)
	got = rec.all()
	require.Len(t, got, 3)
	assert.Equal(t, scheduled{"D4", 0.375, 0.5}, got[2])
	assert.True(t, tr.Finished())

	tr.Tick(20, 0.125, false)
	assert.Len(t, rec.all(), 3)
}

func TestTrackLoopsWhenAsked(t *testing.T) {
	rec := &recordingScheduler{}
	tr := NewTrack(rec, sequence.Parse("A4 C4"), false)
	tr.Reset(0)
	tr.Tick(0.45, 0.125, true)

	got := rec.all()
	require.Len(t, got, 4)
	assert.Equal(t, "A4", got[2].note)
	assert.Equal(t, 0.25, got[2].gateOn)
	assert.False(t, tr.Finished())
}

func TestMutedTrackAdvancesSilently(t *testing.T) {
	rec := &recordingScheduler{}
	tr := NewTrack(rec, sequence.Parse("A4 C4 D4 E4"), true)
	tr.Reset(0)
	tr.Tick(0.2, 0.125, false)
	assert.Empty(t, rec.all())
	assert.Equal(t, 2, tr.Index())

	tr.SetMuted(false)
	tr.Tick(0.3, 0.125, false)
	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, scheduled{"D4", 0.25, 0.375}, got[0])
}

func TestEmptyTrackIsFinished(t *testing.T) {
	tr := NewTrack(&recordingScheduler{}, nil, false)
	tr.Reset(0)
	tr.Tick(1, 0.125, true)
	assert.True(t, tr.Finished())
}

func TestSetSequenceKeepsPosition(t *testing.T) {
	rec := &recordingScheduler{}
	tr := NewTrack(rec, sequence.Parse("A4 A4 A4 A4 A4"), false)
	tr.Reset(0)
	tr.Tick(0.45, 0.125, true)
	require.Equal(t, 4, tr.Index())

	tr.SetSequence(sequence.Parse("C4 D4 E4"))
	assert.Equal(t, 1, tr.Index())
	tr.Tick(0.55, 0.125, true)
	got := rec.all()
	assert.Equal(t, scheduled{"D4", 0.5, 0.625}, got[len(got)-1])
}

func TestStepInterval(t *testing.T) {
	assert.Equal(t, 0.15, StepInterval(100))
	assert.Equal(t, 0.125, StepInterval(120))
}

func TestStartTicksImmediately(t *testing.T) {
	clock := &fakeClock{}
	rec := &recordingScheduler{}
	tr := NewTrack(rec, sequence.Parse("A4 C4 D4 E4"), false)
	tp := NewTransport(clock, []*Track{tr}, testOptions())

	tp.Start()
	defer tp.Stop()
	assert.True(t, tp.Playing())
	// Horizon is 0.2 s ahead: steps at 0 and 0.125.
	got := rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, "C4", got[1].note)
}

func TestStartResetsTracksToNow(t *testing.T) {
	clock := &fakeClock{now: 4}
	rec := &recordingScheduler{}
	tr := NewTrack(rec, sequence.Parse("A4 C4"), false)
	tp := NewTransport(clock, []*Track{tr}, testOptions())

	tp.Start()
	tp.Stop()
	clock.Set(9)
	tp.Start()
	defer tp.Stop()

	got := rec.all()
	assert.Equal(t, 9.0, got[len(got)-2].gateOn)
	assert.Equal(t, "A4", got[len(got)-2].note)
}

func TestTempoChangeAppliesToNextStep(t *testing.T) {
	clock := &fakeClock{}
	rec := &recordingScheduler{}
	tr := NewTrack(rec, sequence.Parse("A4 C4 D4 E4"), false)
	tp := NewTransport(clock, []*Track{tr}, testOptions())
	tp.Start()
	defer tp.Stop()

	tp.SetTempo(60) // 0.25 s steps
	assert.Equal(t, 60.0, tp.Tempo())
	clock.Set(0.1)
	tp.Tick()

	got := rec.all()
	require.Len(t, got, 3)
	assert.Equal(t, 0.125, got[1].gateOn) // already scheduled, untouched
	assert.Equal(t, scheduled{"D4", 0.25, 0.5}, got[2])
}

func TestStopIsIdempotent(t *testing.T) {
	var events []EventKind
	opts := testOptions()
	opts.OnEvent = func(k EventKind) { events = append(events, k) }
	tp := NewTransport(&fakeClock{}, []*Track{NewTrack(&recordingScheduler{}, sequence.Parse("A4"), false)}, opts)

	tp.Stop()
	tp.Start()
	tp.Stop()
	tp.Stop()
	assert.False(t, tp.Playing())
	assert.Equal(t, []EventKind{EventStarted, EventStopped}, events)
}

func TestToggle(t *testing.T) {
	tp := NewTransport(&fakeClock{}, nil, testOptions())
	tp.Toggle()
	assert.True(t, tp.Playing())
	tp.Toggle()
	assert.False(t, tp.Playing())
}

func TestSelfStopsOnlyWhenEveryTrackFinished(t *testing.T) {
	clock := &fakeClock{}
	rec := &recordingScheduler{}
	short := NewTrack(rec, sequence.Parse("A4"), false)
	long := NewTrack(rec, sequence.Parse("A4 C4 D4 E4 F4 G4"), false)

	var delays []time.Duration
	stops := 0
	opts := testOptions()
	opts.Loop = false
	opts.OnStop = func() { stops++ }
	opts.AfterFunc = func(d time.Duration, f func()) {
		delays = append(delays, d)
		f()
	}
	tp := NewTransport(clock, []*Track{short, long}, opts)

	tp.Start()
	require.True(t, short.Finished())
	assert.True(t, tp.Playing(), "one finished track must not stop the transport")
	assert.Zero(t, stops)

	clock.Set(0.5)
	tp.Tick()
	assert.True(t, long.Finished())
	assert.False(t, tp.Playing())
	assert.Equal(t, 1, stops)
	assert.Equal(t, []time.Duration{125 * time.Millisecond}, delays)
	assert.Len(t, rec.all(), 7)

	// Further ticks do nothing once stopped.
	clock.Set(2)
	tp.Tick()
	assert.Equal(t, 1, stops)
}

func TestLoopingTransportKeepsPlaying(t *testing.T) {
	clock := &fakeClock{}
	stops := 0
	opts := testOptions()
	opts.OnStop = func() { stops++ }
	opts.AfterFunc = func(_ time.Duration, f func()) { f() }
	tp := NewTransport(clock, []*Track{NewTrack(&recordingScheduler{}, sequence.Parse("A4 C4"), false)}, opts)
	tp.Start()
	defer tp.Stop()
	for i := 1; i <= 10; i++ {
		clock.Set(float64(i) * 0.05)
		tp.Tick()
	}
	assert.True(t, tp.Playing())
	assert.Zero(t, stops)

	// Turning looping off lets it finish at the end of the pass.
	tp.SetLoop(false)
	clock.Set(1)
	tp.Tick()
	assert.False(t, tp.Playing())
	assert.Equal(t, 1, stops)
}

func TestCurrentStep(t *testing.T) {
	clock := &fakeClock{}
	tp := NewTransport(clock, []*Track{
		NewTrack(&recordingScheduler{}, sequence.Parse("A4 C4 D4 E4"), false),
		NewTrack(&recordingScheduler{}, sequence.Parse("A2 A2"), false),
	}, testOptions())
	assert.Equal(t, -1, tp.CurrentStep())
	assert.Equal(t, 4, tp.SongSteps())

	tp.Start()
	defer tp.Stop()
	assert.Equal(t, 0, tp.CurrentStep())
	clock.Set(0.13)
	assert.Equal(t, 1, tp.CurrentStep())

	clock.Set(0.6)
	tp.Tick()
	// Steps started at 0.25, 0.375 and 0.5; step 4 wraps to 0.
	assert.Equal(t, 0, tp.CurrentStep())
	clock.Set(0.63)
	assert.Equal(t, 1, tp.CurrentStep())
}

func TestReplaceTracksPicksUpSongPosition(t *testing.T) {
	clock := &fakeClock{}
	old := &recordingScheduler{}
	tp := NewTransport(clock, []*Track{NewTrack(old, sequence.Parse("A4 A4 A4 A4"), false)}, testOptions())
	tp.Start()
	defer tp.Stop()

	rec := &recordingScheduler{}
	tp.ReplaceTracks([]*Track{NewTrack(rec, sequence.Parse("C4 D4 E4"), false)})
	clock.Set(0.1)
	tp.Tick()

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, scheduled{"E4", 0.25, 0.375}, got[0])
	assert.Len(t, old.all(), 2)
}

type fakeRenderer struct {
	rate    int
	seconds float64
	err     error
}

func (r *fakeRenderer) SampleRate() int { return r.rate }

func (r *fakeRenderer) Render(ctx context.Context, seconds float64) ([]float32, error) {
	r.seconds = seconds
	if r.err != nil {
		return nil, r.err
	}
	return make([]float32, int(seconds*float64(r.rate))), nil
}

func TestOfflineSchedulesEveryTrackOnce(t *testing.T) {
	rec := &recordingScheduler{}
	muted := &recordingScheduler{}
	off := NewOfflineTransport([]*Track{
		NewTrack(rec, sequence.Parse("A4 - C4"), false),
		NewTrack(rec, sequence.Parse("E4"), false),
		NewTrack(muted, sequence.Parse("G4 G4 G4 G4 G4 G4"), true),
	}, OfflineOptions{Tempo: 120})

	end := off.Schedule(0)
	got := rec.all()
	require.Len(t, got, 3)
	assert.Contains(t, got, scheduled{"A4", 0, 0.25})
	assert.Contains(t, got, scheduled{"C4", 0.25, 0.375})
	assert.Contains(t, got, scheduled{"E4", 0, 0.125})
	assert.Empty(t, muted.all())
	// The muted track still takes up its steps.
	assert.Equal(t, 0.75, end)
}

func TestOfflineTiedNoteExtendsEnd(t *testing.T) {
	off := NewOfflineTransport([]*Track{
		NewTrack(&recordingScheduler{}, sequence.Sequence{note.Sounding(0, 4, 3)}, false),
	}, OfflineOptions{Tempo: 120, Tail: 0.5})
	assert.Equal(t, 0.375, off.Schedule(0))
	assert.Equal(t, 0.875, off.Duration())
}

func TestOfflineRunDeliversWAV(t *testing.T) {
	off := NewOfflineTransport([]*Track{
		NewTrack(&recordingScheduler{}, sequence.Parse("A4 C4 D4 E4"), false),
	}, OfflineOptions{Tempo: 120, Tail: 0.5})
	r := &fakeRenderer{rate: 8000}

	done := make(chan []byte, 1)
	off.Run(context.Background(), r, func(data []byte, err error) {
		assert.NoError(t, err)
		done <- data
	})
	select {
	case data := <-done:
		assert.Equal(t, 1.0, r.seconds)
		assert.Len(t, data, 44+2*8000)
		assert.Equal(t, "RIFF", string(data[:4]))
	case <-time.After(5 * time.Second):
		t.Fatal("export never completed")
	}
}

func TestOfflineRenderError(t *testing.T) {
	boom := errors.New("boom")
	off := NewOfflineTransport(nil, OfflineOptions{})
	_, err := off.Render(context.Background(), &fakeRenderer{rate: 8000, err: boom})
	assert.ErrorIs(t, err, boom)
}

func BenchmarkTrackTick(b *testing.B) {
	seq := sequence.Parse("C4 - E4 G4 - - C5 . A3 - C4 E4 . . G3 -")
	rec := &recordingScheduler{}
	for i := 0; i < b.N; i++ {
		rec.notes = rec.notes[:0]
		tr := NewTrack(rec, seq, false)
		tr.Reset(0)
		tr.Tick(60, 0.125, true)
	}
}
