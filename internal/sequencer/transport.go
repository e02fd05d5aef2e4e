package sequencer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cbegin/stepsynth-go/internal/sequence"
)

const (
	DefaultTickInterval  = 50 * time.Millisecond
	DefaultScheduleAhead = 0.2 // seconds
	DefaultTempo         = 100.0
)

// Clock reports the current time on the backend timeline, in seconds.
type Clock interface {
	Now() float64
}

// EventKind identifies transport lifecycle events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	// EventFinished fires when every track played through without looping.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

type Options struct {
	TickInterval  time.Duration
	ScheduleAhead float64
	Tempo         float64
	Loop          bool
	// OnStop runs one step after the transport stops itself at the end of
	// the song, leaving the last note time to ring.
	OnStop func()
	// OnEvent runs with the transport locked; it must not call back into it.
	OnEvent func(EventKind)
	// AfterFunc defers OnStop. Defaults to time.AfterFunc.
	AfterFunc func(time.Duration, func())
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		TickInterval:  DefaultTickInterval,
		ScheduleAhead: DefaultScheduleAhead,
		Tempo:         DefaultTempo,
		Loop:          true,
	}
}

type stepMark struct {
	time float64
	step int
}

// Transport drives tracks in real time. A ticker polls every TickInterval
// and schedules everything that starts within ScheduleAhead of the clock;
// the backend is responsible for sample-accurate playback after that.
type Transport struct {
	mu sync.Mutex

	clock  Clock
	opts   Options
	logger *slog.Logger
	tracks []*Track

	tempo        float64
	stepInterval float64
	loop         bool
	playing      bool
	stop         chan struct{}

	// Song position, advanced in lockstep with the tracks.
	stepTime float64
	step     int
	marks    []stepMark
}

func NewTransport(clock Clock, tracks []*Track, opts Options) *Transport {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.ScheduleAhead <= 0 {
		opts.ScheduleAhead = def.ScheduleAhead
	}
	if opts.Tempo <= 0 {
		opts.Tempo = def.Tempo
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		clock:  clock,
		opts:   opts,
		logger: logger,
		tracks: tracks,
		loop:   opts.Loop,
	}
	t.setTempoLocked(opts.Tempo)
	return t
}

// StepInterval is the length of one sixteenth-note step at tempo bpm.
func StepInterval(bpm float64) float64 {
	return 60.0 / (bpm * 4)
}

// SetTempo changes the step length. Steps already scheduled keep their
// timing; the next unscheduled step uses the new one.
func (t *Transport) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	t.mu.Lock()
	t.setTempoLocked(bpm)
	t.mu.Unlock()
}

func (t *Transport) setTempoLocked(bpm float64) {
	t.tempo = bpm
	t.stepInterval = StepInterval(bpm)
}

func (t *Transport) Tempo() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tempo
}

func (t *Transport) StepInterval() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stepInterval
}

func (t *Transport) SetLoop(loop bool) {
	t.mu.Lock()
	t.loop = loop
	t.mu.Unlock()
}

func (t *Transport) Loop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}

func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Start rewinds every track to now, schedules the first window right away
// and then keeps polling. Starting a playing transport does nothing.
func (t *Transport) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return
	}
	now := t.clock.Now()
	for _, tr := range t.tracks {
		tr.Reset(now)
	}
	t.stepTime = now
	t.step = 0
	t.marks = t.marks[:0]
	t.playing = true
	t.stop = make(chan struct{})
	t.logger.Debug("transport started", "tempo", t.tempo, "loop", t.loop, "tracks", len(t.tracks))
	t.emit(EventStarted)

	t.tickLocked()
	if t.playing {
		go t.run(t.stop, t.opts.TickInterval)
	}
}

func (t *Transport) run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Stop halts scheduling. Events already handed to the backend still play.
// Stopping a stopped transport does nothing.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Transport) stopLocked() bool {
	if !t.playing {
		return false
	}
	t.playing = false
	t.marks = t.marks[:0]
	close(t.stop)
	t.logger.Debug("transport stopped")
	t.emit(EventStopped)
	return true
}

// Toggle starts a stopped transport and stops a playing one.
func (t *Transport) Toggle() {
	t.mu.Lock()
	playing := t.playing
	t.mu.Unlock()
	if playing {
		t.Stop()
	} else {
		t.Start()
	}
}

// Tick runs one scheduling pass. The ticker calls it; tests may call it
// directly.
func (t *Transport) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	t.tickLocked()
}

func (t *Transport) tickLocked() {
	horizon := t.clock.Now() + t.opts.ScheduleAhead
	for _, tr := range t.tracks {
		tr.Tick(horizon, t.stepInterval, t.loop)
	}
	t.markSteps(horizon)
	t.pruneMarks(horizon - t.opts.ScheduleAhead)

	if t.loop || !t.allFinished() {
		return
	}
	t.stopLocked()
	t.logger.Debug("transport reached end of song")
	t.emit(EventFinished)
	if t.opts.OnStop != nil {
		delay := time.Duration(t.stepInterval * float64(time.Second))
		t.opts.AfterFunc(delay, t.opts.OnStop)
	}
}

func (t *Transport) allFinished() bool {
	for _, tr := range t.tracks {
		if !tr.Finished() {
			return false
		}
	}
	return true
}

func (t *Transport) markSteps(horizon float64) {
	songSteps := t.songStepsLocked()
	for t.stepTime < horizon {
		if !t.loop && t.step >= songSteps {
			return
		}
		t.marks = append(t.marks, stepMark{time: t.stepTime, step: t.step})
		t.step++
		t.stepTime += t.stepInterval
	}
}

// pruneMarks drops every mark older than the latest one started by now.
func (t *Transport) pruneMarks(now float64) {
	last := -1
	for i, m := range t.marks {
		if m.time > now {
			break
		}
		last = i
	}
	if last > 0 {
		t.marks = append(t.marks[:0], t.marks[last:]...)
	}
}

// CurrentStep is the song step sounding now, wrapped to the song length.
// It is -1 while stopped and before the first step starts.
func (t *Transport) CurrentStep() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.pruneMarks(now)
	if len(t.marks) == 0 || t.marks[0].time > now {
		return -1
	}
	step := t.marks[0].step
	if n := t.songStepsLocked(); n > 0 {
		step %= n
	}
	return step
}

// SongSteps is the length of the longest track.
func (t *Transport) SongSteps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.songStepsLocked()
}

func (t *Transport) songStepsLocked() int {
	seqs := make([]sequence.Sequence, len(t.tracks))
	for i, tr := range t.tracks {
		seqs[i] = tr.Sequence()
	}
	return sequence.Longest(seqs...)
}

// ReplaceTracks swaps in a new set of tracks. While playing, each new track
// picks up at the current song position instead of starting over.
func (t *Transport) ReplaceTracks(tracks []*Track) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = tracks
	if !t.playing {
		return
	}
	for _, tr := range tracks {
		tr.seek(t.stepTime, t.step, t.loop)
	}
}

// SetMuted mutes or unmutes track i.
func (t *Transport) SetMuted(i int, muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= 0 && i < len(t.tracks) {
		t.tracks[i].SetMuted(muted)
	}
}

func (t *Transport) emit(kind EventKind) {
	if t.opts.OnEvent != nil {
		t.opts.OnEvent(kind)
	}
}
