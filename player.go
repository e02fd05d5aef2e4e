// Package stepsynth plays step-sequenced songs: rows of note text driven by
// a look-ahead transport through synth and sample instruments.
package stepsynth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	intaudio "github.com/cbegin/stepsynth-go/internal/audio"
	"github.com/cbegin/stepsynth-go/internal/instrument"
	"github.com/cbegin/stepsynth-go/internal/note"
	"github.com/cbegin/stepsynth-go/internal/render"
	intseq "github.com/cbegin/stepsynth-go/internal/sequencer"
	"github.com/cbegin/stepsynth-go/internal/song"
)

// Song is what a player plays. See package song for the file format.
type Song = song.Song

// DefaultSong is the song a player starts with when none is given.
func DefaultSong() Song { return song.Default() }

// LoadSong reads a YAML song file.
func LoadSong(path string) (Song, error) { return song.Load(path) }

// PlaybackEvent is sent to Watch channels.
type PlaybackEvent struct {
	Kind EventKind
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	// EventFinished fires when a non-looping song reached its last step.
	EventFinished
	// EventPlaybackEnded follows EventFinished one step later, once the last
	// note had time to sound, and follows any call to Stop.
	EventPlaybackEnded
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventFinished:
		return "finished"
	case EventPlaybackEnded:
		return "ended"
	default:
		return "unknown"
	}
}

const DefaultSampleRate = 44100

type PlayerOption func(*playerConfig)

type playerConfig struct {
	sampleRate int
	song       Song
	logger     *slog.Logger
	audio      bool
	clock      intseq.Clock
	voices     int
	bufferSize time.Duration
	sampleTap  func([]float32)
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		sampleRate: DefaultSampleRate,
		song:       song.Default(),
		audio:      true,
		voices:     render.DefaultOptions().Voices,
		bufferSize: 50 * time.Millisecond,
	}
}

func WithSampleRate(rate int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleRate = rate
	}
}

func WithSong(s Song) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.song = s
	}
}

func WithLogger(logger *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = logger
	}
}

// WithoutAudio keeps the player off the sound card. Voices are still
// scheduled on the engine, which is then advanced only by whoever reads it.
func WithoutAudio() PlayerOption {
	return func(cfg *playerConfig) {
		cfg.audio = false
	}
}

// WithClock replaces the engine clock the transport schedules against.
func WithClock(clock intseq.Clock) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.clock = clock
	}
}

func WithMaxVoices(n int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.voices = n
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

// tappedSource hands every buffer to a tap after rendering it.
type tappedSource struct {
	*render.Engine
	tap func([]float32)
}

func (s tappedSource) Process(dst []float32) {
	s.Engine.Process(dst)
	s.tap(dst)
}

type preview struct {
	inst  *instrument.Instrument
	voice instrument.Voice
}

// Player is the live control surface. Its methods are safe for concurrent
// use and, apart from construction, never fail: bad note text plays as
// silence.
type Player struct {
	mu        sync.Mutex
	cfg       playerConfig
	logger    *slog.Logger
	engine    *render.Engine
	output    *intaudio.Output
	transport *intseq.Transport

	song        Song
	instruments []*instrument.Instrument
	rows        [][]int // song track -> transport track indexes
	previews    map[uint64]preview

	done      chan struct{}
	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

func NewPlayer(opts ...PlayerOption) (*Player, error) {
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Player{
		cfg:      cfg,
		logger:   logger,
		previews: make(map[uint64]preview),
	}
	p.engine = render.New(cfg.sampleRate, render.Options{
		Voices:     cfg.voices,
		MasterGain: cfg.song.Amplitude,
		Logger:     logger,
	})
	clock := cfg.clock
	if clock == nil {
		clock = p.engine
	}
	s := cfg.song
	p.transport = intseq.NewTransport(clock, nil, intseq.Options{
		Tempo:   s.Tempo,
		Loop:    s.Loop,
		OnEvent: p.onTransportEvent,
		OnStop:  p.onPlaybackEnded,
		Logger:  logger,
	})
	p.ReplaceNotes(s)

	if cfg.audio {
		var src intaudio.Source = p.engine
		if cfg.sampleTap != nil {
			src = tappedSource{Engine: p.engine, tap: cfg.sampleTap}
		}
		out, err := intaudio.NewOutput(cfg.sampleRate, src, cfg.bufferSize)
		if err != nil {
			return nil, fmt.Errorf("open audio: %w", err)
		}
		p.output = out
		out.Play()
	}
	return p, nil
}

// buildTracks creates fresh instruments and sequencer tracks for a song.
// Every row of song track i becomes a sequencer track on channel i.
func buildTracks(s Song, sink instrument.Sink) ([]*instrument.Instrument, []*intseq.Track, [][]int) {
	insts := make([]*instrument.Instrument, len(s.Tracks))
	var tracks []*intseq.Track
	rows := make([][]int, len(s.Tracks))
	for i, t := range s.Tracks {
		insts[i] = instrument.New(t.Instrument, sink, i)
		for _, seq := range t.Sequences() {
			rows[i] = append(rows[i], len(tracks))
			tracks = append(tracks, intseq.NewTrack(insts[i], seq, t.Muted))
		}
	}
	return insts, tracks, rows
}

// configureEngine sets up one channel per song track and loads the samples
// sample instruments play. It returns the sample loading errors.
func configureEngine(e *render.Engine, s Song) error {
	var errs []error
	for i, t := range s.Tracks {
		e.AddChannel(i, t.Volume, t.Delay.Time, t.Delay.Feedback)
	}
	for _, id := range e.Channels() {
		if id >= len(s.Tracks) {
			e.RemoveChannel(id)
		}
	}
	loaded := map[string]bool{}
	for _, t := range s.Tracks {
		path := t.Instrument.Sample.Path
		if t.Instrument.Kind != instrument.KindSample || path == "" || loaded[path] {
			continue
		}
		loaded[path] = true
		if err := e.LoadSample(path); err != nil {
			errs = append(errs, err)
		}
	}
	e.SetMasterGain(s.Amplitude)
	return errors.Join(errs...)
}

// ReplaceNotes swaps in a new song. While playing, the new tracks pick up at
// the current step; tempo, loop mode and amplitude follow the new song.
func (p *Player) ReplaceNotes(s Song) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := configureEngine(p.engine, s); err != nil {
		p.logger.Warn("some samples could not be loaded and will be silent", "err", err)
	}
	insts, tracks, rows := buildTracks(s, p.engine)
	p.song = s
	p.instruments = insts
	p.rows = rows
	p.transport.SetTempo(s.Tempo)
	p.transport.SetLoop(s.Loop)
	p.transport.ReplaceTracks(tracks)
}

// Song returns the song being played.
func (p *Player) Song() Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.song
}

// Start begins playback from the first step. It does nothing while playing.
func (p *Player) Start() {
	p.mu.Lock()
	if p.transport.Playing() {
		p.mu.Unlock()
		return
	}
	if p.done == nil {
		p.done = make(chan struct{})
	}
	p.mu.Unlock()
	p.transport.Start()
}

// Stop halts scheduling. Notes already scheduled ring out.
func (p *Player) Stop() {
	if !p.transport.Playing() {
		return
	}
	p.transport.Stop()
	p.onPlaybackEnded()
}

// Toggle starts a stopped player and stops a playing one.
func (p *Player) Toggle() {
	if p.transport.Playing() {
		p.Stop()
	} else {
		p.Start()
	}
}

func (p *Player) Playing() bool { return p.transport.Playing() }

// SetTempo changes the tempo in beats per minute, from the next unscheduled
// step on. Non-positive values are ignored.
func (p *Player) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	p.mu.Lock()
	p.song.Tempo = bpm
	p.mu.Unlock()
	p.transport.SetTempo(bpm)
}

func (p *Player) Tempo() float64 { return p.transport.Tempo() }

// SetAmplitude sets the master gain immediately, without rescheduling.
func (p *Player) SetAmplitude(amplitude float64) {
	if amplitude < 0 {
		amplitude = 0
	}
	p.mu.Lock()
	p.song.Amplitude = amplitude
	p.mu.Unlock()
	p.engine.SetMasterGain(amplitude)
}

func (p *Player) Amplitude() float64 { return p.engine.MasterGain() }

func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	p.song.Loop = loop
	p.mu.Unlock()
	p.transport.SetLoop(loop)
}

// SetMuted silences song track i, every row of it, without losing its place.
func (p *Player) SetMuted(track int, muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if track < 0 || track >= len(p.rows) {
		return
	}
	p.song.Tracks = append([]song.Track(nil), p.song.Tracks...)
	p.song.Tracks[track].Muted = muted
	for _, idx := range p.rows[track] {
		p.transport.SetMuted(idx, muted)
	}
}

// CurrentStep is the step being heard, or -1 when stopped.
func (p *Player) CurrentStep() int { return p.transport.CurrentStep() }

// StepCount is the length of the longest row.
func (p *Player) StepCount() int { return p.transport.SongSteps() }

// NoteOn starts a note on a track's instrument and holds it until NoteOff.
// It reports false when the track does not exist or the text does not sound.
func (p *Player) NoteOn(track int, text string) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if track < 0 || track >= len(p.instruments) {
		return 0, false
	}
	inst := p.instruments[track]
	v, ok := inst.GateOn(note.FromToken(text, 1), p.engine.Now())
	if !ok {
		return 0, false
	}
	p.previews[v.ID] = preview{inst: inst, voice: v}
	return v.ID, true
}

// NoteOff releases a note started with NoteOn. Unknown IDs are ignored.
func (p *Player) NoteOff(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pv, ok := p.previews[id]
	if !ok {
		return
	}
	delete(p.previews, id)
	pv.inst.GateOff(pv.voice, p.engine.Now())
}

// Engine exposes the rendering backend, mainly for tests and meters.
func (p *Player) Engine() *render.Engine { return p.engine }

// Wait blocks until playback ends. Looping playback only ends with Stop.
// Wait returns immediately if nothing is playing.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events.
// The channel is buffered (cap 8); events that do not fit are dropped.
// Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// Close stops playback and releases the sound card.
func (p *Player) Close() error {
	p.Stop()
	p.engine.Close()
	p.mu.Lock()
	out := p.output
	p.output = nil
	p.mu.Unlock()
	if out != nil {
		return out.Close()
	}
	return nil
}

// onTransportEvent runs with the transport locked.
func (p *Player) onTransportEvent(kind intseq.EventKind) {
	switch kind {
	case intseq.EventStarted:
		p.sendEvent(PlaybackEvent{Kind: EventStarted})
	case intseq.EventStopped:
		p.sendEvent(PlaybackEvent{Kind: EventStopped})
	case intseq.EventFinished:
		p.sendEvent(PlaybackEvent{Kind: EventFinished})
	}
}

func (p *Player) onPlaybackEnded() {
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	p.signalDone()
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}
