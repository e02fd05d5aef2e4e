package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/cbegin/stepsynth-go/internal/wave"
)

// Renderer renders everything scheduled on it, from time zero, as fast as
// it can.
type Renderer interface {
	Render(ctx context.Context, seconds float64) ([]float32, error)
	SampleRate() int
}

type OfflineOptions struct {
	Tempo float64
	// Tail is rendered after the last gate off so releases and delays can
	// decay.
	Tail   float64
	Logger *slog.Logger
}

// OfflineTransport plays every track through exactly once, with no timers.
// Tracks of different lengths simply end at different times.
type OfflineTransport struct {
	tracks       []*Track
	stepInterval float64
	tail         float64
	logger       *slog.Logger
}

func NewOfflineTransport(tracks []*Track, opts OfflineOptions) *OfflineTransport {
	if opts.Tempo <= 0 {
		opts.Tempo = DefaultTempo
	}
	if opts.Tail < 0 {
		opts.Tail = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OfflineTransport{
		tracks:       tracks,
		stepInterval: StepInterval(opts.Tempo),
		tail:         opts.Tail,
		logger:       logger,
	}
}

// Schedule issues every note of every track starting at origin and returns
// the time the last step or gate ends.
func (o *OfflineTransport) Schedule(origin float64) float64 {
	end := origin
	for _, tr := range o.tracks {
		tr.Reset(origin)
		// The horizon lies past the last step, so one call plays the whole
		// sequence once and leaves the track finished.
		steps := len(tr.Sequence())
		tr.Tick(origin+float64(steps+1)*o.stepInterval, o.stepInterval, false)
		end = math.Max(end, origin+trackLength(tr, o.stepInterval))
	}
	return end
}

// Duration is how many seconds a render starting at zero needs.
func (o *OfflineTransport) Duration() float64 {
	end := 0.0
	for _, tr := range o.tracks {
		end = math.Max(end, trackLength(tr, o.stepInterval))
	}
	return end + o.tail
}

// trackLength covers every step and the gate of a note tied past the last one.
func trackLength(tr *Track, stepInterval float64) float64 {
	seq := tr.Sequence()
	steps := len(seq)
	if !tr.Muted() {
		for i, n := range seq {
			if n.IsSounding() && i+n.Steps > steps {
				steps = i + n.Steps
			}
		}
	}
	return float64(steps) * stepInterval
}

// Render schedules the song, renders it and encodes the result as WAV.
func (o *OfflineTransport) Render(ctx context.Context, r Renderer) ([]byte, error) {
	end := o.Schedule(0)
	seconds := end + o.tail
	o.logger.Debug("offline render", "seconds", seconds, "tracks", len(o.tracks), "sample_rate", r.SampleRate())
	samples, err := r.Render(ctx, seconds)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return wave.EncodeRate(samples, r.SampleRate()), nil
}

// Run renders in the background and hands the WAV bytes to complete.
func (o *OfflineTransport) Run(ctx context.Context, r Renderer, complete func([]byte, error)) {
	go func() {
		data, err := o.Render(ctx, r)
		if complete != nil {
			complete(data, err)
		}
	}()
}
