package stepsynth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/render"
	intseq "github.com/cbegin/stepsynth-go/internal/sequencer"
	"github.com/cbegin/stepsynth-go/internal/song"
	"github.com/cbegin/stepsynth-go/internal/wave"
)

type ExportOption func(*exportConfig)

type exportConfig struct {
	sampleRate int
	tail       float64 // < 0 picks one from the song
	logger     *slog.Logger
}

func defaultExportConfig() exportConfig {
	return exportConfig{sampleRate: wave.SampleRate, tail: -1}
}

func WithExportSampleRate(rate int) ExportOption {
	return func(cfg *exportConfig) {
		cfg.sampleRate = rate
	}
}

// WithTail sets how many seconds are rendered after the last step so
// releases and delays can decay.
func WithTail(seconds float64) ExportOption {
	return func(cfg *exportConfig) {
		cfg.tail = seconds
	}
}

func WithExportLogger(logger *slog.Logger) ExportOption {
	return func(cfg *exportConfig) {
		cfg.logger = logger
	}
}

// defaultTail covers the longest release plus a few delay repeats.
func defaultTail(s Song) float64 {
	tail := envelope.MinRelease
	for _, t := range s.Tracks {
		tail = math.Max(tail, envelope.ReleaseEnd(0, t.Instrument.Envelope.Release))
		if t.Delay.Time > 0 {
			repeats := 1.0
			if t.Delay.Feedback > 0 {
				repeats = 4
			}
			tail = math.Max(tail, t.Delay.Time*repeats)
		}
	}
	return tail
}

type offlineRun struct {
	transport *intseq.OfflineTransport
	engine    *render.Engine
	tail      float64
}

func newOfflineRun(s Song, opts []ExportOption) (*offlineRun, error) {
	cfg := defaultExportConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.sampleRate)
	}
	if cfg.tail < 0 {
		cfg.tail = defaultTail(s)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	// Every note is handed over before the first frame renders, so the
	// engine must not cap voices.
	engine := render.New(cfg.sampleRate, render.Options{Voices: -1, MasterGain: s.Amplitude, Logger: logger})
	if err := configureEngine(engine, s); err != nil {
		return nil, err
	}
	_, tracks, _ := buildTracks(s, engine)
	tempo := s.Tempo
	if tempo <= 0 {
		tempo = song.DefaultTempo
	}
	return &offlineRun{
		transport: intseq.NewOfflineTransport(tracks, intseq.OfflineOptions{
			Tempo:  tempo,
			Tail:   cfg.tail,
			Logger: logger,
		}),
		engine: engine,
		tail:   cfg.tail,
	}, nil
}

// Export renders every track of the song through once, as fast as possible,
// and returns a mono 16-bit WAV file. Loop mode does not apply.
func Export(ctx context.Context, s Song, opts ...ExportOption) ([]byte, error) {
	run, err := newOfflineRun(s, opts)
	if err != nil {
		return nil, err
	}
	return run.transport.Render(ctx, run.engine)
}

// ExportAsync is Export in the background; complete receives the result.
// complete may be nil.
func ExportAsync(ctx context.Context, s Song, complete func([]byte, error), opts ...ExportOption) {
	run, err := newOfflineRun(s, opts)
	if err != nil {
		if complete != nil {
			go complete(nil, err)
		}
		return
	}
	run.transport.Run(ctx, run.engine, complete)
}

// RenderSamples renders the song once and returns the raw mono samples.
func RenderSamples(ctx context.Context, s Song, opts ...ExportOption) ([]float32, error) {
	run, err := newOfflineRun(s, opts)
	if err != nil {
		return nil, err
	}
	end := run.transport.Schedule(0)
	return run.engine.Render(ctx, end+run.tail)
}

// Export renders the player's current song to a WAV file in the background
// without disturbing live playback. complete may be nil.
func (p *Player) Export(ctx context.Context, filename string, complete func(error)) {
	s := p.Song()
	p.logger.Debug("export started", "file", filename)
	ExportAsync(ctx, s, func(data []byte, err error) {
		if err == nil {
			err = os.WriteFile(filename, data, 0o644)
		}
		if err != nil {
			p.logger.Error("export failed", "file", filename, "err", err)
		} else {
			p.logger.Debug("export finished", "file", filename, "bytes", len(data))
		}
		if complete != nil {
			complete(err)
		}
	}, WithExportLogger(p.logger))
}
