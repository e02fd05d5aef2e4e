// Package audio streams a sample source to the sound card.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Source fills dst with interleaved stereo float32 frames.
type Source interface {
	Process(dst []float32)
}

// FinishingSource is a Source that can signal when playback has ended.
// When Finished returns true, the stream returns io.EOF on the next Read.
type FinishingSource interface {
	Source
	Finished() bool
}

// StreamReader adapts a Source to the little-endian float32 byte stream the
// audio context pulls from.
type StreamReader struct {
	mu     sync.Mutex
	source Source
	buf    []float32
}

func NewStreamReader(source Source) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, s := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// Output plays one Source on the shared audio context.
type Output struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	contextOnce       sync.Once
	sharedContext     *ebitaudio.Context
	contextSampleRate int
)

// The audio context is process-wide and its rate cannot change once made.
func audioContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		contextSampleRate = sampleRate
		sharedContext = ebitaudio.NewContext(sampleRate)
	})
	if contextSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already running at %d Hz (requested %d Hz)", contextSampleRate, sampleRate)
	}
	return sharedContext, nil
}

// NewOutput opens the sound card. bufferSize bounds the output latency;
// zero keeps the platform default.
func NewOutput(sampleRate int, source Source, bufferSize time.Duration) (*Output, error) {
	ctx, err := audioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	if bufferSize > 0 {
		pl.SetBufferSize(bufferSize)
	}
	return &Output{player: pl, reader: reader}, nil
}

// Play starts pulling from the source. The stream runs until Close.
func (o *Output) Play() { o.player.Play() }

func (o *Output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.reader.Close()
}
