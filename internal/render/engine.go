// Package render is the audio backend: it turns scheduled voices into
// samples, either streamed to the sound card or rendered offline.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cbegin/stepsynth-go/internal/effects"
	"github.com/cbegin/stepsynth-go/internal/instrument"
	"github.com/cbegin/stepsynth-go/internal/wave"
)

type Options struct {
	// Voices caps how many voices sound at once. Past it the oldest
	// releasing voice is stolen, or failing that the oldest voice. Zero
	// means the default; negative means no cap.
	Voices     int
	MasterGain float64
	Logger     *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Voices:     64,
		MasterGain: 1,
	}
}

type sampleData struct {
	data []float32
	rate float64
}

type channel struct {
	volume float64
	delay  *effects.Delay
	fx     effects.Chain
	bus    float64
}

// Engine mixes voices on a timeline that starts at zero and advances with
// every rendered frame. It is safe for concurrent use: the transport
// schedules while the audio stream pulls samples.
type Engine struct {
	mu sync.Mutex

	sampleRate float64
	opts       Options
	logger     *slog.Logger
	frame      atomic.Int64
	masterGain atomic.Uint64
	closed     atomic.Bool

	voices   []*voice
	byID     map[uint64]*voice
	channels map[int]*channel
	order    []int // channel IDs, sorted so mixing is deterministic
	samples  map[string]*sampleData
	white    []float32
	pink     []float32

	dcPrevIn  float64
	dcPrevOut float64
}

func New(sampleRate int, opts Options) *Engine {
	if opts.Voices == 0 {
		opts.Voices = DefaultOptions().Voices
	}
	if opts.MasterGain < 0 {
		opts.MasterGain = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		opts:       opts,
		logger:     logger,
		byID:       make(map[uint64]*voice),
		channels:   make(map[int]*channel),
		samples:    make(map[string]*sampleData),
		white:      whiteNoise(sampleRate),
		pink:       pinkNoise(sampleRate),
	}
	e.SetMasterGain(opts.MasterGain)
	return e
}

func (e *Engine) SampleRate() int { return int(e.sampleRate) }

// Now is the time of the next frame to be rendered, in seconds.
func (e *Engine) Now() float64 {
	return float64(e.frame.Load()) / e.sampleRate
}

// SetMasterGain scales the final mix. It takes effect on the next frame.
func (e *Engine) SetMasterGain(gain float64) {
	if gain < 0 || math.IsNaN(gain) {
		gain = 0
	}
	e.masterGain.Store(math.Float64bits(gain))
}

func (e *Engine) MasterGain() float64 {
	return math.Float64frombits(e.masterGain.Load())
}

// AddChannel creates or reconfigures the bus voices with the given channel
// are mixed into. Voices on unknown channels play at unity with no delay.
func (e *Engine) AddChannel(id int, volume, delayTime, delayFeedback float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.channels[id]; ok {
		ch.volume = volume
		ch.delay.SetTime(delayTime)
		ch.delay.SetFeedback(float32(delayFeedback))
		return
	}
	d := effects.NewEcho(int(e.sampleRate), delayTime, float32(delayFeedback))
	e.channels[id] = &channel{volume: volume, delay: d, fx: effects.NewChain(d)}
	e.order = append(e.order, id)
	sort.Ints(e.order)
}

// RemoveChannel drops a bus. Voices still playing on it fall back to the
// master mix.
func (e *Engine) RemoveChannel(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.channels[id]; !ok {
		return
	}
	delete(e.channels, id)
	e.order = slices.DeleteFunc(e.order, func(v int) bool { return v == id })
}

// Channels lists the configured bus IDs in mixing order.
func (e *Engine) Channels() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.order)
}

// AddSample registers mono sample data under the name sample voices refer
// to it by.
func (e *Engine) AddSample(name string, data []float32, sampleRate int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples[name] = &sampleData{data: data, rate: float64(sampleRate)}
}

// LoadSample reads a WAV file and registers it under its path.
func (e *Engine) LoadSample(path string) error {
	data, rate, err := wave.LoadSample(path)
	if err != nil {
		return fmt.Errorf("load sample %s: %w", path, err)
	}
	e.AddSample(path, data, rate)
	return nil
}

// ScheduleVoice adds a voice, or replaces the automation of one already
// scheduled with the same ID.
func (e *Engine) ScheduleVoice(params instrument.Voice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.byID[params.ID]; ok {
		v.update(params)
		return
	}
	noise := e.white
	if params.Noise.Type == instrument.PinkNoise {
		noise = e.pink
	}
	var sample *sampleData
	if params.Kind == instrument.KindSample {
		sample = e.samples[params.Sample]
		if sample == nil {
			e.logger.Debug("sample not loaded", "sample", params.Sample)
		}
	}
	if e.opts.Voices > 0 {
		if victim := e.stealCandidate(params.GateOn); victim >= 0 {
			v := e.voices[victim]
			e.logger.Debug("voice stolen", "id", v.params.ID, "channel", v.params.Channel, "gate_on", v.params.GateOn)
			e.removeVoice(victim)
		}
	}
	v := newVoice(params, noise, sample)
	e.voices = append(e.voices, v)
	e.byID[params.ID] = v
}

// stealCandidate picks the voice to drop when a voice starting at gateOn
// would exceed the cap: the oldest releasing voice, or failing that the
// oldest. Only voices still sounding at gateOn count against the cap, and
// voices that have not started yet are never stolen, so a whole song
// scheduled ahead keeps its opening notes. It returns -1 when nothing has
// to go.
func (e *Engine) stealCandidate(gateOn float64) int {
	now := e.Now()
	overlapping := 0
	victim := -1
	victimReleased := false
	for i, v := range e.voices {
		if v.params.GateOn > gateOn || v.done(gateOn) {
			continue
		}
		overlapping++
		if v.params.GateOn > now {
			continue
		}
		released := v.params.Released()
		switch {
		case victim < 0,
			released && !victimReleased,
			released == victimReleased && v.params.GateOn < e.voices[victim].params.GateOn:
			victim, victimReleased = i, released
		}
	}
	if overlapping < e.opts.Voices {
		return -1
	}
	return victim
}

func (e *Engine) removeVoice(i int) {
	delete(e.byID, e.voices[i].params.ID)
	e.voices = append(e.voices[:i], e.voices[i+1:]...)
}

func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.Now()
	n := 0
	for _, v := range e.voices {
		if now >= v.params.GateOn && !v.done(now) {
			n++
		}
	}
	return n
}

// Pending is the number of voices scheduled and not yet finished.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// Close makes the output stream end after its current read.
func (e *Engine) Close() { e.closed.Store(true) }

// Finished reports whether Close was called.
func (e *Engine) Finished() bool { return e.closed.Load() }

// Process fills dst with interleaved stereo frames.
func (e *Engine) Process(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		s := float32(e.renderFrame())
		dst[i] = s
		dst[i+1] = s
	}
}

// renderBlock is how many frames Render produces between context checks.
const renderBlock = 4096

// Render advances the engine by the given number of seconds, as fast as it
// can, and returns the mono mix.
func (e *Engine) Render(ctx context.Context, seconds float64) ([]float32, error) {
	frames := int(math.Round(seconds * e.sampleRate))
	if frames < 0 {
		frames = 0
	}
	out := make([]float32, frames)
	for start := 0; start < frames; start += renderBlock {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+renderBlock, frames)
		e.mu.Lock()
		for i := start; i < end; i++ {
			out[i] = float32(e.renderFrame())
		}
		e.mu.Unlock()
	}
	return out, nil
}

func (e *Engine) renderFrame() float64 {
	t := float64(e.frame.Load()) / e.sampleRate
	var mix float64
	for i := 0; i < len(e.voices); {
		v := e.voices[i]
		if v.done(t) {
			e.removeVoice(i)
			continue
		}
		i++
		if t < v.params.GateOn {
			continue
		}
		s := v.render(t, e.sampleRate)
		if ch, ok := e.channels[v.params.Channel]; ok {
			ch.bus += s
		} else {
			mix += s
		}
	}
	for _, id := range e.order {
		ch := e.channels[id]
		out := ch.fx.Process(float32(ch.bus * ch.volume))
		mix += float64(out)
		ch.bus = 0
	}
	e.frame.Add(1)
	mix *= e.MasterGain()
	return clamp(e.dcBlock(mix), -1, 1)
}

func (e *Engine) dcBlock(x float64) float64 {
	const r = 0.995
	y := x - e.dcPrevIn + r*e.dcPrevOut
	e.dcPrevIn = x
	e.dcPrevOut = y
	return y
}
