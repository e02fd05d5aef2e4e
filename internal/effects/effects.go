// Package effects holds the insert effects of a channel bus. The engine
// renders mono, so every effect takes and returns one sample.
package effects

// Effector processes one mono sample at a time.
type Effector interface {
	Process(x float32) float32
	Reset()
}

// Chain runs its effects in insertion order.
type Chain []Effector

func NewChain(effects ...Effector) Chain {
	return Chain(effects)
}

func (c Chain) Process(x float32) float32 {
	for _, e := range c {
		x = e.Process(x)
	}
	return x
}

// Reset clears the state of every effect, e.g. when playback restarts.
func (c Chain) Reset() {
	for _, e := range c {
		e.Reset()
	}
}
