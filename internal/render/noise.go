package render

import "math/rand"

// Noise sources loop over one second of precomputed samples, generated from
// a fixed seed so renders are repeatable.
const noiseSeed = 0x5eed

func whiteNoise(n int) []float32 {
	rng := rand.New(rand.NewSource(noiseSeed))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.Float64()*2 - 1)
	}
	return out
}

// pinkNoise filters white noise with Paul Kellet's approximation.
func pinkNoise(n int) []float32 {
	rng := rand.New(rand.NewSource(noiseSeed + 1))
	out := make([]float32, n)
	var b0, b1, b2, b3, b4, b5, b6 float64
	for i := range out {
		white := rng.Float64()*2 - 1
		b0 = 0.99886*b0 + white*0.0555179
		b1 = 0.99332*b1 + white*0.0750759
		b2 = 0.96900*b2 + white*0.1538520
		b3 = 0.86650*b3 + white*0.3104856
		b4 = 0.55000*b4 + white*0.5329522
		b5 = -0.7616*b5 - white*0.0168980
		// roughly unity gain
		out[i] = float32((b0 + b1 + b2 + b3 + b4 + b5 + b6 + white*0.5362) * 0.11)
		b6 = white * 0.115926
	}
	return out
}
