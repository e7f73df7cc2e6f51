package impact

import (
	"math/rand/v2"
)

// NoiseSource perturbs per-office load. Perturb returns a value in [-bound, +bound].
type NoiseSource interface {
	Perturb(bound float64) float64
}

// ZeroNoise never perturbs. It makes the estimate fully deterministic.
type ZeroNoise struct{}

// Perturb implements NoiseSource.
func (ZeroNoise) Perturb(float64) float64 { return 0 }

// NoiseFunc adapts a plain function, such as a fixed offset table, to NoiseSource.
type NoiseFunc func(bound float64) float64

// Perturb implements NoiseSource. The result is clamped to the bound.
func (f NoiseFunc) Perturb(bound float64) float64 {
	return clamp(f(bound), -bound, bound)
}

// SeededNoise draws uniform noise from a PCG generator.
// The same seed yields the same sequence. Not safe for concurrent use.
type SeededNoise struct {
	rng *rand.Rand
}

// NewSeededNoise returns a generator for seed.
func NewSeededNoise(seed uint64) *SeededNoise {
	return &SeededNoise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Perturb implements NoiseSource.
func (n *SeededNoise) Perturb(bound float64) float64 {
	if bound <= 0 {
		return 0
	}
	return (n.rng.Float64()*2 - 1) * bound
}
