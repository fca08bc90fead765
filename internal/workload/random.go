package workload

import (
	"math/rand/v2"
	"time"
)

// Source is the randomness a sampler or chooser consumes.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
	Uint64() uint64
}

// NewSource returns a PCG-backed source. Workers should each own one.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewTimeSeededSource seeds from the wall clock and a worker index so that
// workers started in the same nanosecond still diverge.
func NewTimeSeededSource(worker int) Source {
	return NewSource(uint64(time.Now().UnixNano()) + uint64(worker)*0x2545f4914f6cdd1d)
}
