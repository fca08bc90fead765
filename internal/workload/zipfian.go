package workload

import (
	"fmt"
	"math"
)

// Zipfian is the classic unscrambled YCSB Zipfian generator (Gray et al.,
// "Quickly Generating Billion-Record Synthetic Databases"). Small indices are
// drawn disproportionately often.
type Zipfian struct {
	min   uint64
	max   uint64
	items uint64
	theta float64

	alpha     float64
	zeta2     float64
	zetaN     float64
	eta       float64
	halfPowTh float64

	src Source
}

// NewZipfian builds a sampler over [min, max]. Construction sums zeta(n, theta)
// directly, which is O(n).
func NewZipfian(min, max uint64, theta float64, src Source) (*Zipfian, error) {
	if !(theta > 0 && theta < 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTheta, theta)
	}
	if max < min || max-min == math.MaxUint64 {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, min, max)
	}

	z := &Zipfian{
		min:       min,
		max:       max,
		items:     max - min + 1,
		theta:     theta,
		alpha:     1.0 / (1.0 - theta),
		zeta2:     Zeta(2, theta),
		halfPowTh: math.Pow(0.5, theta),
		src:       src,
	}
	z.zetaN = Zeta(z.items, theta)
	z.eta = z.computeEta()
	return z, nil
}

// Zeta computes sum_{i=1..n} i^-theta
func Zeta(n uint64, theta float64) float64 {
	return zetaRange(1, n, theta)
}

// zetaRange computes sum_{i=from..to} i^-theta
func zetaRange(from, to uint64, theta float64) float64 {
	sum := 0.0
	for i := from; i <= to; i++ {
		sum += 1.0 / math.Pow(float64(i), theta)
	}
	return sum
}

func (z *Zipfian) computeEta() float64 {
	denom := 1.0 - z.zeta2/z.zetaN
	if denom == 0 {
		// two items or fewer: Next never reaches the eta branch
		return 0
	}
	return (1.0 - math.Pow(2.0/float64(z.items), 1.0-z.theta)) / denom
}

func (z *Zipfian) Next() uint64 {
	u := z.src.Float64()
	uz := u * z.zetaN

	if uz < 1.0 {
		return z.min
	}
	if uz < 1.0+z.halfPowTh {
		return z.clamp(z.min + 1)
	}
	offset := uint64(float64(z.items) * math.Pow(z.eta*u-z.eta+1.0, z.alpha))
	return z.clamp(z.min + offset)
}

func (z *Zipfian) NextInRange(min, max uint64) uint64 {
	return rescale(z.Next()-z.min, min, max)
}

func (z *Zipfian) clamp(v uint64) uint64 {
	if v > z.max {
		return z.max
	}
	return v
}

// extend grows the item count to newItems, adding only the new zeta terms.
// Amortized O(1) per call when growth is one item at a time.
func (z *Zipfian) extend(newItems uint64) {
	if newItems <= z.items {
		return
	}
	z.zetaN += zetaRange(z.items+1, newItems, z.theta)
	z.items = newItems
	z.max = z.min + newItems - 1
	z.eta = z.computeEta()
}

// ZetaN returns the normalization constant for the current item count
func (z *Zipfian) ZetaN() float64 { return z.zetaN }

func (z *Zipfian) sealed() {}

// Latest favors the most recently inserted keys: it draws from a Zipfian over
// [0, maxKey] and mirrors the result, so index maxKey is the hottest.
type Latest struct {
	maxKey  uint64
	zipfian *Zipfian
}

// NewLatest builds a latest-distribution sampler over [0, maxKey]
func NewLatest(maxKey uint64, theta float64, src Source) (*Latest, error) {
	z, err := NewZipfian(0, maxKey, theta, src)
	if err != nil {
		return nil, err
	}
	return &Latest{maxKey: maxKey, zipfian: z}, nil
}

func (l *Latest) Next() uint64 {
	return l.maxKey - l.zipfian.Next()
}

func (l *Latest) NextInRange(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	// distance from the newest key, measured down from max
	back := l.zipfian.Next()
	span := max - min + 1
	if span != 0 {
		back %= span
	}
	return max - back
}

// UpdateMaxKey grows the key space. Calls with a value that does not exceed
// the current maximum are ignored; the key space never shrinks.
func (l *Latest) UpdateMaxKey(newMax uint64) {
	if newMax <= l.maxKey {
		return
	}
	l.zipfian.extend(newMax + 1)
	l.maxKey = newMax
}

// MaxKey returns the current newest key index
func (l *Latest) MaxKey() uint64 { return l.maxKey }

// ZetaN exposes the wrapped Zipfian's normalization constant
func (l *Latest) ZetaN() float64 { return l.zipfian.ZetaN() }

func (l *Latest) sealed() {}
