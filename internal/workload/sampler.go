package workload

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTheta = errors.New("zipfian theta must be in (0, 1)")
	ErrInvalidRange = errors.New("invalid key range")
)

// Distribution names a key access pattern
type Distribution string

const (
	DistributionUniform Distribution = "uniform"
	DistributionZipfian Distribution = "zipfian"
	DistributionLatest  Distribution = "latest"
)

// DefaultZipfianTheta is the YCSB default skew
const DefaultZipfianTheta = 0.99

// ParseDistribution parses a distribution name, case-insensitively
func ParseDistribution(s string) (Distribution, error) {
	switch d := Distribution(strings.ToLower(strings.TrimSpace(s))); d {
	case DistributionUniform, DistributionZipfian, DistributionLatest:
		return d, nil
	default:
		return "", fmt.Errorf("unknown distribution: %q", s)
	}
}

// Sampler generates key indices. The set of implementations is closed:
// Uniform, Zipfian and Latest.
type Sampler interface {
	// Next returns a key index within the sampler's current range
	Next() uint64
	// NextInRange draws from the sampler's shape rescaled onto [min, max]
	NextInRange(min, max uint64) uint64

	sealed()
}

// NewSampler builds the sampler for a distribution over [min, max]
func NewSampler(dist Distribution, min, max uint64, theta float64, src Source) (Sampler, error) {
	switch dist {
	case DistributionUniform:
		return NewUniform(min, max, src), nil
	case DistributionZipfian:
		return NewZipfian(min, max, theta, src)
	case DistributionLatest:
		if min != 0 {
			return nil, fmt.Errorf("%w: latest distribution starts at 0, got min %d", ErrInvalidRange, min)
		}
		return NewLatest(max, theta, src)
	default:
		return nil, fmt.Errorf("unknown distribution: %q", dist)
	}
}

// Uniform draws every index in [min, max) with equal probability
type Uniform struct {
	min uint64
	max uint64
	src Source
}

// NewUniform creates a uniform sampler. A range with max <= min always
// yields min.
func NewUniform(min, max uint64, src Source) *Uniform {
	return &Uniform{min: min, max: max, src: src}
}

func (u *Uniform) Next() uint64 {
	return u.NextInRange(u.min, u.max)
}

func (u *Uniform) NextInRange(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	return min + u.src.Uint64()%(max-min)
}

func (u *Uniform) sealed() {}

// rescale maps an offset drawn from a skewed sampler onto [min, max],
// keeping offset 0 at min so the head of the distribution is preserved.
func rescale(offset, min, max uint64) uint64 {
	if max <= min {
		return min
	}
	span := max - min + 1
	if span == 0 {
		// [0, MaxUint64]
		return offset
	}
	return min + offset%span
}
