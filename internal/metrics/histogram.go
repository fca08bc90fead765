package metrics

import "math"

// DefaultBucketBounds are the upper bounds, in microseconds, of the latency
// histogram buckets. Anything above the last bound lands in the overflow
// bucket.
var DefaultBucketBounds = []uint64{
	100,
	250,
	500,
	1_000,
	2_500,
	5_000,
	10_000,
	25_000,
	50_000,
	100_000,
	250_000,
	500_000,
	1_000_000,
}

// HistogramBucket is one latency band. UpperUs is math.MaxUint64 for the
// overflow bucket.
type HistogramBucket struct {
	LowerUs           uint64  `json:"lower_us"`
	UpperUs           uint64  `json:"upper_us"`
	Count             uint64  `json:"count"`
	Percent           float64 `json:"percent"`
	CumulativePercent float64 `json:"cumulative_percent"`
}

// Overflow reports whether this is the open-ended last bucket
func (b HistogramBucket) Overflow() bool {
	return b.UpperUs == math.MaxUint64
}

// buildHistogram expects sorted samples. A sample equal to a bound belongs to
// the next bucket: bands are [lower, upper).
func buildHistogram(sorted []uint64, bounds []uint64) []HistogramBucket {
	buckets := make([]HistogramBucket, 0, len(bounds)+1)
	lower := uint64(0)
	for _, upper := range bounds {
		buckets = append(buckets, HistogramBucket{LowerUs: lower, UpperUs: upper})
		lower = upper
	}
	buckets = append(buckets, HistogramBucket{LowerUs: lower, UpperUs: math.MaxUint64})

	i := 0
	for _, v := range sorted {
		for i < len(buckets)-1 && v >= buckets[i].UpperUs {
			i++
		}
		buckets[i].Count++
	}

	total := float64(len(sorted))
	cumulative := uint64(0)
	for i := range buckets {
		cumulative += buckets[i].Count
		if total > 0 {
			buckets[i].Percent = float64(buckets[i].Count) / total * 100
			buckets[i].CumulativePercent = float64(cumulative) / total * 100
		}
	}
	return buckets
}
