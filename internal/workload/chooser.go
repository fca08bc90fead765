package workload

// threshold is one row of the chooser's dispatch table
type threshold struct {
	upper float64
	kind  OperationKind
}

// OperationChooser picks an operation kind per draw according to a mix.
// It is immutable after construction; the random source is the only state it
// touches, so give each worker its own chooser.
type OperationChooser struct {
	mix        OperationMix
	thresholds [6]threshold
	src        Source
}

// NewOperationChooser validates the mix and derives cumulative thresholds in
// the fixed order read, insert, update, delete, scan, read-modify-write.
func NewOperationChooser(mix OperationMix, src Source) (*OperationChooser, error) {
	if err := mix.Validate(); err != nil {
		return nil, err
	}

	c := &OperationChooser{mix: mix, src: src}
	cumulative := 0.0
	for i, kind := range AllOperationKinds {
		cumulative += mix.Proportion(kind)
		c.thresholds[i] = threshold{upper: cumulative, kind: kind}
	}
	return c, nil
}

// Choose draws one uniform value in [0,1) and returns the kind whose interval
// contains it. A draw above every threshold (possible when the mix sums to
// slightly less than 1.0) falls back to read.
func (c *OperationChooser) Choose() OperationKind {
	return c.pick(c.src.Float64())
}

func (c *OperationChooser) pick(draw float64) OperationKind {
	for _, t := range c.thresholds {
		if draw < t.upper {
			return t.kind
		}
	}
	return OpRead
}

// Mix returns the mix the chooser was built from
func (c *OperationChooser) Mix() OperationMix {
	return c.mix
}

// Statistics draws n operations and returns the observed fraction per kind.
// Every kind is present in the result, possibly with 0.
func (c *OperationChooser) Statistics(n int) map[OperationKind]float64 {
	counts := make(map[OperationKind]int, len(AllOperationKinds))
	for i := 0; i < n; i++ {
		counts[c.Choose()]++
	}

	stats := make(map[OperationKind]float64, len(AllOperationKinds))
	for _, kind := range AllOperationKinds {
		if n > 0 {
			stats[kind] = float64(counts[kind]) / float64(n)
		} else {
			stats[kind] = 0
		}
	}
	return stats
}
