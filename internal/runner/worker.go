package runner

import (
	"fmt"

	"kvbench/internal/target"
	"kvbench/internal/workload"
)

// worker owns every piece of per-goroutine state: its random source, chooser,
// sampler and value buffer. Nothing in it is shared.
type worker struct {
	id      int
	runner  *Runner
	src     workload.Source
	chooser *workload.OperationChooser
	sampler workload.Sampler
	scanMax int
	value   []byte
}

func (r *Runner) newWorker(id int) (*worker, error) {
	src := r.sourceFor(id)

	chooser, err := workload.NewOperationChooser(r.def.Mix, src)
	if err != nil {
		return nil, err
	}

	sampler, err := r.newSampler(src)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", id, err)
	}

	scanMax := r.def.MaxScanLength
	if scanMax <= 0 {
		scanMax = 1
	}

	return &worker{
		id:      id,
		runner:  r,
		src:     src,
		chooser: chooser,
		sampler: sampler,
		scanMax: scanMax,
		value:   make([]byte, r.cfg.Workload.ValueSize),
	}, nil
}

func (r *Runner) sourceFor(id int) workload.Source {
	if r.cfg.Workload.Seed != 0 {
		return workload.NewSource(r.cfg.Workload.Seed + uint64(id))
	}
	return workload.NewTimeSeededSource(id)
}

// newSampler covers the loaded records. Uniform is max-exclusive while the
// skewed samplers are max-inclusive.
func (r *Runner) newSampler(src workload.Source) (workload.Sampler, error) {
	records := r.cfg.Workload.RecordCount
	theta := r.cfg.Workload.ZipfianTheta
	if theta == 0 {
		theta = workload.DefaultZipfianTheta
	}
	switch r.def.Distribution {
	case workload.DistributionUniform:
		return workload.NewUniform(0, records, src), nil
	default:
		return workload.NewSampler(r.def.Distribution, 0, records-1, theta, src)
	}
}

// keyIndex draws an existing record. Latest samplers follow the insert
// counter so that fresh inserts become the hottest keys.
func (w *worker) keyIndex() uint64 {
	count := w.runner.keyCount()
	switch s := w.sampler.(type) {
	case *workload.Latest:
		s.UpdateMaxKey(count - 1)
		return s.Next()
	case *workload.Uniform:
		return s.NextInRange(0, count)
	default:
		return s.Next()
	}
}

func (w *worker) fillValue() []byte {
	workload.FillValue(w.value, w.src)
	return append([]byte(nil), w.value...)
}

// next builds the operation to issue
func (w *worker) next() target.Operation {
	kind := w.chooser.Choose()
	op := target.Operation{Kind: kind}

	switch kind {
	case workload.OpInsert:
		op.Key = workload.KeyName(w.runner.nextInsert())
		op.Value = w.fillValue()
	case workload.OpUpdate, workload.OpReadModifyWrite:
		op.Key = workload.KeyName(w.keyIndex())
		op.Value = w.fillValue()
	case workload.OpScan:
		start := w.keyIndex()
		length := 1 + int(w.src.Uint64()%uint64(w.scanMax))
		op.Key = workload.KeyName(start)
		op.ScanKeys = workload.ScanKeyNames(start, length, w.runner.keyCount())
	default:
		op.Key = workload.KeyName(w.keyIndex())
	}
	return op
}
