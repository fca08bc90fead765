package workload

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidProportions is returned when a mix does not sum to 1.0
var ErrInvalidProportions = errors.New("operation proportions must sum to 1.0")

// ProportionTolerance is the allowed deviation of a mix's sum from 1.0
const ProportionTolerance = 0.01

// OperationMix holds the fraction of each operation kind in a workload
type OperationMix struct {
	Read            float64 `yaml:"read" json:"read" toml:"read"`
	Insert          float64 `yaml:"insert" json:"insert" toml:"insert"`
	Update          float64 `yaml:"update" json:"update" toml:"update"`
	Delete          float64 `yaml:"delete" json:"delete" toml:"delete"`
	Scan            float64 `yaml:"scan" json:"scan" toml:"scan"`
	ReadModifyWrite float64 `yaml:"read_modify_write" json:"read_modify_write" toml:"read_modify_write"`
}

// WorkloadA is update heavy: 50% read, 50% update
func WorkloadA() OperationMix { return OperationMix{Read: 0.5, Update: 0.5} }

// WorkloadB is read mostly: 95% read, 5% update
func WorkloadB() OperationMix { return OperationMix{Read: 0.95, Update: 0.05} }

// WorkloadC is read only
func WorkloadC() OperationMix { return OperationMix{Read: 1.0} }

// WorkloadD reads the latest records: 95% read, 5% insert
func WorkloadD() OperationMix { return OperationMix{Read: 0.95, Insert: 0.05} }

// WorkloadE is short ranges: 95% scan, 5% insert
func WorkloadE() OperationMix { return OperationMix{Scan: 0.95, Insert: 0.05} }

// WorkloadF is read-modify-write: 50% read, 50% read-modify-write
func WorkloadF() OperationMix { return OperationMix{Read: 0.5, ReadModifyWrite: 0.5} }

// Proportion returns the fraction configured for kind
func (m OperationMix) Proportion(kind OperationKind) float64 {
	switch kind {
	case OpRead:
		return m.Read
	case OpInsert:
		return m.Insert
	case OpUpdate:
		return m.Update
	case OpDelete:
		return m.Delete
	case OpScan:
		return m.Scan
	case OpReadModifyWrite:
		return m.ReadModifyWrite
	default:
		return 0
	}
}

// Sum returns the total of all proportions
func (m OperationMix) Sum() float64 {
	return m.Read + m.Insert + m.Update + m.Delete + m.Scan + m.ReadModifyWrite
}

// Validate checks that no proportion is negative and that the sum is 1.0
// within ProportionTolerance.
func (m OperationMix) Validate() error {
	for _, kind := range AllOperationKinds {
		p := m.Proportion(kind)
		if p < 0 || math.IsNaN(p) {
			return fmt.Errorf("%w: %s proportion is %v", ErrInvalidProportions, kind, p)
		}
	}
	if sum := m.Sum(); math.Abs(sum-1.0) > ProportionTolerance {
		return fmt.Errorf("%w: got %.4f", ErrInvalidProportions, sum)
	}
	return nil
}

// Normalize scales the proportions so they sum to exactly 1.0. A mix whose
// sum is zero cannot be normalized and is returned unchanged.
func (m OperationMix) Normalize() OperationMix {
	sum := m.Sum()
	if sum <= 0 {
		return m
	}
	return OperationMix{
		Read:            m.Read / sum,
		Insert:          m.Insert / sum,
		Update:          m.Update / sum,
		Delete:          m.Delete / sum,
		Scan:            m.Scan / sum,
		ReadModifyWrite: m.ReadModifyWrite / sum,
	}
}

// HasWrites reports whether any mutating operation has a nonzero share
func (m OperationMix) HasWrites() bool {
	for _, kind := range AllOperationKinds {
		if kind.IsWrite() && m.Proportion(kind) > 0 {
			return true
		}
	}
	return false
}
