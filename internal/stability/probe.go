package stability

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/prometheus/procfs"
)

// ErrProbeUnavailable is returned when a memory reading cannot be taken
var ErrProbeUnavailable = errors.New("memory probe unavailable")

// MemoryReading is what a probe reports about the process
type MemoryReading struct {
	CurrentBytes  uint64
	PeakBytes     uint64
	Allocations   uint64
	Deallocations uint64
}

// MemoryProbe reads the memory footprint of the benchmark process. A failed
// reading is skipped by the analyzer, never fatal.
type MemoryProbe interface {
	Read() (MemoryReading, error)
}

// ProbeFunc adapts a function to MemoryProbe
type ProbeFunc func() (MemoryReading, error)

func (f ProbeFunc) Read() (MemoryReading, error) { return f() }

// RuntimeProbe reports Go runtime memory: bytes obtained from the OS minus
// bytes returned to it, which tracks resident size closely for a Go process.
type RuntimeProbe struct {
	peak uint64
}

// NewRuntimeProbe creates a runtime probe
func NewRuntimeProbe() *RuntimeProbe {
	return &RuntimeProbe{}
}

func (p *RuntimeProbe) Read() (MemoryReading, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	current := ms.Sys - ms.HeapReleased
	if current > p.peak {
		p.peak = current
	}
	return MemoryReading{
		CurrentBytes:  current,
		PeakBytes:     p.peak,
		Allocations:   ms.Mallocs,
		Deallocations: ms.Frees,
	}, nil
}

// ProcfsProbe reports VmRSS and VmHWM from /proc/self/status, with
// allocation counts from the Go runtime. Linux only.
type ProcfsProbe struct {
	proc procfs.Proc
}

// NewProcfsProbe opens /proc/self
func NewProcfsProbe() (*ProcfsProbe, error) {
	proc, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}
	return &ProcfsProbe{proc: proc}, nil
}

func (p *ProcfsProbe) Read() (MemoryReading, error) {
	status, err := p.proc.NewStatus()
	if err != nil {
		return MemoryReading{}, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return MemoryReading{
		CurrentBytes:  status.VmRSS,
		PeakBytes:     status.VmHWM,
		Allocations:   ms.Mallocs,
		Deallocations: ms.Frees,
	}, nil
}

// NewProbe builds the probe named by kind: "runtime" or "procfs"
func NewProbe(kind string) (MemoryProbe, error) {
	switch strings.ToLower(kind) {
	case "", "runtime":
		return NewRuntimeProbe(), nil
	case "procfs":
		return NewProcfsProbe()
	default:
		return nil, fmt.Errorf("unknown memory probe: %q", kind)
	}
}
