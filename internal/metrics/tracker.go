package metrics

import (
	"sort"
	"sync"
	"time"

	"kvbench/internal/workload"
)

// Tracker holds one Metrics per operation kind, created the first time that
// kind is observed.
type Tracker struct {
	mu      sync.RWMutex
	byKind  map[workload.OperationKind]*Metrics
	started time.Time
	stopped time.Time
	now     func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return NewTrackerWithClock(time.Now)
}

// NewTrackerWithClock creates a tracker whose collectors read time from now
func NewTrackerWithClock(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		byKind: make(map[workload.OperationKind]*Metrics),
		now:    now,
	}
}

// Start stamps the run start. Collectors created later inherit this start
// time so that every kind reports over the same interval.
func (t *Tracker) Start() {
	t.StartAt(t.now())
}

// StartAt stamps an explicit run start
func (t *Tracker) StartAt(start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.started = start
	t.stopped = time.Time{}
	for _, m := range t.byKind {
		m.StartAt(t.started)
	}
}

// Stop stamps the run end on every collector
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = t.now()
	for _, m := range t.byKind {
		m.StopAt(t.stopped)
	}
}

// Get returns the collector for kind, creating it on first use
func (t *Tracker) Get(kind workload.OperationKind) *Metrics {
	t.mu.RLock()
	m, ok := t.byKind[kind]
	t.mu.RUnlock()
	if ok {
		return m
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.byKind[kind]; ok {
		return m
	}
	m = NewWithClock(t.now)
	if !t.started.IsZero() {
		m.StartAt(t.started)
	}
	if !t.stopped.IsZero() {
		m.StopAt(t.stopped)
	}
	t.byKind[kind] = m
	return m
}

// Lookup returns the collector for kind without creating one
func (t *Tracker) Lookup(kind workload.OperationKind) (*Metrics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byKind[kind]
	return m, ok
}

// RecordSuccess records a successful operation of kind
func (t *Tracker) RecordSuccess(kind workload.OperationKind, latencyUs uint64) {
	t.Get(kind).RecordSuccess(latencyUs)
}

// RecordFailure records a failed operation of kind
func (t *Tracker) RecordFailure(kind workload.OperationKind) {
	t.Get(kind).RecordFailure()
}

// Kinds returns the observed kinds in chooser order
func (t *Tracker) Kinds() []workload.OperationKind {
	t.mu.RLock()
	defer t.mu.RUnlock()

	kinds := make([]workload.OperationKind, 0, len(t.byKind))
	for kind := range t.byKind {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Reset discards every collector
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byKind = make(map[workload.OperationKind]*Metrics)
	t.started = time.Time{}
	t.stopped = time.Time{}
}

// Summaries snapshots every observed kind. Call only after quiescence.
func (t *Tracker) Summaries(workloadName string) []Summary {
	kinds := t.Kinds()
	out := make([]Summary, 0, len(kinds))
	for _, kind := range kinds {
		m, _ := t.Lookup(kind)
		out = append(out, m.Summarize(workloadName, kind.String()))
	}
	return out
}
