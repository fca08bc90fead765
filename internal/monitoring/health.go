package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kvbench/internal/runner"
	"kvbench/internal/stability"
	"kvbench/internal/target"
	"kvbench/internal/workload"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check
type HealthCheck struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration_ms"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Critical  bool                   `json:"critical"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Uptime    time.Duration          `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthChecker interface for implementing health checks
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthCheck
	IsCritical() bool
}

// HealthManager runs every registered checker. A failing critical checker
// makes the whole response unhealthy; a failing non-critical one only
// degrades it.
type HealthManager struct {
	mu        sync.Mutex
	checkers  []HealthChecker
	startTime time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{startTime: time.Now()}
}

// RegisterChecker adds a health checker
func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers = append(hm.checkers, checker)
}

// CheckHealth performs all health checks
func (hm *HealthManager) CheckHealth(ctx context.Context) HealthResponse {
	hm.mu.Lock()
	checkers := append([]HealthChecker(nil), hm.checkers...)
	hm.mu.Unlock()

	checks := make(map[string]HealthCheck, len(checkers))
	overall := HealthStatusHealthy

	for _, checker := range checkers {
		start := time.Now()
		check := checker.Check(ctx)
		check.Name = checker.Name()
		check.Duration = time.Since(start)
		check.Timestamp = time.Now()
		check.Critical = checker.IsCritical()
		checks[check.Name] = check

		switch check.Status {
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		case HealthStatusUnhealthy:
			if check.Critical {
				overall = HealthStatusUnhealthy
			} else if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	return HealthResponse{
		Status:    overall,
		Uptime:    time.Since(hm.startTime),
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// healthProbeKey is read, never written, so checks leave the dataset intact
const healthProbeKey = workload.KeyPrefix + "__health__"

// TargetHealthChecker issues a single read against the target. A missing key
// still proves the target answers.
type TargetHealthChecker struct {
	exec          target.Executor
	slowThreshold time.Duration
}

func NewTargetHealthChecker(exec target.Executor, slowThreshold time.Duration) *TargetHealthChecker {
	if slowThreshold <= 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &TargetHealthChecker{exec: exec, slowThreshold: slowThreshold}
}

func (c *TargetHealthChecker) Name() string { return "target" }

func (c *TargetHealthChecker) IsCritical() bool { return true }

func (c *TargetHealthChecker) Check(ctx context.Context) HealthCheck {
	start := time.Now()
	err := c.exec.Execute(ctx, target.Operation{Kind: workload.OpRead, Key: healthProbeKey})
	elapsed := time.Since(start)

	if err != nil && !errors.Is(err, target.ErrNotFound) {
		return HealthCheck{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("Target read failed: %v", err),
			Details: map[string]interface{}{"error": err.Error()},
		}
	}

	status := HealthStatusHealthy
	message := "Target is responding"
	if elapsed > c.slowThreshold {
		status = HealthStatusDegraded
		message = fmt.Sprintf("Target read took %v", elapsed)
	}
	return HealthCheck{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{"read_time_us": elapsed.Microseconds()},
	}
}

// MemoryHealthChecker reads the driver's own memory through a stability
// probe and compares it to a limit
type MemoryHealthChecker struct {
	probe    stability.MemoryProbe
	maxBytes uint64
}

func NewMemoryHealthChecker(probe stability.MemoryProbe, maxBytes uint64) *MemoryHealthChecker {
	return &MemoryHealthChecker{probe: probe, maxBytes: maxBytes}
}

func (c *MemoryHealthChecker) Name() string { return "memory" }

func (c *MemoryHealthChecker) IsCritical() bool { return false }

func (c *MemoryHealthChecker) Check(ctx context.Context) HealthCheck {
	reading, err := c.probe.Read()
	if err != nil {
		return HealthCheck{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("Memory probe unavailable: %v", err),
		}
	}

	details := map[string]interface{}{
		"current_bytes": reading.CurrentBytes,
		"peak_bytes":    reading.PeakBytes,
	}
	if c.maxBytes > 0 && reading.CurrentBytes > c.maxBytes {
		return HealthCheck{
			Status:  HealthStatusUnhealthy,
			Message: fmt.Sprintf("Memory usage exceeds limit (%d > %d bytes)", reading.CurrentBytes, c.maxBytes),
			Details: details,
		}
	}
	return HealthCheck{Status: HealthStatusHealthy, Message: "Memory usage is normal", Details: details}
}

// RunHealthChecker degrades health while the live error rate is above a
// percentage threshold
type RunHealthChecker struct {
	source          ProgressSource
	maxErrorPercent float64
}

func NewRunHealthChecker(source ProgressSource, maxErrorPercent float64) *RunHealthChecker {
	return &RunHealthChecker{source: source, maxErrorPercent: maxErrorPercent}
}

func (c *RunHealthChecker) Name() string { return "run" }

func (c *RunHealthChecker) IsCritical() bool { return false }

func (c *RunHealthChecker) Check(ctx context.Context) HealthCheck {
	p := c.source.Progress()
	total := p.Overall.Successful + p.Overall.Failed
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(p.Overall.Failed) / float64(total) * 100
	}

	details := map[string]interface{}{
		"phase":              p.Phase,
		"operations":         total,
		"error_rate_percent": errorRate,
	}
	if errorRate > c.maxErrorPercent {
		return HealthCheck{
			Status:  HealthStatusDegraded,
			Message: fmt.Sprintf("Error rate %.2f%% above %.2f%%", errorRate, c.maxErrorPercent),
			Details: details,
		}
	}
	return HealthCheck{Status: HealthStatusHealthy, Message: "Run is progressing", Details: details}
}

// ProgressSource is satisfied by *runner.Runner
type ProgressSource interface {
	Progress() runner.Progress
}
