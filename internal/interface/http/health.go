package http

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/auri-hub/progress-hub/internal/domain/phase"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// CheckFunc performs a single health check. It returns an error if the check fails.
type CheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated result of all checks.
type HealthStatus struct {
	// Ready is false when a critical check failed.
	Ready bool `json:"ready"`

	// Degraded is true when a non-critical check failed. The engine keeps
	// answering with fallbacks in that state.
	Degraded bool `json:"degraded"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the result of a single check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type namedCheck struct {
	fn       CheckFunc
	critical bool
}

// HealthChecker runs registered checks concurrently, each under its own timeout.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]namedCheck
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewHealthChecker creates a checker with no checks.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]namedCheck),
		startTime: time.Now(),
		version:   version,
		timeout:   3 * time.Second,
	}
}

// SetTimeout sets the per-check timeout.
func (h *HealthChecker) SetTimeout(timeout time.Duration) {
	h.timeout = timeout
}

// AddCheck registers a check. A failing critical check makes the process not ready.
func (h *HealthChecker) AddCheck(name string, check CheckFunc, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = namedCheck{fn: check, critical: critical}
}

// RemoveCheck unregisters a check.
func (h *HealthChecker) RemoveCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// Check runs all checks and aggregates the results.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make(map[string]namedCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	status := HealthStatus{
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	if len(checks) == 0 {
		status.Message = "no checks registered"
		return status
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := runCheck(checkCtx, c.fn)
			result := CheckResult{
				Healthy:  err == nil,
				Critical: c.critical,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				result.Message = err.Error()
			}

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed []string
	for name, r := range status.Checks {
		if r.Healthy {
			continue
		}
		failed = append(failed, name)
		if r.Critical {
			status.Ready = false
		} else {
			status.Degraded = true
		}
	}
	sort.Strings(failed)

	switch {
	case len(failed) == 0:
		status.Message = "all checks passed"
	case status.Ready:
		status.Message = "degraded: " + strings.Join(failed, ", ")
	default:
		status.Message = "failing: " + strings.Join(failed, ", ")
	}
	return status
}

// runCheck converts a panicking check into a failure.
func runCheck(ctx context.Context, fn CheckFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("check panicked")
		}
	}()
	return fn(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDEFINED CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is implemented by the Postgres connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck creates a connectivity check.
func NewPingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// NewPhaseConfigCheck loads the phase config and runs the validator over it.
// An invalid config does not stop the engine, so register it as non-critical.
func NewPhaseConfigCheck(source phase.Source) CheckFunc {
	return func(ctx context.Context) error {
		raw, err := source.GetRawPhaseConfig(ctx)
		if err != nil {
			return err
		}
		return phase.ValidateAndNormalize(raw).Err()
	}
}
