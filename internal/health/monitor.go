// Package health tracks consecutive fetch failures per source and switches the
// source into a degraded fetch strategy for a cooldown period.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

const (
	DefaultFailureThreshold = 3
	DefaultDegradedDuration = 24 * time.Hour
	failureHistorySize      = 50
)

// Config configures a Monitor.
type Config struct {
	// FailureThreshold is the number of consecutive failures that enter degraded mode.
	FailureThreshold int
	// DegradedDuration is how long degraded mode lasts before optimistic recovery.
	DegradedDuration time.Duration
	// OnChange is called after every mode transition, outside the lock.
	OnChange func(source string, from, to models.HealthMode)
}

// FailureRecord is one entry of the failure history.
type FailureRecord struct {
	At    time.Time `json:"at"`
	Error string    `json:"error"`
}

// Monitor is the circuit breaker of one source.
type Monitor struct {
	mu            sync.Mutex
	source        string
	cfg           Config
	now           func() time.Time
	failures      int
	mode          models.HealthMode
	degradedUntil time.Time
	history       []FailureRecord
	next          int
}

type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a monitor for source. Non-positive config values take the defaults.
func New(source string, cfg Config, opts ...Option) *Monitor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.DegradedDuration <= 0 {
		cfg.DegradedDuration = DefaultDegradedDuration
	}
	m := &Monitor{source: source, cfg: cfg, now: time.Now, mode: models.ModeNormal}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckHealth returns the strategy to use for the next fetch. A degraded monitor
// whose cooldown has passed resets to normal without probing.
func (m *Monitor) CheckHealth() models.HealthMode {
	m.mu.Lock()
	from := m.mode
	if m.mode == models.ModeDegraded && !m.now().Before(m.degradedUntil) {
		m.reset()
	}
	mode := m.mode
	m.mu.Unlock()

	m.notify(from, mode, "cooldown elapsed")
	return mode
}

// RecordSuccess clears the failure count and leaves degraded mode at once.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	from := m.mode
	m.reset()
	m.mu.Unlock()

	m.notify(from, models.ModeNormal, "fetch succeeded")
}

// RecordFailure counts a failure and enters degraded mode when the threshold is reached.
func (m *Monitor) RecordFailure(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	m.mu.Lock()
	now := m.now()
	m.push(FailureRecord{At: now, Error: msg})
	m.failures++
	from := m.mode
	if m.mode == models.ModeNormal && m.failures >= m.cfg.FailureThreshold {
		m.mode = models.ModeDegraded
		m.degradedUntil = now.Add(m.cfg.DegradedDuration)
	}
	to, failures := m.mode, m.failures
	m.mu.Unlock()

	slog.Warn("Source fetch failed", "source", m.source, "consecutiveFailures", failures, "error", msg)
	m.notify(from, to, "failure threshold reached")
}

func (m *Monitor) reset() {
	m.failures = 0
	m.mode = models.ModeNormal
	m.degradedUntil = time.Time{}
}

func (m *Monitor) push(r FailureRecord) {
	if len(m.history) < failureHistorySize {
		m.history = append(m.history, r)
		return
	}
	m.history[m.next] = r
	m.next = (m.next + 1) % failureHistorySize
}

func (m *Monitor) notify(from, to models.HealthMode, reason string) {
	if from == to {
		return
	}
	slog.Info("Source health changed", "source", m.source, "from", from, "to", to, "reason", reason)
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(m.source, from, to)
	}
}

// State returns a snapshot of the monitor.
func (m *Monitor) State() models.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.HealthState{ConsecutiveFailures: m.failures, Mode: m.mode}
	if m.mode == models.ModeDegraded {
		until := m.degradedUntil
		s.DegradedUntil = &until
	}
	return s
}

// Failures returns the recent failure history, oldest first.
func (m *Monitor) Failures() []FailureRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FailureRecord, 0, len(m.history))
	out = append(out, m.history[m.next:]...)
	out = append(out, m.history[:m.next]...)
	return out
}

// Source returns the name of the monitored source.
func (m *Monitor) Source() string { return m.source }
