// Package scheduler runs a task repeatedly with a uniformly random pause between
// runs, so that request timing does not form a fixed pattern.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"
)

// ErrInvalidInterval is returned by New for unusable bounds.
var ErrInvalidInterval = errors.New("invalid scheduler interval")

// State is the lifecycle state of a Scheduler.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

type Scheduler struct {
	name string
	min  time.Duration
	max  time.Duration
	rand func() float64

	mu       sync.Mutex
	state    State
	timer    *time.Timer
	ctx      context.Context
	task     Task
	stopping bool
	inFlight sync.WaitGroup
	onRun    func(name string, d time.Duration, err error)
}

type Option func(*Scheduler)

// WithName labels log lines and metrics.
func WithName(name string) Option {
	return func(s *Scheduler) { s.name = name }
}

// WithRand replaces the random source; f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(s *Scheduler) { s.rand = f }
}

// WithRunHook is called after every run with its duration and outcome.
func WithRunHook(f func(name string, d time.Duration, err error)) Option {
	return func(s *Scheduler) { s.onRun = f }
}

// New validates the bounds. min == max gives a fixed interval.
func New(min, max time.Duration, opts ...Option) (*Scheduler, error) {
	if min <= 0 {
		return nil, fmt.Errorf("%w: min must be positive, got %s", ErrInvalidInterval, min)
	}
	if max < min {
		return nil, fmt.Errorf("%w: max %s is below min %s", ErrInvalidInterval, max, min)
	}
	s := &Scheduler{name: "task", min: min, max: max, rand: rand.Float64, state: StateIdle}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NextDelay draws the pause before the next run, uniform in [min, max].
func (s *Scheduler) NextDelay() time.Duration {
	span := s.max - s.min
	if span == 0 {
		return s.min
	}
	return s.min + time.Duration(s.rand()*float64(span+1))
}

// Start runs task once right away and then keeps re-arming after each run.
// It returns immediately. Starting twice or after Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context, task Task) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	s.task = task
	s.state = StateRunning
	s.inFlight.Add(1)
	s.mu.Unlock()

	slog.Info("Scheduler started", "name", s.name, "min", s.min, "max", s.max)
	go s.run()
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.state != StateArmed {
		s.mu.Unlock()
		return
	}
	if s.ctx.Err() != nil {
		s.state = StateStopped
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.inFlight.Add(1)
	s.mu.Unlock()

	s.run()
}

func (s *Scheduler) run() {
	defer s.inFlight.Done()

	start := time.Now()
	err := s.safeRun()
	elapsed := time.Since(start)
	if err != nil {
		slog.Error("Scheduled run failed", "name", s.name, "duration", elapsed, "error", err)
	} else {
		slog.Info("Scheduled run finished", "name", s.name, "duration", elapsed)
	}
	if s.onRun != nil {
		s.onRun(s.name, elapsed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping || s.ctx.Err() != nil {
		s.state = StateStopped
		return
	}
	delay := s.NextDelay()
	s.state = StateArmed
	s.timer = time.AfterFunc(delay, s.fire)
	slog.Debug("Scheduler armed", "name", s.name, "delay", delay)
}

func (s *Scheduler) safeRun() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			slog.Error("Panic in scheduled run", "name", s.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return s.task(s.ctx)
}

// Stop cancels the pending timer. A run already in progress completes, but no
// further run is armed. Stop is idempotent and may be called from inside a run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.state != StateRunning {
		s.state = StateStopped
		return
	}
	// The running goroutine sees the flag and does not re-arm.
	s.stopping = true
}

// Wait blocks until no run is in flight.
func (s *Scheduler) Wait() {
	s.inFlight.Wait()
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
