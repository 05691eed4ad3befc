package tsserver

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// SupervisorState represents the state of a supervised server.
type SupervisorState int

const (
	// SupervisorStateIdle means the supervisor is not monitoring.
	SupervisorStateIdle SupervisorState = iota
	// SupervisorStateRunning means the server is running normally.
	SupervisorStateRunning
	// SupervisorStateRestarting means the server crashed and is being restarted.
	SupervisorStateRestarting
	// SupervisorStateFailed means the server has exceeded max restart attempts.
	SupervisorStateFailed
	// SupervisorStateStopped means the supervisor was explicitly stopped.
	SupervisorStateStopped
)

// String returns a human-readable state name.
func (s SupervisorState) String() string {
	switch s {
	case SupervisorStateIdle:
		return "idle"
	case SupervisorStateRunning:
		return "running"
	case SupervisorStateRestarting:
		return "restarting"
	case SupervisorStateFailed:
		return "failed"
	case SupervisorStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SupervisorConfig configures the server supervisor.
type SupervisorConfig struct {
	// MaxRestarts is the maximum number of restart attempts before giving up.
	// Default: 5
	MaxRestarts int

	// InitialBackoff is the initial backoff duration after a crash.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default: 60 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier applied to backoff after each failure.
	// Default: 2.0
	BackoffMultiplier float64

	// ResetWindow is the time after which the restart count resets if the server
	// has been running successfully.
	// Default: 5 minutes
	ResetWindow time.Duration
}

// DefaultSupervisorConfig returns the default supervisor configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		MaxRestarts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
		ResetWindow:       5 * time.Minute,
	}
}

// SupervisorEventType identifies the type of supervisor event.
type SupervisorEventType int

const (
	// SupervisorEventCrash indicates the server crashed.
	SupervisorEventCrash SupervisorEventType = iota
	// SupervisorEventRestarting indicates a restart attempt is starting.
	SupervisorEventRestarting
	// SupervisorEventRecovered indicates the server has recovered.
	SupervisorEventRecovered
	// SupervisorEventFailed indicates the server has permanently failed.
	SupervisorEventFailed
)

// String returns a human-readable event type name.
func (t SupervisorEventType) String() string {
	switch t {
	case SupervisorEventCrash:
		return "crash"
	case SupervisorEventRestarting:
		return "restarting"
	case SupervisorEventRecovered:
		return "recovered"
	case SupervisorEventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SupervisorEvent represents an event from the supervisor.
type SupervisorEvent struct {
	Type      SupervisorEventType
	Error     error
	Attempt   int
	NextRetry time.Duration
}

// Process is something the supervisor can start and watch. *Client
// implements it.
type Process interface {
	Start(ctx context.Context) error
	Exited() <-chan error
	Shutdown()
}

// Supervisor keeps a tsserver running. When the process exits it is
// restarted with exponential backoff and the restart hook is invoked so that
// callers can resend their state.
type Supervisor struct {
	mu sync.Mutex

	proc      Process
	config    SupervisorConfig
	onRestart func()

	state        atomic.Int32
	restartCount int
	lastStart    time.Time

	eventCh chan SupervisorEvent
	log     *logrus.Entry
}

// NewSupervisor creates a supervisor for proc. onRestart, when non-nil, runs
// after every successful restart.
func NewSupervisor(proc Process, config SupervisorConfig, onRestart func(), log *logrus.Entry) *Supervisor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Supervisor{
		proc:      proc,
		config:    config,
		onRestart: onRestart,
		eventCh:   make(chan SupervisorEvent, 16),
		log:       log,
	}
	s.state.Store(int32(SupervisorStateIdle))
	return s
}

// Run starts the process and supervises it until ctx is cancelled, which
// returns nil, or until the restart limit is exceeded, which returns the last
// failure.
func (s *Supervisor) Run(ctx context.Context) error {
	if SupervisorState(s.state.Load()) != SupervisorStateIdle {
		return ErrServerAlreadyRunning
	}

	if err := s.proc.Start(ctx); err != nil {
		s.state.Store(int32(SupervisorStateFailed))
		return err
	}
	s.markStarted()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			return nil
		case exitErr := <-s.proc.Exited():
			if err := s.restart(ctx, exitErr); err != nil {
				return err
			}
			if ctx.Err() != nil {
				s.stop()
				return nil
			}
		}
	}
}

func (s *Supervisor) markStarted() {
	s.mu.Lock()
	s.lastStart = time.Now()
	s.mu.Unlock()
	s.state.Store(int32(SupervisorStateRunning))
}

func (s *Supervisor) stop() {
	s.state.Store(int32(SupervisorStateStopped))
	s.proc.Shutdown()
}

// restart restarts the process after a crash. It returns an error only when
// the restart limit is exceeded.
func (s *Supervisor) restart(ctx context.Context, exitErr error) error {
	for {
		s.mu.Lock()
		if time.Since(s.lastStart) > s.config.ResetWindow {
			s.restartCount = 0
		}
		s.restartCount++
		attempt := s.restartCount
		s.mu.Unlock()

		s.log.WithError(exitErr).WithField("attempt", attempt).Warn("tsserver exited")
		s.emit(SupervisorEvent{Type: SupervisorEventCrash, Error: exitErr, Attempt: attempt})

		if attempt > s.config.MaxRestarts {
			s.state.Store(int32(SupervisorStateFailed))
			s.emit(SupervisorEvent{Type: SupervisorEventFailed, Error: exitErr, Attempt: attempt})
			return &ServerError{ServerID: "supervisor", Err: fmt.Errorf("giving up after %d restarts: %w", s.config.MaxRestarts, exitErr)}
		}

		delay := CalculateBackoff(attempt, s.config.InitialBackoff, s.config.MaxBackoff, s.config.BackoffMultiplier)
		s.state.Store(int32(SupervisorStateRestarting))
		s.emit(SupervisorEvent{Type: SupervisorEventRestarting, Attempt: attempt, NextRetry: delay})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if err := s.proc.Start(ctx); err != nil {
			exitErr = err
			continue
		}
		s.markStarted()

		if s.onRestart != nil {
			s.onRestart()
		}
		s.emit(SupervisorEvent{Type: SupervisorEventRecovered, Attempt: attempt})
		return nil
	}
}

// emit sends an event to listeners, dropping it if the channel is full.
func (s *Supervisor) emit(event SupervisorEvent) {
	select {
	case s.eventCh <- event:
	default:
	}
}

// State returns the current supervisor state.
func (s *Supervisor) State() SupervisorState {
	return SupervisorState(s.state.Load())
}

// RestartCount returns the number of restart attempts since the last reset.
func (s *Supervisor) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartCount
}

// Events returns the event channel for monitoring supervisor events.
func (s *Supervisor) Events() <-chan SupervisorEvent {
	return s.eventCh
}

// CalculateBackoff calculates the backoff duration for a given attempt.
// attempt=0 or attempt=1 returns initial, subsequent attempts use exponential growth.
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
