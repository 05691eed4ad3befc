package eventloop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrStopped is returned by Run when the loop was already stopped.
var ErrStopped = errors.New("event loop stopped")

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer before its callback ran.
	Stop() bool
}

// Scheduler queues work onto a single logical thread.
type Scheduler interface {
	// Post queues fn to run after all previously posted work.
	Post(fn func())

	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop runs posted functions sequentially on one goroutine.
//
// Post never blocks: the queue is unbounded so producers such as transport
// readers cannot deadlock against a loop that is waiting on them.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped atomic.Bool
	running atomic.Bool

	log *logrus.Entry
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report panics in posted work.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Loop) {
		l.log = log
	}
}

// New creates a loop. Call Run to start processing.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		log:  logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn. Work posted after the loop stops is dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.stopped.Load() {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc posts fn once d has elapsed unless the timer is stopped first.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have been called on the loop after the runtime timer
			// fired but before this callback was dequeued.
			if t.stopped.Swap(true) {
				return
			}
			fn()
		})
	})
	return t
}

// Run processes posted work until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	if l.running.Swap(true) {
		return errors.New("event loop already running")
	}
	defer l.stopped.Store(true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.run(fn)

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// Call runs fn on the loop and waits for it to finish.
// It must not be called from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// run executes fn, recovering panics so one faulty handler cannot take the
// loop down with it.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("panic in event loop task")
		}
	}()
	fn()
}

type loopTimer struct {
	timer   *time.Timer
	stopped atomic.Bool
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return !t.stopped.Swap(true)
}
