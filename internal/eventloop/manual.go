package eventloop

import (
	"sort"
	"time"
)

// Manual is a Scheduler driven explicitly by the caller. Nothing runs until
// Drain or Advance is called, which makes timer and completion interleavings
// reproducible in tests.
type Manual struct {
	now    time.Duration
	queue  []func()
	timers []*manualTimer
	seq    int
}

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Post queues fn.
func (m *Manual) Post(fn func()) {
	if fn != nil {
		m.queue = append(m.queue, fn)
	}
}

// AfterFunc arms a timer that fires when virtual time reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{deadline: m.now + d, fn: fn, seq: m.seq, delay: d}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the virtual time elapsed since creation.
func (m *Manual) Now() time.Duration {
	return m.now
}

// Drain runs queued work, including work queued while draining, and returns
// how many functions ran.
func (m *Manual) Drain() int {
	n := 0
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
		n++
	}
	return n
}

// Advance moves virtual time forward by d, firing due timers in deadline
// order and draining queued work after each.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	m.Drain()
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.now = t.deadline
		t.fired = true
		t.fn()
		m.Drain()
	}
	m.now = target
}

// Queued returns the number of functions waiting to run.
func (m *Manual) Queued() int {
	return len(m.queue)
}

// ActiveTimers returns the timers that have neither fired nor been stopped.
func (m *Manual) ActiveTimers() int {
	return len(m.active())
}

// NextDelay returns the delay the earliest active timer was armed with.
func (m *Manual) NextDelay() (time.Duration, bool) {
	active := m.active()
	if len(active) == 0 {
		return 0, false
	}
	return active[0].delay, true
}

func (m *Manual) active() []*manualTimer {
	var active []*manualTimer
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].deadline != active[j].deadline {
			return active[i].deadline < active[j].deadline
		}
		return active[i].seq < active[j].seq
	})
	return active
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	active := m.active()
	if len(active) == 0 || active[0].deadline > target {
		return nil
	}
	return active[0]
}

type manualTimer struct {
	deadline time.Duration
	delay    time.Duration
	fn       func()
	seq      int
	fired    bool
	stopped  bool
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
