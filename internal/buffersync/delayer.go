package buffersync

import (
	"time"

	"github.com/dshills/tsbridge/internal/eventloop"
)

// delayer runs the most recently triggered task once the delay of that
// trigger has elapsed without another trigger. It owns at most one timer.
type delayer struct {
	scheduler    eventloop.Scheduler
	defaultDelay time.Duration

	timer      eventloop.Timer
	generation uint64
}

func newDelayer(scheduler eventloop.Scheduler, defaultDelay time.Duration) *delayer {
	return &delayer{scheduler: scheduler, defaultDelay: defaultDelay}
}

// trigger replaces any pending task. A negative delay selects the default.
func (d *delayer) trigger(task func(), delay time.Duration) {
	if delay < 0 {
		delay = d.defaultDelay
	}
	d.cancel()

	gen := d.generation
	d.timer = d.scheduler.AfterFunc(delay, func() {
		if gen != d.generation {
			return
		}
		d.timer = nil
		task()
	})
}

// cancel drops the pending task, if any.
func (d *delayer) cancel() {
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *delayer) isTriggered() bool {
	return d.timer != nil
}
