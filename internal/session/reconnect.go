package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultReconnectDelay = 3 * time.Second

// Reconnector owns the single pending reconnect attempt. Scheduling a new
// attempt replaces the previous one; there is no backoff and no retry cap.
type Reconnector struct {
	clock clockwork.Clock
	delay time.Duration
	post  func(func())

	timer     clockwork.Timer
	epoch     uint64
	scheduled int
}

func NewReconnector(clock clockwork.Clock, delay time.Duration, post func(func())) *Reconnector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if post == nil {
		post = func(f func()) { f() }
	}
	return &Reconnector{clock: clock, delay: delay, post: post}
}

// Schedule arms one attempt after the delay, cancelling any pending one.
func (r *Reconnector) Schedule(attempt func()) {
	r.Cancel()
	epoch := r.epoch
	r.scheduled++
	r.timer = r.clock.AfterFunc(r.delay, func() {
		r.post(func() {
			if epoch != r.epoch {
				return
			}
			r.timer = nil
			attempt()
		})
	})
}

// Cancel drops the pending attempt, including one already handed to post.
func (r *Reconnector) Cancel() {
	r.epoch++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconnector) Pending() bool { return r.timer != nil }

// Scheduled counts attempts armed over the reconnector's lifetime.
func (r *Reconnector) Scheduled() int { return r.scheduled }
