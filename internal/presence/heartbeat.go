package presence

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Heartbeat runs tick now and then again every interval. Each beat stops the
// pending timer before arming the next one, so at most one is ever in flight.
//
// Timer callbacks do not run tick directly: they hand the beat to post, which
// lets the owner serialize it onto its own event loop.
type Heartbeat struct {
	clock    clockwork.Clock
	interval time.Duration
	post     func(func())

	tick  func()
	timer clockwork.Timer
	epoch uint64
}

func NewHeartbeat(clock clockwork.Clock, interval time.Duration, post func(func())) *Heartbeat {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	if post == nil {
		post = func(f func()) { f() }
	}
	return &Heartbeat{clock: clock, interval: interval, post: post}
}

// Start replaces any running heartbeat and beats immediately.
func (h *Heartbeat) Start(tick func()) {
	h.Stop()
	h.tick = tick
	h.beat(h.epoch)
}

// Stop cancels the pending beat. Beats already handed to post are discarded.
func (h *Heartbeat) Stop() {
	h.epoch++
	h.tick = nil
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *Heartbeat) Running() bool { return h.tick != nil }

func (h *Heartbeat) beat(epoch uint64) {
	if epoch != h.epoch || h.tick == nil {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.tick()
	if epoch != h.epoch {
		return
	}
	h.timer = h.clock.AfterFunc(h.interval, func() {
		h.post(func() { h.beat(epoch) })
	})
}
