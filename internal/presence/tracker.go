package presence

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultPingInterval = 30 * time.Second

// EvictAfter is how many ping intervals a peer may stay silent.
const EvictAfter = 2.5

// Tracker records when each peer was last heard from and its latest latency
// sample. It is host-side state and is not safe for concurrent use.
type Tracker struct {
	clock    clockwork.Clock
	interval time.Duration

	lastSeen map[string]time.Time
	latency  map[string]int
	average  int
}

func NewTracker(clock clockwork.Clock, interval time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	return &Tracker{
		clock:    clock,
		interval: interval,
		lastSeen: make(map[string]time.Time),
		latency:  make(map[string]int),
	}
}

func (t *Tracker) Interval() time.Duration { return t.interval }

// Observe sweeps stale peers, then records a ping from id. A latency sample
// is kept only if it is positive and shorter than the ping interval.
func (t *Tracker) Observe(id string, latency int, hasLatency bool) (evicted []string) {
	evicted = t.Sweep()
	if id == "" {
		return evicted
	}
	t.lastSeen[id] = t.clock.Now()
	if hasLatency && latency > 0 && int64(latency) < t.interval.Milliseconds() {
		t.latency[id] = latency
		t.recompute()
	}
	return evicted
}

// Sweep drops peers silent for longer than EvictAfter intervals.
func (t *Tracker) Sweep() (evicted []string) {
	now := t.clock.Now()
	limit := time.Duration(float64(t.interval) * EvictAfter)
	for id, seen := range t.lastSeen {
		if now.Sub(seen) > limit {
			delete(t.lastSeen, id)
			delete(t.latency, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		t.recompute()
	}
	return evicted
}

// Forget drops a peer that said goodbye.
func (t *Tracker) Forget(id string) {
	delete(t.lastSeen, id)
	if _, ok := t.latency[id]; ok {
		delete(t.latency, id)
		t.recompute()
	}
}

func (t *Tracker) Reset() {
	clear(t.lastSeen)
	clear(t.latency)
	t.average = 0
}

func (t *Tracker) Tracked(id string) bool {
	_, ok := t.lastSeen[id]
	return ok
}

func (t *Tracker) Count() int { return len(t.lastSeen) }

// AverageLatency is the rounded mean of the tracked peers' latest samples.
func (t *Tracker) AverageLatency() int { return t.average }

func (t *Tracker) recompute() {
	if len(t.latency) == 0 {
		t.average = 0
		return
	}
	sum := 0
	for _, l := range t.latency {
		sum += l
	}
	t.average = int(math.Round(float64(sum) / float64(len(t.latency))))
}
