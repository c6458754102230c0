package coordinator

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// WakeID names a scheduled wake. Registering an id again replaces the
// earlier registration.
type WakeID string

const (
	// WakeDaily is the recurring morning fetch alarm.
	WakeDaily WakeID = "daily"
	// WakeRetry is the one-shot snooze after a not-posted or transient
	// fetch result.
	WakeRetry WakeID = "retry"
)

// WakePlanner schedules and cancels named wakes. Cancel of an
// unregistered id is a no-op.
type WakePlanner interface {
	Register(id WakeID, at time.Time)
	Cancel(id WakeID)
}

// TimerPlanner is the production WakePlanner, backed by clock timers.
// Wakes fire on their own goroutine via the callback.
type TimerPlanner struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	onWake func(WakeID)
	timers map[WakeID]clockwork.Timer
}

// NewTimerPlanner creates a planner that invokes onWake when a
// registered wake fires.
func NewTimerPlanner(clock clockwork.Clock, onWake func(WakeID)) *TimerPlanner {
	return &TimerPlanner{
		clock:  clock,
		onWake: onWake,
		timers: make(map[WakeID]clockwork.Timer),
	}
}

// Register arms a wake for the given instant, replacing any earlier
// registration under the same id.
func (p *TimerPlanner) Register(id WakeID, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[id]; ok {
		t.Stop()
	}
	d := at.Sub(p.clock.Now())
	if d < 0 {
		d = 0
	}
	p.timers[id] = p.clock.AfterFunc(d, func() {
		p.mu.Lock()
		delete(p.timers, id)
		p.mu.Unlock()
		p.onWake(id)
	})
}

// Cancel disarms a wake if it is still pending.
func (p *TimerPlanner) Cancel(id WakeID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
}

// Stop disarms every pending wake.
func (p *TimerPlanner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}
