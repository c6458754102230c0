// Package coordinator drives the daily fetch/retry cycle: it decides
// when to fetch which stock class, how each fetch outcome advances the
// cycle, and when the matching pass may run.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geohash-dispatch/internal/domain"
	"github.com/couchcryptid/geohash-dispatch/internal/match"
	"github.com/couchcryptid/geohash-dispatch/internal/observability"
)

// State is the coordinator's scheduling state. Exactly one state holds
// at any time; every transition happens under the coordinator's lock.
type State int

const (
	// StateOff means the alarm is disabled and no wakes are pending.
	StateOff State = iota
	// StateIdle means the daily wake is armed and no cycle is running.
	StateIdle
	// StateAwaitingNetwork means a cycle hit a dead network and resumes
	// when connectivity returns.
	StateAwaitingNetwork
	// StateSnoozed means a cycle hit a not-posted or transient result
	// and resumes on the retry wake.
	StateSnoozed
	// StateDone means today's cycle fully resolved.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateIdle:
		return "idle"
	case StateAwaitingNetwork:
		return "awaiting_network"
	case StateSnoozed:
		return "snoozed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Connectivity reports whether the network currently looks usable.
type Connectivity interface {
	Connected(ctx context.Context) bool
}

// Broadcaster publishes resolved stock records downstream.
type Broadcaster interface {
	Broadcast(ctx context.Context, rec domain.StockRecord, class domain.StockClass) error
}

// LocationRegistry lists the registered known locations.
type LocationRegistry interface {
	KnownLocations(ctx context.Context) ([]domain.KnownLocation, error)
}

// Options carries the scheduling knobs.
type Options struct {
	AlarmEnabled  bool
	DailyWakeHour int
	DailyWakeMin  int
	RetryDelay    time.Duration
	ProbeInterval time.Duration
	NotifySlots   int
}

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	State         string    `json:"state"`
	AlarmEnabled  bool      `json:"alarm_enabled"`
	LastCompleted time.Time `json:"last_completed,omitempty"`
}

// Coordinator owns the cycle state machine. All event handlers
// serialize on one mutex, so wakes, alarm toggles, and connectivity
// callbacks never interleave.
type Coordinator struct {
	cache     domain.StockCache
	source    domain.StockSource
	conn      Connectivity
	planner   WakePlanner
	matcher   *match.Matcher
	notifier  match.Notifier
	broadcast Broadcaster
	registry  LocationRegistry
	opts      Options
	wakeZone  *time.Location
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu            sync.Mutex
	state         State
	alarmEnabled  bool
	lastCompleted time.Time
	watchCancel   context.CancelFunc

	baseCtx context.Context
	started bool
}

// New wires a coordinator. The planner typically points its callback at
// OnWake; matcher is constructed over this coordinator's Destination.
func New(cache domain.StockCache, source domain.StockSource, conn Connectivity,
	planner WakePlanner, notifier match.Notifier, broadcast Broadcaster,
	registry LocationRegistry, opts Options, wakeZone *time.Location,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		cache:     cache,
		source:    source,
		conn:      conn,
		planner:   planner,
		notifier:  notifier,
		broadcast: broadcast,
		registry:  registry,
		opts:      opts,
		wakeZone:  wakeZone,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		state:     StateOff,
	}
}

// SetMatcher attaches the matcher. Separate from New because the
// matcher reads destinations back through this coordinator.
func (c *Coordinator) SetMatcher(m *match.Matcher) {
	c.matcher = m
}

// Start applies the configured alarm setting and, when enabled,
// immediately runs a catch-up cycle so a restart never misses a day.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.started = true
	c.mu.Unlock()

	c.SetAlarm(c.opts.AlarmEnabled)
}

// OnWake is the planner callback. Wakes landing after the alarm was
// switched off are dropped.
func (c *Coordinator) OnWake(id WakeID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alarmEnabled {
		c.logger.Debug("wake after alarm off, ignoring", "wake", string(id))
		return
	}
	c.logger.Info("wake", "wake", string(id))
	c.runCycleLocked()
}

// SetAlarm enables or disables the daily cycle. Disabling cancels every
// pending wake and clears the notification surface in one step, so no
// stale wake or indicator survives the toggle.
func (c *Coordinator) SetAlarm(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enabled && c.alarmEnabled && c.state != StateOff {
		return
	}
	c.alarmEnabled = enabled

	if !enabled {
		c.planner.Cancel(WakeDaily)
		c.planner.Cancel(WakeRetry)
		c.stopConnectivityWatchLocked()
		c.clearNotificationsLocked()
		c.setStateLocked(StateOff)
		c.metrics.AlarmEnabled.Set(0)
		c.logger.Info("alarm disabled")
		return
	}

	c.metrics.AlarmEnabled.Set(1)
	c.logger.Info("alarm enabled",
		"daily_wake", fmt.Sprintf("%02d:%02d", c.opts.DailyWakeHour, c.opts.DailyWakeMin),
	)
	c.runCycleLocked()
}

// AlarmEnabled reports the current alarm setting.
func (c *Coordinator) AlarmEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alarmEnabled
}

// Snapshot returns the current status.
func (c *Coordinator) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:         c.state.String(),
		AlarmEnabled:  c.alarmEnabled,
		LastCompleted: c.lastCompleted,
	}
}

// CheckReadiness reports whether the coordinator has started.
func (c *Coordinator) CheckReadiness(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return fmt.Errorf("coordinator not started")
	}
	return nil
}

// runCycleLocked executes one fetch cycle. The 30W class resolves
// strictly before the non-30W class; the matching pass runs only once
// both are cached. Caller holds the lock.
func (c *Coordinator) runCycleLocked() {
	ctx := c.ctxLocked()

	// A real cycle supersedes any pending snooze.
	c.planner.Cancel(WakeRetry)
	c.stopConnectivityWatchLocked()
	c.scheduleDailyLocked()

	now := c.clock.Now()
	for _, class := range []domain.StockClass{domain.Class30W, domain.ClassNon30W} {
		if _, ok := c.resolveClassLocked(ctx, now, class); !ok {
			return // state already set by the outcome handler
		}
	}

	c.matchLocked(ctx, now)
	c.lastCompleted = now
	c.setStateLocked(StateDone)
	c.metrics.CyclesCompleted.Inc()
	c.logger.Info("cycle complete")
}

// resolveClassLocked gets the class's record for today into the cache,
// fetching if needed. Class picks the effective date; the cached record
// itself is keyed by that date alone. ok=false means the cycle is
// paused (snoozed or awaiting network) and the caller must stop.
func (c *Coordinator) resolveClassLocked(ctx context.Context, now time.Time, class domain.StockClass) (domain.StockRecord, bool) {
	g := domain.ClassGraticule(class)
	effective := domain.EffectiveDate(now, &g)

	rec, hit, err := c.cache.Lookup(ctx, effective)
	if err != nil {
		c.logger.Error("cache lookup failed", "class", class.String(), "error", err)
	}
	if hit {
		c.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return rec, true
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	start := c.clock.Now()
	outcome := c.source.FetchIndexValue(ctx, effective)
	c.metrics.FetchDuration.WithLabelValues(class.String()).Observe(c.clock.Since(start).Seconds())
	c.metrics.FetchAttempts.WithLabelValues(class.String(), outcome.Kind.String()).Inc()

	switch outcome.Kind {
	case domain.OutcomeSuccess:
		rec = domain.NewStockRecord(effective, outcome.Value)
		if err := c.cache.Store(ctx, rec); err != nil {
			c.logger.Error("cache store failed", "class", class.String(), "error", err)
		}
		c.broadcastLocked(ctx, rec, class)
		c.logger.Info("index value fetched",
			"class", class.String(),
			"effective_date", effective.Format("2006-01-02"),
		)
		return rec, true

	case domain.OutcomeNotPosted, domain.OutcomeTransient:
		at := c.clock.Now().Add(c.opts.RetryDelay)
		c.planner.Register(WakeRetry, at)
		c.metrics.SnoozesScheduled.Inc()
		c.setStateLocked(StateSnoozed)
		c.logger.Info("snoozing",
			"class", class.String(),
			"outcome", outcome.Kind.String(),
			"retry_at", at.Format(time.RFC3339),
		)
		return domain.StockRecord{}, false

	case domain.OutcomeNoConnection:
		c.setStateLocked(StateAwaitingNetwork)
		c.startConnectivityWatchLocked()
		c.logger.Warn("network down, awaiting connectivity", "class", class.String())
		return domain.StockRecord{}, false

	default: // OutcomeMalformed
		// A malformed value won't fix itself by retrying; wait for the
		// next daily wake instead of snoozing.
		c.setStateLocked(StateIdle)
		c.logger.Error("malformed index value, ending cycle",
			"class", class.String(),
			"error", outcome.Err,
		)
		return domain.StockRecord{}, false
	}
}

// matchLocked runs the proximity pass and replaces the notification
// surface with the fresh results.
func (c *Coordinator) matchLocked(ctx context.Context, now time.Time) {
	if c.matcher == nil {
		return
	}
	locs, err := c.registry.KnownLocations(ctx)
	if err != nil {
		c.logger.Error("known locations unavailable, skipping match pass", "error", err)
		return
	}

	c.clearNotificationsLocked()
	for _, n := range c.matcher.Pass(now, locs) {
		if err := c.notifier.Post(ctx, n); err != nil {
			c.logger.Error("notification post failed", "slot", n.Slot, "error", err)
		}
	}
}

func (c *Coordinator) clearNotificationsLocked() {
	ctx := c.ctxLocked()
	for _, slot := range match.AllSlots(c.opts.NotifySlots) {
		if err := c.notifier.Cancel(ctx, slot); err != nil {
			c.logger.Error("notification clear failed", "slot", slot, "error", err)
		}
	}
}

func (c *Coordinator) broadcastLocked(ctx context.Context, rec domain.StockRecord, class domain.StockClass) {
	if c.broadcast == nil {
		return
	}
	if err := c.broadcast.Broadcast(ctx, rec, class); err != nil {
		c.logger.Error("broadcast failed", "class", class.String(), "error", err)
		return
	}
	c.metrics.BroadcastMessages.Inc()
}

// scheduleDailyLocked arms the next daily wake at the configured
// wall-clock time in the wake zone.
func (c *Coordinator) scheduleDailyLocked() {
	now := c.clock.Now().In(c.wakeZone)
	next := time.Date(now.Year(), now.Month(), now.Day(),
		c.opts.DailyWakeHour, c.opts.DailyWakeMin, 0, 0, c.wakeZone)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	c.planner.Register(WakeDaily, next)
}

// startConnectivityWatchLocked polls the probe until the network is
// back, then re-enters the cycle. At most one watch runs at a time.
func (c *Coordinator) startConnectivityWatchLocked() {
	if c.watchCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.ctxLocked())
	c.watchCancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(c.opts.ProbeInterval):
			}
			if c.conn.Connected(ctx) {
				c.networkRestored()
				return
			}
		}
	}()
}

func (c *Coordinator) stopConnectivityWatchLocked() {
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
}

// networkRestored resumes a cycle parked in StateAwaitingNetwork.
func (c *Coordinator) networkRestored() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopConnectivityWatchLocked()
	if c.state != StateAwaitingNetwork || !c.alarmEnabled {
		return
	}
	c.logger.Info("network restored, resuming cycle")
	c.runCycleLocked()
}

func (c *Coordinator) setStateLocked(s State) {
	c.state = s
	c.metrics.CoordinatorState.Set(float64(s))
}

func (c *Coordinator) ctxLocked() context.Context {
	if c.baseCtx != nil {
		return c.baseCtx
	}
	return context.Background()
}

// Destination implements match.DestinationSource from the cache alone.
// The lookup is by effective date only: a 30W cell asking about
// tomorrow resolves to today's date, whose record the non-30W fetch may
// already have cached. The returned destination's Date is the request
// date it answers for, not the effective trading date it was hashed
// from.
func (c *Coordinator) Destination(date time.Time, g *domain.Graticule) (domain.Destination, bool) {
	effective := domain.EffectiveDate(date, g)

	rec, ok, err := c.cache.Lookup(context.Background(), effective)
	if err != nil || !ok {
		return domain.Destination{}, false
	}

	dest := domain.ComputeDestination(effective, rec.Value, g)
	dest.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return dest, true
}

// ManualDestination serves the on-demand path: cache first, then a
// direct fetch. It caches what it fetches but never touches the cycle
// state machine, so a manual request can't wake or snooze the daemon.
func (c *Coordinator) ManualDestination(ctx context.Context, date time.Time, g *domain.Graticule) (domain.Destination, domain.FetchOutcome) {
	if dest, ok := c.Destination(date, g); ok {
		return dest, domain.FetchOutcome{Kind: domain.OutcomeSuccess}
	}

	class := domain.Class30W
	if g != nil && !g.Uses30W() {
		class = domain.ClassNon30W
	}
	effective := domain.EffectiveDate(date, g)

	outcome := c.source.FetchIndexValue(ctx, effective)
	c.metrics.FetchAttempts.WithLabelValues(class.String(), outcome.Kind.String()).Inc()
	if outcome.Kind != domain.OutcomeSuccess {
		return domain.Destination{}, outcome
	}

	rec := domain.NewStockRecord(effective, outcome.Value)
	if err := c.cache.Store(ctx, rec); err != nil {
		c.logger.Error("cache store failed", "class", class.String(), "error", err)
	}

	dest := domain.ComputeDestination(effective, rec.Value, g)
	dest.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return dest, outcome
}
