package coordinator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geohash-dispatch/internal/domain"
	"github.com/couchcryptid/geohash-dispatch/internal/match"
	"github.com/couchcryptid/geohash-dispatch/internal/observability"
)

// testNow is a Friday, so neither class's effective date clamps.
var testNow = time.Date(2023, time.June, 9, 12, 0, 0, 0, time.UTC)

type memCache struct {
	recs map[string]domain.StockRecord
}

func newMemCache() *memCache {
	return &memCache{recs: map[string]domain.StockRecord{}}
}

func cacheKey(date time.Time) string {
	return date.Format("2006-01-02")
}

func (m *memCache) Lookup(_ context.Context, date time.Time) (domain.StockRecord, bool, error) {
	rec, ok := m.recs[cacheKey(date)]
	return rec, ok, nil
}

func (m *memCache) Store(_ context.Context, rec domain.StockRecord) error {
	k := cacheKey(rec.Date)
	if _, ok := m.recs[k]; !ok {
		m.recs[k] = rec
	}
	return nil
}

// scriptedSource pops outcomes in order, defaulting to success.
type scriptedSource struct {
	outcomes []domain.FetchOutcome
	calls    []time.Time
}

func (s *scriptedSource) FetchIndexValue(_ context.Context, date time.Time) domain.FetchOutcome {
	s.calls = append(s.calls, date)
	if len(s.outcomes) == 0 {
		return domain.FetchOutcome{Kind: domain.OutcomeSuccess, Value: "12345.67"}
	}
	o := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return o
}

type fakePlanner struct {
	registered map[WakeID]time.Time
	cancelled  []WakeID
}

func newFakePlanner() *fakePlanner {
	return &fakePlanner{registered: map[WakeID]time.Time{}}
}

func (p *fakePlanner) Register(id WakeID, at time.Time) { p.registered[id] = at }

func (p *fakePlanner) Cancel(id WakeID) {
	p.cancelled = append(p.cancelled, id)
	delete(p.registered, id)
}

type fakeNotifier struct {
	posts   []match.Notification
	cancels []string
}

func (n *fakeNotifier) Post(_ context.Context, notif match.Notification) error {
	n.posts = append(n.posts, notif)
	return nil
}

func (n *fakeNotifier) Cancel(_ context.Context, slot string) error {
	n.cancels = append(n.cancels, slot)
	return nil
}

type fakeBroadcaster struct {
	records []domain.StockRecord
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, rec domain.StockRecord, _ domain.StockClass) error {
	b.records = append(b.records, rec)
	return nil
}

type fixedRegistry struct {
	locs []domain.KnownLocation
}

func (r *fixedRegistry) KnownLocations(context.Context) ([]domain.KnownLocation, error) {
	return r.locs, nil
}

type stubConnectivity struct{ up bool }

func (s *stubConnectivity) Connected(context.Context) bool { return s.up }

type fixture struct {
	coord    *Coordinator
	cache    *memCache
	source   *scriptedSource
	planner  *fakePlanner
	notifier *fakeNotifier
	cast     *fakeBroadcaster
	registry *fixedRegistry
	clock    *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cache:    newMemCache(),
		source:   &scriptedSource{},
		planner:  newFakePlanner(),
		notifier: &fakeNotifier{},
		cast:     &fakeBroadcaster{},
		registry: &fixedRegistry{},
		clock:    clockwork.NewFakeClockAt(testNow),
	}

	opts := Options{
		AlarmEnabled:  true,
		DailyWakeHour: 9,
		DailyWakeMin:  30,
		RetryDelay:    30 * time.Minute,
		ProbeInterval: 15 * time.Second,
		NotifySlots:   5,
	}
	logger := slog.New(slog.DiscardHandler)
	metrics := observability.NewMetricsForTesting()

	f.coord = New(f.cache, f.source, &stubConnectivity{up: true}, f.planner,
		f.notifier, f.cast, f.registry, opts, time.UTC, f.clock, logger, metrics)
	f.coord.SetMatcher(match.New(f.coord, match.PolicySingle, 5, false, 250, logger, metrics))
	return f
}

func TestStart_RunsCatchUpCycle(t *testing.T) {
	f := newFixture(t)
	f.coord.Start(context.Background())

	assert.Equal(t, "done", f.coord.Snapshot().State)

	// 30W class fetches the previous trading day, the non-30W class the
	// request day itself, in that order.
	require.Len(t, f.source.calls, 2)
	assert.Equal(t, "2023-06-08", f.source.calls[0].Format("2006-01-02"))
	assert.Equal(t, "2023-06-09", f.source.calls[1].Format("2006-01-02"))

	// Both records cached and broadcast.
	_, ok, _ := f.cache.Lookup(context.Background(), f.source.calls[0])
	assert.True(t, ok)
	_, ok, _ = f.cache.Lookup(context.Background(), f.source.calls[1])
	assert.True(t, ok)
	assert.Len(t, f.cast.records, 2)

	// Next daily wake armed for tomorrow morning.
	at, ok := f.planner.registered[WakeDaily]
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, time.June, 10, 9, 30, 0, 0, time.UTC), at)
}

func TestCycle_CacheHitSkipsFetch(t *testing.T) {
	f := newFixture(t)
	eff30 := time.Date(2023, time.June, 8, 0, 0, 0, 0, time.UTC)
	effNon := time.Date(2023, time.June, 9, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.cache.Store(context.Background(), domain.NewStockRecord(eff30, "111.11")))
	require.NoError(t, f.cache.Store(context.Background(), domain.NewStockRecord(effNon, "222.22")))

	f.coord.Start(context.Background())

	assert.Empty(t, f.source.calls, "cached values must not be re-fetched")
	assert.Equal(t, "done", f.coord.Snapshot().State)
}

func TestCycle_NotPostedSnoozes(t *testing.T) {
	f := newFixture(t)
	f.source.outcomes = []domain.FetchOutcome{{Kind: domain.OutcomeNotPosted}}

	f.coord.Start(context.Background())

	assert.Equal(t, "snoozed", f.coord.Snapshot().State)
	assert.Len(t, f.source.calls, 1, "second class must wait for the first")

	at, ok := f.planner.registered[WakeRetry]
	require.True(t, ok)
	assert.Equal(t, testNow.Add(30*time.Minute), at)
}

func TestCycle_RetryWakeResumes(t *testing.T) {
	f := newFixture(t)
	f.source.outcomes = []domain.FetchOutcome{{Kind: domain.OutcomeTransient, Err: assert.AnError}}

	f.coord.Start(context.Background())
	require.Equal(t, "snoozed", f.coord.Snapshot().State)

	f.clock.Advance(30 * time.Minute)
	f.coord.OnWake(WakeRetry)

	assert.Equal(t, "done", f.coord.Snapshot().State)
	assert.Len(t, f.source.calls, 3) // failed 30W, then both classes
}

func TestCycle_NoConnectionAwaitsNetwork(t *testing.T) {
	f := newFixture(t)
	f.source.outcomes = []domain.FetchOutcome{{Kind: domain.OutcomeNoConnection, Err: assert.AnError}}

	f.coord.Start(context.Background())
	require.Equal(t, "awaiting_network", f.coord.Snapshot().State)
	_, retryArmed := f.planner.registered[WakeRetry]
	assert.False(t, retryArmed, "connectivity loss waits for the network, not a timer")

	f.coord.networkRestored()

	assert.Equal(t, "done", f.coord.Snapshot().State)
}

func TestCycle_MalformedEndsWithoutSnooze(t *testing.T) {
	f := newFixture(t)
	f.source.outcomes = []domain.FetchOutcome{{Kind: domain.OutcomeMalformed, Err: assert.AnError}}

	f.coord.Start(context.Background())

	assert.Equal(t, "idle", f.coord.Snapshot().State)
	_, retryArmed := f.planner.registered[WakeRetry]
	assert.False(t, retryArmed)
}

func TestSetAlarm_OffCancelsEverything(t *testing.T) {
	f := newFixture(t)
	f.coord.Start(context.Background())
	require.Equal(t, "done", f.coord.Snapshot().State)

	f.notifier.cancels = nil
	f.coord.SetAlarm(false)

	st := f.coord.Snapshot()
	assert.Equal(t, "off", st.State)
	assert.False(t, st.AlarmEnabled)
	assert.Empty(t, f.planner.registered)
	assert.Contains(t, f.notifier.cancels, match.SlotLocalSingle)
	assert.Contains(t, f.notifier.cancels, match.SlotGlobal)
}

func TestOnWake_AfterAlarmOffIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.coord.Start(context.Background())
	f.coord.SetAlarm(false)

	calls := len(f.source.calls)
	f.coord.OnWake(WakeDaily)
	assert.Len(t, f.source.calls, calls, "a late wake must not start a cycle")
}

func TestMatchPass_PostsNotifications(t *testing.T) {
	f := newFixture(t)
	// Any destination inside 37,-122 is under 150 km from the cell
	// center, so a 500 km threshold always matches.
	loc, err := domain.NewKnownLocation("home", 37.5, -122.5, 500)
	require.NoError(t, err)
	f.registry.locs = []domain.KnownLocation{loc}

	f.coord.Start(context.Background())

	require.Len(t, f.notifier.posts, 1)
	assert.Equal(t, match.SlotLocalSingle, f.notifier.posts[0].Slot)
	assert.Contains(t, f.notifier.posts[0].Title, "home")
}

// An east-of-30W location compares against tomorrow's destination,
// whose effective date is today; today's record lands in the cache via
// the non-30W fetch, so the full cycle path must still find it.
func TestMatchPass_EastOf30WLocationMatches(t *testing.T) {
	f := newFixture(t)
	berlin, err := domain.NewKnownLocation("berlin", 52.5, 13.4, 500)
	require.NoError(t, err)
	require.True(t, berlin.Graticule.Uses30W())
	f.registry.locs = []domain.KnownLocation{berlin}

	f.coord.Start(context.Background())
	require.Equal(t, "done", f.coord.Snapshot().State)

	require.NotEmpty(t, f.notifier.posts, "30W location must match after a fully successful cycle")
	post := f.notifier.posts[0]
	assert.Equal(t, match.SlotLocalSingle, post.Slot)
	assert.Contains(t, post.Title, "berlin")

	// The destination answers for tomorrow's date.
	require.NotEmpty(t, post.Results)
	tomorrow := time.Date(2023, time.June, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, tomorrow, post.Results[0].Destination.Date)
}

func TestDestination_MissThenHit(t *testing.T) {
	f := newFixture(t)
	g, err := domain.NewGraticule(37, 122, false, true)
	require.NoError(t, err)

	_, ok := f.coord.Destination(testNow, &g)
	assert.False(t, ok, "nothing cached yet")

	f.coord.Start(context.Background())

	dest, ok := f.coord.Destination(testNow, &g)
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, time.June, 9, 0, 0, 0, 0, time.UTC), dest.Date)
	assert.GreaterOrEqual(t, dest.Lat, 37.0)
	assert.Less(t, dest.Lat, 38.0)
	assert.LessOrEqual(t, dest.Lon, -122.0)
	assert.Greater(t, dest.Lon, -123.0)
}

func TestManualDestination_FetchesOnMissWithoutStateChange(t *testing.T) {
	f := newFixture(t)
	g, err := domain.NewGraticule(52, 13, false, false)
	require.NoError(t, err)

	before := f.coord.Snapshot().State
	dest, outcome := f.coord.ManualDestination(context.Background(), testNow, &g)

	assert.Equal(t, domain.OutcomeSuccess, outcome.Kind)
	assert.GreaterOrEqual(t, dest.Lat, 52.0)
	assert.Equal(t, before, f.coord.Snapshot().State)

	// The fetched value is cached for the cycle to reuse.
	eff := domain.EffectiveDate(testNow, &g)
	_, ok, _ := f.cache.Lookup(context.Background(), eff)
	assert.True(t, ok)
}

func TestManualDestination_PropagatesFailureOutcome(t *testing.T) {
	f := newFixture(t)
	f.source.outcomes = []domain.FetchOutcome{{Kind: domain.OutcomeNotPosted}}

	_, outcome := f.coord.ManualDestination(context.Background(), testNow, nil)
	assert.Equal(t, domain.OutcomeNotPosted, outcome.Kind)
}

func TestTimerPlanner_FiresAndReplaces(t *testing.T) {
	clk := clockwork.NewFakeClockAt(testNow)
	fired := make(chan WakeID, 2)
	p := NewTimerPlanner(clk, func(id WakeID) { fired <- id })

	p.Register(WakeRetry, testNow.Add(time.Hour))
	p.Register(WakeRetry, testNow.Add(2*time.Hour)) // replaces the first

	clk.Advance(time.Hour)
	select {
	case id := <-fired:
		t.Fatalf("replaced wake fired: %s", id)
	case <-time.After(50 * time.Millisecond):
	}

	clk.Advance(time.Hour)
	select {
	case id := <-fired:
		assert.Equal(t, WakeRetry, id)
	case <-time.After(time.Second):
		t.Fatal("wake did not fire")
	}
}

func TestTimerPlanner_Cancel(t *testing.T) {
	clk := clockwork.NewFakeClockAt(testNow)
	fired := make(chan WakeID, 1)
	p := NewTimerPlanner(clk, func(id WakeID) { fired <- id })

	p.Register(WakeDaily, testNow.Add(time.Hour))
	p.Cancel(WakeDaily)

	clk.Advance(2 * time.Hour)
	select {
	case <-fired:
		t.Fatal("cancelled wake fired")
	case <-time.After(50 * time.Millisecond):
	}
}
