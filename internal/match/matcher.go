// Package match evaluates registered known locations against freshly
// computed destinations and decides which deserve a notification.
package match

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/geohash-dispatch/internal/domain"
	"github.com/couchcryptid/geohash-dispatch/internal/observability"
)

// DestinationSource resolves the destination for a request date and
// graticule (nil for global) from already-cached stock records. The
// boolean is false while the needed record has not been fetched yet —
// a normal transient state, not an error.
type DestinationSource interface {
	Destination(date time.Time, g *domain.Graticule) (domain.Destination, bool)
}

// Result is one known location found within threshold of a destination.
type Result struct {
	Location    domain.KnownLocation
	Destination domain.Destination
	DistanceKm  float64
}

// Matcher runs the proximity pass over the registry.
type Matcher struct {
	src               DestinationSource
	policy            Policy
	slots             int
	globalEnabled     bool
	globalThresholdKm float64
	logger            *slog.Logger
	metrics           *observability.Metrics
}

// New creates a matcher. slots caps how many notification slots a pass
// may fill; overflow collapses into the final slot.
func New(src DestinationSource, policy Policy, slots int, globalEnabled bool, globalThresholdKm float64,
	logger *slog.Logger, metrics *observability.Metrics) *Matcher {
	return &Matcher{
		src:               src,
		policy:            policy,
		slots:             slots,
		globalEnabled:     globalEnabled,
		globalThresholdKm: globalThresholdKm,
		logger:            logger,
		metrics:           metrics,
	}
}

// Match computes the local and global match lists for today, each
// sorted by non-decreasing distance. Equal distances keep registration
// order; locations whose comparison destination cannot be computed yet
// are silently skipped.
func (m *Matcher) Match(today time.Time, locations []domain.KnownLocation) (local, global []Result) {
	for _, loc := range locations {
		compDate := today
		if loc.Graticule.Uses30W() {
			// A 30W cell's practically relevant "today" is tomorrow's
			// date: today's value already determines it.
			compDate = today.AddDate(0, 0, 1)
		}

		g := loc.Graticule
		dest, ok := m.src.Destination(compDate, &g)
		if !ok {
			m.logger.Debug("destination not yet computable, skipping location",
				"location", loc.Name,
				"graticule", g.String(),
			)
			continue
		}

		dist := domain.DistanceKm(loc.Lat, loc.Lon, dest.Lat, dest.Lon)
		if dist <= loc.ThresholdKm {
			local = append(local, Result{Location: loc, Destination: dest, DistanceKm: dist})
		}
	}
	sort.SliceStable(local, func(i, j int) bool { return local[i].DistanceKm < local[j].DistanceKm })

	if m.globalEnabled {
		global = m.matchGlobal(today, locations)
	}

	m.metrics.MatchesFound.WithLabelValues("local").Add(float64(len(local)))
	m.metrics.MatchesFound.WithLabelValues("global").Add(float64(len(global)))
	return local, global
}

// matchGlobal compares every registered location against the single
// global destination through the spatial index.
func (m *Matcher) matchGlobal(today time.Time, locations []domain.KnownLocation) []Result {
	dest, ok := m.src.Destination(today, nil)
	if !ok {
		m.logger.Debug("global destination not yet computable, skipping global pass")
		return nil
	}

	idx := newLocationIndex(locations)
	candidates := idx.searchRadius(dest.Lat, dest.Lon, m.globalThresholdKm)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			Location:    c.loc,
			Destination: dest,
			DistanceKm:  c.distanceKm,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].DistanceKm < results[j].DistanceKm })
	return results
}

// Pass runs a full matching pass and returns the notifications to post.
func (m *Matcher) Pass(today time.Time, locations []domain.KnownLocation) []Notification {
	local, global := m.Match(today, locations)
	notifs := m.buildNotifications(local, global)
	m.metrics.NotificationsEmitted.WithLabelValues(m.policy.String()).Add(float64(len(notifs)))
	return notifs
}

func fmtKm(km float64) string {
	if km < 10 {
		return fmt.Sprintf("%.1f km", km)
	}
	return fmt.Sprintf("%.0f km", km)
}
