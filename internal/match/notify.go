package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Slot identities must stay stable across restarts so stale
// notifications can be cleared deterministically.
const (
	SlotGlobal      = "global"
	SlotLocalSingle = "local-single"
)

// LocalSlot returns the identity of the i-th grouped local slot.
func LocalSlot(i int) string {
	return fmt.Sprintf("local-%d", i)
}

// AllSlots enumerates every slot a pass with the given cap could have
// filled, for clearing before reposting.
func AllSlots(slots int) []string {
	out := []string{SlotLocalSingle, SlotGlobal}
	for i := 0; i < slots; i++ {
		out = append(out, LocalSlot(i))
	}
	return out
}

// Notification is one entry for the notification surface.
type Notification struct {
	Slot    string
	Title   string
	Body    string
	Results []Result
}

// Notifier is the outward notification surface.
type Notifier interface {
	Post(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, slot string) error
}

// buildNotifications applies the grouping policy to the sorted match
// lists. Every qualifying match lands in exactly one notification.
func (m *Matcher) buildNotifications(local, global []Result) []Notification {
	var out []Notification

	if m.policy != PolicyNone && len(local) > 0 {
		switch m.policy {
		case PolicySingle:
			out = append(out, singleNotification(local))
		case PolicyPerCell:
			out = append(out, cappedNotifications(groupByCell(local), m.slots)...)
		case PolicyPerLocation:
			groups := make([][]Result, len(local))
			for i, r := range local {
				groups[i] = []Result{r}
			}
			out = append(out, cappedNotifications(groups, m.slots)...)
		}
	}

	if len(global) > 0 {
		closest := global[0]
		n := Notification{
			Slot:    SlotGlobal,
			Title:   "Globalhash near " + closest.Location.Name,
			Body:    fmt.Sprintf("%s away", fmtKm(closest.DistanceKm)),
			Results: global,
		}
		if len(global) > 1 {
			n.Body += fmt.Sprintf(" (+%d more)", len(global)-1)
		}
		out = append(out, n)
	}

	return out
}

func singleNotification(local []Result) Notification {
	closest := local[0]
	n := Notification{
		Slot:    SlotLocalSingle,
		Title:   "Geohash near " + closest.Location.Name,
		Body:    fmt.Sprintf("%s away", fmtKm(closest.DistanceKm)),
		Results: local,
	}
	if len(local) > 1 {
		n.Body += fmt.Sprintf(" (+%d more)", len(local)-1)
	}
	return n
}

// groupByCell partitions distance-sorted matches by originating
// graticule, preserving the order cells first appear so the closest
// cell groups come first.
func groupByCell(local []Result) [][]Result {
	order := make(map[string]int)
	var groups [][]Result
	for _, r := range local {
		key := r.Location.Graticule.String()
		i, seen := order[key]
		if !seen {
			i = len(groups)
			order[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}

// cappedNotifications emits one notification per group up to the slot
// cap; overflow groups flatten into one final spillover notification.
func cappedNotifications(groups [][]Result, slots int) []Notification {
	if len(groups) > slots {
		spill := make([]Result, 0)
		for _, g := range groups[slots-1:] {
			spill = append(spill, g...)
		}
		groups = append(groups[:slots-1:slots-1], spill)
	}

	out := make([]Notification, 0, len(groups))
	for i, g := range groups {
		out = append(out, groupNotification(LocalSlot(i), g))
	}
	return out
}

func groupNotification(slot string, g []Result) Notification {
	closest := g[0]
	n := Notification{
		Slot:    slot,
		Title:   "Geohash near " + closest.Location.Name,
		Body:    fmt.Sprintf("%s away in %s", fmtKm(closest.DistanceKm), closest.Location.Graticule.String()),
		Results: g,
	}
	if len(g) > 1 {
		names := make([]string, 0, len(g)-1)
		for _, r := range g[1:] {
			names = append(names, r.Location.Name)
		}
		n.Body += ", also " + strings.Join(names, ", ")
	}
	return n
}

// LogNotifier writes notifications to the structured log, the fallback
// surface when no broker is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) Post(_ context.Context, n Notification) error {
	l.Logger.Info("notification",
		"slot", n.Slot,
		"title", n.Title,
		"body", n.Body,
		"matches", len(n.Results),
	)
	return nil
}

func (l *LogNotifier) Cancel(_ context.Context, slot string) error {
	l.Logger.Debug("notification cleared", "slot", slot)
	return nil
}

// MultiNotifier fans out to several surfaces, returning the first
// error.
type MultiNotifier []Notifier

func (m MultiNotifier) Post(ctx context.Context, n Notification) error {
	for _, nt := range m {
		if err := nt.Post(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiNotifier) Cancel(ctx context.Context, slot string) error {
	for _, nt := range m {
		if err := nt.Cancel(ctx, slot); err != nil {
			return err
		}
	}
	return nil
}
