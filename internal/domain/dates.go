package domain

import "time"

// ruleCutover is the last date before the 30W rule took effect.
// Requests strictly after it apply the rule to 30W-class graticules.
var ruleCutover = time.Date(2008, time.May, 26, 0, 0, 0, 0, time.UTC)

// EffectiveDate resolves the trading date whose opening value determines
// the hash for a request date. A nil graticule means the global
// destination, which always applies the 30W offset; graticule requests
// apply it only when the cell uses the rule and the request date is
// strictly after the 2008-05-26 cutover.
//
// After the offset, weekend dates clamp back to the preceding business
// day. The result is always <= the request date, at UTC midnight.
//
// Every path that needs an effective date — the daily cycle, the manual
// endpoint, the CLI — must go through this function; a second
// implementation that drifts would silently produce wrong coordinates.
func EffectiveDate(request time.Time, g *Graticule) time.Time {
	d := midnightUTC(request)

	if g == nil || (g.Uses30W() && d.After(ruleCutover)) {
		d = d.AddDate(0, 0, -1)
	}

	switch d.Weekday() {
	case time.Saturday:
		d = d.AddDate(0, 0, -1)
	case time.Sunday:
		d = d.AddDate(0, 0, -2)
	}
	return d
}

// midnightUTC strips the time-of-day, keeping the calendar date as
// observed in the input's own location.
func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
