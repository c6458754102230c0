package domain

import (
	"context"
	"regexp"
	"time"
)

// StockClass partitions graticules by which trading day's opening value
// they hash. All cells of a class share one cached value per effective
// date; the value itself is not cell-specific.
type StockClass int

const (
	// Class30W covers cells east of 30°W plus the global destination;
	// these hash the previous trading day's value.
	Class30W StockClass = iota
	// ClassNon30W covers cells at or west of 30°W.
	ClassNon30W
)

func (c StockClass) String() string {
	if c == Class30W {
		return "30w"
	}
	return "non30w"
}

// dummy graticules used when resolving an effective date for a class as
// a whole rather than for a concrete cell.
var (
	dummy30W    = Graticule{latMag: 0, lonMag: 0}               // 0,0 — east of 30W
	dummyNon30W = Graticule{latMag: 0, lonMag: 100, west: true} // 0,-100 — west of 30W
)

// ClassGraticule returns a representative graticule of the class,
// suitable for passing to EffectiveDate.
func ClassGraticule(c StockClass) Graticule {
	if c == Class30W {
		return dummy30W
	}
	return dummyNon30W
}

// StockRecord pairs an effective trading date with the opening value
// exactly as published. Value is the permanent, hashable form: rounding
// or reformatting it would silently move every destination derived from
// it.
type StockRecord struct {
	Date      time.Time `json:"date"`
	Value     string    `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewStockRecord stamps a record with the current clock time.
func NewStockRecord(date time.Time, value string) StockRecord {
	return StockRecord{Date: date, Value: value, FetchedAt: clock.Now().UTC()}
}

// indexValueRe accepts a plain decimal number, the only shape the index
// source publishes.
var indexValueRe = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ValidIndexValue reports whether s is a syntactically valid opening
// value. Validation happens once, at the fetch boundary; the hash path
// assumes it already passed.
func ValidIndexValue(s string) bool {
	return indexValueRe.MatchString(s)
}

// StockCache stores at most one record per effective date. The opening
// value is a property of the trading date alone, so every class and
// cell resolving to the same effective date shares one record; class
// matters only for picking the date, never for the lookup. Lookup never
// reaches the network; callers decide what a miss means.
type StockCache interface {
	Lookup(ctx context.Context, date time.Time) (StockRecord, bool, error)
	Store(ctx context.Context, rec StockRecord) error
}

// FetchOutcomeKind enumerates the ways an index fetch can end. Outcomes
// are data, not exceptions: the coordinator turns each kind into a
// state transition.
type FetchOutcomeKind int

const (
	// OutcomeSuccess carries a validated opening value.
	OutcomeSuccess FetchOutcomeKind = iota
	// OutcomeNotPosted means the source answered but has no value for
	// the date yet; retried on a fixed snooze.
	OutcomeNotPosted
	// OutcomeNoConnection means the network itself is down; retried
	// when connectivity returns.
	OutcomeNoConnection
	// OutcomeTransient covers server errors and other recoverable
	// failures; retried on the same snooze as OutcomeNotPosted.
	OutcomeTransient
	// OutcomeMalformed means the source answered with something that is
	// not a decimal number. Nothing is cached; the cycle ends.
	OutcomeMalformed
)

func (k FetchOutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotPosted:
		return "not_posted"
	case OutcomeNoConnection:
		return "no_connection"
	case OutcomeTransient:
		return "transient"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchOutcome is the tagged result of one index fetch. Value is set
// only for OutcomeSuccess; Err only for the failure kinds that carry a
// cause.
type FetchOutcome struct {
	Kind  FetchOutcomeKind
	Value string
	Err   error
}

// StockSource fetches the published opening value for an effective
// trading date.
type StockSource interface {
	FetchIndexValue(ctx context.Context, date time.Time) FetchOutcome
}

// KnownLocation is a user-registered point of interest compared against
// computed destinations. Read-only to this service; registration lives
// elsewhere.
type KnownLocation struct {
	Name        string
	Lat         float64
	Lon         float64
	ThresholdKm float64
	Graticule   Graticule
}

// NewKnownLocation derives the containing graticule from the coordinate.
func NewKnownLocation(name string, lat, lon, thresholdKm float64) (KnownLocation, error) {
	g, err := GraticuleAt(lat, lon)
	if err != nil {
		return KnownLocation{}, err
	}
	return KnownLocation{Name: name, Lat: lat, Lon: lon, ThresholdKm: thresholdKm, Graticule: g}, nil
}
