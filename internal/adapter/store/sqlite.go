// Package store persists stock records and the known-location registry
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/couchcryptid/geohash-dispatch/internal/domain"
)

const dateFormat = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS stock_records (
	effective_date TEXT NOT NULL PRIMARY KEY,
	index_value    TEXT NOT NULL,
	fetched_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS known_locations (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	threshold_km REAL NOT NULL
);
`

// Store wraps the SQLite database. It implements domain.StockCache and
// serves read-only known-location access.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached record for an effective date, if any. The
// record is shared by every class and cell resolving to that date; it
// never reaches the network.
func (s *Store) Lookup(ctx context.Context, date time.Time) (domain.StockRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT index_value, fetched_at FROM stock_records WHERE effective_date = ?`,
		date.Format(dateFormat),
	)

	var value, fetchedAt string
	if err := row.Scan(&value, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.StockRecord{}, false, nil
		}
		return domain.StockRecord{}, false, fmt.Errorf("lookup stock record: %w", err)
	}

	rec := domain.StockRecord{Date: date, Value: value}
	if t, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
		rec.FetchedAt = t
	}
	return rec, true, nil
}

// Store inserts a record under its effective date. A second store for
// an existing date is a no-op: the first value string fetched for a
// date is the permanent record.
func (s *Store) Store(ctx context.Context, rec domain.StockRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stock_records (effective_date, index_value, fetched_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (effective_date) DO NOTHING`,
		rec.Date.Format(dateFormat), rec.Value, rec.FetchedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store stock record: %w", err)
	}
	return nil
}

// PruneBefore deletes stock records with an effective date strictly
// before cutoff, returning the number removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM stock_records WHERE effective_date < ?`,
		cutoff.Format(dateFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("prune stock records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune stock records: %w", err)
	}
	return n, nil
}

// KnownLocations returns every registered location in registration
// order, with the containing graticule derived from the coordinate.
func (s *Store) KnownLocations(ctx context.Context) ([]domain.KnownLocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, lat, lon, threshold_km FROM known_locations ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list known locations: %w", err)
	}
	defer rows.Close()

	var locs []domain.KnownLocation
	for rows.Next() {
		var (
			name                string
			lat, lon, threshold float64
		)
		if err := rows.Scan(&name, &lat, &lon, &threshold); err != nil {
			return nil, fmt.Errorf("scan known location: %w", err)
		}
		loc, err := domain.NewKnownLocation(name, lat, lon, threshold)
		if err != nil {
			return nil, fmt.Errorf("known location %q: %w", name, err)
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

// AddKnownLocation registers a location. Registration is a tooling
// concern (cmd/hashpoint); the daily cycle only ever reads.
func (s *Store) AddKnownLocation(ctx context.Context, loc domain.KnownLocation) error {
	if _, err := domain.GraticuleAt(loc.Lat, loc.Lon); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO known_locations (name, lat, lon, threshold_km) VALUES (?, ?, ?, ?)`,
		loc.Name, loc.Lat, loc.Lon, loc.ThresholdKm,
	)
	if err != nil {
		return fmt.Errorf("add known location: %w", err)
	}
	return nil
}
