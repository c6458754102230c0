package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geohash-dispatch/internal/observability"
)

// Pruner deletes stock records older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneJob sweeps stock records past the retention window. Destinations
// are recomputable from the source archive, so old records are safe to
// drop.
type PruneJob struct {
	pruner        Pruner
	retentionDays int
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewPruneJob creates the retention sweep job.
func NewPruneJob(pruner Pruner, retentionDays int, clock clockwork.Clock,
	logger *slog.Logger, metrics *observability.Metrics) *PruneJob {
	return &PruneJob{
		pruner:        pruner,
		retentionDays: retentionDays,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
	}
}

func (j *PruneJob) Name() string { return "prune-stock-records" }

func (j *PruneJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.clock.Now().UTC().AddDate(0, 0, -j.retentionDays)
	n, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	j.metrics.RecordsPruned.Add(float64(n))
	j.logger.Info("retention sweep complete",
		"cutoff", cutoff.Format("2006-01-02"),
		"pruned", n,
	)
	return nil
}
