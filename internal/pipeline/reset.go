package pipeline

import (
	"context"
	"time"

	"gtdetl/internal/config"
	"gtdetl/internal/star"
)

// Reset empties every warehouse table, resets surrogate-key counters, and
// reseeds the date dimension, leaving the schema and the operation log in
// place. Foreign keys are dropped first so backends that cannot empty
// referenced tables in one statement still succeed; the next Run re-adds
// them.
func (e *Engine) Reset(ctx context.Context) error {
	logf := e.logger()
	start := time.Now()

	if err := e.Repo.EnsureTables(ctx, star.Tables()); err != nil {
		return err
	}
	if err := e.Repo.DropForeignKeys(ctx, star.ForeignKeys()); err != nil {
		return err
	}
	tables := star.TruncateOrder()
	if err := e.Repo.Truncate(ctx, tables); err != nil {
		return err
	}
	seeded, _, err := e.seedDates(ctx, config.Pipeline{})()
	if err != nil {
		return err
	}

	logf("stage=reset ok duration=%s tables=%d reseeded=%d", durMS(start), len(tables), seeded)
	e.Ops.Record(ctx, "reset", "truncated %d tables, reseeded %d dates", len(tables), seeded)
	return nil
}
