// Package pipeline orchestrates the GTD warehouse load: schema setup, the
// calendar seed, the two streaming passes (dimension extraction, fact
// resolution), and the constraint drop/re-add bracket around the bulk load.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/alitto/pond/v2"

	"gtdetl/internal/config"
	"gtdetl/internal/gtd"
	"gtdetl/internal/metrics"
	"gtdetl/internal/oplog"
	"gtdetl/internal/star"
	"gtdetl/internal/storage"
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Engine runs the load against one repository. Zero value plus Repo is
// usable; Logger, Ops, and Stream are optional.
type Engine struct {
	Repo   storage.Repository
	Logger Logger
	Ops    *oplog.Recorder

	// Stream is an optional seam to make Engine unit-testable.
	// When nil, StreamRecords is used.
	Stream StreamFn
}

// Run executes the full load and returns a per-step report.
//
// Two failure policies, per cfg.Runtime.FailFast:
//   - fail-fast: the first failed step ends the run; Run returns that error
//     alongside the partial report.
//   - best-effort (default): every step is attempted and reported; Run
//     returns a nil error and callers inspect Report.Failed(). The fact load
//     is the one exception: it is skipped whenever the calendar seed,
//     extraction, or any dimension load failed, since it would resolve
//     against incomplete keys.
//
// A failed EnsureTables is always fatal: nothing downstream can run without
// the schema.
func (e *Engine) Run(ctx context.Context, cfg config.Pipeline) (*Report, error) {
	if e.Repo == nil {
		return nil, fmt.Errorf("pipeline: Repo is required")
	}
	logf := e.logger()
	report := &Report{}

	run := func(name string, fn func() (int64, string, error)) error {
		start := time.Now()
		rows, msg, err := fn()
		res := StepResult{Name: name, Status: StatusOK, Message: msg, Rows: rows, Duration: durMS(start)}
		if err != nil {
			res.Status = StatusFailed
			res.Message = err.Error()
		}
		report.add(res)
		e.finishStep(ctx, logf, res)
		return err
	}

	if err := run("ensure_tables", func() (int64, string, error) {
		return 0, "", e.Repo.EnsureTables(ctx, star.Tables())
	}); err != nil {
		return report, err
	}

	seedErr := run("seed_dim_date", e.seedDates(ctx, cfg))
	if seedErr != nil && cfg.Runtime.FailFast {
		return report, seedErr
	}

	if err := run("drop_constraints", func() (int64, string, error) {
		return 0, "", e.Repo.DropForeignKeys(ctx, star.ForeignKeys())
	}); err != nil && cfg.Runtime.FailFast {
		return report, err
	}

	ex := star.NewExtractor()
	extractErr := run("extract_dimensions", func() (int64, string, error) {
		stats, err := e.stream(ctx, cfg, badRowLogger(logf), func(r *gtd.Record) error {
			ex.Observe(r)
			return nil
		})
		metrics.IncCounter(metrics.RecordsTotal, float64(stats.Records), metrics.Labels{"kind": "extract"})
		return stats.Records, fmt.Sprintf("records=%d bad_rows=%d", stats.Records, stats.BadRows), err
	})
	if extractErr != nil && cfg.Runtime.FailFast {
		return report, extractErr
	}
	e.reportOutOfDomain(ctx, logf, ex.OutOfDomain())

	dimFailed := e.loadDimensions(ctx, cfg, report, logf, ex)
	if dimFailed && cfg.Runtime.FailFast {
		return report, fmt.Errorf("pipeline: dimension load failed")
	}

	// The calendar seed is the date-dimension load: DateKey is a
	// non-nullable fact FK, so facts must not resolve against a partial
	// calendar any more than against a partial coded dimension.
	if seedErr != nil || extractErr != nil || dimFailed {
		res := StepResult{Name: "load_facts", Status: StatusSkipped, Message: "dimension loads incomplete"}
		report.add(res)
		e.finishStep(ctx, logf, res)
	} else if err := run("load_facts", e.loadFacts(ctx, cfg)); err != nil && cfg.Runtime.FailFast {
		return report, err
	}

	if err := run("add_constraints", func() (int64, string, error) {
		err := e.Repo.AddForeignKeys(ctx, star.ForeignKeys())
		var ie *storage.IntegrityError
		if errors.As(err, &ie) {
			return 0, "", fmt.Errorf("referential integrity violated: %w", ie)
		}
		return 0, "", err
	}); err != nil && cfg.Runtime.FailFast {
		return report, err
	}

	return report, nil
}

// loadDimensions loads every extracted dimension, DimensionWorkers tables at
// a time. The loads target disjoint tables and read the extractor's
// immutable snapshot, so ordering between them does not matter; results are
// reported in Dimensions order regardless of completion order.
func (e *Engine) loadDimensions(ctx context.Context, cfg config.Pipeline, report *Report, logf func(string, ...any), ex *star.Extractor) (failed bool) {
	workers := cfg.Runtime.DimensionWorkers
	if workers <= 0 {
		workers = 4
	}

	pool := pond.NewResultPool[StepResult](workers)
	group := pool.NewGroup()
	for _, d := range star.Dimensions {
		d := d
		group.SubmitErr(func() (StepResult, error) {
			start := time.Now()
			rows := ex.Rows(d.Table)
			n, err := e.Repo.InsertDimensionRows(ctx, d.Table, d.Columns, rows, d.NaturalKey)
			res := StepResult{
				Name:     "load_" + d.Table,
				Status:   StatusOK,
				Message:  fmt.Sprintf("members=%d", len(rows)),
				Rows:     n,
				Duration: durMS(start),
			}
			if err != nil {
				res.Status = StatusFailed
				res.Message = err.Error()
			} else {
				metrics.IncCounter(metrics.RowsInsertedTotal, float64(n), metrics.Labels{"table": d.Table})
			}
			return res, nil
		})
	}
	results, _ := group.Wait()
	pool.StopAndWait()

	for _, res := range results {
		report.add(res)
		e.finishStep(ctx, logf, res)
		if res.Status == StatusFailed {
			failed = true
		}
	}
	return failed
}

// seedDates inserts the fixed calendar range, batched. Present dates are
// skipped by the repository's natural-key insert, so reruns write nothing.
func (e *Engine) seedDates(ctx context.Context, cfg config.Pipeline) func() (int64, string, error) {
	return func() (int64, string, error) {
		logf := e.logger()
		debug := cfg.Runtime.DebugTimings

		batch := cfg.Runtime.BatchSize
		if batch <= 0 {
			batch = 5000
		}
		cols := append([]string{"DateKey"}, star.DateColumns...)
		key := []string{"DateKey"}

		var total int64
		rows := make([][]any, 0, batch)
		flush := func() error {
			if len(rows) == 0 {
				return nil
			}
			start := time.Now()
			n, err := e.Repo.InsertDimensionRows(ctx, star.DimDate, cols, rows, key)
			total += n
			if err == nil && debug {
				logf("stage=seed_dim_date batch_rows=%d inserted=%d duration=%s", len(rows), n, durMS(start))
			}
			rows = rows[:0]
			return err
		}

		err := star.DateRows(func(row []any) error {
			rows = append(rows, row)
			if len(rows) >= batch {
				return flush()
			}
			return nil
		})
		if err == nil {
			err = flush()
		}
		return total, "", err
	}
}

// loadFacts prewarms every dimension's surrogate-key map, streams the source
// a second time to collapse duplicate event ids, and bulk-inserts the
// resolved rows keyed on EventID.
func (e *Engine) loadFacts(ctx context.Context, cfg config.Pipeline) func() (int64, string, error) {
	return func() (int64, string, error) {
		logf := e.logger()
		debug := cfg.Runtime.DebugTimings

		keys := make(map[string]map[string]int64, len(star.Dimensions))
		for _, d := range star.Dimensions {
			start := time.Now()
			m, err := e.Repo.SelectSurrogateKeys(ctx, d.Table, d.NaturalKey, d.Key)
			if err != nil {
				return 0, "", fmt.Errorf("prewarm %s: %w", d.Table, err)
			}
			if debug {
				logf("stage=prewarm_keys table=%s keys=%d duration=%s", d.Table, len(m), durMS(start))
			}
			keys[d.Table] = m
		}

		rv := star.NewResolver(keys)
		stats, err := e.stream(ctx, cfg, badRowLogger(logf), func(r *gtd.Record) error {
			rv.Observe(r)
			return nil
		})
		if err != nil {
			return 0, "", err
		}
		metrics.IncCounter(metrics.RecordsTotal, float64(stats.Records), metrics.Labels{"kind": "facts"})

		rows, invalidDates, err := rv.Facts()
		if err != nil {
			return 0, "", err
		}

		insertStart := time.Now()
		n, err := e.Repo.InsertFactRows(ctx, star.FactTable, star.FactColumns(), rows, []string{"EventID"})
		if err != nil {
			return n, "", err
		}
		if debug {
			logf("stage=insert_facts batch_rows=%d inserted=%d duration=%s", len(rows), n, durMS(insertStart))
		}
		metrics.IncCounter(metrics.RowsInsertedTotal, float64(n), metrics.Labels{"table": star.FactTable})

		msg := fmt.Sprintf("candidates=%d duplicates=%d invalid_dates=%d", stats.Records, rv.Duplicates(), invalidDates)
		return n, msg, nil
	}
}

func (e *Engine) finishStep(ctx context.Context, logf func(string, ...any), res StepResult) {
	metrics.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": res.Name, "status": string(res.Status)})
	metrics.ObserveHistogram(metrics.StepDurationSeconds, res.Duration.Seconds(), metrics.Labels{"step": res.Name, "status": string(res.Status)})

	switch res.Status {
	case StatusFailed:
		logf("stage=%s failed duration=%s err=%s", res.Name, res.Duration, res.Message)
		e.Ops.Record(ctx, res.Name, "failed: %s", res.Message)
	case StatusSkipped:
		logf("stage=%s skipped reason=%s", res.Name, res.Message)
		e.Ops.Record(ctx, res.Name, "skipped: %s", res.Message)
	default:
		logf("stage=%s ok duration=%s rows=%d %s", res.Name, res.Duration, res.Rows, res.Message)
		e.Ops.Record(ctx, res.Name, "ok rows=%d duration=%s %s", res.Rows, res.Duration, res.Message)
	}
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

func (e *Engine) stream(ctx context.Context, cfg config.Pipeline, onErr func(line int, err error), fn func(*gtd.Record) error) (ScanStats, error) {
	if e.Stream != nil {
		return e.Stream(ctx, cfg, onErr, fn)
	}
	return StreamRecords(ctx, cfg, onErr, fn)
}

func badRowLogger(logf func(string, ...any)) func(line int, err error) {
	return func(line int, err error) {
		logf("bad_row line=%d err=%v", line, err)
	}
}

// reportOutOfDomain surfaces flag codes outside their fixed domain. They are
// excluded from the load, never mapped to a catch-all member, so the counts
// go to both the stage log and the operation log.
func (e *Engine) reportOutOfDomain(ctx context.Context, logf func(string, ...any), counts map[string]int64) {
	tables := make([]string, 0, len(counts))
	for t := range counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		logf("dimension=%s out_of_domain=%d", t, counts[t])
		e.Ops.Record(ctx, "extract_dimensions", "excluded %d out-of-domain codes for %s", counts[t], t)
	}
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
