package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gtdetl/internal/config"
	"gtdetl/internal/gtd"
	csvp "gtdetl/internal/parser/csv"
	"gtdetl/internal/transformer"
)

// ScanStats summarizes one streaming pass over the source file.
type ScanStats struct {
	Records int64 // typed records handed to the callback
	BadRows int64 // malformed lines and unparseable records, skipped
}

// StreamFn is a seam for providing typed record streams.
//
// When to use:
//   - Unit tests: inject deterministic records without file I/O or parsers.
//   - Production: StreamRecords (file -> csv -> typed record).
//
// onErr, when non-nil, is called once per skipped row; calls are serialized.
// A non-nil error from fn stops the scan and is returned as-is.
type StreamFn func(ctx context.Context, cfg config.Pipeline, onErr func(line int, err error), fn func(*gtd.Record) error) (ScanStats, error)

// StreamRecords opens the configured source file and streams it through the
// CSV parser into typed records, invoking fn once per parseable record.
//
// Rows that fail CSV reading or typed parsing are counted and reported via
// onErr but do not stop the scan; the GTD extract reliably contains a
// handful of malformed lines and a full-batch abort on each would make the
// loader useless. Header mapping defaults to the canonical GTD header names
// unless the parser options carry an explicit header_map.
func StreamRecords(ctx context.Context, cfg config.Pipeline, onErr func(line int, err error), fn func(*gtd.Record) error) (ScanStats, error) {
	var stats ScanStats

	if cfg.Source.File == nil || cfg.Source.File.Path == "" {
		return stats, fmt.Errorf("stream: source.file.path is required")
	}
	f, err := os.Open(cfg.Source.File.Path)
	if err != nil {
		return stats, fmt.Errorf("stream: open source: %w", err)
	}

	opt := config.Options{}
	for k, v := range cfg.Parser.Options {
		opt[k] = v
	}
	if _, ok := opt["header_map"]; !ok {
		opt["header_map"] = gtd.DefaultHeaderMap
	}

	buf := cfg.Runtime.ChannelBuffer
	if buf <= 0 {
		buf = 256
	}
	out := make(chan *transformer.Row, buf)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The parser reports read errors from its own goroutine; serialize the
	// counter and the caller's onErr behind one mutex.
	var mu sync.Mutex
	report := func(line int, err error) {
		mu.Lock()
		stats.BadRows++
		if onErr != nil {
			onErr(line, err)
		}
		mu.Unlock()
	}

	done := make(chan error, 1)
	go func() {
		done <- csvp.StreamRows(ctx, f, gtd.Columns, opt, out, report)
		close(out)
	}()

	var cbErr error
	for row := range out {
		if cbErr != nil {
			row.Drop()
			continue
		}
		line := row.Line
		rec, perr := gtd.ParseRow(row)
		row.Free()
		if perr != nil {
			report(line, perr)
			continue
		}
		stats.Records++
		if err := fn(rec); err != nil {
			cbErr = err
			cancel() // stop the parser; remaining rows are dropped above
		}
	}

	streamErr := <-done
	if cbErr != nil {
		return stats, cbErr
	}
	return stats, streamErr
}
