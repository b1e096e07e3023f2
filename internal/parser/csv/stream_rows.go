// Package csv streams the GTD extract into pooled positional rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"gtdetl/internal/config"
	"gtdetl/internal/transformer"
)

// StreamRows reads CSV records from src and emits pooled *transformer.Row
// values aligned to the target 'columns' order.
//
// Header handling: source header names are trimmed, lowercased, and passed
// through the optional header_map (raw GTD name -> canonical field name)
// before matching against columns. Missing source columns yield nil cells.
//
// Supported options: has_header (default true), comma, trim_space (default
// true), lazy_quotes, encoding ("latin1", the GTD export encoding, or
// "utf-8"), header_map.
//
// NOTE on cancellation: in-flight rows must NOT be returned to the pool when
// ctx is canceled (Drop instead), otherwise the parser can reuse them while
// drain-safe downstream stages still read them.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	var line int

	hasHeader := opt.Bool("has_header", true)
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	lazy := opt.Bool("lazy_quotes", false)
	hm := opt.StringMap("header_map")

	var r io.Reader = src
	if opt.String("encoding", "latin1") == "latin1" {
		r = transform.NewReader(src, charmap.ISO8859_1.NewDecoder())
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1

	colIx := make([]int, len(columns))
	for i := range colIx {
		colIx[i] = -1
	}

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	if hasHeader {
		hdr, err := readRec()
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return err
		}
		srcToIdx := make(map[string]int, len(hdr))
		for i, h := range hdr {
			h = strings.TrimSpace(h)
			if i == 0 {
				h = strings.TrimPrefix(h, "\ufeff")
			}
			h = strings.ToLower(h)
			if mapped, ok := hm[h]; ok {
				h = mapped
			}
			srcToIdx[h] = i
		}
		for t, target := range columns {
			if si, ok := srcToIdx[target]; ok {
				colIx[t] = si
			}
		}
	} else {
		for i := range columns {
			colIx[i] = i
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := transformer.GetRow(len(columns))
		row.Line = line

		for t := range columns {
			si := colIx[t]
			if si < 0 || si >= len(rec) {
				row.V[t] = nil
				continue
			}
			v := rec[si]
			if trim {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				row.V[t] = nil
			} else {
				row.V[t] = v
			}
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}
