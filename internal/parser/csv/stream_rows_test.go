package csv

import (
	"context"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"gtdetl/internal/config"
	"gtdetl/internal/transformer"
)

func collect(t *testing.T, src string, columns []string, opt config.Options) ([][]any, []string) {
	t.Helper()

	out := make(chan *transformer.Row, 64)
	var errs []string
	onErr := func(line int, err error) {
		errs = append(errs, err.Error())
	}

	done := make(chan error, 1)
	go func() {
		done <- StreamRows(context.Background(), io.NopCloser(strings.NewReader(src)), columns, opt, out, onErr)
		close(out)
	}()

	var rows [][]any
	for r := range out {
		vals := make([]any, len(r.V))
		copy(vals, r.V)
		rows = append(rows, vals)
		r.Free()
	}
	if err := <-done; err != nil && len(errs) == 0 {
		t.Fatalf("StreamRows: %v", err)
	}
	return rows, errs
}

func TestStreamRowsHeaderMapping(t *testing.T) {
	src := "eventid,iyear,city\n101,1998,Bogota\n102,,\n"
	opt := config.Options{
		"encoding":   "utf-8",
		"header_map": map[string]any{"iyear": "year"},
	}
	rows, errs := collect(t, src, []string{"event_id", "year", "city"}, opt)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// event_id has no source column (eventid vs event_id, no mapping): nil.
	if rows[0][0] != nil {
		t.Errorf("unmapped column = %v, want nil", rows[0][0])
	}
	if rows[0][1] != "1998" || rows[0][2] != "Bogota" {
		t.Errorf("row 1 = %v", rows[0])
	}
	if rows[1][1] != nil || rows[1][2] != nil {
		t.Errorf("empty cells should be nil, got %v", rows[1])
	}
}

func TestStreamRowsLatin1(t *testing.T) {
	enc := charmap.ISO8859_1.NewEncoder()
	city, err := enc.String("Bogotá")
	if err != nil {
		t.Fatal(err)
	}
	src := "city\n" + city + "\n"
	rows, errs := collect(t, src, []string{"city"}, config.Options{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(rows) != 1 || rows[0][0] != "Bogotá" {
		t.Fatalf("latin1 decode: got %v", rows)
	}
}

func TestStreamRowsBOMStripped(t *testing.T) {
	src := "\ufeffcity\nParis\n"
	rows, _ := collect(t, src, []string{"city"}, config.Options{"encoding": "utf-8"})
	if len(rows) != 1 || rows[0][0] != "Paris" {
		t.Fatalf("BOM header: got %v", rows)
	}
}

func TestStreamRowsMalformedLineReported(t *testing.T) {
	src := "a,b\n1,2\n\"bad\n3,4\n"
	rows, errs := collect(t, src, []string{"a", "b"}, config.Options{"encoding": "utf-8"})
	if len(errs) == 0 {
		t.Fatal("expected a parse error for the unterminated quote")
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 good row", len(rows))
	}
}

func TestStreamRowsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan *transformer.Row) // unbuffered, nobody reading
	err := StreamRows(ctx, io.NopCloser(strings.NewReader("a\n1\n2\n")), []string{"a"}, config.Options{"encoding": "utf-8"}, out, nil)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
