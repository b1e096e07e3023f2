// Package transformer provides the pooled positional row passed between the
// CSV parser and the load stages, keeping per-record allocations off the hot
// path of a multi-hundred-thousand-row batch.
package transformer

import "sync"

// Row is a pooled container holding one positional source record.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time.
//   - Rows move downstream via channels (ownership transfer).
//   - The final consumer calls Free() once it is fully done with r.V.
//   - On cancellation paths, call Drop() instead: a canceled drain may still
//     be reading the slice while the parser would otherwise reuse it.
type Row struct {
	V    []any
	Line int // 1-based source line, if known
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount and all elements nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool. Call only when no other goroutine can
// still observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without re-pooling. Use on cancellation paths.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}
