package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Status classifies a step outcome in the run report.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepResult records one pipeline step for the run report and the operation
// log. Rows is the number of rows the step wrote, where that is meaningful.
type StepResult struct {
	Name     string
	Status   Status
	Message  string
	Rows     int64
	Duration time.Duration
}

// Report is the ordered list of step results for one run.
type Report struct {
	Steps []StepResult
}

func (r *Report) add(s StepResult) { r.Steps = append(r.Steps, s) }

// Failed reports whether any step failed. Skipped steps do not count: they
// are a consequence of an earlier failure, not a failure themselves.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Summary renders the report as an aligned status table, one line per step.
func (r *Report) Summary() string {
	var b strings.Builder
	width := 0
	for _, s := range r.Steps {
		if len(s.Name) > width {
			width = len(s.Name)
		}
	}
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "%-*s  %-7s  rows=%-8d  %s", width, s.Name, s.Status, s.Rows, s.Duration)
		if s.Message != "" {
			fmt.Fprintf(&b, "  %s", s.Message)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
