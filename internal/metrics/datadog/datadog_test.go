package datadog

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"gtdetl/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) last(t *testing.T) datadogV2.MetricPayload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatal("no payload submitted")
	}
	return f.payloads[len(f.payloads)-1]
}

func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()
	fake := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "test",
		FlushEvery: time.Hour, // effectively disable the ticker in tests
		submitter:  fake,
		now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatal(err)
	}
	return b, fake
}

func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestFlushSubmitsBufferedCounters(t *testing.T) {
	b, fake := newTestBackend(t)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load_dim_country", "status": "ok"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load_dim_country", "status": "ok"})
	b.IncCounter(metrics.RowsInsertedTotal, 42, metrics.Labels{"table": "DimCountry"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "load_facts", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	payload := fake.last(t)
	byName := map[string]datadogV2.MetricSeries{}
	for _, s := range payload.Series {
		byName[s.Metric] = s
	}

	step, ok := byName["gtdetl.step.total"]
	if !ok {
		t.Fatal("missing gtdetl.step.total series")
	}
	if got := *step.Points[0].Value; got != 2 {
		t.Errorf("step total = %v, want 2", got)
	}
	if _, ok := byName["gtdetl.rows_inserted.total"]; !ok {
		t.Error("missing gtdetl.rows_inserted.total series")
	}
	if _, ok := byName["gtdetl.step.duration_seconds.p50"]; !ok {
		t.Error("missing duration percentile series")
	}
}

func TestFlushEmptyIsNoSubmit(t *testing.T) {
	b, fake := newTestBackend(t)
	defer func() { _ = b.Close() }()

	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
	fake.mu.Lock()
	n := len(fake.payloads)
	fake.mu.Unlock()
	if n != 0 {
		t.Fatalf("empty flush submitted %d payloads", n)
	}
}

func TestFlushResetsBuffers(t *testing.T) {
	b, fake := newTestBackend(t)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": "parsed"})
	_ = b.Flush()
	_ = b.Flush() // second flush has nothing

	fake.mu.Lock()
	n := len(fake.payloads)
	fake.mu.Unlock()
	if n != 1 {
		t.Fatalf("payload count = %d, want 1", n)
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	step, status := splitStepStatusKey(stepStatusKey("load_facts", "failed"))
	if step != "load_facts" || status != "failed" {
		t.Fatalf("round-trip = (%q, %q)", step, status)
	}
	step, status = splitStepStatusKey("bare")
	if step != "bare" || status != "unknown" {
		t.Fatalf("malformed key = (%q, %q)", step, status)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentileNearestRank(s, 0.5); got != 6 {
		t.Errorf("p50 = %v", got)
	}
	if got := percentileNearestRank(s, 0); got != 1 {
		t.Errorf("p0 = %v", got)
	}
	if got := percentileNearestRank(s, 1); got != 10 {
		t.Errorf("p100 = %v", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:gtdetl ,,")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "service:gtdetl" {
		t.Fatalf("ParseTagsCSV = %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatal("empty input should be nil")
	}
}
