// Package oplog appends operator-facing records of every load and manager
// operation to the warehouse's operation log table.
package oplog

import (
	"context"
	"fmt"
	"time"

	"gtdetl/internal/storage"
)

// Recorder writes operation-log entries. Writes never fail the caller: the
// repository swallows its own errors, and a nil Recorder is a safe no-op so
// callers don't guard every Record call.
type Recorder struct {
	repo storage.Repository
	now  func() time.Time
}

func New(repo storage.Repository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Record appends one entry: an action name plus a formatted message.
func (r *Recorder) Record(ctx context.Context, action, format string, args ...any) {
	if r == nil || r.repo == nil {
		return
	}
	r.repo.RecordOperation(ctx, action, fmt.Sprintf(format, args...), r.now().UTC())
}
