package repo

import (
	"context"
	"errors"
	"time"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

var ErrNotFound = errors.New("not found")

// RunRecord is one submitted run as kept in the ledger.
type RunRecord struct {
	RunID        string
	DocumentID   string
	PipelineName string
	RunName      string
	Parameters   map[string]any
	Status       domain.RunStatus
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

// StatusEvent is one observed status transition of a run.
type StatusEvent struct {
	ID         string
	RunID      string
	From       domain.RunStatus
	To         domain.RunStatus
	ObservedAt time.Time
}

// RunLedger records submissions and the status transitions seen while
// monitoring them.
type RunLedger interface {
	RecordSubmission(ctx context.Context, handle domain.RunHandle, parameters map[string]any) error
	ObserveStatus(ctx context.Context, handle domain.RunHandle, from, to domain.RunStatus, at time.Time) error
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListStatusEvents(ctx context.Context, runID string) ([]StatusEvent, error)
}
