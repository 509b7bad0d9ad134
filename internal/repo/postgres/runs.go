package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/repo"
)

// RunStore is the postgres run ledger. It satisfies monitor.Observer.
type RunStore struct {
	db  DB
	now func() time.Time
}

var _ repo.RunLedger = (*RunStore)(nil)

const (
	insertRunQuery = `INSERT INTO pipeline_runs (
		run_id,
		document_id,
		pipeline_name,
		run_name,
		parameters,
		status,
		submitted_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	ON CONFLICT (run_id) DO NOTHING`

	// Event insert and status update are one statement.
	observeStatusQuery = `WITH event AS (
		INSERT INTO pipeline_run_status_events (event_id, run_id, from_status, to_status, observed_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING run_id, to_status, observed_at
	)
	UPDATE pipeline_runs r
	SET status = event.to_status, updated_at = event.observed_at
	FROM event
	WHERE r.run_id = event.run_id`

	selectRunQuery = `SELECT run_id, document_id, pipeline_name, run_name, parameters, status, submitted_at, updated_at
	 FROM pipeline_runs
	 WHERE run_id = $1`

	listStatusEventsQuery = `SELECT event_id, run_id, from_status, to_status, observed_at
	 FROM pipeline_run_status_events
	 WHERE run_id = $1
	 ORDER BY observed_at ASC, event_id ASC`
)

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db, now: time.Now}
}

// RecordSubmission stores a freshly created run as PENDING. Recording the
// same run twice is a no-op.
func (s *RunStore) RecordSubmission(ctx context.Context, handle domain.RunHandle, parameters map[string]any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	runID := strings.TrimSpace(handle.RunID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(handle.DocumentID) == "" {
		return fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(handle.PipelineName) == "" {
		return fmt.Errorf("pipeline name is required")
	}
	paramsJSON, err := encodeParameters(parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	submittedAt := handle.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = s.now()
	}
	_, err = s.db.ExecContext(
		ctx,
		insertRunQuery,
		runID,
		strings.TrimSpace(handle.DocumentID),
		strings.TrimSpace(handle.PipelineName),
		nullIfEmpty(handle.RunName),
		paramsJSON,
		string(domain.RunStatusPending),
		normalizeTime(submittedAt),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// ObserveStatus appends a transition event and moves the run's current
// status. Transitions for runs that were never recorded are ignored.
func (s *RunStore) ObserveStatus(ctx context.Context, handle domain.RunHandle, from, to domain.RunStatus, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	runID := strings.TrimSpace(handle.RunID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if to == "" || to == domain.RunStatusUnknown {
		return fmt.Errorf("invalid target status %q", to)
	}
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(
		ctx,
		observeStatusQuery,
		uuid.NewString(),
		runID,
		string(from),
		string(to),
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record status event: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, runID string) (repo.RunRecord, error) {
	if s == nil || s.db == nil {
		return repo.RunRecord{}, fmt.Errorf("run store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return repo.RunRecord{}, fmt.Errorf("run id is required")
	}

	var record repo.RunRecord
	var runName *string
	var paramsJSON []byte
	var status string
	row := s.db.QueryRowContext(ctx, selectRunQuery, runID)
	if err := row.Scan(&record.RunID, &record.DocumentID, &record.PipelineName, &runName, &paramsJSON, &status, &record.SubmittedAt, &record.UpdatedAt); err != nil {
		return repo.RunRecord{}, handleNotFound(err)
	}
	params, err := decodeParameters(paramsJSON)
	if err != nil {
		return repo.RunRecord{}, fmt.Errorf("decode parameters: %w", err)
	}
	if runName != nil {
		record.RunName = *runName
	}
	record.Parameters = params
	record.Status = domain.RunStatus(status)
	record.SubmittedAt = record.SubmittedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func (s *RunStore) ListStatusEvents(ctx context.Context, runID string) ([]repo.StatusEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := s.db.QueryContext(ctx, listStatusEventsQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()

	events := make([]repo.StatusEvent, 0)
	for rows.Next() {
		var event repo.StatusEvent
		var from, to string
		if err := rows.Scan(&event.ID, &event.RunID, &from, &to, &event.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		event.From = domain.RunStatus(from)
		event.To = domain.RunStatus(to)
		event.ObservedAt = event.ObservedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	return events, nil
}
