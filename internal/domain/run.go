package domain

import (
	"strings"
	"time"
)

// RunHandle identifies one submitted execution of a WorkflowDocument.
type RunHandle struct {
	RunID        string
	DocumentID   string
	PipelineName string
	RunName      string
	SubmittedAt  time.Time
}

// RunStatus is the classified state of a remote run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusSkipped   RunStatus = "SKIPPED"
	RunStatusCanceled  RunStatus = "CANCELED"
	RunStatusUnknown   RunStatus = "UNKNOWN"
)

// IsTerminal reports whether no further transition can follow s. UNKNOWN is
// never terminal.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusSkipped, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// ClassifyRunStatus maps a raw engine status to a RunStatus.
//
// The canonical values are the v2beta1 runtime states (PENDING, RUNNING,
// SUCCEEDED, SKIPPED, FAILED, CANCELING, CANCELED). Older servers report
// Argo phases; those are accepted through the fallback table:
//
//	Pending                   -> PENDING
//	Running, CANCELING        -> RUNNING
//	Succeeded, Completed      -> SUCCEEDED
//	Failed, Error             -> FAILED
//	Skipped, Omitted          -> SKIPPED
//	Terminated, Cancelled     -> CANCELED
//	RUNTIME_STATE_UNSPECIFIED -> PENDING
//
// Everything else, including PAUSED and the empty string, is UNKNOWN.
func ClassifyRunStatus(raw string) RunStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "RUNTIME_STATE_UNSPECIFIED":
		return RunStatusPending
	case "RUNNING", "CANCELING":
		return RunStatusRunning
	case "SUCCEEDED", "COMPLETED":
		return RunStatusSucceeded
	case "FAILED", "ERROR":
		return RunStatusFailed
	case "SKIPPED", "OMITTED":
		return RunStatusSkipped
	case "CANCELED", "CANCELLED", "TERMINATED":
		return RunStatusCanceled
	default:
		return RunStatusUnknown
	}
}
