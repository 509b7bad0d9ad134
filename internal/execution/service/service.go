// Package service defines the execution-service capability the submitter and
// monitor depend on. Implementations live in subpackages: kfp talks to a
// Kubeflow Pipelines style REST API, dryrun simulates one in process.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

// Service is the remote execution engine.
type Service interface {
	// RegisterOrReuse uploads doc, or locates an existing registration of the
	// same content. Registration.Existing reports which happened.
	RegisterOrReuse(ctx context.Context, doc domain.WorkflowDocument) (Registration, error)
	CreateRun(ctx context.Context, reg Registration, req RunRequest) (string, error)
	// GetRunStatus returns the engine's raw status string; callers classify
	// it with domain.ClassifyRunStatus.
	GetRunStatus(ctx context.Context, runID string) (string, error)
}

// Registration identifies a workflow document known to the service.
type Registration struct {
	DocumentID string
	PipelineID string
	VersionID  string
	Name       string
	Existing   bool
}

type RunRequest struct {
	Name         string
	ExperimentID string
	Parameters   map[string]any
}

// ErrAlreadyExists is returned by transports when the service reports the
// document is already registered.
var ErrAlreadyExists = errors.New("already exists")

// APIError is a non-2xx response from the service.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status=%d: %s", e.Operation, e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
