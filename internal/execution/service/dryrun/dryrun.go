// Package dryrun simulates an execution service in process. Registrations are
// keyed by document digest and every run walks a fixed status sequence, one
// entry per poll, so a full submit and monitor cycle can be exercised without
// a cluster.
package dryrun

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/execution/compile"
	"github.com/animus-labs/pipelinectl/internal/execution/service"
)

// DefaultSequence is the status sequence reported for every run.
var DefaultSequence = []string{"PENDING", "RUNNING", "RUNNING", "SUCCEEDED"}

type Service struct {
	mu        sync.Mutex
	sequence  []string
	pipelines map[string]service.Registration
	runs      map[string]*run
	newID     func() string
}

type run struct {
	Registration service.Registration
	Request      service.RunRequest
	polls        int
}

func New(sequence ...string) *Service {
	if len(sequence) == 0 {
		sequence = DefaultSequence
	}
	return &Service{
		sequence:  append([]string(nil), sequence...),
		pipelines: map[string]service.Registration{},
		runs:      map[string]*run{},
		newID:     uuid.NewString,
	}
}

func (s *Service) RegisterOrReuse(_ context.Context, doc domain.WorkflowDocument) (service.Registration, error) {
	if strings.TrimSpace(doc.Metadata.Name) == "" {
		return service.Registration{}, &service.APIError{Operation: "uploadPipeline", StatusCode: 400, Message: "pipeline name is required"}
	}
	digest, err := compile.Digest(doc)
	if err != nil {
		return service.Registration{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.pipelines[digest]; ok {
		reg.Existing = true
		return reg, nil
	}
	reg := service.Registration{
		DocumentID: digest,
		PipelineID: s.newID(),
		VersionID:  s.newID(),
		Name:       doc.Metadata.Name,
	}
	s.pipelines[digest] = reg
	return reg, nil
}

func (s *Service) CreateRun(_ context.Context, reg service.Registration, req service.RunRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[reg.DocumentID]; !ok {
		return "", &service.APIError{Operation: "createRun", StatusCode: 404, Message: fmt.Sprintf("pipeline version %s not found", reg.VersionID)}
	}
	id := s.newID()
	s.runs[id] = &run{
		Registration: reg,
		Request: service.RunRequest{
			Name:         req.Name,
			ExperimentID: req.ExperimentID,
			Parameters:   maps.Clone(req.Parameters),
		},
	}
	return id, nil
}

func (s *Service) GetRunStatus(_ context.Context, runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return "", &service.APIError{Operation: "getRun", StatusCode: 404, Message: fmt.Sprintf("run %s not found", runID)}
	}
	idx := r.polls
	if idx >= len(s.sequence) {
		idx = len(s.sequence) - 1
	}
	r.polls++
	return s.sequence[idx], nil
}

// Run returns the request a run was created with.
func (s *Service) Run(runID string) (service.RunRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return service.RunRequest{}, false
	}
	return r.Request, true
}
