package submit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/execution/service"
)

// DefaultRunNameTemplate yields names such as boston-housing-ml-pipeline-1718000000.
const DefaultRunNameTemplate = `{{ .Pipeline }}-{{ .Time | unixEpoch }}`

// Recorder persists successful submissions. Recording failures are logged
// and do not fail the submission.
type Recorder interface {
	RecordSubmission(ctx context.Context, handle domain.RunHandle, parameters map[string]any) error
}

type Options struct {
	// RunNameTemplate is a text/template with sprig functions. Fields:
	// .Pipeline (slug of the pipeline name), .PipelineName, .Digest (short
	// content digest) and .Time (submission time).
	RunNameTemplate string
	ExperimentID    string
	Now             func() time.Time
	Logger          *slog.Logger
	Recorder        Recorder
}

// Submitter registers workflow documents and starts runs. It never retries;
// retry policy belongs to the caller.
type Submitter struct {
	svc          service.Service
	nameTemplate *template.Template
	experimentID string
	now          func() time.Time
	logger       *slog.Logger
	recorder     Recorder
}

func New(svc service.Service, opts Options) (*Submitter, error) {
	if svc == nil {
		return nil, errors.New("execution service is required")
	}
	text := strings.TrimSpace(opts.RunNameTemplate)
	if text == "" {
		text = DefaultRunNameTemplate
	}
	tmpl, err := template.New("run-name").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse run name template: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		svc:          svc,
		nameTemplate: tmpl,
		experimentID: strings.TrimSpace(opts.ExperimentID),
		now:          now,
		logger:       logger.With("component", "submitter"),
		recorder:     opts.Recorder,
	}, nil
}

// Submit registers doc (reusing an existing registration of the same
// content) and creates one run with overrides merged over the document
// defaults.
func (s *Submitter) Submit(ctx context.Context, doc domain.WorkflowDocument, overrides map[string]any) (domain.RunHandle, error) {
	params, err := MergeParameters(doc, overrides)
	if err != nil {
		return domain.RunHandle{}, &Error{Kind: ErrRunCreation, Err: err}
	}

	reg, err := s.svc.RegisterOrReuse(ctx, doc)
	if err != nil {
		return domain.RunHandle{}, &Error{Kind: ErrRegistration, Err: err}
	}
	s.logger.Info("workflow registered",
		"pipeline", doc.Metadata.Name,
		"document_id", reg.DocumentID,
		"pipeline_id", reg.PipelineID,
		"version_id", reg.VersionID,
		"existing", reg.Existing,
	)

	submittedAt := s.now().UTC()
	name, err := s.runName(doc, reg, submittedAt)
	if err != nil {
		return domain.RunHandle{}, &Error{Kind: ErrRunCreation, Err: err}
	}

	runID, err := s.svc.CreateRun(ctx, reg, service.RunRequest{
		Name:         name,
		ExperimentID: s.experimentID,
		Parameters:   params,
	})
	if err != nil {
		return domain.RunHandle{}, &Error{Kind: ErrRunCreation, Err: err}
	}
	s.logger.Info("run created", "run_id", runID, "run_name", name)

	handle := domain.RunHandle{
		RunID:        runID,
		DocumentID:   reg.DocumentID,
		PipelineName: doc.Metadata.Name,
		RunName:      name,
		SubmittedAt:  submittedAt,
	}
	if s.recorder != nil {
		if err := s.recorder.RecordSubmission(ctx, handle, params); err != nil {
			s.logger.Warn("record submission failed", "run_id", runID, "error", err)
		}
	}
	return handle, nil
}

// MergeParameters applies overrides over the document's defaults. Override
// values must match the declared parameter type; every parameter must end up
// with a value.
func MergeParameters(doc domain.WorkflowDocument, overrides map[string]any) (map[string]any, error) {
	declared := make(map[string]domain.PipelineParameter, len(doc.Parameters))
	for _, param := range doc.Parameters {
		declared[param.Name] = param
	}

	merged := make(map[string]any, len(doc.Parameters))
	for _, param := range doc.Parameters {
		if param.Default != nil {
			merged[param.Name] = param.Default
		}
	}
	for key, value := range overrides {
		param, ok := declared[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParameter, key)
		}
		coerced, err := param.Type.CoerceValue(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", key, err)
		}
		merged[key] = coerced
	}
	for _, param := range doc.Parameters {
		if _, ok := merged[param.Name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingParameter, param.Name)
		}
	}
	return merged, nil
}

type runNameData struct {
	Pipeline     string
	PipelineName string
	Digest       string
	Time         time.Time
}

func (s *Submitter) runName(doc domain.WorkflowDocument, reg service.Registration, at time.Time) (string, error) {
	digest := reg.DocumentID
	if len(digest) > 12 {
		digest = digest[:12]
	}
	var buf bytes.Buffer
	err := s.nameTemplate.Execute(&buf, runNameData{
		Pipeline:     slug(doc.Metadata.Name),
		PipelineName: doc.Metadata.Name,
		Digest:       digest,
		Time:         at,
	})
	if err != nil {
		return "", fmt.Errorf("render run name: %w", err)
	}
	name := strings.TrimSpace(buf.String())
	if name == "" {
		return "", errors.New("run name template rendered an empty name")
	}
	return name, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
