package kfp

import (
	"encoding/json"
	"fmt"
	"strings"
)

type pipelinePayload struct {
	PipelineID  string `json:"pipeline_id"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// id prefers the v2beta1 field and falls back to the v1 "id".
func (p pipelinePayload) id() string {
	return firstNonEmpty(p.PipelineID, p.ID)
}

type versionsPayload struct {
	PipelineVersions []versionPayload `json:"pipeline_versions"`
}

type versionPayload struct {
	PipelineVersionID string `json:"pipeline_version_id"`
	ID                string `json:"id"`
}

func (v versionPayload) id() string {
	return firstNonEmpty(v.PipelineVersionID, v.ID)
}

type createRunPayload struct {
	DisplayName              string           `json:"display_name"`
	ExperimentID             string           `json:"experiment_id,omitempty"`
	PipelineVersionReference versionReference `json:"pipeline_version_reference"`
	RuntimeConfig            runtimeConfig    `json:"runtime_config"`
}

type versionReference struct {
	PipelineID        string `json:"pipeline_id"`
	PipelineVersionID string `json:"pipeline_version_id"`
}

type runtimeConfig struct {
	Parameters map[string]any `json:"parameters,omitempty"`
}

type runPayload struct {
	RunID string `json:"run_id"`
	ID    string `json:"id"`
}

func (r runPayload) id() string {
	return firstNonEmpty(r.RunID, r.ID)
}

// runStatusPayload covers the shapes servers have used for run state. The
// canonical field is "state" (v2beta1); "status" and "phase" are read only
// when it is absent, in that order. v1 servers nest the run under "run".
type runStatusPayload struct {
	State  string `json:"state"`
	Status string `json:"status"`
	Phase  string `json:"phase"`
	Run    *struct {
		State  string `json:"state"`
		Status string `json:"status"`
	} `json:"run"`
}

// decodeRunStatus extracts the raw status string from a get-run response.
// An empty result is a valid response whose state is not reported yet.
func decodeRunStatus(raw []byte) (string, error) {
	var body runStatusPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode run status: %w", err)
	}
	candidates := []string{body.State, body.Status, body.Phase}
	if body.Run != nil {
		candidates = append(candidates, body.Run.State, body.Run.Status)
	}
	return firstNonEmpty(candidates...), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
