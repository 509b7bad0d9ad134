// Package kfp implements service.Service against a Kubeflow Pipelines style
// v2beta1 REST API.
package kfp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/execution/compile"
	"github.com/animus-labs/pipelinectl/internal/execution/service"
	"github.com/animus-labs/pipelinectl/internal/platform/requestid"
)

const maxResponseBytes = 8 << 20

type Client struct {
	baseURL  string
	http     *http.Client
	contract *contract
	logger   *slog.Logger
}

// New returns a client for the service at baseURL. httpClient carries
// authentication and timeouts; nil uses a client with a 30s timeout.
func New(ctx context.Context, baseURL string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("execution service base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("execution service base url: %w", err)
	}
	c, err := loadContract(ctx)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  baseURL,
		http:     httpClient,
		contract: c,
		logger:   logger.With("component", "kfp_client"),
	}, nil
}

// RegistrationName is the name a document is registered under. It embeds a
// prefix of the content digest so that identical documents share a name.
func RegistrationName(doc domain.WorkflowDocument, digest string) string {
	short := digest
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s-%s", strings.TrimSpace(doc.Metadata.Name), short)
}

func (c *Client) RegisterOrReuse(ctx context.Context, doc domain.WorkflowDocument) (service.Registration, error) {
	raw, err := compile.Marshal(doc)
	if err != nil {
		return service.Registration{}, err
	}
	digest, err := compile.Digest(doc)
	if err != nil {
		return service.Registration{}, err
	}
	name := RegistrationName(doc, digest)

	reg := service.Registration{DocumentID: digest, Name: name}
	pipeline, err := c.uploadPipeline(ctx, name, doc.Metadata.Description, raw)
	switch {
	case err == nil:
		reg.PipelineID = pipeline.id()
	case errors.Is(err, service.ErrAlreadyExists):
		c.logger.Info("pipeline already registered", "name", name)
		existing, getErr := c.getPipelineByName(ctx, name)
		if getErr != nil {
			return service.Registration{}, getErr
		}
		reg.PipelineID = existing.id()
		reg.Existing = true
	default:
		return service.Registration{}, err
	}
	if reg.PipelineID == "" {
		return service.Registration{}, errors.New("register pipeline: response has no pipeline id")
	}

	versionID, err := c.latestVersion(ctx, reg.PipelineID)
	if err != nil {
		return service.Registration{}, err
	}
	reg.VersionID = versionID
	return reg, nil
}

func (c *Client) CreateRun(ctx context.Context, reg service.Registration, req service.RunRequest) (string, error) {
	body := createRunPayload{
		DisplayName:  req.Name,
		ExperimentID: req.ExperimentID,
		PipelineVersionReference: versionReference{
			PipelineID:        reg.PipelineID,
			PipelineVersionID: reg.VersionID,
		},
		RuntimeConfig: runtimeConfig{Parameters: req.Parameters},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode run request: %w", err)
	}
	var run runPayload
	if err := c.doJSON(ctx, opCreateRun, nil, nil, bytes.NewReader(payload), "application/json", &run); err != nil {
		return "", err
	}
	id := run.id()
	if id == "" {
		return "", errors.New("create run: response has no run id")
	}
	return id, nil
}

func (c *Client) GetRunStatus(ctx context.Context, runID string) (string, error) {
	var body []byte
	err := c.do(ctx, opGetRun, map[string]string{"run_id": runID}, nil, nil, "", func(raw []byte) error {
		body = raw
		return nil
	})
	if err != nil {
		return "", err
	}
	return decodeRunStatus(body)
}

func (c *Client) uploadPipeline(ctx context.Context, name, description string, document []byte) (pipelinePayload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("uploadfile", "pipeline.yaml")
	if err != nil {
		return pipelinePayload{}, err
	}
	if _, err := part.Write(document); err != nil {
		return pipelinePayload{}, err
	}
	if err := mw.Close(); err != nil {
		return pipelinePayload{}, err
	}

	query := url.Values{}
	query.Set("name", name)
	if description != "" {
		query.Set("description", description)
	}
	var out pipelinePayload
	err = c.doJSON(ctx, opUploadPipeline, nil, query, &buf, mw.FormDataContentType(), &out)
	if err != nil {
		var apiErr *service.APIError
		if errors.As(err, &apiErr) && isAlreadyExists(apiErr) {
			return pipelinePayload{}, fmt.Errorf("%w: %s", service.ErrAlreadyExists, apiErr.Message)
		}
		return pipelinePayload{}, err
	}
	return out, nil
}

func (c *Client) getPipelineByName(ctx context.Context, name string) (pipelinePayload, error) {
	var out pipelinePayload
	err := c.doJSON(ctx, opGetPipelineByName, map[string]string{"name": name}, nil, nil, "", &out)
	return out, err
}

func (c *Client) latestVersion(ctx context.Context, pipelineID string) (string, error) {
	query := url.Values{}
	query.Set("page_size", "1")
	query.Set("sort_by", "created_at desc")
	var out versionsPayload
	if err := c.doJSON(ctx, opListPipelineVersions, map[string]string{"pipeline_id": pipelineID}, query, nil, "", &out); err != nil {
		return "", err
	}
	for _, v := range out.PipelineVersions {
		if id := v.id(); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("pipeline %s has no versions", pipelineID)
}

func (c *Client) doJSON(ctx context.Context, op string, pathParams map[string]string, query url.Values, body io.Reader, contentType string, out any) error {
	return c.do(ctx, op, pathParams, query, body, contentType, func(raw []byte) error {
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, op string, pathParams map[string]string, query url.Values, body io.Reader, contentType string, handle func([]byte) error) error {
	r, err := c.contract.resolve(op, pathParams)
	if err != nil {
		return err
	}
	target := c.baseURL + r.Path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return err
	}
	requestID := requestid.Ensure(ctx)
	req.Header.Set(requestid.Header, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	c.logger.Debug("service call", "operation", op, "status", resp.StatusCode, "request_id", requestID)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &service.APIError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}
	return handle(raw)
}

func isAlreadyExists(err *service.APIError) bool {
	if err.StatusCode == http.StatusConflict {
		return true
	}
	return strings.Contains(strings.ToLower(err.Message), "already exist")
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
