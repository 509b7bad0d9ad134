package kfp

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed contract.yaml
var contractYAML []byte

const (
	opUploadPipeline       = "uploadPipeline"
	opGetPipelineByName    = "getPipelineByName"
	opListPipelineVersions = "listPipelineVersions"
	opCreateRun            = "createRun"
	opGetRun               = "getRun"
)

var requiredOperations = []string{
	opUploadPipeline,
	opGetPipelineByName,
	opListPipelineVersions,
	opCreateRun,
	opGetRun,
}

type route struct {
	Method string
	Path   string
}

// contract resolves operation ids to HTTP routes using the embedded OpenAPI
// document, so request paths are defined in one place.
type contract struct {
	routes map[string]route
}

func loadContract(ctx context.Context) (*contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(contractYAML)
	if err != nil {
		return nil, fmt.Errorf("load api contract: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate api contract: %w", err)
	}

	routes := make(map[string]route)
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op == nil || op.OperationID == "" {
				continue
			}
			routes[op.OperationID] = route{Method: method, Path: path}
		}
	}
	for _, id := range requiredOperations {
		if _, ok := routes[id]; !ok {
			return nil, fmt.Errorf("api contract missing operation %q", id)
		}
	}
	return &contract{routes: routes}, nil
}

// resolve expands path parameters of the operation's route.
func (c *contract) resolve(operationID string, pathParams map[string]string) (route, error) {
	r, ok := c.routes[operationID]
	if !ok {
		return route{}, fmt.Errorf("unknown operation %q", operationID)
	}
	path := r.Path
	for name, value := range pathParams {
		placeholder := "{" + name + "}"
		if !strings.Contains(path, placeholder) {
			return route{}, fmt.Errorf("operation %q has no path parameter %q", operationID, name)
		}
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
	}
	if strings.Contains(path, "{") {
		return route{}, fmt.Errorf("operation %q: unresolved path parameters in %s", operationID, path)
	}
	return route{Method: r.Method, Path: path}, nil
}
