package main

import (
	"fmt"
	"strings"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

// paramFlags collects repeated -param name=value flags.
type paramFlags []string

func (p *paramFlags) String() string {
	return strings.Join(*p, ",")
}

func (p *paramFlags) Set(value string) error {
	if !strings.Contains(value, "=") {
		return fmt.Errorf("expected name=value, got %q", value)
	}
	*p = append(*p, value)
	return nil
}

// overrides parses values with the type of the parameter they name.
// Undeclared names are passed through as strings so the submitter rejects
// them with its own error.
func (p paramFlags) overrides(doc domain.WorkflowDocument) (map[string]any, error) {
	if len(p) == 0 {
		return nil, nil
	}
	types := make(map[string]domain.ParamType, len(doc.Parameters))
	for _, param := range doc.Parameters {
		types[param.Name] = param.Type
	}
	out := make(map[string]any, len(p))
	for _, raw := range p {
		name, value, _ := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("parameter name is empty in %q", raw)
		}
		typ, ok := types[name]
		if !ok {
			out[name] = value
			continue
		}
		parsed, err := typ.ParseValue(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		out[name] = parsed
	}
	return out, nil
}
