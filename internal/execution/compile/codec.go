package compile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

// Marshal serializes a workflow document as YAML with stable field order.
func Marshal(doc domain.WorkflowDocument) ([]byte, error) {
	payload := workflowPayload{
		APIVersion: doc.APIVersion,
		Kind:       doc.Kind,
		Metadata: metadataPayload{
			Name:        doc.Metadata.Name,
			Description: doc.Metadata.Description,
			Labels:      doc.Metadata.Labels,
		},
	}
	for _, param := range doc.Parameters {
		payload.Parameters = append(payload.Parameters, parameterPayload{
			Name:    param.Name,
			Type:    string(param.Type),
			Default: param.Default,
		})
	}
	for _, step := range doc.Steps {
		sp := stepPayload{
			Name:        step.Name,
			DisplayName: step.DisplayName,
			Runtime: runtimePayload{
				Image:    step.Runtime.Image,
				Packages: step.Runtime.Packages,
				Command:  step.Runtime.Command,
				Args:     step.Runtime.Args,
			},
			DependsOn: step.Dependencies,
		}
		for _, env := range step.Runtime.Env {
			sp.Runtime.Env = append(sp.Runtime.Env, envPayload{Name: env.Name, Value: env.Value})
		}
		for _, input := range step.Inputs {
			sp.Inputs = append(sp.Inputs, inputPayloadFromDomain(input))
		}
		for _, output := range step.Outputs {
			sp.Outputs = append(sp.Outputs, outputPayload{Name: output.Name, Type: string(output.Type)})
		}
		payload.Steps = append(payload.Steps, sp)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a persisted workflow document. Literal values and
// parameter defaults are returned in canonical form.
func Unmarshal(raw []byte) (domain.WorkflowDocument, error) {
	var payload workflowPayload
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WorkflowDocument{}, newError(ErrInvalidDocument, "document is empty")
		}
		return domain.WorkflowDocument{}, newError(ErrInvalidDocument, err.Error())
	}
	if payload.APIVersion != domain.WorkflowAPIVersion || payload.Kind != domain.WorkflowKind {
		return domain.WorkflowDocument{}, newError(ErrUnsupportedShape, fmt.Sprintf("%s/%s", payload.APIVersion, payload.Kind))
	}

	doc := domain.WorkflowDocument{
		APIVersion: payload.APIVersion,
		Kind:       payload.Kind,
		Metadata: domain.PipelineMetadata{
			Name:        payload.Metadata.Name,
			Description: payload.Metadata.Description,
		},
	}
	if len(payload.Metadata.Labels) > 0 {
		doc.Metadata.Labels = maps.Clone(payload.Metadata.Labels)
	}

	for _, param := range payload.Parameters {
		typ := domain.ParamType(param.Type)
		def := param.Default
		if def != nil {
			value, err := typ.CoerceValue(def)
			if err != nil {
				return domain.WorkflowDocument{}, newError(ErrInvalidDocument, fmt.Sprintf("parameter %q: %v", param.Name, err))
			}
			def = value
		}
		doc.Parameters = append(doc.Parameters, domain.PipelineParameter{Name: param.Name, Type: typ, Default: def})
	}

	for _, sp := range payload.Steps {
		step := domain.WorkflowStep{
			Name:        sp.Name,
			DisplayName: sp.DisplayName,
			Runtime: domain.RuntimeSpec{
				Image:    sp.Runtime.Image,
				Packages: sp.Runtime.Packages,
				Command:  sp.Runtime.Command,
				Args:     sp.Runtime.Args,
			},
			Dependencies: sp.DependsOn,
		}
		for _, env := range sp.Runtime.Env {
			step.Runtime.Env = append(step.Runtime.Env, domain.EnvVar{Name: env.Name, Value: env.Value})
		}
		for _, in := range sp.Inputs {
			input, err := in.toDomain()
			if err != nil {
				return domain.WorkflowDocument{}, newError(ErrInvalidDocument, fmt.Sprintf("step %q input %q: %v", sp.Name, in.Name, err))
			}
			step.Inputs = append(step.Inputs, input)
		}
		for _, out := range sp.Outputs {
			step.Outputs = append(step.Outputs, domain.StepOutput{Name: out.Name, Type: domain.ParamType(out.Type)})
		}
		doc.Steps = append(doc.Steps, step)
	}
	return doc, nil
}

// Digest returns the content identity of a document: the hex sha256 of its
// marshalled form.
func Digest(doc domain.WorkflowDocument) (string, error) {
	raw, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	return DigestBytes(raw), nil
}

// DigestBytes hashes an already marshalled document.
func DigestBytes(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

type workflowPayload struct {
	APIVersion string             `yaml:"apiVersion"`
	Kind       string             `yaml:"kind"`
	Metadata   metadataPayload    `yaml:"metadata"`
	Parameters []parameterPayload `yaml:"parameters,omitempty"`
	Steps      []stepPayload      `yaml:"steps"`
}

type metadataPayload struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

type parameterPayload struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default any    `yaml:"default,omitempty"`
}

type stepPayload struct {
	Name        string          `yaml:"name"`
	DisplayName string          `yaml:"displayName,omitempty"`
	DependsOn   []string        `yaml:"dependsOn,omitempty"`
	Runtime     runtimePayload  `yaml:"runtime"`
	Inputs      []inputPayload  `yaml:"inputs,omitempty"`
	Outputs     []outputPayload `yaml:"outputs,omitempty"`
}

type runtimePayload struct {
	Image    string       `yaml:"image"`
	Packages []string     `yaml:"packages,omitempty"`
	Command  []string     `yaml:"command,omitempty"`
	Args     []string     `yaml:"args,omitempty"`
	Env      []envPayload `yaml:"env,omitempty"`
}

type envPayload struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type inputPayload struct {
	Name      string       `yaml:"name"`
	Type      string       `yaml:"type"`
	Value     any          `yaml:"value,omitempty"`
	From      *fromPayload `yaml:"from,omitempty"`
	Parameter string       `yaml:"parameter,omitempty"`
}

type fromPayload struct {
	Step   string `yaml:"step"`
	Output string `yaml:"output"`
}

type outputPayload struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

func inputPayloadFromDomain(input domain.StepInput) inputPayload {
	out := inputPayload{Name: input.Name, Type: string(input.Type)}
	switch input.Binding.Kind {
	case domain.BindingReference:
		out.From = &fromPayload{Step: input.Binding.Step, Output: input.Binding.Output}
	case domain.BindingParameter:
		out.Parameter = input.Binding.Parameter
	default:
		out.Value = input.Binding.Value
	}
	return out
}

func (p inputPayload) toDomain() (domain.StepInput, error) {
	typ := domain.ParamType(p.Type)
	input := domain.StepInput{Name: p.Name, Type: typ}
	switch {
	case p.From != nil:
		input.Binding = domain.Reference(p.From.Step, p.From.Output)
	case p.Parameter != "":
		input.Binding = domain.Parameter(p.Parameter)
	default:
		value, err := typ.CoerceValue(p.Value)
		if err != nil {
			return domain.StepInput{}, err
		}
		input.Binding = domain.Literal(value)
	}
	return input, nil
}
