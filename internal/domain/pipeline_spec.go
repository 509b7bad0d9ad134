package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PipelineSpec is the author-facing pipeline definition: ordered steps with
// their input bindings plus typed top-level parameters.
type PipelineSpec struct {
	Metadata   PipelineMetadata
	Parameters []PipelineParameter
	Steps      []StepDescriptor
}

type PipelineMetadata struct {
	Name        string
	Description string
	Labels      map[string]string
}

// PipelineParameter is a run-time overridable value with a typed default.
type PipelineParameter struct {
	Name    string
	Type    ParamType
	Default any
}

// StepDescriptor declares one unit of work.
type StepDescriptor struct {
	Name        string
	DisplayName string
	Inputs      []StepInput
	Outputs     []StepOutput
	Runtime     RuntimeSpec
}

type StepInput struct {
	Name    string
	Type    ParamType
	Binding Binding
}

type StepOutput struct {
	Name string
	Type ParamType
}

// RuntimeSpec describes the execution environment of a step body. The core
// copies it into the compiled document without interpreting it.
type RuntimeSpec struct {
	Image    string
	Packages []string
	Command  []string
	Args     []string
	Env      []EnvVar
}

type EnvVar struct {
	Name  string
	Value string
}

// Output returns the declared output with the given name.
func (s StepDescriptor) Output(name string) (StepOutput, bool) {
	for _, out := range s.Outputs {
		if out.Name == name {
			return out, true
		}
	}
	return StepOutput{}, false
}

// Parameter returns the declared pipeline parameter with the given name.
func (p PipelineSpec) Parameter(name string) (PipelineParameter, bool) {
	for _, param := range p.Parameters {
		if param.Name == name {
			return param, true
		}
	}
	return PipelineParameter{}, false
}

// ParamType is the declared type of a step input, step output or pipeline parameter.
type ParamType string

const (
	TypeString   ParamType = "STRING"
	TypeInteger  ParamType = "INTEGER"
	TypeFloat    ParamType = "FLOAT"
	TypeBoolean  ParamType = "BOOLEAN"
	TypeArtifact ParamType = "ARTIFACT"
)

// ParseParamType maps free-form type names to canonical parameter types.
func ParseParamType(value string) (ParamType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "string", "str":
		return TypeString, nil
	case "integer", "int":
		return TypeInteger, nil
	case "float", "double", "number":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "artifact", "path", "uri":
		return TypeArtifact, nil
	default:
		return "", fmt.Errorf("unsupported type %q", value)
	}
}

func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeArtifact:
		return true
	default:
		return false
	}
}

// CoerceValue checks that value conforms to t and returns it in canonical
// form: int64 for INTEGER, float64 for FLOAT, string for STRING and ARTIFACT.
func (t ParamType) CoerceValue(value any) (any, error) {
	switch t {
	case TypeString, TypeArtifact:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case TypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case TypeInteger:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint64:
			if v <= math.MaxInt64 {
				return int64(v), nil
			}
		case float64:
			if v == math.Trunc(v) && !math.IsInf(v, 0) {
				return int64(v), nil
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	default:
		return nil, fmt.Errorf("unsupported type %q", t)
	}
	return nil, fmt.Errorf("value %v (%T) is not a %s", value, value, t)
}

// ParseValue converts a textual value (for example a command line override)
// into the canonical form for t.
func (t ParamType) ParseValue(raw string) (any, error) {
	switch t {
	case TypeString, TypeArtifact:
		return raw, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		return b, nil
	case TypeInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		return i, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported type %q", t)
	}
}
