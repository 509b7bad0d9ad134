package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

// Build validates spec and resolves every input binding. Steps may only
// reference steps declared before them, which keeps the result acyclic.
func Build(spec domain.PipelineSpec) (domain.PipelineGraph, error) {
	issues := &Error{}

	params := buildParameters(spec.Parameters, issues)
	paramIndex := make(map[string]domain.PipelineParameter, len(params))
	for _, param := range params {
		paramIndex[param.Name] = param
	}

	if len(spec.Steps) == 0 {
		issues.Add(ErrInvalidStep, "", "pipeline must contain at least one step")
	}

	declared := make(map[string]domain.StepDescriptor, len(spec.Steps))
	steps := make([]domain.GraphStep, 0, len(spec.Steps))
	var edges []domain.GraphEdge

	for i, step := range spec.Steps {
		name := strings.TrimSpace(step.Name)
		if name == "" {
			issues.Add(ErrInvalidStep, fmt.Sprintf("step[%d]", i), "name is required")
			continue
		}
		where := fmt.Sprintf("step[%s]", name)
		if strings.TrimSpace(step.Runtime.Image) == "" {
			issues.Add(ErrInvalidStep, where, "runtime image is required")
		}

		resolved := cloneDescriptor(step)
		resolved.Name = name

		seenInputs := make(map[string]struct{}, len(step.Inputs))
		for j, input := range step.Inputs {
			inputWhere := fmt.Sprintf("%s.inputs[%s]", where, input.Name)
			if strings.TrimSpace(input.Name) == "" {
				issues.Add(ErrInvalidStep, fmt.Sprintf("%s.inputs[%d]", where, j), "name is required")
				continue
			}
			if _, dup := seenInputs[input.Name]; dup {
				issues.Add(ErrDuplicateInputName, inputWhere, "")
				continue
			}
			seenInputs[input.Name] = struct{}{}
			if !input.Type.Valid() {
				issues.Add(ErrInvalidStep, inputWhere, fmt.Sprintf("unsupported type %q", input.Type))
				continue
			}

			switch input.Binding.Kind {
			case domain.BindingLiteral:
				value, err := input.Type.CoerceValue(input.Binding.Value)
				if err != nil {
					issues.Add(ErrTypeMismatch, inputWhere, err.Error())
					continue
				}
				resolved.Inputs[j].Binding = domain.Literal(value)
			case domain.BindingReference:
				ref := input.Binding
				if ref.Step == name {
					issues.Add(ErrUnknownStepReference, inputWhere, fmt.Sprintf("step %q references itself", name))
					continue
				}
				producer, ok := declared[ref.Step]
				if !ok {
					issues.Add(ErrUnknownStepReference, inputWhere, fmt.Sprintf("step %q is not declared before %q", ref.Step, name))
					continue
				}
				output, ok := producer.Output(ref.Output)
				if !ok {
					issues.Add(ErrUnknownOutputReference, inputWhere, fmt.Sprintf("step %q has no output %q", ref.Step, ref.Output))
					continue
				}
				if output.Type != input.Type {
					issues.Add(ErrTypeMismatch, inputWhere, fmt.Sprintf("%s is %s, input is %s", ref, output.Type, input.Type))
					continue
				}
				edges = append(edges, domain.GraphEdge{
					FromStep:   ref.Step,
					FromOutput: ref.Output,
					ToStep:     name,
					ToInput:    input.Name,
				})
			case domain.BindingParameter:
				param, ok := paramIndex[input.Binding.Parameter]
				if !ok {
					issues.Add(ErrUnknownParameterReference, inputWhere, fmt.Sprintf("parameter %q is not declared", input.Binding.Parameter))
					continue
				}
				if param.Type != input.Type {
					issues.Add(ErrTypeMismatch, inputWhere, fmt.Sprintf("parameter %q is %s, input is %s", param.Name, param.Type, input.Type))
					continue
				}
			default:
				issues.Add(ErrInvalidStep, inputWhere, "input has no binding")
			}
		}

		seenOutputs := make(map[string]struct{}, len(step.Outputs))
		for j, output := range step.Outputs {
			if strings.TrimSpace(output.Name) == "" {
				issues.Add(ErrInvalidStep, fmt.Sprintf("%s.outputs[%d]", where, j), "name is required")
				continue
			}
			if _, dup := seenOutputs[output.Name]; dup {
				issues.Add(ErrInvalidStep, fmt.Sprintf("%s.outputs[%s]", where, output.Name), "duplicate output name")
				continue
			}
			seenOutputs[output.Name] = struct{}{}
			if !output.Type.Valid() {
				issues.Add(ErrInvalidStep, fmt.Sprintf("%s.outputs[%s]", where, output.Name), fmt.Sprintf("unsupported type %q", output.Type))
			}
		}

		if _, dup := declared[name]; dup {
			issues.Add(ErrDuplicateStepName, where, "")
			continue
		}
		declared[name] = resolved
		steps = append(steps, domain.GraphStep{Index: len(steps), Descriptor: resolved})
	}

	if err := issues.OrNil(); err != nil {
		return domain.PipelineGraph{}, err
	}
	return domain.PipelineGraph{
		Parameters: params,
		Steps:      steps,
		Edges:      edges,
	}, nil
}

func buildParameters(declared []domain.PipelineParameter, issues *Error) []domain.PipelineParameter {
	out := make([]domain.PipelineParameter, 0, len(declared))
	seen := make(map[string]struct{}, len(declared))
	for i, param := range declared {
		name := strings.TrimSpace(param.Name)
		if name == "" {
			issues.Add(ErrInvalidParameter, fmt.Sprintf("parameters[%d]", i), "name is required")
			continue
		}
		where := fmt.Sprintf("parameters[%s]", name)
		if _, dup := seen[name]; dup {
			issues.Add(ErrInvalidParameter, where, "duplicate parameter name")
			continue
		}
		seen[name] = struct{}{}
		if !param.Type.Valid() {
			issues.Add(ErrInvalidParameter, where, fmt.Sprintf("unsupported type %q", param.Type))
			continue
		}
		// An ill-typed default is reported once; the parameter stays
		// declared so bindings to it do not report again.
		var def any
		if param.Default != nil {
			value, err := param.Type.CoerceValue(param.Default)
			if err != nil {
				issues.Add(ErrTypeMismatch, where, "default: "+err.Error())
			} else {
				def = value
			}
		}
		out = append(out, domain.PipelineParameter{Name: name, Type: param.Type, Default: def})
	}
	return out
}

func cloneDescriptor(step domain.StepDescriptor) domain.StepDescriptor {
	out := step
	out.Inputs = slices.Clone(step.Inputs)
	out.Outputs = slices.Clone(step.Outputs)
	out.Runtime.Packages = slices.Clone(step.Runtime.Packages)
	out.Runtime.Command = slices.Clone(step.Runtime.Command)
	out.Runtime.Args = slices.Clone(step.Runtime.Args)
	out.Runtime.Env = slices.Clone(step.Runtime.Env)
	return out
}
