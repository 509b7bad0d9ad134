package domain

// PipelineGraph is a validated pipeline: the steps in declaration order, the
// parameter table with canonical defaults, and the resolved data edges.
type PipelineGraph struct {
	Parameters []PipelineParameter
	Steps      []GraphStep
	Edges      []GraphEdge
}

// GraphStep is a StepDescriptor whose inputs have been resolved. Literal
// values are in canonical form (see ParamType.CoerceValue).
type GraphStep struct {
	Index      int
	Descriptor StepDescriptor
}

// GraphEdge connects a producer output to a consumer input.
type GraphEdge struct {
	FromStep   string
	FromOutput string
	ToStep     string
	ToInput    string
}

// StepByName returns the step with the given name.
func (g PipelineGraph) StepByName(name string) (GraphStep, bool) {
	for _, step := range g.Steps {
		if step.Descriptor.Name == name {
			return step, true
		}
	}
	return GraphStep{}, false
}
