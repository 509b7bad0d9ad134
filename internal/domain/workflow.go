package domain

const (
	WorkflowAPIVersion = "pipelinectl.animus.dev/v1"
	WorkflowKind       = "Workflow"
)

// WorkflowDocument is the compiled, engine-readable form of a PipelineGraph.
// Steps are in topological order.
type WorkflowDocument struct {
	APIVersion string
	Kind       string
	Metadata   PipelineMetadata
	Parameters []PipelineParameter
	Steps      []WorkflowStep
}

type WorkflowStep struct {
	Name         string
	DisplayName  string
	Runtime      RuntimeSpec
	Inputs       []StepInput
	Outputs      []StepOutput
	Dependencies []string
}

// Defaults returns the parameter default table.
func (d WorkflowDocument) Defaults() map[string]any {
	out := make(map[string]any, len(d.Parameters))
	for _, param := range d.Parameters {
		out[param.Name] = param.Default
	}
	return out
}

// StepNames returns step names in document order.
func (d WorkflowDocument) StepNames() []string {
	names := make([]string, 0, len(d.Steps))
	for _, step := range d.Steps {
		names = append(names, step.Name)
	}
	return names
}
