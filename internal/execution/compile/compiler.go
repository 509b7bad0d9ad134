package compile

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

// Compile orders the graph topologically and produces its WorkflowDocument.
// Steps with no ordering constraint between them keep their declaration
// order, so compiling the same graph twice yields the same document.
//
// The graph is re-validated: callers may hand-construct a PipelineGraph
// without going through graph.Build.
func Compile(g domain.PipelineGraph, meta domain.PipelineMetadata) (domain.WorkflowDocument, error) {
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		return domain.WorkflowDocument{}, newError(ErrInvalidMetadata, "name is required")
	}

	order, deps, err := topoOrder(g)
	if err != nil {
		return domain.WorkflowDocument{}, err
	}

	steps := make([]domain.WorkflowStep, 0, len(order))
	for _, idx := range order {
		desc := g.Steps[idx].Descriptor
		steps = append(steps, domain.WorkflowStep{
			Name:         desc.Name,
			DisplayName:  desc.DisplayName,
			Runtime:      cloneRuntime(desc.Runtime),
			Inputs:       cloneSlice(desc.Inputs),
			Outputs:      cloneSlice(desc.Outputs),
			Dependencies: deps[desc.Name],
		})
	}

	var labels map[string]string
	if len(meta.Labels) > 0 {
		labels = maps.Clone(meta.Labels)
	}

	return domain.WorkflowDocument{
		APIVersion: domain.WorkflowAPIVersion,
		Kind:       domain.WorkflowKind,
		Metadata: domain.PipelineMetadata{
			Name:        name,
			Description: meta.Description,
			Labels:      labels,
		},
		Parameters: cloneSlice(g.Parameters),
		Steps:      steps,
	}, nil
}

// topoOrder returns step positions in topological order and, per step, the
// sorted names of the steps it depends on.
func topoOrder(g domain.PipelineGraph) ([]int, map[string][]string, error) {
	index := make(map[string]int, len(g.Steps))
	for i, step := range g.Steps {
		name := step.Descriptor.Name
		if _, dup := index[name]; dup {
			return nil, nil, newError(ErrDuplicateStep, name)
		}
		index[name] = i
	}

	adj := make([][]int, len(g.Steps))
	inDegree := make([]int, len(g.Steps))
	upstream := make(map[string]map[string]struct{}, len(g.Steps))
	addEdge := func(from, to string) error {
		fromIdx, ok := index[from]
		if !ok {
			return newError(ErrDanglingEdge, fmt.Sprintf("%s -> %s", from, to))
		}
		toIdx, ok := index[to]
		if !ok {
			return newError(ErrDanglingEdge, fmt.Sprintf("%s -> %s", from, to))
		}
		if upstream[to] == nil {
			upstream[to] = map[string]struct{}{}
		}
		if _, seen := upstream[to][from]; seen {
			return nil
		}
		upstream[to][from] = struct{}{}
		adj[fromIdx] = append(adj[fromIdx], toIdx)
		inDegree[toIdx]++
		return nil
	}

	for _, edge := range g.Edges {
		if err := addEdge(edge.FromStep, edge.ToStep); err != nil {
			return nil, nil, err
		}
	}
	for _, step := range g.Steps {
		for _, input := range step.Descriptor.Inputs {
			if input.Binding.Kind != domain.BindingReference {
				continue
			}
			if err := addEdge(input.Binding.Step, step.Descriptor.Name); err != nil {
				return nil, nil, err
			}
		}
	}

	ready := make([]int, 0, len(g.Steps))
	for i, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]int, 0, len(g.Steps))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)
		for _, neighbor := range adj[next] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				ready = append(ready, neighbor)
				slices.Sort(ready)
			}
		}
	}

	if len(ordered) != len(g.Steps) {
		var stuck []string
		for i, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, g.Steps[i].Descriptor.Name)
			}
		}
		return nil, nil, newError(ErrCyclicGraph, strings.Join(stuck, ", "))
	}

	deps := make(map[string][]string, len(upstream))
	for to, froms := range upstream {
		deps[to] = slices.Sorted(maps.Keys(froms))
	}
	return ordered, deps, nil
}

func cloneRuntime(rt domain.RuntimeSpec) domain.RuntimeSpec {
	return domain.RuntimeSpec{
		Image:    rt.Image,
		Packages: cloneSlice(rt.Packages),
		Command:  cloneSlice(rt.Command),
		Args:     cloneSlice(rt.Args),
		Env:      cloneSlice(rt.Env),
	}
}

// cloneSlice normalises empty slices to nil so that a document survives a
// marshal/unmarshal round trip unchanged.
func cloneSlice[T any](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	return slices.Clone(in)
}
