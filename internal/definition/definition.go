// Package definition reads pipeline definitions written in YAML and turns
// them into domain.PipelineSpec values for the graph builder.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

// DefaultPattern matches definition files below a root directory.
const DefaultPattern = "**/*.pipeline.yaml"

var ErrInvalidDefinition = errors.New("invalid pipeline definition")

type file struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Labels      map[string]string `yaml:"labels"`
	Parameters  []parameter       `yaml:"parameters"`
	Steps       []step            `yaml:"steps"`
}

type parameter struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default any    `yaml:"default"`
}

type step struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"displayName"`
	Image       string   `yaml:"image"`
	Packages    []string `yaml:"packages"`
	Command     []string `yaml:"command"`
	Args        []string `yaml:"args"`
	Env         []envVar `yaml:"env"`
	Inputs      []input  `yaml:"inputs"`
	Outputs     []output `yaml:"outputs"`
}

type envVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// input binds exactly one of value, from ("step.output") or parameter.
type input struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Value     any    `yaml:"value"`
	From      string `yaml:"from"`
	Parameter string `yaml:"parameter"`
}

type output struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Parse decodes one definition. Structural problems (unknown keys, bad
// types, ambiguous bindings) are reported here; reference checks are left
// to the graph builder.
func Parse(raw []byte) (domain.PipelineSpec, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.PipelineSpec{}, fmt.Errorf("%w: document is empty", ErrInvalidDefinition)
		}
		return domain.PipelineSpec{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return f.toSpec()
}

func Load(path string) (domain.PipelineSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.PipelineSpec{}, fmt.Errorf("read definition: %w", err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return domain.PipelineSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Discover returns the definition files under root matching pattern, sorted.
// An empty pattern means DefaultPattern.
func Discover(root, pattern string) ([]string, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	slices.Sort(matches)

	out := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := fs.Stat(fsys, match)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", match, err)
		}
		if info.IsDir() {
			continue
		}
		out = append(out, filepath.Join(root, filepath.FromSlash(match)))
	}
	return out, nil
}

func (f file) toSpec() (domain.PipelineSpec, error) {
	spec := domain.PipelineSpec{
		Metadata: domain.PipelineMetadata{
			Name:        strings.TrimSpace(f.Name),
			Description: strings.TrimSpace(f.Description),
			Labels:      f.Labels,
		},
	}
	if spec.Metadata.Name == "" {
		return domain.PipelineSpec{}, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}

	for _, p := range f.Parameters {
		typ, err := domain.ParseParamType(p.Type)
		if err != nil {
			return domain.PipelineSpec{}, fmt.Errorf("%w: parameter %q: %v", ErrInvalidDefinition, p.Name, err)
		}
		spec.Parameters = append(spec.Parameters, domain.PipelineParameter{Name: p.Name, Type: typ, Default: p.Default})
	}

	for _, s := range f.Steps {
		desc := domain.StepDescriptor{
			Name:        s.Name,
			DisplayName: s.DisplayName,
			Runtime: domain.RuntimeSpec{
				Image:    s.Image,
				Packages: s.Packages,
				Command:  s.Command,
				Args:     s.Args,
			},
		}
		for _, e := range s.Env {
			desc.Runtime.Env = append(desc.Runtime.Env, domain.EnvVar{Name: e.Name, Value: e.Value})
		}
		for _, in := range s.Inputs {
			converted, err := in.toDomain()
			if err != nil {
				return domain.PipelineSpec{}, fmt.Errorf("%w: step %q input %q: %v", ErrInvalidDefinition, s.Name, in.Name, err)
			}
			desc.Inputs = append(desc.Inputs, converted)
		}
		for _, out := range s.Outputs {
			typ, err := domain.ParseParamType(out.Type)
			if err != nil {
				return domain.PipelineSpec{}, fmt.Errorf("%w: step %q output %q: %v", ErrInvalidDefinition, s.Name, out.Name, err)
			}
			desc.Outputs = append(desc.Outputs, domain.StepOutput{Name: out.Name, Type: typ})
		}
		spec.Steps = append(spec.Steps, desc)
	}
	return spec, nil
}

func (in input) toDomain() (domain.StepInput, error) {
	typ, err := domain.ParseParamType(in.Type)
	if err != nil {
		return domain.StepInput{}, err
	}
	out := domain.StepInput{Name: in.Name, Type: typ}

	set := 0
	if in.Value != nil {
		set++
	}
	if in.From != "" {
		set++
	}
	if in.Parameter != "" {
		set++
	}
	if set != 1 {
		return domain.StepInput{}, errors.New("exactly one of value, from or parameter is required")
	}

	switch {
	case in.From != "":
		stepName, outputName, ok := strings.Cut(in.From, ".")
		if !ok || stepName == "" || outputName == "" {
			return domain.StepInput{}, fmt.Errorf("from %q must be <step>.<output>", in.From)
		}
		out.Binding = domain.Reference(stepName, outputName)
	case in.Parameter != "":
		out.Binding = domain.Parameter(in.Parameter)
	default:
		out.Binding = domain.Literal(in.Value)
	}
	return out, nil
}
