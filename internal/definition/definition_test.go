package definition

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/execution/graph"
)

const bostonPath = "../../pipelines/boston_housing.pipeline.yaml"

func TestLoadBoston(t *testing.T) {
	spec, err := Load(bostonPath)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if spec.Metadata.Name != "boston-housing-ml-pipeline" {
		t.Fatalf("name=%q", spec.Metadata.Name)
	}
	if len(spec.Parameters) != 2 || spec.Parameters[1].Default != "data/raw_data.csv" {
		t.Fatalf("unexpected parameters: %+v", spec.Parameters)
	}

	g, err := graph.Build(spec)
	if err != nil {
		t.Fatalf("graph.Build() err=%v", err)
	}
	var names []string
	for _, step := range g.Steps {
		names = append(names, step.Descriptor.Name)
	}
	if want := []string{"extract", "preprocess", "train", "evaluate"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("steps=%v, want %v", names, want)
	}
	if len(g.Edges) != 3 {
		t.Fatalf("edges=%+v, want extract->preprocess->train->evaluate", g.Edges)
	}

	pre, _ := g.StepByName("preprocess")
	for _, in := range pre.Descriptor.Inputs {
		switch in.Name {
		case "test_size":
			if in.Type != domain.TypeFloat || in.Binding.Value != 0.2 {
				t.Fatalf("test_size=%+v", in)
			}
		case "random_state":
			if in.Type != domain.TypeInteger || in.Binding.Value != int64(42) {
				t.Fatalf("random_state=%+v", in)
			}
		}
	}
}

func TestParseBindings(t *testing.T) {
	raw := `
name: p
parameters:
  - name: rate
    type: float
    default: 1
steps:
  - name: a
    image: busybox
    inputs:
      - name: flag
        type: bool
        value: false
      - name: rate
        type: float
        parameter: rate
    outputs:
      - name: out
        type: artifact
  - name: b
    image: busybox
    inputs:
      - name: in
        type: artifact
        from: a.out
`
	spec, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	a := spec.Steps[0]
	if a.Inputs[0].Binding != domain.Literal(false) {
		t.Fatalf("flag binding=%+v", a.Inputs[0].Binding)
	}
	if a.Inputs[1].Binding != domain.Parameter("rate") {
		t.Fatalf("rate binding=%+v", a.Inputs[1].Binding)
	}
	if got := spec.Steps[1].Inputs[0].Binding; got != domain.Reference("a", "out") {
		t.Fatalf("reference binding=%+v", got)
	}
	if a.Outputs[0].Type != domain.TypeArtifact {
		t.Fatalf("output type=%s", a.Outputs[0].Type)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"no name":       "steps: []\n",
		"unknown key":   "name: p\nschedule: daily\n",
		"bad type":      "name: p\nsteps:\n  - name: a\n    image: x\n    inputs:\n      - name: i\n        type: tensor\n        value: 1\n",
		"no binding":    "name: p\nsteps:\n  - name: a\n    image: x\n    inputs:\n      - name: i\n        type: int\n",
		"two bindings":  "name: p\nsteps:\n  - name: a\n    image: x\n    inputs:\n      - name: i\n        type: int\n        value: 1\n        parameter: n\n",
		"bad reference": "name: p\nsteps:\n  - name: a\n    image: x\n    inputs:\n      - name: i\n        type: int\n        from: upstream\n",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidDefinition) {
			t.Fatalf("%s: err=%v, want ErrInvalidDefinition", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.pipeline.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"boston.pipeline.yaml",
		"nested/deeper/iris.pipeline.yaml",
		"nested/notes.yaml",
	}
	for _, name := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("name: x\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "dir.pipeline.yaml"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := Discover(root, "")
	if err != nil {
		t.Fatalf("Discover() err=%v", err)
	}
	want := []string{
		filepath.Join(root, "boston.pipeline.yaml"),
		filepath.Join(root, "nested", "deeper", "iris.pipeline.yaml"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Discover()=%v, want %v", got, want)
	}

	got, err = Discover(root, "nested/*.yaml")
	if err != nil {
		t.Fatalf("Discover() err=%v", err)
	}
	if len(got) != 1 || !strings.HasSuffix(got[0], "notes.yaml") {
		t.Fatalf("Discover(nested/*.yaml)=%v", got)
	}

	if _, err := Discover(root, "[unclosed"); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}
