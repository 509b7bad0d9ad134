package workflowstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/execution/compile"
	"github.com/animus-labs/pipelinectl/internal/platform/objectstore"
)

type fakeObjects struct {
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Put(_ context.Context, bucket, key string, body io.Reader, size int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(raw)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(raw), size)
	}
	f.objects[bucket+"/"+key] = raw
	return nil
}

func (f *fakeObjects) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func sampleDocument() domain.WorkflowDocument {
	return domain.WorkflowDocument{
		APIVersion: domain.WorkflowAPIVersion,
		Kind:       domain.WorkflowKind,
		Metadata:   domain.PipelineMetadata{Name: "boston-housing"},
		Parameters: []domain.PipelineParameter{
			{Name: "dvc_data_path", Type: domain.TypeString, Default: "data/housing.csv"},
		},
		Steps: []domain.WorkflowStep{
			{
				Name:    "extract",
				Runtime: domain.RuntimeSpec{Image: "python:3.11"},
				Inputs: []domain.StepInput{
					{Name: "data_path", Type: domain.TypeString, Binding: domain.Parameter("dvc_data_path")},
				},
				Outputs: []domain.StepOutput{{Name: "raw", Type: domain.TypeArtifact}},
			},
			{
				Name:    "train",
				Runtime: domain.RuntimeSpec{Image: "python:3.11"},
				Inputs: []domain.StepInput{
					{Name: "raw", Type: domain.TypeArtifact, Binding: domain.Reference("extract", "raw")},
					{Name: "n_estimators", Type: domain.TypeInteger, Binding: domain.Literal(int64(100))},
				},
				Dependencies: []string{"extract"},
			},
		},
	}
}

func TestParseLocation(t *testing.T) {
	cases := []struct {
		raw  string
		want Location
	}{
		{raw: "build/workflow.yaml", want: Location{Path: "build/workflow.yaml"}},
		{raw: "s3://pipelines/boston/workflow.yaml", want: Location{Bucket: "pipelines", Key: "boston/workflow.yaml"}},
		{raw: " s3://pipelines/workflow.yaml/ ", want: Location{Bucket: "pipelines", Key: "workflow.yaml"}},
	}
	for _, tc := range cases {
		got, err := ParseLocation(tc.raw)
		if err != nil {
			t.Fatalf("ParseLocation(%q) err=%v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLocation(%q)=%+v, want %+v", tc.raw, got, tc.want)
		}
	}
	for _, raw := range []string{"", "s3://", "s3://bucket", "s3:///key"} {
		if _, err := ParseLocation(raw); err == nil {
			t.Fatalf("ParseLocation(%q) expected error", raw)
		}
	}
}

func TestFileRoundTripAndCheck(t *testing.T) {
	ctx := context.Background()
	store := New(nil)
	loc := Location{Path: filepath.Join(t.TempDir(), "out", "workflow.yaml")}
	doc := sampleDocument()

	digest, err := store.Write(ctx, loc, doc)
	if err != nil {
		t.Fatalf("Write() err=%v", err)
	}
	want, err := compile.Digest(doc)
	if err != nil {
		t.Fatalf("Digest() err=%v", err)
	}
	if digest != want {
		t.Fatalf("digest=%s, want %s", digest, want)
	}

	got, err := store.Read(ctx, loc)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, doc)
	}

	result, err := store.Check(ctx, loc, doc)
	if err != nil {
		t.Fatalf("Check() err=%v", err)
	}
	if !result.Match || result.Missing || result.PersistedHash != digest {
		t.Fatalf("unexpected check result: %+v", result)
	}

	changed := sampleDocument()
	changed.Parameters[0].Default = "data/other.csv"
	result, err = store.Check(ctx, loc, changed)
	if err != nil {
		t.Fatalf("Check() err=%v", err)
	}
	if result.Match {
		t.Fatalf("expected drift to be detected")
	}
}

func TestCheckMissingFile(t *testing.T) {
	store := New(nil)
	loc := Location{Path: filepath.Join(t.TempDir(), "absent.yaml")}
	result, err := store.Check(context.Background(), loc, sampleDocument())
	if err != nil {
		t.Fatalf("Check() err=%v", err)
	}
	if result.Match || !result.Missing {
		t.Fatalf("unexpected check result: %+v", result)
	}
	if _, err := store.Read(context.Background(), loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read() err=%v, want ErrNotFound", err)
	}
}

func TestReadRejectsForeignDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.yaml")
	if err := os.WriteFile(path, []byte("apiVersion: argoproj.io/v1alpha1\nkind: Workflow\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(nil).Read(context.Background(), Location{Path: path}); err == nil {
		t.Fatalf("expected error for foreign document")
	}
}

func TestObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	store := New(objects)
	loc, err := ParseLocation("s3://pipelines/boston/workflow.yaml")
	if err != nil {
		t.Fatalf("ParseLocation() err=%v", err)
	}
	doc := sampleDocument()

	if _, err := store.Write(ctx, loc, doc); err != nil {
		t.Fatalf("Write() err=%v", err)
	}
	if _, ok := objects.objects["pipelines/boston/workflow.yaml"]; !ok {
		t.Fatalf("expected object to be stored, have %v", objects.objects)
	}
	got, err := store.Read(ctx, loc)
	if err != nil {
		t.Fatalf("Read() err=%v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip mismatch")
	}

	missing := Location{Bucket: "pipelines", Key: "absent.yaml"}
	result, err := store.Check(ctx, missing, doc)
	if err != nil || !result.Missing {
		t.Fatalf("Check() result=%+v err=%v, want missing", result, err)
	}
}

func TestObjectLocationWithoutBackend(t *testing.T) {
	loc := Location{Bucket: "pipelines", Key: "workflow.yaml"}
	if _, err := New(nil).Write(context.Background(), loc, sampleDocument()); err == nil {
		t.Fatalf("expected error without object backend")
	}
}

func TestObjectWriteError(t *testing.T) {
	boom := errors.New("bucket quota exceeded")
	objects := newFakeObjects()
	objects.putErr = boom
	loc := Location{Bucket: "pipelines", Key: "workflow.yaml"}
	if _, err := New(objects).Write(context.Background(), loc, sampleDocument()); !errors.Is(err, boom) {
		t.Fatalf("Write() err=%v, want wrapped %v", err, boom)
	}
}
