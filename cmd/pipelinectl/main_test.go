package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const bostonDefinition = "../../pipelines/boston_housing.pipeline.yaml"

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PIPELINECTL_DATABASE_URL", "")
	t.Setenv("PIPELINECTL_AUTH_MODE", "none")
	t.Setenv("PIPELINECTL_LOG_FORMAT", "text")
	t.Setenv("PIPELINECTL_LOG_LEVEL", "error")
	t.Setenv("PIPELINECTL_POLL_INTERVAL", "1ms")
	t.Setenv("PIPELINECTL_MAX_ELAPSED", "5s")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	setTestEnv(t)
	if code, _, _ := runCLI(t); code != exitUsage {
		t.Fatalf("no args exit=%d, want %d", code, exitUsage)
	}
	if code, _, _ := runCLI(t, "explode"); code != exitUsage {
		t.Fatalf("unknown command exit=%d, want %d", code, exitUsage)
	}
	if code, out, _ := runCLI(t, "version"); code != exitOK || strings.TrimSpace(out) != version {
		t.Fatalf("version exit=%d out=%q", code, out)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	setTestEnv(t)
	t.Setenv("PIPELINECTL_POLL_INTERVAL", "0s")
	if code, _, _ := runCLI(t, "compile", "-f", bostonDefinition); code != exitUsage {
		t.Fatalf("exit=%d, want %d", code, exitUsage)
	}
}

func TestCompileThenCheck(t *testing.T) {
	setTestEnv(t)
	out := filepath.Join(t.TempDir(), "nested", "pipeline.yaml")

	code, stdout, stderr := runCLI(t, "compile", "-f", bostonDefinition, "-o", out)
	if code != exitOK {
		t.Fatalf("compile exit=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, out) {
		t.Fatalf("compile output %q does not name %s", stdout, out)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read compiled document: %v", err)
	}
	if !strings.Contains(string(raw), "boston-housing-ml-pipeline") {
		t.Fatalf("compiled document missing pipeline name:\n%s", raw)
	}

	if code, _, stderr := runCLI(t, "compile", "-f", bostonDefinition, "-o", out, "-check"); code != exitOK {
		t.Fatalf("check exit=%d stderr=%s", code, stderr)
	}
}

func TestCompileCheckDetectsDrift(t *testing.T) {
	setTestEnv(t)
	out := filepath.Join(t.TempDir(), "pipeline.yaml")

	code, stdout, _ := runCLI(t, "compile", "-f", bostonDefinition, "-o", out, "-check")
	if code != exitDrift || !strings.HasPrefix(stdout, "missing") {
		t.Fatalf("missing document exit=%d out=%q", code, stdout)
	}

	if code, _, stderr := runCLI(t, "compile", "-f", bostonDefinition, "-o", out); code != exitOK {
		t.Fatalf("compile exit=%d stderr=%s", code, stderr)
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("# edited by hand\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()

	code, stdout, _ = runCLI(t, "compile", "-f", bostonDefinition, "-o", out, "-check")
	if code != exitDrift || !strings.HasPrefix(stdout, "drift") {
		t.Fatalf("edited document exit=%d out=%q", code, stdout)
	}
}

func TestCompileInvalidDefinition(t *testing.T) {
	setTestEnv(t)
	path := filepath.Join(t.TempDir(), "broken.pipeline.yaml")
	body := `name: broken
steps:
  - name: train
    image: python:3.11
    inputs:
      - name: data
        type: string
        from: missing.output
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code, _, _ := runCLI(t, "compile", "-f", path, "-o", filepath.Join(t.TempDir(), "out.yaml")); code != exitInvalidPipeline {
		t.Fatalf("exit=%d, want %d", code, exitInvalidPipeline)
	}
	if code, _, _ := runCLI(t, "compile", "-f", filepath.Join(t.TempDir(), "absent.yaml")); code != exitUsage {
		t.Fatalf("missing file exit=%d, want %d", code, exitUsage)
	}
}

func TestValidate(t *testing.T) {
	setTestEnv(t)
	code, stdout, stderr := runCLI(t, "validate", "-root", "../../pipelines")
	if code != exitOK {
		t.Fatalf("validate exit=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "ok ") || !strings.Contains(stdout, "boston_housing.pipeline.yaml") {
		t.Fatalf("unexpected output %q", stdout)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.pipeline.yaml"), []byte("name: bad\nsteps: []\nunknown: 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code, stdout, _ := runCLI(t, "validate", "-root", dir); code != exitInvalidPipeline || !strings.Contains(stdout, "invalid") {
		t.Fatalf("bad definition exit=%d out=%q", code, stdout)
	}
}

func TestSubmitDryRun(t *testing.T) {
	setTestEnv(t)
	code, stdout, stderr := runCLI(t, "submit", "-dry-run", "-f", bostonDefinition, "-param", "dvc_data_path=data/other.csv")
	if code != exitOK {
		t.Fatalf("submit exit=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "run_id=") || !strings.Contains(stdout, "run_name=boston-housing-ml-pipeline-") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestSubmitRejectsUnknownParameter(t *testing.T) {
	setTestEnv(t)
	if code, _, _ := runCLI(t, "submit", "-dry-run", "-f", bostonDefinition, "-param", "epochs=3"); code != exitSubmitFailed {
		t.Fatalf("exit=%d, want %d", code, exitSubmitFailed)
	}
	if code, _, _ := runCLI(t, "submit", "-dry-run", "-f", bostonDefinition, "-param", "novalue"); code != exitUsage {
		t.Fatalf("malformed param exit=%d, want %d", code, exitUsage)
	}
}

func TestRunDryRunSucceeds(t *testing.T) {
	setTestEnv(t)
	code, stdout, stderr := runCLI(t, "run", "-dry-run", "-f", bostonDefinition)
	if code != exitOK {
		t.Fatalf("run exit=%d stdout=%s stderr=%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "outcome=terminal status=SUCCEEDED polls=4") {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestRunCancelled(t *testing.T) {
	setTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	// The dry-run service ignores ctx, so the run is created and the
	// monitor stops before its first poll.
	code := run(ctx, []string{"run", "-dry-run", "-f", bostonDefinition}, &stdout, &stderr)
	if code != exitCancelled {
		t.Fatalf("exit=%d, want %d stdout=%s", code, exitCancelled, stdout.String())
	}
}

func TestStatus(t *testing.T) {
	setTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/apis/v2beta1/runs/run-1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"run_id":"run-1","state":"RUNNING"}`))
	}))
	defer srv.Close()
	t.Setenv("PIPELINECTL_HOST", srv.URL)

	code, stdout, stderr := runCLI(t, "status", "-run-id", "run-1")
	if code != exitOK {
		t.Fatalf("status exit=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "status=RUNNING") {
		t.Fatalf("unexpected output %q", stdout)
	}
	if code, _, _ := runCLI(t, "status"); code != exitUsage {
		t.Fatalf("missing run id exit=%d, want %d", code, exitUsage)
	}
}

func TestHistoryRequiresLedger(t *testing.T) {
	setTestEnv(t)
	if code, _, stderr := runCLI(t, "history", "-run-id", "run-1"); code != exitUsage || !strings.Contains(stderr, "PIPELINECTL_DATABASE_URL") {
		t.Fatalf("exit=%d stderr=%q", code, stderr)
	}
}
