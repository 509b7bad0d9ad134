package env

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	if got := String("PIPELINECTL_TEST_STRING_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("PIPELINECTL_TEST_STRING", "value")
	if got := String("PIPELINECTL_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestStrings(t *testing.T) {
	def := []string{"openid"}
	if got := Strings("PIPELINECTL_TEST_STRINGS_MISSING", def); !reflect.DeepEqual(got, def) {
		t.Fatalf("Strings()=%v, want %v", got, def)
	}
	t.Setenv("PIPELINECTL_TEST_STRINGS", "openid, profile  pipelines")
	want := []string{"openid", "profile", "pipelines"}
	if got := Strings("PIPELINECTL_TEST_STRINGS", def); !reflect.DeepEqual(got, want) {
		t.Fatalf("Strings()=%v, want %v", got, want)
	}
	t.Setenv("PIPELINECTL_TEST_STRINGS", " , ")
	if got := Strings("PIPELINECTL_TEST_STRINGS", def); got != nil {
		t.Fatalf("Strings()=%v, want nil", got)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("PIPELINECTL_TEST_DURATION_MISSING", 5*time.Second)
	if err != nil || got != 5*time.Second {
		t.Fatalf("Duration()=%v err=%v, want 5s", got, err)
	}
	t.Setenv("PIPELINECTL_TEST_DURATION", "250ms")
	got, err = Duration("PIPELINECTL_TEST_DURATION", 5*time.Second)
	if err != nil || got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v err=%v, want 250ms", got, err)
	}
	t.Setenv("PIPELINECTL_TEST_DURATION", "soon")
	if _, err := Duration("PIPELINECTL_TEST_DURATION", 5*time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("PIPELINECTL_TEST_BOOL", "false")
	b, err := Bool("PIPELINECTL_TEST_BOOL", true)
	if err != nil || b {
		t.Fatalf("Bool()=%v err=%v, want false", b, err)
	}
	t.Setenv("PIPELINECTL_TEST_BOOL", "nope")
	if _, err := Bool("PIPELINECTL_TEST_BOOL", true); err == nil {
		t.Fatalf("Bool() expected error")
	}

	t.Setenv("PIPELINECTL_TEST_INT", "7")
	i, err := Int("PIPELINECTL_TEST_INT", 42)
	if err != nil || i != 7 {
		t.Fatalf("Int()=%v err=%v, want 7", i, err)
	}
	t.Setenv("PIPELINECTL_TEST_INT", "seven")
	if _, err := Int("PIPELINECTL_TEST_INT", 42); err == nil {
		t.Fatalf("Int() expected error")
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("PIPELINECTL_TEST_DOTENV=from-file\nPIPELINECTL_TEST_DOTENV_SET=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PIPELINECTL_TEST_DOTENV_SET", "from-env")
	// t.Setenv restores the variable; register cleanup for the one the file sets.
	t.Cleanup(func() { _ = os.Unsetenv("PIPELINECTL_TEST_DOTENV") })

	loaded, err := LoadDotenv(filepath.Join(dir, "missing.env"), path)
	if err != nil {
		t.Fatalf("LoadDotenv() err=%v", err)
	}
	if !loaded {
		t.Fatalf("expected file to be loaded")
	}
	if got := os.Getenv("PIPELINECTL_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("PIPELINECTL_TEST_DOTENV=%q, want from-file", got)
	}
	if got := os.Getenv("PIPELINECTL_TEST_DOTENV_SET"); got != "from-env" {
		t.Fatalf("existing variable overridden: %q", got)
	}
}

func TestLoadDotenvMissingFiles(t *testing.T) {
	loaded, err := LoadDotenv(filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("LoadDotenv() err=%v", err)
	}
	if loaded {
		t.Fatalf("expected nothing loaded")
	}
}
