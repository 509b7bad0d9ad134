// Package workflowstore persists compiled workflow documents on the local
// filesystem or in an S3 compatible bucket (s3://bucket/key).
package workflowstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/execution/compile"
	"github.com/animus-labs/pipelinectl/internal/platform/objectstore"
)

const contentType = "application/yaml"

var ErrNotFound = errors.New("workflow document not found")

// Objects is the bucket backend used for s3:// locations.
type Objects interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Location is either a filesystem path or a bucket/key pair.
type Location struct {
	Path   string
	Bucket string
	Key    string
}

func (l Location) Remote() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.Remote() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Path
}

func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, errors.New("location is required")
	}
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return Location{Path: filepath.Clean(raw)}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	key = strings.Trim(key, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid object location %q: want s3://bucket/key", raw)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// CheckResult compares a persisted document with a fresh compilation.
type CheckResult struct {
	Match         bool
	Missing       bool
	Digest        string
	PersistedHash string
}

type Store struct {
	objects Objects
}

// New returns a store. objects may be nil when only filesystem locations are
// used.
func New(objects Objects) *Store {
	return &Store{objects: objects}
}

// Write marshals doc to loc and returns its digest.
func (s *Store) Write(ctx context.Context, loc Location, doc domain.WorkflowDocument) (string, error) {
	raw, err := compile.Marshal(doc)
	if err != nil {
		return "", err
	}
	if loc.Remote() {
		if s.objects == nil {
			return "", fmt.Errorf("write %s: object storage not configured", loc)
		}
		if err := s.objects.Put(ctx, loc.Bucket, loc.Key, bytes.NewReader(raw), int64(len(raw)), contentType); err != nil {
			return "", fmt.Errorf("write %s: %w", loc, err)
		}
		return compile.DigestBytes(raw), nil
	}
	if dir := filepath.Dir(loc.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("write %s: %w", loc, err)
		}
	}
	if err := os.WriteFile(loc.Path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", loc, err)
	}
	return compile.DigestBytes(raw), nil
}

// ReadBytes returns the persisted bytes at loc.
func (s *Store) ReadBytes(ctx context.Context, loc Location) ([]byte, error) {
	if loc.Remote() {
		if s.objects == nil {
			return nil, fmt.Errorf("read %s: object storage not configured", loc)
		}
		body, err := s.objects.Get(ctx, loc.Bucket, loc.Key)
		if err != nil {
			if errors.Is(err, objectstore.ErrObjectNotFound) {
				return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
			}
			return nil, fmt.Errorf("read %s: %w", loc, err)
		}
		defer body.Close()
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", loc, err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(loc.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return raw, nil
}

func (s *Store) Read(ctx context.Context, loc Location) (domain.WorkflowDocument, error) {
	raw, err := s.ReadBytes(ctx, loc)
	if err != nil {
		return domain.WorkflowDocument{}, err
	}
	return compile.Unmarshal(raw)
}

// Check reports whether the document persisted at loc is byte-identical to
// the marshalled form of doc. A missing document is a mismatch, not an error.
func (s *Store) Check(ctx context.Context, loc Location, doc domain.WorkflowDocument) (CheckResult, error) {
	raw, err := compile.Marshal(doc)
	if err != nil {
		return CheckResult{}, err
	}
	result := CheckResult{Digest: compile.DigestBytes(raw)}
	persisted, err := s.ReadBytes(ctx, loc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			result.Missing = true
			return result, nil
		}
		return CheckResult{}, err
	}
	result.PersistedHash = compile.DigestBytes(persisted)
	result.Match = bytes.Equal(raw, persisted)
	return result, nil
}
