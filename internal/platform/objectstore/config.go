package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/pipelinectl/internal/platform/env"
)

// Config addresses the S3 compatible endpoint behind s3:// workflow
// locations. Buckets come from the location itself.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("PIPELINECTL_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("PIPELINECTL_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: env.String("PIPELINECTL_MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: env.String("PIPELINECTL_MINIO_SECRET_KEY", "minioadmin"),
		Region:    env.String("PIPELINECTL_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
