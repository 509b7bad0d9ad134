package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/animus-labs/pipelinectl/internal/platform/env"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

type Config struct {
	Format string
	Level  string
}

func ConfigFromEnv() Config {
	return Config{
		Format: strings.ToLower(strings.TrimSpace(env.String("PIPELINECTL_LOG_FORMAT", JSON))),
		Level:  strings.TrimSpace(env.String("PIPELINECTL_LOG_LEVEL", "info")),
	}
}

// New builds a logger writing to w in the configured format.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("could not parse log level: %w", err)
	}

	opts := slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case JSON:
		handler = slog.NewJSONHandler(w, &opts)
	case Text:
		handler = slog.NewTextHandler(w, &opts)
	case Tint:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	default:
		return nil, fmt.Errorf("unknown logging format: %s", cfg.Format)
	}
	return slog.New(handler), nil
}

// Initialize builds a logger and installs it as the slog default.
func Initialize(w io.Writer, cfg Config) (*slog.Logger, error) {
	logger, err := New(w, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
