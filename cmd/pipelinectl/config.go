package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/pipelinectl/internal/execution/monitor"
	"github.com/animus-labs/pipelinectl/internal/execution/submit"
	"github.com/animus-labs/pipelinectl/internal/platform/auth"
	"github.com/animus-labs/pipelinectl/internal/platform/env"
	"github.com/animus-labs/pipelinectl/internal/platform/logging"
	"github.com/animus-labs/pipelinectl/internal/platform/postgres"
)

type config struct {
	Host            string
	RequestTimeout  time.Duration
	Monitor         monitor.Config
	RunNameTemplate string
	ExperimentID    string
	Actor           string
	Auth            auth.Config
	Database        postgres.Config
	Logging         logging.Config
}

func configFromEnv() (config, error) {
	interval, err := env.Duration("PIPELINECTL_POLL_INTERVAL", 15*time.Second)
	if err != nil {
		return config{}, err
	}
	maxElapsed, err := env.Duration("PIPELINECTL_MAX_ELAPSED", 10*time.Minute)
	if err != nil {
		return config{}, err
	}
	requestTimeout, err := env.Duration("PIPELINECTL_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return config{}, err
	}
	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return config{}, fmt.Errorf("auth: %w", err)
	}
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return config{}, fmt.Errorf("database: %w", err)
	}

	cfg := config{
		Host:            strings.TrimSpace(env.String("PIPELINECTL_HOST", "http://localhost:8080")),
		RequestTimeout:  requestTimeout,
		Monitor:         monitor.Config{Interval: interval, MaxElapsed: maxElapsed},
		RunNameTemplate: env.String("PIPELINECTL_RUN_NAME_TEMPLATE", submit.DefaultRunNameTemplate),
		ExperimentID:    strings.TrimSpace(env.String("PIPELINECTL_EXPERIMENT_ID", "")),
		Actor:           strings.TrimSpace(env.String("PIPELINECTL_ACTOR", env.String("USER", "pipelinectl"))),
		Auth:            authCfg,
		Database:        dbCfg,
		Logging:         logging.ConfigFromEnv(),
	}
	if err := cfg.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) Validate() error {
	if c.Host == "" {
		return errors.New("PIPELINECTL_HOST is required")
	}
	if c.Actor == "" {
		return errors.New("PIPELINECTL_ACTOR must not be blank")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("PIPELINECTL_REQUEST_TIMEOUT must be positive")
	}
	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
