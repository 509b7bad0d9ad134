// Package monitor polls the execution service until a run reaches a terminal
// status, the time budget runs out, or the caller cancels.
//
// States:
//   - PENDING -> RUNNING -> SUCCEEDED | FAILED | SKIPPED | CANCELED
//
// PENDING is assumed before the first poll. UNKNOWN may be observed in place
// of any non-terminal state (unmapped raw values and failed poll requests);
// it is counted but never changes the last known state. Timeout and
// cancellation are outcomes, not errors: the run may still be executing.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/pipelinectl/internal/domain"
)

// StatusSource is the part of the execution service the monitor needs.
type StatusSource interface {
	GetRunStatus(ctx context.Context, runID string) (string, error)
}

// Observer is notified whenever the last known status changes.
type Observer interface {
	ObserveStatus(ctx context.Context, handle domain.RunHandle, from, to domain.RunStatus, at time.Time) error
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type OutcomeKind string

const (
	OutcomeTerminal  OutcomeKind = "terminal"
	OutcomeTimeout   OutcomeKind = "timeout"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the result of watching one run.
type Outcome struct {
	Kind OutcomeKind
	// Status is the terminal status for OutcomeTerminal, otherwise the last
	// observation (possibly UNKNOWN).
	Status domain.RunStatus
	// Last is the last observed status other than UNKNOWN.
	Last         domain.RunStatus
	Polls        int
	UnknownPolls int
	Elapsed      time.Duration
}

type Config struct {
	Interval   time.Duration
	MaxElapsed time.Duration
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.MaxElapsed <= 0 {
		return errors.New("max elapsed must be positive")
	}
	return nil
}

type Option func(*Monitor)

func WithClock(clock Clock) Option {
	return func(m *Monitor) { m.clock = clock }
}

func WithObserver(observer Observer) Option {
	return func(m *Monitor) { m.observer = observer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// Monitor watches runs. A Monitor holds no per-run state; Watch may be
// called for several runs, including concurrently.
type Monitor struct {
	source   StatusSource
	cfg      Config
	clock    Clock
	observer Observer
	logger   *slog.Logger
}

func New(source StatusSource, cfg Config, opts ...Option) (*Monitor, error) {
	if source == nil {
		return nil, errors.New("status source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		source: source,
		cfg:    cfg,
		clock:  realClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "run_monitor")
	return m, nil
}

// Watch polls immediately and then once per interval. It returns when a
// terminal status is observed, when the elapsed time reaches MaxElapsed, or
// when ctx is done. Cancellation is checked before every poll and every
// sleep, and interrupts a sleep in progress.
func (m *Monitor) Watch(ctx context.Context, handle domain.RunHandle) (Outcome, error) {
	if strings.TrimSpace(handle.RunID) == "" {
		return Outcome{}, errors.New("run id is required")
	}

	start := m.clock.Now()
	out := Outcome{Status: domain.RunStatusPending, Last: domain.RunStatusPending}
	finish := func(kind OutcomeKind) (Outcome, error) {
		out.Kind = kind
		out.Elapsed = m.clock.Now().Sub(start)
		m.logger.Info("monitoring finished",
			"run_id", handle.RunID,
			"outcome", string(kind),
			"status", string(out.Status),
			"polls", out.Polls,
			"elapsed", out.Elapsed,
		)
		return out, nil
	}

	for {
		if ctx.Err() != nil {
			return finish(OutcomeCancelled)
		}

		status := m.poll(ctx, handle.RunID)
		out.Polls++
		out.Status = status
		if status == domain.RunStatusUnknown {
			out.UnknownPolls++
		} else if status != out.Last {
			m.transition(ctx, handle, out.Last, status)
			out.Last = status
		}
		if status.IsTerminal() {
			return finish(OutcomeTerminal)
		}

		if ctx.Err() != nil {
			return finish(OutcomeCancelled)
		}
		select {
		case <-ctx.Done():
			return finish(OutcomeCancelled)
		case <-m.clock.After(m.cfg.Interval):
		}
		if m.clock.Now().Sub(start) >= m.cfg.MaxElapsed {
			return finish(OutcomeTimeout)
		}
	}
}

// poll queries the service once. Transport and decode failures are
// observed as UNKNOWN.
func (m *Monitor) poll(ctx context.Context, runID string) domain.RunStatus {
	raw, err := m.source.GetRunStatus(ctx, runID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("poll failed", "run_id", runID, "error", err)
		}
		return domain.RunStatusUnknown
	}
	status := domain.ClassifyRunStatus(raw)
	if status == domain.RunStatusUnknown {
		m.logger.Warn("unrecognized run status", "run_id", runID, "raw_status", raw)
	}
	return status
}

func (m *Monitor) transition(ctx context.Context, handle domain.RunHandle, from, to domain.RunStatus) {
	m.logger.Info("run status changed", "run_id", handle.RunID, "from", string(from), "to", string(to))
	if m.observer == nil {
		return
	}
	if err := m.observer.ObserveStatus(ctx, handle, from, to, m.clock.Now().UTC()); err != nil {
		m.logger.Warn("status observer failed", "run_id", handle.RunID, "error", err)
	}
}
