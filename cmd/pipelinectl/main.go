package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/animus-labs/pipelinectl/internal/definition"
	"github.com/animus-labs/pipelinectl/internal/domain"
	"github.com/animus-labs/pipelinectl/internal/execution/compile"
	"github.com/animus-labs/pipelinectl/internal/execution/graph"
	"github.com/animus-labs/pipelinectl/internal/execution/monitor"
	"github.com/animus-labs/pipelinectl/internal/execution/service"
	"github.com/animus-labs/pipelinectl/internal/execution/service/dryrun"
	"github.com/animus-labs/pipelinectl/internal/execution/service/kfp"
	"github.com/animus-labs/pipelinectl/internal/execution/submit"
	"github.com/animus-labs/pipelinectl/internal/platform/auditlog"
	"github.com/animus-labs/pipelinectl/internal/platform/auth"
	"github.com/animus-labs/pipelinectl/internal/platform/env"
	"github.com/animus-labs/pipelinectl/internal/platform/logging"
	"github.com/animus-labs/pipelinectl/internal/platform/objectstore"
	"github.com/animus-labs/pipelinectl/internal/platform/postgres"
	"github.com/animus-labs/pipelinectl/internal/platform/requestid"
	"github.com/animus-labs/pipelinectl/internal/repo"
	repopg "github.com/animus-labs/pipelinectl/internal/repo/postgres"
	"github.com/animus-labs/pipelinectl/internal/storage/workflowstore"
)

var version = "dev"

const (
	exitOK = iota
	exitFailure
	exitUsage
	exitInvalidPipeline
	exitSubmitFailed
	exitRunFailed
	exitTimeout
	exitCancelled
	exitDrift
)

const defaultDefinition = "pipelines/boston_housing.pipeline.yaml"

const usage = `usage: pipelinectl <command> [flags]

commands:
  compile   build and compile a definition into a workflow document
  validate  build every definition found below a directory
  submit    compile and submit a run, print its id
  run       compile, submit and wait for the run to finish
  status    poll the status of a run once
  history   show a run and its status changes from the run ledger
  version   print the version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg    config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	command, rest := args[0], args[1:]
	switch command {
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version)
		return exitOK
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	}

	if _, err := env.LoadDotenv(); err != nil {
		fmt.Fprintf(stderr, "failed to load .env: %v\n", err)
		return exitUsage
	}
	cfg, err := configFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return exitUsage
	}
	logger, err := logging.Initialize(stderr, cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "invalid logging configuration: %v\n", err)
		return exitUsage
	}

	a := &app{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	switch command {
	case "compile":
		return a.compile(ctx, rest)
	case "validate":
		return a.validate(rest)
	case "submit":
		return a.submit(ctx, rest, false)
	case "run":
		return a.submit(ctx, rest, true)
	case "status":
		return a.status(ctx, rest)
	case "history":
		return a.history(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return exitUsage
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) compile(ctx context.Context, args []string) int {
	fs := a.flagSet("compile")
	file := fs.String("f", defaultDefinition, "pipeline definition file")
	out := fs.String("o", "pipeline.yaml", "workflow document location: a path or s3://bucket/key")
	check := fs.Bool("check", false, "compare the persisted document with a fresh compilation instead of writing it")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	doc, code := a.loadDocument(*file)
	if code != exitOK {
		return code
	}
	loc, err := workflowstore.ParseLocation(*out)
	if err != nil {
		a.logger.Error("invalid output location", "error", err)
		return exitUsage
	}
	store, err := a.workflowStore(loc)
	if err != nil {
		a.logger.Error("object store unavailable", "error", err)
		return exitUsage
	}

	if *check {
		result, err := store.Check(ctx, loc, doc)
		if err != nil {
			a.logger.Error("check failed", "location", loc.String(), "error", err)
			return exitFailure
		}
		switch {
		case result.Missing:
			fmt.Fprintf(a.stdout, "missing %s (want %s)\n", loc, result.Digest)
			return exitDrift
		case !result.Match:
			fmt.Fprintf(a.stdout, "drift %s: persisted %s, compiled %s\n", loc, result.PersistedHash, result.Digest)
			return exitDrift
		}
		fmt.Fprintf(a.stdout, "up to date %s %s\n", loc, result.Digest)
		return exitOK
	}

	digest, err := store.Write(ctx, loc, doc)
	if err != nil {
		a.logger.Error("write workflow document failed", "location", loc.String(), "error", err)
		return exitFailure
	}
	a.logger.Info("workflow compiled", "pipeline", doc.Metadata.Name, "steps", len(doc.Steps), "location", loc.String())
	fmt.Fprintf(a.stdout, "%s %s\n", digest, loc)
	return exitOK
}

func (a *app) validate(args []string) int {
	fs := a.flagSet("validate")
	root := fs.String("root", ".", "directory to search")
	pattern := fs.String("pattern", definition.DefaultPattern, "definition file glob")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	files, err := definition.Discover(*root, *pattern)
	if err != nil {
		a.logger.Error("discover definitions failed", "error", err)
		return exitUsage
	}
	if len(files) == 0 {
		a.logger.Warn("no pipeline definitions found", "root", *root, "pattern", *pattern)
		return exitOK
	}

	code := exitOK
	for _, file := range files {
		if _, c := a.loadDocument(file); c != exitOK {
			fmt.Fprintf(a.stdout, "invalid %s\n", file)
			code = c
			continue
		}
		fmt.Fprintf(a.stdout, "ok %s\n", file)
	}
	return code
}

func (a *app) submit(ctx context.Context, args []string, wait bool) int {
	name := "submit"
	if wait {
		name = "run"
	}
	fs := a.flagSet(name)
	file := fs.String("f", defaultDefinition, "pipeline definition file")
	dryRun := fs.Bool("dry-run", false, "simulate the execution service in process")
	reqID := fs.String("request-id", "", "X-Request-Id for correlation (generated when empty)")
	var params paramFlags
	fs.Var(&params, "param", "parameter override name=value (repeatable)")
	interval := fs.Duration("interval", a.cfg.Monitor.Interval, "poll interval")
	maxElapsed := fs.Duration("max-elapsed", a.cfg.Monitor.MaxElapsed, "give up waiting after this long")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage
	}

	doc, code := a.loadDocument(*file)
	if code != exitOK {
		return code
	}
	overrides, err := params.overrides(doc)
	if err != nil {
		a.logger.Error("invalid parameter override", "error", err)
		return exitUsage
	}

	ctx = requestid.WithContext(ctx, *reqID)
	ctx = requestid.WithContext(ctx, requestid.Ensure(ctx))
	a.logger = a.logger.With("request_id", requestid.FromContext(ctx))

	svc, err := a.service(ctx, *dryRun)
	if err != nil {
		a.logger.Error("execution service unavailable", "error", err)
		return exitUsage
	}
	led, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		a.logger.Error("run ledger unavailable", "error", err)
		return exitFailure
	}
	defer closeLedger()

	opts := submit.Options{
		RunNameTemplate: a.cfg.RunNameTemplate,
		ExperimentID:    a.cfg.ExperimentID,
		Logger:          a.logger,
	}
	if led != nil {
		opts.Recorder = led.runs
	}
	submitter, err := submit.New(svc, opts)
	if err != nil {
		a.logger.Error("invalid submit configuration", "error", err)
		return exitUsage
	}
	handle, err := submitter.Submit(ctx, doc, overrides)
	if err != nil {
		a.logger.Error("submit failed", "pipeline", doc.Metadata.Name, "error", err)
		return exitSubmitFailed
	}
	fmt.Fprintf(a.stdout, "run_id=%s run_name=%s document_id=%s\n", handle.RunID, handle.RunName, handle.DocumentID)
	a.audit(ctx, led, auditlog.ActionRunSubmit, handle.RunID, map[string]any{
		"pipeline":    handle.PipelineName,
		"run_name":    handle.RunName,
		"document_id": handle.DocumentID,
		"dry_run":     *dryRun,
	})
	if !wait {
		return exitOK
	}

	monOpts := []monitor.Option{monitor.WithLogger(a.logger)}
	if led != nil {
		monOpts = append(monOpts, monitor.WithObserver(led.runs))
	}
	mon, err := monitor.New(svc, monitor.Config{Interval: *interval, MaxElapsed: *maxElapsed}, monOpts...)
	if err != nil {
		a.logger.Error("invalid monitor configuration", "error", err)
		return exitUsage
	}
	outcome, err := mon.Watch(ctx, handle)
	if err != nil {
		a.logger.Error("monitor failed", "run_id", handle.RunID, "error", err)
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "run_id=%s outcome=%s status=%s polls=%d elapsed=%s\n",
		handle.RunID, outcome.Kind, outcome.Status, outcome.Polls, outcome.Elapsed)
	a.audit(context.WithoutCancel(ctx), led, auditlog.ActionRunFinish, handle.RunID, map[string]any{
		"outcome":       string(outcome.Kind),
		"status":        string(outcome.Status),
		"polls":         outcome.Polls,
		"unknown_polls": outcome.UnknownPolls,
		"elapsed_ms":    outcome.Elapsed.Milliseconds(),
	})
	return outcomeExitCode(outcome)
}

func (a *app) status(ctx context.Context, args []string) int {
	fs := a.flagSet("status")
	runID := fs.String("run-id", "", "run id to query")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(a.stderr, "-run-id is required")
		return exitUsage
	}
	svc, err := a.service(ctx, false)
	if err != nil {
		a.logger.Error("execution service unavailable", "error", err)
		return exitUsage
	}
	raw, err := svc.GetRunStatus(ctx, *runID)
	if err != nil {
		a.logger.Error("status request failed", "run_id", *runID, "error", err)
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "run_id=%s status=%s raw=%q\n", *runID, domain.ClassifyRunStatus(raw), raw)
	return exitOK
}

func (a *app) history(ctx context.Context, args []string) int {
	fs := a.flagSet("history")
	runID := fs.String("run-id", "", "run id to show")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(a.stderr, "-run-id is required")
		return exitUsage
	}
	if !a.cfg.Database.Enabled() {
		fmt.Fprintln(a.stderr, "PIPELINECTL_DATABASE_URL is required for history")
		return exitUsage
	}
	led, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		a.logger.Error("run ledger unavailable", "error", err)
		return exitFailure
	}
	defer closeLedger()

	record, err := led.runs.GetRun(ctx, *runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fmt.Fprintf(a.stderr, "run %s not found in ledger\n", *runID)
			return exitFailure
		}
		a.logger.Error("read run failed", "run_id", *runID, "error", err)
		return exitFailure
	}
	events, err := led.runs.ListStatusEvents(ctx, *runID)
	if err != nil {
		a.logger.Error("read status events failed", "run_id", *runID, "error", err)
		return exitFailure
	}
	fmt.Fprintf(a.stdout, "run_id=%s run_name=%s pipeline=%s document_id=%s status=%s submitted_at=%s\n",
		record.RunID, record.RunName, record.PipelineName, record.DocumentID, record.Status,
		record.SubmittedAt.Format(time.RFC3339))
	for _, event := range events {
		fmt.Fprintf(a.stdout, "%s %s -> %s\n", event.ObservedAt.Format(time.RFC3339), event.From, event.To)
	}
	return exitOK
}

// loadDocument reads, builds and compiles a definition file.
func (a *app) loadDocument(path string) (domain.WorkflowDocument, int) {
	spec, err := definition.Load(path)
	if err != nil {
		a.logger.Error("load definition failed", "file", path, "error", err)
		if errors.Is(err, definition.ErrInvalidDefinition) {
			return domain.WorkflowDocument{}, exitInvalidPipeline
		}
		return domain.WorkflowDocument{}, exitUsage
	}
	g, err := graph.Build(spec)
	if err != nil {
		var gerr *graph.Error
		if errors.As(err, &gerr) {
			for _, issue := range gerr.Issues {
				a.logger.Error("pipeline graph issue", "file", path, "where", issue.Where, "kind", issue.Kind.Error(), "detail", issue.Detail)
			}
		}
		return domain.WorkflowDocument{}, exitInvalidPipeline
	}
	doc, err := compile.Compile(g, spec.Metadata)
	if err != nil {
		a.logger.Error("compile failed", "file", path, "error", err)
		return domain.WorkflowDocument{}, exitInvalidPipeline
	}
	return doc, exitOK
}

func (a *app) service(ctx context.Context, dryRun bool) (service.Service, error) {
	if dryRun {
		a.logger.Info("using in-process dry-run execution service")
		return dryrun.New(), nil
	}
	base := &http.Client{Timeout: a.cfg.RequestTimeout}
	client, err := auth.HTTPClient(ctx, a.cfg.Auth, base)
	if err != nil {
		return nil, err
	}
	return kfp.New(ctx, a.cfg.Host, client, a.logger)
}

func (a *app) workflowStore(loc workflowstore.Location) (*workflowstore.Store, error) {
	if !loc.Remote() {
		return workflowstore.New(nil), nil
	}
	cfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	objects, err := objectstore.NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	return workflowstore.New(objects), nil
}

// ledger bundles the run store and the audit trail. A nil *ledger means no
// database is configured.
type ledger struct {
	db   *sql.DB
	runs *repopg.RunStore
}

func (a *app) openLedger(ctx context.Context) (*ledger, func(), error) {
	if !a.cfg.Database.Enabled() {
		return nil, func() {}, nil
	}
	db, err := postgres.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := repopg.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return &ledger{db: db, runs: repopg.NewRunStore(db)}, func() { _ = db.Close() }, nil
}

// audit appends an audit event. Failures are logged only.
func (a *app) audit(ctx context.Context, l *ledger, action, runID string, payload map[string]any) {
	if l == nil {
		return
	}
	_, err := auditlog.Insert(ctx, l.db, auditlog.Event{
		Actor:        a.cfg.Actor,
		Action:       action,
		ResourceType: auditlog.ResourcePipelineRun,
		ResourceID:   runID,
		RequestID:    requestid.FromContext(ctx),
		Payload:      payload,
	})
	if err != nil {
		a.logger.Warn("audit insert failed", "action", action, "run_id", runID, "error", err)
	}
}

func outcomeExitCode(outcome monitor.Outcome) int {
	switch outcome.Kind {
	case monitor.OutcomeTimeout:
		return exitTimeout
	case monitor.OutcomeCancelled:
		return exitCancelled
	}
	if outcome.Status == domain.RunStatusSucceeded {
		return exitOK
	}
	return exitRunFailed
}
