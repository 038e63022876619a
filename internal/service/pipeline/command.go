package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	"github.com/oshokin/crx-release/internal/service/lock"
)

// ErrComponentsFailed is returned when at least one component did not finish cleanly.
var ErrComponentsFailed = errors.New("some components failed")

// Options are inputs accepted by the publish and reconcile entry points.
type Options struct {
	// ConfigPath is the settings file; empty, or an absent default file, reads the environment only.
	ConfigPath string
	// WorkSet is a local path or URL of the work set document.
	WorkSet string
	// Only restricts the run to these component names or identities.
	Only []string
	// Concurrency overrides the configured number of components in flight.
	Concurrency int
	// LogLevel overrides the configured log level.
	LogLevel string
	// Fix makes reconciliation re-apply latest tags.
	Fix bool
}

// runner holds what a single publish or reconcile execution needs.
type runner struct {
	// cfg is the validated configuration.
	cfg *config.Config
	// lock guards the build directory for the duration of the run.
	lock *lock.Lock
	// workSet is the loaded document.
	workSet *WorkSet
	// orchestrator processes the components.
	orchestrator *Orchestrator
}

// Run publishes every changed component of the work set.
func Run(ctx context.Context, opts *Options) error {
	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	ctx = logger.WithName(ctx, "publish")

	defer r.cleanup(ctx)

	report, err := r.orchestrator.Publish(ctx, r.workSet, opts.Only)
	if err != nil {
		return err
	}

	return finish(ctx, report)
}

// Reconcile checks, and with opts.Fix repairs, the latest tags of every component.
func Reconcile(ctx context.Context, opts *Options) error {
	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	ctx = logger.WithName(ctx, "reconcile")

	defer r.cleanup(ctx)

	report, err := r.orchestrator.Reconcile(ctx, r.workSet, opts.Only, opts.Fix)
	if err != nil {
		return err
	}

	return finish(ctx, report)
}

// newRunner loads settings, configures logging, takes the run lock and wires dependencies.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	if opts.Concurrency > 0 {
		cfg.Publish.Concurrency = opts.Concurrency
	}

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, release.ErrConfiguration)
	}

	logger.Configure(level, cfg.LogFormat)

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return nil, err
	}

	workSet, err := LoadWorkSet(ctx, deps.Fetcher, opts.WorkSet)
	if err != nil {
		return nil, err
	}

	held, err := lock.Acquire(ctx, cfg.Build.Dir)
	if err != nil {
		return nil, err
	}

	return &runner{
		cfg:          cfg,
		lock:         held,
		workSet:      workSet,
		orchestrator: NewOrchestrator(deps, cfg.Build.Dir, cfg.Publish.Concurrency),
	}, nil
}

// cleanup releases the run lock.
func (r *runner) cleanup(ctx context.Context) {
	if err := r.lock.Release(); err != nil {
		logger.WarnKV(ctx, "Unable to release the run lock", "error", err)
	}
}

// finish logs every failed component and turns failures into an error.
func finish(ctx context.Context, report *Report) error {
	for _, result := range report.Results {
		if result.Err != nil {
			logger.ErrorKV(ctx, "Component did not finish cleanly",
				"component", result.Name, "outcome", string(result.Outcome), "error", result.Err)
		}
	}

	if err := report.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrComponentsFailed, err)
	}

	return nil
}
