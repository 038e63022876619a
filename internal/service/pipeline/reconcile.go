package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	ledgerrepo "github.com/oshokin/crx-release/internal/repository/ledger"
)

var (
	errArtifactMissing = errors.New("ledger version has no artifact in storage")
	errNotLatest       = errors.New("ledger version does not carry the latest marker")
	errStaleLatest     = errors.New("previous version still carries the latest marker")
)

// Reconcile compares the ledger record of every component with storage.
// A ledger version that is not the marked latest artifact is drift; with fix
// the latest tags are re-applied. A missing artifact is reported and never repaired.
func (o *Orchestrator) Reconcile(ctx context.Context, workSet *WorkSet, only []string, fix bool) (*Report, error) {
	targets, results, err := resolveTargets(workSet, only)
	if err != nil {
		return nil, err
	}

	var group errgroup.Group

	group.SetLimit(o.concurrency)

	for i := range targets {
		if results[i].Outcome == OutcomeFailed {
			continue
		}

		group.Go(func() error {
			results[i] = o.reconcileOne(ctx, targets[i], results[i].ID, fix)

			return nil
		})
	}

	_ = group.Wait()

	report := &Report{Results: results}

	logger.InfoKV(ctx, "Reconciliation finished",
		"consistent", report.Count(OutcomeConsistent),
		"repaired", report.Count(OutcomeRepaired),
		"drift", report.Count(OutcomeDrift),
		"failed", report.Count(OutcomeFailed))

	return report, nil
}

func (o *Orchestrator) reconcileOne(ctx context.Context, component Component, id release.Identity, fix bool) Result {
	ctx = logger.WithKV(ctx, "component", component.Name, "id", id.String())
	result := Result{Name: component.Name, ID: id}

	current, err := o.deps.Ledger.Current(ctx, id)
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			logger.Info(ctx, "Component was never published")

			result.Outcome = OutcomeConsistent

			return result
		}

		result.Outcome = OutcomeFailed
		result.Err = err

		return result
	}

	result.Version = current.Version
	result.Patches = len(current.Patches)

	drift := o.findDrift(ctx, id, current.Version)

	switch {
	case drift == nil:
		result.Outcome = OutcomeConsistent
	case !isDrift(drift):
		result.Outcome = OutcomeFailed
		result.Err = drift
	case errors.Is(drift, errArtifactMissing) || !fix:
		logger.WarnKV(ctx, "Storage and ledger diverge", "error", drift)

		result.Outcome = OutcomeDrift
		result.Err = fmt.Errorf("%w: %w", release.ErrPersistenceInconsistency, drift)
	default:
		if err = o.repair(ctx, component.Name, id, current.Version); err != nil {
			result.Outcome = OutcomeFailed
			result.Err = err

			return result
		}

		logger.InfoKV(ctx, "Re-applied latest tags", "version", current.Version.String())

		result.Outcome = OutcomeRepaired
	}

	return result
}

// findDrift returns nil when version is the only marked latest artifact among
// it and its predecessor, a drift error otherwise, or a storage failure.
func (o *Orchestrator) findDrift(ctx context.Context, id release.Identity, version release.Version) error {
	exists, latest, err := o.deps.Publisher.IsLatest(ctx, id, version)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s", errArtifactMissing, release.ArtifactKey(id, version))
	}

	if !latest {
		return fmt.Errorf("%w: %s", errNotLatest, version)
	}

	for _, previous := range version.Previous(1) {
		_, previousLatest, previousErr := o.deps.Publisher.IsLatest(ctx, id, previous)
		if previousErr != nil {
			return previousErr
		}

		if previousLatest {
			return fmt.Errorf("%w: %s", errStaleLatest, previous)
		}
	}

	return nil
}

func isDrift(err error) bool {
	return errors.Is(err, errArtifactMissing) || errors.Is(err, errNotLatest) || errors.Is(err, errStaleLatest)
}

func (o *Orchestrator) repair(ctx context.Context, name string, id release.Identity, version release.Version) error {
	var previous release.Version
	if candidates := version.Previous(1); len(candidates) > 0 {
		previous = candidates[0]
	}

	if err := o.deps.Publisher.UpdateLatestTag(ctx, id, name, version, previous); err != nil {
		return fmt.Errorf("repair latest tag: %w", err)
	}

	return nil
}
