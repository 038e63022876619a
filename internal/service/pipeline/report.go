package pipeline

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// Outcome is the terminal state of one component run.
type Outcome string

const (
	// OutcomeNoChange means the content hash matched the ledger and nothing was uploaded.
	OutcomeNoChange Outcome = "no-change"
	// OutcomePublished means the run reached the ledger write.
	OutcomePublished Outcome = "published"
	// OutcomeFailed means the run stopped with an error.
	OutcomeFailed Outcome = "failed"
	// OutcomeConsistent means reconciliation found storage and ledger in agreement.
	OutcomeConsistent Outcome = "consistent"
	// OutcomeRepaired means reconciliation re-applied the latest tags.
	OutcomeRepaired Outcome = "repaired"
	// OutcomeDrift means reconciliation found a divergence it did not repair.
	OutcomeDrift Outcome = "drift"
)

// Result describes what happened to one component.
type Result struct {
	// Name is the component name from the work set.
	Name string
	// ID is the component identity, empty if it could not be derived.
	ID release.Identity
	// Outcome is the terminal state.
	Outcome Outcome
	// Version is the published or current version.
	Version release.Version
	// Patches is the number of published patches.
	Patches int
	// Err holds the failure of a failed or drifting component.
	Err error
}

// Report collects results in work set order.
type Report struct {
	Results []Result
}

// Count returns how many results have the given outcome.
func (r *Report) Count(outcome Outcome) int {
	count := 0

	for _, result := range r.Results {
		if result.Outcome == outcome {
			count++
		}
	}

	return count
}

// Err combines the errors of every failed or drifting component, or returns nil.
func (r *Report) Err() error {
	var errs error

	for _, result := range r.Results {
		if result.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", result.Name, result.Err))
		}
	}

	return errs
}
