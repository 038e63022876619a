package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	ledgerrepo "github.com/oshokin/crx-release/internal/repository/ledger"
)

// Decision is the outcome of a version check.
type Decision struct {
	// Next is the version to publish; zero when Unchanged.
	Next release.Version
	// Current is the stored record, nil for a component never published.
	Current *release.Record
	// Unchanged reports that the content hash matches the stored one.
	Unchanged bool
}

// Ledger wraps a record repository with version decisions.
// Callers must not process the same identity concurrently.
type Ledger struct {
	// repo persists records.
	repo ledgerrepo.Repository
	// mu guards ensured.
	mu sync.Mutex
	// ensured is set once the backing table is known to exist.
	ensured bool
}

// New creates a ledger over repo.
func New(repo ledgerrepo.Repository) *Ledger {
	return &Ledger{repo: repo}
}

// NextVersion decides what to publish for id given the hash of its new content.
// A component without a record starts at release.FirstVersion.
func (l *Ledger) NextVersion(ctx context.Context, id release.Identity, contentHash release.ContentHash) (*Decision, error) {
	current, err := l.Current(ctx, id)
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			logger.InfoKV(ctx, "No ledger record, starting from the first version", "version", release.FirstVersion.String())

			return &Decision{Next: release.FirstVersion}, nil
		}

		return nil, err
	}

	if current.StoredContentHash() == contentHash {
		logger.InfoKV(ctx, "Content unchanged", "version", current.Version.String())

		return &Decision{Current: current, Unchanged: true}, nil
	}

	next := current.Version.Next()

	logger.InfoKV(ctx, "Content changed", "current", current.Version.String(), "next", next.String())

	return &Decision{Next: next, Current: current}, nil
}

// Current returns the stored record of id or an error wrapping ledger ErrNotFound.
func (l *Ledger) Current(ctx context.Context, id release.Identity) (*release.Record, error) {
	if err := l.ensure(ctx); err != nil {
		return nil, err
	}

	current, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load record of %s: %w", id, err)
	}

	return current, nil
}

// RecordPublish overwrites the record of rec.ID.
func (l *Ledger) RecordPublish(ctx context.Context, rec *release.Record) error {
	if err := l.ensure(ctx); err != nil {
		return err
	}

	if err := l.repo.Put(ctx, rec); err != nil {
		return fmt.Errorf("store record of %s: %w", rec.ID, err)
	}

	logger.InfoKV(ctx, "Recorded release", "version", rec.Version.String(), "patches", len(rec.Patches))

	return nil
}

// ensure creates the backing table once. A failed attempt is retried on the next call.
func (l *Ledger) ensure(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ensured {
		return nil
	}

	if err := l.repo.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure ledger table: %w", err)
	}

	l.ensured = true

	return nil
}
