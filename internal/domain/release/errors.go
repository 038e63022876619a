package release

import "errors"

var (
	// ErrConfiguration marks a missing or invalid required input, such as an absent
	// signing key or packer binary. It is returned before any network or storage effect.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransientNetwork marks a network fetch that kept failing after all retries.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrNotFound marks an expected object, record or table that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPartialBatch marks a batch where some members failed while others succeeded.
	ErrPartialBatch = errors.New("partial batch failure")
	// ErrPersistenceInconsistency marks a divergence between storage and the ledger.
	ErrPersistenceInconsistency = errors.New("storage and ledger are inconsistent")
)
