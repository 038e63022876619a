// Package ledger decides component versions from the stored release records
// and writes the metadata of every successful publication.
package ledger
