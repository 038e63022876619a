// Package release contains the core domain types of the release pipeline.
//
// It defines the component Identity derived from a signing key, the three-part
// Version with its trailing-segment arithmetic, content hashing helpers, the
// ledger Record with its PatchManifest, and the storage key layout shared by
// the publisher and the delta generator.
package release
