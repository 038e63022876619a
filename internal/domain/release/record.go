package release

import "maps"

// PatchEntry describes one binary delta that upgrades a previous artifact to the current one.
type PatchEntry struct {
	// Name is the patch file name relative to the patch namespace.
	Name string
	// Hash is the hex digest of the patch file.
	Hash ContentHash
	// Size is the patch size in bytes.
	Size int64
}

// PatchManifest maps a previous artifact base name to the patch produced from it.
type PatchManifest map[string]PatchEntry

// Clone returns a copy of the manifest.
func (m PatchManifest) Clone() PatchManifest {
	if m == nil {
		return nil
	}

	return maps.Clone(m)
}

// Record is the current published state of one component.
type Record struct {
	// ID is the component identity and the ledger key.
	ID Identity
	// Version is the latest published version.
	Version Version
	// SHA256 is the digest of the published artifact, used by clients to verify downloads.
	SHA256 ContentHash
	// ContentHash is the digest of the input the artifact was built from.
	ContentHash ContentHash
	// Title is the human-readable component name.
	Title string
	// Disabled hides the component from clients without deleting it.
	Disabled bool
	// Patches lists deltas from previous versions to Version.
	Patches PatchManifest
}

// StoredContentHash returns the hash used for change detection.
// Records written before ContentHash existed fall back to SHA256.
func (r *Record) StoredContentHash() ContentHash {
	if r.ContentHash != "" {
		return r.ContentHash
	}

	return r.SHA256
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.Patches = r.Patches.Clone()

	return &cloned
}
