package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/crx-release/internal/crx"
	"github.com/oshokin/crx-release/internal/domain/release"
)

// errVersionMismatch indicates the packed descriptor does not carry the decided version.
var errVersionMismatch = errors.New("packed version differs from the decided version")

// Publication describes a successfully uploaded release.
type Publication struct {
	// ID is the component identity.
	ID release.Identity
	// Version is the version decided for this run.
	Version release.Version
	// ArtifactPath is the packed artifact that was uploaded.
	ArtifactPath string
	// Manifest is the parsed descriptor of ArtifactPath; read from the artifact when nil.
	Manifest *crx.Manifest
	// ContentHash is the hash of the input the artifact was built from.
	ContentHash release.ContentHash
	// Title overrides the descriptor title when set.
	Title string
	// Disabled hides the component from clients.
	Disabled bool
	// Patches lists the uploaded deltas.
	Patches release.PatchManifest
}

// Record reads the packed descriptor, builds the ledger record and stores it.
func (l *Ledger) Record(ctx context.Context, pub *Publication) (*release.Record, error) {
	manifest := pub.Manifest
	if manifest == nil {
		var err error

		manifest, err = crx.ReadManifest(pub.ArtifactPath)
		if err != nil {
			return nil, fmt.Errorf("read packed descriptor: %w", err)
		}
	}

	if err := VerifyDescriptor(manifest, pub.Version); err != nil {
		return nil, err
	}

	digest, err := release.HashFile(pub.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("hash artifact: %w", err)
	}

	title := pub.Title
	if title == "" {
		title = manifest.Title
	}

	rec := &release.Record{
		ID:          pub.ID,
		Version:     pub.Version,
		SHA256:      digest,
		ContentHash: pub.ContentHash,
		Title:       title,
		Disabled:    pub.Disabled,
		Patches:     pub.Patches.Clone(),
	}

	if err = l.RecordPublish(ctx, rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// VerifyDescriptor fails unless the packed descriptor declares version v.
func VerifyDescriptor(manifest *crx.Manifest, v release.Version) error {
	packed, err := release.ParseVersion(manifest.Version)
	if err != nil {
		return fmt.Errorf("packed descriptor: %w", err)
	}

	if packed != v {
		return fmt.Errorf("%w: %s != %s", errVersionMismatch, packed, v)
	}

	return nil
}
