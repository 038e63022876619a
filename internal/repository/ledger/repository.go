package ledger

import (
	"context"
	"fmt"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// Repository defines persistence operations for ledger records.
type Repository interface {
	// EnsureTable creates the backing table if it does not exist yet. It is idempotent.
	EnsureTable(ctx context.Context) error
	// Get returns the record of id or ErrNotFound.
	Get(ctx context.Context, id release.Identity) (*release.Record, error)
	// Put overwrites the record of rec.ID.
	Put(ctx context.Context, rec *release.Record) error
}

// ErrNotFound is returned when no record exists for an identity.
//
//nolint:gochecknoglobals // Sentinel error.
var ErrNotFound = fmt.Errorf("ledger record %w", release.ErrNotFound)

// patchItem is the stored form of one patch manifest entry shared by both backends.
type patchItem struct {
	Name string `dynamodbav:"namediff" yaml:"namediff"`
	Hash string `dynamodbav:"hashdiff" yaml:"hashdiff"`
	Size int64  `dynamodbav:"sizediff" yaml:"sizediff"`
}

// item is the stored form of a release.Record shared by both backends.
type item struct {
	ID          string               `dynamodbav:"ID"                    yaml:"id"`
	SHA256      string               `dynamodbav:"SHA256"                yaml:"sha256"`
	Version     string               `dynamodbav:"Version"               yaml:"version"`
	Title       string               `dynamodbav:"Title"                 yaml:"title"`
	Disabled    bool                 `dynamodbav:"Disabled"              yaml:"disabled"`
	ContentHash string               `dynamodbav:"ContentHash,omitempty" yaml:"content_hash,omitempty"`
	PatchList   map[string]patchItem `dynamodbav:"PatchList,omitempty"   yaml:"patch_list,omitempty"`
}

// toItem converts the domain record into its stored form.
func toItem(rec *release.Record) *item {
	var patches map[string]patchItem

	if len(rec.Patches) > 0 {
		patches = make(map[string]patchItem, len(rec.Patches))
		for name, entry := range rec.Patches {
			patches[name] = patchItem{
				Name: entry.Name,
				Hash: entry.Hash.String(),
				Size: entry.Size,
			}
		}
	}

	return &item{
		ID:          rec.ID.String(),
		SHA256:      rec.SHA256.String(),
		Version:     rec.Version.String(),
		Title:       rec.Title,
		Disabled:    rec.Disabled,
		ContentHash: rec.ContentHash.String(),
		PatchList:   patches,
	}
}

// fromItem converts a stored item into the domain record.
func fromItem(stored *item) (*release.Record, error) {
	version, err := release.ParseVersion(stored.Version)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", stored.ID, err)
	}

	var patches release.PatchManifest

	if len(stored.PatchList) > 0 {
		patches = make(release.PatchManifest, len(stored.PatchList))
		for name, entry := range stored.PatchList {
			patches[name] = release.PatchEntry{
				Name: entry.Name,
				Hash: release.ContentHash(entry.Hash),
				Size: entry.Size,
			}
		}
	}

	return &release.Record{
		ID:          release.Identity(stored.ID),
		Version:     version,
		SHA256:      release.ContentHash(stored.SHA256),
		ContentHash: release.ContentHash(stored.ContentHash),
		Title:       stored.Title,
		Disabled:    stored.Disabled,
		Patches:     patches,
	}, nil
}
