package objectstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// Tag is a single key/value object tag.
type Tag struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// PutOptions describes how an object is written.
type PutOptions struct {
	// ContentType is the MIME type stored with the object.
	ContentType string
	// ACL is a canned access grant such as public-read; backends without ACLs ignore it.
	ACL string
}

// Store is the object storage capability.
type Store interface {
	// Get returns the object body or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the object, replacing an existing one.
	Put(ctx context.Context, key string, body []byte, opts PutOptions) error
	// Exists reports whether the object exists.
	Exists(ctx context.Context, key string) (bool, error)
	// PutTags replaces the whole tag set of an existing object.
	PutTags(ctx context.Context, key string, tags []Tag) error
	// Tags returns the tag set of an existing object.
	Tags(ctx context.Context, key string) ([]Tag, error)
}

// ErrNotFound is returned when an object does not exist.
//
//nolint:gochecknoglobals // Sentinel error.
var ErrNotFound = fmt.Errorf("object %w", release.ErrNotFound)

// TagValue returns the value of key in tags and whether it was present.
func TagValue(tags []Tag, key string) (string, bool) {
	for _, tag := range tags {
		if tag.Key == key {
			return tag.Value, true
		}
	}

	return "", false
}

// sortTags orders tags by key so stored tag sets compare deterministically.
func sortTags(tags []Tag) []Tag {
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})

	return sorted
}
