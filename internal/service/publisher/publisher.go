package publisher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/multierr"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	"github.com/oshokin/crx-release/internal/repository/objectstore"
)

// Publisher writes release objects into a Store.
type Publisher struct {
	// store receives artifacts and patches.
	store objectstore.Store
	// acl is the canned ACL applied to every upload.
	acl string
	// latestKey and latestValue form the marker tag of the current artifact.
	latestKey   string
	latestValue string
}

// New creates a publisher applying acl to uploads and the configured latest marker.
func New(store objectstore.Store, acl string, cfg config.PublishConfig) *Publisher {
	p := &Publisher{
		store:       store,
		acl:         acl,
		latestKey:   cfg.LatestTagKey,
		latestValue: cfg.LatestTagValue,
	}

	if p.latestKey == "" {
		p.latestKey = config.DefaultLatestTagKey
	}

	if p.latestValue == "" {
		p.latestValue = config.DefaultLatestTagValue
	}

	return p
}

// PublishArtifact uploads the packed artifact of id at version v and returns its key.
func (p *Publisher) PublishArtifact(ctx context.Context, id release.Identity, v release.Version, body []byte) (string, error) {
	key := release.ArtifactKey(id, v)

	err := p.store.Put(ctx, key, body, objectstore.PutOptions{
		ContentType: release.ArtifactContentType,
		ACL:         p.acl,
	})
	if err != nil {
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	logger.InfoKV(ctx, "Published artifact", "key", key, "bytes", len(body))

	return key, nil
}

// PublishPatches uploads every patch of manifest from patchDir into the namespace
// of contentHash. All patches are attempted; failures are combined into one error
// wrapping release.ErrPartialBatch.
func (p *Publisher) PublishPatches(
	ctx context.Context,
	id release.Identity,
	contentHash release.ContentHash,
	patchDir string,
	manifest release.PatchManifest,
) error {
	names := make([]string, 0, len(manifest))
	for previous := range manifest {
		names = append(names, previous)
	}

	sort.Strings(names)

	var (
		errs      error
		published int
	)

	for _, previous := range names {
		entry := manifest[previous]
		key := release.PatchKey(id, contentHash, entry.Name)

		if err := p.publishPatch(ctx, key, filepath.Join(patchDir, entry.Name)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("patch %s: %w", entry.Name, err))
			continue
		}

		published++
	}

	if errs != nil {
		logger.ErrorKV(ctx, "Some patches were not published",
			"published", published, "failed", len(multierr.Errors(errs)))

		return fmt.Errorf("%w: %w", release.ErrPartialBatch, errs)
	}

	logger.InfoKV(ctx, "Published patches", "count", published)

	return nil
}

func (p *Publisher) publishPatch(ctx context.Context, key, path string) error {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	return p.store.Put(ctx, key, body, objectstore.PutOptions{
		ContentType: release.PatchContentType,
		ACL:         p.acl,
	})
}

// UpdateLatestTag marks the artifact of version as the latest one for the component
// called name and demotes the artifact of previous, if there is one.
// A previous artifact that does not exist is left alone.
func (p *Publisher) UpdateLatestTag(
	ctx context.Context,
	id release.Identity,
	name string,
	version, previous release.Version,
) error {
	key := release.ArtifactKey(id, version)

	err := p.store.PutTags(ctx, key, []objectstore.Tag{
		{Key: name, Value: version.String()},
		{Key: p.latestKey, Value: p.latestValue},
	})
	if err != nil {
		return fmt.Errorf("tag latest %s: %w", key, err)
	}

	if previous.IsZero() || previous == version {
		return nil
	}

	previousKey := release.ArtifactKey(id, previous)

	exists, err := p.store.Exists(ctx, previousKey)
	if err != nil {
		return fmt.Errorf("check previous artifact: %w", err)
	}

	if !exists {
		logger.DebugKV(ctx, "Previous artifact is absent, nothing to demote", "key", previousKey)
		return nil
	}

	if err = p.store.PutTags(ctx, previousKey, []objectstore.Tag{{Key: name, Value: previous.String()}}); err != nil {
		return fmt.Errorf("demote %s: %w", previousKey, err)
	}

	logger.InfoKV(ctx, "Moved latest tag", "from", previous.String(), "to", version.String())

	return nil
}

// IsLatest reports whether the artifact of id at version exists and carries the latest marker.
func (p *Publisher) IsLatest(
	ctx context.Context,
	id release.Identity,
	version release.Version,
) (exists, latest bool, err error) {
	key := release.ArtifactKey(id, version)

	exists, err = p.store.Exists(ctx, key)
	if err != nil || !exists {
		return exists, false, err
	}

	tags, err := p.store.Tags(ctx, key)
	if err != nil {
		return true, false, fmt.Errorf("read tags of %s: %w", key, err)
	}

	value, ok := objectstore.TagValue(tags, p.latestKey)

	return true, ok && value == p.latestValue, nil
}
