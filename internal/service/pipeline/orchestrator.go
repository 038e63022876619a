package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/crx-release/internal/crx"
	"github.com/oshokin/crx-release/internal/domain/release"
	"github.com/oshokin/crx-release/internal/logger"
	"github.com/oshokin/crx-release/internal/service/delta"
	"github.com/oshokin/crx-release/internal/service/ledger"
	"github.com/oshokin/crx-release/internal/service/packer"
	"github.com/oshokin/crx-release/internal/service/publisher"
)

const (
	downloadDirName = "download"
	unzipDirName    = "unzip"
	stageDirName    = "stage"
	patchesDirName  = "patches"

	dirPermissions  = 0o755
	filePermissions = 0o644
)

var (
	errDuplicateIdentity = errors.New("identity is already used by another component")
	errNotArchive        = errors.New("source is not a crx or zip archive")
)

// Fetcher downloads work sets and remote sources.
type Fetcher interface {
	TextFetcher
	Binary(ctx context.Context, url string) ([]byte, error)
}

// Dependencies are the collaborators of one pipeline run.
type Dependencies struct {
	// Ledger decides versions and records publications.
	Ledger *ledger.Ledger
	// Generator fetches previous artifacts and produces patches.
	Generator *delta.Generator
	// Publisher uploads artifacts and patches and moves the latest tag.
	Publisher *publisher.Publisher
	// Packer signs staged directories.
	Packer packer.Packer
	// Fetcher downloads remote sources.
	Fetcher Fetcher
}

// Orchestrator runs components concurrently with per-component isolation.
type Orchestrator struct {
	// deps are shared by every component run; none of them keeps per-component state.
	deps *Dependencies
	// buildDir is the root of scratch directories.
	buildDir string
	// concurrency bounds the number of components in flight.
	concurrency int
}

// source is the obtained input of one component.
type source struct {
	// archivePath is set for archive sources.
	archivePath string
	// dir is set for directory sources.
	dir string
	// hash identifies the input content.
	hash release.ContentHash
}

// NewOrchestrator creates an orchestrator working under buildDir.
func NewOrchestrator(deps *Dependencies, buildDir string, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Orchestrator{
		deps:        deps,
		buildDir:    buildDir,
		concurrency: concurrency,
	}
}

// Publish processes every component of workSet, optionally restricted to only.
// A failing component is reported in its Result and never stops the others.
// A packer that cannot run fails the whole call before anything is fetched or stored.
func (o *Orchestrator) Publish(ctx context.Context, workSet *WorkSet, only []string) (*Report, error) {
	if err := o.deps.Packer.Check(); err != nil {
		return nil, fmt.Errorf("check packer: %w", err)
	}

	targets, results, err := resolveTargets(workSet, only)
	if err != nil {
		return nil, err
	}

	var group errgroup.Group

	group.SetLimit(o.concurrency)

	for i := range targets {
		if results[i].Outcome == OutcomeFailed {
			continue
		}

		group.Go(func() error {
			results[i] = o.publishOne(ctx, targets[i], results[i].ID)

			// Never cancel sibling components.
			return nil
		})
	}

	_ = group.Wait()

	report := &Report{Results: results}

	logger.InfoKV(ctx, "Publish finished",
		"published", report.Count(OutcomePublished),
		"unchanged", report.Count(OutcomeNoChange),
		"failed", report.Count(OutcomeFailed))

	return report, nil
}

// resolveTargets derives identities, applies the filter and rejects identities
// shared by several components. Components that cannot run get a failed result.
func resolveTargets(workSet *WorkSet, only []string) ([]Component, []Result, error) {
	identities := make(map[string]release.Identity, len(workSet.Components))
	keyErrors := make(map[string]error)

	for _, component := range workSet.Components {
		id, err := release.IdentityFromKeyFile(component.KeyFile)
		if err != nil {
			keyErrors[component.Name] = err
			continue
		}

		identities[component.Name] = id
	}

	filtered, err := workSet.Filter(only, identities)
	if err != nil {
		return nil, nil, err
	}

	results := make([]Result, len(filtered.Components))
	owners := make(map[release.Identity]string, len(filtered.Components))

	for i, component := range filtered.Components {
		results[i] = Result{Name: component.Name, ID: identities[component.Name]}

		if keyErr, failed := keyErrors[component.Name]; failed {
			results[i].Outcome = OutcomeFailed
			results[i].Err = keyErr

			continue
		}

		if owner, taken := owners[results[i].ID]; taken {
			results[i].Outcome = OutcomeFailed
			results[i].Err = fmt.Errorf("%w: %w: %s", release.ErrConfiguration, errDuplicateIdentity, owner)

			continue
		}

		owners[results[i].ID] = component.Name
	}

	return filtered.Components, results, nil
}

// publishOne drives a single component to NoChange, Published or Failed.
func (o *Orchestrator) publishOne(ctx context.Context, component Component, id release.Identity) Result {
	ctx = logger.WithKV(ctx, "component", component.Name, "id", id.String())
	result := Result{Name: component.Name, ID: id}

	published, err := o.run(ctx, component, id, &result)
	if err != nil {
		logger.ErrorKV(ctx, "Component failed", "error", err)

		result.Outcome = OutcomeFailed
		result.Err = err

		return result
	}

	if !published {
		result.Outcome = OutcomeNoChange
		return result
	}

	result.Outcome = OutcomePublished

	logger.InfoKV(ctx, "Component published", "version", result.Version.String(), "patches", result.Patches)

	return result
}

// run executes the stages in order and reports whether anything was published.
func (o *Orchestrator) run(ctx context.Context, component Component, id release.Identity, result *Result) (bool, error) {
	src, err := o.obtainSource(ctx, component)
	if err != nil {
		return false, err
	}

	decision, err := o.deps.Ledger.NextVersion(ctx, id, src.hash)
	if err != nil {
		return false, fmt.Errorf("decide version: %w", err)
	}

	if decision.Unchanged {
		result.Version = decision.Current.Version
		return false, nil
	}

	next := decision.Next
	result.Version = next
	ctx = logger.WithKV(ctx, "version", next.String())

	contentDir := src.dir
	if src.archivePath != "" {
		contentDir = filepath.Join(o.buildDir, unzipDirName, component.Name)

		if err = crx.Extract(src.archivePath, contentDir); err != nil {
			return false, fmt.Errorf("extract source: %w", err)
		}
	}

	stageDir := filepath.Join(o.buildDir, stageDirName, id.String())

	if _, err = crx.Stage(contentDir, stageDir, next); err != nil {
		return false, fmt.Errorf("stage: %w", err)
	}

	artifact, err := o.deps.Packer.Pack(ctx, stageDir, component.KeyFile)
	if err != nil {
		return false, fmt.Errorf("pack: %w", err)
	}

	descriptor, err := crx.ReadManifest(artifact)
	if err != nil {
		return false, fmt.Errorf("read packed descriptor: %w", err)
	}

	if err = ledger.VerifyDescriptor(descriptor, next); err != nil {
		return false, err
	}

	previousDir, err := o.deps.Generator.FetchPrevious(ctx, id, next)
	if err != nil {
		return false, fmt.Errorf("fetch previous artifacts: %w", err)
	}

	patchDir := filepath.Join(o.buildDir, patchesDirName, id.String(), src.hash.String())

	patches, err := o.deps.Generator.Generate(ctx, artifact, previousDir, patchDir)
	if err != nil {
		return false, fmt.Errorf("generate patches: %w", err)
	}

	body, err := os.ReadFile(filepath.Clean(artifact))
	if err != nil {
		return false, fmt.Errorf("read artifact: %w", err)
	}

	if _, err = o.deps.Publisher.PublishArtifact(ctx, id, next, body); err != nil {
		return false, err
	}

	if err = o.deps.Publisher.PublishPatches(ctx, id, src.hash, patchDir, patches); err != nil {
		return false, err
	}

	var previous release.Version
	if decision.Current != nil {
		previous = decision.Current.Version
	}

	if err = o.deps.Publisher.UpdateLatestTag(ctx, id, component.Name, next, previous); err != nil {
		return false, fmt.Errorf("%w: %w", release.ErrPersistenceInconsistency, err)
	}

	_, err = o.deps.Ledger.Record(ctx, &ledger.Publication{
		ID:           id,
		Version:      next,
		ArtifactPath: artifact,
		Manifest:     descriptor,
		ContentHash:  src.hash,
		Title:        component.Title,
		Disabled:     component.Disabled,
		Patches:      patches,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", release.ErrPersistenceInconsistency, err)
	}

	result.Patches = len(patches)

	return true, nil
}

// obtainSource downloads or opens the component input and hashes it.
func (o *Orchestrator) obtainSource(ctx context.Context, component Component) (*source, error) {
	if component.IsRemote() {
		body, err := o.deps.Fetcher.Binary(ctx, component.Source)
		if err != nil {
			return nil, err
		}

		if !crx.IsArchive(body) {
			return nil, fmt.Errorf("%s: %w", component.Source, errNotArchive)
		}

		archivePath := filepath.Join(o.buildDir, downloadDirName, component.Name+remoteExtension(component.Source))
		if err = os.MkdirAll(filepath.Dir(archivePath), dirPermissions); err != nil {
			return nil, fmt.Errorf("create download directory: %w", err)
		}

		if err = os.WriteFile(archivePath, body, filePermissions); err != nil {
			return nil, fmt.Errorf("save download: %w", err)
		}

		return &source{archivePath: archivePath, hash: release.HashBytes(body)}, nil
	}

	info, err := os.Stat(component.Source)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w: %w", component.Source, release.ErrConfiguration, err)
	}

	if info.IsDir() {
		hash, hashErr := release.HashTree(component.Source)
		if hashErr != nil {
			return nil, fmt.Errorf("hash source: %w", hashErr)
		}

		return &source{dir: component.Source, hash: hash}, nil
	}

	body, err := os.ReadFile(filepath.Clean(component.Source))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	if !crx.IsArchive(body) {
		return nil, fmt.Errorf("%s: %w: %w", component.Source, release.ErrConfiguration, errNotArchive)
	}

	return &source{archivePath: component.Source, hash: release.HashBytes(body)}, nil
}

// remoteExtension keeps the archive extension of a download URL, defaulting to .crx.
func remoteExtension(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return release.ArtifactExtension
	}

	switch ext := path.Ext(parsed.Path); ext {
	case ".zip", release.ArtifactExtension:
		return ext
	default:
		return release.ArtifactExtension
	}
}
