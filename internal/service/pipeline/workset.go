package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// DefaultWorkSetFilename is read when no work set location is given.
const DefaultWorkSetFilename = "components.yaml"

var (
	errEmptyWorkSet      = errors.New("work set has no components")
	errDuplicateName     = errors.New("duplicate component name")
	errComponentInvalid  = errors.New("invalid component")
	errNoComponentsMatch = errors.New("no component matches the filter")
)

// TextFetcher downloads text documents.
type TextFetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Component is one entry of a work set.
type Component struct {
	// Name identifies the component in logs and is used as its storage tag key.
	Name string `yaml:"name"`
	// KeyFile is the PEM private key that signs the component and derives its identity.
	KeyFile string `yaml:"key_file"`
	// Source is an http(s) URL of a packed archive, a local archive or a local directory.
	Source string `yaml:"source"`
	// Title overrides the descriptor title in the ledger.
	Title string `yaml:"title,omitempty"`
	// Disabled is recorded in the ledger to hide the component from clients.
	Disabled bool `yaml:"disabled,omitempty"`
}

// IsRemote reports whether Source is fetched over the network.
func (c *Component) IsRemote() bool {
	return isURL(c.Source)
}

// WorkSet is the list of components processed in one run.
type WorkSet struct {
	Components []Component `yaml:"components"`
}

// LoadWorkSet reads a work set from a local path or an http(s) URL. Relative local
// paths inside a local work set are resolved against the work set directory.
func LoadWorkSet(ctx context.Context, fetcher TextFetcher, location string) (*WorkSet, error) {
	if location == "" {
		location = DefaultWorkSetFilename
	}

	var (
		contents []byte
		baseDir  string
	)

	if isURL(location) {
		text, err := fetcher.Text(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("download work set: %w", err)
		}

		contents = []byte(text)
	} else {
		data, err := os.ReadFile(filepath.Clean(location))
		if err != nil {
			return nil, fmt.Errorf("read work set: %w: %w", release.ErrConfiguration, err)
		}

		contents = data
		baseDir = filepath.Dir(location)
	}

	return ParseWorkSet(contents, baseDir)
}

// ParseWorkSet decodes and validates a work set document.
// Relative local paths are joined to baseDir when it is not empty.
func ParseWorkSet(contents []byte, baseDir string) (*WorkSet, error) {
	var workSet WorkSet
	if err := yaml.Unmarshal(contents, &workSet); err != nil {
		return nil, fmt.Errorf("decode work set: %w: %w", release.ErrConfiguration, err)
	}

	if len(workSet.Components) == 0 {
		return nil, fmt.Errorf("%w: %w", release.ErrConfiguration, errEmptyWorkSet)
	}

	seen := make(map[string]struct{}, len(workSet.Components))

	for i := range workSet.Components {
		component := &workSet.Components[i]
		component.Name = strings.TrimSpace(component.Name)

		if err := component.validate(); err != nil {
			return nil, fmt.Errorf("component #%d: %w", i+1, err)
		}

		if _, found := seen[component.Name]; found {
			return nil, fmt.Errorf("%w: %w: %s", release.ErrConfiguration, errDuplicateName, component.Name)
		}

		seen[component.Name] = struct{}{}

		if baseDir != "" {
			component.KeyFile = resolvePath(baseDir, component.KeyFile)

			if !component.IsRemote() {
				component.Source = resolvePath(baseDir, component.Source)
			}
		}
	}

	return &workSet, nil
}

// Filter keeps the components whose name or identity is listed in only.
// An empty filter keeps everything.
func (w *WorkSet) Filter(only []string, identities map[string]release.Identity) (*WorkSet, error) {
	if len(only) == 0 {
		return w, nil
	}

	wanted := make(map[string]struct{}, len(only))
	for _, value := range only {
		wanted[strings.TrimSpace(value)] = struct{}{}
	}

	filtered := &WorkSet{}

	for _, component := range w.Components {
		_, byName := wanted[component.Name]
		_, byID := wanted[identities[component.Name].String()]

		if byName || byID {
			filtered.Components = append(filtered.Components, component)
		}
	}

	if len(filtered.Components) == 0 {
		return nil, fmt.Errorf("%w: %w: %s", release.ErrConfiguration, errNoComponentsMatch, strings.Join(only, ", "))
	}

	return filtered, nil
}

func (c *Component) validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: %w: name is required", release.ErrConfiguration, errComponentInvalid)
	case strings.ContainsAny(c.Name, `/\`):
		return fmt.Errorf("%w: %w: name %q must not contain path separators", release.ErrConfiguration, errComponentInvalid, c.Name)
	case strings.TrimSpace(c.KeyFile) == "":
		return fmt.Errorf("%w: %w: %s: key_file is required", release.ErrConfiguration, errComponentInvalid, c.Name)
	case strings.TrimSpace(c.Source) == "":
		return fmt.Errorf("%w: %w: %s: source is required", release.ErrConfiguration, errComponentInvalid, c.Name)
	}

	return nil
}

func resolvePath(baseDir, value string) string {
	if value == "" || filepath.IsAbs(value) {
		return value
	}

	return filepath.Join(baseDir, value)
}

func isURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}

	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
