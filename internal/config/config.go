package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/crx-release/internal/domain/release"
)

// Storage backends.
const (
	StorageS3 = "s3"
	StorageFS = "fs"
)

// Ledger backends.
const (
	LedgerDynamoDB = "dynamodb"
	LedgerFile     = "file"
)

const (
	// DefaultConfigFilename is the default filename for the release settings.
	DefaultConfigFilename = "crx-release.yaml"

	// DefaultBuildDir is the default working directory for build scratch space.
	DefaultBuildDir = "build"

	// DefaultTable is the default ledger table name.
	DefaultTable = "Extensions"

	// DefaultRegion is used when no AWS region is configured.
	DefaultRegion = "us-east-1"

	// DefaultPreviousWindow is how many previous versions get a patch.
	DefaultPreviousWindow = 10

	// DefaultConcurrency is the default number of components processed at once.
	DefaultConcurrency = 4

	// DefaultFetchAttempts is the total number of attempts for a network fetch.
	DefaultFetchAttempts = 3

	// DefaultFetchDelay is the fixed delay between fetch attempts.
	DefaultFetchDelay = 2 * time.Second

	// DefaultFetchTimeout bounds a single fetch attempt.
	DefaultFetchTimeout = 60 * time.Second

	// DefaultLatestTagKey is the tag key of the "latest" marker.
	DefaultLatestTagKey = "latest"

	// DefaultLatestTagValue is the tag value of the "latest" marker.
	DefaultLatestTagValue = "true"

	// DefaultPatchExtension is appended to the previous artifact base name to name a patch.
	DefaultPatchExtension = ".puff"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownBackend is returned for an unsupported storage or ledger backend.
	errUnknownBackend = errors.New("unknown backend")
	// errBucketRequired is returned when the S3 backend has no bucket.
	errBucketRequired = errors.New("storage bucket must be provided")
	// errLocalDirRequired is returned when a local backend has no directory.
	errLocalDirRequired = errors.New("local directory must be provided")
)

// Config holds every setting of the release pipeline.
type Config struct {
	// LogLevel is the minimum level of emitted log messages.
	LogLevel string `yaml:"log_level" env:"CRX_LOG_LEVEL" env-default:"info"`
	// LogFormat is either console or json.
	LogFormat string `yaml:"log_format" env:"CRX_LOG_FORMAT" env-default:"console"`

	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Build   BuildConfig   `yaml:"build"`
	Packer  ToolConfig    `yaml:"packer" env-prefix:"CRX_PACKER_"`
	Differ  ToolConfig    `yaml:"differ" env-prefix:"CRX_DIFFER_"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Publish PublishConfig `yaml:"publish"`
}

// StorageConfig selects and configures the object store.
type StorageConfig struct {
	// Backend is s3 or fs.
	Backend string `yaml:"backend" env:"CRX_STORAGE_BACKEND" env-default:"s3"`
	// Bucket is the S3 bucket receiving artifacts.
	Bucket string `yaml:"bucket" env:"S3_BUCKET"`
	// Region is the AWS region of the bucket.
	Region string `yaml:"region" env:"AWS_REGION"`
	// Endpoint is an optional custom endpoint for S3-compatible services.
	Endpoint string `yaml:"endpoint" env:"S3_ENDPOINT"`
	// UsePathStyle enables path-style addressing, required by most MinIO setups.
	UsePathStyle bool `yaml:"use_path_style" env:"S3_USE_PATH_STYLE"`
	// AccessKeyID and SecretAccessKey are optional static credentials.
	AccessKeyID     string `yaml:"-" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"-" env:"AWS_SECRET_ACCESS_KEY"`
	// ACL is the canned ACL applied to uploaded objects.
	ACL string `yaml:"acl" env:"S3_ACL" env-default:"public-read"`
	// LocalDir is the root directory of the fs backend.
	LocalDir string `yaml:"local_dir" env:"CRX_STORAGE_DIR"`
}

// LedgerConfig selects and configures the key-value ledger.
type LedgerConfig struct {
	// Backend is dynamodb or file.
	Backend string `yaml:"backend" env:"CRX_LEDGER_BACKEND" env-default:"dynamodb"`
	// Table is the DynamoDB table name.
	Table string `yaml:"table" env:"DYNAMODB_TABLE" env-default:"Extensions"`
	// Region is the AWS region of the table.
	Region string `yaml:"region" env:"AWS_REGION"`
	// Endpoint is an optional custom endpoint, e.g. DynamoDB Local.
	Endpoint string `yaml:"endpoint" env:"DYNAMODB_ENDPOINT"`
	// LocalDir is the directory of the file backend.
	LocalDir string `yaml:"local_dir" env:"CRX_LEDGER_DIR"`
}

// BuildConfig controls local scratch space.
type BuildConfig struct {
	// Dir is the root of unzip, stage, previous and patches directories.
	Dir string `yaml:"dir" env:"CRX_BUILD_DIR" env-default:"build"`
	// PreviousWindow is the number of previous versions to diff against.
	PreviousWindow int `yaml:"previous_window" env:"CRX_PREVIOUS_WINDOW" env-default:"10"`
}

// ToolConfig describes an external executable and its argument template.
type ToolConfig struct {
	// Binary is the executable name or path.
	Binary string `yaml:"binary" env:"BINARY"`
	// Args are passed to Binary after placeholder substitution.
	Args []string `yaml:"args" env:"ARGS" env-separator:" "`
	// Extension is the output file extension produced by the tool, if relevant.
	Extension string `yaml:"extension,omitempty" env:"EXTENSION"`
}

// FetchConfig bounds network fetches.
type FetchConfig struct {
	// Attempts is the total number of attempts per fetch.
	Attempts int `yaml:"attempts" env:"CRX_FETCH_ATTEMPTS" env-default:"3"`
	// Delay is the fixed pause between attempts.
	Delay time.Duration `yaml:"delay" env:"CRX_FETCH_DELAY" env-default:"2s"`
	// Timeout bounds one attempt.
	Timeout time.Duration `yaml:"timeout" env:"CRX_FETCH_TIMEOUT" env-default:"60s"`
}

// PublishConfig controls publishing behavior.
type PublishConfig struct {
	// Concurrency is the number of components processed at once.
	Concurrency int `yaml:"concurrency" env:"CRX_CONCURRENCY" env-default:"4"`
	// LatestTagKey and LatestTagValue form the "latest" marker tag.
	LatestTagKey   string `yaml:"latest_tag_key" env:"CRX_LATEST_TAG_KEY" env-default:"latest"`
	LatestTagValue string `yaml:"latest_tag_value" env:"CRX_LATEST_TAG_VALUE" env-default:"true"`
	// VerifyPatches applies every generated patch as bsdiff and drops mismatches.
	VerifyPatches bool `yaml:"verify_patches" env:"CRX_VERIFY_PATCHES"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{
		Storage: StorageConfig{Backend: StorageS3},
		Ledger:  LedgerConfig{Backend: LedgerDynamoDB},
	}

	cfg.applyDefaults()

	return cfg
}

// Load reads configuration from the provided path overlaid with the environment.
// An empty path reads the environment only, as does DefaultConfigFilename when no such file exists.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == DefaultConfigFilename {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w: %w", release.ErrConfiguration, err)
		}
	} else if err := cleanenv.ReadConfig(filepath.Clean(path), &cfg); err != nil {
		return nil, fmt.Errorf("read settings: %w: %w", release.ErrConfiguration, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults and checks backend-specific requirements.
// Every failure wraps release.ErrConfiguration.
func Validate(cfg *Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("%w: %w", release.ErrConfiguration, err)
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	cfg.applyDefaults()

	switch cfg.Storage.Backend {
	case StorageS3:
		if cfg.Storage.Bucket == "" {
			return errBucketRequired
		}
	case StorageFS:
		if cfg.Storage.LocalDir == "" {
			return fmt.Errorf("storage: %w", errLocalDirRequired)
		}
	default:
		return fmt.Errorf("storage %q: %w", cfg.Storage.Backend, errUnknownBackend)
	}

	switch cfg.Ledger.Backend {
	case LedgerDynamoDB:
	case LedgerFile:
		if cfg.Ledger.LocalDir == "" {
			return fmt.Errorf("ledger: %w", errLocalDirRequired)
		}
	default:
		return fmt.Errorf("ledger %q: %w", cfg.Ledger.Backend, errUnknownBackend)
	}

	return nil
}

// applyDefaults fills zero values that have a sensible default.
func (cfg *Config) applyDefaults() {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageS3
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = DefaultRegion
	}

	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = LedgerDynamoDB
	}

	if cfg.Ledger.Table == "" {
		cfg.Ledger.Table = DefaultTable
	}

	if cfg.Ledger.Region == "" {
		cfg.Ledger.Region = cfg.Storage.Region
	}

	if cfg.Build.Dir == "" {
		cfg.Build.Dir = DefaultBuildDir
	}

	if cfg.Build.PreviousWindow <= 0 {
		cfg.Build.PreviousWindow = DefaultPreviousWindow
	}

	if cfg.Packer.Binary == "" {
		cfg.Packer.Binary = defaultBrowserBinary()
	}

	if len(cfg.Packer.Args) == 0 {
		cfg.Packer.Args = []string{"--pack-extension={dir}", "--pack-extension-key={key}"}
	}

	if cfg.Packer.Extension == "" {
		cfg.Packer.Extension = ".crx"
	}

	if cfg.Differ.Binary == "" {
		cfg.Differ.Binary = "puffin"
	}

	if len(cfg.Differ.Args) == 0 {
		cfg.Differ.Args = []string{"-puffdiff", "{old}", "{new}", "{patch}"}
	}

	if cfg.Differ.Extension == "" {
		cfg.Differ.Extension = DefaultPatchExtension
	}

	if cfg.Fetch.Attempts <= 0 {
		cfg.Fetch.Attempts = DefaultFetchAttempts
	}

	if cfg.Fetch.Delay <= 0 {
		cfg.Fetch.Delay = DefaultFetchDelay
	}

	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = DefaultFetchTimeout
	}

	if cfg.Publish.Concurrency <= 0 {
		cfg.Publish.Concurrency = DefaultConcurrency
	}

	if cfg.Publish.LatestTagKey == "" {
		cfg.Publish.LatestTagKey = DefaultLatestTagKey
	}

	if cfg.Publish.LatestTagValue == "" {
		cfg.Publish.LatestTagValue = DefaultLatestTagValue
	}

	if cfg.Storage.ACL == "" && cfg.Storage.Backend == StorageS3 {
		cfg.Storage.ACL = "public-read"
	}
}

// defaultBrowserBinary returns the Chromium executable name used for packing on this platform.
func defaultBrowserBinary() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	case "windows":
		return "chrome.exe"
	default:
		return "chromium"
	}
}
