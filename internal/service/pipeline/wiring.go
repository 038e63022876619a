package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oshokin/crx-release/internal/config"
	"github.com/oshokin/crx-release/internal/logger"
	ledgerrepo "github.com/oshokin/crx-release/internal/repository/ledger"
	"github.com/oshokin/crx-release/internal/repository/objectstore"
	"github.com/oshokin/crx-release/internal/service/delta"
	"github.com/oshokin/crx-release/internal/service/fetch"
	"github.com/oshokin/crx-release/internal/service/ledger"
	"github.com/oshokin/crx-release/internal/service/packer"
	"github.com/oshokin/crx-release/internal/service/publisher"
)

const verifyDirName = "verify"

// NewDependencies builds every collaborator from cfg.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize object store: %w", err)
	}

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize ledger: %w", err)
	}

	generatorOptions := []delta.Option{
		delta.WithWindow(cfg.Build.PreviousWindow),
		delta.WithExtension(cfg.Differ.Extension),
	}

	if cfg.Publish.VerifyPatches {
		generatorOptions = append(generatorOptions,
			delta.WithVerifier(delta.NewBSDiffVerifier(filepath.Join(cfg.Build.Dir, verifyDirName))))
	}

	return &Dependencies{
		Ledger:    ledger.New(repo),
		Generator: delta.NewGenerator(store, delta.NewExecDiffer(cfg.Differ), cfg.Build.Dir, generatorOptions...),
		Publisher: publisher.New(store, cfg.Storage.ACL, cfg.Publish),
		Packer:    packer.NewExecPacker(cfg.Packer),
		Fetcher:   fetch.New(cfg.Fetch),
	}, nil
}

func newStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	if cfg.Storage.Backend == config.StorageFS {
		logger.InfoKV(ctx, "Using filesystem object store", "dir", cfg.Storage.LocalDir)

		return objectstore.NewFSStore(cfg.Storage.LocalDir)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.Storage.Region, cfg.Storage)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
		}

		o.UsePathStyle = cfg.Storage.UsePathStyle
	})

	logger.InfoKV(ctx, "Using S3 object store", "bucket", cfg.Storage.Bucket, "region", cfg.Storage.Region)

	return objectstore.NewS3Store(client, cfg.Storage.Bucket)
}

func newRepository(ctx context.Context, cfg *config.Config) (ledgerrepo.Repository, error) {
	if cfg.Ledger.Backend == config.LedgerFile {
		logger.InfoKV(ctx, "Using file ledger", "dir", cfg.Ledger.LocalDir)

		return ledgerrepo.NewFileRepository(cfg.Ledger.LocalDir), nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.Ledger.Region, cfg.Storage)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Ledger.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Ledger.Endpoint)
		}
	})

	logger.InfoKV(ctx, "Using DynamoDB ledger", "table", cfg.Ledger.Table, "region", cfg.Ledger.Region)

	return ledgerrepo.NewDynamoRepository(client, cfg.Ledger.Table), nil
}

// loadAWSConfig resolves the default credential chain, preferring static keys when both are set.
func loadAWSConfig(ctx context.Context, region string, storage config.StorageConfig) (aws.Config, error) {
	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if storage.AccessKeyID != "" && storage.SecretAccessKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storage.AccessKeyID, storage.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}

	return awsCfg, nil
}
