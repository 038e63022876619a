package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Store.
// It embeds the uploader client so multipart uploads keep working for large artifacts.
type S3API interface {
	manager.UploadAPIClient

	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
	GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
}

// S3Store is an S3-compatible implementation of Store.
type S3Store struct {
	// client performs object and tagging calls.
	client S3API
	// uploader streams bodies, switching to multipart for large ones.
	uploader *manager.Uploader
	// bucket receives every object.
	bucket string
}

// NewS3Store creates a store writing into bucket through client.
func NewS3Store(client S3API, bucket string) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}, nil
}

// Get downloads the object at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		return nil, fmt.Errorf("download %s: %w", key, err)
	}

	defer func() {
		_ = output.Body.Close()
	}()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return data, nil
}

// Put uploads body to key with the given content type and canned ACL.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}

	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	return nil
}

// Exists issues a HEAD request for key.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	if isNotFound(err) {
		return false, nil
	}

	return false, fmt.Errorf("head %s: %w", key, err)
}

// PutTags replaces the tag set of key.
func (s *S3Store) PutTags(ctx context.Context, key string, tags []Tag) error {
	tagSet := make([]types.Tag, 0, len(tags))
	for _, tag := range sortTags(tags) {
		tagSet = append(tagSet, types.Tag{
			Key:   aws.String(tag.Key),
			Value: aws.String(tag.Value),
		})
	}

	_, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(key),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		return fmt.Errorf("tag %s: %w", key, err)
	}

	return nil
}

// Tags reads the tag set of key.
func (s *S3Store) Tags(ctx context.Context, key string) ([]Tag, error) {
	output, err := s.client.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		return nil, fmt.Errorf("read tags of %s: %w", key, err)
	}

	tags := make([]Tag, 0, len(output.TagSet))
	for _, tag := range output.TagSet {
		tags = append(tags, Tag{Key: aws.ToString(tag.Key), Value: aws.ToString(tag.Value)})
	}

	return tags, nil
}

// isNotFound recognizes the several shapes of "missing object" errors
// returned by S3 and S3-compatible services.
func isNotFound(err error) bool {
	var (
		notFound *types.NotFound
		noSuch   *types.NoSuchKey
	)

	if errors.As(err, &notFound) || errors.As(err, &noSuch) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	return false
}
