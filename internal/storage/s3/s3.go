package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// API is the slice of the S3 client the backend needs. *awss3.Client
// satisfies it; tests provide an in-memory fake.
type API interface {
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, opts ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, opts ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Config selects the bucket and key layout for an ObjectStorage.
type Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint and ForcePathStyle support S3-compatible stores such as
	// MinIO.
	Endpoint       string
	ForcePathStyle bool
}

// ObjectStorage is the remote durable backend. Blobs live under
// <prefix>/<hex[:2]>/<hex[2:]>, mirroring the local on-disk layout so
// operators can eyeball both the same way.
type ObjectStorage struct {
	client API
	bucket string
	prefix string
	logger *slog.Logger
}

// New wraps an existing client. Used directly by tests and by callers that
// manage their own AWS configuration.
func New(client API, cfg Config, logger *slog.Logger) (*ObjectStorage, error) {
	if cfg.Bucket == "" {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeInvalidConfig, "s3 bucket name cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ObjectStorage{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With("component", "s3-storage", "bucket", cfg.Bucket),
	}, nil
}

// NewFromConfig builds a client from the ambient AWS configuration chain
// (environment, shared config, instance role) and wraps it.
func NewFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) (*ObjectStorage, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeInvalidConfig, "failed to load AWS config").
			WithCause(err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})
	return New(client, cfg, logger)
}

func (s *ObjectStorage) key(dgst digest.Digest) string {
	hex := dgst.Encoded()
	return path.Join(s.prefix, hex[:2], hex[2:])
}

// Store uploads the blob under its content key.
func (s *ObjectStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(dgst)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return cacheerrors.Errorf(cacheerrors.ErrCodeStorageWrite, "failed to upload blob %s", dgst).
			WithCause(err)
	}
	return nil
}

// Load downloads the blob for dgst.
func (s *ObjectStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(dgst)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, cacheerrors.Errorf(cacheerrors.ErrCodeHashNotFound, "no object stored for digest %s", dgst)
		}
		return nil, cacheerrors.Errorf(cacheerrors.ErrCodeStorageRead, "failed to download blob %s", dgst).
			WithCause(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, cacheerrors.Errorf(cacheerrors.ErrCodeStorageRead, "failed to read blob %s", dgst).
			WithCause(err)
	}
	return data, nil
}

// Remove deletes the blob for dgst. S3 deletes are idempotent, so absence is
// detected with a HeadObject probe first to honor the not-found contract.
func (s *ObjectStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	key := s.key(dgst)
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return cacheerrors.Errorf(cacheerrors.ErrCodeHashNotFound, "no object stored for digest %s", dgst)
		}
		return cacheerrors.Errorf(cacheerrors.ErrCodeStorageRead, "failed to probe blob %s", dgst).
			WithCause(err)
	}

	if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return cacheerrors.Errorf(cacheerrors.ErrCodeStorageWrite, "failed to delete blob %s", dgst).
			WithCause(err)
	}
	return nil
}

// Clear deletes every object under the configured prefix, page by page.
func (s *ObjectStorage) Clear(ctx context.Context) error {
	var prefix *string
	if s.prefix != "" {
		prefix = aws.String(s.prefix + "/")
	}

	var token *string
	for {
		page, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return cacheerrors.Errorf(cacheerrors.ErrCodeStorageRead, "failed to list bucket %s", s.bucket).
				WithCause(err)
		}

		for _, obj := range page.Contents {
			if _, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			}); err != nil {
				return cacheerrors.Errorf(cacheerrors.ErrCodeStorageWrite, "failed to delete object %s", aws.ToString(obj.Key)).
					WithCause(err)
			}
		}

		if !aws.ToBool(page.IsTruncated) {
			return nil
		}
		token = page.NextContinuationToken
	}
}

// AddressFor returns the object URL in s3:// form.
func (s *ObjectStorage) AddressFor(dgst digest.Digest) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key(dgst))
}

func isNoSuchKey(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
