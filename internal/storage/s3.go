package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the S3 bucket.
	Region string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// Prefix is prepended to every key.
	Prefix string
	// MaxRetries bounds retries of failed calls. Zero means no retry.
	MaxRetries int
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{Region: "us-east-1", MaxRetries: 3}
}

// S3Storage stores snapshots in an S3 bucket or any S3-compatible service.
type S3Storage struct {
	client *s3.Client
	bucket string
	cfg    S3Config
}

// NewS3Storage loads the default AWS credential chain and creates a client.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient wraps a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, cfg: cfg}
}

// Put uploads data unconditionally.
func (s *S3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	return s.put(ctx, key, data, "", false)
}

// ConditionalPut uploads with If-Match on a known ETag, or If-None-Match
// when etag is empty.
func (s *S3Storage) ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error) {
	return s.put(ctx, key, data, etag, true)
}

func (s *S3Storage) put(ctx context.Context, key string, data []byte, etag string, conditional bool) (string, error) {
	out, err := withRetry(ctx, s.cfg.MaxRetries, func() (*s3.PutObjectOutput, error) {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.key(key)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		}
		switch {
		case conditional && etag != "":
			input.IfMatch = aws.String(etag)
		case conditional:
			input.IfNoneMatch = aws.String("*")
		}
		return s.client.PutObject(ctx, input)
	})
	switch {
	case errors.Is(err, ErrPreconditionFailed):
		return "", err
	case err != nil:
		return "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, key, err)
	}
	return aws.ToString(out.ETag), nil
}

// Get downloads an object and its ETag.
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, string, error) {
	type object struct {
		data []byte
		etag string
	}
	obj, err := withRetry(ctx, s.cfg.MaxRetries, func() (object, error) {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
		})
		if err != nil {
			return object{}, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		return object{data: data, etag: aws.ToString(resp.ETag)}, err
	})
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return nil, "", err
	case err != nil:
		return nil, "", fmt.Errorf("%w: %s: %v", ErrDownloadFailed, key, err)
	}
	return obj.data, obj.etag, nil
}

// Delete removes an object. S3 treats a missing key as deleted.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := withRetry(ctx, s.cfg.MaxRetries, func() (*s3.DeleteObjectOutput, error) {
		return s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
		})
	})
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("%w: %s: %v", ErrDeleteFailed, key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := withRetry(ctx, s.cfg.MaxRetries, func() (*s3.HeadObjectOutput, error) {
		return s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
		})
	})
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

// List returns the keys under prefix, relative to the configured prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, s.relative(aws.ToString(obj.Key)))
		}
	}
	return keys, nil
}

func (s *S3Storage) key(k string) string {
	if s.cfg.Prefix == "" {
		return k
	}
	return path.Join(s.cfg.Prefix, k)
}

func (s *S3Storage) relative(k string) string {
	if s.cfg.Prefix == "" {
		return k
	}
	return strings.TrimPrefix(strings.TrimPrefix(k, s.cfg.Prefix), "/")
}

// classifyS3 maps SDK errors onto the package sentinels.
func classifyS3(err error) error {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrObjectNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return ErrPreconditionFailed
		case "NoSuchKey", "NotFound":
			return ErrObjectNotFound
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusPreconditionFailed:
			return ErrPreconditionFailed
		case http.StatusNotFound:
			return ErrObjectNotFound
		}
	}
	return err
}

// withRetry runs op with exponential backoff starting at 100ms. Missing
// objects and failed preconditions are final.
func withRetry[T any](ctx context.Context, maxRetries int, op func() (T, error)) (T, error) {
	var zero T
	backoff := 100 * time.Millisecond
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := op()
		if err == nil {
			return out, nil
		}
		err = classifyS3(err)
		if errors.Is(err, ErrPreconditionFailed) || errors.Is(err, ErrObjectNotFound) || attempt >= maxRetries {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
