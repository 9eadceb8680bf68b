package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore persists artifacts to an S3-compatible object store and mints
// presigned download URLs.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// MinioOptions configures the object storage connection.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect minio: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

// Upload writes data at the given storage URI with its content type.
func (s *MinioStore) Upload(ctx context.Context, uri string, data []byte, mimeType string) error {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", uri, err)
	}
	return nil
}

// OutputURI derives the canonical storage URI for one job output.
func (s *MinioStore) OutputURI(jobID, filename string) string {
	return fmt.Sprintf("s3://%s/generated/%s/%s", s.bucket, jobID, filename)
}

// SignedURL mints a presigned download URL for the object at uri.
func (s *MinioStore) SignedURL(ctx context.Context, uri string, expiry time.Duration) (string, error) {
	bucket, key, err := splitURI(uri)
	if err != nil {
		return "", err
	}
	signed, err := s.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", uri, err)
	}
	return signed.String(), nil
}

var _ Store = (*MinioStore)(nil)
