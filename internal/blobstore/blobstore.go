// Package blobstore uploads campaign metric artifacts to an S3-compatible
// sink. The sink is optional: an unconfigured blob section disables it and
// the pipeline keeps artifacts local only.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"framelens/internal/config"
	"framelens/internal/services"
)

// objectKey is the canonical artifact key for a job.
func objectKey(jobID string) string {
	return fmt.Sprintf("metrics/%s/campaign_metrics.json", jobID)
}

// Store wraps a bucket on an S3-compatible endpoint.
type Store struct {
	client *miniogo.Client
	bucket string
}

// New connects to the configured endpoint. Callers should gate on
// cfg.BlobConfigured() first; an incomplete blob section is a configuration
// error here.
func New(cfg *config.Config) (*Store, error) {
	if !cfg.BlobConfigured() {
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "new",
			"blob sink is not fully configured", nil)
	}
	client, err := miniogo.New(cfg.Blob.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.Blob.AccessKey, cfg.Blob.SecretKey, ""),
		Secure: cfg.Blob.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Blob.Bucket}, nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutJSON uploads v as the metrics artifact for jobID and returns the
// object key via Key.
func (s *Store) PutJSON(ctx context.Context, jobID string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, objectKey(jobID),
		bytes.NewReader(payload), int64(len(payload)), miniogo.PutObjectOptions{
			ContentType: "application/json",
		})
	if err != nil {
		return fmt.Errorf("upload artifact: %w", err)
	}
	return nil
}

// GetJSON fetches the metrics artifact for jobID into v.
func (s *Store) GetJSON(ctx context.Context, jobID string, v any) error {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(jobID), miniogo.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("fetch artifact: %w", err)
	}
	defer obj.Close()
	if err := json.NewDecoder(obj).Decode(v); err != nil {
		return services.Wrap(services.ErrNotFound, "blobstore", "get",
			fmt.Sprintf("artifact for job %s unavailable", jobID), err)
	}
	return nil
}

// PresignedURL returns a time-limited download link for the artifact.
func (s *Store) PresignedURL(ctx context.Context, jobID string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(jobID), expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign artifact URL: %w", err)
	}
	return u.String(), nil
}

// Key returns the object key PutJSON uses for jobID. Stored on the job so
// consumers can locate the artifact without recomputing conventions.
func (s *Store) Key(jobID string) string {
	return objectKey(jobID)
}
