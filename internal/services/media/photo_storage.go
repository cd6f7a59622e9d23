package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

var ErrValidation = errors.New("validation error")

const defaultPhotoURLTTL = 10 * time.Minute

// PhotoStorage resolves profile photo keys stored in the bucket into
// presigned GET URLs.
type PhotoStorage struct {
	client *minio.Client
	bucket string
	ttl    time.Duration

	ensureOnce sync.Once
	ensureErr  error
}

func NewPhotoStorage(client *minio.Client, bucket string, ttl time.Duration) *PhotoStorage {
	if ttl <= 0 {
		ttl = defaultPhotoURLTTL
	}
	return &PhotoStorage{
		client: client,
		bucket: strings.TrimSpace(bucket),
		ttl:    ttl,
	}
}

func (s *PhotoStorage) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = err
			return
		}
		if exists {
			return
		}
		s.ensureErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	})

	if s.ensureErr != nil {
		return fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, s.ensureErr)
	}

	return nil
}

// PhotoURL returns a fetchable URL for key. Keys that are already absolute
// http(s) URLs are returned unchanged.
func (s *PhotoStorage) PhotoURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrValidation
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}
	return s.PresignGet(ctx, key, s.ttl)
}

func (s *PhotoStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("s3 client is nil")
	}
	if key == "" {
		return "", ErrValidation
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, strings.TrimPrefix(key, "/"), ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}

	return presigned.String(), nil
}
