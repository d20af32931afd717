// Package storage keeps inbound channel media in MinIO. Messages reference
// stored media by object key; serving happens through presigned URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignedURLTTL = 15 * time.Minute

// MediaStore fetches gateway-hosted media and persists it in MinIO.
type MediaStore struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
	http        *http.Client
	log         *logger.Logger
}

// NewMediaStore creates the store. Returns nil when MinIO is not configured;
// callers treat a nil store as media persistence disabled.
func NewMediaStore(cfg config.StorageConfig, log *logger.Logger) (*MediaStore, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MediaStore{
		client:      client,
		bucket:      cfg.GetMinioBucketMessageMedia(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}, nil
}

// EnsureBucketExists creates the media bucket if it doesn't exist.
func (s *MediaStore) EnsureBucketExists(ctx context.Context) error {
	if s == nil {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// StoreFromURL downloads media from the gateway URL and stores it under a
// fresh object key, which the message log records as the attachment key.
func (s *MediaStore) StoreFromURL(ctx context.Context, sourceURL, contentType string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("media storage not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("media source returned %d", resp.StatusCode)
	}
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}

	var reader io.Reader = resp.Body
	size := resp.ContentLength
	if s.maxFileSize > 0 {
		if size > s.maxFileSize {
			return "", fmt.Errorf("media exceeds size limit of %d bytes", s.maxFileSize)
		}
		reader = io.LimitReader(resp.Body, s.maxFileSize)
	}

	key := objectKey(contentType)
	_, err = s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store media %s: %w", key, err)
	}

	s.log.Debug("inbound media stored", "key", key, "contentType", contentType)
	return key, nil
}

// PresignedDownloadURL returns a short-lived URL for serving stored media.
func (s *MediaStore) PresignedDownloadURL(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("media storage not configured")
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignedURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign media %s: %w", key, err)
	}
	return u.String(), nil
}

func objectKey(contentType string) string {
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	now := time.Now().UTC()
	return fmt.Sprintf("inbound/%s/%s%s", now.Format("2006/01/02"), uuid.NewString(), ext)
}
