package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"gridloop/config"
	"gridloop/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio initializes the MinIO client and makes sure the bucket exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("created bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	return nil
}

// GetMinioClient returns the MinIO client instance.
func GetMinioClient() *minio.Client {
	return minioClient
}

// BlobStore stores clip payloads and user avatars as objects.
type BlobStore struct {
	client *minio.Client
	bucket string
}

// NewBlobStore creates a blob store on the initialized client.
func NewBlobStore(cfg *config.Config) *BlobStore {
	return &BlobStore{client: minioClient, bucket: cfg.MinioBucket}
}

// PutClipContent stores a clip payload under clips/<clipId> and returns the
// object key.
func (s *BlobStore) PutClipContent(ctx context.Context, clipID string, r io.Reader, size int64, mimetype string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}

	key := fmt.Sprintf("clips/%s", clipID)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: mimetype,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store clip content: %w", err)
	}
	return key, nil
}

// RemoveClipContent deletes a clip payload.
func (s *BlobStore) RemoveClipContent(ctx context.Context, key string) error {
	if s.client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// PutAvatar stores a user's avatar under avatars/<userId> and returns the
// object key.
func (s *BlobStore) PutAvatar(ctx context.Context, userID string, r io.Reader, size int64, mimetype string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}

	key := fmt.Sprintf("avatars/%s", userID)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: mimetype,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}
	return key, nil
}

// RemoveAvatar deletes a stored avatar object.
func (s *BlobStore) RemoveAvatar(ctx context.Context, key string) error {
	if s.client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// GetObject opens a stored object for reading.
func (s *BlobStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.client == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	return object, nil
}
