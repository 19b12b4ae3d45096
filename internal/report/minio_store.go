package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
)

// MinIOConfig holds object storage settings
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string
}

// objectAPI is the subset of *minio.Client the store uses
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOStore uploads reports to a MinIO bucket
type MinIOStore struct {
	client objectAPI
	bucket string
	region string
	log    *logger.Logger
}

// NewMinIOStore connects to MinIO and makes sure the bucket exists
func NewMinIOStore(ctx context.Context, cfg MinIOConfig, log *logger.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := newMinIOStore(client, cfg, log)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("MinIO report store connected", "endpoint", cfg.Endpoint, "bucket", store.bucket)
	return store, nil
}

func newMinIOStore(client objectAPI, cfg MinIOConfig, log *logger.Logger) *MinIOStore {
	if cfg.Bucket == "" {
		cfg.Bucket = "reports"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket, region: cfg.Region, log: log}
}

// EnsureBucket creates the report bucket if it is missing
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	s.log.Info("Created bucket", "bucket", s.bucket)
	return nil
}

// Put uploads data and returns its "bucket/object" location
func (s *MinIOStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return s.bucket + "/" + name, nil
}
