package minio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"gamezone/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const ExportPrefix = "exports/"

type MinioProvider struct {
	client    *minio.Client
	bucket    string
	logger    *zap.Logger
	publicURL string
}

type UploadedFile struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ObjectName  string `json:"object_name"`
}

func NewMinioProvider(cfg *config.Config, logger *zap.Logger) (*MinioProvider, error) {
	minioURL := cfg.MinioURL
	if !strings.HasPrefix(minioURL, "http://") && !strings.HasPrefix(minioURL, "https://") {
		minioURL = "http://" + minioURL
	}

	u, err := url.Parse(minioURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse minio URL: %w", err)
	}
	secure := u.Scheme == "https"

	logger.Info("Initializing MinIO", zap.String("endpoint", u.Host), zap.Bool("secure", secure))

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 64

	client, err := minio.New(u.Host, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.MinioUser, cfg.MinioPassword, ""),
		Secure:    secure,
		Transport: tr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	publicURL := cfg.MinioPublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, cfg.MinioBucket)
	}

	provider := &MinioProvider{
		client:    client,
		bucket:    cfg.MinioBucket,
		logger:    logger,
		publicURL: strings.TrimRight(publicURL, "/"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := provider.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return provider, nil
}

// ensureBucket creates the private export bucket on first start.
func (m *MinioProvider) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	m.logger.Info("Created MinIO bucket", zap.String("bucket", m.bucket))
	return nil
}

func (m *MinioProvider) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}

func (m *MinioProvider) UploadFromReader(ctx context.Context, reader io.Reader, objectName, contentType string, size int64) (*UploadedFile, error) {
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	m.logger.Info("Object uploaded",
		zap.String("object_name", objectName),
		zap.Int64("size", size),
	)

	return &UploadedFile{
		Name:        path.Base(objectName),
		URL:         m.publicURL + "/" + objectName,
		Size:        size,
		ContentType: contentType,
		ObjectName:  objectName,
	}, nil
}

func (m *MinioProvider) GeneratePresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// DeleteOlderThan removes objects under prefix last modified before now-maxAge.
func (m *MinioProvider) DeleteOlderThan(ctx context.Context, prefix string, maxAge time.Duration) (int, error) {
	objectsCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	removed := 0
	for object := range objectsCh {
		if object.Err != nil {
			return removed, object.Err
		}
		if time.Since(object.LastModified) <= maxAge {
			continue
		}
		if err := m.client.RemoveObject(ctx, m.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			m.logger.Warn("Failed to delete expired object", zap.String("object", object.Key), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		m.logger.Info("Expired objects removed", zap.String("prefix", prefix), zap.Int("count", removed))
	}
	return removed, nil
}

func (m *MinioProvider) GetBucket() string {
	return m.bucket
}

// ExportObjectName places exports under a dated prefix: exports/YYYY/MM/DD/<uuid>.csv.
func ExportObjectName(now time.Time) string {
	return fmt.Sprintf("%s%s/%s.csv", ExportPrefix, now.UTC().Format("2006/01/02"), uuid.NewString())
}
