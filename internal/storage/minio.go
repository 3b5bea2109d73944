package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fileshare/backend/internal/config"
	"github.com/fileshare/backend/pkg/logger"
)

// MinIOBackend stores blobs in a single bucket. Distinct stores (uploads,
// logos) share the bucket under different key prefixes.
type MinIOBackend struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinIOBackend(cfg config.MinIOConfig, prefix string) (*MinIOBackend, error) {
	var creds *credentials.Credentials
	if cfg.AccessKey == "" {
		// No static keys configured: fall back to instance credentials.
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOBackend{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

func (m *MinIOBackend) object(name string) string {
	if m.prefix == "" {
		return name
	}
	return m.prefix + "/" + name
}

func (m *MinIOBackend) Save(ctx context.Context, name string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.object(name), reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("minio_store_failed", err, map[string]interface{}{
			"object_name":  m.object(name),
			"size":         size,
			"content_type": contentType,
			"bucket":       m.bucket,
		})
		return err
	}

	logger.Info("minio_store_success", map[string]interface{}{
		"object_name":  m.object(name),
		"size":         size,
		"content_type": contentType,
		"bucket":       m.bucket,
	})
	return nil
}

func (m *MinIOBackend) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.object(name), minio.GetObjectOptions{})
	if err != nil {
		logger.Error("minio_open_failed", err, map[string]interface{}{
			"object_name": m.object(name),
			"bucket":      m.bucket,
		})
		return nil, 0, err
	}

	// GetObject is lazy; Stat performs the request and surfaces missing keys.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, 0, ErrNotFound
		}
		logger.Error("minio_open_stat_failed", err, map[string]interface{}{
			"object_name": m.object(name),
			"bucket":      m.bucket,
		})
		return nil, 0, err
	}

	return obj, info.Size, nil
}

func (m *MinIOBackend) Delete(ctx context.Context, name string) error {
	err := m.client.RemoveObject(ctx, m.bucket, m.object(name), minio.RemoveObjectOptions{})
	if err != nil {
		logger.Error("minio_delete_failed", err, map[string]interface{}{
			"object_name": m.object(name),
			"bucket":      m.bucket,
		})
		return err
	}

	logger.Info("minio_delete_success", map[string]interface{}{
		"object_name": m.object(name),
		"bucket":      m.bucket,
	})
	return nil
}

func (m *MinIOBackend) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
	}
	return nil
}
