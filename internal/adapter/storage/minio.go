package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sndnv/stasis-sub000/internal/config"
)

type MinioStorage struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinio(cfg *config.StoreConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *MinioStorage) key(name string) string {
	return path.Join(m.prefix, name)
}

func (m *MinioStorage) Upload(ctx context.Context, name string, content io.Reader, size int64) error {
	if size < 0 {
		size = -1
	}

	_, err := m.client.PutObject(ctx, m.bucket, m.key(name), content, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to upload to minio: %w", err)
	}

	return nil
}

func (m *MinioStorage) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	if _, err := m.client.StatObject(ctx, m.bucket, m.key(name), minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat minio object: %w", err)
	}

	object, err := m.client.GetObject(ctx, m.bucket, m.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download from minio: %w", err)
	}

	return object, nil
}

func (m *MinioStorage) List(ctx context.Context) ([]string, error) {
	objects, err := m.objects(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(objects))
	for _, obj := range objects {
		files = append(files, m.name(obj.Key))
	}

	return files, nil
}

func (m *MinioStorage) Delete(ctx context.Context, name string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, m.key(name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from minio: %w", err)
	}
	return nil
}

func (m *MinioStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	objects, err := m.objects(ctx)
	if err != nil {
		return nil, err
	}

	var oldFiles []string
	for _, obj := range objects {
		if obj.LastModified.Before(cutoffTime) {
			oldFiles = append(oldFiles, m.name(obj.Key))
		}
	}

	return oldFiles, nil
}

func (m *MinioStorage) objects(ctx context.Context) ([]minio.ObjectInfo, error) {
	var objects []minio.ObjectInfo

	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: m.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list minio objects: %w", obj.Err)
		}
		objects = append(objects, obj)
	}

	return objects, nil
}

func (m *MinioStorage) name(key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, m.prefix), "/")
}
