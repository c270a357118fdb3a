package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shaiso/Copernicus/internal/config"
	"github.com/shaiso/Copernicus/internal/telemetry"
)

// NewMinIOClient создаёт клиент MinIO по конфигурации хранилища.
func NewMinIOClient(cfg config.StorageConfig) (*minio.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("object storage is not configured")
	}
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

// EnsureBucket создаёт bucket, если его нет.
func EnsureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// MinIOPublisher загружает артефакты в bucket.
type MinIOPublisher struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinIOPublisher создаёт MinIOPublisher.
func NewMinIOPublisher(client *minio.Client, bucket string, logger *slog.Logger) *MinIOPublisher {
	return &MinIOPublisher{
		client: client,
		bucket: bucket,
		logger: telemetry.OrDefault(logger),
	}
}

// Publish загружает файл и возвращает адрес s3://<bucket>/<key>.
func (p *MinIOPublisher) Publish(ctx context.Context, jobID uuid.UUID, name, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	key := ObjectKey(jobID, name, file)
	_, err = p.client.PutObject(ctx, p.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: ContentType(file),
		UserMetadata: map[string]string{
			"job-id": jobID.String(),
			"output": name,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	p.logger.Debug("artifact published", "job_id", jobID, "output", name, "key", key, "size", info.Size())
	return Location(p.bucket, key), nil
}

// PresignGet выдаёт временную ссылку на скачивание объекта.
func (p *MinIOPublisher) PresignGet(ctx context.Context, location string, ttl time.Duration) (string, error) {
	bucket, key, err := ParseLocation(location)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	u, err := p.client.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
