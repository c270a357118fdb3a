// Package storage публикует артефакты job: локально или в S3-совместимое
// хранилище (MinIO).
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scheme — схема адресов объектов в хранилище.
const Scheme = "s3://"

// ErrInvalidLocation — адрес объекта не разбирается.
var ErrInvalidLocation = errors.New("invalid object location")

// Publisher публикует файл артефакта и возвращает его адрес.
type Publisher interface {
	Publish(ctx context.Context, jobID uuid.UUID, name, file string) (string, error)
}

// Presigner выдаёт временную ссылку на объект.
type Presigner interface {
	PresignGet(ctx context.Context, location string, ttl time.Duration) (string, error)
}

// LocalPublisher оставляет артефакты в рабочей директории.
type LocalPublisher struct{}

// Publish возвращает путь к файлу без изменений.
func (LocalPublisher) Publish(_ context.Context, _ uuid.UUID, _ string, file string) (string, error) {
	return file, nil
}

// ObjectKey — ключ объекта: jobs/<job id>/<name><ext файла>.
func ObjectKey(jobID uuid.UUID, name, file string) string {
	return path.Join("jobs", jobID.String(), name+filepath.Ext(file))
}

// Location собирает адрес s3://<bucket>/<key>.
func Location(bucket, key string) string {
	return Scheme + bucket + "/" + key
}

// IsRemote проверяет, что адрес указывает на объект в хранилище.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, Scheme)
}

// ParseLocation разбирает s3://<bucket>/<key>.
func ParseLocation(location string) (bucket, key string, err error) {
	if !IsRemote(location) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(location, Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	return bucket, key, nil
}

// ContentType определяет MIME-тип по расширению файла.
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yml", ".yaml":
		return "application/x-yaml"
	case ".nc":
		return "application/x-netcdf"
	case ".txt", ".log":
		return "text/plain"
	case ".zip":
		return "application/zip"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	}
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
