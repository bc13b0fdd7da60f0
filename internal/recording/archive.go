package recording

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archived locates a stored copy of a recording.
type Archived struct {
	Key string
	URL string
}

// Archiver keeps a copy of each packaged recording. Failures never fail a take.
type Archiver interface {
	Archive(ctx context.Context, payload Payload) (Archived, error)
}

// ArchiveConfig wires a MinIO/S3 archiver.
type ArchiveConfig struct {
	Endpoint   string
	Bucket     string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	PresignTTL time.Duration
}

// MinioArchiver stores recordings under recordings/<uuid><ext>.
type MinioArchiver struct {
	client     *minio.Client
	bucket     string
	presignTTL time.Duration
	newID      func() string
}

func NewMinioArchiver(cfg ArchiveConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MinioArchiver{
		client:     client,
		bucket:     cfg.Bucket,
		presignTTL: ttl,
		newID:      uuid.NewString,
	}, nil
}

// EnsureBucket creates the bucket when missing.
func (a *MinioArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", a.bucket, err)
	}
	return nil
}

func (a *MinioArchiver) Archive(ctx context.Context, payload Payload) (Archived, error) {
	key := objectKey(a.newID(), payload.Filename)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload.Data), int64(len(payload.Data)), minio.PutObjectOptions{
		ContentType: payload.MIMEType,
	})
	if err != nil {
		return Archived{}, fmt.Errorf("put %s: %w", key, err)
	}

	presigned, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.presignTTL, nil)
	if err != nil {
		return Archived{Key: key}, fmt.Errorf("presign %s: %w", key, err)
	}
	return Archived{Key: key, URL: presigned.String()}, nil
}

func objectKey(id string, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	return "recordings/" + id + ext
}
