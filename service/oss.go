package service

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ParableToVideo-server/logger"
)

// Publisher copies a local file to shared storage and returns a URL for it.
type Publisher interface {
	Publish(ctx context.Context, localPath, objectName string) (string, error)
}

// MinIOPublisher uploads rendered videos to an S3 compatible bucket and
// hands out presigned download links.
type MinIOPublisher struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	log    *logger.Logger
}

func NewMinIOPublisher(endpoint, accessKey, secretKey, bucket string, useSSL bool, log *logger.Logger) (*MinIOPublisher, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinIOPublisher{
		client: client,
		bucket: bucket,
		expiry: 72 * time.Hour,
		log:    log.With("service", "MinIOPublisher"),
	}, nil
}

func (p *MinIOPublisher) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	p.log.Info("bucket created", "bucket", p.bucket)
	return nil
}

func (p *MinIOPublisher) Publish(ctx context.Context, localPath, objectName string) (string, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return "", err
	}
	if _, err := p.client.FPutObject(ctx, p.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	}); err != nil {
		return "", fmt.Errorf("upload to minio: %w", err)
	}
	u, err := p.client.PresignedGetObject(ctx, p.bucket, objectName, p.expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign url: %w", err)
	}
	p.log.Debug("object published", "object", objectName)
	return u.String(), nil
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
