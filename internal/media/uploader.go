// Package media stores article thumbnails in S3 compatible object storage.
package media

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/crypto/blake2b"
	"go.uber.org/zap"
)

var (
	ErrTooLarge    = errors.New("file exceeds the upload limit")
	ErrNotImage    = errors.New("file is not an image")
	ErrEmptyUpload = errors.New("file is empty")
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base objects are served from; defaults to the
	// endpoint.
	PublicURL string
	MaxBytes  int64
}

// File is an upload as received from a client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucket, policy string) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Uploader struct {
	client    objectStore
	bucket    string
	publicURL string
	maxBytes  int64
	now       func() time.Time
	logger    *zap.Logger
}

func NewUploader(cfg Config, logger *zap.Logger) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}
	return newUploader(client, cfg.Bucket, publicURL, cfg.MaxBytes, logger), nil
}

func newUploader(client objectStore, bucket, publicURL string, maxBytes int64, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Uploader{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		now:       time.Now,
		logger:    logger,
	}
}

const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// EnsureBucket creates the bucket with anonymous read access when missing.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	if err := u.client.SetBucketPolicy(ctx, u.bucket, fmt.Sprintf(publicReadPolicy, u.bucket)); err != nil {
		return fmt.Errorf("set bucket policy: %w", err)
	}
	u.logger.Info("created thumbnail bucket", zap.String("bucket", u.bucket))
	return nil
}

// UploadThumbnail stores an image under the owner's prefix and returns the
// public URL it can be fetched from.
func (u *Uploader) UploadThumbnail(ctx context.Context, ownerID string, file File) (string, error) {
	if len(file.Data) == 0 {
		return "", ErrEmptyUpload
	}
	if int64(len(file.Data)) > u.maxBytes {
		return "", ErrTooLarge
	}
	if !strings.HasPrefix(file.ContentType, "image/") {
		return "", ErrNotImage
	}

	key := ObjectKey(ownerID, file, u.now())
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(file.Data), int64(len(file.Data)), minio.PutObjectOptions{
		ContentType:  file.ContentType,
		CacheControl: "public, max-age=31536000",
	})
	if err != nil {
		return "", fmt.Errorf("put thumbnail: %w", err)
	}
	u.logger.Debug("thumbnail uploaded", zap.String("key", key), zap.Int("bytes", len(file.Data)))
	return u.publicURL + "/" + u.bucket + "/" + key, nil
}

// ObjectKey is "<owner>/thumb_<unix millis>_<content hash><ext>".
func ObjectKey(ownerID string, file File, at time.Time) string {
	sum := blake2b.Sum256(file.Data)
	ext := strings.ToLower(path.Ext(file.Name))
	return fmt.Sprintf("%s/thumb_%d_%s%s", ownerID, at.UnixMilli(), hex.EncodeToString(sum[:8]), ext)
}
