// Package media stores book cover images in S3-compatible object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader writes cover images to a MinIO bucket and hands back the public
// URL stored on the book.
type Uploader struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base URL covers are served from; defaults to the
	// endpoint itself when empty.
	PublicURL string
}

// NewUploader connects to the object store and ensures the bucket exists.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &Uploader{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// UploadCover stores one cover image and returns its public URL. The object
// name is derived from the book id so re-uploads replace the old cover.
func (u *Uploader) UploadCover(ctx context.Context, bookID int64, contentType string, body io.Reader, size int64) (string, error) {
	ext, err := extensionFor(contentType)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("covers/book-%d%s", bookID, ext)

	_, err = u.client.PutObject(ctx, u.bucket, name, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload cover: %w", err)
	}
	return u.publicURL + "/" + name, nil
}

func extensionFor(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported cover content type %q", contentType)
	}
}
