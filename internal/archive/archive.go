// Package archive stores scanned receipt images in a GCS bucket so the
// original document survives independently of the transaction row. It
// assumes Application Default Credentials are configured.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// Archive uploads and lists receipt images in one bucket.
type Archive struct {
	bucket string
}

// New creates an archive for the given bucket.
func New(bucket string) *Archive {
	return &Archive{bucket: bucket}
}

// Object describes one archived receipt image.
type Object struct {
	Name        string    `json:"name"`
	URI         string    `json:"uri"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Created     time.Time `json:"created"`
}

// Store uploads an image under receipts/<user>/<date>/<uuid> and returns
// its gs:// URI.
func (a *Archive) Store(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	objectName := fmt.Sprintf("receipts/%s/%s/%s%s",
		userID, time.Now().Format("2006/01/02"), uuid.New().String(), extensionFor(contentType))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy image to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// List returns the archived receipts of one user, newest path first.
func (a *Archive) List(ctx context.Context, userID string) ([]Object, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	prefix := fmt.Sprintf("receipts/%s/", userID)
	it := client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var out []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects with prefix %q: %w", prefix, err)
		}
		out = append(out, Object{
			Name:        attrs.Name,
			URI:         fmt.Sprintf("gs://%s/%s", a.bucket, attrs.Name),
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			Created:     attrs.Created,
		})
	}
	return out, nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	default:
		return ".jpg"
	}
}
