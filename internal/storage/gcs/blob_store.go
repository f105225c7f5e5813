// Package gcs provides a BlobStore and a JSON document backed by Google Cloud
// Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	name := objectName(s.prefix, path)
	if err := write(ctx, s.client.Bucket(s.bucket).Object(name), contentType, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Document is a single JSON object in a bucket, read and replaced whole.
type Document struct {
	object *storage.ObjectHandle
}

// NewDocument addresses bucket/object.
func NewDocument(client *storage.Client, bucket, object string) (*Document, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("bucket and object are required")
	}
	return &Document{object: client.Bucket(bucket).Object(object)}, nil
}

// Load returns the document body. A missing object is empty, not an error.
func (d *Document) Load(ctx context.Context) ([]byte, error) {
	r, err := d.object.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() {
		_ = r.Close()
	}()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Save replaces the document body.
func (d *Document) Save(ctx context.Context, data []byte) error {
	return write(ctx, d.object, "application/json", strings.NewReader(string(data)))
}

func write(ctx context.Context, obj *storage.ObjectHandle, contentType string, r io.Reader) error {
	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func objectName(prefix, path string) string {
	path = strings.TrimLeft(path, "/")
	if prefix == "" {
		return path
	}
	return prefix + "/" + path
}
