package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSBucket is a Bucket backed by a Google Cloud Storage bucket.
type GCSBucket struct {
	client *storage.Client
	handle *storage.BucketHandle
	name   string
}

// OpenGCS creates a storage client and verifies that the bucket exists.
// A missing bucket yields an error wrapping ErrUnavailable.
func OpenGCS(ctx context.Context, name string, opts ...option.ClientOption) (*GCSBucket, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: gcs client: %w", err)
	}

	handle := client.Bucket(name)
	if _, err := handle.Attrs(ctx); err != nil {
		client.Close()
		if errors.Is(err, storage.ErrBucketNotExist) || isNotFound(err) {
			return nil, fmt.Errorf("objstore: gcs bucket %q: %w", name, ErrUnavailable)
		}
		return nil, fmt.Errorf("objstore: gcs bucket %q attrs: %w", name, err)
	}

	return &GCSBucket{client: client, handle: handle, name: name}, nil
}

// Name returns the gs:// URL of the bucket.
func (b *GCSBucket) Name() string {
	return "gs://" + b.name
}

// Get downloads the object at key.
func (b *GCSBucket) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.handle.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("objstore: gcs read %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("objstore: gcs read %s: %w", key, err)
	}
	return data, nil
}

// Put uploads data to key, replacing any existing object.
func (b *GCSBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.handle.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("objstore: gcs write %s: %w", key, err)
	}
	// The upload is only committed by Close.
	if err := w.Close(); err != nil {
		return fmt.Errorf("objstore: gcs commit %s: %w", key, err)
	}
	return nil
}

// Exists checks object metadata without downloading the body.
func (b *GCSBucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.handle.Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) || isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("objstore: gcs attrs %s: %w", key, err)
}

// Close releases the underlying client.
func (b *GCSBucket) Close() error {
	return b.client.Close()
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
