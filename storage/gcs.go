package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

// BlobStore is the blob access surface the fetch layer depends on.
type BlobStore interface {
	// Exists reports whether the object is present in the bucket.
	Exists(ctx context.Context, bucket, object string) (bool, error)
	// Download returns the full object contents.
	Download(ctx context.Context, bucket, object string) ([]byte, error)
}

// Client wraps the process-scoped GCS client. It is safe for concurrent
// use and shared across requests.
type Client struct {
	gcs *gcs.Client
}

// NewClient builds the GCS-backed blob store using ambient credentials.
func NewClient(ctx context.Context) (*Client, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	return &Client{gcs: c}, nil
}

func (c *Client) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := c.gcs.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := c.gcs.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.gcs.Close()
}
