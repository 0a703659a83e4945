package storage

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSProvider implements Provider for Google Cloud Storage.
type GCSProvider struct {
	client *storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewGCSProvider initializes a new GCS client and verifies the bucket is
// reachable. Authentication is handled via Application Default Credentials.
func NewGCSProvider(ctx context.Context, bucket, prefix string, logger *zap.Logger) (*GCSProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	// Fail fast on startup if the bucket is misconfigured.
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get GCS bucket %q attributes: %w", bucket, err)
	}

	return &GCSProvider{client: client, bucket: bucket, prefix: prefix, logger: logger}, nil
}

// PutObject uploads the data to the bucket under prefix/path.
func (g *GCSProvider) PutObject(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	name := path.Join(g.prefix, objectPath)
	wc := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		wc.ContentType = contentType
	}
	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			g.logger.Warn("close GCS writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("write GCS object %s: %w", name, err)
	}
	// Close finalizes the upload and flushes any buffered data.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close GCS writer for object %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, name), nil
}

// Close releases the underlying client.
func (g *GCSProvider) Close() error {
	return g.client.Close()
}
