package artifact

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/doclatex/doclatex/internal/config"
)

// GCSSink uploads archives to a Google Cloud Storage bucket using
// application default credentials.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a storage client.
func NewGCSSink(ctx context.Context, cfg config.DeliveryConfig) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, config.ErrMissingBucket
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSSink) Deliver(ctx context.Context, req DeliverRequest) (string, int64, error) {
	key := objectKey(s.prefix, req.JobID, req.FileName)

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/zip"

	written, err := io.Copy(w, req.Body)
	if err != nil {
		w.Close()
		return "", 0, fmt.Errorf("failed to upload gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to finalize gs://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), written, nil
}

// Close releases the storage client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}
