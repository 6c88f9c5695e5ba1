package artifact

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"path"
	"strings"

	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/logging"
)

// DeliverRequest is one archive to store.
type DeliverRequest struct {
	JobID    string
	FileName string
	Body     io.Reader
	// Size is the expected length, or -1 when unknown.
	Size int64
}

// Sink stores a downloaded archive and returns where it went.
type Sink interface {
	Deliver(ctx context.Context, req DeliverRequest) (location string, written int64, err error)
}

// NewSink builds the sink selected by cfg.Sink. outputDir is used by the
// local sink; httpClient carries proxy settings to the cloud SDKs.
func NewSink(ctx context.Context, cfg config.DeliveryConfig, outputDir string, httpClient *nethttp.Client, logger *logging.Logger) (Sink, error) {
	switch strings.ToLower(cfg.Sink) {
	case "", "local":
		return NewLocalSink(outputDir, logger), nil
	case "s3":
		return NewS3Sink(ctx, cfg, httpClient)
	case "azure":
		return NewAzureSink(cfg, httpClient)
	case "gcs":
		return NewGCSSink(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidDeliverySink, cfg.Sink)
	}
}

// objectKey places archives under prefix/jobID/ so repeated deliveries of
// different jobs never collide.
func objectKey(prefix, jobID, name string) string {
	return strings.TrimPrefix(path.Join(prefix, jobID, name), "/")
}
