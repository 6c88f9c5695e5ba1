package artifact

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/doclatex/doclatex/internal/config"
)

// AzureSink uploads archives to an Azure Blob container. The account URL
// carries a SAS token in its query string.
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
	baseURL   string
}

// NewAzureSink creates a blob client that reuses httpClient's transport.
func NewAzureSink(cfg config.DeliveryConfig, httpClient *nethttp.Client) (*AzureSink, error) {
	if cfg.AzureAccountURL == "" || cfg.AzureContainer == "" {
		return nil, config.ErrMissingAzureContainer
	}

	opts := &azblob.ClientOptions{}
	if httpClient != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: httpClient}
	}
	client, err := azblob.NewClientWithNoCredential(cfg.AzureAccountURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureSink{
		client:    client,
		container: cfg.AzureContainer,
		prefix:    cfg.Prefix,
		baseURL:   stripQuery(cfg.AzureAccountURL),
	}, nil
}

func (s *AzureSink) Deliver(ctx context.Context, req DeliverRequest) (string, int64, error) {
	counter := &countingReader{r: req.Body}
	blob := objectKey(s.prefix, req.JobID, req.FileName)

	if _, err := s.client.UploadStream(ctx, s.container, blob, counter, nil); err != nil {
		return "", 0, fmt.Errorf("failed to upload blob %s/%s: %w", s.container, blob, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.container, blob), counter.n, nil
}

// stripQuery drops the SAS token so it never reaches logs or output.
func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.SplitN(raw, "?", 2)[0]
	}
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
