// Package api is the HTTP client for the document conversion service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/http"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/version"
)

// Client talks to the conversion service.
//
// Idempotent calls (GET, DELETE) go through a retryablehttp client whose
// retry budget comes from the config and defaults to zero. Uploads are
// never retried by the client; the user retries explicitly.
type Client struct {
	retrying *nethttp.Client
	once     *nethttp.Client
	baseURL  string
	apiKey   string
	logger   *logging.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("service base URL is empty; set base_url in the config or DOCLATEX_API_URL")
	}

	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	return newClient(cfg, httpClient, logger), nil
}

// NewClientWithHTTP creates a client on top of an existing http.Client.
// Used by tests and by callers that share a transport.
func NewClientWithHTTP(cfg *config.Config, httpClient *nethttp.Client, logger *logging.Logger) *Client {
	return newClient(cfg, httpClient, logger)
}

func newClient(cfg *config.Config, httpClient *nethttp.Client, logger *logging.Logger) *Client {
	logger = logging.OrDefault(logger)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = constants.RetryWaitMin
	retryClient.RetryWaitMax = constants.RetryWaitMax
	retryClient.Logger = &logging.RetryLogger{Logger: logger}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		retrying: retryClient.StandardClient(),
		once:     httpClient,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		logger:   logger,
	}
}

// BaseURL returns the service root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newRequest builds a request with the common headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// doRequest performs an idempotent request through the retrying client.
func (c *Client) doRequest(ctx context.Context, method, path string) (*nethttp.Response, error) {
	req, err := c.newRequest(ctx, method, path, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.retrying.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("request complete")
	return resp, nil
}

// decodeJSON decodes a successful response body into v.
func decodeJSON(resp *nethttp.Response, v interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health checks GET /health and returns the reported status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodGet, "/health")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return "", newServiceError(resp)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return "", err
	}
	return body.Status, nil
}
