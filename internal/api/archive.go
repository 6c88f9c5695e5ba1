package api

import (
	"context"
	"io"
	"mime"
	nethttp "net/http"
	"net/url"
	"path"
	"strings"
)

// Archive is an open download of a job's output archive.
// The caller must close Body.
type Archive struct {
	Body        io.ReadCloser
	FileName    string
	Size        int64
	ContentType string
}

// FetchArchive opens GET /api/tai-ve-zip/{jobID}. FileName is the name
// suggested by Content-Disposition, or empty when the server sent none.
func (c *Client) FetchArchive(ctx context.Context, jobID string) (*Archive, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodGet, "/api/tai-ve-zip/"+url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != nethttp.StatusOK {
		defer resp.Body.Close()
		return nil, newServiceError(resp)
	}

	return &Archive{
		Body:        resp.Body,
		FileName:    dispositionFileName(resp.Header.Get("Content-Disposition")),
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// dispositionFileName extracts the base file name from a Content-Disposition header.
func dispositionFileName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}
