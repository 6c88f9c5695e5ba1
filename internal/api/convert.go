package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/textproto"
	"net/url"
	"sync"

	"github.com/doclatex/doclatex/internal/models"
)

// ConvertRequest is one document submission.
type ConvertRequest struct {
	FileName   string
	MIMEType   string
	Content    []byte
	TemplateID string
}

// ConvertHooks observe a conversion request as it progresses.
// All hooks are optional and are called from the goroutine running Convert.
type ConvertHooks struct {
	// OnBytesSent reports request body bytes written so far.
	OnBytesSent func(sent, total int64)
	// OnHandedOff fires once the whole body has been written to the transport.
	OnHandedOff func()
	// OnResponse fires once response headers arrive.
	OnResponse func(status int)
}

// ConvertResult is the decoded success response.
type ConvertResult struct {
	JobID        string
	Text         string
	ArchiveName  string
	DocumentName string
	Metrics      models.Metrics
}

// convertResponse is the wire shape. Numeric fields are decoded as
// pointers so null and missing both map to zero.
type convertResponse struct {
	TexContent   *string `json:"tex_content"`
	JobID        *string `json:"job_id"`
	ArchiveName  string  `json:"ten_file_zip"`
	DocumentName string  `json:"ten_file_latex"`
	Metadata     struct {
		PageCount    *float64 `json:"so_trang"`
		FormulaCount *float64 `json:"so_cong_thuc"`
		ImageCount   *float64 `json:"so_hinh_anh"`
		Elapsed      *float64 `json:"thoi_gian_xu_ly_giay"`
	} `json:"metadata"`
}

// Convert uploads a document to POST /api/chuyen-doi and waits for the result.
// The request is sent exactly once.
func (c *Client) Convert(ctx context.Context, req ConvertRequest, hooks ConvertHooks) (*ConvertResult, error) {
	body, contentType, err := buildMultipart("file", req.FileName, req.MIMEType, bytes.NewReader(req.Content))
	if err != nil {
		return nil, err
	}

	path := "/api/chuyen-doi?template_type=" + url.QueryEscape(req.TemplateID)
	reader := newProgressReader(body.Bytes(), hooks.OnBytesSent, hooks.OnHandedOff)

	httpReq, err := c.newRequest(ctx, nethttp.MethodPost, path, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.ContentLength = int64(body.Len())

	c.logger.Debug().
		Str("file", req.FileName).
		Str("template", req.TemplateID).
		Int("bytes", body.Len()).
		Msg("submitting conversion")

	resp, err := c.once.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "POST /api/chuyen-doi", Err: err}
	}
	defer resp.Body.Close()

	// A server may answer before reading the whole body; the payload is
	// still considered handed off at this point.
	reader.finish()
	if hooks.OnResponse != nil {
		hooks.OnResponse(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newServiceError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read conversion response", Err: err}
	}
	return decodeConvertResult(raw)
}

func decodeConvertResult(raw []byte) (*ConvertResult, error) {
	var wire convertResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteResult, err)
	}
	if wire.JobID == nil || *wire.JobID == "" || wire.TexContent == nil || *wire.TexContent == "" {
		return nil, ErrIncompleteResult
	}

	m := wire.Metadata
	return &ConvertResult{
		JobID:        *wire.JobID,
		Text:         *wire.TexContent,
		ArchiveName:  wire.ArchiveName,
		DocumentName: wire.DocumentName,
		Metrics: models.Metrics{
			PageCount:      intOrZero(m.PageCount),
			FormulaCount:   intOrZero(m.FormulaCount),
			ImageCount:     intOrZero(m.ImageCount),
			ElapsedSeconds: floatOrZero(m.Elapsed),
		},
	}, nil
}

func intOrZero(v *float64) int {
	if v == nil {
		return 0
	}
	return int(*v)
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// buildMultipart writes a single-file multipart form into memory.
func buildMultipart(field, fileName, contentType string, r io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("failed to write form part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// progressReader reports bytes as the transport pulls them.
type progressReader struct {
	r        *bytes.Reader
	total    int64
	sent     int64
	onSent   func(sent, total int64)
	onDone   func()
	doneOnce sync.Once
}

func newProgressReader(data []byte, onSent func(int64, int64), onDone func()) *progressReader {
	return &progressReader{
		r:      bytes.NewReader(data),
		total:  int64(len(data)),
		onSent: onSent,
		onDone: onDone,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onSent != nil {
			p.onSent(p.sent, p.total)
		}
	}
	if err == io.EOF {
		p.finish()
	}
	return n, err
}

func (p *progressReader) finish() {
	p.doneOnce.Do(func() {
		if p.onDone != nil {
			p.onDone()
		}
	})
}
