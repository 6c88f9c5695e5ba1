package api

import (
	"context"
	"io"
	nethttp "net/http"
	"net/url"

	"github.com/doclatex/doclatex/internal/models"
)

// Template kinds as the service spells them.
const (
	wireKindBuiltin = "mac_dinh"
	wireKindCustom  = "tuy_chinh"
)

type wireTemplate struct {
	ID   string `json:"id"`
	Name string `json:"ten"`
	Kind string `json:"loai"`
	Size int64  `json:"kichThuoc"`
}

func (w wireTemplate) toModel() models.Template {
	kind := models.TemplateCustom
	if w.Kind == wireKindBuiltin {
		kind = models.TemplateBuiltin
	}
	name := w.Name
	if name == "" {
		name = w.ID
	}
	return models.Template{
		ID:          w.ID,
		DisplayName: name,
		Kind:        kind,
		SizeBytes:   w.Size,
	}
}

// ListTemplates returns the templates known to the service, in server order.
func (c *Client) ListTemplates(ctx context.Context) ([]models.Template, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodGet, "/api/templates")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, newServiceError(resp)
	}

	var body struct {
		Templates []wireTemplate `json:"templates"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}

	out := make([]models.Template, 0, len(body.Templates))
	for _, t := range body.Templates {
		if t.ID == "" {
			continue
		}
		out = append(out, t.toModel())
	}
	return out, nil
}

// UploadTemplate posts a .tex template. The service validates it and
// answers with the stored template or a rejection reason.
func (c *Client) UploadTemplate(ctx context.Context, fileName string, r io.Reader) (models.Template, error) {
	body, contentType, err := buildMultipart("file", fileName, "application/x-tex", r)
	if err != nil {
		return models.Template{}, err
	}

	req, err := c.newRequest(ctx, nethttp.MethodPost, "/api/templates/upload", body)
	if err != nil {
		return models.Template{}, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.once.Do(req)
	if err != nil {
		return models.Template{}, &TransportError{Op: "POST /api/templates/upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Template{}, newServiceError(resp)
	}

	var out struct {
		Template wireTemplate `json:"template"`
		Message  string       `json:"message"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return models.Template{}, err
	}
	if out.Template.ID == "" {
		return models.Template{}, &ServiceError{Status: resp.StatusCode, Message: "template upload response is missing the template id"}
	}
	if out.Template.Kind == "" {
		out.Template.Kind = wireKindCustom
	}
	return out.Template.toModel(), nil
}

// DeleteTemplate removes a custom template on the service.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	resp, err := c.doRequest(ctx, nethttp.MethodDelete, "/api/templates/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newServiceError(resp)
	}
	return nil
}
