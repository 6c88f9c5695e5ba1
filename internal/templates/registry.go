// Package templates keeps the client's view of the service's formatting
// templates and which one is active.
package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

var (
	// ErrBuiltinTemplate is returned when removing a built-in template.
	ErrBuiltinTemplate = errors.New("built-in templates cannot be removed")
	// ErrUnknownTemplate is returned by SetActive for an id not in the cached list.
	ErrUnknownTemplate = errors.New("unknown template")
)

// Service is the subset of the API client the registry needs.
type Service interface {
	ListTemplates(ctx context.Context) ([]models.Template, error)
	UploadTemplate(ctx context.Context, fileName string, r io.Reader) (models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
}

// Builtins returns the fixed built-in templates in display order.
func Builtins() []models.Template {
	return []models.Template{
		{ID: constants.DefaultTemplateID, DisplayName: "IEEE Conference", Kind: models.TemplateBuiltin},
		{ID: constants.OneColumnTemplateID, DisplayName: "One Column", Kind: models.TemplateBuiltin},
	}
}

// Registry caches the template list and owns the active selection.
type Registry struct {
	svc    Service
	bus    *events.EventBus
	logger *logging.Logger

	mu     sync.Mutex
	extra  []models.Template // server built-ins beyond the fixed set
	custom []models.Template
	active string
}

// NewRegistry returns a registry whose active template is the default built-in.
func NewRegistry(svc Service, bus *events.EventBus, logger *logging.Logger) *Registry {
	return &Registry{
		svc:    svc,
		bus:    bus,
		logger: logging.OrDefault(logger).Child("templates"),
		active: constants.DefaultTemplateID,
	}
}

// List fetches the template list from the service.
// On failure the built-ins are still returned together with the error and
// the cached custom set is emptied. Either way an active id that is no
// longer listed falls back to the default built-in.
func (r *Registry) List(ctx context.Context) ([]models.Template, error) {
	remote, err := r.svc.ListTemplates(ctx)

	r.mu.Lock()
	if err != nil {
		r.extra = nil
		r.custom = nil
	} else {
		r.applyLocked(remote)
	}
	dropped := r.fallbackLocked()
	out := r.snapshotLocked()
	active := r.active
	r.mu.Unlock()

	if dropped != "" {
		r.logger.Info().Str("template", dropped).Str("active", active).Msg("active template no longer listed")
	}
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to list templates")
		if dropped != "" {
			r.bus.PublishTemplatesChanged(active, len(out))
		}
		return out, fmt.Errorf("failed to list templates: %w", err)
	}

	r.bus.PublishTemplatesChanged(active, len(out))
	return out, nil
}

// fallbackLocked resets an unlisted active id to the default built-in and
// returns the id it replaced, or "".
func (r *Registry) fallbackLocked() string {
	if r.knownLocked(r.active) {
		return ""
	}
	dropped := r.active
	r.active = constants.DefaultTemplateID
	return dropped
}

// Templates returns the cached list without contacting the service.
func (r *Registry) Templates() []models.Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Upload sends a template file to the service. The service validates it and
// its rejection reason is returned unchanged. On success the new template
// becomes active and the list is refreshed; a failed refresh is reported as
// a secondary failure and does not fail the upload.
func (r *Registry) Upload(ctx context.Context, fileName string, content io.Reader) (models.Template, error) {
	tmpl, err := r.svc.UploadTemplate(ctx, fileName, content)
	if err != nil {
		return models.Template{}, err
	}
	tmpl.Kind = models.TemplateCustom

	r.mu.Lock()
	r.custom = upsert(r.custom, tmpl)
	r.active = tmpl.ID
	r.mu.Unlock()

	r.logger.Info().Str("template", tmpl.ID).Msg("template uploaded")

	remote, err := r.svc.ListTemplates(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("template list refresh failed after upload")
		r.bus.PublishSecondaryFailure("templates_refresh_failed", "template uploaded but the list could not be refreshed", err)
		return tmpl, nil
	}

	r.mu.Lock()
	r.applyLocked(remote)
	// The service may list the upload late; keep it so the active id stays valid.
	if !r.knownLocked(tmpl.ID) {
		r.custom = append(r.custom, tmpl)
	}
	count := len(Builtins()) + len(r.extra) + len(r.custom)
	r.mu.Unlock()

	r.bus.PublishTemplatesChanged(tmpl.ID, count)
	return tmpl, nil
}

// Remove deletes a custom template. Built-ins are refused without contacting
// the service. If the removed template was active the selection falls back
// to the default built-in.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	builtin := r.isBuiltinLocked(id)
	r.mu.Unlock()
	if builtin {
		return ErrBuiltinTemplate
	}

	if err := r.svc.DeleteTemplate(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	r.custom = without(r.custom, id)
	if r.active == id {
		r.active = constants.DefaultTemplateID
	}
	active := r.active
	count := len(Builtins()) + len(r.extra) + len(r.custom)
	r.mu.Unlock()

	r.logger.Info().Str("template", id).Str("active", active).Msg("template removed")
	r.bus.PublishTemplatesChanged(active, count)
	return nil
}

// Active returns the active template id.
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetActive selects a template known to the cached list.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	if !r.knownLocked(id) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
	}
	r.active = id
	count := len(Builtins()) + len(r.extra) + len(r.custom)
	r.mu.Unlock()

	r.bus.PublishTemplatesChanged(id, count)
	return nil
}

// applyLocked replaces the cache with a server listing.
func (r *Registry) applyLocked(remote []models.Template) {
	r.extra = r.extra[:0:0]
	r.custom = r.custom[:0:0]
	for _, t := range remote {
		switch {
		case isFixedBuiltin(t.ID):
			continue
		case t.Kind == models.TemplateBuiltin:
			r.extra = upsert(r.extra, t)
		default:
			r.custom = upsert(r.custom, t)
		}
	}
}

func (r *Registry) snapshotLocked() []models.Template {
	out := Builtins()
	out = append(out, r.extra...)
	out = append(out, r.custom...)
	return out
}

func (r *Registry) knownLocked(id string) bool {
	if isFixedBuiltin(id) {
		return true
	}
	for _, t := range r.extra {
		if t.ID == id {
			return true
		}
	}
	for _, t := range r.custom {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (r *Registry) isBuiltinLocked(id string) bool {
	if isFixedBuiltin(id) {
		return true
	}
	for _, t := range r.extra {
		if t.ID == id {
			return true
		}
	}
	return false
}

func isFixedBuiltin(id string) bool {
	for _, b := range Builtins() {
		if b.ID == id {
			return true
		}
	}
	return false
}

func upsert(list []models.Template, t models.Template) []models.Template {
	for i := range list {
		if list[i].ID == t.ID {
			list[i] = t
			return list
		}
	}
	return append(list, t)
}

func without(list []models.Template, id string) []models.Template {
	out := list[:0:0]
	for _, t := range list {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
