package templates

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

type fakeService struct {
	mu                  sync.Mutex
	list                []models.Template
	listErr             error
	uploadErr           error
	deleteErr           error
	failListAfterUpload bool
	deleted             []string
	listCalls           int
}

func (f *fakeService) ListTemplates(ctx context.Context) ([]models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Template(nil), f.list...), nil
}

func (f *fakeService) UploadTemplate(ctx context.Context, name string, r io.Reader) (models.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return models.Template{}, f.uploadErr
	}
	data, _ := io.ReadAll(r)
	id := "custom_" + strings.TrimSuffix(name, ".tex")
	t := models.Template{ID: id, DisplayName: name, Kind: models.TemplateCustom, SizeBytes: int64(len(data))}
	f.list = append(f.list, t)
	if f.failListAfterUpload {
		f.listErr = errors.New("connection reset")
	}
	return t, nil
}

func (f *fakeService) DeleteTemplate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	for i, t := range f.list {
		if t.ID == id {
			f.list = append(f.list[:i], f.list[i+1:]...)
			break
		}
	}
	return nil
}

func ids(list []models.Template) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.ID
	}
	return out
}

func TestRegistry_ListOrdering(t *testing.T) {
	svc := &fakeService{list: []models.Template{
		{ID: "custom_b", Kind: models.TemplateCustom},
		{ID: "onecolumn", Kind: models.TemplateBuiltin},
		{ID: "twocolumn", Kind: models.TemplateBuiltin},
		{ID: "custom_a", Kind: models.TemplateCustom},
	}}
	r := NewRegistry(svc, nil, logging.NewNopLogger())

	got, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"ieee_conference", "onecolumn", "twocolumn", "custom_b", "custom_a"}
	if strings.Join(ids(got), ",") != strings.Join(want, ",") {
		t.Errorf("List() = %v, want %v", ids(got), want)
	}
}

func TestRegistry_ListFailureReturnsBuiltins(t *testing.T) {
	svc := &fakeService{list: []models.Template{{ID: "custom_a", Kind: models.TemplateCustom}}}
	r := NewRegistry(svc, nil, logging.NewNopLogger())
	if _, err := r.List(context.Background()); err != nil {
		t.Fatal(err)
	}

	svc.listErr = errors.New("dial tcp: connection refused")
	got, err := r.List(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Join(ids(got), ",") != "ieee_conference,onecolumn" {
		t.Errorf("expected built-ins only, got %v", ids(got))
	}
	if len(r.Templates()) != 2 {
		t.Error("cached custom set should be emptied")
	}
}

func TestRegistry_UploadActivatesTemplate(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()
	changes := bus.Subscribe(events.EventTemplatesChanged)

	svc := &fakeService{}
	r := NewRegistry(svc, bus, logging.NewNopLogger())

	tmpl, err := r.Upload(context.Background(), "thesis.tex", strings.NewReader(`\documentclass{report}`))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if tmpl.ID != "custom_thesis" {
		t.Errorf("unexpected id %s", tmpl.ID)
	}
	if r.Active() != "custom_thesis" {
		t.Errorf("Active() = %s, want custom_thesis", r.Active())
	}
	if svc.listCalls != 1 {
		t.Errorf("expected one refresh, got %d", svc.listCalls)
	}

	select {
	case ev := <-changes:
		if ev.(*events.TemplatesChangedEvent).ActiveID != "custom_thesis" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for templates event")
	}
}

func TestRegistry_UploadRejected(t *testing.T) {
	reject := errors.New("File template không hợp lệ")
	svc := &fakeService{uploadErr: reject}
	r := NewRegistry(svc, nil, logging.NewNopLogger())

	_, err := r.Upload(context.Background(), "x.tex", strings.NewReader("x"))
	if !errors.Is(err, reject) {
		t.Errorf("expected server reason unchanged, got %v", err)
	}
	if r.Active() != "ieee_conference" {
		t.Errorf("active changed on rejection: %s", r.Active())
	}
}

func TestRegistry_UploadRefreshFailureIsSecondary(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()
	notes := bus.Subscribe(events.EventNotification)

	svc := &fakeService{failListAfterUpload: true}
	r := NewRegistry(svc, bus, logging.NewNopLogger())

	tmpl, err := r.Upload(context.Background(), "thesis.tex", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("upload should succeed despite refresh failure, got %v", err)
	}
	if r.Active() != tmpl.ID {
		t.Errorf("Active() = %s, want %s", r.Active(), tmpl.ID)
	}
	found := false
	for _, tt := range r.Templates() {
		if tt.ID == tmpl.ID {
			found = true
		}
	}
	if !found {
		t.Error("uploaded template should stay in the cache")
	}

	select {
	case ev := <-notes:
		n := ev.(*events.NotificationEvent)
		if !n.Secondary || n.Source != "templates_refresh_failed" {
			t.Errorf("unexpected notification %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("expected secondary failure notification")
	}
}

func TestRegistry_RemoveBuiltin(t *testing.T) {
	svc := &fakeService{list: []models.Template{{ID: "twocolumn", Kind: models.TemplateBuiltin}}}
	r := NewRegistry(svc, nil, logging.NewNopLogger())
	r.List(context.Background())

	for _, id := range []string{"ieee_conference", "onecolumn", "twocolumn"} {
		if err := r.Remove(context.Background(), id); !errors.Is(err, ErrBuiltinTemplate) {
			t.Errorf("Remove(%s) = %v, want ErrBuiltinTemplate", id, err)
		}
	}
	if len(svc.deleted) != 0 {
		t.Errorf("built-in removal must not reach the service, got %v", svc.deleted)
	}
}

func TestRegistry_RemoveActiveResetsDefault(t *testing.T) {
	svc := &fakeService{list: []models.Template{{ID: "custom_x", Kind: models.TemplateCustom}}}
	r := NewRegistry(svc, nil, logging.NewNopLogger())
	r.List(context.Background())

	if err := r.SetActive("custom_x"); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(context.Background(), "custom_x"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if r.Active() != "ieee_conference" {
		t.Errorf("Active() = %s, want ieee_conference", r.Active())
	}
	for _, tt := range r.Templates() {
		if tt.ID == "custom_x" {
			t.Error("removed template still cached")
		}
	}
}

func TestRegistry_RemoveInactiveKeepsSelection(t *testing.T) {
	svc := &fakeService{list: []models.Template{
		{ID: "custom_x", Kind: models.TemplateCustom},
		{ID: "custom_y", Kind: models.TemplateCustom},
	}}
	r := NewRegistry(svc, nil, logging.NewNopLogger())
	r.List(context.Background())
	r.SetActive("custom_y")

	if err := r.Remove(context.Background(), "custom_x"); err != nil {
		t.Fatal(err)
	}
	if r.Active() != "custom_y" {
		t.Errorf("Active() = %s, want custom_y", r.Active())
	}
}

func TestRegistry_RemoveServiceFailure(t *testing.T) {
	svc := &fakeService{list: []models.Template{{ID: "custom_x", Kind: models.TemplateCustom}}}
	r := NewRegistry(svc, nil, logging.NewNopLogger())
	r.List(context.Background())
	r.SetActive("custom_x")

	svc.deleteErr = errors.New("Không tìm thấy template")
	if err := r.Remove(context.Background(), "custom_x"); err == nil {
		t.Fatal("expected error")
	}
	if r.Active() != "custom_x" {
		t.Error("failed removal must not change the selection")
	}
}

func TestRegistry_SetActiveUnknown(t *testing.T) {
	r := NewRegistry(&fakeService{}, nil, logging.NewNopLogger())
	if err := r.SetActive("custom_nope"); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("expected ErrUnknownTemplate, got %v", err)
	}
	if err := r.SetActive("onecolumn"); err != nil {
		t.Errorf("built-in should always be selectable, got %v", err)
	}
}

func TestRegistry_ListDropsVanishedActive(t *testing.T) {
	bus := events.NewEventBus(16)
	defer bus.Close()
	changes := bus.Subscribe(events.EventTemplatesChanged)

	svc := &fakeService{list: []models.Template{{ID: "custom_x", Kind: models.TemplateCustom}}}
	r := NewRegistry(svc, bus, logging.NewNopLogger())
	if _, err := r.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActive("custom_x"); err != nil {
		t.Fatal(err)
	}

	// Removed elsewhere; the next listing no longer has it.
	svc.mu.Lock()
	svc.list = nil
	svc.mu.Unlock()

	got, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if r.Active() != "ieee_conference" {
		t.Errorf("Active() = %s, want ieee_conference", r.Active())
	}
	found := false
	for _, tt := range got {
		if tt.ID == r.Active() {
			found = true
		}
	}
	if !found {
		t.Errorf("active id %s missing from %v", r.Active(), ids(got))
	}

	var last *events.TemplatesChangedEvent
	for {
		select {
		case ev := <-changes:
			last = ev.(*events.TemplatesChangedEvent)
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
	if last == nil || last.ActiveID != "ieee_conference" {
		t.Errorf("expected a change event naming the default, got %+v", last)
	}
}

func TestRegistry_ListFailureDropsCustomActive(t *testing.T) {
	svc := &fakeService{list: []models.Template{
		{ID: "twocolumn", Kind: models.TemplateBuiltin},
		{ID: "custom_x", Kind: models.TemplateCustom},
	}}
	r := NewRegistry(svc, nil, logging.NewNopLogger())
	if _, err := r.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.SetActive("custom_x")

	svc.listErr = errors.New("dial tcp: connection refused")
	if _, err := r.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if r.Active() != "ieee_conference" {
		t.Errorf("Active() = %s, want ieee_conference", r.Active())
	}

	// A built-in active id survives a failed listing.
	r.SetActive("onecolumn")
	if _, err := r.List(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if r.Active() != "onecolumn" {
		t.Errorf("Active() = %s, want onecolumn", r.Active())
	}
}
