// Package core wires the conversion client together: validation gate,
// template registry, job controller, history, artifact delivery,
// notifications and the result viewer.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/doclatex/doclatex/internal/api"
	"github.com/doclatex/doclatex/internal/artifact"
	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/history"
	"github.com/doclatex/doclatex/internal/http"
	"github.com/doclatex/doclatex/internal/identity"
	"github.com/doclatex/doclatex/internal/job"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
	"github.com/doclatex/doclatex/internal/notify"
	"github.com/doclatex/doclatex/internal/templates"
	"github.com/doclatex/doclatex/internal/validation"
	"github.com/doclatex/doclatex/internal/viewer"
)

// ErrNoArchive is returned by DownloadArchive when the current job has no
// downloadable result.
var ErrNoArchive = errors.New("no finished job to download")

// Options customises engine construction. Zero values are usable.
type Options struct {
	Logger *logging.Logger
	// HTTPClient replaces the proxy-aware client built from the config.
	HTTPClient *nethttp.Client
	// Progress draws archive downloads; nil means no progress output.
	Progress artifact.ProgressReporter
	// Identity overrides the user resolved from the config.
	Identity identity.Provider
	// Clipboard overrides the system clipboard.
	Clipboard viewer.Clipboard
	// Store overrides the history backend selected by the config.
	Store history.Store
	// Sink overrides the delivery sink selected by the config.
	Sink artifact.Sink
}

// Engine is the single entry point used by the CLI.
type Engine struct {
	config *config.Config
	logger *logging.Logger
	bus    *events.EventBus

	client     *api.Client
	gate       *validation.Gate
	registry   *templates.Registry
	controller *job.Controller
	store      history.Store
	recorder   *history.Recorder
	retriever  *artifact.Retriever
	sink       artifact.Sink
	notifier   *notify.Notifier
	viewer     *viewer.Viewer

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	closeOnce   sync.Once
}

// NewEngine builds every component from cfg. The history store and the
// delivery sink are opened here, so ctx bounds their connection setup.
func NewEngine(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.OrDefault(opts.Logger)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = http.ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
	}
	client := api.NewClientWithHTTP(cfg, httpClient, logger)

	store := opts.Store
	if store == nil {
		var err error
		store, err = history.Open(ctx, cfg.History, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	sink := opts.Sink
	if sink == nil {
		uploadClient := opts.HTTPClient
		if uploadClient == nil {
			var err error
			uploadClient, err = http.NewDownloadClient(cfg)
			if err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("failed to configure delivery client: %w", err)
			}
		}
		var err error
		sink, err = artifact.NewSink(ctx, cfg.Delivery, cfg.OutputDir, uploadClient, logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create %s delivery: %w", cfg.Delivery.Sink, err)
		}
	}

	ids := opts.Identity
	if ids == nil {
		ids = identity.FromConfig(cfg.UserID, false)
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	registry := templates.NewRegistry(client, bus, logger)
	recorder := history.NewRecorder(store, ids, logger)

	e := &Engine{
		config:   cfg,
		logger:   logger,
		bus:      bus,
		client:   client,
		gate:     validation.NewGate(),
		registry: registry,
		controller: job.NewController(client, registry, job.Options{
			Timeout:  cfg.ConvertTimeout(),
			Recorder: recorder,
			Bus:      bus,
			Logger:   logger,
		}),
		store:     store,
		recorder:  recorder,
		retriever: artifact.NewRetriever(client, sink, bus, opts.Progress, logger),
		sink:      sink,
		notifier:  notify.NewNotifier(cfg.NotificationsEnabled, logger),
		viewer:    viewer.New(opts.Clipboard),
	}

	if cfg.DefaultTemplate != "" && cfg.DefaultTemplate != constants.DefaultTemplateID {
		if err := registry.SetActive(cfg.DefaultTemplate); err != nil {
			// Custom ids are only known after the first List.
			logger.Debug().Str("template", cfg.DefaultTemplate).Msg("default template not known yet")
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	e.watchCancel = cancel
	e.watchDone = make(chan struct{})
	go func() {
		defer close(e.watchDone)
		e.notifier.Watch(watchCtx, bus)
	}()

	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config {
	return e.config
}

// Events returns the event bus for subscriptions.
func (e *Engine) Events() *events.EventBus {
	return e.bus
}

// Health asks the service for its status.
func (e *Engine) Health(ctx context.Context) (string, error) {
	return e.client.Health(ctx)
}

// SelectFile reads a document from disk and runs it through the validation
// gate. A rejected document clears the previous selection. An accepted
// document returns the job to idle, cancelling one that is still in flight.
func (e *Engine) SelectFile(path string) (validation.Result, error) {
	file, err := models.LoadSelectedFile(path)
	if err != nil {
		return validation.Result{}, err
	}
	res := e.gate.Submit(file)
	if !res.Accepted() {
		e.logger.Warn().Str("file", file.Name).Str("reason", string(res.Err.Kind)).Msg("document rejected")
		return res, nil
	}

	if prev := e.controller.Snapshot().Status; prev != models.StatusIdle {
		e.controller.Reset()
		e.logger.Debug().
			Str("file", file.Name).
			Str("previous", prev.String()).
			Msg("new document selected; previous job cleared")
	}
	return res, nil
}

// SelectedFile returns the currently accepted document, or nil.
func (e *Engine) SelectedFile() *models.SelectedFile {
	return e.gate.Current()
}

// RefreshTemplates reloads the template list from the service and then
// re-applies the configured default template when it is now known.
func (e *Engine) RefreshTemplates(ctx context.Context) ([]models.Template, error) {
	list, err := e.registry.List(ctx)
	if err == nil && e.config.DefaultTemplate != "" && e.registry.Active() == constants.DefaultTemplateID {
		if err := e.registry.SetActive(e.config.DefaultTemplate); err != nil {
			e.logger.Debug().Err(err).Str("template", e.config.DefaultTemplate).Msg("configured default template not offered by the service")
		}
	}
	return list, err
}

// Templates returns the cached template list.
func (e *Engine) Templates() []models.Template {
	return e.registry.Templates()
}

// ActiveTemplate returns the id used by the next conversion.
func (e *Engine) ActiveTemplate() string {
	return e.registry.Active()
}

// UseTemplate selects the template for the next conversion.
func (e *Engine) UseTemplate(id string) error {
	return e.registry.SetActive(id)
}

// UploadTemplate uploads a template source file and makes it active.
func (e *Engine) UploadTemplate(ctx context.Context, path string) (models.Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Template{}, fmt.Errorf("failed to open template: %w", err)
	}
	defer f.Close()
	return e.registry.Upload(ctx, filepath.Base(path), f)
}

// RemoveTemplate deletes a custom template.
func (e *Engine) RemoveTemplate(ctx context.Context, id string) error {
	return e.registry.Remove(ctx, id)
}

// Convert submits the selected document with the active template.
func (e *Engine) Convert(ctx context.Context) error {
	return e.controller.Submit(ctx, e.gate.Current())
}

// Wait blocks until the current job leaves uploading and processing.
func (e *Engine) Wait(ctx context.Context) (models.ConversionJob, error) {
	return e.controller.Wait(ctx)
}

// Cancel abandons the in-flight job.
func (e *Engine) Cancel() bool {
	return e.controller.Cancel()
}

// Reset returns the job to idle so a new document can be converted.
func (e *Engine) Reset() {
	e.controller.Reset()
}

// Job returns a snapshot of the current job.
func (e *Engine) Job() models.ConversionJob {
	return e.controller.Snapshot()
}

// ResultText returns the LaTeX text of a finished job.
func (e *Engine) ResultText() (string, bool) {
	return e.viewer.Text(e.controller.Snapshot())
}

// CopyResult puts the LaTeX text of a finished job on the clipboard.
func (e *Engine) CopyResult() error {
	return e.viewer.Copy(e.controller.Snapshot())
}

// DownloadArchive fetches the archive of the current finished job.
func (e *Engine) DownloadArchive(ctx context.Context) (artifact.Delivery, error) {
	j := e.controller.Snapshot()
	if j.Status != models.StatusDone || j.JobID == "" {
		return artifact.Delivery{}, ErrNoArchive
	}
	return e.retriever.FetchArchive(ctx, j.JobID, j.OutputArchiveName)
}

// Download fetches the archive of any job id, for example one from history.
func (e *Engine) Download(ctx context.Context, jobID, name string) (artifact.Delivery, error) {
	return e.retriever.FetchArchive(ctx, jobID, name)
}

// History returns the signed-in user's filtered history and its stats.
func (e *Engine) History(ctx context.Context, q history.Query) ([]models.HistoryRecord, models.HistoryStats, error) {
	return e.recorder.History(ctx, q)
}

// ExportHistory writes the user's full history as an XLSX workbook.
func (e *Engine) ExportHistory(ctx context.Context, w io.Writer) (int, error) {
	records, _, err := e.recorder.History(ctx, history.Query{Limit: -1})
	if err != nil {
		return 0, err
	}
	if err := history.ExportXLSX(w, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close stops the job controller, flushes history writes and releases the
// store, the sink and the event bus.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		e.controller.Close()
		e.watchCancel()
		<-e.watchDone
		if dropped := e.bus.GetDroppedEventCount(); dropped > 0 {
			e.logger.Debug().Int64("dropped", dropped).Msg("event subscribers fell behind")
		}
		e.bus.Close()
		if c, ok := e.sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close delivery: %w", err))
			}
		}
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	})
	return errors.Join(errs...)
}
