// Package job runs one document conversion at a time against the service and
// tracks it through idle, uploading, processing, done and failed.
package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/doclatex/doclatex/internal/api"
	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/identity"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

var (
	// ErrNoFile is returned by Submit without an accepted document.
	ErrNoFile = errors.New("no document selected")
	// ErrNoTemplate is returned by Submit when no template is active.
	ErrNoTemplate = errors.New("no template selected")
	// ErrJobActive is returned by Submit while a job is running or its result
	// has not been reset.
	ErrJobActive = errors.New("a conversion job is already active")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("job controller is closed")
)

// Messages stored on failed jobs when the service gives none.
const (
	MsgTransport      = "cannot connect to the conversion service"
	MsgTimeout        = "the conversion request timed out"
	MsgServiceGeneric = "the conversion service could not convert the document"
)

// historyTimeout bounds the background history append.
const historyTimeout = 30 * time.Second

// Converter sends one document to the conversion service.
type Converter interface {
	Convert(ctx context.Context, req api.ConvertRequest, hooks api.ConvertHooks) (*api.ConvertResult, error)
}

// TemplateSource supplies the active template id at submission time.
type TemplateSource interface {
	Active() string
}

// Recorder appends a finished job to history.
type Recorder interface {
	Record(ctx context.Context, job models.ConversionJob) error
}

// Options configures a Controller. Zero values are usable.
type Options struct {
	Timeout  time.Duration
	Recorder Recorder
	Bus      *events.EventBus
	Logger   *logging.Logger
}

// Controller owns a single ConversionJob.
//
// Every mutation from the request goroutine carries the generation captured
// at Submit; Cancel, Reset and Close bump the generation so late results are
// dropped.
type Controller struct {
	conv      Converter
	templates TemplateSource
	recorder  Recorder
	bus       *events.EventBus
	logger    *logging.Logger
	timeout   time.Duration

	mu     sync.Mutex
	job    models.ConversionJob
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	closed bool

	background sync.WaitGroup
}

// NewController creates an idle controller.
func NewController(conv Converter, templates TemplateSource, opts Options) *Controller {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultConvertTimeout
	}
	return &Controller{
		conv:      conv,
		templates: templates,
		recorder:  opts.Recorder,
		bus:       opts.Bus,
		logger:    logging.OrDefault(opts.Logger).Child("job"),
		timeout:   timeout,
	}
}

// Submit starts converting file with the active template and returns once
// the request is dispatched. Guard failures are returned before any network
// activity. The request is bounded by the controller timeout and by ctx.
func (c *Controller) Submit(ctx context.Context, file *models.SelectedFile) error {
	if file == nil {
		return ErrNoFile
	}
	templateID := ""
	if c.templates != nil {
		templateID = c.templates.Active()
	}
	if templateID == "" {
		return ErrNoTemplate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	switch c.job.Status {
	case models.StatusUploading, models.StatusProcessing, models.StatusDone:
		return ErrJobActive
	}

	c.gen++
	gen := c.gen
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.done = make(chan struct{})

	old := c.job.Status
	c.job = models.ConversionJob{
		Status:          models.StatusUploading,
		ProgressPercent: constants.ProgressDispatched,
		TemplateID:      templateID,
		SourceName:      file.Name,
		StartedAt:       time.Now(),
	}
	c.publishStateLocked(old)
	c.bus.PublishJobProgress(file.Name, c.job.ProgressPercent, "dispatched")

	c.logger.Info().
		Str("file", file.Name).
		Int64("size", file.Size).
		Str("template", templateID).
		Dur("timeout", c.timeout).
		Msg("conversion submitted")

	req := api.ConvertRequest{
		FileName:   file.Name,
		MIMEType:   file.MIMEType,
		Content:    file.Content,
		TemplateID: templateID,
	}
	go c.run(reqCtx, cancel, gen, req)
	return nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, req api.ConvertRequest) {
	defer cancel()

	hooks := api.ConvertHooks{
		OnBytesSent: func(sent, total int64) {
			if total <= 0 {
				return
			}
			span := int64(constants.ProgressHandedOff - constants.ProgressDispatched)
			pct := constants.ProgressDispatched + int(span*sent/total)
			if pct >= constants.ProgressHandedOff {
				pct = constants.ProgressHandedOff - 1
			}
			c.advance(gen, pct, "uploading")
		},
		OnHandedOff: func() {
			c.enterProcessing(gen, constants.ProgressHandedOff)
		},
		OnResponse: func(int) {
			c.enterProcessing(gen, constants.ProgressAcked)
		},
	}

	res, err := c.conv.Convert(ctx, req, hooks)
	c.complete(ctx, gen, res, err)
}

// advance raises progress while the job is uploading or processing.
func (c *Controller) advance(gen uint64, pct int, stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.job.Status.IsActive() {
		return
	}
	if c.raiseLocked(pct) {
		c.bus.PublishJobProgress(c.job.SourceName, c.job.ProgressPercent, stage)
	}
}

// enterProcessing moves uploading to processing and raises progress.
func (c *Controller) enterProcessing(gen uint64, pct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.job.Status.IsActive() {
		return
	}
	if c.job.Status == models.StatusUploading {
		c.job.Status = models.StatusProcessing
		c.publishStateLocked(models.StatusUploading)
	}
	if c.raiseLocked(pct) {
		c.bus.PublishJobProgress(c.job.SourceName, c.job.ProgressPercent, "processing")
	}
}

func (c *Controller) raiseLocked(pct int) bool {
	if pct > constants.ProgressComplete {
		pct = constants.ProgressComplete
	}
	if pct <= c.job.ProgressPercent {
		return false
	}
	c.job.ProgressPercent = pct
	return true
}

// complete applies the request outcome unless the job was superseded.
func (c *Controller) complete(ctx context.Context, gen uint64, res *api.ConvertResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || !c.job.Status.IsActive() {
		c.logger.Debug().Uint64("generation", gen).Msg("discarding stale conversion result")
		return
	}

	old := c.job.Status
	c.job.FinishedAt = time.Now()

	if err == nil {
		c.job.Status = models.StatusDone
		c.raiseLocked(constants.ProgressComplete)
		c.job.JobID = res.JobID
		c.job.ResultText = res.Text
		c.job.OutputArchiveName = res.ArchiveName
		c.job.OutputDocumentName = res.DocumentName
		c.job.Metrics = res.Metrics
		c.finishLocked(old)
		c.bus.PublishJobProgress(c.job.SourceName, c.job.ProgressPercent, "done")

		c.logger.Info().
			Str("job_id", res.JobID).
			Int("pages", res.Metrics.PageCount).
			Int("formulas", res.Metrics.FormulaCount).
			Int("images", res.Metrics.ImageCount).
			Dur("elapsed", c.job.Elapsed()).
			Msg("conversion complete")

		c.recordLocked(c.job)
		return
	}

	// Cancellation of the caller's context, not ours: behave like Cancel.
	if errors.Is(ctx.Err(), context.Canceled) {
		c.job = models.ConversionJob{SourceName: c.job.SourceName}
		c.finishLocked(old)
		c.job.SourceName = ""
		c.logger.Info().Msg("conversion cancelled")
		return
	}

	kind, msg := classify(ctx, err)
	c.job.Status = models.StatusFailed
	c.job.FailureKind = kind
	c.job.ErrorMessage = msg
	c.finishLocked(old)

	c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("conversion failed")
}

// classify maps a request error onto a failure kind and user message.
func classify(ctx context.Context, err error) (models.FailureKind, string) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.FailureTimeout, MsgTimeout
	case api.IsServiceError(err):
		if msg := api.ServiceMessage(err); msg != "" {
			return models.FailureService, msg
		}
		return models.FailureService, MsgServiceGeneric
	case errors.Is(err, api.ErrIncompleteResult):
		return models.FailureService, MsgServiceGeneric
	default:
		return models.FailureTransport, MsgTransport
	}
}

// recordLocked hands a finished job to the recorder without waiting.
func (c *Controller) recordLocked(job models.ConversionJob) {
	if c.recorder == nil {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()

		err := c.recorder.Record(ctx, job)
		switch {
		case err == nil:
		case errors.Is(err, identity.ErrNoIdentity):
			c.logger.Debug().Str("job_id", job.JobID).Msg("no signed-in user; history not recorded")
		default:
			c.logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to record history")
			c.bus.PublishSecondaryFailure("history_append_failed", "conversion finished but history could not be saved", err)
		}
	}()
}

// finishLocked publishes the transition and releases waiters.
func (c *Controller) finishLocked(old models.JobStatus) {
	c.publishStateLocked(old)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *Controller) publishStateLocked(old models.JobStatus) {
	if old == c.job.Status {
		return
	}
	c.bus.PublishJobState(c.job.SourceName, old.String(), c.job.Status.String(),
		c.job.JobID, c.job.ErrorMessage, string(c.job.FailureKind))
}

// Cancel aborts an in-flight job and returns to idle. It reports whether a
// job was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.job.Status.IsActive() {
		return false
	}
	c.gen++
	old := c.job.Status
	name := c.job.SourceName
	c.job = models.ConversionJob{SourceName: name}
	c.finishLocked(old)
	c.job.SourceName = ""
	c.logger.Info().Str("file", name).Msg("conversion cancelled")
	return true
}

// Reset clears a finished or failed job. An active job is cancelled.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	old := c.job.Status
	name := c.job.SourceName
	c.job = models.ConversionJob{SourceName: name}
	c.finishLocked(old)
	c.job.SourceName = ""
}

// Snapshot returns a copy of the current job.
func (c *Controller) Snapshot() models.ConversionJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Wait blocks until the current job leaves uploading and processing, then
// returns its snapshot.
func (c *Controller) Wait(ctx context.Context) (models.ConversionJob, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

// Close cancels any active job and waits for background history writes.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	if c.job.Status.IsActive() {
		old := c.job.Status
		c.job = models.ConversionJob{}
		c.finishLocked(old)
	}
	c.mu.Unlock()

	c.background.Wait()
}
