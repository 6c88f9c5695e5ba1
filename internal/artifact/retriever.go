// Package artifact downloads a finished job's output archive and delivers
// it to a local directory or a cloud bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/doclatex/doclatex/internal/api"
	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/validation"
)

// ErrInvalidJobID is returned before any request when the job id is empty or malformed.
var ErrInvalidJobID = errors.New("invalid job id")

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Source opens a job's archive on the service.
type Source interface {
	FetchArchive(ctx context.Context, jobID string) (*api.Archive, error)
}

// ProgressReporter draws download progress.
type ProgressReporter interface {
	Start(name string, size int64) Tracker
}

// Tracker follows one download.
type Tracker interface {
	ProxyReader(r io.Reader) io.Reader
	Complete(location string, err error)
}

// Delivery describes a delivered archive.
type Delivery struct {
	JobID    string
	FileName string
	Location string
	Bytes    int64
}

// Retriever fetches archives and hands them to a Sink. It never retries and
// never touches job state.
type Retriever struct {
	src      Source
	sink     Sink
	bus      *events.EventBus
	progress ProgressReporter
	logger   *logging.Logger
}

// NewRetriever creates a retriever. bus and progress may be nil.
func NewRetriever(src Source, sink Sink, bus *events.EventBus, progress ProgressReporter, logger *logging.Logger) *Retriever {
	return &Retriever{
		src:      src,
		sink:     sink,
		bus:      bus,
		progress: progress,
		logger:   logging.OrDefault(logger).Child("artifact"),
	}
}

// ValidJobID reports whether id looks like a service job id.
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

// FetchArchive downloads the archive for jobID. The file name comes from the
// response's Content-Disposition, else fallbackName, else "<jobID>.zip".
func (r *Retriever) FetchArchive(ctx context.Context, jobID, fallbackName string) (Delivery, error) {
	if !ValidJobID(jobID) {
		return Delivery{}, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}

	archive, err := r.src.FetchArchive(ctx, jobID)
	if err != nil {
		return Delivery{}, fmt.Errorf("failed to download archive for job %s: %w", jobID, err)
	}
	defer archive.Body.Close()

	name := r.resolveName(jobID, archive.FileName, fallbackName)

	var body io.Reader = archive.Body
	var tracker Tracker
	if r.progress != nil {
		tracker = r.progress.Start(name, archive.Size)
		body = tracker.ProxyReader(body)
	}

	location, written, err := r.sink.Deliver(ctx, DeliverRequest{
		JobID:    jobID,
		FileName: name,
		Body:     body,
		Size:     archive.Size,
	})
	if tracker != nil {
		tracker.Complete(location, err)
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("failed to save archive for job %s: %w", jobID, err)
	}

	r.logger.Info().
		Str("job_id", jobID).
		Str("location", location).
		Int64("bytes", written).
		Msg("archive delivered")
	r.bus.PublishArtifactDownloaded(jobID, location, written)

	return Delivery{JobID: jobID, FileName: name, Location: location, Bytes: written}, nil
}

// resolveName picks the first usable candidate name.
func (r *Retriever) resolveName(jobID string, candidates ...string) string {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if err := validation.ValidateFilename(name); err != nil {
			r.logger.Warn().Err(err).Str("job_id", jobID).Msg("ignoring unsafe archive name")
			continue
		}
		return name
	}
	return jobID + ".zip"
}
