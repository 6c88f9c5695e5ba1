package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/doclatex/doclatex/internal/identity"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

// Recorder writes finished jobs to a Store on behalf of the current user.
type Recorder struct {
	store  Store
	ids    identity.Provider
	logger *logging.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. A nil provider means signed out.
func NewRecorder(store Store, ids identity.Provider, logger *logging.Logger) *Recorder {
	if ids == nil {
		ids = identity.Static{}
	}
	return &Recorder{
		store:  store,
		ids:    ids,
		logger: logging.OrDefault(logger).Child("history"),
		now:    time.Now,
	}
}

// Record appends a success record for a done job. Without a signed-in user
// nothing is written and ErrNoIdentity is returned.
func (r *Recorder) Record(ctx context.Context, job models.ConversionJob) error {
	if job.Status != models.StatusDone {
		return fmt.Errorf("cannot record job in state %s", job.Status)
	}

	owner, err := r.ids.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrNoIdentity) {
			r.logger.Debug().Str("job_id", job.JobID).Msg("skipping history record: not signed in")
		}
		return err
	}

	ts := job.FinishedAt
	if ts.IsZero() {
		ts = r.now()
	}
	rec := models.HistoryRecord{
		ID:               uuid.NewString(),
		OwnerID:          owner,
		OriginalFileName: job.SourceName,
		Timestamp:        ts.UTC(),
		Status:           models.HistorySuccess,
		JobID:            job.JobID,
		TemplateID:       job.TemplateID,
	}
	if err := r.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}

	r.logger.Debug().Str("job_id", job.JobID).Str("owner", owner).Msg("history recorded")
	return nil
}

// History returns the current user's records matching q, plus stats over
// all of that user's records.
func (r *Recorder) History(ctx context.Context, q Query) ([]models.HistoryRecord, models.HistoryStats, error) {
	owner, err := r.ids.CurrentUser(ctx)
	if err != nil {
		return nil, models.HistoryStats{}, err
	}
	all, err := r.store.List(ctx, owner)
	if err != nil {
		return nil, models.HistoryStats{}, fmt.Errorf("failed to list history: %w", err)
	}
	return Filter(all, q), Stats(all), nil
}
