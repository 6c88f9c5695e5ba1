// Package history records finished conversions per user and answers
// history queries. Records are only ever appended.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/identity"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

// ErrNoIdentity is returned by Record when no user is signed in.
var ErrNoIdentity = identity.ErrNoIdentity

// Store persists history records.
type Store interface {
	Append(ctx context.Context, rec models.HistoryRecord) error
	// List returns every record owned by ownerID, newest first.
	List(ctx context.Context, ownerID string) ([]models.HistoryRecord, error)
	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.HistoryConfig, logger *logging.Logger) (Store, error) {
	logger = logging.OrDefault(logger).Child("history")

	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nopStore{}, nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresDSN, logger)
	case "firestore":
		return OpenFirestore(ctx, cfg.FirestoreProject, cfg.FirestoreCollection, logger)
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidHistoryBackend, cfg.Backend)
	}
}

// nopStore discards records; used when history is disabled.
type nopStore struct{}

func (nopStore) Append(context.Context, models.HistoryRecord) error { return nil }
func (nopStore) List(context.Context, string) ([]models.HistoryRecord, error) {
	return nil, nil
}
func (nopStore) Close() error { return nil }
