package history

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

// FirestoreStore keeps history in a Firestore collection shared with the
// web client. Documents carry the fields uid, tenFileGoc, thoiGian,
// trangThai and jobId.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     *logging.Logger
}

// OpenFirestore creates a client for projectID using ambient credentials.
func OpenFirestore(ctx context.Context, projectID, collection string, logger *logging.Logger) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, errors.New("firestore project id is empty")
	}
	if collection == "" {
		collection = constants.DefaultHistoryCollection
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreStore{client: client, collection: collection, logger: logging.OrDefault(logger)}, nil
}

func (f *FirestoreStore) Append(ctx context.Context, rec models.HistoryRecord) error {
	doc := f.client.Collection(f.collection).NewDoc()
	if rec.ID != "" {
		doc = f.client.Collection(f.collection).Doc(rec.ID)
	}
	if _, err := doc.Create(ctx, rec); err != nil {
		return fmt.Errorf("write history document: %w", err)
	}
	return nil
}

// List sorts client side so no composite index is required.
func (f *FirestoreStore) List(ctx context.Context, ownerID string) ([]models.HistoryRecord, error) {
	docs, err := f.client.Collection(f.collection).Where("uid", "==", ownerID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query history documents: %w", err)
	}

	out := make([]models.HistoryRecord, 0, len(docs))
	for _, d := range docs {
		var rec models.HistoryRecord
		if err := d.DataTo(&rec); err != nil {
			f.logger.Warn().Err(err).Str("doc", d.Ref.ID).Msg("skipping malformed history document")
			continue
		}
		rec.ID = d.Ref.ID
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func (f *FirestoreStore) Close() error {
	return f.client.Close()
}
