package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS conversion_history (
    id                 TEXT PRIMARY KEY,
    owner_id           TEXT NOT NULL,
    original_file_name TEXT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    status             TEXT NOT NULL,
    job_id             TEXT NOT NULL,
    template_id        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_conversion_history_owner_time
    ON conversion_history (owner_id, created_at DESC);`

// PostgresStore keeps history in a shared PostgreSQL database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// OpenPostgres connects to dsn and ensures the history table exists.
func OpenPostgres(ctx context.Context, dsn string, logger *logging.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres history DSN is empty")
	}
	logger = logging.OrDefault(logger)

	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	pc.MaxConns = 4
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "doclatex"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(dialCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	logger.Debug().Str("host", pc.ConnConfig.Host).Msg("postgres history store ready")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (p *PostgresStore) Append(ctx context.Context, rec models.HistoryRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO conversion_history
		   (id, owner_id, original_file_name, created_at, status, job_id, template_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.OwnerID, rec.OriginalFileName, rec.Timestamp.UTC(),
		string(rec.Status), rec.JobID, rec.TemplateID,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, ownerID string) ([]models.HistoryRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, owner_id, original_file_name, created_at, status, job_id, template_id
		   FROM conversion_history
		  WHERE owner_id = $1
		  ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var (
			rec    models.HistoryRecord
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.OriginalFileName, &rec.Timestamp, &status, &rec.JobID, &rec.TemplateID); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		rec.Status = models.HistoryStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
