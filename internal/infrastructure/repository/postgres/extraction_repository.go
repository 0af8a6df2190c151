package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

const schemaLockKey = int64(2026101901)

type ExtractionRepository struct {
	db *sql.DB
}

func NewExtractionRepository(db *sql.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ExtractionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS extractions (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL DEFAULT '',
	image_ref TEXT NOT NULL,
	image_key TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	result JSONB NOT NULL,
	review_status TEXT NOT NULL,
	corrections JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extractions_review_status ON extractions(review_status);
CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert is idempotent for redelivered events. A record that was already reviewed keeps its
// review status and corrections.
func (r *ExtractionRepository) Upsert(ctx context.Context, record *domain.ExtractionRecord) error {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO extractions (
	id, request_id, image_ref, image_key, provider, confidence, category, result, review_status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	request_id = EXCLUDED.request_id,
	image_ref = EXCLUDED.image_ref,
	image_key = EXCLUDED.image_key,
	provider = EXCLUDED.provider,
	confidence = EXCLUDED.confidence,
	category = EXCLUDED.category,
	result = EXCLUDED.result,
	review_status = CASE WHEN extractions.review_status = 'reviewed' THEN extractions.review_status ELSE EXCLUDED.review_status END,
	updated_at = EXCLUDED.updated_at
`,
		record.ID, record.RequestID, record.ImageRef, record.ImageKey, string(record.Result.Provider),
		record.Result.Confidence, string(record.Result.Category), resultJSON, string(record.ReviewStatus),
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert extraction: %w", err)
	}
	return nil
}

const selectColumns = `id, request_id, image_ref, image_key, result, review_status, corrections, created_at, updated_at`

func (r *ExtractionRepository) GetByID(ctx context.Context, id string) (*domain.ExtractionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+selectColumns+`
FROM extractions
WHERE id = $1
`, id)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrExtractionNotFound, "get extraction", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return &record, nil
}

func (r *ExtractionRepository) List(ctx context.Context, filter domain.RecordFilter) ([]domain.ExtractionRecord, error) {
	filter = filter.Normalize()
	rows, err := r.db.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM extractions
WHERE ($1 = '' OR review_status = $1)
ORDER BY created_at DESC
LIMIT $2
`, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractionRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extractions: %w", err)
	}
	return out, nil
}

func (r *ExtractionRepository) SaveReview(ctx context.Context, id string, corrections domain.FieldCorrections, updatedAt time.Time) error {
	correctionsJSON, err := json.Marshal(corrections)
	if err != nil {
		return fmt.Errorf("marshal corrections: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE extractions
SET corrections = $2, review_status = $3, updated_at = $4
WHERE id = $1
`, id, correctionsJSON, string(domain.ReviewReviewed), updatedAt)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return ensureRowsAffected(res, id)
}

func (r *ExtractionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM extractions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired extractions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (domain.ExtractionRecord, error) {
	var record domain.ExtractionRecord
	var resultRaw []byte
	var correctionsRaw []byte
	var status string

	err := s.Scan(
		&record.ID, &record.RequestID, &record.ImageRef, &record.ImageKey,
		&resultRaw, &status, &correctionsRaw, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, err
		}
		return record, fmt.Errorf("scan extraction: %w", err)
	}

	if err := json.Unmarshal(resultRaw, &record.Result); err != nil {
		return record, fmt.Errorf("unmarshal result: %w", err)
	}
	if len(correctionsRaw) > 0 {
		var corrections domain.FieldCorrections
		if err := json.Unmarshal(correctionsRaw, &corrections); err != nil {
			return record, fmt.Errorf("unmarshal corrections: %w", err)
		}
		record.Corrections = &corrections
	}
	record.ReviewStatus = domain.ReviewStatus(status)
	return record, nil
}

func ensureRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrExtractionNotFound, "update extraction", fmt.Errorf("id=%s", id))
	}
	return nil
}
