package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/facegate/internal/domain/access"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one access_logs row. Rows are never updated or deleted by
// this service.
func (r *AuditRepository) Append(ctx context.Context, rec *domain.AuditRecord) (string, error) {
	const q = `
INSERT INTO access_logs
(id, created_at, image_url, detection_id, matched_card_id, confidence, status, metadata)
VALUES (?,?,?,?,?,?,?,?);
`
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	meta, err := json.Marshal(orEmptyMeta(rec.Metadata))
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, q,
		id, created, rec.ImageURL, rec.DetectionID,
		nullString(rec.MatchedCardID), nullFloat(rec.Confidence),
		string(rec.Status), string(meta),
	)
	if err != nil {
		return "", err
	}
	rec.ID = id
	return id, nil
}

// Latest access attempts, newest first
func (r *AuditRepository) Latest(ctx context.Context, limit int) ([]*domain.AuditRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, created_at, image_url, detection_id, matched_card_id, confidence, status, metadata
FROM access_logs
ORDER BY created_at DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary counts decisions per status since N days
func (r *AuditRepository) Summary(ctx context.Context, sinceDays int) (map[domain.Status]int, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT status, COUNT(*) FROM access_logs
WHERE created_at >= ?
GROUP BY status;
`
	rows, err := r.db.QueryContext(ctx, q, cut)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.Status(status)] = n
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var status string
	var cardID sql.NullString
	var conf sql.NullFloat64
	var meta []byte
	if err := rows.Scan(
		&rec.ID, &rec.CreatedAt, &rec.ImageURL, &rec.DetectionID,
		&cardID, &conf, &status, &meta,
	); err != nil {
		return nil, err
	}
	rec.Status = domain.Status(status)
	if cardID.Valid {
		rec.MatchedCardID = &cardID.String
	}
	if conf.Valid {
		rec.Confidence = &conf.Float64
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &rec.Metadata)
	}
	return &rec, nil
}
