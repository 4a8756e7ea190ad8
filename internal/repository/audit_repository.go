package repository

import (
	"context"
	"database/sql"

	"github.com/marchespei/marchespei-api/internal/models"
)

// AuditRepository records one row per successfully rendered and delivered
// digest. Rows are append-only; nothing in this service updates or deletes
// them.
type AuditRepository interface {
	Create(ctx context.Context, params CreateAuditParams) (models.DigestAuditRecord, error)
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]models.DigestAuditRecord, error)
}

type CreateAuditParams struct {
	UserID          string
	Kind            models.DigestKind
	AlertsTriggered int
	MarketsIncluded int
	Recipient       string
	Body            string
	SentAt          sql.NullTime
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, params CreateAuditParams) (models.DigestAuditRecord, error) {
	const query = `
		INSERT INTO notify.digest_audit (user_id, digest_kind, alerts_triggered, markets_included, recipient, body, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING id, user_id, digest_kind, alerts_triggered, markets_included, recipient, body, sent_at
	`

	row := r.db.QueryRowContext(ctx, query,
		params.UserID,
		params.Kind,
		params.AlertsTriggered,
		params.MarketsIncluded,
		params.Recipient,
		params.Body,
		params.SentAt,
	)
	return scanAuditRecord(row)
}

func (r *auditRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]models.DigestAuditRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	const query = `
		SELECT id, user_id, digest_kind, alerts_triggered, markets_included, recipient, body, sent_at
		FROM notify.digest_audit
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DigestAuditRecord
	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanAuditRecord(scanner interface {
	Scan(dest ...interface{}) error
}) (models.DigestAuditRecord, error) {
	var record models.DigestAuditRecord
	if err := scanner.Scan(
		&record.ID,
		&record.UserID,
		&record.Kind,
		&record.AlertsTriggered,
		&record.MarketsIncluded,
		&record.Recipient,
		&record.Body,
		&record.SentAt,
	); err != nil {
		return models.DigestAuditRecord{}, err
	}
	return record, nil
}
