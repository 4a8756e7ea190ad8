package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marchespei/marchespei-api/internal/models"
)

// QueueRepository is the durable store of pending digest work. Payloads are
// written once at enqueue time; afterwards only the status columns change.
type QueueRepository interface {
	Enqueue(ctx context.Context, params EnqueueParams) (models.QueueItem, error)
	FetchDuePending(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, sentAt time.Time, errorMessage string) error
}

type EnqueueParams struct {
	RecipientUserID string
	Kind            models.DigestKind
	Groups          []models.AlertGroup
	ScheduledFor    time.Time
}

type queueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Enqueue(ctx context.Context, params EnqueueParams) (models.QueueItem, error) {
	payload, err := json.Marshal(params.Groups)
	if err != nil {
		return models.QueueItem{}, fmt.Errorf("marshal groups: %w", err)
	}

	const query = `
		INSERT INTO notify.digest_queue (recipient_user_id, digest_kind, groups, total_record_count, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING id, recipient_user_id, digest_kind, groups, total_record_count, scheduled_for, status, error_message, sent_at, created_at
	`

	row := r.db.QueryRowContext(ctx, query,
		params.RecipientUserID,
		params.Kind,
		payload,
		models.TotalRecords(params.Groups),
		params.ScheduledFor,
	)
	return scanQueueItem(row)
}

// FetchDuePending claims up to limit due pending items, oldest first.
// SKIP LOCKED keeps two concurrent dispatcher runs from handing out the same
// row while both selects are in flight; the pending-only guard in MarkSent and
// MarkFailed covers the residual overlap once the locks are released.
func (r *queueRepository) FetchDuePending(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		SELECT id, recipient_user_id, digest_kind, groups, total_record_count, scheduled_for, status, error_message, sent_at, created_at
		FROM notify.digest_queue
		WHERE status = 'pending' AND scheduled_for <= $1
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`

	rows, err := tx.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due pending items: %w", err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}
	return items, nil
}

func (r *queueRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	const query = `
		UPDATE notify.digest_queue
		SET status = 'sent', sent_at = $2, error_message = NULL
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id, sentAt)
	return err
}

func (r *queueRepository) MarkFailed(ctx context.Context, id string, sentAt time.Time, errorMessage string) error {
	const query = `
		UPDATE notify.digest_queue
		SET status = 'failed', sent_at = $2, error_message = $3
		WHERE id = $1 AND status = 'pending'
	`
	_, err := r.db.ExecContext(ctx, query, id, sentAt, errorMessage)
	return err
}

func scanQueueItem(scanner interface {
	Scan(dest ...interface{}) error
}) (models.QueueItem, error) {
	var (
		item       models.QueueItem
		groupsRaw  []byte
		errMessage sql.NullString
		sentAt     sql.NullTime
	)

	if err := scanner.Scan(
		&item.ID,
		&item.RecipientUserID,
		&item.Kind,
		&groupsRaw,
		&item.TotalRecordCount,
		&item.ScheduledFor,
		&item.Status,
		&errMessage,
		&sentAt,
		&item.CreatedAt,
	); err != nil {
		return models.QueueItem{}, err
	}

	if len(groupsRaw) > 0 {
		if err := json.Unmarshal(groupsRaw, &item.Groups); err != nil {
			return models.QueueItem{}, fmt.Errorf("unmarshal groups: %w", err)
		}
	}
	if errMessage.Valid {
		val := errMessage.String
		item.ErrorMessage = &val
	}
	if sentAt.Valid {
		t := sentAt.Time
		item.SentAt = &t
	}

	return item, nil
}
