package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/marchespei/marchespei-api/internal/models"
)

// MatchRepository reads the detection history written by the upstream matcher.
// This core only consumes it; inserts happen outside this service.
type MatchRepository interface {
	ListRecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]models.AlertMatch, error)
}

type matchRepository struct {
	db *sql.DB
}

func NewMatchRepository(db *sql.DB) MatchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) ListRecentByUser(ctx context.Context, userID string, since time.Time, limit int) ([]models.AlertMatch, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	const query = `
		SELECT id, user_id, alert_name, reference_code, title, buyer, description,
		       estimated_amount, location, deadline, source_url, category, detected_at
		FROM notify.alert_matches
		WHERE user_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []models.AlertMatch
	for rows.Next() {
		var (
			m        models.AlertMatch
			amount   sql.NullFloat64
			location sql.NullString
			deadline sql.NullTime
			srcURL   sql.NullString
			category sql.NullString
		)
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.AlertName,
			&m.Record.Reference,
			&m.Record.Title,
			&m.Record.Buyer,
			&m.Record.Description,
			&amount,
			&location,
			&deadline,
			&srcURL,
			&category,
			&m.DetectedAt,
		); err != nil {
			return nil, err
		}
		if amount.Valid {
			v := amount.Float64
			m.Record.EstimatedAmount = &v
		}
		if location.Valid {
			v := location.String
			m.Record.Location = &v
		}
		if deadline.Valid {
			t := deadline.Time
			m.Record.Deadline = &t
		}
		if srcURL.Valid {
			v := srcURL.String
			m.Record.SourceURL = &v
		}
		if category.Valid {
			v := category.String
			m.Record.Category = &v
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
