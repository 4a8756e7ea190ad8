package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/marchespei/marchespei-api/internal/models"
)

// PreferenceRepository stores the per-user notification preference. Get
// returns nil when the user never saved one; callers fall back to the
// account's primary address.
type PreferenceRepository interface {
	Get(ctx context.Context, userID string) (*models.NotificationPreference, error)
	Upsert(ctx context.Context, userID string, emailOverride *string, optOut bool) (models.NotificationPreference, error)
}

type preferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) Get(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	const query = `
		SELECT user_id, email_override, opt_out, updated_at
		FROM notify.notification_preferences
		WHERE user_id = $1
	`

	var (
		pref     models.NotificationPreference
		override sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&pref.UserID, &override, &pref.OptOut, &pref.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if override.Valid && strings.TrimSpace(override.String) != "" {
		val := strings.TrimSpace(override.String)
		pref.EmailOverride = &val
	}
	return &pref, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, userID string, emailOverride *string, optOut bool) (models.NotificationPreference, error) {
	const query = `
		INSERT INTO notify.notification_preferences (user_id, email_override, opt_out, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET email_override = EXCLUDED.email_override, opt_out = EXCLUDED.opt_out, updated_at = NOW()
		RETURNING user_id, email_override, opt_out, updated_at
	`

	var override interface{}
	if emailOverride != nil && strings.TrimSpace(*emailOverride) != "" {
		override = strings.TrimSpace(*emailOverride)
	}

	var (
		pref models.NotificationPreference
		out  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, userID, override, optOut).Scan(&pref.UserID, &out, &pref.OptOut, &pref.UpdatedAt)
	if err != nil {
		return models.NotificationPreference{}, err
	}
	if out.Valid {
		val := out.String
		pref.EmailOverride = &val
	}
	return pref, nil
}
