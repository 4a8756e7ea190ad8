package digest

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/marchespei/marchespei-api/internal/models"
	"github.com/marchespei/marchespei-api/internal/repository"
)

type fakeQueue struct {
	items map[string]*models.QueueItem
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(map[string]*models.QueueItem)}
}

func (q *fakeQueue) add(item models.QueueItem) string {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}
	if item.TotalRecordCount == 0 {
		item.TotalRecordCount = models.TotalRecords(item.Groups)
	}
	q.items[item.ID] = &item
	return item.ID
}

func (q *fakeQueue) Enqueue(_ context.Context, params repository.EnqueueParams) (models.QueueItem, error) {
	item := models.QueueItem{
		ID:               uuid.NewString(),
		RecipientUserID:  params.RecipientUserID,
		Kind:             params.Kind,
		Groups:           params.Groups,
		TotalRecordCount: models.TotalRecords(params.Groups),
		ScheduledFor:     params.ScheduledFor,
		Status:           models.QueueStatusPending,
		CreatedAt:        time.Now(),
	}
	q.items[item.ID] = &item
	return item, nil
}

func (q *fakeQueue) FetchDuePending(_ context.Context, now time.Time, limit int) ([]models.QueueItem, error) {
	var due []models.QueueItem
	for _, item := range q.items {
		if item.Status == models.QueueStatusPending && !item.ScheduledFor.After(now) {
			due = append(due, *item)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	if item, ok := q.items[id]; ok && item.Status == models.QueueStatusPending {
		item.Status = models.QueueStatusSent
		item.SentAt = &sentAt
		item.ErrorMessage = nil
	}
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id string, sentAt time.Time, errorMessage string) error {
	if item, ok := q.items[id]; ok && item.Status == models.QueueStatusPending {
		item.Status = models.QueueStatusFailed
		item.SentAt = &sentAt
		item.ErrorMessage = &errorMessage
	}
	return nil
}

type fakeUsers map[string]models.User

func (u fakeUsers) CreateUser(context.Context, string, string, string) (models.User, error) {
	panic("not used")
}

func (u fakeUsers) AuthenticateUser(context.Context, string, string) (models.User, error) {
	panic("not used")
}

func (u fakeUsers) GetUserByID(_ context.Context, userID string) (models.User, error) {
	user, ok := u[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

type fakePreferences map[string]*models.NotificationPreference

func (p fakePreferences) Get(_ context.Context, userID string) (*models.NotificationPreference, error) {
	return p[userID], nil
}

func (p fakePreferences) Upsert(_ context.Context, userID string, emailOverride *string, optOut bool) (models.NotificationPreference, error) {
	pref := models.NotificationPreference{UserID: userID, EmailOverride: emailOverride, OptOut: optOut}
	p[userID] = &pref
	return pref, nil
}

type fakeMatches []models.AlertMatch

func (m fakeMatches) ListRecentByUser(_ context.Context, userID string, since time.Time, limit int) ([]models.AlertMatch, error) {
	var out []models.AlertMatch
	for _, match := range m {
		if match.UserID == userID && !match.DetectedAt.Before(since) {
			out = append(out, match)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAudit struct {
	records []models.DigestAuditRecord
}

func (a *fakeAudit) Create(_ context.Context, params repository.CreateAuditParams) (models.DigestAuditRecord, error) {
	record := models.DigestAuditRecord{
		ID:              uuid.NewString(),
		UserID:          params.UserID,
		Kind:            params.Kind,
		AlertsTriggered: params.AlertsTriggered,
		MarketsIncluded: params.MarketsIncluded,
		Recipient:       params.Recipient,
		Body:            params.Body,
		SentAt:          params.SentAt.Time,
	}
	a.records = append(a.records, record)
	return record, nil
}

func (a *fakeAudit) ListRecentByUser(_ context.Context, userID string, limit int) ([]models.DigestAuditRecord, error) {
	var out []models.DigestAuditRecord
	for _, record := range a.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
