package digest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marchespei/marchespei-api/internal/delivery"
	"github.com/marchespei/marchespei-api/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	queue       *fakeQueue
	users       fakeUsers
	preferences fakePreferences
	matches     fakeMatches
	audit       *fakeAudit
	client      *delivery.MockClient
	dispatcher  *Dispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		queue:       newFakeQueue(),
		users:       fakeUsers{},
		preferences: fakePreferences{},
		audit:       &fakeAudit{},
		client:      delivery.NewMockClient(zerolog.Nop()),
	}
	f.dispatcher = NewDispatcher(DispatcherConfig{
		Queue:       f.queue,
		Users:       f.users,
		Preferences: f.preferences,
		Matches:     &f.matches,
		Audit:       f.audit,
		Renderer:    newTestRenderer(t),
		Client:      f.client,
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return testNow },
	})
	return f
}

func (f *dispatcherFixture) addUser(email string) string {
	id := uuid.NewString()
	f.users[id] = models.User{ID: id, Email: email, IsActive: true}
	return id
}

func (f *dispatcherFixture) addPendingItem(userID string, createdAt time.Time, groups []models.AlertGroup) string {
	return f.queue.add(models.QueueItem{
		RecipientUserID: userID,
		Kind:            models.DigestKindMorning,
		Groups:          groups,
		ScheduledFor:    testNow.Add(-time.Hour),
		CreatedAt:       createdAt,
	})
}

func TestRunScheduled_EndToEnd(t *testing.T) {
	f := newDispatcherFixture(t)
	userID := f.addUser("entreprise@example.re")

	itemID := f.addPendingItem(userID, testNow.Add(-2*time.Hour), []models.AlertGroup{
		{AlertName: "BTP Réunion", Records: []models.MatchedRecord{
			{Reference: "AO-1", Title: "Rénovation"},
			{Reference: "AO-2", Title: "Voirie"},
		}},
		{AlertName: "Fournitures Nord", Records: []models.MatchedRecord{
			{Reference: "AO-3", Title: "Mobilier"},
		}},
	})

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 1, Sent: 1, Failed: 0}, summary)

	item := f.queue.items[itemID]
	assert.Equal(t, models.QueueStatusSent, item.Status)
	require.NotNil(t, item.SentAt)
	assert.Nil(t, item.ErrorMessage)

	require.Len(t, f.audit.records, 1)
	record := f.audit.records[0]
	assert.Equal(t, 3, record.MarketsIncluded)
	assert.Equal(t, 2, record.AlertsTriggered)
	assert.Equal(t, "entreprise@example.re", record.Recipient)
	assert.Contains(t, record.Body, "BTP Réunion")

	sent := f.client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "entreprise@example.re", sent[0].To)
	assert.Equal(t, "3 nouveaux marchés publics détectés", sent[0].Subject)
}

func TestRunScheduled_EmptyQueueIsNoOp(t *testing.T) {
	f := newDispatcherFixture(t)

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{}, summary)
	assert.Empty(t, f.client.Sent())
	assert.Empty(t, f.audit.records)
}

func TestRunScheduled_IsIdempotent(t *testing.T) {
	f := newDispatcherFixture(t)
	userID := f.addUser("entreprise@example.re")
	f.addPendingItem(userID, testNow.Add(-time.Hour), []models.AlertGroup{
		{AlertName: "Alerte", Records: []models.MatchedRecord{{Reference: "AO-1", Title: "Marché"}}},
	})

	first, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 1, Sent: 1}, first)

	second, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{}, second)
	assert.Len(t, f.client.Sent(), 1)
}

func TestRunScheduled_FutureItemsStayPending(t *testing.T) {
	f := newDispatcherFixture(t)
	userID := f.addUser("entreprise@example.re")
	itemID := f.queue.add(models.QueueItem{
		RecipientUserID: userID,
		Kind:            models.DigestKindEvening,
		ScheduledFor:    testNow.Add(time.Hour),
		CreatedAt:       testNow.Add(-time.Hour),
	})

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{}, summary)
	assert.Equal(t, models.QueueStatusPending, f.queue.items[itemID].Status)
}

func TestRunScheduled_FailureIsolation(t *testing.T) {
	f := newDispatcherFixture(t)
	user1 := f.addUser("un@example.re")
	user2 := f.addUser("deux@example.re")
	user3 := f.addUser("trois@example.re")

	groups := []models.AlertGroup{{AlertName: "Alerte", Records: []models.MatchedRecord{{Reference: "AO-1", Title: "Marché"}}}}
	item1 := f.addPendingItem(user1, testNow.Add(-3*time.Hour), groups)
	item2 := f.addPendingItem(user2, testNow.Add(-2*time.Hour), groups)
	item3 := f.addPendingItem(user3, testNow.Add(-time.Hour), groups)

	f.client.FailFor = map[string]error{
		"deux@example.re": &delivery.DeliveryError{StatusCode: 500, Detail: "provider unavailable"},
	}

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 3, Sent: 2, Failed: 1}, summary)

	assert.Equal(t, models.QueueStatusSent, f.queue.items[item1].Status)
	assert.Equal(t, models.QueueStatusSent, f.queue.items[item3].Status)

	failed := f.queue.items[item2]
	assert.Equal(t, models.QueueStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "provider unavailable")

	assert.Len(t, f.audit.records, 2)
}

func TestRunScheduled_SentPlusFailedEqualsProcessed(t *testing.T) {
	f := newDispatcherFixture(t)
	groups := []models.AlertGroup{{AlertName: "Alerte", Records: []models.MatchedRecord{{Reference: "AO-1", Title: "Marché"}}}}

	for i := 0; i < 5; i++ {
		userID := f.addUser(uuid.NewString() + "@example.re")
		f.addPendingItem(userID, testNow.Add(-time.Duration(i+1)*time.Minute), groups)
	}
	// One item for an account that no longer exists.
	f.addPendingItem(uuid.NewString(), testNow.Add(-10*time.Minute), groups)

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Processed)
	assert.Equal(t, summary.Processed, summary.Sent+summary.Failed)

	for _, item := range f.queue.items {
		assert.NotEqual(t, models.QueueStatusPending, item.Status)
	}
}

func TestRunScheduled_OptedOutRecipientFailsItem(t *testing.T) {
	f := newDispatcherFixture(t)
	userID := f.addUser("optout@example.re")
	f.preferences[userID] = &models.NotificationPreference{UserID: userID, OptOut: true}

	itemID := f.addPendingItem(userID, testNow.Add(-time.Hour), []models.AlertGroup{
		{AlertName: "Alerte", Records: []models.MatchedRecord{{Reference: "AO-1", Title: "Marché"}}},
	})

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 1, Failed: 1}, summary)

	item := f.queue.items[itemID]
	assert.Equal(t, models.QueueStatusFailed, item.Status)
	require.NotNil(t, item.ErrorMessage)
	assert.Contains(t, *item.ErrorMessage, "opted out")
	assert.Empty(t, f.client.Sent())
	assert.Empty(t, f.audit.records)
}

func TestRunScheduled_PreferenceOverrideAddress(t *testing.T) {
	f := newDispatcherFixture(t)
	userID := f.addUser("compte@example.re")
	override := "veille@example.re"
	f.preferences[userID] = &models.NotificationPreference{UserID: userID, EmailOverride: &override}

	f.addPendingItem(userID, testNow.Add(-time.Hour), []models.AlertGroup{
		{AlertName: "Alerte", Records: []models.MatchedRecord{{Reference: "AO-1", Title: "Marché"}}},
	})

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 1, Sent: 1}, summary)

	sent := f.client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, override, sent[0].To)
}

func TestRunScheduled_BatchSizeBoundsDrain(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.batchSize = 2
	groups := []models.AlertGroup{{AlertName: "Alerte", Records: []models.MatchedRecord{{Reference: "AO-1", Title: "Marché"}}}}

	oldest := f.addPendingItem(f.addUser("a@example.re"), testNow.Add(-3*time.Hour), groups)
	middle := f.addPendingItem(f.addUser("b@example.re"), testNow.Add(-2*time.Hour), groups)
	newest := f.addPendingItem(f.addUser("c@example.re"), testNow.Add(-time.Hour), groups)

	summary, err := f.dispatcher.RunScheduled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Processed: 2, Sent: 2}, summary)

	// Oldest first; the newest waits for the next run.
	assert.Equal(t, models.QueueStatusSent, f.queue.items[oldest].Status)
	assert.Equal(t, models.QueueStatusSent, f.queue.items[middle].Status)
	assert.Equal(t, models.QueueStatusPending, f.queue.items[newest].Status)
}
