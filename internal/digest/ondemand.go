package digest

import (
	"context"
	"database/sql"

	"github.com/marchespei/marchespei-api/internal/models"
	"github.com/marchespei/marchespei-api/internal/repository"
	"github.com/pkg/errors"
)

// TestResult is returned to the caller of the synchronous test send.
type TestResult struct {
	Recipient       string `json:"recipient"`
	DetectionsCount int    `json:"detections_count"`
	AlertsCount     int    `json:"alerts_count"`
}

// SendTest renders and delivers a digest of the user's matches from the
// trailing lookback window, bypassing the queue entirely. An audit record
// tagged as a test send is written only after successful delivery.
func (d *Dispatcher) SendTest(ctx context.Context, userID string) (TestResult, error) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		return TestResult{}, errors.Wrapf(err, "resolve account %s", userID)
	}

	address, err := d.resolveAddress(ctx, user)
	if err != nil {
		return TestResult{}, err
	}

	now := d.now()
	matches, err := d.matches.ListRecentByUser(ctx, userID, now.Add(-d.lookbackWindow), d.testMatchLimit)
	if err != nil {
		return TestResult{}, errors.Wrap(err, "load recent matches")
	}
	groups := models.GroupMatches(matches)

	subject, body, err := d.renderer.Render(models.DigestKindTest, groups, now)
	if err != nil {
		return TestResult{}, errors.Wrap(err, "render test digest")
	}

	if err := d.deliver(ctx, address, subject, body); err != nil {
		return TestResult{}, errors.Wrap(err, "deliver test digest")
	}

	d.writeAudit(ctx, repository.CreateAuditParams{
		UserID:          userID,
		Kind:            models.DigestKindTest,
		AlertsTriggered: len(groups),
		MarketsIncluded: len(matches),
		Recipient:       address,
		Body:            body,
		SentAt:          sql.NullTime{Time: now, Valid: true},
	})

	return TestResult{
		Recipient:       address,
		DetectionsCount: len(matches),
		AlertsCount:     len(groups),
	}, nil
}
