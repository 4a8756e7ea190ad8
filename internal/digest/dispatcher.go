package digest

import (
	"context"
	"database/sql"
	"time"

	"github.com/marchespei/marchespei-api/internal/delivery"
	"github.com/marchespei/marchespei-api/internal/models"
	"github.com/marchespei/marchespei-api/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrOptedOut means the recipient's notification preference has the
	// opt-out flag set. A hard precondition failure, never a silent skip.
	ErrOptedOut = errors.New("recipient opted out of notifications")

	// ErrNoRecipientAddress means neither the preference override nor the
	// account carries a usable address.
	ErrNoRecipientAddress = errors.New("no recipient address available")
)

// RunSummary aggregates one scheduled dispatcher run.
type RunSummary struct {
	Processed int `json:"digests_processed"`
	Sent      int `json:"emails_sent"`
	Failed    int `json:"emails_failed"`
}

type DispatcherConfig struct {
	Queue       repository.QueueRepository
	Users       repository.UserRepository
	Preferences repository.PreferenceRepository
	Matches     repository.MatchRepository
	Audit       repository.AuditRepository
	Renderer    *Renderer
	Client      delivery.Client

	BatchSize       int
	DeliveryTimeout time.Duration
	LookbackWindow  time.Duration
	TestMatchLimit  int

	Logger zerolog.Logger

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Dispatcher drains due pending queue items, renders and delivers them, and
// transitions each item's status independently of the rest of the batch.
type Dispatcher struct {
	queue       repository.QueueRepository
	users       repository.UserRepository
	preferences repository.PreferenceRepository
	matches     repository.MatchRepository
	audit       repository.AuditRepository
	renderer    *Renderer
	client      delivery.Client

	batchSize       int
	deliveryTimeout time.Duration
	lookbackWindow  time.Duration
	testMatchLimit  int

	logger zerolog.Logger
	now    func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	if cfg.LookbackWindow <= 0 {
		cfg.LookbackWindow = 24 * time.Hour
	}
	if cfg.TestMatchLimit <= 0 {
		cfg.TestMatchLimit = 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		queue:           cfg.Queue,
		users:           cfg.Users,
		preferences:     cfg.Preferences,
		matches:         cfg.Matches,
		audit:           cfg.Audit,
		renderer:        cfg.Renderer,
		client:          cfg.Client,
		batchSize:       cfg.BatchSize,
		deliveryTimeout: cfg.DeliveryTimeout,
		lookbackWindow:  cfg.LookbackWindow,
		testMatchLimit:  cfg.TestMatchLimit,
		logger:          cfg.Logger.With().Str("component", "digest_dispatcher").Logger(),
		now:             cfg.Now,
	}
}

// RunScheduled drains one batch of due pending items. A failure on one item is
// recorded on that item and never aborts the rest of the batch; only a failure
// to reach the queue itself is returned as an error.
func (d *Dispatcher) RunScheduled(ctx context.Context) (RunSummary, error) {
	items, err := d.queue.FetchDuePending(ctx, d.now(), d.batchSize)
	if err != nil {
		return RunSummary{}, errors.Wrap(err, "drain digest queue")
	}
	if len(items) == 0 {
		return RunSummary{}, nil
	}

	summary := RunSummary{Processed: len(items)}
	for _, item := range items {
		if err := d.processItem(ctx, item); err != nil {
			summary.Failed++
			d.failItem(ctx, item, err)
			continue
		}
		summary.Sent++
	}

	d.logger.Info().
		Int("processed", summary.Processed).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Msg("scheduled digest run complete")
	return summary, nil
}

func (d *Dispatcher) processItem(ctx context.Context, item models.QueueItem) error {
	user, err := d.users.GetUserByID(ctx, item.RecipientUserID)
	if err != nil {
		return errors.Wrapf(err, "resolve recipient account %s", item.RecipientUserID)
	}

	address, err := d.resolveAddress(ctx, user)
	if err != nil {
		return err
	}

	sentAt := d.now()
	subject, body, err := d.renderer.Render(item.Kind, item.Groups, sentAt)
	if err != nil {
		return errors.Wrap(err, "render digest")
	}

	if err := d.deliver(ctx, address, subject, body); err != nil {
		return errors.Wrap(err, "deliver digest")
	}

	if err := d.queue.MarkSent(ctx, item.ID, sentAt); err != nil {
		// The message left; losing the status write risks a duplicate on the
		// next run, which the spec tolerates as at-least-once.
		d.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item sent")
	}

	d.writeAudit(ctx, repository.CreateAuditParams{
		UserID:          item.RecipientUserID,
		Kind:            item.Kind,
		AlertsTriggered: len(item.Groups),
		MarketsIncluded: item.TotalRecordCount,
		Recipient:       address,
		Body:            body,
		SentAt:          sql.NullTime{Time: sentAt, Valid: true},
	})
	return nil
}

func (d *Dispatcher) failItem(ctx context.Context, item models.QueueItem, cause error) {
	d.logger.Warn().
		Err(cause).
		Str("item_id", item.ID).
		Str("recipient_user_id", item.RecipientUserID).
		Msg("digest item failed")
	if err := d.queue.MarkFailed(ctx, item.ID, d.now(), cause.Error()); err != nil {
		d.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to mark item failed")
	}
}

// resolveAddress prefers the preference override, then the account's primary
// address. Opt-out is checked before any send is attempted.
func (d *Dispatcher) resolveAddress(ctx context.Context, user models.User) (string, error) {
	pref, err := d.preferences.Get(ctx, user.ID)
	if err != nil {
		return "", errors.Wrap(err, "load notification preference")
	}
	if pref != nil && pref.OptOut {
		return "", ErrOptedOut
	}
	if pref != nil && pref.EmailOverride != nil && *pref.EmailOverride != "" {
		return *pref.EmailOverride, nil
	}
	if user.Email == "" {
		return "", ErrNoRecipientAddress
	}
	return user.Email, nil
}

func (d *Dispatcher) deliver(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()
	return d.client.Send(ctx, to, subject, body)
}

func (d *Dispatcher) writeAudit(ctx context.Context, params repository.CreateAuditParams) {
	if _, err := d.audit.Create(ctx, params); err != nil {
		d.logger.Error().
			Err(err).
			Str("user_id", params.UserID).
			Msg("failed to write digest audit record")
	}
}
