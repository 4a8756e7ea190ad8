package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marchespei/marchespei-api/internal/authz"
	"github.com/marchespei/marchespei-api/internal/digest"
	"github.com/marchespei/marchespei-api/internal/models"
	"github.com/marchespei/marchespei-api/internal/repository"
	"github.com/rs/zerolog"
)

// CronSecretHeader carries the shared secret the external scheduler presents.
const CronSecretHeader = "X-Cron-Secret"

type DigestHandler struct {
	dispatcher *digest.Dispatcher
	queue      repository.QueueRepository
	audit      repository.AuditRepository
	cronSecret string
	logger     zerolog.Logger
}

func NewDigestHandler(dispatcher *digest.Dispatcher, queue repository.QueueRepository, audit repository.AuditRepository, cronSecret string, logger zerolog.Logger) *DigestHandler {
	return &DigestHandler{
		dispatcher: dispatcher,
		queue:      queue,
		audit:      audit,
		cronSecret: cronSecret,
		logger:     logger.With().Str("handler", "digest").Logger(),
	}
}

func (h *DigestHandler) authorizeCron(w http.ResponseWriter, r *http.Request) bool {
	secret := r.Header.Get(CronSecretHeader)
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.cronSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid or missing cron secret")
		return false
	}
	return true
}

// RunScheduled is the external scheduler's entry point. No per-user session;
// the shared secret is the whole authentication.
func (h *DigestHandler) RunScheduled(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeCron(w, r) {
		return
	}

	summary, err := h.dispatcher.RunScheduled(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("scheduled digest run failed")
		writeError(w, http.StatusInternalServerError, "digest run failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// SendTest performs the synchronous per-user test send and reports the
// outcome directly to the caller.
func (h *DigestHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user session")
		return
	}

	result, err := h.dispatcher.SendTest(r.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, digest.ErrOptedOut) || errors.Is(err, digest.ErrNoRecipientAddress) {
			status = http.StatusBadRequest
		}
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("test digest send failed")
		writeJSON(w, status, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"recipient":        result.Recipient,
		"detections_count": result.DetectionsCount,
		"alerts_count":     result.AlertsCount,
	})
}

type enqueueRequest struct {
	RecipientUserID string              `json:"recipient_user_id"`
	DigestKind      models.DigestKind   `json:"digest_kind"`
	Groups          []models.AlertGroup `json:"groups"`
	ScheduledFor    *time.Time          `json:"scheduled_for"`
}

// Enqueue is the producer boundary: the upstream matcher inserts digest work
// through it. Protected by the same cron secret as the dispatch trigger.
func (h *DigestHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeCron(w, r) {
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := uuid.Parse(strings.TrimSpace(req.RecipientUserID)); err != nil {
		writeError(w, http.StatusBadRequest, "recipient_user_id must be a valid UUID")
		return
	}
	switch req.DigestKind {
	case models.DigestKindMorning, models.DigestKindEvening, models.DigestKindTest:
	default:
		writeError(w, http.StatusBadRequest, "unknown digest_kind")
		return
	}

	scheduledFor := time.Now()
	if req.ScheduledFor != nil {
		scheduledFor = *req.ScheduledFor
	}

	item, err := h.queue.Enqueue(r.Context(), repository.EnqueueParams{
		RecipientUserID: strings.TrimSpace(req.RecipientUserID),
		Kind:            req.DigestKind,
		Groups:          req.Groups,
		ScheduledFor:    scheduledFor,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to enqueue digest item")
		writeError(w, http.StatusInternalServerError, "failed to enqueue digest")
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// History lists the caller's recent audit records, newest first.
func (h *DigestHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user session")
		return
	}

	limit := 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.audit.ListRecentByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list digest history")
		writeError(w, http.StatusInternalServerError, "failed to list digest history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"digests": records,
	})
}
