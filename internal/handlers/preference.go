package handlers

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/marchespei/marchespei-api/internal/authz"
	"github.com/marchespei/marchespei-api/internal/models"
	"github.com/marchespei/marchespei-api/internal/repository"
	"github.com/rs/zerolog"
)

type PreferenceHandler struct {
	preferences repository.PreferenceRepository
	logger      zerolog.Logger
}

func NewPreferenceHandler(preferences repository.PreferenceRepository, logger zerolog.Logger) *PreferenceHandler {
	return &PreferenceHandler{
		preferences: preferences,
		logger:      logger.With().Str("handler", "preference").Logger(),
	}
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user session")
		return
	}

	pref, err := h.preferences.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load notification preference")
		writeError(w, http.StatusInternalServerError, "failed to load preference")
		return
	}
	if pref == nil {
		pref = &models.NotificationPreference{UserID: userID}
	}

	writeJSON(w, http.StatusOK, pref)
}

type updatePreferenceRequest struct {
	EmailOverride *string `json:"email_override"`
	OptOut        bool    `json:"opt_out"`
}

func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user session")
		return
	}

	var req updatePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EmailOverride != nil && strings.TrimSpace(*req.EmailOverride) != "" {
		if _, err := mail.ParseAddress(strings.TrimSpace(*req.EmailOverride)); err != nil {
			writeError(w, http.StatusBadRequest, "email_override is not a valid address")
			return
		}
	}

	pref, err := h.preferences.Upsert(r.Context(), userID, req.EmailOverride, req.OptOut)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update notification preference")
		writeError(w, http.StatusInternalServerError, "failed to update preference")
		return
	}

	writeJSON(w, http.StatusOK, pref)
}
