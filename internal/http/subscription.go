package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	syncsvc "github.com/contestcal/contestcal/internal/sync"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type syncService = syncsvc.Service

type subscriptionHandler struct {
	encoder     encoder
	log         zerolog.Logger
	userRepo    domain.UserRepo
	syncService syncService
}

func newSubscriptionHandler(encoder encoder, log zerolog.Logger, userRepo domain.UserRepo, syncService syncService) *subscriptionHandler {
	return &subscriptionHandler{
		encoder:     encoder,
		log:         log,
		userRepo:    userRepo,
		syncService: syncService,
	}
}

func (h subscriptionHandler) Routes(r chi.Router) {
	r.Post("/subscribe", h.subscribe)
	r.Post("/unsubscribe", h.unsubscribe)
	r.Get("/status", h.status)
	r.Get("/preferences", h.getPreferences)
	r.Put("/preferences", h.updatePreferences)
}

func (h subscriptionHandler) sessionUser(w http.ResponseWriter, r *http.Request) *domain.User {
	user, ok := r.Context().Value(UserContextKey).(*domain.User)
	if !ok || user == nil {
		http.Error(w, "Unauthorized: User not found in context", http.StatusUnauthorized)
		return nil
	}
	return user
}

// subscribe marks the user subscribed and runs an immediate reconcile
// so upcoming contests land in their calendar right away. The sync
// outcome is always a structured result, never a bare error.
func (h subscriptionHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user := h.sessionUser(w, r)
	if user == nil {
		return
	}

	if err := h.userRepo.SetSubscribed(ctx, user.UserID, true); err != nil {
		h.log.Error().Err(err).Str("user_id", user.UserID).Msg("Subscription: Failed to mark user subscribed")
		h.encoder.Error(w, err)
		return
	}

	result := h.syncService.AddContestsForUser(ctx, user.UserID)

	h.encoder.StatusResponse(ctx, w, result, http.StatusOK)
}

// unsubscribeRequest requires the caller to state explicitly whether
// previously created calendar events should be removed. A missing
// field is rejected rather than defaulted.
type unsubscribeRequest struct {
	RemoveEvents *bool `json:"remove_events"`
}

func (h subscriptionHandler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var (
		ctx  = r.Context()
		data unsubscribeRequest
	)

	user := h.sessionUser(w, r)
	if user == nil {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.log.Warn().Err(err).Msg("Subscription: Failed to decode unsubscribe request body")
		h.encoder.StatusResponse(ctx, w, errorResponse{
			Message: "invalid request body",
			Status:  http.StatusBadRequest,
		}, http.StatusBadRequest)
		return
	}

	if data.RemoveEvents == nil {
		h.encoder.StatusResponse(ctx, w, errorResponse{
			Message: "remove_events is required",
			Status:  http.StatusBadRequest,
		}, http.StatusBadRequest)
		return
	}

	// Flip the flag first so a concurrently running batch does not
	// re-add events while we are removing them.
	if err := h.userRepo.SetSubscribed(ctx, user.UserID, false); err != nil {
		h.log.Error().Err(err).Str("user_id", user.UserID).Msg("Subscription: Failed to mark user unsubscribed")
		h.encoder.Error(w, err)
		return
	}

	if !*data.RemoveEvents {
		h.encoder.StatusResponse(ctx, w, &domain.SyncResult{
			Success: true,
			Message: "Unsubscribed. Calendar events were kept.",
		}, http.StatusOK)
		return
	}

	result := h.syncService.RemoveContestsForUser(ctx, user.UserID)

	h.encoder.StatusResponse(ctx, w, result, http.StatusOK)
}

type subscriptionStatus struct {
	Subscribed         bool                       `json:"subscribed"`
	ReminderPreference domain.ReminderPreference  `json:"reminder_preference"`
	Platforms          []domain.Platform          `json:"platforms"`
	PlatformColors     map[domain.Platform]string `json:"platform_colors"`
	TimeZone           string                     `json:"time_zone"`
}

func (h subscriptionHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user := h.sessionUser(w, r)
	if user == nil {
		return
	}

	h.encoder.StatusResponse(ctx, w, subscriptionStatus{
		Subscribed:         user.Subscribed,
		ReminderPreference: user.ReminderPreference,
		Platforms:          user.Platforms,
		PlatformColors:     user.PlatformColors,
		TimeZone:           user.TimeZone,
	}, http.StatusOK)
}

func (h subscriptionHandler) getPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user := h.sessionUser(w, r)
	if user == nil {
		return
	}

	h.encoder.StatusResponse(ctx, w, domain.Preferences{
		ReminderPreference: user.ReminderPreference,
		Platforms:          user.Platforms,
		PlatformColors:     user.PlatformColors,
		TimeZone:           user.TimeZone,
	}, http.StatusOK)
}

// updatePreferences applies a partial preferences update. Only fields
// present in the body change; the next sync cycle picks them up.
func (h subscriptionHandler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var (
		ctx  = r.Context()
		data domain.Preferences
	)

	user := h.sessionUser(w, r)
	if user == nil {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.log.Warn().Err(err).Msg("Subscription: Failed to decode preferences request body")
		h.encoder.StatusResponse(ctx, w, errorResponse{
			Message: "invalid request body",
			Status:  http.StatusBadRequest,
		}, http.StatusBadRequest)
		return
	}

	if msg := validatePreferences(data); msg != "" {
		h.encoder.StatusResponse(ctx, w, errorResponse{
			Message: msg,
			Status:  http.StatusBadRequest,
		}, http.StatusBadRequest)
		return
	}

	if err := h.userRepo.UpdatePreferences(ctx, user.UserID, data); err != nil {
		h.log.Error().Err(err).Str("user_id", user.UserID).Msg("Subscription: Failed to update preferences")
		h.encoder.Error(w, err)
		return
	}

	h.encoder.NoContent(w)
}

func validatePreferences(prefs domain.Preferences) string {
	switch prefs.ReminderPreference {
	case "", domain.Reminder10m, domain.Reminder30m, domain.Reminder1h, domain.Reminder2h:
	default:
		return "unknown reminder_preference: " + string(prefs.ReminderPreference)
	}

	for _, p := range prefs.Platforms {
		if !p.IsValid() {
			return "unknown platform: " + string(p)
		}
	}

	for p := range prefs.PlatformColors {
		if !p.IsValid() {
			return "unknown platform in platform_colors: " + string(p)
		}
	}

	if prefs.TimeZone != "" {
		if _, err := time.LoadLocation(prefs.TimeZone); err != nil {
			return "unknown time_zone: " + prefs.TimeZone
		}
	}

	return ""
}
