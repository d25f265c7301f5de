package http

import (
	"net/http"
	"strings"

	"github.com/contestcal/contestcal/internal/scheduler"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// cycleTrigger starts a fetch-and-sync cycle out of schedule.
type cycleTrigger interface {
	TriggerAsync() error
	Running() bool
}

type updateHandler struct {
	encoder encoder
	log     zerolog.Logger
	auth    authService
	job     cycleTrigger
}

func newUpdateHandler(encoder encoder, log zerolog.Logger, auth authService, job cycleTrigger) *updateHandler {
	return &updateHandler{
		encoder: encoder,
		log:     log,
		auth:    auth,
		job:     job,
	}
}

func (h updateHandler) Routes(r chi.Router) {
	r.Post("/contests", h.triggerContests)
	r.Get("/status", h.status)
}

// triggerContests starts a full cycle immediately. The caller
// authenticates with the admin token rather than a session, so
// deployment tooling can hit this endpoint.
func (h updateHandler) triggerContests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := bearerToken(r)
	if !ok {
		http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
		return
	}

	if err := h.auth.VerifyAdminToken(token); err != nil {
		h.log.Warn().Err(err).Msgf("Update: Rejected manual trigger ip: %s", getClientIP(r))
		http.Error(w, "Unauthorized: Invalid admin token", http.StatusUnauthorized)
		return
	}

	if err := h.job.TriggerAsync(); err != nil {
		if errors.Is(err, scheduler.ErrCycleAlreadyRunning) {
			h.encoder.StatusResponse(ctx, w, errorResponse{
				Message: err.Error(),
				Status:  http.StatusConflict,
			}, http.StatusConflict)
			return
		}
		h.encoder.Error(w, err)
		return
	}

	h.log.Info().Msg("Update: Manual contest sync cycle triggered")
	h.encoder.StatusResponse(ctx, w, map[string]string{"status": "started"}, http.StatusAccepted)
}

func (h updateHandler) status(w http.ResponseWriter, r *http.Request) {
	h.encoder.StatusResponse(r.Context(), w, map[string]bool{"running": h.job.Running()}, http.StatusOK)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	return parts[1], true
}
