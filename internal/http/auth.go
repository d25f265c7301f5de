package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/contestcal/contestcal/internal/auth"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

// authService covers the session lifecycle plus admin token
// verification used by the manual trigger endpoint.
type authService interface {
	UpsertSession(ctx context.Context, payload auth.SessionPayload) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	VerifyAdminToken(token string) error
}

type authHandler struct {
	log     zerolog.Logger
	encoder encoder
	config  *domain.Config
	service authService

	cookieStore *sessions.CookieStore
}

func newAuthHandler(encoder encoder, log zerolog.Logger, config *domain.Config, cookieStore *sessions.CookieStore, service authService) *authHandler {
	return &authHandler{
		log:         log,
		encoder:     encoder,
		config:      config,
		service:     service,
		cookieStore: cookieStore,
	}
}

func (h authHandler) Routes(r chi.Router) {
	r.Post("/session", h.session)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
	r.Get("/validate", h.validate)
}

// session receives the identity payload from the frontend after the
// external consent flow and opens a cookie session for the user. The
// identity record is upserted so a returning user keeps subscription
// state and preferences.
func (h authHandler) session(w http.ResponseWriter, r *http.Request) {
	var (
		ctx  = r.Context()
		data auth.SessionPayload
	)

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.log.Warn().Err(err).Msg("Auth: Failed to decode session request body")
		h.encoder.StatusResponse(ctx, w, nil, http.StatusBadRequest)
		return
	}

	user, err := h.service.UpsertSession(ctx, data)
	if err != nil {
		h.log.Warn().Err(err).Msgf("Auth: Failed session upsert ip: %s", getClientIP(r))
		h.encoder.StatusResponse(ctx, w, nil, http.StatusBadRequest)
		return
	}

	h.cookieStore.Options.HttpOnly = true
	h.cookieStore.Options.SameSite = http.SameSiteLaxMode
	h.cookieStore.Options.Path = h.config.Server.BaseURL

	fwdProto := r.Header.Get("X-Forwarded-Proto")
	if fwdProto == "https" {
		h.cookieStore.Options.Secure = true
		h.cookieStore.Options.SameSite = http.SameSiteStrictMode
	}

	session, _ := h.cookieStore.Get(r, "user_session")
	session.Values["authenticated"] = true
	session.Values["user_id"] = user.UserID
	if err := session.Save(r, w); err != nil {
		h.log.Error().Err(err).Msg("Auth: Failed to save session")
		h.encoder.StatusInternalError(w)
		return
	}

	h.log.Debug().Str("user_id", user.UserID).Msg("Auth: Session opened")
	h.encoder.StatusResponse(ctx, w, user, http.StatusOK)
}

func (h authHandler) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, _ := h.cookieStore.Get(r, "user_session")

	// Revoke users authentication
	session.Values["authenticated"] = false
	delete(session.Values, "user_id")
	session.Save(r, w)

	h.encoder.StatusResponse(ctx, w, nil, http.StatusNoContent)
}

// me returns the identity record of the session user.
func (h authHandler) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, _ := h.cookieStore.Get(r, "user_session")

	if auth, ok := session.Values["authenticated"].(bool); !ok || !auth {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	userID, ok := session.Values["user_id"].(string)
	if !ok || userID == "" {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Auth: Failed to load session user")
		h.encoder.StatusInternalError(w)
		return
	}
	if user == nil {
		h.encoder.StatusResponse(ctx, w, nil, http.StatusUnauthorized)
		return
	}

	h.encoder.StatusResponse(ctx, w, user, http.StatusOK)
}

func (h authHandler) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, _ := h.cookieStore.Get(r, "user_session")

	if auth, ok := session.Values["authenticated"].(bool); !ok || !auth {
		http.Error(w, "Forbidden", http.StatusUnauthorized)
		return
	}

	// send empty response as ok
	h.encoder.StatusResponse(ctx, w, nil, http.StatusNoContent)
}
