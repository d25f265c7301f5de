package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contestcal/contestcal/internal/auth"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAuthService is a mock implementation of the authService interface
type MockAuthService struct {
	upsertedUser    *domain.User
	upsertError     error
	fetchedUser     *domain.User
	fetchError      error
	adminTokenError error
	lastPayload     auth.SessionPayload
	verifiedToken   string
}

func (m *MockAuthService) UpsertSession(ctx context.Context, payload auth.SessionPayload) (*domain.User, error) {
	m.lastPayload = payload
	return m.upsertedUser, m.upsertError
}

func (m *MockAuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return m.fetchedUser, m.fetchError
}

func (m *MockAuthService) VerifyAdminToken(token string) error {
	m.verifiedToken = token
	return m.adminTokenError
}

func newTestAuthHandler(service authService) (*authHandler, *chi.Mux) {
	log := logger.Mock().With().Str("module", "http").Logger()

	config := &domain.Config{
		Server: domain.ServerConfig{
			BaseURL: "/",
		},
	}

	handler := newAuthHandler(encoder{}, log, config, sessions.NewCookieStore([]byte("test-secret")), service)

	router := chi.NewRouter()
	router.Route("/auth", handler.Routes)

	return handler, router
}

func TestAuthHandler_Session(t *testing.T) {
	user := &domain.User{
		UserID: "google-123",
		Email:  "gary@example.com",
		Name:   "Gary",
	}
	mockService := &MockAuthService{upsertedUser: user}
	_, router := newTestAuthHandler(mockService)

	payload := auth.SessionPayload{
		UserID:       "google-123",
		Email:        "gary@example.com",
		Name:         "Gary",
		AccessToken:  "ya29.token",
		RefreshToken: "1//refresh",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/auth/session", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "google-123", mockService.lastPayload.UserID)
	assert.NotEmpty(t, rr.Header().Get("Set-Cookie"), "expected session cookie to be set")

	var respUser domain.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respUser))
	assert.Equal(t, "google-123", respUser.UserID)
}

func TestAuthHandler_Session_InvalidBody(t *testing.T) {
	mockService := &MockAuthService{}
	_, router := newTestAuthHandler(mockService)

	req := httptest.NewRequest("POST", "/auth/session", bytes.NewReader([]byte("{not-json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthHandler_Session_UpsertRejected(t *testing.T) {
	mockService := &MockAuthService{upsertError: errors.New("identity payload missing user id")}
	_, router := newTestAuthHandler(mockService)

	req := httptest.NewRequest("POST", "/auth/session", bytes.NewReader([]byte(`{"email":"no-id@example.com"}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthHandler_Me_WithSession(t *testing.T) {
	user := &domain.User{
		UserID: "google-123",
		Email:  "gary@example.com",
	}
	mockService := &MockAuthService{upsertedUser: user, fetchedUser: user}
	_, router := newTestAuthHandler(mockService)

	// Open a session first, then replay the cookie.
	loginReq := httptest.NewRequest("POST", "/auth/session", bytes.NewReader([]byte(`{"userId":"google-123","email":"gary@example.com"}`)))
	loginRR := httptest.NewRecorder()
	router.ServeHTTP(loginRR, loginReq)
	require.Equal(t, http.StatusOK, loginRR.Code)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	for _, cookie := range loginRR.Result().Cookies() {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var respUser domain.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respUser))
	assert.Equal(t, "gary@example.com", respUser.Email)
}

func TestAuthHandler_Me_NoSession(t *testing.T) {
	mockService := &MockAuthService{}
	_, router := newTestAuthHandler(mockService)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	mockService := &MockAuthService{}
	_, router := newTestAuthHandler(mockService)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAuthHandler_Validate(t *testing.T) {
	user := &domain.User{UserID: "google-123"}
	mockService := &MockAuthService{upsertedUser: user}
	_, router := newTestAuthHandler(mockService)

	t.Run("no session", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/auth/validate", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("with session", func(t *testing.T) {
		loginReq := httptest.NewRequest("POST", "/auth/session", bytes.NewReader([]byte(`{"userId":"google-123","email":"gary@example.com"}`)))
		loginRR := httptest.NewRecorder()
		router.ServeHTTP(loginRR, loginReq)
		require.Equal(t, http.StatusOK, loginRR.Code)

		req := httptest.NewRequest("GET", "/auth/validate", nil)
		for _, cookie := range loginRR.Result().Cookies() {
			req.AddCookie(cookie)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}
