package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contestcal/contestcal/internal/config"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockValkeyService returns a fixed request count.
type MockValkeyService struct {
	count          int
	err            error
	lastIdentifier string
	lastType       string
}

func (m *MockValkeyService) CountRequest(ctx context.Context, identifierType string, identifier string, windowSeconds int) (int, error) {
	m.lastType = identifierType
	m.lastIdentifier = identifier
	return m.count, m.err
}

func newTestServer(rateLimit domain.RateLimitConfig, valkey valkeyService, authSvc authService) *Server {
	log := logger.Mock().With().Str("module", "http").Logger()

	appConfig := &config.AppConfig{
		Config: &domain.Config{
			RateLimit: rateLimit,
		},
	}

	return &Server{
		log:         log,
		config:      appConfig,
		cookieStore: sessions.NewCookieStore([]byte("test-secret")),
		authService: authSvc,
		valkey:      valkey,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGetClientIP(t *testing.T) {
	t.Run("x-forwarded-for takes precedence", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		req.Header.Set("X-Real-IP", "198.51.100.2")
		req.RemoteAddr = "192.0.2.1:54321"

		assert.Equal(t, "203.0.113.7", getClientIP(req))
	})

	t.Run("x-real-ip fallback", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Real-IP", "198.51.100.2")
		req.RemoteAddr = "192.0.2.1:54321"

		assert.Equal(t, "198.51.100.2", getClientIP(req))
	})

	t.Run("remote addr fallback", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.0.2.1:54321"

		assert.Equal(t, "192.0.2.1", getClientIP(req))
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("disabled passes through", func(t *testing.T) {
		valkey := &MockValkeyService{count: 1000}
		s := newTestServer(domain.RateLimitConfig{Enabled: false}, valkey, nil)

		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		s.RateLimiter(okHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, valkey.lastIdentifier, "valkey must not be consulted when disabled")
	})

	t.Run("under limit sets headers", func(t *testing.T) {
		valkey := &MockValkeyService{count: 3}
		s := newTestServer(domain.RateLimitConfig{Enabled: true, RequestsPerMinute: 20, WindowSeconds: 60}, valkey, nil)

		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		rr := httptest.NewRecorder()
		s.RateLimiter(okHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "20", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "17", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "ip_address", valkey.lastType)
		assert.Equal(t, "192.0.2.1", valkey.lastIdentifier)
	})

	t.Run("over limit returns 429", func(t *testing.T) {
		valkey := &MockValkeyService{count: 21}
		s := newTestServer(domain.RateLimitConfig{Enabled: true, RequestsPerMinute: 20, WindowSeconds: 60}, valkey, nil)

		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		s.RateLimiter(okHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	})

	t.Run("valkey error fails open", func(t *testing.T) {
		valkey := &MockValkeyService{err: context.DeadlineExceeded}
		s := newTestServer(domain.RateLimitConfig{Enabled: true, RequestsPerMinute: 20, WindowSeconds: 60}, valkey, nil)

		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		s.RateLimiter(okHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("session user identified by user id", func(t *testing.T) {
		valkey := &MockValkeyService{count: 1}
		s := newTestServer(domain.RateLimitConfig{Enabled: true, RequestsPerMinute: 20, WindowSeconds: 60}, valkey, nil)

		req := httptest.NewRequest("GET", "/", nil)
		ctx := context.WithValue(req.Context(), UserContextKey, &domain.User{UserID: "google-123"})
		rr := httptest.NewRecorder()
		s.RateLimiter(okHandler()).ServeHTTP(rr, req.WithContext(ctx))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user_id", valkey.lastType)
		assert.Equal(t, "google-123", valkey.lastIdentifier)
	})
}

func TestIsAuthenticated(t *testing.T) {
	user := &domain.User{UserID: "google-123"}

	t.Run("no session cookie", func(t *testing.T) {
		s := newTestServer(domain.RateLimitConfig{}, nil, &MockAuthService{fetchedUser: user})

		req := httptest.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		s.IsAuthenticated(okHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid session loads user into context", func(t *testing.T) {
		s := newTestServer(domain.RateLimitConfig{}, nil, &MockAuthService{fetchedUser: user})

		// Mint a session cookie the way the auth handler does.
		mintRR := httptest.NewRecorder()
		mintReq := httptest.NewRequest("POST", "/", nil)
		session, _ := s.cookieStore.Get(mintReq, "user_session")
		session.Values["authenticated"] = true
		session.Values["user_id"] = user.UserID
		require.NoError(t, session.Save(mintReq, mintRR))

		var ctxUser *domain.User
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxUser, _ = r.Context().Value(UserContextKey).(*domain.User)
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/", nil)
		for _, cookie := range mintRR.Result().Cookies() {
			req.AddCookie(cookie)
		}
		rr := httptest.NewRecorder()
		s.IsAuthenticated(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, ctxUser)
		assert.Equal(t, "google-123", ctxUser.UserID)
	})

	t.Run("session user no longer exists", func(t *testing.T) {
		s := newTestServer(domain.RateLimitConfig{}, nil, &MockAuthService{fetchedUser: nil})

		mintRR := httptest.NewRecorder()
		mintReq := httptest.NewRequest("POST", "/", nil)
		session, _ := s.cookieStore.Get(mintReq, "user_session")
		session.Values["authenticated"] = true
		session.Values["user_id"] = "gone"
		require.NoError(t, session.Save(mintReq, mintRR))

		req := httptest.NewRequest("GET", "/", nil)
		for _, cookie := range mintRR.Result().Cookies() {
			req.AddCookie(cookie)
		}
		rr := httptest.NewRecorder()
		s.IsAuthenticated(okHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
