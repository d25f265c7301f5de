package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// UserContextKey is the key for storing the authenticated user in the
// request context.
const UserContextKey ContextKey = "user"

// IsAuthenticated gates routes behind a valid session cookie. The
// session user is loaded and stored in the request context under
// UserContextKey.
func (s *Server) IsAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := s.cookieStore.Get(r, "user_session")

		if auth, ok := session.Values["authenticated"].(bool); !ok || !auth {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, ok := session.Values["user_id"].(string)
		if !ok || userID == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		user, err := s.authService.GetUser(r.Context(), userID)
		if err != nil || user == nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Session references unknown user")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggerMiddleware provides structured logging for HTTP requests and
// recovers panics with a stack trace.
func LoggerMiddleware(logger *zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With().Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				reqID := middleware.GetReqID(r.Context())

				if rec := recover(); rec != nil {
					reqLogger.Error().
						Str("type", "error").
						Timestamp().
						Interface("recover_info", rec).
						Bytes("debug_stack", debug.Stack()).
						Str("request_id", reqID).
						Msg("Unhandled panic recovered by middleware")
					http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

// RateLimiter limits requests per client using a sliding window
// counter stored in Valkey. Clients are identified by user ID when a
// session user is present, otherwise by IP address.
func (s *Server) RateLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Config.RateLimit.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		logger := s.log.With().Str("middleware", "RateLimiter").Logger()

		identifier, identifierType := s.getClientIdentifier(r)

		requestsPerMinute := s.config.Config.RateLimit.RequestsPerMinute
		windowSeconds := s.config.Config.RateLimit.WindowSeconds

		if requestsPerMinute <= 0 {
			requestsPerMinute = 20
		}
		if windowSeconds <= 0 {
			windowSeconds = 60
		}

		currentCount, err := s.valkey.CountRequest(r.Context(), identifierType, identifier, windowSeconds)
		if err != nil {
			logger.Error().Err(err).
				Str("identifier", identifier).
				Str("type", identifierType).
				Msg("Error checking rate limit")
			// Allow request to proceed on error to avoid blocking legitimate traffic
			next.ServeHTTP(w, r)
			return
		}

		if currentCount > requestsPerMinute {
			logger.Warn().
				Str("identifier", identifier).
				Str("type", identifierType).
				Int("current_count", currentCount).
				Int("limit", requestsPerMinute).
				Int("window_seconds", windowSeconds).
				Msg("Rate limit exceeded")

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", requestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))

			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", requestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", requestsPerMinute-currentCount))

		next.ServeHTTP(w, r)
	})
}

// getClientIdentifier returns the client identifier for rate limiting.
// It tries the authenticated user first, then falls back to IP address.
func (s *Server) getClientIdentifier(r *http.Request) (string, string) {
	if user, ok := r.Context().Value(UserContextKey).(*domain.User); ok && user != nil {
		return user.UserID, "user_id"
	}

	ip := getClientIP(r)
	return ip, "ip_address"
}

// getClientIP extracts the client IP address from the request. It
// handles headers that carry the real client IP behind proxies.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if clientIP != "" {
				return clientIP
			}
		}
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
