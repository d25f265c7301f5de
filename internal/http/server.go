package http

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/contestcal/contestcal/internal/config"
	"github.com/contestcal/contestcal/internal/database"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// valkeyService is the slice of the valkey client the rate limiter
// needs.
type valkeyService interface {
	CountRequest(ctx context.Context, identifierType string, identifier string, windowSeconds int) (int, error)
}

type Server struct {
	log zerolog.Logger
	sse *sse.Server
	db  *database.DB

	config      *config.AppConfig
	cookieStore *sessions.CookieStore

	version string
	commit  string
	date    string

	authService authService
	contestRepo domain.ContestRepo
	userRepo    domain.UserRepo
	syncService syncService
	syncJob     cycleTrigger
	valkey      valkeyService
}

func NewServer(
	log logger.Logger,
	config *config.AppConfig,
	sse *sse.Server,
	db *database.DB,
	version string,
	commit string,
	date string,
	authService authService,
	contestRepo domain.ContestRepo,
	userRepo domain.UserRepo,
	syncService syncService,
	syncJob cycleTrigger,
	valkeyService valkeyService,
) Server {
	return Server{
		log:     log.With().Str("module", "http").Logger(),
		config:  config,
		sse:     sse,
		db:      db,
		version: version,
		commit:  commit,
		date:    date,

		cookieStore: sessions.NewCookieStore([]byte(config.Config.SessionSecret)),

		authService: authService,
		contestRepo: contestRepo,
		userRepo:    userRepo,
		syncService: syncService,
		syncJob:     syncJob,
		valkey:      valkeyService,
	}
}

func (s Server) Open() error {
	addr := fmt.Sprintf("%v:%v", s.config.Config.Server.Host, s.config.Config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := http.Server{
		Handler: s.Handler(),
	}

	s.log.Info().Msgf("Starting server. Listening on %s", listener.Addr().String())

	return server.Serve(listener)
}

func (s Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(&s.log))

	c := cors.New(cors.Options{
		AllowCredentials:   true,
		AllowedMethods:     []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowOriginFunc:    func(origin string) bool { return true },
		OptionsPassthrough: true,
	})

	r.Use(c.Handler)

	encoder := encoder{}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", newAuthHandler(encoder, s.log, s.config.Config, s.cookieStore, s.authService).Routes)
		r.Route("/healthz", newHealthHandler(encoder, s.db).Routes)

		// Contest listing is public but rate limited.
		contestsRouter := r.Group(nil)
		contestsRouter.Use(s.RateLimiter)
		contestsRouter.Route("/contests", newContestsHandler(encoder, s.log, s.contestRepo).Routes)

		// Manual cycle trigger authenticates with the admin token, not
		// a session.
		updateRouter := r.Group(nil)
		updateRouter.Use(s.RateLimiter)
		updateRouter.Route("/update", newUpdateHandler(encoder, s.log, s.authService, s.syncJob).Routes)

		// Session-authenticated routes.
		authedRouter := r.Group(nil)
		authedRouter.Use(s.IsAuthenticated)

		subRouter := authedRouter.Group(nil)
		subRouter.Use(s.RateLimiter)
		subRouter.Route("/subscription", newSubscriptionHandler(encoder, s.log, s.userRepo, s.syncService).Routes)

		authedRouter.Route("/config", newConfigHandler(encoder, s, s.config).Routes)

		authedRouter.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			// inject CORS headers to bypass checks
			s.sse.Headers = map[string]string{
				"Content-Type":      "text/event-stream",
				"Cache-Control":     "no-cache",
				"Connection":        "keep-alive",
				"X-Accel-Buffering": "no",
			}
			s.sse.ServeHTTP(w, r)
		})
	})

	return r
}
