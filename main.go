package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/contestcal/contestcal/internal/aggregator"
	"github.com/contestcal/contestcal/internal/auth"
	"github.com/contestcal/contestcal/internal/calendar"
	"github.com/contestcal/contestcal/internal/config"
	"github.com/contestcal/contestcal/internal/database"
	"github.com/contestcal/contestcal/internal/events"
	"github.com/contestcal/contestcal/internal/http"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/internal/scheduler"
	"github.com/contestcal/contestcal/internal/source"
	syncsvc "github.com/contestcal/contestcal/internal/sync"
	"github.com/contestcal/contestcal/internal/valkey"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to configuration file")
	pflag.Parse()

	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	// setup server-sent-events
	serverEvents := sse.New()
	serverEvents.CreateStreamWithOpts("logs", sse.StreamOpts{MaxEntries: 1000, AutoReplay: true})

	// register SSE writer
	log.RegisterSSEWriter(serverEvents)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting ContestCal")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	// setup repos
	var (
		contestRepo = database.NewContestRepo(log, db)
		userRepo    = database.NewUserRepo(log, db)
		eventRepo   = database.NewCalendarEventRepo(log, db)
	)

	// init Valkey service
	valkeyService, err := valkey.NewService(cfg.Config.Valkey)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new valkey service")
	}
	defer valkeyService.Close()
	log.Info().Msg("Valkey service initialized")

	// contest source adapters share one set of fetch options
	fetchOpts := source.Options{Attempts: cfg.Config.Fetch.Attempts}
	if cfg.Config.Fetch.Timeout != "" {
		if timeout, err := time.ParseDuration(cfg.Config.Fetch.Timeout); err == nil {
			fetchOpts.Timeout = timeout
		} else {
			log.Error().Err(err).Str("timeout", cfg.Config.Fetch.Timeout).Msg("Invalid fetch timeout, using default")
		}
	}

	clistCreds := source.ClistCredentials{
		Username: cfg.Config.Clist.Username,
		APIKey:   cfg.Config.Clist.APIKey,
	}

	sources := []source.Source{
		source.NewCodeforcesSource(log, fetchOpts),
		source.NewLeetCodeSource(log, fetchOpts, clistCreds),
		source.NewAtCoderSource(log, fetchOpts),
		source.NewCodeChefSource(log, fetchOpts),
	}

	// setup services
	var (
		aggregatorService = aggregator.NewService(log, contestRepo, sources)
		calendarProvider  = calendar.NewGoogleProvider(log, cfg.Config.Google)
		syncService       = syncsvc.NewService(log, userRepo, contestRepo, eventRepo, calendarProvider)
		authService       = auth.NewService(log, cfg.Config, userRepo)
		syncJob           = scheduler.NewContestSyncJob(log, aggregatorService, syncService, bus, 0)
		schedulingService = scheduler.NewService(log, cfg.Config, syncJob)
	)

	// register event subscribers
	events.NewSubscribers(log, bus)

	errorChannel := make(chan error)

	go func() {
		httpServer := http.NewServer(
			log,
			cfg,
			serverEvents,
			db,
			version,
			commit,
			date,
			authService,
			contestRepo,
			userRepo,
			syncService,
			syncJob,
			valkeyService,
		)
		errorChannel <- httpServer.Open()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	schedulingService.Start()

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			log.Log().Msg("shutting down server sighup")
			schedulingService.Stop()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			valkeyService.Close()
			log.Info().Msg("Valkey service shut down")
			os.Exit(1)
		case syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM:
			log.Info().Msg("Shutting down server...")
			schedulingService.Stop()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			valkeyService.Close()
			log.Info().Msg("Valkey service shut down")
			os.Exit(0)
		}
	}
}
