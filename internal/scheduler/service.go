package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Service interface {
	Start()
	Stop()
	// AddJob adds a job that runs periodically at the given interval.
	AddJob(job cron.Job, interval time.Duration, identifier string) (int, error)
	// AddJobWithSpec adds a job using a cron spec string (e.g., "0 3 * * *").
	AddJobWithSpec(job cron.Job, spec string, identifier string) (int, error)
	RemoveJobByIdentifier(id string) error
	GetNextRun(id string) (time.Time, error)
}

type service struct {
	log     zerolog.Logger
	config  *domain.Config
	syncJob *ContestSyncJob

	cron *cron.Cron
	jobs map[string]cron.EntryID
	m    sync.RWMutex
}

func NewService(log logger.Logger, config *domain.Config, syncJob *ContestSyncJob) Service {
	return &service{
		log:     log.With().Str("module", "scheduler").Logger(),
		config:  config,
		syncJob: syncJob,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		)),
		jobs: map[string]cron.EntryID{},
	}
}

func (s *service) Start() {
	s.log.Info().Msg("Starting scheduler service")

	s.cron.Start()

	// init jobs
	go s.addAppJobs()
}

func (s *service) addAppJobs() {
	// Small delay so the rest of the services are up before the first
	// cycle can fire.
	time.Sleep(5 * time.Second)
	s.log.Info().Msg("Adding application-specific scheduled jobs")

	interval := 6 * time.Hour
	if s.config.Fetch.Interval != "" {
		parsed, err := time.ParseDuration(s.config.Fetch.Interval)
		if err != nil {
			s.log.Error().Err(err).Str("interval", s.config.Fetch.Interval).Msg("Invalid fetch interval, using default")
		} else {
			interval = parsed
		}
	}

	if _, err := s.AddJob(s.syncJob, interval, "contest-sync"); err != nil {
		s.log.Error().Err(err).Msg("Failed to add 'contest-sync' job")
	}

	if s.config.Fetch.RunOnStartup {
		s.log.Info().Msg("Running initial contest sync cycle")
		go s.syncJob.Run()
	}

	s.log.Info().Msg("Finished adding application-specific scheduled jobs")
}

func (s *service) Stop() {
	s.log.Info().Msg("Stopping scheduler service")
	s.cron.Stop()
}

func (s *service) AddJob(job cron.Job, interval time.Duration, identifier string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, exists := s.jobs[identifier]; exists {
		s.log.Warn().Str("identifier", identifier).Msg("Job with this identifier already exists, skipping add.")
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}

	entryID, err := s.cron.AddJob(fmt.Sprintf("@every %s", interval.String()), cron.NewChain(
		cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))

	if err != nil {
		s.log.Error().Err(err).Str("identifier", identifier).Msg("Failed to add job with interval")
		return 0, fmt.Errorf("failed to add job '%s': %w", identifier, err)
	}

	s.log.Info().Str("identifier", identifier).Dur("interval", interval).Int("entryID", int(entryID)).Msg("Scheduled job added")
	s.jobs[identifier] = entryID
	return int(entryID), nil
}

// AddJobWithSpec adds a job using a cron specification string.
func (s *service) AddJobWithSpec(job cron.Job, spec string, identifier string) (int, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if _, exists := s.jobs[identifier]; exists {
		s.log.Warn().Str("identifier", identifier).Msg("Job with this identifier already exists, skipping add.")
		return 0, fmt.Errorf("job with identifier '%s' already exists", identifier)
	}

	entryID, err := s.cron.AddJob(spec, cron.NewChain(
		cron.SkipIfStillRunning(cron.DefaultLogger)).Then(job))

	if err != nil {
		s.log.Error().Err(err).Str("identifier", identifier).Str("spec", spec).Msg("Failed to add job with spec")
		return 0, fmt.Errorf("failed to add job '%s' with spec '%s': %w", identifier, spec, err)
	}

	s.log.Info().Str("identifier", identifier).Str("spec", spec).Int("entryID", int(entryID)).Msg("Scheduled job added")
	s.jobs[identifier] = entryID
	return int(entryID), nil
}

func (s *service) RemoveJobByIdentifier(id string) error {
	s.m.Lock()
	defer s.m.Unlock()

	v, ok := s.jobs[id]
	if !ok {
		return nil
	}

	s.log.Debug().Msgf("scheduler.Remove: removing job: %v", id)

	s.cron.Remove(v)
	delete(s.jobs, id)
	return nil
}

func (s *service) GetNextRun(id string) (time.Time, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	v, ok := s.jobs[id]
	if !ok {
		return time.Time{}, fmt.Errorf("no job found with identifier '%s'", id)
	}

	entry := s.cron.Entry(v)
	if !entry.Valid() {
		return time.Time{}, fmt.Errorf("job entry for '%s' is no longer valid", id)
	}

	return entry.Next, nil
}
