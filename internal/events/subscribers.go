package events

import (
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Subscriber wires pipeline completion events to the log so operators
// can follow cycles without scraping per-request logs.
type Subscriber struct {
	log zerolog.Logger
	bus EventBus.Bus
}

func NewSubscribers(log logger.Logger, bus EventBus.Bus) *Subscriber {
	s := &Subscriber{
		log: log.With().Str("module", "events").Logger(),
		bus: bus,
	}
	s.Register()
	return s
}

func (s *Subscriber) Register() {
	if err := s.bus.Subscribe(domain.EventContestCycleCompleted, s.onCycleCompleted); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventContestCycleCompleted).Msg("Failed to subscribe to topic")
	}
	if err := s.bus.Subscribe(domain.EventCalendarSyncCompleted, s.onSyncCompleted); err != nil {
		s.log.Error().Err(err).Str("topic", domain.EventCalendarSyncCompleted).Msg("Failed to subscribe to topic")
	}
}

func (s *Subscriber) onCycleCompleted(result *domain.CycleResult) {
	if result == nil {
		return
	}

	event := s.log.Info().
		Str("upserted", humanize.Comma(int64(result.Upserted))).
		Str("finished", humanize.Time(result.FinishedAt)).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt))

	for name, count := range result.PerSource {
		event = event.Int(name, count)
	}
	if len(result.FailedSources) > 0 {
		event = event.Strs("failed_sources", result.FailedSources)
	}

	event.Msg("Contest fetch cycle completed")
}

func (s *Subscriber) onSyncCompleted(result *domain.SyncBatchResult) {
	if result == nil {
		return
	}

	s.log.Info().
		Int("users", result.Users).
		Str("added", humanize.Comma(int64(result.Added))).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Str("took", durationString(result)).
		Msg("Calendar sync completed")
}

func durationString(result *domain.SyncBatchResult) string {
	return result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String()
}
