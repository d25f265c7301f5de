package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/contestcal/contestcal/internal/calendar"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
)

// Window scanned for marked events on the remove path. Wide enough to
// cover every event the add path could have created, even if the local
// mapping store was lost.
const (
	markerWindowPast   = -1 // months
	markerWindowFuture = 6  // months
)

// Service reconciles each user's desired calendar state against the
// events actually present in their external calendar. Adds and removes
// are idempotent per (user, contest).
type Service interface {
	// AddContestsForUser places every upcoming contest matching the
	// user's platform filter on their calendar, skipping contests
	// already mapped. The result is always user-presentable.
	AddContestsForUser(ctx context.Context, userID string) *domain.SyncResult
	// RemoveContestsForUser deletes every event this system created
	// for the user, then clears the user's mappings.
	RemoveContestsForUser(ctx context.Context, userID string) *domain.SyncResult
	// SyncAllSubscribed runs the add path for every subscribed user.
	// One user's failure never affects the others.
	SyncAllSubscribed(ctx context.Context) (*domain.SyncBatchResult, error)
}

type service struct {
	log         zerolog.Logger
	userRepo    domain.UserRepo
	contestRepo domain.ContestRepo
	eventRepo   domain.CalendarEventRepo
	provider    calendar.Provider
}

func NewService(log logger.Logger, userRepo domain.UserRepo, contestRepo domain.ContestRepo,
	eventRepo domain.CalendarEventRepo, provider calendar.Provider) Service {
	return &service{
		log:         log.With().Str("module", "sync").Logger(),
		userRepo:    userRepo,
		contestRepo: contestRepo,
		eventRepo:   eventRepo,
		provider:    provider,
	}
}

func (s *service) AddContestsForUser(ctx context.Context, userID string) *domain.SyncResult {
	log := s.log.With().Str("user_id", userID).Logger()

	user, client, result := s.clientForUser(ctx, userID)
	if result != nil {
		return result
	}

	contests, err := s.contestRepo.FindUpcoming(ctx, time.Now(), user.Platforms, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load upcoming contests")
		return &domain.SyncResult{Success: false, Message: "Failed to load upcoming contests"}
	}
	if len(contests) == 0 {
		return &domain.SyncResult{Success: true, Message: "No upcoming contests found"}
	}

	mapped, err := s.eventRepo.ContestKeysForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load existing mappings")
		return &domain.SyncResult{Success: false, Message: "Failed to load existing calendar mappings"}
	}

	result = &domain.SyncResult{Success: true}
	for _, contest := range contests {
		if _, ok := mapped[contest.ID]; ok {
			result.SkippedCount++
			continue
		}

		eventID, err := client.InsertEvent(ctx, calendar.NewContestEvent(contest, *user))
		if err != nil {
			// One bad event must not stop the rest of the batch.
			log.Error().Err(err).Str("contest_key", contest.ID).Msg("Failed to insert calendar event")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", contest.ID, err))
			continue
		}

		err = s.eventRepo.Store(ctx, domain.UserCalendarEvent{
			UserID:          userID,
			ContestKey:      contest.ID,
			ExternalEventID: eventID,
		})
		if err != nil {
			if errors.Is(err, domain.ErrMappingExists) {
				// A concurrent pass won the race. Remove the event we
				// just created so the calendar holds exactly one copy.
				log.Debug().Str("contest_key", contest.ID).Msg("Concurrent insert detected, rolling back duplicate event")
				if delErr := client.DeleteEvent(ctx, eventID); delErr != nil && !errors.Is(delErr, calendar.ErrEventNotFound) {
					log.Warn().Err(delErr).Str("event_id", eventID).Msg("Failed to roll back duplicate event")
				}
				result.SkippedCount++
				continue
			}
			// The event exists but the mapping was lost. The marker
			// scan on the remove path still finds it later.
			log.Error().Err(err).Str("contest_key", contest.ID).Msg("Failed to store mapping for inserted event")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", contest.ID, err))
			continue
		}

		result.AddedCount++
	}

	result.Success = len(result.Errors) == 0
	if result.Success {
		result.Message = fmt.Sprintf("Successfully added %d contests to your calendar", result.AddedCount)
	} else {
		result.Message = fmt.Sprintf("Added %d contests, %d failed", result.AddedCount, len(result.Errors))
	}

	log.Info().
		Int("added", result.AddedCount).
		Int("skipped", result.SkippedCount).
		Int("failed", len(result.Errors)).
		Msg("Finished adding contests for user")
	return result
}

func (s *service) RemoveContestsForUser(ctx context.Context, userID string) *domain.SyncResult {
	log := s.log.With().Str("user_id", userID).Logger()

	_, client, result := s.clientForUser(ctx, userID)
	if result != nil {
		return result
	}

	mappings, err := s.eventRepo.ListForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load mappings")
		return &domain.SyncResult{Success: false, Message: "Failed to load calendar mappings"}
	}

	eventIDs := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		if m.ExternalEventID != "" {
			eventIDs[m.ExternalEventID] = struct{}{}
		}
	}

	// The marker scan catches events whose mapping was lost; the
	// mapping store alone is not trusted for removal.
	now := time.Now()
	marked, err := client.ListMarkedEvents(ctx, now.AddDate(0, markerWindowPast, 0), now.AddDate(0, markerWindowFuture, 0))
	if err != nil {
		log.Warn().Err(err).Msg("Marker scan failed, removing mapped events only")
	}
	for _, eventID := range marked {
		eventIDs[eventID] = struct{}{}
	}

	result = &domain.SyncResult{Success: true}
	for eventID := range eventIDs {
		err := client.DeleteEvent(ctx, eventID)
		if err != nil && !errors.Is(err, calendar.ErrEventNotFound) {
			log.Error().Err(err).Str("event_id", eventID).Msg("Failed to delete calendar event")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", eventID, err))
			continue
		}
		// Already-gone events count as removed; the goal state holds.
		result.RemovedCount++
	}

	// Mappings are cleared regardless of individual delete outcomes so
	// a later subscribe starts from a clean slate.
	if err := s.eventRepo.DeleteForUser(ctx, userID); err != nil {
		log.Error().Err(err).Msg("Failed to clear mappings")
		result.Errors = append(result.Errors, err.Error())
	}

	result.Success = len(result.Errors) == 0
	if result.Success {
		result.Message = fmt.Sprintf("Successfully removed %d contest events from your calendar", result.RemovedCount)
	} else {
		result.Message = fmt.Sprintf("Removed %d events, %d failed", result.RemovedCount, len(result.Errors))
	}

	log.Info().
		Int("removed", result.RemovedCount).
		Int("failed", len(result.Errors)).
		Msg("Finished removing contests for user")
	return result
}

func (s *service) SyncAllSubscribed(ctx context.Context) (*domain.SyncBatchResult, error) {
	users, err := s.userRepo.ListSubscribed(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list subscribed users")
	}

	batch := &domain.SyncBatchResult{
		StartedAt: time.Now(),
		Users:     len(users),
	}

	s.log.Info().Int("users", len(users)).Msg("Syncing contests for subscribed users")

	for _, user := range users {
		result := s.AddContestsForUser(ctx, user.UserID)
		batch.Added += result.AddedCount
		batch.Skipped += result.SkippedCount
		if !result.Success {
			batch.Failed++
			s.log.Warn().Str("user_id", user.UserID).Str("message", result.Message).Msg("User sync did not fully succeed")
		}
	}

	batch.FinishedAt = time.Now()
	s.log.Info().
		Int("users", batch.Users).
		Int("added", batch.Added).
		Int("skipped", batch.Skipped).
		Int("failed", batch.Failed).
		Dur("elapsed", batch.FinishedAt.Sub(batch.StartedAt)).
		Msg("Finished syncing subscribed users")

	return batch, nil
}

// clientForUser loads the user and builds their calendar client. A
// non-nil result short-circuits the caller with a user-presentable
// failure.
func (s *service) clientForUser(ctx context.Context, userID string) (*domain.User, calendar.Client, *domain.SyncResult) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load user")
		return nil, nil, &domain.SyncResult{Success: false, Message: "Failed to load user"}
	}
	if user == nil {
		return nil, nil, &domain.SyncResult{Success: false, Message: "User not found"}
	}
	if !user.HasCalendarCredentials() {
		return nil, nil, &domain.SyncResult{Success: false, Message: "User not authenticated with calendar provider"}
	}

	client, err := s.provider.ClientFor(ctx, *user)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to build calendar client")
		return nil, nil, &domain.SyncResult{Success: false, Message: "Failed to connect to calendar provider"}
	}

	return user, client, nil
}
