package database

import (
	"context"
	"strings"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type CalendarEventRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewCalendarEventRepo(log logger.Logger, db *DB) domain.CalendarEventRepo {
	return &CalendarEventRepo{
		log: log.With().Str("repo", "calendar_event").Logger(),
		db:  db,
	}
}

// Store inserts a new mapping. The (user_id, contest_key) uniqueness
// constraint is the synchronization point that prevents duplicate
// calendar inserts; a violation is reported as domain.ErrMappingExists
// so callers can treat it as "already synced".
func (r *CalendarEventRepo) Store(ctx context.Context, mapping domain.UserCalendarEvent) error {
	result := r.db.Get().WithContext(ctx).Create(&mapping)

	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			r.log.Debug().
				Str("user_id", mapping.UserID).
				Str("contest_key", mapping.ContestKey).
				Msg("Mapping already exists")
			return domain.ErrMappingExists
		}
		r.log.Error().Err(result.Error).
			Str("user_id", mapping.UserID).
			Str("contest_key", mapping.ContestKey).
			Msg("Failed to store calendar event mapping")
		return errors.Wrap(result.Error, "failed to store calendar event mapping")
	}

	r.log.Debug().
		Str("user_id", mapping.UserID).
		Str("contest_key", mapping.ContestKey).
		Str("external_event_id", mapping.ExternalEventID).
		Msg("Successfully stored calendar event mapping")
	return nil
}

func (r *CalendarEventRepo) ListForUser(ctx context.Context, userID string) ([]domain.UserCalendarEvent, error) {
	var mappings []domain.UserCalendarEvent
	result := r.db.Get().WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&mappings)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("user_id", userID).Msg("Failed to list calendar event mappings")
		return nil, errors.Wrap(result.Error, "failed to list calendar event mappings")
	}

	return mappings, nil
}

// ContestKeysForUser returns only the mapped contest keys, for fast
// duplicate checks on the add path.
func (r *CalendarEventRepo) ContestKeysForUser(ctx context.Context, userID string) (map[string]struct{}, error) {
	var keys []string
	result := r.db.Get().WithContext(ctx).
		Model(&domain.UserCalendarEvent{}).
		Where("user_id = ?", userID).
		Pluck("contest_key", &keys)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("user_id", userID).Msg("Failed to load mapped contest keys")
		return nil, errors.Wrap(result.Error, "failed to load mapped contest keys")
	}

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func (r *CalendarEventRepo) Delete(ctx context.Context, userID string, contestKey string) error {
	result := r.db.Get().WithContext(ctx).
		Where("user_id = ? AND contest_key = ?", userID, contestKey).
		Delete(&domain.UserCalendarEvent{})

	if result.Error != nil {
		r.log.Error().Err(result.Error).
			Str("user_id", userID).
			Str("contest_key", contestKey).
			Msg("Failed to delete calendar event mapping")
		return errors.Wrap(result.Error, "failed to delete calendar event mapping")
	}

	// 0 rows affected means the mapping was already gone, which is fine.
	return nil
}

// DeleteForUser removes every mapping for a user so stale records never
// accumulate, regardless of individual external delete outcomes.
func (r *CalendarEventRepo) DeleteForUser(ctx context.Context, userID string) error {
	result := r.db.Get().WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.UserCalendarEvent{})

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("user_id", userID).Msg("Failed to delete calendar event mappings for user")
		return errors.Wrap(result.Error, "failed to delete calendar event mappings for user")
	}

	r.log.Debug().Str("user_id", userID).Int64("rows", result.RowsAffected).Msg("Deleted calendar event mappings for user")
	return nil
}

// isUniqueViolation recognizes duplicate-key errors across the drivers
// in use. GORM translates most of them, postgres surfaces code 23505,
// and sqlite reports a constraint message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
