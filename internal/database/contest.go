package database

import (
	"context"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
)

func NewContestRepo(log logger.Logger, db *DB) domain.ContestRepo {
	return &ContestRepo{
		log: log.With().Str("repo", "contest").Logger(),
		db:  db,
	}
}

type ContestRepo struct {
	log zerolog.Logger
	db  *DB
}

// Upsert replaces all fields when the id exists and inserts otherwise.
// The fetched record is authoritative, so there is no field merging.
func (r *ContestRepo) Upsert(ctx context.Context, contest domain.Contest) error {
	if contest.ID == "" {
		return errors.New("contest id is required")
	}

	db := r.db.Get().WithContext(ctx)

	// Try to update first
	updateResult := db.Model(&domain.Contest{}).
		Where("id = ?", contest.ID).
		Updates(map[string]interface{}{
			"platform":   contest.Platform,
			"name":       contest.Name,
			"start_time": contest.StartTime,
			"end_time":   contest.EndTime,
			"url":        contest.URL,
			"updated_at": time.Now(),
		})

	if updateResult.Error != nil {
		r.log.Error().Err(updateResult.Error).Str("id", contest.ID).Msg("Error updating contest")
		return errors.Wrap(updateResult.Error, "error updating contest")
	}

	// If no rows were affected by the update, insert a new record
	if updateResult.RowsAffected == 0 {
		createResult := db.Create(&contest)
		if createResult.Error != nil {
			r.log.Error().Err(createResult.Error).Str("id", contest.ID).Msg("Error inserting contest after failed update")
			return errors.Wrap(createResult.Error, "error inserting contest")
		}
		r.log.Debug().Str("id", contest.ID).Msg("Contest inserted")
	} else {
		r.log.Debug().Str("id", contest.ID).Msg("Contest updated")
	}

	return nil
}

// FindUpcoming returns contests starting at or after the given instant,
// oldest first. An empty platform list means no platform filter.
func (r *ContestRepo) FindUpcoming(ctx context.Context, after time.Time, platforms []domain.Platform, limit int) ([]domain.Contest, error) {
	var contests []domain.Contest

	db := r.db.Get().WithContext(ctx).
		Model(&domain.Contest{}).
		Where("start_time >= ?", after).
		Order("start_time asc")

	if len(platforms) > 0 {
		db = db.Where("platform IN ?", platforms)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}

	if err := db.Find(&contests).Error; err != nil {
		r.log.Error().Err(err).Msg("Failed to find upcoming contests")
		return nil, errors.Wrap(err, "failed to find upcoming contests")
	}

	return contests, nil
}
