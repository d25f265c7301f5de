package database

import (
	"context"
	"fmt"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type UserRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewUserRepo(log logger.Logger, db *DB) domain.UserRepo {
	return &UserRepo{
		log: log.With().Str("repo", "user").Logger(),
		db:  db,
	}
}

func (r *UserRepo) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	result := r.db.Get().WithContext(ctx).Where("user_id = ?", userID).First(&user)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			// User not found is not necessarily an application error, return nil, nil
			return nil, nil
		}
		r.log.Error().Err(result.Error).Str("user_id", userID).Msg("Failed to find user by id")
		return nil, errors.Wrap(result.Error, "failed to find user by id")
	}

	return &user, nil
}

// Store upserts the identity record keyed on UserID. Subscription state
// and preferences are preserved on re-login; only identity fields and
// credentials are refreshed.
func (r *UserRepo) Store(ctx context.Context, user domain.User) error {
	db := r.db.Get().WithContext(ctx)

	updates := map[string]interface{}{
		"email":   user.Email,
		"name":    user.Name,
		"picture": user.Picture,
	}
	if user.AccessToken != "" {
		updates["access_token"] = user.AccessToken
	}
	if user.RefreshToken != "" {
		updates["refresh_token"] = user.RefreshToken
	}

	updateResult := db.Model(&domain.User{}).
		Where("user_id = ?", user.UserID).
		Updates(updates)

	if updateResult.Error != nil {
		r.log.Error().Err(updateResult.Error).Str("user_id", user.UserID).Msg("Failed to update user")
		return errors.Wrap(updateResult.Error, "failed to update user")
	}

	if updateResult.RowsAffected == 0 {
		if user.ReminderPreference == "" {
			user.ReminderPreference = domain.Reminder1h
		}
		createResult := db.Create(&user)
		if createResult.Error != nil {
			r.log.Error().Err(createResult.Error).Str("user_id", user.UserID).Msg("Failed to store user")
			return errors.Wrap(createResult.Error, "failed to store user")
		}
		r.log.Debug().Str("user_id", user.UserID).Msg("Successfully stored user")
	} else {
		r.log.Debug().Str("user_id", user.UserID).Msg("Successfully updated user")
	}

	return nil
}

func (r *UserRepo) ListSubscribed(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	result := r.db.Get().WithContext(ctx).
		Where("subscribed = ?", true).
		Find(&users)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Msg("Failed to list subscribed users")
		return nil, errors.Wrap(result.Error, "failed to list subscribed users")
	}

	return users, nil
}

func (r *UserRepo) SetSubscribed(ctx context.Context, userID string, subscribed bool) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.User{}).
		Where("user_id = ?", userID).
		Update("subscribed", subscribed)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("user_id", userID).Msg("Failed to update user subscription")
		return errors.Wrap(result.Error, "failed to update user subscription")
	}

	if result.RowsAffected == 0 {
		r.log.Warn().Str("user_id", userID).Msg("SetSubscribed affected 0 rows, user might not exist")
		return errors.Wrap(gorm.ErrRecordNotFound, fmt.Sprintf("user with id %s not found for subscription update", userID))
	}

	r.log.Debug().Str("user_id", userID).Bool("subscribed", subscribed).Msg("Successfully updated user subscription")
	return nil
}

// UpdateTokens refreshes the stored calendar credentials for a user.
func (r *UserRepo) UpdateTokens(ctx context.Context, userID string, accessToken string, refreshToken string) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}

	result := r.db.Get().WithContext(ctx).
		Model(&domain.User{}).
		Where("user_id = ?", userID).
		Updates(updates)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("user_id", userID).Msg("Failed to update user tokens")
		return errors.Wrap(result.Error, "failed to update user tokens")
	}

	if result.RowsAffected == 0 {
		r.log.Warn().Str("user_id", userID).Msg("UpdateTokens affected 0 rows, user might not exist")
		return errors.Wrap(gorm.ErrRecordNotFound, fmt.Sprintf("user with id %s not found for token update", userID))
	}

	return nil
}

func (r *UserRepo) UpdatePreferences(ctx context.Context, userID string, prefs domain.Preferences) error {
	updates := map[string]interface{}{}

	if prefs.ReminderPreference != "" {
		updates["reminder_preference"] = prefs.ReminderPreference
	}
	if prefs.Platforms != nil {
		updates["platforms"] = prefs.Platforms
	}
	if prefs.PlatformColors != nil {
		updates["platform_colors"] = prefs.PlatformColors
	}
	if prefs.TimeZone != "" {
		updates["time_zone"] = prefs.TimeZone
	}

	if len(updates) == 0 {
		return nil
	}

	result := r.db.Get().WithContext(ctx).
		Model(&domain.User{}).
		Where("user_id = ?", userID).
		Updates(updates)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("user_id", userID).Msg("Failed to update user preferences")
		return errors.Wrap(result.Error, "failed to update user preferences")
	}

	if result.RowsAffected == 0 {
		r.log.Warn().Str("user_id", userID).Msg("UpdatePreferences affected 0 rows, user might not exist")
		return errors.Wrap(gorm.ErrRecordNotFound, fmt.Sprintf("user with id %s not found for preference update", userID))
	}

	r.log.Debug().Str("user_id", userID).Msg("Successfully updated user preferences")
	return nil
}
