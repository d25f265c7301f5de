package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNewUserRepo(t *testing.T) {
	log := logger.Mock()
	db, _ := newMockDB(t)

	repo := NewUserRepo(log, db)
	assert.NotNil(t, repo)

	userRepo, ok := repo.(*UserRepo)
	assert.True(t, ok, "NewUserRepo should return a *UserRepo type")
	assert.NotNil(t, userRepo.db, "DB should be assigned in UserRepo")
}

func TestUserRepo_FindByID(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	userID := "google-oauth2|12345"

	t.Run("User found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		rows := sqlmock.NewRows([]string{"user_id", "email", "name", "subscribed", "reminder_preference"}).
			AddRow(userID, "user@example.com", "Test User", true, "30m")

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE user_id = $1`)).
			WithArgs(userID, sqlmock.AnyArg()).
			WillReturnRows(rows)

		user, err := repo.FindByID(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, userID, user.UserID)
		assert.Equal(t, "user@example.com", user.Email)
		assert.True(t, user.Subscribed)
		assert.Equal(t, domain.Reminder30m, user.ReminderPreference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("User not found returns nil without error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE user_id = $1`)).
			WithArgs(userID, sqlmock.AnyArg()).
			WillReturnError(gorm.ErrRecordNotFound)

		user, err := repo.FindByID(ctx, userID)
		require.NoError(t, err)
		assert.Nil(t, user)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE user_id = $1`)).
			WithArgs(userID, sqlmock.AnyArg()).
			WillReturnError(sql.ErrConnDone)

		user, err := repo.FindByID(ctx, userID)
		require.Error(t, err)
		assert.Nil(t, user)
		assert.Contains(t, err.Error(), "failed to find user by id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepo_Store(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()

	user := domain.User{
		UserID:             "google-oauth2|12345",
		Email:              "user@example.com",
		Name:               "Test User",
		AccessToken:        "access-token",
		RefreshToken:       "refresh-token",
		Subscribed:         true,
		ReminderPreference: domain.Reminder1h,
	}

	t.Run("Update existing user", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Store(ctx, user)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insert new user when update affects 0 rows", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "users"`)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := repo.Store(ctx, user)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error during update", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET`)).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.Store(ctx, user)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update user")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepo_ListSubscribed(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()

	t.Run("Subscribed users found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		rows := sqlmock.NewRows([]string{"user_id", "email", "subscribed"}).
			AddRow("user-1", "one@example.com", true).
			AddRow("user-2", "two@example.com", true)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE subscribed = $1`)).
			WithArgs(true).
			WillReturnRows(rows)

		users, err := repo.ListSubscribed(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "user-1", users[0].UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE subscribed = $1`)).
			WithArgs(true).
			WillReturnError(sql.ErrConnDone)

		users, err := repo.ListSubscribed(ctx)
		require.Error(t, err)
		assert.Nil(t, users)
		assert.Contains(t, err.Error(), "failed to list subscribed users")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepo_SetSubscribed(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	userID := "google-oauth2|12345"

	t.Run("Subscription updated", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "subscribed"=$1`)).
			WithArgs(true, sqlmock.AnyArg(), userID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.SetSubscribed(ctx, userID, true)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown user is an error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "subscribed"=$1`)).
			WithArgs(false, sqlmock.AnyArg(), userID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.SetSubscribed(ctx, userID, false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepo_UpdateTokens(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	userID := "google-oauth2|12345"

	t.Run("Tokens updated", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "access_token"=$1`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateTokens(ctx, userID, "new-access", "new-refresh")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty refresh token is not overwritten", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "access_token"=$1`)).
			WithArgs("new-access", sqlmock.AnyArg(), userID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdateTokens(ctx, userID, "new-access", "")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepo_UpdatePreferences(t *testing.T) {
	ctx := context.Background()
	log := logger.Mock()
	userID := "google-oauth2|12345"

	t.Run("Partial preference update", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "reminder_preference"=$1`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.UpdatePreferences(ctx, userID, domain.Preferences{
			ReminderPreference: domain.Reminder30m,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty preferences are a no-op", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		err := repo.UpdatePreferences(ctx, userID, domain.Preferences{})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown user is an error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepo(log, db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "time_zone"=$1`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.UpdatePreferences(ctx, userID, domain.Preferences{TimeZone: "Asia/Kolkata"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
