package domain

import (
	"context"
	"time"

	"github.com/contestcal/contestcal/pkg/errors"
)

// ErrMappingExists is returned when a (user, contest) mapping is
// inserted twice. Callers treat it as "already synced", not a failure;
// it indicates a retry or a concurrent sync pass.
var ErrMappingExists = errors.New("calendar event mapping already exists")

type CalendarEventRepo interface {
	// Store inserts a new mapping. A uniqueness violation on
	// (user_id, contest_key) is reported as ErrMappingExists.
	Store(ctx context.Context, mapping UserCalendarEvent) error
	ListForUser(ctx context.Context, userID string) ([]UserCalendarEvent, error)
	// ContestKeysForUser returns the set of contest keys already
	// mapped for the user, for fast duplicate checks on the add path.
	ContestKeysForUser(ctx context.Context, userID string) (map[string]struct{}, error)
	Delete(ctx context.Context, userID string, contestKey string) error
	DeleteForUser(ctx context.Context, userID string) error
}

// UserCalendarEvent links one user's subscription to one contest to
// the event created for it in the user's external calendar. It is the
// source of truth for "has this contest already been placed on this
// user's calendar" and is owned exclusively by the sync engine.
type UserCalendarEvent struct {
	ID              uint      `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	UserID          string    `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_user_contest;index"`
	ContestKey      string    `json:"contest_key" gorm:"column:contest_key;uniqueIndex:idx_user_contest"`
	ExternalEventID string    `json:"external_event_id" gorm:"column:external_event_id"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (UserCalendarEvent) TableName() string {
	return "user_calendar_events"
}
