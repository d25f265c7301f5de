package domain

import (
	"context"
	"time"
)

// ReminderPreference is the user-selected reminder offset before a
// contest starts.
type ReminderPreference string

const (
	Reminder10m ReminderPreference = "10m"
	Reminder30m ReminderPreference = "30m"
	Reminder1h  ReminderPreference = "1h"
	Reminder2h  ReminderPreference = "2h"
)

// Minutes maps the preference to calendar reminder override minutes.
// Unknown or unset preferences fall back to one hour.
func (r ReminderPreference) Minutes() []int {
	switch r {
	case Reminder10m:
		return []int{10}
	case Reminder30m:
		return []int{30}
	case Reminder1h:
		return []int{60}
	case Reminder2h:
		return []int{120}
	default:
		return []int{60}
	}
}

type UserRepo interface {
	FindByID(ctx context.Context, userID string) (*User, error)
	// Store upserts the identity record delivered by the external
	// identity provider, keyed on UserID.
	Store(ctx context.Context, user User) error
	ListSubscribed(ctx context.Context) ([]User, error)
	SetSubscribed(ctx context.Context, userID string, subscribed bool) error
	UpdateTokens(ctx context.Context, userID string, accessToken string, refreshToken string) error
	UpdatePreferences(ctx context.Context, userID string, prefs Preferences) error
}

// Preferences collects the sync-relevant settings a user can change.
type Preferences struct {
	ReminderPreference ReminderPreference  `json:"reminder_preference"`
	Platforms          []Platform          `json:"platforms"`
	PlatformColors     map[Platform]string `json:"platform_colors"`
	TimeZone           string              `json:"time_zone"`
}

// User is the identity record delivered by the external identity
// provider, extended with subscription state and preferences. Tokens
// are opaque credentials for the user's external calendar account.
type User struct {
	UserID       string `json:"user_id" gorm:"primaryKey;column:user_id"`
	Email        string `json:"email" gorm:"column:email;uniqueIndex"`
	Name         string `json:"name" gorm:"column:name"`
	Picture      string `json:"picture,omitempty" gorm:"column:picture"`
	AccessToken  string `json:"-" gorm:"column:access_token"`
	RefreshToken string `json:"-" gorm:"column:refresh_token"`

	Subscribed         bool                `json:"subscribed" gorm:"column:subscribed;default:false"`
	ReminderPreference ReminderPreference  `json:"reminder_preference" gorm:"column:reminder_preference;default:1h"`
	Platforms          []Platform          `json:"platforms" gorm:"column:platforms;serializer:json"`
	PlatformColors     map[Platform]string `json:"platform_colors" gorm:"column:platform_colors;serializer:json"`
	TimeZone           string              `json:"time_zone" gorm:"column:time_zone"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// HasCalendarCredentials reports whether the user can be synced at all.
// A subscribed user without a refresh token is skipped, not errored.
func (u *User) HasCalendarCredentials() bool {
	return u != nil && u.RefreshToken != ""
}
