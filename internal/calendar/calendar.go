package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/pkg/errors"
)

// ErrEventNotFound reports that the external event no longer exists.
// Callers on the remove path treat it as success.
var ErrEventNotFound = errors.New("calendar event not found")

// Event is the provider-neutral shape handed to a Client. Times are
// UTC; TimeZone only affects how the provider displays them.
type Event struct {
	Summary         string
	Description     string
	Start           time.Time
	End             time.Time
	TimeZone        string
	ReminderMinutes []int
	ColorID         string
	SourceTitle     string
	SourceURL       string
	// ContestKey is embedded in the event as an identity marker so
	// events this system created can be recognized later.
	ContestKey string
}

// Client performs calendar operations for a single user account.
type Client interface {
	// InsertEvent creates the event and returns the provider's event ID.
	InsertEvent(ctx context.Context, event Event) (string, error)
	// ListMarkedEvents returns contest key -> event ID for events
	// carrying this system's identity marker within the window.
	ListMarkedEvents(ctx context.Context, from time.Time, to time.Time) (map[string]string, error)
	// DeleteEvent removes the event. A missing event is reported as
	// ErrEventNotFound, never as a generic failure.
	DeleteEvent(ctx context.Context, eventID string) error
}

// Provider builds per-user clients from stored credentials.
type Provider interface {
	ClientFor(ctx context.Context, user domain.User) (Client, error)
}

// NewContestEvent builds the calendar event for one contest under one
// user's preferences.
func NewContestEvent(contest domain.Contest, user domain.User) Event {
	colorID := contest.Platform.DefaultColorID()
	if c, ok := user.PlatformColors[contest.Platform]; ok && c != "" {
		colorID = c
	}

	timeZone := user.TimeZone
	if timeZone == "" {
		timeZone = "UTC"
	}

	return Event{
		Summary:         fmt.Sprintf("%s: %s", contest.Platform, contest.Name),
		Description:     fmt.Sprintf("Coding contest on %s\n\nContest URL: %s\n\nGood luck! 🚀", contest.Platform, contest.URL),
		Start:           contest.StartTime,
		End:             contest.EndTime,
		TimeZone:        timeZone,
		ReminderMinutes: user.ReminderPreference.Minutes(),
		ColorID:         colorID,
		SourceTitle:     string(contest.Platform),
		SourceURL:       contest.URL,
		ContestKey:      contest.ID,
	}
}
