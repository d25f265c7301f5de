package calendar

import (
	"context"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Events created by this system are marked with a private extended
// property so they can be recognized on later runs even when the
// local mapping store has been lost.
const (
	markerAppKey     = "app"
	markerAppValue   = "contestcal"
	markerContestKey = "contest_key"
)

type GoogleProvider struct {
	log        zerolog.Logger
	oauth      *oauth2.Config
	calendarID string
}

func NewGoogleProvider(log logger.Logger, cfg domain.GoogleConfig) *GoogleProvider {
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	return &GoogleProvider{
		log: log.With().Str("module", "calendar").Logger(),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcalendar.CalendarEventsScope},
		},
		calendarID: calendarID,
	}
}

// ClientFor builds a client around the user's stored refresh token.
// The token source refreshes the access token as needed.
func (p *GoogleProvider) ClientFor(ctx context.Context, user domain.User) (Client, error) {
	if !user.HasCalendarCredentials() {
		return nil, errors.New("user %s has no calendar credentials", user.UserID)
	}

	token := &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
	}

	svc, err := gcalendar.NewService(ctx, option.WithTokenSource(p.oauth.TokenSource(ctx, token)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build calendar service for user %s", user.UserID)
	}

	return &googleClient{
		log:        p.log.With().Str("user_id", user.UserID).Logger(),
		svc:        svc,
		calendarID: p.calendarID,
	}, nil
}

type googleClient struct {
	log        zerolog.Logger
	svc        *gcalendar.Service
	calendarID string
}

func (c *googleClient) InsertEvent(ctx context.Context, event Event) (string, error) {
	overrides := make([]*gcalendar.EventReminder, 0, len(event.ReminderMinutes))
	for _, m := range event.ReminderMinutes {
		overrides = append(overrides, &gcalendar.EventReminder{
			Method:  "popup",
			Minutes: int64(m),
		})
	}

	ev := &gcalendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start: &gcalendar.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: event.TimeZone,
		},
		End: &gcalendar.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: event.TimeZone,
		},
		Source: &gcalendar.EventSource{
			Title: event.SourceTitle,
			Url:   event.SourceURL,
		},
		Reminders: &gcalendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		},
		ColorId: event.ColorID,
		ExtendedProperties: &gcalendar.EventExtendedProperties{
			Private: map[string]string{
				markerAppKey:     markerAppValue,
				markerContestKey: event.ContestKey,
			},
		},
	}

	created, err := c.svc.Events.Insert(c.calendarID, ev).Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "failed to insert calendar event")
	}

	c.log.Debug().Str("event_id", created.Id).Str("contest_key", event.ContestKey).Msg("Inserted calendar event")
	return created.Id, nil
}

func (c *googleClient) ListMarkedEvents(ctx context.Context, from time.Time, to time.Time) (map[string]string, error) {
	events := make(map[string]string)

	call := c.svc.Events.List(c.calendarID).
		PrivateExtendedProperty(markerAppKey + "=" + markerAppValue).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		MaxResults(250)

	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Context(ctx).Do()
		if err != nil {
			return nil, errors.Wrap(err, "failed to list calendar events")
		}

		for _, item := range page.Items {
			if item.ExtendedProperties == nil {
				continue
			}
			key := item.ExtendedProperties.Private[markerContestKey]
			if key != "" {
				events[key] = item.Id
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return events, nil
}

func (c *googleClient) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.svc.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == 404 || apiErr.Code == 410) {
			return ErrEventNotFound
		}
		return errors.Wrap(err, "failed to delete calendar event %s", eventID)
	}

	c.log.Debug().Str("event_id", eventID).Msg("Deleted calendar event")
	return nil
}
