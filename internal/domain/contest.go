package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Platform identifies a competitive programming site contests are
// fetched from.
type Platform string

const (
	PlatformCodeforces Platform = "Codeforces"
	PlatformLeetCode   Platform = "LeetCode"
	PlatformAtCoder    Platform = "AtCoder"
	PlatformCodeChef   Platform = "CodeChef"
)

// Platforms lists every supported platform in fetch order.
var Platforms = []Platform{
	PlatformCodeforces,
	PlatformLeetCode,
	PlatformAtCoder,
	PlatformCodeChef,
}

// DefaultColorID is the calendar color used when the user has no
// override for the platform.
func (p Platform) DefaultColorID() string {
	switch p {
	case PlatformCodeforces:
		return "1"
	case PlatformLeetCode:
		return "2"
	case PlatformAtCoder:
		return "3"
	case PlatformCodeChef:
		return "4"
	}
	return "1"
}

func (p Platform) IsValid() bool {
	switch p {
	case PlatformCodeforces, PlatformLeetCode, PlatformAtCoder, PlatformCodeChef:
		return true
	}
	return false
}

type ContestRepo interface {
	// Upsert inserts the contest or replaces every field of an
	// existing record with the same ID.
	Upsert(ctx context.Context, contest Contest) error
	// FindUpcoming returns contests starting at or after the given
	// instant, ordered by start time ascending. An empty platform
	// list means no platform filter; limit <= 0 means no limit.
	FindUpcoming(ctx context.Context, after time.Time, platforms []Platform, limit int) ([]Contest, error)
}

// Contest is the canonical record for a single contest occurrence.
// All times are stored in UTC.
type Contest struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Platform  Platform  `json:"platform" gorm:"column:platform;index"`
	Name      string    `json:"name" gorm:"column:name"`
	StartTime time.Time `json:"start_time" gorm:"column:start_time;index"`
	EndTime   time.Time `json:"end_time" gorm:"column:end_time"`
	URL       string    `json:"url" gorm:"column:url"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Contest) TableName() string {
	return "contests"
}

// Duration returns the scheduled length of the contest.
func (c Contest) Duration() time.Duration {
	return c.EndTime.Sub(c.StartTime)
}

// ContestID builds the stable identifier for a contest from its
// platform and the platform's native identifier, e.g. "codeforces_1234".
// The same contest must always map to the same ID so repeated fetch
// cycles update rather than duplicate.
func ContestID(platform Platform, nativeID string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(string(platform)), nativeID)
}
