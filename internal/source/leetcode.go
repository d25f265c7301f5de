package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	leetcodeContestsQuery = `{"query":"{ upcomingContests { title titleSlug startTime duration } }"}`

	// Upcoming contest entries carry no end time on some paths; weekly
	// and biweekly rounds run 90 minutes.
	defaultLeetCodeDuration = 90 * time.Minute
)

// ClistCredentials authenticates the clist.by fallback feed. Empty
// credentials disable the fallback.
type ClistCredentials struct {
	Username string
	APIKey   string
}

type LeetCodeSource struct {
	log      zerolog.Logger
	client   *httpClient
	baseURL  string
	clistURL string
	clist    ClistCredentials
}

func NewLeetCodeSource(log logger.Logger, opts Options, clist ClistCredentials) *LeetCodeSource {
	return &LeetCodeSource{
		log:      log.With().Str("source", "leetcode").Logger(),
		client:   newHTTPClient(opts),
		baseURL:  "https://leetcode.com",
		clistURL: "https://clist.by",
		clist:    clist,
	}
}

func (s *LeetCodeSource) Name() string {
	return string(domain.PlatformLeetCode)
}

// Fetch queries the GraphQL endpoint first and falls back to clist.by
// when it fails. Either branch returns normalized records; the caller
// never sees which one served.
func (s *LeetCodeSource) Fetch(ctx context.Context) ([]domain.Contest, error) {
	contests, err := s.fetchGraphQL(ctx)
	if err == nil {
		return contests, nil
	}

	s.log.Warn().Err(err).Msg("GraphQL fetch failed, trying clist.by fallback")

	contests, fallbackErr := s.fetchClist(ctx)
	if fallbackErr != nil {
		s.log.Error().Err(fallbackErr).Msg("Fallback fetch failed")
		return nil, errors.Wrap(err, "failed to fetch leetcode contests from all sources")
	}
	return contests, nil
}

type leetcodeGraphQLResponse struct {
	Data struct {
		UpcomingContests []struct {
			Title     string `json:"title"`
			TitleSlug string `json:"titleSlug"`
			StartTime int64  `json:"startTime"`
			Duration  int64  `json:"duration"`
		} `json:"upcomingContests"`
	} `json:"data"`
}

func (s *LeetCodeSource) fetchGraphQL(ctx context.Context) ([]domain.Contest, error) {
	resp, err := s.client.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, s.baseURL+"/graphql", bytes.NewReader([]byte(leetcodeContestsQuery)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query leetcode graphql")
	}
	defer resp.Body.Close()

	var payload leetcodeGraphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode leetcode graphql response")
	}

	contests := make([]domain.Contest, 0, len(payload.Data.UpcomingContests))
	for _, c := range payload.Data.UpcomingContests {
		if c.TitleSlug == "" || c.StartTime <= 0 {
			continue
		}

		start := time.Unix(c.StartTime, 0).UTC()
		duration := time.Duration(c.Duration) * time.Second
		if duration <= 0 {
			duration = defaultLeetCodeDuration
		}

		contests = append(contests, domain.Contest{
			ID:        domain.ContestID(domain.PlatformLeetCode, c.TitleSlug),
			Platform:  domain.PlatformLeetCode,
			Name:      c.Title,
			StartTime: start,
			EndTime:   start.Add(duration),
			URL:       "https://leetcode.com/contest/" + c.TitleSlug,
		})
	}

	s.log.Debug().Int("count", len(contests)).Msg("Fetched upcoming leetcode contests")
	return contests, nil
}

type clistResponse struct {
	Objects []struct {
		ID    int64  `json:"id"`
		Event string `json:"event"`
		Start string `json:"start"`
		End   string `json:"end"`
		Href  string `json:"href"`
	} `json:"objects"`
}

func (s *LeetCodeSource) fetchClist(ctx context.Context) ([]domain.Contest, error) {
	if s.clist.Username == "" || s.clist.APIKey == "" {
		return nil, errors.New("clist credentials not configured")
	}

	resp, err := s.client.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, s.clistURL+"/api/v2/contest/?resource=leetcode.com&upcoming=true&order_by=start", nil)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(s.clist.Username, s.clist.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query clist.by")
	}
	defer resp.Body.Close()

	var payload clistResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode clist.by response")
	}

	contests := make([]domain.Contest, 0, len(payload.Objects))
	for _, o := range payload.Objects {
		start, err := parseClistTime(o.Start)
		if err != nil {
			s.log.Warn().Err(err).Str("event", o.Event).Msg("Skipping contest with unparseable start time")
			continue
		}
		end, err := parseClistTime(o.End)
		if err != nil {
			end = start.Add(defaultLeetCodeDuration)
		}

		url := o.Href
		if url == "" {
			url = "https://leetcode.com/contest/"
		}

		contests = append(contests, domain.Contest{
			ID:        domain.ContestID(domain.PlatformLeetCode, strconv.FormatInt(o.ID, 10)),
			Platform:  domain.PlatformLeetCode,
			Name:      o.Event,
			StartTime: start,
			EndTime:   end,
			URL:       url,
		})
	}

	s.log.Debug().Int("count", len(contests)).Msg("Fetched upcoming leetcode contests via fallback")
	return contests, nil
}

// parseClistTime accepts the zone-less UTC timestamps clist.by emits,
// plus RFC 3339 for safety.
func parseClistTime(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to parse timestamp %q", value)
	}
	return t.UTC(), nil
}
