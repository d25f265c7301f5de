package source

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
)

// CodeChef publishes contest times as zone-less IST strings.
const codechefTimeLayout = "2006-01-02 15:04:05"

type CodeChefSource struct {
	log     zerolog.Logger
	client  *httpClient
	baseURL string
	ist     *time.Location
}

func NewCodeChefSource(log logger.Logger, opts Options) *CodeChefSource {
	ist, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// The IANA name is valid; a failure here means a broken tzdata
		// install. Fall back to the fixed IST offset.
		ist = time.FixedZone("IST", 5*3600+1800)
	}

	return &CodeChefSource{
		log:     log.With().Str("source", "codechef").Logger(),
		client:  newHTTPClient(opts),
		baseURL: "https://www.codechef.com",
		ist:     ist,
	}
}

func (s *CodeChefSource) Name() string {
	return string(domain.PlatformCodeChef)
}

type codechefListResponse struct {
	FutureContests []struct {
		ContestCode      string `json:"contest_code"`
		ContestName      string `json:"contest_name"`
		ContestStartDate string `json:"contest_start_date"`
		ContestEndDate   string `json:"contest_end_date"`
		StartDateISO     string `json:"contest_start_date_iso"`
		EndDateISO       string `json:"contest_end_date_iso"`
	} `json:"future_contests"`
}

func (s *CodeChefSource) Fetch(ctx context.Context) ([]domain.Contest, error) {
	resp, err := s.client.do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, s.baseURL+"/api/list/contests/all", nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch codechef contest list")
	}
	defer resp.Body.Close()

	var payload codechefListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode codechef response")
	}

	contests := make([]domain.Contest, 0, len(payload.FutureContests))
	for _, c := range payload.FutureContests {
		if c.ContestCode == "" {
			continue
		}

		start, err := s.parseTime(c.StartDateISO, c.ContestStartDate)
		if err != nil {
			s.log.Warn().Err(err).Str("contest", c.ContestCode).Msg("Skipping contest with unparseable start time")
			continue
		}
		end, err := s.parseTime(c.EndDateISO, c.ContestEndDate)
		if err != nil {
			s.log.Warn().Err(err).Str("contest", c.ContestCode).Msg("Skipping contest with unparseable end time")
			continue
		}

		contests = append(contests, domain.Contest{
			ID:        domain.ContestID(domain.PlatformCodeChef, c.ContestCode),
			Platform:  domain.PlatformCodeChef,
			Name:      c.ContestName,
			StartTime: start,
			EndTime:   end,
			URL:       "https://www.codechef.com/" + c.ContestCode,
		})
	}

	s.log.Debug().Int("count", len(contests)).Msg("Fetched upcoming codechef contests")
	return contests, nil
}

// parseTime prefers the ISO field, which carries an explicit offset,
// and interprets the legacy zone-less field as IST before converting
// to UTC.
func (s *CodeChefSource) parseTime(iso string, legacy string) (time.Time, error) {
	if iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return t.UTC(), nil
		}
	}

	t, err := time.ParseInLocation(codechefTimeLayout, legacy, s.ist)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to parse timestamp %q", legacy)
	}
	return t.UTC(), nil
}
