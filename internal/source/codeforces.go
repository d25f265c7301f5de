package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
)

type CodeforcesSource struct {
	log     zerolog.Logger
	client  *httpClient
	baseURL string
}

func NewCodeforcesSource(log logger.Logger, opts Options) *CodeforcesSource {
	return &CodeforcesSource{
		log:     log.With().Str("source", "codeforces").Logger(),
		client:  newHTTPClient(opts),
		baseURL: "https://codeforces.com",
	}
}

func (s *CodeforcesSource) Name() string {
	return string(domain.PlatformCodeforces)
}

type codeforcesListResponse struct {
	Status string `json:"status"`
	Result []struct {
		ID               int    `json:"id"`
		Name             string `json:"name"`
		Phase            string `json:"phase"`
		StartTimeSeconds int64  `json:"startTimeSeconds"`
		DurationSeconds  int64  `json:"durationSeconds"`
	} `json:"result"`
}

// Fetch lists contests from the public REST API. Only contests in the
// BEFORE phase with a known start time are kept.
func (s *CodeforcesSource) Fetch(ctx context.Context) ([]domain.Contest, error) {
	resp, err := s.client.do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, s.baseURL+"/api/contest.list", nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch codeforces contest list")
	}
	defer resp.Body.Close()

	var payload codeforcesListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode codeforces response")
	}
	if payload.Status != "OK" {
		return nil, errors.New("codeforces api returned status %q", payload.Status)
	}

	contests := make([]domain.Contest, 0, len(payload.Result))
	for _, c := range payload.Result {
		if c.Phase != "BEFORE" || c.StartTimeSeconds <= 0 {
			continue
		}

		start := time.Unix(c.StartTimeSeconds, 0).UTC()
		contests = append(contests, domain.Contest{
			ID:        domain.ContestID(domain.PlatformCodeforces, strconv.Itoa(c.ID)),
			Platform:  domain.PlatformCodeforces,
			Name:      c.Name,
			StartTime: start,
			EndTime:   start.Add(time.Duration(c.DurationSeconds) * time.Second),
			URL:       fmt.Sprintf("https://codeforces.com/contest/%d", c.ID),
		})
	}

	s.log.Debug().Int("count", len(contests)).Msg("Fetched upcoming codeforces contests")
	return contests, nil
}
