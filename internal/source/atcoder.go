package source

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
)

// AtCoder publishes no machine-readable schedule, so the contests page
// is scraped. Times on the page are JST with an explicit offset.
const atcoderTimeLayout = "2006-01-02 15:04:05-0700"

// The page does not list end times; standard rounds run about 2 hours.
const defaultAtCoderDuration = 2 * time.Hour

type AtCoderSource struct {
	log     zerolog.Logger
	client  *httpClient
	baseURL string
}

func NewAtCoderSource(log logger.Logger, opts Options) *AtCoderSource {
	return &AtCoderSource{
		log:     log.With().Str("source", "atcoder").Logger(),
		client:  newHTTPClient(opts),
		baseURL: "https://atcoder.jp",
	}
}

func (s *AtCoderSource) Name() string {
	return string(domain.PlatformAtCoder)
}

func (s *AtCoderSource) Fetch(ctx context.Context) ([]domain.Contest, error) {
	resp, err := s.client.do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, s.baseURL+"/contests", nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch atcoder contests page")
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse atcoder contests page")
	}

	var contests []domain.Contest
	doc.Find("#contest-table-upcoming tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		anchor := cells.Eq(1).Find("a").First()
		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return
		}
		name := strings.TrimSpace(anchor.Text())

		startText, ok := cells.Eq(0).Find("time").Attr("datetime")
		if !ok {
			s.log.Warn().Str("contest", name).Msg("Skipping row without start time")
			return
		}
		start, err := time.Parse(atcoderTimeLayout, startText)
		if err != nil {
			s.log.Warn().Err(err).Str("contest", name).Msg("Skipping row with unparseable start time")
			return
		}
		start = start.UTC()

		segments := strings.Split(strings.Trim(href, "/"), "/")
		nativeID := segments[len(segments)-1]

		contests = append(contests, domain.Contest{
			ID:        domain.ContestID(domain.PlatformAtCoder, nativeID),
			Platform:  domain.PlatformAtCoder,
			Name:      name,
			StartTime: start,
			EndTime:   start.Add(defaultAtCoderDuration),
			URL:       "https://atcoder.jp" + href,
		})
	})

	s.log.Debug().Int("count", len(contests)).Msg("Fetched upcoming atcoder contests")
	return contests, nil
}
