package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_RetriesFailedAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	client := newHTTPClient(Options{Attempts: 2})
	resp, err := client.do(context.Background(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, server.URL, nil)
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPClient_GivesUpAfterAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newHTTPClient(Options{Attempts: 2})
	resp, err := client.do(context.Background(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, server.URL, nil)
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Contains(t, err.Error(), "all 2 attempts failed")
}

func TestCodeforcesSource_Fetch(t *testing.T) {
	log := logger.Mock()

	t.Run("Filters non-upcoming contests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/contest.list", r.URL.Path)
			w.Write([]byte(`{
				"status": "OK",
				"result": [
					{"id": 2000, "name": "Codeforces Round 2000", "phase": "BEFORE", "startTimeSeconds": 1780000000, "durationSeconds": 7200},
					{"id": 1999, "name": "Finished Round", "phase": "FINISHED", "startTimeSeconds": 1700000000, "durationSeconds": 7200},
					{"id": 2001, "name": "Unscheduled Round", "phase": "BEFORE", "startTimeSeconds": 0, "durationSeconds": 7200}
				]
			}`))
		}))
		defer server.Close()

		src := NewCodeforcesSource(log, Options{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, contests, 1)

		c := contests[0]
		assert.Equal(t, "codeforces_2000", c.ID)
		assert.Equal(t, domain.PlatformCodeforces, c.Platform)
		assert.Equal(t, "Codeforces Round 2000", c.Name)
		assert.Equal(t, time.Unix(1780000000, 0).UTC(), c.StartTime)
		assert.Equal(t, 2*time.Hour, c.Duration())
		assert.Equal(t, "https://codeforces.com/contest/2000", c.URL)
	})

	t.Run("Non-OK status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": "FAILED", "result": []}`))
		}))
		defer server.Close()

		src := NewCodeforcesSource(log, Options{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.Error(t, err)
		assert.Nil(t, contests)
	})

	t.Run("Unreachable endpoint is an error", func(t *testing.T) {
		src := NewCodeforcesSource(log, Options{Timeout: 500 * time.Millisecond})
		src.baseURL = "http://127.0.0.1:1"

		contests, err := src.Fetch(context.Background())
		require.Error(t, err)
		assert.Nil(t, contests)
	})
}

func TestLeetCodeSource_Fetch(t *testing.T) {
	log := logger.Mock()

	t.Run("GraphQL primary", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/graphql", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			w.Write([]byte(`{
				"data": {
					"upcomingContests": [
						{"title": "Weekly Contest 460", "titleSlug": "weekly-contest-460", "startTime": 1780000000, "duration": 5400},
						{"title": "Biweekly Contest 160", "titleSlug": "biweekly-contest-160", "startTime": 1780100000, "duration": 0}
					]
				}
			}`))
		}))
		defer server.Close()

		src := NewLeetCodeSource(log, Options{}, ClistCredentials{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, contests, 2)

		assert.Equal(t, "leetcode_weekly-contest-460", contests[0].ID)
		assert.Equal(t, "https://leetcode.com/contest/weekly-contest-460", contests[0].URL)
		assert.Equal(t, 90*time.Minute, contests[0].Duration())

		// Missing duration falls back to the default round length.
		assert.Equal(t, 90*time.Minute, contests[1].Duration())
	})

	t.Run("Fallback to clist.by when GraphQL fails", func(t *testing.T) {
		primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer primary.Close()

		fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "tester", user)
			assert.Equal(t, "secret", pass)
			w.Write([]byte(`{
				"objects": [
					{"id": 9001, "event": "Weekly Contest 460", "start": "2026-06-07T02:30:00", "end": "2026-06-07T04:00:00", "href": "https://leetcode.com/contest/weekly-contest-460"}
				]
			}`))
		}))
		defer fallback.Close()

		src := NewLeetCodeSource(log, Options{}, ClistCredentials{Username: "tester", APIKey: "secret"})
		src.baseURL = primary.URL
		src.clistURL = fallback.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, contests, 1)

		c := contests[0]
		assert.Equal(t, "leetcode_9001", c.ID)
		assert.Equal(t, domain.PlatformLeetCode, c.Platform)
		assert.Equal(t, time.Date(2026, 6, 7, 2, 30, 0, 0, time.UTC), c.StartTime)
		assert.Equal(t, 90*time.Minute, c.Duration())
	})

	t.Run("No fallback credentials surfaces primary error", func(t *testing.T) {
		primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer primary.Close()

		src := NewLeetCodeSource(log, Options{}, ClistCredentials{})
		src.baseURL = primary.URL

		contests, err := src.Fetch(context.Background())
		require.Error(t, err)
		assert.Nil(t, contests)
		assert.Contains(t, err.Error(), "failed to fetch leetcode contests from all sources")
	})
}

func TestAtCoderSource_Fetch(t *testing.T) {
	log := logger.Mock()

	t.Run("Scrapes upcoming table and converts JST to UTC", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/contests", r.URL.Path)
			w.Write([]byte(`<html><body>
				<div id="contest-table-upcoming"><table><tbody>
					<tr>
						<td><time datetime="2026-09-21 21:00:00+0900">2026-09-21 21:00</time></td>
						<td><a href="/contests/abc420">AtCoder Beginner Contest 420</a></td>
					</tr>
					<tr>
						<td>no time element</td>
						<td><a href="/contests/broken">Broken Row</a></td>
					</tr>
				</tbody></table></div>
			</body></html>`))
		}))
		defer server.Close()

		src := NewAtCoderSource(log, Options{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, contests, 1)

		c := contests[0]
		assert.Equal(t, "atcoder_abc420", c.ID)
		assert.Equal(t, domain.PlatformAtCoder, c.Platform)
		assert.Equal(t, "AtCoder Beginner Contest 420", c.Name)
		assert.Equal(t, time.Date(2026, 9, 21, 12, 0, 0, 0, time.UTC), c.StartTime)
		assert.Equal(t, 2*time.Hour, c.Duration())
		assert.Equal(t, "https://atcoder.jp/contests/abc420", c.URL)
	})

	t.Run("Empty page yields no contests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><body></body></html>`))
		}))
		defer server.Close()

		src := NewAtCoderSource(log, Options{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Empty(t, contests)
	})
}

func TestCodeChefSource_Fetch(t *testing.T) {
	log := logger.Mock()

	t.Run("Parses IST legacy timestamps as UTC", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/list/contests/all", r.URL.Path)
			w.Write([]byte(`{
				"future_contests": [
					{
						"contest_code": "START150",
						"contest_name": "Starters 150",
						"contest_start_date": "2026-09-03 20:00:00",
						"contest_end_date": "2026-09-03 22:00:00"
					}
				]
			}`))
		}))
		defer server.Close()

		src := NewCodeChefSource(log, Options{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, contests, 1)

		c := contests[0]
		assert.Equal(t, "codechef_START150", c.ID)
		assert.Equal(t, domain.PlatformCodeChef, c.Platform)
		// 20:00 IST is 14:30 UTC.
		assert.Equal(t, time.Date(2026, 9, 3, 14, 30, 0, 0, time.UTC), c.StartTime)
		assert.Equal(t, time.Date(2026, 9, 3, 16, 30, 0, 0, time.UTC), c.EndTime)
		assert.Equal(t, "https://www.codechef.com/START150", c.URL)
	})

	t.Run("Prefers ISO timestamps when present", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"future_contests": [
					{
						"contest_code": "COOK170",
						"contest_name": "Cook-Off 170",
						"contest_start_date": "2026-09-10 20:00:00",
						"contest_end_date": "2026-09-10 22:30:00",
						"contest_start_date_iso": "2026-09-10T20:00:00+05:30",
						"contest_end_date_iso": "2026-09-10T22:30:00+05:30"
					}
				]
			}`))
		}))
		defer server.Close()

		src := NewCodeChefSource(log, Options{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, contests, 1)
		assert.Equal(t, time.Date(2026, 9, 10, 14, 30, 0, 0, time.UTC), contests[0].StartTime)
	})

	t.Run("Unparseable rows are skipped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{
				"future_contests": [
					{"contest_code": "BAD1", "contest_name": "Bad Dates", "contest_start_date": "soon", "contest_end_date": "later"},
					{"contest_code": "", "contest_name": "No Code"}
				]
			}`))
		}))
		defer server.Close()

		src := NewCodeChefSource(log, Options{})
		src.baseURL = server.URL

		contests, err := src.Fetch(context.Background())
		require.NoError(t, err)
		assert.Empty(t, contests)
	})
}
