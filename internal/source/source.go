package source

import (
	"context"
	"net/http"
	"time"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/pkg/errors"
)

// Source fetches the upcoming contest list from one platform and
// normalizes it into canonical records. Implementations must return
// UTC times and stable IDs so repeated cycles converge.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Contest, error)
}

const (
	defaultTimeout  = 5 * time.Second
	defaultAttempts = 2
)

// Options controls the shared HTTP behavior of every adapter.
type Options struct {
	// Timeout bounds each individual request attempt.
	Timeout time.Duration
	// Attempts is the number of tries per endpoint before giving up.
	Attempts int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = defaultAttempts
	}
	return o
}

// httpClient wraps the standard client with bounded retries. Requests
// are rebuilt per attempt so bodies are safe to resend.
type httpClient struct {
	client   *http.Client
	attempts int
}

func newHTTPClient(opts Options) *httpClient {
	opts = opts.withDefaults()
	return &httpClient{
		client:   &http.Client{Timeout: opts.Timeout},
		attempts: opts.Attempts,
	}
}

// do retries transient failures. A response with a non-2xx status is
// treated as a failed attempt; the last error wins.
func (c *httpClient) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, errors.Wrap(err, "failed to build request")
		}

		resp, err := c.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
		} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			lastErr = errors.New("unexpected status %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, errors.Wrap(lastErr, "all %d attempts failed", c.attempts)
}
