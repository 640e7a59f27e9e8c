package connectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

const (
	maxAttempts      = 4
	defaultBaseRetry = 400 * time.Millisecond
)

// fetchFunc performs one HTTP GET and returns status and body. Connectors
// inject fakes here in tests.
type fetchFunc func(ctx context.Context, url string) (status int, body []byte, err error)

// retrier wraps a fetchFunc with the shared backoff policy: up to four
// attempts, longer sleeps on 429, shorter on other failures. A final
// failure is logged and surfaces as nil.
type retrier struct {
	name      string
	fetch     fetchFunc
	sleep     func(d time.Duration)
	base429   time.Duration
	baseRetry time.Duration
}

func newRetrier(name string, fetch fetchFunc, base429 time.Duration) *retrier {
	return &retrier{
		name:      name,
		fetch:     fetch,
		sleep:     time.Sleep,
		base429:   base429,
		baseRetry: defaultBaseRetry,
	}
}

// getJSON fetches url, retrying with backoff. Returns nil after the final
// failed attempt.
func (r *retrier) getJSON(ctx context.Context, url string) []byte {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil
		}
		status, body, err := r.fetch(ctx, url)
		last := attempt == maxAttempts-1
		switch {
		case err == nil && status == http.StatusOK:
			return body
		case err == nil && status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("http 429")
			if !last {
				r.sleep(r.base429 * time.Duration(attempt+1))
			}
		default:
			if err != nil {
				lastErr = err
			} else {
				lastErr = fmt.Errorf("http %d", status)
			}
			if !last {
				r.sleep(r.baseRetry * time.Duration(attempt+1))
			}
		}
	}
	telemetry.L().Warn("request failed after retries",
		"connector", r.name, "url", url, "attempts", maxAttempts, "err", lastErr)
	return nil
}

// httpFetch builds the default fetchFunc over an http.Client with static
// headers.
func httpFetch(client *http.Client, headers map[string]string) fetchFunc {
	return func(ctx context.Context, url string) (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, nil, err
		}
		return resp.StatusCode, body, nil
	}
}
