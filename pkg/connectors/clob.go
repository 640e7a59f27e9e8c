package connectors

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/store"
)

// clobPollCap bounds how many bound markets one refresh cycle polls.
const clobPollCap = 100

// CLOB polls Polymarket top-of-book over the public book endpoint.
type CLOB struct {
	baseURL string
	retry   *retrier
	limiter *rate.Limiter
}

// NewCLOB returns a read-only book poller.
func NewCLOB(baseURL string, timeout time.Duration) *CLOB {
	client := &http.Client{Timeout: timeout}
	return &CLOB{
		baseURL: strings.TrimRight(baseURL, "/"),
		retry:   newRetrier("clob", httpFetch(client, nil), 700*time.Millisecond),
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
}

// FetchTops polls the book for each market id, capped at clobPollCap per
// call, and returns whatever tops were retrievable.
func (c *CLOB) FetchTops(ctx context.Context, marketIDs []string) []store.OrderBookTop {
	if len(marketIDs) > clobPollCap {
		marketIDs = marketIDs[:clobPollCap]
	}
	var out []store.OrderBookTop
	for _, id := range marketIDs {
		if err := c.limiter.Wait(ctx); err != nil {
			break
		}
		top, ok := c.fetchTop(ctx, id)
		if ok {
			out = append(out, top)
		}
	}
	return out
}

func (c *CLOB) fetchTop(ctx context.Context, marketID string) (store.OrderBookTop, bool) {
	q := url.Values{}
	q.Set("token_id", marketID)
	body := c.retry.getJSON(ctx, c.baseURL+"/book?"+q.Encode())
	if body == nil {
		return store.OrderBookTop{}, false
	}
	var bag map[string]any
	if err := json.Unmarshal(body, &bag); err != nil {
		return store.OrderBookTop{}, false
	}
	return topFromBag(canonical.VenuePoly, marketID, bag)
}
