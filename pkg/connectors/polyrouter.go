package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/store"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

// Router platforms.
const (
	PlatformPolymarket = "polymarket"
	PlatformKalshi     = "kalshi"
)

// rpmGate serializes requests so the router's requests-per-minute quota is
// never exceeded, whichever goroutine fires them.
type rpmGate struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time

	now   func() time.Time
	sleep func(d time.Duration)
}

func newRPMGate(reqPerMinute int) *rpmGate {
	if reqPerMinute <= 0 {
		reqPerMinute = 60
	}
	return &rpmGate{
		minInterval: time.Minute / time.Duration(reqPerMinute),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

func (g *rpmGate) wait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if !g.last.IsZero() {
		if d := g.minInterval - now.Sub(g.last); d > 0 {
			g.sleep(d)
			now = now.Add(d)
		}
	}
	g.last = now
}

// Polyrouter talks to the unified market-data router, which lists both
// venues' markets under its own market ids and serves batched orderbooks.
type Polyrouter struct {
	baseURL   string
	pageLimit int
	batchSize int
	retry     *retrier
	gate      *rpmGate

	mu       sync.Mutex
	routerID map[string]string // native venue market id -> router id
	venueOf  map[string]canonical.Venue
	cached   map[string][]canonical.VenueMarket
	cachedAt map[string]time.Time
}

// NewPolyrouter returns a router connector. The API key is required by the
// hosted service.
func NewPolyrouter(baseURL, apiKey string, timeout time.Duration, pageLimit, batchSize, reqPerMinute int) *Polyrouter {
	if batchSize <= 0 {
		batchSize = 10
	}
	headers := map[string]string{}
	if apiKey != "" {
		headers["X-API-Key"] = apiKey
	}
	client := &http.Client{Timeout: timeout}
	return &Polyrouter{
		baseURL:   strings.TrimRight(baseURL, "/"),
		pageLimit: pageLimit,
		batchSize: batchSize,
		retry:     newRetrier("polyrouter", httpFetch(client, headers), 600*time.Millisecond),
		gate:      newRPMGate(reqPerMinute),
		routerID:  map[string]string{},
		venueOf:   map[string]canonical.Venue{},
		cached:    map[string][]canonical.VenueMarket{},
		cachedAt:  map[string]time.Time{},
	}
}

// DiscoverMarkets lists one platform's winner markets through the router,
// with the shared 30-second cache and stale fallback. It also refreshes the
// native-to-router id map used by FetchOrderbooks.
func (p *Polyrouter) DiscoverMarkets(ctx context.Context, platform string, force bool) []canonical.VenueMarket {
	p.mu.Lock()
	if !force && time.Since(p.cachedAt[platform]) < discoveryCacheTTL && p.cached[platform] != nil {
		out := p.cached[platform]
		p.mu.Unlock()
		return out
	}
	p.mu.Unlock()

	bags := p.fetchMarkets(ctx, platform)

	p.mu.Lock()
	defer p.mu.Unlock()
	if bags == nil {
		return p.cached[platform]
	}
	markets := p.normalize(platform, bags)
	p.cached[platform] = markets
	p.cachedAt[platform] = time.Now()
	return markets
}

func (p *Polyrouter) fetchMarkets(ctx context.Context, platform string) []map[string]any {
	var (
		out     []map[string]any
		cursor  string
		seen    = map[string]bool{}
		fetched bool
	)
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("platform", platform)
		q.Set("limit", fmt.Sprintf("%d", p.pageLimit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		p.gate.wait()
		body := p.retry.getJSON(ctx, p.baseURL+"/markets?"+q.Encode())
		if body == nil {
			break
		}
		var resp struct {
			Markets []map[string]any `json:"markets"`
			Cursor  string           `json:"next_cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			telemetry.L().Warn("polyrouter: bad markets payload", "platform", platform, "err", err)
			break
		}
		fetched = true
		out = append(out, resp.Markets...)

		cursor = resp.Cursor
		if cursor == "" || seen[cursor] {
			break
		}
		seen[cursor] = true
	}
	if !fetched {
		return nil
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out
}

// normalize is called with p.mu held so the id maps stay consistent with
// the cache.
func (p *Polyrouter) normalize(platform string, bags []map[string]any) []canonical.VenueMarket {
	venue := canonical.VenuePoly
	if platform == PlatformKalshi {
		venue = canonical.VenueKalshi
	}

	var out []canonical.VenueMarket
	for _, bag := range bags {
		nativeID := firstString(bag, "native_id", "condition_id", "conditionId", "ticker", "market_id")
		if nativeID == "" {
			continue
		}
		title := firstString(bag, "title", "question")
		outcomes := parseOutcomes(firstValue(bag, "outcomes"))
		if len(outcomes) == 0 {
			outcomes = []string{"Yes", "No"}
		}
		if !isWinnerQuestion(title, outcomes) {
			continue
		}

		m := canonical.BuildMarket(canonical.MarketInput{
			Venue:           venue,
			ID:              nativeID,
			Title:           title,
			Outcomes:        outcomes,
			Start:           firstValue(bag, "start_time", "game_start_time", "close_time"),
			SportHint:       firstString(bag, "sport"),
			CompetitionHint: firstString(bag, "competition", "league"),
			Category:        firstString(bag, "category", "series", "slug"),
			Raw:             bag,
		})
		if drawDetected(outcomes, title, firstString(bag, "subtitle")) {
			applyDrawRewrite(&m)
		} else {
			m.MarketType = canonical.WinnerBinary
		}
		if !inScope(m) {
			continue
		}

		if rid := firstString(bag, "id", "router_id"); rid != "" {
			p.routerID[nativeID] = rid
			p.venueOf[nativeID] = venue
		}
		out = append(out, m)
	}
	return out
}

// FetchOrderbooks fetches tops for the given native market ids, batching
// router ids batchSize at a time. Ids the router has never listed are
// skipped.
func (p *Polyrouter) FetchOrderbooks(ctx context.Context, nativeIDs []string) []store.OrderBookTop {
	p.mu.Lock()
	var (
		routerIDs []string
		nativeBy  = map[string]string{} // router id -> native id
		venueBy   = map[string]canonical.Venue{}
	)
	for _, id := range nativeIDs {
		rid, ok := p.routerID[id]
		if !ok {
			continue
		}
		routerIDs = append(routerIDs, rid)
		nativeBy[rid] = id
		venueBy[rid] = p.venueOf[id]
	}
	p.mu.Unlock()

	var out []store.OrderBookTop
	for start := 0; start < len(routerIDs); start += p.batchSize {
		end := start + p.batchSize
		if end > len(routerIDs) {
			end = len(routerIDs)
		}
		out = append(out, p.fetchBatch(ctx, routerIDs[start:end], nativeBy, venueBy)...)
	}
	return out
}

func (p *Polyrouter) fetchBatch(ctx context.Context, routerIDs []string, nativeBy map[string]string, venueBy map[string]canonical.Venue) []store.OrderBookTop {
	q := url.Values{}
	q.Set("ids", strings.Join(routerIDs, ","))
	p.gate.wait()
	body := p.retry.getJSON(ctx, p.baseURL+"/orderbooks?"+q.Encode())
	if body == nil {
		return nil
	}
	var resp struct {
		Orderbooks []map[string]any `json:"orderbooks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		telemetry.L().Warn("polyrouter: bad orderbooks payload", "err", err)
		return nil
	}

	var out []store.OrderBookTop
	for _, bag := range resp.Orderbooks {
		rid := firstString(bag, "id", "market_id", "router_id")
		native, ok := nativeBy[rid]
		if !ok {
			continue
		}
		if top, ok := topFromBag(venueBy[rid], native, bag); ok {
			out = append(out, top)
		}
		if noTop, ok := noTopFromBag(venueBy[rid], native, bag); ok {
			out = append(out, noTop)
		}
	}
	return out
}
