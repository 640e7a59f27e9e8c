package connectors

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

const (
	discoveryCacheTTL = 30 * time.Second
	maxPages          = 20
)

// Game event slugs look like "nba-bos-nyk-2026-03-01".
var gameSlugRe = regexp.MustCompile(`^(nba|epl|ucl|uel|lal)-[a-z0-9-]+-\d{4}-\d{2}-\d{2}$`)

var slugSport = map[string]struct {
	sport canonical.Sport
	comp  canonical.Competition
}{
	"nba": {canonical.SportNBA, canonical.CompNBA},
	"epl": {canonical.SportSoccer, canonical.CompEPL},
	"ucl": {canonical.SportSoccer, canonical.CompUCL},
	"uel": {canonical.SportSoccer, canonical.CompUEL},
	"lal": {canonical.SportSoccer, canonical.CompLaLiga},
}

// Gamma lists Polymarket sports events from the Gamma API.
type Gamma struct {
	baseURL string
	limit   int
	retry   *retrier
	limiter *rate.Limiter

	mu       sync.Mutex
	cached   []canonical.VenueMarket
	cachedAt time.Time
}

// NewGamma returns a connector for the Gamma events API.
func NewGamma(baseURL string, timeout time.Duration, limit int) *Gamma {
	client := &http.Client{Timeout: timeout}
	return &Gamma{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		retry:   newRetrier("gamma", httpFetch(client, nil), 700*time.Millisecond),
		limiter: rate.NewLimiter(rate.Limit(8), 4),
	}
}

// DiscoverMarkets returns normalized winner markets, serving a 30-second
// in-memory cache unless force is set. A failed refresh falls back to the
// stale cache.
func (g *Gamma) DiscoverMarkets(ctx context.Context, force bool) []canonical.VenueMarket {
	g.mu.Lock()
	if !force && time.Since(g.cachedAt) < discoveryCacheTTL && g.cached != nil {
		out := g.cached
		g.mu.Unlock()
		return out
	}
	g.mu.Unlock()

	markets := g.fetchAll(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if markets == nil {
		return g.cached
	}
	g.cached = markets
	g.cachedAt = time.Now()
	return markets
}

func (g *Gamma) fetchAll(ctx context.Context) []canonical.VenueMarket {
	var (
		out    []canonical.VenueMarket
		seenID = map[string]bool{}
		got    bool
	)
	for page := 0; page < maxPages; page++ {
		if err := g.limiter.Wait(ctx); err != nil {
			break
		}
		url := fmt.Sprintf("%s/events?closed=false&limit=%d&offset=%d",
			g.baseURL, g.limit, g.limit*page)
		body := g.retry.getJSON(ctx, url)
		if body == nil {
			break
		}
		var events []map[string]any
		if err := json.Unmarshal(body, &events); err != nil {
			telemetry.L().Warn("gamma: bad events payload", "err", err)
			break
		}
		got = true
		for _, ev := range events {
			for _, m := range g.eventMarkets(ev) {
				if !seenID[m.VenueMarketID] {
					seenID[m.VenueMarketID] = true
					out = append(out, m)
				}
			}
		}
		if len(events) < g.limit {
			break
		}
	}
	if !got {
		return nil
	}
	if out == nil {
		out = []canonical.VenueMarket{}
	}
	return out
}

// eventMarkets normalizes one Gamma event into zero or more VenueMarkets.
// All markets of one event share the event title and the event-level draw
// classification: a draw/tie sibling makes every market three-way, and
// everything else is forced to the binary winner schema.
func (g *Gamma) eventMarkets(ev map[string]any) []canonical.VenueMarket {
	slug := strings.ToLower(firstString(ev, "slug"))
	if strings.Contains(slug, "more-markets") {
		return nil
	}
	match := gameSlugRe.FindStringSubmatch(slug)
	if match == nil {
		return nil
	}
	title := strings.TrimSpace(firstString(ev, "title"))
	if title == "" {
		return nil
	}
	hint := slugSport[match[1]]

	rawMarkets, _ := ev["markets"].([]any)
	hasDraw := eventHasDraw(rawMarkets)

	var out []canonical.VenueMarket
	for _, rm := range rawMarkets {
		bag, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		if closed, _ := bag["closed"].(bool); closed {
			continue
		}
		question := firstString(bag, "question", "title")
		outcomes := parseOutcomes(bag["outcomes"])
		if len(outcomes) == 0 {
			outcomes = []string{"Yes", "No"}
		}
		if !isWinnerQuestion(question, outcomes) {
			continue
		}
		id := firstString(bag, "conditionId", "condition_id", "id")
		if id == "" {
			continue
		}

		m := canonical.BuildMarket(canonical.MarketInput{
			Venue:           canonical.VenuePoly,
			ID:              id,
			Title:           title,
			Outcomes:        outcomes,
			Start:           g.startTime(bag, ev),
			SportHint:       string(hint.sport),
			CompetitionHint: string(hint.comp),
			Category:        slug,
			Raw:             bag,
		})
		if hasDraw {
			applyDrawRewrite(&m)
		} else {
			m.MarketType = canonical.WinnerBinary
		}
		if !inScope(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// eventHasDraw reports whether any sibling market of the event is a
// draw/tie market.
func eventHasDraw(rawMarkets []any) bool {
	for _, rm := range rawMarkets {
		bag, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		if drawDetected(nil, firstString(bag, "question", "title")) {
			return true
		}
	}
	return false
}

// startTime picks the best available game time: market endDate, then
// gameStartTime, then the event's endDate/startDate fallbacks.
func (g *Gamma) startTime(market, event map[string]any) any {
	for _, v := range []any{
		firstValue(market, "endDate", "end_date"),
		firstValue(market, "gameStartTime", "game_start_time"),
		firstValue(event, "endDate", "end_date"),
		firstValue(market, "startDate", "start_date"),
		firstValue(event, "startDate", "start_date"),
	} {
		if v != nil {
			return v
		}
	}
	return nil
}

// parseOutcomes accepts a JSON-encoded string list or a native list of
// strings/objects.
func parseOutcomes(v any) []string {
	switch o := v.(type) {
	case string:
		var parsed []string
		if err := json.Unmarshal([]byte(o), &parsed); err == nil {
			return parsed
		}
		return nil
	case []any:
		var out []string
		for _, item := range o {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				if name := firstString(it, "name", "title", "outcome"); name != "" {
					out = append(out, name)
				}
			}
		}
		return out
	default:
		return nil
	}
}
