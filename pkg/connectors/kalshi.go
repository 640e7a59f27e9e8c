package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

// kalshiSeries maps the game series tickers to their competitions.
var kalshiSeries = map[string]struct {
	Sport canonical.Sport
	Comp  canonical.Competition
}{
	"KXNBAGAME":    {canonical.SportNBA, canonical.CompNBA},
	"KXEPLGAME":    {canonical.SportSoccer, canonical.CompEPL},
	"KXUCLGAME":    {canonical.SportSoccer, canonical.CompUCL},
	"KXUELGAME":    {canonical.SportSoccer, canonical.CompUEL},
	"KXLALIGAGAME": {canonical.SportSoccer, canonical.CompLaLiga},
}

// Game tickers carry a YYMonDD date token, e.g. KXNBAGAME-26MAR01BOSNYK.
var tickerDateRe = regexp.MustCompile(`-(\d{2}[A-Z]{3}\d{2})`)

// Reference timestamps tried, in order, for the game's time of day.
var kalshiTimeKeys = []string{
	"event_start_time", "close_time", "expiration_time",
	"latest_expiration_time", "open_time",
}

// KalshiREST lists open game markets from the Kalshi trade API.
type KalshiREST struct {
	baseURL string
	limit   int
	retry   *retrier

	mu       sync.Mutex
	cached   []canonical.VenueMarket
	cachedAt time.Time
}

// NewKalshiREST returns a connector for the Kalshi markets API. apiKey may
// be empty for public market data.
func NewKalshiREST(baseURL, apiKey string, timeout time.Duration, limit int) *KalshiREST {
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	client := &http.Client{Timeout: timeout}
	return &KalshiREST{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		retry:   newRetrier("kalshi", httpFetch(client, headers), 600*time.Millisecond),
	}
}

// DiscoverMarkets returns normalized winner markets across all supported
// series, with the shared 30-second cache semantics.
func (k *KalshiREST) DiscoverMarkets(ctx context.Context, force bool) []canonical.VenueMarket {
	k.mu.Lock()
	if !force && time.Since(k.cachedAt) < discoveryCacheTTL && k.cached != nil {
		out := k.cached
		k.mu.Unlock()
		return out
	}
	k.mu.Unlock()

	var (
		all []canonical.VenueMarket
		got bool
	)
	for series := range kalshiSeries {
		bags := k.fetchSeries(ctx, series)
		if bags == nil {
			continue
		}
		got = true
		all = append(all, k.normalizeSeries(series, bags)...)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if !got {
		return k.cached
	}
	k.cached = all
	k.cachedAt = time.Now()
	return all
}

// fetchSeries pages through one series with cursor pagination, breaking on
// repeated cursors.
func (k *KalshiREST) fetchSeries(ctx context.Context, series string) []map[string]any {
	var (
		out     []map[string]any
		cursor  string
		seen    = map[string]bool{}
		fetched bool
	)
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("series_ticker", series)
		q.Set("status", "open")
		q.Set("limit", fmt.Sprintf("%d", k.limit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		body := k.retry.getJSON(ctx, k.baseURL+"/markets?"+q.Encode())
		if body == nil {
			break
		}
		var resp struct {
			Markets []map[string]any `json:"markets"`
			Cursor  string           `json:"cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			telemetry.L().Warn("kalshi: bad markets payload", "series", series, "err", err)
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

func (k *KalshiREST) normalizeSeries(series string, bags []map[string]any) []canonical.VenueMarket {
	info := kalshiSeries[series]

	// Event tickers that carry a TIE sibling are three-way games.
	drawEvents := map[string]bool{}
	for _, bag := range bags {
		ticker := firstString(bag, "ticker")
		if strings.HasSuffix(ticker, "-TIE") {
			drawEvents[firstString(bag, "event_ticker")] = true
		}
	}

	var out []canonical.VenueMarket
	for _, bag := range bags {
		ticker := firstString(bag, "ticker")
		if ticker == "" {
			continue
		}
		title := firstString(bag, "title", "question")
		outcomes := []string{"Yes", "No"}
		if !isWinnerQuestion(title, outcomes) {
			continue
		}

		m := canonical.BuildMarket(canonical.MarketInput{
			Venue:           canonical.VenueKalshi,
			ID:              ticker,
			Title:           title,
			Outcomes:        outcomes,
			Start:           gameTime(ticker, bag),
			SportHint:       string(info.Sport),
			CompetitionHint: string(info.Comp),
			Category:        series,
			Raw:             bag,
		})

		subTitle := firstString(bag, "yes_sub_title", "subtitle")
		if strings.HasSuffix(ticker, "-TIE") ||
			drawEvents[firstString(bag, "event_ticker")] ||
			drawDetected(nil, subTitle) {
			applyDrawRewrite(&m)
		}
		if !inScope(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// gameTime derives the game start from the ticker's date token merged with
// the time of day of the best reference timestamp. NBA tickers landing at
// or before 08:00 UTC are local-evening games, so they roll to the next
// day.
func gameTime(ticker string, bag map[string]any) any {
	var ref *time.Time
	for _, key := range kalshiTimeKeys {
		if parsed := canonical.ParseTime(bag[key]); parsed != nil {
			ref = parsed
			break
		}
	}

	match := tickerDateRe.FindStringSubmatch(ticker)
	if match == nil {
		if ref != nil {
			return *ref
		}
		return nil
	}
	token := match[1]
	date, err := time.Parse("06Jan02", token[:3]+strings.ToLower(token[3:5])+token[5:])
	if err != nil {
		if ref != nil {
			return *ref
		}
		return nil
	}

	// Without a reference timestamp the date stands alone at midnight; the
	// NBA roll only applies when a real time of day is known.
	if ref == nil {
		return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	}
	t := time.Date(date.Year(), date.Month(), date.Day(),
		ref.Hour(), ref.Minute(), ref.Second(), 0, time.UTC)
	if strings.HasPrefix(ticker, "KXNBAGAME") && t.Hour() <= 8 {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
