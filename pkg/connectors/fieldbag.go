// Package connectors fetches and normalizes market listings and top-of-book
// quotes from both venues, directly or through the unified router.
package connectors

import (
	"strconv"
	"strings"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/store"
)

// Vendor payloads spell the same concept many ways; these helpers return
// the first usable value among candidate keys instead of modeling every
// payload shape.

func firstString(bag map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := bag[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

func firstValue(bag map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := bag[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// coercePrice maps a vendor price onto [0, 1]. Integer cents (anything
// above 1) are divided by 100; values still outside [0, 1] are rejected.
func coercePrice(v any) (float64, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	if f > 1.0 {
		f /= 100
	}
	if f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

// coerceSize maps a vendor size onto a non-negative float; null and
// unparseable values become 0.
func coerceSize(v any) float64 {
	f, ok := asFloat(v)
	if !ok || f < 0 {
		return 0
	}
	return f
}

// levelPrice extracts the price from one book level: either a
// {price, size} object or a [price, size] tuple.
func levelPrice(level any) (float64, bool) {
	switch l := level.(type) {
	case map[string]any:
		return coercePrice(firstValue(l, "price", "p"))
	case []any:
		if len(l) > 0 {
			return coercePrice(l[0])
		}
	}
	return 0, false
}

func levelSize(level any) float64 {
	switch l := level.(type) {
	case map[string]any:
		return coerceSize(firstValue(l, "size", "quantity", "s"))
	case []any:
		if len(l) > 1 {
			return coerceSize(l[1])
		}
	}
	return 0
}

func firstLevel(bag map[string]any, keys ...string) any {
	for _, k := range keys {
		if levels, ok := bag[k].([]any); ok && len(levels) > 0 {
			return levels[0]
		}
	}
	return nil
}

var (
	bidKeys     = []string{"yes_bid", "bestBid", "best_bid", "bid"}
	askKeys     = []string{"yes_ask", "bestAsk", "best_ask", "ask"}
	bidSizeKeys = []string{"yes_bid_size", "bidSize", "bid_size"}
	askSizeKeys = []string{"yes_ask_size", "askSize", "ask_size"}
)

// topFromBag extracts a YES top-of-book from a vendor payload. Top-level
// price aliases win; otherwise the best bids[0]/asks[0] levels are used.
// Returns false when no usable prices are present.
func topFromBag(venue canonical.Venue, marketID string, bag map[string]any) (store.OrderBookTop, bool) {
	top := store.OrderBookTop{Venue: venue, VenueMarketID: marketID, Outcome: "YES"}

	bid, bidOK := coercePrice(firstValue(bag, bidKeys...))
	ask, askOK := coercePrice(firstValue(bag, askKeys...))
	if bidOK || askOK {
		top.BestBid = bid
		top.BestAsk = ask
		top.BidSize = coerceSize(firstValue(bag, bidSizeKeys...))
		top.AskSize = coerceSize(firstValue(bag, askSizeKeys...))
		return top, true
	}

	bidLevel := firstLevel(bag, "bids")
	askLevel := firstLevel(bag, "asks")
	if bidLevel == nil && askLevel == nil {
		return store.OrderBookTop{}, false
	}
	if bidLevel != nil {
		if p, ok := levelPrice(bidLevel); ok {
			top.BestBid = p
			top.BidSize = levelSize(bidLevel)
		}
	}
	if askLevel != nil {
		if p, ok := levelPrice(askLevel); ok {
			top.BestAsk = p
			top.AskSize = levelSize(askLevel)
		}
	}
	if top.BestBid == 0 && top.BestAsk == 0 {
		return store.OrderBookTop{}, false
	}
	return top, true
}

// TopFromRaw exposes YES-top extraction for discovery seeding from a
// market's raw payload.
func TopFromRaw(venue canonical.Venue, marketID string, raw map[string]any) (store.OrderBookTop, bool) {
	return topFromBag(venue, marketID, raw)
}

// NoTopFromRaw exposes NO-top extraction for discovery seeding.
func NoTopFromRaw(venue canonical.Venue, marketID string, raw map[string]any) (store.OrderBookTop, bool) {
	return noTopFromBag(venue, marketID, raw)
}

// noTopFromBag extracts a NO-side top when the payload carries explicit
// no_bid/no_ask fields.
func noTopFromBag(venue canonical.Venue, marketID string, bag map[string]any) (store.OrderBookTop, bool) {
	bid, bidOK := coercePrice(firstValue(bag, "no_bid", "noBid"))
	ask, askOK := coercePrice(firstValue(bag, "no_ask", "noAsk"))
	if !bidOK && !askOK {
		return store.OrderBookTop{}, false
	}
	return store.OrderBookTop{
		Venue:         venue,
		VenueMarketID: marketID,
		Outcome:       "NO",
		BestBid:       bid,
		BestAsk:       ask,
		BidSize:       coerceSize(firstValue(bag, "no_bid_size", "noBidSize")),
		AskSize:       coerceSize(firstValue(bag, "no_ask_size", "noAskSize")),
	}, true
}
