// Package signal evaluates bound market pairs against current top-of-book
// and upserts mispricing signals.
package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/pricing"
	"github.com/phenomenon0/sportsarb/pkg/store"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

// Params gates signal emission.
type Params struct {
	MinEdge           float64
	MinSecondsToStart int
	Costs             pricing.Costs
}

// Signaler computes bidirectional edges for every tradeable pair.
type Signaler struct {
	params Params
}

// New returns a Signaler with the given gating parameters.
func New(params Params) *Signaler {
	return &Signaler{params: params}
}

// Refresh evaluates all tradeable pairs and upserts the best-direction
// signal per (event, outcome). Returns the number of signals written.
func (s *Signaler) Refresh(ctx context.Context, st *store.Store, now time.Time) (int, error) {
	cutoff := now.Add(time.Duration(s.params.MinSecondsToStart) * time.Second)
	pairs, err := st.ListTradeablePairs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("signal refresh: %w", err)
	}

	written := 0
	for _, pair := range pairs {
		for _, outcome := range []string{"YES", "NO"} {
			sig, ok, err := s.evaluate(ctx, st, pair, outcome, now)
			if err != nil {
				return written, err
			}
			if !ok {
				continue
			}
			if err := st.UpsertSignal(ctx, sig); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

func (s *Signaler) evaluate(ctx context.Context, st *store.Store, pair store.TradeablePair, outcome string, now time.Time) (store.Signal, bool, error) {
	polyTop, err := quoteFor(ctx, st, canonical.VenuePoly, pair.Poly.VenueMarketID, outcome)
	if err != nil {
		return store.Signal{}, false, err
	}
	kalshiTop, err := quoteFor(ctx, st, canonical.VenueKalshi, pair.Kalshi.VenueMarketID, outcome)
	if err != nil {
		return store.Signal{}, false, err
	}
	if polyTop == nil || kalshiTop == nil {
		return store.Signal{}, false, nil
	}

	polyBuy := pricing.ComputeEdge(*polyTop, *kalshiTop, canonical.VenuePoly, canonical.VenueKalshi, s.params.Costs)
	kalshiBuy := pricing.ComputeEdge(*kalshiTop, *polyTop, canonical.VenueKalshi, canonical.VenuePoly, s.params.Costs)

	// Ties favor buying on POLY.
	buyVenue, sellVenue := canonical.VenuePoly, canonical.VenueKalshi
	buyTop, sellTop := polyTop, kalshiTop
	buyMarket, sellMarket := pair.Poly.VenueMarketID, pair.Kalshi.VenueMarketID
	edge := polyBuy
	if kalshiBuy.AfterCosts > polyBuy.AfterCosts {
		buyVenue, sellVenue = canonical.VenueKalshi, canonical.VenuePoly
		buyTop, sellTop = kalshiTop, polyTop
		buyMarket, sellMarket = pair.Kalshi.VenueMarketID, pair.Poly.VenueMarketID
		edge = kalshiBuy
	}

	size := pricing.SuggestedSize(*buyTop, *sellTop, s.params.Costs)
	depthNeeded := size * s.params.Costs.DepthMultiplier
	switch {
	case size <= 0:
		return store.Signal{}, false, nil
	case buyTop.AskSize < depthNeeded || sellTop.BidSize < depthNeeded:
		return store.Signal{}, false, nil
	case edge.AfterCosts < s.params.MinEdge:
		return store.Signal{}, false, nil
	}

	confidence := math.Min(pair.Poly.Confidence, pair.Kalshi.Confidence)
	confidence = math.Round(confidence*10000) / 10000

	telemetry.L().Debug("signal candidate",
		"event", pair.Event.ID, "outcome", outcome,
		"buy_venue", buyVenue, "edge_after_costs", edge.AfterCosts, "size", size)

	return store.Signal{
		CanonicalEventID: pair.Event.ID,
		Outcome:          outcome,
		BuyVenue:         buyVenue,
		SellVenue:        sellVenue,
		BuyMarketID:      buyMarket,
		SellMarketID:     sellMarket,
		BuyPrice:         buyTop.BestAsk,
		SellPrice:        sellTop.BestBid,
		SizeSuggested:    size,
		EdgeRaw:          edge.Raw,
		EdgeAfterCosts:   edge.AfterCosts,
		Confidence:       confidence,
		Status:           "OPEN",
		CreatedAt:        now,
	}, true, nil
}

// quoteFor loads the top-of-book for (venue, market, outcome). A missing NO
// quote is derived conservatively from YES: bid = 1 - yes.ask,
// ask = 1 - yes.bid, with sizes swapped.
func quoteFor(ctx context.Context, st *store.Store, venue canonical.Venue, marketID, outcome string) (*store.OrderBookTop, error) {
	top, err := st.GetTop(ctx, venue, marketID, outcome)
	if err != nil {
		return nil, err
	}
	if top != nil || outcome != "NO" {
		return top, nil
	}
	yes, err := st.GetTop(ctx, venue, marketID, "YES")
	if err != nil || yes == nil {
		return nil, err
	}
	return &store.OrderBookTop{
		Venue:         venue,
		VenueMarketID: marketID,
		Outcome:       "NO",
		BestBid:       math.Max(0, 1-yes.BestAsk),
		BestAsk:       math.Max(0, 1-yes.BestBid),
		BidSize:       yes.AskSize,
		AskSize:       yes.BidSize,
		Timestamp:     yes.Timestamp,
	}, nil
}
