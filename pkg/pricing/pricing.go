// Package pricing computes after-cost cross-venue edge and suggested size.
package pricing

import (
	"math"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/store"
)

// Tick is the minimum slippage charge, one price tick.
const Tick = 0.01

// Costs drive the edge and sizing formulas.
type Costs struct {
	SlippageK           float64
	MaxNotionalPerEvent float64
	DepthMultiplier     float64
	FeeBps              map[canonical.Venue]float64
}

// Edge is the cost breakdown for one buy/sell direction.
type Edge struct {
	Raw        float64
	Fees       float64
	Slippage   float64
	AfterCosts float64
}

// ComputeEdge prices buying at buy.BestAsk and selling at sell.BestBid.
// Slippage is the worse of the two venue spreads scaled by SlippageK,
// floored at one tick. Fees are charged on both legs' notional in bps.
func ComputeEdge(buy, sell store.OrderBookTop, buyVenue, sellVenue canonical.Venue, c Costs) Edge {
	raw := sell.BestBid - buy.BestAsk

	spread := math.Max(buy.BestAsk-buy.BestBid, sell.BestAsk-sell.BestBid)
	if spread < 0 {
		spread = 0
	}
	slippage := math.Max(Tick, spread*c.SlippageK)

	fees := (buy.BestAsk + sell.BestBid) * (c.FeeBps[buyVenue] + c.FeeBps[sellVenue]) / 10000

	return Edge{
		Raw:        raw,
		Fees:       fees,
		Slippage:   slippage,
		AfterCosts: raw - fees - slippage,
	}
}

// SuggestedSize caps the trade by visible depth (divided by the depth
// multiplier) and by per-event notional, floored to 4 decimals. Returns 0
// when no depth is visible on either leg.
func SuggestedSize(buy, sell store.OrderBookTop, c Costs) float64 {
	visible := math.Min(buy.AskSize, sell.BidSize)
	if visible <= 0 {
		return 0
	}
	byDepth := visible / math.Max(c.DepthMultiplier, 1)
	byNotional := c.MaxNotionalPerEvent / math.Max(buy.BestAsk, 0.01)
	size := math.Min(byDepth, byNotional)
	return math.Floor(size*10000) / 10000
}
