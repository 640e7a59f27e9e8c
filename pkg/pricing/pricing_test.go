package pricing

import (
	"math"
	"testing"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/store"
)

func defaultCosts() Costs {
	return Costs{
		SlippageK:           0.20,
		MaxNotionalPerEvent: 250,
		DepthMultiplier:     1.5,
		FeeBps: map[canonical.Venue]float64{
			canonical.VenuePoly:   40,
			canonical.VenueKalshi: 35,
		},
	}
}

func top(bid, ask, bidSize, askSize float64) store.OrderBookTop {
	return store.OrderBookTop{BestBid: bid, BestAsk: ask, BidSize: bidSize, AskSize: askSize}
}

func TestEdgeGatedByCosts(t *testing.T) {
	// Raw edge is positive but fees plus the tick floor eat it.
	buy := top(0.49, 0.50, 500, 500)
	sell := top(0.505, 0.515, 500, 500)

	e := ComputeEdge(buy, sell, canonical.VenuePoly, canonical.VenueKalshi, defaultCosts())
	if e.Raw <= 0 {
		t.Fatalf("edge_raw = %v, want > 0", e.Raw)
	}
	if e.AfterCosts > 0 {
		t.Errorf("edge_after_costs = %v, want <= 0", e.AfterCosts)
	}
}

func TestEdgePositive(t *testing.T) {
	buy := top(0.48, 0.49, 500, 500)
	sell := top(0.55, 0.56, 500, 500)

	e := ComputeEdge(buy, sell, canonical.VenuePoly, canonical.VenueKalshi, defaultCosts())
	if math.Abs(e.Raw-0.06) > 1e-9 {
		t.Errorf("edge_raw = %v, want 0.06", e.Raw)
	}
	if e.AfterCosts <= 0 {
		t.Errorf("edge_after_costs = %v, want > 0", e.AfterCosts)
	}
}

func TestEdgeInvariants(t *testing.T) {
	cases := []struct {
		buy, sell store.OrderBookTop
	}{
		{top(0.49, 0.50, 100, 100), top(0.505, 0.515, 100, 100)},
		{top(0.10, 0.12, 50, 50), top(0.30, 0.35, 50, 50)},
		{top(0.90, 0.95, 10, 10), top(0.50, 0.55, 10, 10)},
		{top(0, 0, 0, 0), top(0, 0, 0, 0)},
	}
	for _, tc := range cases {
		e := ComputeEdge(tc.buy, tc.sell, canonical.VenuePoly, canonical.VenueKalshi, defaultCosts())
		if e.AfterCosts > e.Raw {
			t.Errorf("after_costs %v exceeds raw %v", e.AfterCosts, e.Raw)
		}
		if e.Slippage < Tick {
			t.Errorf("slippage %v below tick", e.Slippage)
		}
	}
}

func TestSuggestedSizeDepthCap(t *testing.T) {
	c := defaultCosts()
	buy := top(0.50, 0.52, 900, 60)
	sell := top(0.55, 0.57, 90, 800)

	size := SuggestedSize(buy, sell, c)
	visible := math.Min(buy.AskSize, sell.BidSize)
	if size > visible/c.DepthMultiplier {
		t.Errorf("size %v exceeds depth cap %v", size, visible/c.DepthMultiplier)
	}
	if size > c.MaxNotionalPerEvent/math.Max(buy.BestAsk, 0.01) {
		t.Errorf("size %v exceeds notional cap", size)
	}
	if size != 40 {
		t.Errorf("size = %v, want 40 (60 visible / 1.5)", size)
	}
}

func TestSuggestedSizeNotionalCap(t *testing.T) {
	c := defaultCosts()
	buy := top(0.50, 0.50, 100000, 100000)
	sell := top(0.55, 0.57, 100000, 100000)

	size := SuggestedSize(buy, sell, c)
	if size != 500 {
		t.Errorf("size = %v, want 500 (250 notional / 0.50 ask)", size)
	}
}

func TestSuggestedSizeZeroDepth(t *testing.T) {
	if size := SuggestedSize(top(0.5, 0.52, 100, 0), top(0.55, 0.57, 100, 100), defaultCosts()); size != 0 {
		t.Errorf("size = %v, want 0 on empty ask", size)
	}
	if size := SuggestedSize(top(0.5, 0.52, 100, 100), top(0.55, 0.57, 0, 100), defaultCosts()); size != 0 {
		t.Errorf("size = %v, want 0 on empty bid", size)
	}
}

func TestSuggestedSizeFlooring(t *testing.T) {
	c := defaultCosts()
	c.DepthMultiplier = 3
	// 100 / 3 = 33.3333... floors to 33.3333.
	size := SuggestedSize(top(0.5, 0.5, 1000, 100), top(0.55, 0.57, 1000, 1000), c)
	if size != 33.3333 {
		t.Errorf("size = %v, want 33.3333", size)
	}
}
