package signal

import (
	"context"
	"testing"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/pricing"
	"github.com/phenomenon0/sportsarb/pkg/store"
)

func testParams() Params {
	return Params{
		MinEdge:           0.008,
		MinSecondsToStart: 300,
		Costs: pricing.Costs{
			SlippageK:           0.20,
			MaxNotionalPerEvent: 250,
			DepthMultiplier:     1.5,
			FeeBps: map[canonical.Venue]float64{
				canonical.VenuePoly:   40,
				canonical.VenueKalshi: 35,
			},
		},
	}
}

func seedPair(t *testing.T, st *store.Store, eventID string, start time.Time, polyStatus, kalshiStatus canonical.BindingStatus) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertEvent(ctx, store.Event{
		ID: eventID, Sport: canonical.SportNBA, Competition: canonical.CompNBA,
		StartTimeUTC: &start, HomeTeam: "boston celtics", AwayTeam: "new york knicks",
		TitleCanonical: "boston celtics vs new york knicks",
	}); err != nil {
		t.Fatal(err)
	}
	bindings := []store.Binding{
		{CanonicalEventID: eventID, Venue: canonical.VenuePoly, VenueMarketID: "poly-" + eventID,
			OutcomeSchema: "YES_NO", MarketType: canonical.WinnerBinary, Status: polyStatus, Confidence: 0.92},
		{CanonicalEventID: eventID, Venue: canonical.VenueKalshi, VenueMarketID: "kalshi-" + eventID,
			OutcomeSchema: "YES_NO", MarketType: canonical.WinnerBinary, Status: kalshiStatus, Confidence: 0.88},
	}
	for _, b := range bindings {
		if err := st.UpsertBinding(ctx, b); err != nil {
			t.Fatal(err)
		}
	}
}

func seedTops(t *testing.T, st *store.Store, eventID string, polyBid, polyAsk, kalshiBid, kalshiAsk float64) {
	t.Helper()
	ctx := context.Background()
	tops := []store.OrderBookTop{
		{Venue: canonical.VenuePoly, VenueMarketID: "poly-" + eventID, Outcome: "YES",
			BestBid: polyBid, BestAsk: polyAsk, BidSize: 1000, AskSize: 1000},
		{Venue: canonical.VenueKalshi, VenueMarketID: "kalshi-" + eventID, Outcome: "YES",
			BestBid: kalshiBid, BestAsk: kalshiAsk, BidSize: 1000, AskSize: 1000},
	}
	for _, top := range tops {
		if err := st.UpsertTop(ctx, top); err != nil {
			t.Fatal(err)
		}
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRefreshEmitsForTradeableBindings(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	start := now.Add(6 * time.Hour)

	// Wide mispricing: buy POLY at 0.50, sell KALSHI at 0.57.
	seedPair(t, st, "ev-trade", start, canonical.StatusAuto, canonical.StatusOverride)
	seedTops(t, st, "ev-trade", 0.49, 0.50, 0.57, 0.59)

	// Positive edge too, but REVIEW on one side.
	seedPair(t, st, "ev-review", start, canonical.StatusReview, canonical.StatusAuto)
	seedTops(t, st, "ev-review", 0.49, 0.50, 0.57, 0.59)

	n, err := New(testParams()).Refresh(ctx, st, now)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n == 0 {
		t.Fatalf("no signals written")
	}

	signals, err := st.ListOpenSignals(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	for _, sig := range signals {
		if sig.CanonicalEventID == "ev-review" {
			t.Errorf("signal emitted for pair with REVIEW binding")
		}
	}

	var yes *store.Signal
	for i := range signals {
		if signals[i].CanonicalEventID == "ev-trade" && signals[i].Outcome == "YES" {
			yes = &signals[i]
		}
	}
	if yes == nil {
		t.Fatalf("no YES signal for tradeable pair; got %+v", signals)
	}
	if yes.BuyVenue != canonical.VenuePoly || yes.SellVenue != canonical.VenueKalshi {
		t.Errorf("direction = buy %s sell %s", yes.BuyVenue, yes.SellVenue)
	}
	if yes.BuyPrice != 0.50 || yes.SellPrice != 0.57 {
		t.Errorf("prices = %v / %v", yes.BuyPrice, yes.SellPrice)
	}
	if yes.Confidence != 0.88 {
		t.Errorf("confidence = %v, want min binding confidence 0.88", yes.Confidence)
	}
}

func TestRefreshSkipsSubThresholdEdge(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	start := now.Add(6 * time.Hour)

	// Raw edge 0.005 dies to fees and the slippage tick.
	seedPair(t, st, "ev-thin", start, canonical.StatusAuto, canonical.StatusAuto)
	seedTops(t, st, "ev-thin", 0.49, 0.50, 0.505, 0.515)

	n, err := New(testParams()).Refresh(ctx, st, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("wrote %d signals for sub-threshold edge, want 0", n)
	}
}

func TestRefreshSkipsImminentStart(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Starts in 2 minutes, under the 300-second floor.
	seedPair(t, st, "ev-soon", now.Add(2*time.Minute), canonical.StatusAuto, canonical.StatusAuto)
	seedTops(t, st, "ev-soon", 0.49, 0.50, 0.57, 0.59)

	n, err := New(testParams()).Refresh(ctx, st, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("wrote %d signals for imminent event, want 0", n)
	}
}

func TestRefreshSkipsMissingQuote(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedPair(t, st, "ev-noquote", now.Add(6*time.Hour), canonical.StatusAuto, canonical.StatusAuto)
	// Only the POLY side has a book.
	if err := st.UpsertTop(ctx, store.OrderBookTop{
		Venue: canonical.VenuePoly, VenueMarketID: "poly-ev-noquote", Outcome: "YES",
		BestBid: 0.49, BestAsk: 0.50, BidSize: 1000, AskSize: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := New(testParams()).Refresh(ctx, st, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("wrote %d signals with a missing quote, want 0", n)
	}
}

func TestRefreshIdempotentUpsert(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedPair(t, st, "ev-idem", now.Add(6*time.Hour), canonical.StatusAuto, canonical.StatusAuto)
	seedTops(t, st, "ev-idem", 0.49, 0.50, 0.57, 0.59)

	s := New(testParams())
	if _, err := s.Refresh(ctx, st, now); err != nil {
		t.Fatal(err)
	}
	first, err := st.ListOpenSignals(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Refresh(ctx, st, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	second, err := st.ListOpenSignals(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Errorf("row churn across refreshes: %d then %d", len(first), len(second))
	}
}

func TestDerivedNoQuote(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	if err := st.UpsertTop(ctx, store.OrderBookTop{
		Venue: canonical.VenuePoly, VenueMarketID: "m1", Outcome: "YES",
		BestBid: 0.40, BestAsk: 0.44, BidSize: 300, AskSize: 200,
	}); err != nil {
		t.Fatal(err)
	}

	no, err := quoteFor(ctx, st, canonical.VenuePoly, "m1", "NO")
	if err != nil {
		t.Fatal(err)
	}
	if no == nil {
		t.Fatal("derived NO quote missing")
	}
	if no.BestBid != 1-0.44 || no.BestAsk != 1-0.40 {
		t.Errorf("derived prices = %v / %v", no.BestBid, no.BestAsk)
	}
	if no.BidSize != 200 || no.AskSize != 300 {
		t.Errorf("derived sizes not swapped: %v / %v", no.BidSize, no.AskSize)
	}

	missing, err := quoteFor(ctx, st, canonical.VenuePoly, "m2", "NO")
	if err != nil || missing != nil {
		t.Errorf("expected nil for market with no YES book: %v, %v", missing, err)
	}
}
