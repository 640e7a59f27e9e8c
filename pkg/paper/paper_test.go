package paper

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSignal(t *testing.T, st *store.Store, start time.Time) store.Signal {
	t.Helper()
	ctx := context.Background()

	if err := st.UpsertEvent(ctx, store.Event{
		ID: "ev-1", Sport: canonical.SportNBA, Competition: canonical.CompNBA,
		StartTimeUTC: &start, HomeTeam: "boston celtics", AwayTeam: "new york knicks",
		TitleCanonical: "boston celtics vs new york knicks",
	}); err != nil {
		t.Fatal(err)
	}

	sig := store.Signal{
		CanonicalEventID: "ev-1", Outcome: "YES",
		BuyVenue: canonical.VenuePoly, SellVenue: canonical.VenueKalshi,
		BuyMarketID: "poly-1", SellMarketID: "kalshi-1",
		BuyPrice: 0.50, SellPrice: 0.57,
		SizeSuggested: 100, EdgeRaw: 0.07, EdgeAfterCosts: 0.05,
		Confidence: 0.9,
	}
	if err := st.UpsertSignal(ctx, sig); err != nil {
		t.Fatal(err)
	}
	open, err := st.ListOpenSignals(ctx, 1)
	if err != nil || len(open) != 1 {
		t.Fatalf("seed signal: %v %d", err, len(open))
	}
	return open[0]
}

func seedTops(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	tops := []store.OrderBookTop{
		// Buy limit 0.50 crosses the 0.50 ask; sell limit 0.57 hits the 0.57 bid.
		{Venue: canonical.VenuePoly, VenueMarketID: "poly-1", Outcome: "YES",
			BestBid: 0.49, BestAsk: 0.50, BidSize: 500, AskSize: 400},
		{Venue: canonical.VenueKalshi, VenueMarketID: "kalshi-1", Outcome: "YES",
			BestBid: 0.57, BestAsk: 0.59, BidSize: 300, AskSize: 500},
	}
	for _, top := range tops {
		if err := st.UpsertTop(ctx, top); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSimulateSignalImmediateFills(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sig := seedSignal(t, st, now.Add(6*time.Hour))
	seedTops(t, st)

	pos, err := New(st).SimulateSignal(ctx, sig.ID, nil, now)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if pos.Size != 100 {
		t.Errorf("size = %v, want 100 (both legs immediate, depth ample)", pos.Size)
	}
	if pos.EntryBuyPrice != 0.50 || pos.EntrySellPrice != 0.57 {
		t.Errorf("entries = %v / %v", pos.EntryBuyPrice, pos.EntrySellPrice)
	}
	if pos.FillRatio != 1 {
		t.Errorf("fill_ratio = %v", pos.FillRatio)
	}

	fills, err := st.ListFills(ctx, pos.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(fills))
	}
	for _, f := range fills {
		if f.Probability != 1 {
			t.Errorf("%s leg probability = %v, want 1", f.Leg, f.Probability)
		}
	}
}

func TestSimulateSignalClampsSize(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sig := seedSignal(t, st, now.Add(6*time.Hour))
	seedTops(t, st)

	requested := 5000.0
	pos, err := New(st).SimulateSignal(ctx, sig.ID, &requested, now)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Size > sig.SizeSuggested {
		t.Errorf("size %v exceeds suggestion %v", pos.Size, sig.SizeSuggested)
	}
}

func TestSimulateSignalRejectsExplicitZeroSize(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sig := seedSignal(t, st, now.Add(6*time.Hour))
	seedTops(t, st)

	zero := 0.0
	if _, err := New(st).SimulateSignal(ctx, sig.ID, &zero, now); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("explicit zero size err = %v, want ErrInvalidArgument", err)
	}
	neg := -10.0
	if _, err := New(st).SimulateSignal(ctx, sig.ID, &neg, now); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("negative size err = %v, want ErrInvalidArgument", err)
	}
}

func TestSimulateSignalErrors(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := New(st).SimulateSignal(ctx, "missing", nil, now); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing signal err = %v, want ErrNotFound", err)
	}

	sig := seedSignal(t, st, now.Add(6*time.Hour))
	// No quotes seeded.
	if _, err := New(st).SimulateSignal(ctx, sig.ID, nil, now); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("missing quote err = %v, want ErrInvalidArgument", err)
	}
}

func TestFillRNGDeterministic(t *testing.T) {
	a := newFillRNG("sig-1", 40)
	b := newFillRNG("sig-1", 40)
	for i := 0; i < 10; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("same seed diverged at draw %d", i)
		}
	}
	if newFillRNG("sig-1", 40).Float64() == newFillRNG("sig-1", 41).Float64() {
		t.Errorf("different size produced identical first draw")
	}
	if newFillRNG("sig-1", 40).Float64() == newFillRNG("sig-2", 40).Float64() {
		t.Errorf("different signal produced identical first draw")
	}
}

func TestSimulateBuyBranches(t *testing.T) {
	// Crossing limit fills the full request at the ask.
	f := simulateBuy(newFillRNG("s", 1), 0.55, 0.49, 0.50, 200, 100)
	if f.Probability != 1 || f.Filled != 100 || f.FillPrice != 0.50 {
		t.Errorf("crossing buy = %+v", f)
	}

	// Crossing with thin depth fills only the depth.
	f = simulateBuy(newFillRNG("s", 1), 0.50, 0.49, 0.50, 60, 100)
	if f.Filled != 60 {
		t.Errorf("depth-capped buy = %+v", f)
	}

	// Probability assignment per placement.
	cases := []struct {
		limit float64
		want  float64
	}{
		{0.49, probAtTouch},  // at the bid
		{0.495, probInSpread}, // inside the spread
		{0.40, probBehind},   // behind the bid
	}
	for _, tc := range cases {
		f = simulateBuy(newFillRNG("s", 1), tc.limit, 0.49, 0.50, 200, 100)
		if f.Probability != tc.want {
			t.Errorf("limit %v probability = %v, want %v", tc.limit, f.Probability, tc.want)
		}
		if f.FillPrice != tc.limit {
			t.Errorf("passive fill price = %v, want limit %v", f.FillPrice, tc.limit)
		}
		if f.Filled > 200*tc.want {
			t.Errorf("passive fill %v exceeds depth*p", f.Filled)
		}
	}
}

func TestSimulateSellBranches(t *testing.T) {
	f := simulateSell(newFillRNG("s", 1), 0.48, 0.49, 0.50, 200, 100)
	if f.Probability != 1 || f.Filled != 100 || f.FillPrice != 0.49 {
		t.Errorf("crossing sell = %+v", f)
	}

	cases := []struct {
		limit float64
		want  float64
	}{
		{0.50, probAtTouch},  // at the ask
		{0.495, probInSpread}, // inside the spread
		{0.60, probBehind},   // behind the ask
	}
	for _, tc := range cases {
		f = simulateSell(newFillRNG("s", 1), tc.limit, 0.49, 0.50, 200, 100)
		if f.Probability != tc.want {
			t.Errorf("limit %v probability = %v, want %v", tc.limit, f.Probability, tc.want)
		}
	}
}

func TestFillAtTouchTolerance(t *testing.T) {
	// 0.1+0.2 is not exactly 0.3; the touch comparison must still match.
	limit := 0.1 + 0.2

	f := simulateBuy(newFillRNG("s", 1), limit, 0.3, 0.35, 200, 100)
	if f.Probability != probAtTouch {
		t.Errorf("buy at touch probability = %v, want %v", f.Probability, probAtTouch)
	}

	f = simulateSell(newFillRNG("s", 1), limit, 0.28, 0.3, 200, 100)
	if f.Probability != probAtTouch {
		t.Errorf("sell at touch probability = %v, want %v", f.Probability, probAtTouch)
	}
}

func TestAutoCloseStarted(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sig := seedSignal(t, st, now.Add(-time.Minute)) // already started
	seedTops(t, st)

	sim := New(st)
	pos, err := sim.SimulateSignal(ctx, sig.ID, nil, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	closed, err := sim.AutoCloseStarted(ctx, st, now)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Fatalf("closed %d positions, want 1", closed)
	}

	got, err := st.GetPosition(ctx, pos.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.PositionClosed {
		t.Errorf("status = %s", got.Status)
	}
	wantRealized := (0.57 - 0.50) * pos.Size
	if math.Abs(got.RealizedPnL-wantRealized) > 1e-9 {
		t.Errorf("realized = %v, want %v", got.RealizedPnL, wantRealized)
	}
	if got.ClosedAt == nil {
		t.Errorf("closed_at not set")
	}
}

func TestAutoCloseLeavesFutureEvents(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sig := seedSignal(t, st, now.Add(6*time.Hour))
	seedTops(t, st)

	sim := New(st)
	if _, err := sim.SimulateSignal(ctx, sig.ID, nil, now); err != nil {
		t.Fatal(err)
	}
	closed, err := sim.AutoCloseStarted(ctx, st, now)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 0 {
		t.Errorf("closed %d future positions, want 0", closed)
	}
}

func TestMarkToMarket(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sig := seedSignal(t, st, now.Add(6*time.Hour))
	seedTops(t, st)

	sim := New(st)
	pos, err := sim.SimulateSignal(ctx, sig.ID, nil, now)
	if err != nil {
		t.Fatal(err)
	}

	// Books move in our favor on the buy side.
	if err := st.UpsertTop(ctx, store.OrderBookTop{
		Venue: canonical.VenuePoly, VenueMarketID: "poly-1", Outcome: "YES",
		BestBid: 0.54, BestAsk: 0.56, BidSize: 500, AskSize: 400,
	}); err != nil {
		t.Fatal(err)
	}

	if err := sim.MarkToMarket(ctx, st, now); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetPosition(ctx, pos.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := (0.54-0.50)*pos.Size + (0.57-0.59)*pos.Size
	if math.Abs(got.UnrealizedPnL-want) > 1e-9 {
		t.Errorf("unrealized = %v, want %v", got.UnrealizedPnL, want)
	}

	snaps, err := st.RecentSnapshots(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if math.Abs(snaps[0].Equity-want) > 1e-9 {
		t.Errorf("equity = %v, want %v", snaps[0].Equity, want)
	}
}

func TestClosePosition(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	sig := seedSignal(t, st, now.Add(6*time.Hour))
	seedTops(t, st)

	sim := New(st)
	pos, err := sim.SimulateSignal(ctx, sig.ID, nil, now)
	if err != nil {
		t.Fatal(err)
	}

	closed, err := sim.ClosePosition(ctx, pos.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	want := (0.49-0.50)*pos.Size + (0.57-0.59)*pos.Size
	if math.Abs(closed.RealizedPnL-want) > 1e-9 {
		t.Errorf("realized = %v, want %v", closed.RealizedPnL, want)
	}

	// Closing again is a no-op that leaves the book untouched.
	again, err := sim.ClosePosition(ctx, pos.ID, now)
	if err != nil {
		t.Errorf("double close err = %v, want nil", err)
	}
	if math.Abs(again.RealizedPnL-closed.RealizedPnL) > 1e-9 {
		t.Errorf("double close changed realized pnl: %v vs %v", again.RealizedPnL, closed.RealizedPnL)
	}
	if _, err := sim.ClosePosition(ctx, "missing", now); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing position err = %v, want ErrNotFound", err)
	}
}
