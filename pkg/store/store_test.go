package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(id string, start time.Time) Event {
	return Event{
		ID:             id,
		Sport:          canonical.SportNBA,
		Competition:    canonical.CompNBA,
		StartTimeUTC:   &start,
		HomeTeam:       "boston celtics",
		AwayTeam:       "new york knicks",
		TitleCanonical: "boston celtics vs new york knicks",
	}
}

func TestUpsertEventIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(6 * time.Hour).UTC().Truncate(time.Second)

	e := testEvent("ev-1", start)
	if err := s.UpsertEvent(ctx, e); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := s.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if err := s.UpsertEvent(ctx, e); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	second, err := s.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("created_at changed on re-upsert: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
	events, err := s.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
}

func TestGetEventNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetEvent(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertBindingReassigns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(time.Hour)
	if err := s.UpsertEvent(ctx, testEvent("ev-1", start)); err != nil {
		t.Fatal(err)
	}

	b := Binding{
		CanonicalEventID: "ev-1",
		Venue:            canonical.VenuePoly,
		VenueMarketID:    "0xabc",
		OutcomeSchema:    "YES_NO",
		MarketType:       canonical.WinnerBinary,
		Status:           canonical.StatusAuto,
		Confidence:       0.91,
	}
	if err := s.UpsertBinding(ctx, b); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	b.Status = canonical.StatusReview
	b.Confidence = 0.82
	if err := s.UpsertBinding(ctx, b); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.GetBinding(ctx, canonical.VenuePoly, "0xabc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != canonical.StatusReview || got.Confidence != 0.82 {
		t.Errorf("binding not updated: %+v", got)
	}

	all, err := s.ListBindings(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d bindings, want 1", len(all))
	}
}

func TestSetBindingStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	b := Binding{
		CanonicalEventID: "ev-1",
		Venue:            canonical.VenueKalshi,
		VenueMarketID:    "KXNBAGAME-1",
		OutcomeSchema:    "YES_NO",
		MarketType:       canonical.WinnerBinary,
		Status:           canonical.StatusReview,
		Confidence:       0.83,
	}
	if err := s.UpsertBinding(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBindingStatus(ctx, canonical.VenueKalshi, "KXNBAGAME-1", canonical.StatusOverride, 1.0); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err := s.GetBinding(ctx, canonical.VenueKalshi, "KXNBAGAME-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != canonical.StatusOverride || got.Confidence != 1.0 {
		t.Errorf("binding = %+v", got)
	}

	if err := s.SetBindingStatus(ctx, canonical.VenuePoly, "missing", canonical.StatusAuto, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertTopLastWriterWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	top := OrderBookTop{
		Venue: canonical.VenuePoly, VenueMarketID: "0xabc", Outcome: "YES",
		BestBid: 0.51, BestAsk: 0.53, BidSize: 100, AskSize: 80,
	}
	if err := s.UpsertTop(ctx, top); err != nil {
		t.Fatal(err)
	}
	top.BestBid, top.BestAsk = 0.52, 0.54
	if err := s.UpsertTop(ctx, top); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTop(ctx, canonical.VenuePoly, "0xabc", "YES")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.BestBid != 0.52 || got.BestAsk != 0.54 {
		t.Errorf("top = %+v", got)
	}

	tops, err := s.RecentTops(ctx, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(tops) != 1 {
		t.Errorf("got %d top rows, want 1", len(tops))
	}

	missing, err := s.GetTop(ctx, canonical.VenueKalshi, "nope", "YES")
	if err != nil || missing != nil {
		t.Errorf("missing top = %v, %v", missing, err)
	}
}

func TestUpsertSignalRefreshesCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sig := Signal{
		CanonicalEventID: "ev-1",
		Outcome:          "YES",
		BuyVenue:         canonical.VenuePoly,
		SellVenue:        canonical.VenueKalshi,
		BuyMarketID:      "0xabc",
		SellMarketID:     "KXNBAGAME-1",
		BuyPrice:         0.50,
		SellPrice:        0.53,
		SizeSuggested:    40,
		EdgeRaw:          0.03,
		EdgeAfterCosts:   0.012,
		Confidence:       0.9,
		CreatedAt:        time.Now().Add(-time.Minute).UTC(),
	}
	if err := s.UpsertSignal(ctx, sig); err != nil {
		t.Fatal(err)
	}
	open, err := s.ListOpenSignals(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("got %d signals, want 1", len(open))
	}
	firstID, firstCreated := open[0].ID, open[0].CreatedAt

	sig.CreatedAt = time.Now().UTC()
	if err := s.UpsertSignal(ctx, sig); err != nil {
		t.Fatal(err)
	}
	open, err = s.ListOpenSignals(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("upsert created a second row: %d", len(open))
	}
	if open[0].ID != firstID {
		t.Errorf("row id changed on refresh")
	}
	if !open[0].CreatedAt.After(firstCreated) {
		t.Errorf("created_at not refreshed: %v vs %v", open[0].CreatedAt, firstCreated)
	}
}

func TestListTradeablePairs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	start := now.Add(6 * time.Hour)

	if err := s.UpsertEvent(ctx, testEvent("ev-ok", start)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEvent(ctx, testEvent("ev-review", start)); err != nil {
		t.Fatal(err)
	}
	bind := func(event string, venue canonical.Venue, id string, status canonical.BindingStatus) {
		t.Helper()
		err := s.UpsertBinding(ctx, Binding{
			CanonicalEventID: event, Venue: venue, VenueMarketID: id,
			OutcomeSchema: "YES_NO", MarketType: canonical.WinnerBinary,
			Status: status, Confidence: 0.9,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	bind("ev-ok", canonical.VenuePoly, "p1", canonical.StatusAuto)
	bind("ev-ok", canonical.VenueKalshi, "k1", canonical.StatusOverride)
	bind("ev-review", canonical.VenuePoly, "p2", canonical.StatusReview)
	bind("ev-review", canonical.VenueKalshi, "k2", canonical.StatusAuto)

	pairs, err := s.ListTradeablePairs(ctx, now.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].Event.ID != "ev-ok" {
		t.Errorf("pair event = %s", pairs[0].Event.ID)
	}
	if pairs[0].Poly.VenueMarketID != "p1" || pairs[0].Kalshi.VenueMarketID != "k1" {
		t.Errorf("pair bindings = %+v", pairs[0])
	}

	// A cutoff past the start hides the pair.
	pairs, err = s.ListTradeablePairs(ctx, start.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 0 {
		t.Errorf("got %d pairs after cutoff, want 0", len(pairs))
	}
}

func TestListTradeablePairsSubSecondCutoff(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Stored times compare as SQL strings, so a start 500ms past a
	// whole-second cutoff must still sort after it.
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := cutoff.Add(500 * time.Millisecond)

	if err := s.UpsertEvent(ctx, testEvent("ev-subsec", start)); err != nil {
		t.Fatal(err)
	}
	for venue, id := range map[canonical.Venue]string{
		canonical.VenuePoly:   "p1",
		canonical.VenueKalshi: "k1",
	} {
		err := s.UpsertBinding(ctx, Binding{
			CanonicalEventID: "ev-subsec", Venue: venue, VenueMarketID: id,
			OutcomeSchema: "YES_NO", MarketType: canonical.WinnerBinary,
			Status: canonical.StatusAuto, Confidence: 0.9,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	pairs, err := s.ListTradeablePairs(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if got := pairs[0].Event.StartTimeUTC; got == nil || !got.Equal(start) {
		t.Errorf("start round-trip = %v, want %v", got, start)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wantErr := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Store) error {
		if err := tx.UpsertEvent(ctx, testEvent("ev-tx", time.Now())); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.GetEvent(ctx, "ev-tx"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rolled-back event still visible: %v", err)
	}

	err = s.WithTx(ctx, func(tx *Store) error {
		return tx.UpsertEvent(ctx, testEvent("ev-tx", time.Now()))
	})
	if err != nil {
		t.Fatalf("commit tx: %v", err)
	}
	if _, err := s.GetEvent(ctx, "ev-tx"); err != nil {
		t.Errorf("committed event missing: %v", err)
	}
}

func TestPurgeDemoRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(time.Hour)

	if err := s.UpsertEvent(ctx, testEvent("ev-demo", start)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertBinding(ctx, Binding{
		CanonicalEventID: "ev-demo", Venue: canonical.VenuePoly,
		VenueMarketID: "poly-demo-nba-celtics-knicks", OutcomeSchema: "YES_NO",
		MarketType: canonical.WinnerBinary, Status: canonical.StatusAuto, Confidence: 1,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertTop(ctx, OrderBookTop{
		Venue: canonical.VenuePoly, VenueMarketID: "poly-demo-nba-celtics-knicks",
		Outcome: "YES", BestBid: 0.52, BestAsk: 0.54, BidSize: 1200, AskSize: 900,
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.PurgeDemoRows(ctx); err != nil {
		t.Fatal(err)
	}
	if all, _ := s.ListBindings(ctx, "", 10); len(all) != 0 {
		t.Errorf("demo bindings survived purge")
	}
	if tops, _ := s.RecentTops(ctx, 10, false); len(tops) != 0 {
		t.Errorf("demo tops survived purge")
	}
	if _, err := s.GetEvent(ctx, "ev-demo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("orphaned demo event survived purge: %v", err)
	}
}

func TestPaperRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.InsertPosition(ctx, Position{
		CanonicalEventID: "ev-1", SignalID: "sig-1", Outcome: "YES",
		BuyVenue: canonical.VenuePoly, SellVenue: canonical.VenueKalshi,
		BuyMarketID: "0xabc", SellMarketID: "k1",
		Size: 25, EntryBuyPrice: 0.50, EntrySellPrice: 0.53, FillRatio: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.InsertFill(ctx, Fill{
		PositionID: p.ID, Leg: LegBuy, LimitPrice: 0.50, FillPrice: 0.50,
		RequestedSize: 25, FilledSize: 25, Probability: 1,
	}); err != nil {
		t.Fatal(err)
	}

	open, err := s.ListPositions(ctx, PositionOpen)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("open positions = %d", len(open))
	}

	now := time.Now().UTC()
	p.Status = PositionClosed
	p.ClosedAt = &now
	p.RealizedPnL = 0.75
	p.UnrealizedPnL = 0
	if err := s.UpdatePosition(ctx, p); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ClosedPositions != 1 || stats.OpenPositions != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalRealized != 0.75 || stats.Equity != 0.75 {
		t.Errorf("stats pnl = %+v", stats)
	}

	fills, err := s.ListFills(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 || fills[0].Leg != LegBuy {
		t.Errorf("fills = %+v", fills)
	}
}

func TestSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	for i := 0; i < 5; i++ {
		if err := s.InsertSnapshot(ctx, Snapshot{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Equity:    float64(i),
		}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.RecentSnapshots(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d snapshots", len(got))
	}
	// Newest three, in chronological order.
	if got[0].Equity != 2 || got[2].Equity != 4 {
		t.Errorf("snapshot order = %+v", got)
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Errorf("snapshots not chronological")
	}
}
