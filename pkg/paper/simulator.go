// Package paper simulates signal execution with stochastic limit fills and
// tracks the resulting position book.
package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/store"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

// Simulator executes paper trades against stored signals and quotes.
type Simulator struct {
	store *store.Store
}

// New returns a Simulator backed by st.
func New(st *store.Store) *Simulator {
	return &Simulator{store: st}
}

// SimulateSignal opens a paper position for the signal, simulating both
// legs. A nil requestedSize means "use the suggested size"; an explicit
// size is clamped down to the suggestion and rejected when not positive.
// Fails with ErrInvalidArgument when the size is unusable, a quote is
// missing, or neither leg fills.
func (s *Simulator) SimulateSignal(ctx context.Context, signalID string, requestedSize *float64, now time.Time) (store.Position, error) {
	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return store.Position{}, err
	}

	size := sig.SizeSuggested
	if requestedSize != nil {
		if *requestedSize <= 0 {
			return store.Position{}, fmt.Errorf("simulate %s: non-positive size: %w", signalID, store.ErrInvalidArgument)
		}
		if *requestedSize < size {
			size = *requestedSize
		}
	}
	if size <= 0 {
		return store.Position{}, fmt.Errorf("simulate %s: non-positive size: %w", signalID, store.ErrInvalidArgument)
	}

	buyTop, err := s.store.GetTop(ctx, sig.BuyVenue, sig.BuyMarketID, sig.Outcome)
	if err != nil {
		return store.Position{}, err
	}
	sellTop, err := s.store.GetTop(ctx, sig.SellVenue, sig.SellMarketID, sig.Outcome)
	if err != nil {
		return store.Position{}, err
	}
	if buyTop == nil || sellTop == nil {
		return store.Position{}, fmt.Errorf("simulate %s: quote missing: %w", signalID, store.ErrInvalidArgument)
	}

	rng := newFillRNG(sig.ID, size)
	buyFill := simulateBuy(rng, sig.BuyPrice, buyTop.BestBid, buyTop.BestAsk, buyTop.AskSize, size)
	sellFill := simulateSell(rng, sig.SellPrice, sellTop.BestBid, sellTop.BestAsk, sellTop.BidSize, size)

	positionSize := buyFill.Filled
	if sellFill.Filled < positionSize {
		positionSize = sellFill.Filled
	}
	if positionSize <= 0 {
		return store.Position{}, fmt.Errorf("simulate %s: no fill: %w", signalID, store.ErrInvalidArgument)
	}

	pos, err := s.store.InsertPosition(ctx, store.Position{
		CanonicalEventID: sig.CanonicalEventID,
		SignalID:         sig.ID,
		Outcome:          sig.Outcome,
		BuyVenue:         sig.BuyVenue,
		SellVenue:        sig.SellVenue,
		BuyMarketID:      sig.BuyMarketID,
		SellMarketID:     sig.SellMarketID,
		Size:             positionSize,
		EntryBuyPrice:    buyFill.FillPrice,
		EntrySellPrice:   sellFill.FillPrice,
		FillRatio:        positionSize / size,
		Status:           store.PositionOpen,
		OpenedAt:         now,
	})
	if err != nil {
		return store.Position{}, err
	}

	for _, leg := range []struct {
		name string
		fill LegFill
	}{
		{store.LegBuy, buyFill},
		{store.LegSell, sellFill},
	} {
		if err := s.store.InsertFill(ctx, store.Fill{
			PositionID:    pos.ID,
			Leg:           leg.name,
			LimitPrice:    leg.fill.LimitPrice,
			FillPrice:     leg.fill.FillPrice,
			RequestedSize: leg.fill.Requested,
			FilledSize:    leg.fill.Filled,
			Probability:   leg.fill.Probability,
			Timestamp:     now,
		}); err != nil {
			return store.Position{}, err
		}
	}

	telemetry.L().Info("paper position opened",
		"position", pos.ID, "signal", sig.ID, "size", positionSize,
		"entry_buy", pos.EntryBuyPrice, "entry_sell", pos.EntrySellPrice)
	return pos, nil
}

// ClosePosition closes an open position at current quotes, falling back to
// the locked-spread payout when either book is empty. Closing an already
// closed position is a no-op.
func (s *Simulator) ClosePosition(ctx context.Context, positionID string, now time.Time) (store.Position, error) {
	pos, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return store.Position{}, err
	}
	if pos.Status != store.PositionOpen {
		return pos, nil
	}

	buyTop, err := s.store.GetTop(ctx, pos.BuyVenue, pos.BuyMarketID, pos.Outcome)
	if err != nil {
		return store.Position{}, err
	}
	sellTop, err := s.store.GetTop(ctx, pos.SellVenue, pos.SellMarketID, pos.Outcome)
	if err != nil {
		return store.Position{}, err
	}

	if buyTop != nil && sellTop != nil {
		pos.RealizedPnL = (buyTop.BestBid-pos.EntryBuyPrice)*pos.Size +
			(pos.EntrySellPrice-sellTop.BestAsk)*pos.Size
	} else {
		pos.RealizedPnL = (pos.EntrySellPrice - pos.EntryBuyPrice) * pos.Size
	}
	pos.UnrealizedPnL = 0
	pos.Status = store.PositionClosed
	closedAt := now.UTC()
	pos.ClosedAt = &closedAt

	if err := s.store.UpdatePosition(ctx, pos); err != nil {
		return store.Position{}, err
	}
	return pos, nil
}

// AutoCloseStarted settles every open position whose event has started.
// The locked cross-venue spread is treated as the pair payout.
func (s *Simulator) AutoCloseStarted(ctx context.Context, st *store.Store, now time.Time) (int, error) {
	open, err := st.ListPositions(ctx, store.PositionOpen)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, pos := range open {
		event, err := st.GetEvent(ctx, pos.CanonicalEventID)
		if err != nil {
			telemetry.L().Warn("auto-close: event lookup failed",
				"position", pos.ID, "event", pos.CanonicalEventID, "err", err)
			continue
		}
		if event.StartTimeUTC == nil || event.StartTimeUTC.After(now) {
			continue
		}
		pos.RealizedPnL = (pos.EntrySellPrice - pos.EntryBuyPrice) * pos.Size
		pos.UnrealizedPnL = 0
		pos.Status = store.PositionClosed
		closedAt := now.UTC()
		pos.ClosedAt = &closedAt
		if err := st.UpdatePosition(ctx, pos); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// MarkToMarket refreshes unrealized PnL for open positions from current
// quotes and appends a portfolio snapshot.
func (s *Simulator) MarkToMarket(ctx context.Context, st *store.Store, now time.Time) error {
	open, err := st.ListPositions(ctx, store.PositionOpen)
	if err != nil {
		return err
	}
	for _, pos := range open {
		buyTop, err := st.GetTop(ctx, pos.BuyVenue, pos.BuyMarketID, pos.Outcome)
		if err != nil {
			return err
		}
		sellTop, err := st.GetTop(ctx, pos.SellVenue, pos.SellMarketID, pos.Outcome)
		if err != nil {
			return err
		}
		if buyTop != nil && sellTop != nil {
			pos.UnrealizedPnL = (buyTop.BestBid-pos.EntryBuyPrice)*pos.Size +
				(pos.EntrySellPrice-sellTop.BestAsk)*pos.Size
		} else {
			pos.UnrealizedPnL = 0
		}
		if err := st.UpdatePosition(ctx, pos); err != nil {
			return err
		}
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	return st.InsertSnapshot(ctx, store.Snapshot{
		Timestamp:     now,
		Equity:        stats.Equity,
		RealizedPnL:   stats.TotalRealized,
		UnrealizedPnL: stats.TotalUnrealized,
	})
}
