package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertSignal writes a signal under its (event, outcome, buy_venue,
// sell_venue) key, refreshing prices, size, edges, and created_at on
// conflict. The row id is stable across refreshes.
func (s *Store) UpsertSignal(ctx context.Context, sig Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	if sig.Status == "" {
		sig.Status = "OPEN"
	}
	_, err := s.run.ExecContext(ctx, `
INSERT INTO signals (id, canonical_event_id, outcome, buy_venue, sell_venue, buy_market_id, sell_market_id,
                     buy_price, sell_price, size_suggested, edge_raw, edge_after_costs, confidence, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (canonical_event_id, outcome, buy_venue, sell_venue) DO UPDATE SET
	buy_market_id = excluded.buy_market_id,
	sell_market_id = excluded.sell_market_id,
	buy_price = excluded.buy_price,
	sell_price = excluded.sell_price,
	size_suggested = excluded.size_suggested,
	edge_raw = excluded.edge_raw,
	edge_after_costs = excluded.edge_after_costs,
	confidence = excluded.confidence,
	status = excluded.status,
	created_at = excluded.created_at`,
		sig.ID, sig.CanonicalEventID, sig.Outcome, sig.BuyVenue, sig.SellVenue,
		sig.BuyMarketID, sig.SellMarketID, sig.BuyPrice, sig.SellPrice,
		sig.SizeSuggested, sig.EdgeRaw, sig.EdgeAfterCosts, sig.Confidence,
		sig.Status, fmtTime(sig.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert signal %s/%s: %w", sig.CanonicalEventID, sig.Outcome, err)
	}
	return nil
}

// GetSignal returns one signal by row id or ErrNotFound.
func (s *Store) GetSignal(ctx context.Context, id string) (Signal, error) {
	row := s.run.QueryRowContext(ctx, signalSelect+` WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Signal{}, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	return sig, err
}

const signalSelect = `
SELECT id, canonical_event_id, outcome, buy_venue, sell_venue, buy_market_id, sell_market_id,
       buy_price, sell_price, size_suggested, edge_raw, edge_after_costs, confidence, status, created_at
FROM signals`

// ListOpenSignals returns OPEN signals by edge_after_costs descending.
func (s *Store) ListOpenSignals(ctx context.Context, limit int) ([]Signal, error) {
	rows, err := s.run.QueryContext(ctx,
		signalSelect+` WHERE status = 'OPEN' ORDER BY edge_after_costs DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list open signals: %w", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// ListOpenSignalsWithEvents joins OPEN signals with event metadata, best
// edge first. Demo-marker rows are excluded when excludeDemo is set.
func (s *Store) ListOpenSignalsWithEvents(ctx context.Context, limit int, excludeDemo bool) ([]SignalWithEvent, error) {
	q := `
SELECT s.id, s.canonical_event_id, s.outcome, s.buy_venue, s.sell_venue, s.buy_market_id, s.sell_market_id,
       s.buy_price, s.sell_price, s.size_suggested, s.edge_raw, s.edge_after_costs, s.confidence, s.status, s.created_at,
       e.sport, e.competition, e.title_canonical, e.start_time_utc
FROM signals s
JOIN events e ON e.id = s.canonical_event_id
WHERE s.status = 'OPEN'`
	if excludeDemo {
		q += ` AND s.buy_market_id NOT LIKE '%demo%' AND s.sell_market_id NOT LIKE '%demo%'`
	}
	q += ` ORDER BY s.edge_after_costs DESC LIMIT ?`

	rows, err := s.run.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals with events: %w", err)
	}
	defer rows.Close()

	var out []SignalWithEvent
	for rows.Next() {
		var (
			sw      SignalWithEvent
			created string
			startNS sql.NullString
		)
		if err := rows.Scan(&sw.ID, &sw.CanonicalEventID, &sw.Outcome, &sw.BuyVenue, &sw.SellVenue,
			&sw.BuyMarketID, &sw.SellMarketID, &sw.BuyPrice, &sw.SellPrice, &sw.SizeSuggested,
			&sw.EdgeRaw, &sw.EdgeAfterCosts, &sw.Confidence, &sw.Status, &created,
			&sw.Sport, &sw.Competition, &sw.Match, &startNS); err != nil {
			return nil, fmt.Errorf("scan signal with event: %w", err)
		}
		if sw.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if sw.StartTimeUTC, err = parseTimePtr(startNS); err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

func scanSignal(r rowScanner) (Signal, error) {
	var (
		sig     Signal
		created string
	)
	if err := r.Scan(&sig.ID, &sig.CanonicalEventID, &sig.Outcome, &sig.BuyVenue, &sig.SellVenue,
		&sig.BuyMarketID, &sig.SellMarketID, &sig.BuyPrice, &sig.SellPrice, &sig.SizeSuggested,
		&sig.EdgeRaw, &sig.EdgeAfterCosts, &sig.Confidence, &sig.Status, &created); err != nil {
		return Signal{}, err
	}
	var err error
	if sig.CreatedAt, err = parseTime(created); err != nil {
		return Signal{}, err
	}
	return sig, nil
}
