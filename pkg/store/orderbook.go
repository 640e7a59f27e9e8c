package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
)

// UpsertTop writes the latest top-of-book for (venue, market, outcome).
// Last writer wins.
func (s *Store) UpsertTop(ctx context.Context, t OrderBookTop) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	_, err := s.run.ExecContext(ctx, `
INSERT INTO orderbook_tops (venue, venue_market_id, outcome, best_bid, best_ask, bid_size, ask_size, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (venue, venue_market_id, outcome) DO UPDATE SET
	best_bid = excluded.best_bid,
	best_ask = excluded.best_ask,
	bid_size = excluded.bid_size,
	ask_size = excluded.ask_size,
	ts = excluded.ts`,
		t.Venue, t.VenueMarketID, t.Outcome,
		t.BestBid, t.BestAsk, t.BidSize, t.AskSize, fmtTime(t.Timestamp))
	if err != nil {
		return fmt.Errorf("upsert top %s/%s/%s: %w", t.Venue, t.VenueMarketID, t.Outcome, err)
	}
	return nil
}

// GetTop returns the latest top-of-book row, or nil when none exists.
func (s *Store) GetTop(ctx context.Context, venue canonical.Venue, marketID, outcome string) (*OrderBookTop, error) {
	row := s.run.QueryRowContext(ctx, `
SELECT venue, venue_market_id, outcome, best_bid, best_ask, bid_size, ask_size, ts
FROM orderbook_tops WHERE venue = ? AND venue_market_id = ? AND outcome = ?`,
		venue, marketID, outcome)
	t, err := scanTop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RecentTops returns the most recently updated rows, newest first.
// When excludeDemo is set, demo-marker rows are filtered out.
func (s *Store) RecentTops(ctx context.Context, limit int, excludeDemo bool) ([]OrderBookTop, error) {
	q := `
SELECT venue, venue_market_id, outcome, best_bid, best_ask, bid_size, ask_size, ts
FROM orderbook_tops`
	if excludeDemo {
		q += ` WHERE venue_market_id NOT LIKE '%demo%'`
	}
	q += ` ORDER BY ts DESC LIMIT ?`

	rows, err := s.run.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent tops: %w", err)
	}
	defer rows.Close()

	var out []OrderBookTop
	for rows.Next() {
		t, err := scanTop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTop(r rowScanner) (OrderBookTop, error) {
	var (
		t  OrderBookTop
		ts string
	)
	if err := r.Scan(&t.Venue, &t.VenueMarketID, &t.Outcome,
		&t.BestBid, &t.BestAsk, &t.BidSize, &t.AskSize, &ts); err != nil {
		return OrderBookTop{}, err
	}
	var err error
	if t.Timestamp, err = parseTime(ts); err != nil {
		return OrderBookTop{}, err
	}
	return t, nil
}
