package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertPosition records a new paper position.
func (s *Store) InsertPosition(ctx context.Context, p Position) (Position, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = PositionOpen
	}
	_, err := s.run.ExecContext(ctx, `
INSERT INTO paper_positions (id, canonical_event_id, signal_id, outcome, buy_venue, sell_venue,
                             buy_market_id, sell_market_id, size, entry_buy_price, entry_sell_price,
                             fill_ratio, status, opened_at, closed_at, realized_pnl, unrealized_pnl)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CanonicalEventID, p.SignalID, p.Outcome, p.BuyVenue, p.SellVenue,
		p.BuyMarketID, p.SellMarketID, p.Size, p.EntryBuyPrice, p.EntrySellPrice,
		p.FillRatio, p.Status, fmtTime(p.OpenedAt), fmtTimePtr(p.ClosedAt),
		p.RealizedPnL, p.UnrealizedPnL)
	if err != nil {
		return Position{}, fmt.Errorf("insert position: %w", err)
	}
	return p, nil
}

const positionSelect = `
SELECT id, canonical_event_id, signal_id, outcome, buy_venue, sell_venue,
       buy_market_id, sell_market_id, size, entry_buy_price, entry_sell_price,
       fill_ratio, status, opened_at, closed_at, realized_pnl, unrealized_pnl
FROM paper_positions`

// GetPosition returns one position or ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, id string) (Position, error) {
	row := s.run.QueryRowContext(ctx, positionSelect+` WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	return p, err
}

// ListPositions returns positions filtered by status ("" for all).
func (s *Store) ListPositions(ctx context.Context, status string) ([]Position, error) {
	q := positionSelect
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY opened_at DESC`

	rows, err := s.run.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePosition persists mutable position fields (status, pnl, closed_at).
func (s *Store) UpdatePosition(ctx context.Context, p Position) error {
	res, err := s.run.ExecContext(ctx, `
UPDATE paper_positions
SET status = ?, closed_at = ?, realized_pnl = ?, unrealized_pnl = ?
WHERE id = ?`,
		p.Status, fmtTimePtr(p.ClosedAt), p.RealizedPnL, p.UnrealizedPnL, p.ID)
	if err != nil {
		return fmt.Errorf("update position %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func scanPosition(r rowScanner) (Position, error) {
	var (
		p        Position
		opened   string
		closedNS sql.NullString
	)
	if err := r.Scan(&p.ID, &p.CanonicalEventID, &p.SignalID, &p.Outcome, &p.BuyVenue, &p.SellVenue,
		&p.BuyMarketID, &p.SellMarketID, &p.Size, &p.EntryBuyPrice, &p.EntrySellPrice,
		&p.FillRatio, &p.Status, &opened, &closedNS, &p.RealizedPnL, &p.UnrealizedPnL); err != nil {
		return Position{}, err
	}
	var err error
	if p.OpenedAt, err = parseTime(opened); err != nil {
		return Position{}, err
	}
	if p.ClosedAt, err = parseTimePtr(closedNS); err != nil {
		return Position{}, err
	}
	return p, nil
}

// InsertFill records one simulated leg execution.
func (s *Store) InsertFill(ctx context.Context, f Fill) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	_, err := s.run.ExecContext(ctx, `
INSERT INTO paper_fills (id, position_id, leg, limit_price, fill_price, requested_size, filled_size, probability, ts)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.PositionID, f.Leg, f.LimitPrice, f.FillPrice,
		f.RequestedSize, f.FilledSize, f.Probability, fmtTime(f.Timestamp))
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// ListFills returns the fills for one position, oldest first.
func (s *Store) ListFills(ctx context.Context, positionID string) ([]Fill, error) {
	rows, err := s.run.QueryContext(ctx, `
SELECT id, position_id, leg, limit_price, fill_price, requested_size, filled_size, probability, ts
FROM paper_fills WHERE position_id = ? ORDER BY ts`, positionID)
	if err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}
	defer rows.Close()

	var out []Fill
	for rows.Next() {
		var (
			f  Fill
			ts string
		)
		if err := rows.Scan(&f.ID, &f.PositionID, &f.Leg, &f.LimitPrice, &f.FillPrice,
			&f.RequestedSize, &f.FilledSize, &f.Probability, &ts); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		if f.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertSnapshot appends one equity-curve point.
func (s *Store) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	_, err := s.run.ExecContext(ctx, `
INSERT INTO portfolio_snapshots (ts, equity, realized_pnl, unrealized_pnl)
VALUES (?, ?, ?, ?)`,
		fmtTime(snap.Timestamp), snap.Equity, snap.RealizedPnL, snap.UnrealizedPnL)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// RecentSnapshots returns the newest n points in chronological order.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.run.QueryContext(ctx, `
SELECT ts, equity, realized_pnl, unrealized_pnl FROM
  (SELECT ts, equity, realized_pnl, unrealized_pnl
   FROM portfolio_snapshots ORDER BY ts DESC LIMIT ?)
ORDER BY ts`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			snap Snapshot
			ts   string
		)
		if err := rows.Scan(&ts, &snap.Equity, &snap.RealizedPnL, &snap.UnrealizedPnL); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if snap.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Stats summarizes the paper book: open/closed counts, realized over closed
// positions, unrealized over open ones, equity as their sum.
func (s *Store) Stats(ctx context.Context) (PaperStats, error) {
	var st PaperStats
	row := s.run.QueryRowContext(ctx, `
SELECT
	COUNT(CASE WHEN status = 'OPEN' THEN 1 END),
	COUNT(CASE WHEN status = 'CLOSED' THEN 1 END),
	COALESCE(SUM(CASE WHEN status = 'CLOSED' THEN realized_pnl END), 0),
	COALESCE(SUM(CASE WHEN status = 'OPEN' THEN unrealized_pnl END), 0)
FROM paper_positions`)
	if err := row.Scan(&st.OpenPositions, &st.ClosedPositions, &st.TotalRealized, &st.TotalUnrealized); err != nil {
		return PaperStats{}, fmt.Errorf("paper stats: %w", err)
	}
	st.Equity = st.TotalRealized + st.TotalUnrealized
	return st, nil
}
