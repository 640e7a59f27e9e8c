package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
)

// UpsertEvent inserts the event or refreshes its descriptive fields when
// the same deterministic id is re-derived. created_at is kept from the
// first insert.
func (s *Store) UpsertEvent(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.run.ExecContext(ctx, `
INSERT INTO events (id, sport, competition, start_time_utc, home_team, away_team, title_canonical, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	sport = excluded.sport,
	competition = excluded.competition,
	start_time_utc = excluded.start_time_utc,
	home_team = excluded.home_team,
	away_team = excluded.away_team,
	title_canonical = excluded.title_canonical`,
		e.ID, e.Sport, e.Competition, fmtTimePtr(e.StartTimeUTC),
		e.HomeTeam, e.AwayTeam, e.TitleCanonical, fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", e.ID, err)
	}
	return nil
}

// GetEvent returns one event or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (Event, error) {
	row := s.run.QueryRowContext(ctx, `
SELECT id, sport, competition, start_time_utc, home_team, away_team, title_canonical, created_at
FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return e, err
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.run.QueryContext(ctx, `
SELECT id, sport, competition, start_time_utc, home_team, away_team, title_canonical, created_at
FROM events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEvent(r rowScanner) (Event, error) {
	var (
		e       Event
		startNS sql.NullString
		created string
	)
	if err := r.Scan(&e.ID, &e.Sport, &e.Competition, &startNS,
		&e.HomeTeam, &e.AwayTeam, &e.TitleCanonical, &created); err != nil {
		return Event{}, err
	}
	var err error
	if e.StartTimeUTC, err = parseTimePtr(startNS); err != nil {
		return Event{}, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return Event{}, err
	}
	return e, nil
}

// UpsertBinding writes a binding. The (venue, venue_market_id) key wins on
// conflict; the event-side unique index is repaired by reassigning the row.
func (s *Store) UpsertBinding(ctx context.Context, b Binding) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	_, err := s.run.ExecContext(ctx, `
INSERT INTO bindings (canonical_event_id, venue, venue_market_id, outcome_schema, market_type, status, confidence, evidence, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (venue, venue_market_id) DO UPDATE SET
	canonical_event_id = excluded.canonical_event_id,
	outcome_schema = excluded.outcome_schema,
	market_type = excluded.market_type,
	status = excluded.status,
	confidence = excluded.confidence,
	evidence = excluded.evidence,
	updated_at = excluded.updated_at`,
		b.CanonicalEventID, b.Venue, b.VenueMarketID, b.OutcomeSchema,
		b.MarketType, b.Status, b.Confidence, b.Evidence, fmtTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert binding %s/%s: %w", b.Venue, b.VenueMarketID, err)
	}
	return nil
}

// GetBinding returns the binding for one venue market or ErrNotFound.
func (s *Store) GetBinding(ctx context.Context, venue canonical.Venue, marketID string) (Binding, error) {
	row := s.run.QueryRowContext(ctx, `
SELECT canonical_event_id, venue, venue_market_id, outcome_schema, market_type, status, confidence, evidence, updated_at
FROM bindings WHERE venue = ? AND venue_market_id = ?`, venue, marketID)
	b, err := scanBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Binding{}, fmt.Errorf("binding %s/%s: %w", venue, marketID, ErrNotFound)
	}
	return b, err
}

// ListBindings returns bindings, optionally filtered by status.
func (s *Store) ListBindings(ctx context.Context, status canonical.BindingStatus, limit int) ([]Binding, error) {
	q := `
SELECT canonical_event_id, venue, venue_market_id, outcome_schema, market_type, status, confidence, evidence, updated_at
FROM bindings`
	args := []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.run.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetBindingStatus updates status and confidence for one venue market.
// Used by the manual mapping actions.
func (s *Store) SetBindingStatus(ctx context.Context, venue canonical.Venue, marketID string, status canonical.BindingStatus, confidence float64) error {
	res, err := s.run.ExecContext(ctx, `
UPDATE bindings SET status = ?, confidence = ?, updated_at = ?
WHERE venue = ? AND venue_market_id = ?`,
		status, confidence, fmtTime(time.Now().UTC()), venue, marketID)
	if err != nil {
		return fmt.Errorf("set binding status %s/%s: %w", venue, marketID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("binding %s/%s: %w", venue, marketID, ErrNotFound)
	}
	return nil
}

func scanBinding(r rowScanner) (Binding, error) {
	var (
		b       Binding
		updated string
	)
	if err := r.Scan(&b.CanonicalEventID, &b.Venue, &b.VenueMarketID, &b.OutcomeSchema,
		&b.MarketType, &b.Status, &b.Confidence, &b.Evidence, &updated); err != nil {
		return Binding{}, err
	}
	var err error
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return Binding{}, err
	}
	return b, nil
}

// TradeablePair is an event with tradeable bindings on both venues.
type TradeablePair struct {
	Event  Event
	Poly   Binding
	Kalshi Binding
}

// ListTradeablePairs returns events holding one POLY and one KALSHI binding,
// both AUTO or OVERRIDE and WINNER_BINARY, with start strictly after the
// given cutoff.
func (s *Store) ListTradeablePairs(ctx context.Context, notBefore time.Time) ([]TradeablePair, error) {
	rows, err := s.run.QueryContext(ctx, `
SELECT e.id, e.sport, e.competition, e.start_time_utc, e.home_team, e.away_team, e.title_canonical, e.created_at,
       p.canonical_event_id, p.venue, p.venue_market_id, p.outcome_schema, p.market_type, p.status, p.confidence, p.evidence, p.updated_at,
       k.canonical_event_id, k.venue, k.venue_market_id, k.outcome_schema, k.market_type, k.status, k.confidence, k.evidence, k.updated_at
FROM events e
JOIN bindings p ON p.canonical_event_id = e.id AND p.venue = 'POLY'
JOIN bindings k ON k.canonical_event_id = e.id AND k.venue = 'KALSHI'
WHERE p.status IN ('AUTO','OVERRIDE') AND k.status IN ('AUTO','OVERRIDE')
  AND p.market_type = 'WINNER_BINARY' AND k.market_type = 'WINNER_BINARY'
  AND e.start_time_utc IS NOT NULL AND e.start_time_utc > ?`,
		fmtTime(notBefore))
	if err != nil {
		return nil, fmt.Errorf("list tradeable pairs: %w", err)
	}
	defer rows.Close()

	var out []TradeablePair
	for rows.Next() {
		var (
			pair             TradeablePair
			startNS          sql.NullString
			created, pu, ku  string
		)
		e := &pair.Event
		p := &pair.Poly
		k := &pair.Kalshi
		if err := rows.Scan(
			&e.ID, &e.Sport, &e.Competition, &startNS, &e.HomeTeam, &e.AwayTeam, &e.TitleCanonical, &created,
			&p.CanonicalEventID, &p.Venue, &p.VenueMarketID, &p.OutcomeSchema, &p.MarketType, &p.Status, &p.Confidence, &p.Evidence, &pu,
			&k.CanonicalEventID, &k.Venue, &k.VenueMarketID, &k.OutcomeSchema, &k.MarketType, &k.Status, &k.Confidence, &k.Evidence, &ku,
		); err != nil {
			return nil, fmt.Errorf("scan tradeable pair: %w", err)
		}
		if e.StartTimeUTC, err = parseTimePtr(startNS); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = parseTime(pu); err != nil {
			return nil, err
		}
		if k.UpdatedAt, err = parseTime(ku); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

// PurgeDemoRows deletes rows whose market ids carry the demo marker.
func (s *Store) PurgeDemoRows(ctx context.Context) error {
	stmts := []string{
		`DELETE FROM bindings WHERE venue_market_id LIKE '%demo%'`,
		`DELETE FROM orderbook_tops WHERE venue_market_id LIKE '%demo%'`,
		`DELETE FROM signals WHERE buy_market_id LIKE '%demo%' OR sell_market_id LIKE '%demo%'`,
		`DELETE FROM events WHERE id NOT IN (SELECT canonical_event_id FROM bindings)`,
	}
	for _, q := range stmts {
		if _, err := s.run.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("purge demo rows: %w", err)
		}
	}
	return nil
}
