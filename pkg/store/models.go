package store

import (
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
)

// Event is a persisted canonical event row.
type Event struct {
	ID             string                `json:"id"`
	Sport          canonical.Sport       `json:"sport"`
	Competition    canonical.Competition `json:"competition"`
	StartTimeUTC   *time.Time            `json:"start_time_utc"`
	HomeTeam       string                `json:"home_team"`
	AwayTeam       string                `json:"away_team"`
	TitleCanonical string                `json:"title_canonical"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Binding links a canonical event to one venue's market.
type Binding struct {
	CanonicalEventID string                  `json:"canonical_event_id"`
	Venue            canonical.Venue         `json:"venue"`
	VenueMarketID    string                  `json:"venue_market_id"`
	OutcomeSchema    string                  `json:"outcome_schema"`
	MarketType       canonical.MarketType    `json:"market_type"`
	Status           canonical.BindingStatus `json:"status"`
	Confidence       float64                 `json:"confidence"`
	Evidence         string                  `json:"evidence"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// OrderBookTop is the latest top-of-book for one (venue, market, outcome).
type OrderBookTop struct {
	Venue         canonical.Venue `json:"venue"`
	VenueMarketID string          `json:"venue_market_id"`
	Outcome       string          `json:"outcome"`
	BestBid       float64         `json:"best_bid"`
	BestAsk       float64         `json:"best_ask"`
	BidSize       float64         `json:"bid_size"`
	AskSize       float64         `json:"ask_size"`
	Timestamp     time.Time       `json:"ts"`
}

// Signal is a persisted mispricing signal.
type Signal struct {
	ID               string          `json:"id"`
	CanonicalEventID string          `json:"canonical_event_id"`
	Outcome          string          `json:"outcome"`
	BuyVenue         canonical.Venue `json:"buy_venue"`
	SellVenue        canonical.Venue `json:"sell_venue"`
	BuyMarketID      string          `json:"buy_market_id"`
	SellMarketID     string          `json:"sell_market_id"`
	BuyPrice         float64         `json:"buy_price"`
	SellPrice        float64         `json:"sell_price"`
	SizeSuggested    float64         `json:"size_suggested"`
	EdgeRaw          float64         `json:"edge_raw"`
	EdgeAfterCosts   float64         `json:"edge_after_costs"`
	Confidence       float64         `json:"confidence"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SignalWithEvent joins a signal with its event metadata for snapshots.
type SignalWithEvent struct {
	Signal
	Sport        canonical.Sport       `json:"sport"`
	Competition  canonical.Competition `json:"competition"`
	Match        string                `json:"match"`
	StartTimeUTC *time.Time            `json:"start_time_utc"`
}

// Position lifecycle states.
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Position is a paper-traded pair position.
type Position struct {
	ID               string     `json:"id"`
	CanonicalEventID string     `json:"canonical_event_id"`
	SignalID         string     `json:"signal_id"`
	Outcome          string     `json:"outcome"`
	BuyVenue         canonical.Venue `json:"buy_venue"`
	SellVenue        canonical.Venue `json:"sell_venue"`
	BuyMarketID      string     `json:"buy_market_id"`
	SellMarketID     string     `json:"sell_market_id"`
	Size             float64    `json:"size"`
	EntryBuyPrice    float64    `json:"entry_buy_price"`
	EntrySellPrice   float64    `json:"entry_sell_price"`
	FillRatio        float64    `json:"fill_ratio"`
	Status           string     `json:"status"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at"`
	RealizedPnL      float64    `json:"realized_pnl"`
	UnrealizedPnL    float64    `json:"unrealized_pnl"`
}

// Fill legs.
const (
	LegBuy  = "BUY"
	LegSell = "SELL"
)

// Fill records one simulated leg execution.
type Fill struct {
	ID            string    `json:"id"`
	PositionID    string    `json:"position_id"`
	Leg           string    `json:"leg"`
	LimitPrice    float64   `json:"limit_price"`
	FillPrice     float64   `json:"fill_price"`
	RequestedSize float64   `json:"requested_size"`
	FilledSize    float64   `json:"filled_size"`
	Probability   float64   `json:"probability"`
	Timestamp     time.Time `json:"ts"`
}

// Snapshot is one point on the equity curve.
type Snapshot struct {
	Timestamp     time.Time `json:"ts"`
	Equity        float64   `json:"equity"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// PaperStats summarizes the paper book.
type PaperStats struct {
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	TotalRealized   float64 `json:"total_realized"`
	TotalUnrealized float64 `json:"total_unrealized"`
	Equity          float64 `json:"equity"`
}
