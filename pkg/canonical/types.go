// Package canonical normalizes vendor market listings into a venue-neutral
// form: sport and competition detection, team-name canonicalization, title
// and time parsing, and deterministic event identity.
package canonical

import "time"

// Venue identifies the exchange a market trades on.
type Venue string

const (
	VenuePoly   Venue = "POLY"
	VenueKalshi Venue = "KALSHI"
)

// Sport is the top-level sport classification.
type Sport string

const (
	SportNBA     Sport = "NBA"
	SportSoccer  Sport = "SOCCER"
	SportUnknown Sport = "UNKNOWN"
)

// Competition is a supported league. Empty means undetected.
type Competition string

const (
	CompNBA    Competition = "NBA"
	CompEPL    Competition = "EPL"
	CompUCL    Competition = "UCL"
	CompUEL    Competition = "UEL"
	CompLaLiga Competition = "LALIGA"
)

// SupportedSoccer is the closed set of soccer competitions the detector trades.
var SupportedSoccer = map[Competition]bool{
	CompEPL:    true,
	CompUCL:    true,
	CompUEL:    true,
	CompLaLiga: true,
}

// Supported reports whether c is tradeable (NBA or a supported soccer league).
func (c Competition) Supported() bool {
	return c == CompNBA || SupportedSoccer[c]
}

// MarketType classifies a market's outcome structure.
type MarketType string

const (
	WinnerBinary MarketType = "WINNER_BINARY"
	Winner3Way   MarketType = "WINNER_3WAY"
	OtherMarket  MarketType = "OTHER"
)

// BindingStatus is the resolver's verdict for a market binding.
type BindingStatus string

const (
	StatusAuto     BindingStatus = "AUTO"
	StatusReview   BindingStatus = "REVIEW"
	StatusOverride BindingStatus = "OVERRIDE"
	StatusRejected BindingStatus = "REJECTED"
)

// Tradeable reports whether a binding with this status may feed signals.
func (s BindingStatus) Tradeable() bool {
	return s == StatusAuto || s == StatusOverride
}

// VenueMarket is a normalized listing from one venue. Transient; persisted
// state lives in events and bindings.
type VenueMarket struct {
	Venue         Venue
	VenueMarketID string
	Title         string
	Sport         Sport
	Competition   Competition
	StartTimeUTC  *time.Time
	HomeTeam      string
	AwayTeam      string
	MarketType    MarketType
	Outcomes      []string
	Raw           map[string]any
}
