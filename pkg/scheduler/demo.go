package scheduler

import (
	"time"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
)

// demoMarkets returns a small built-in market set so the pipeline stays
// alive when discovery comes back empty. Ids carry the "demo" marker the
// purge and snapshot filters key on. The Kalshi side quotes in cents to
// exercise the same coercion path as live payloads.
func demoMarkets(now time.Time) (poly, kalshi []canonical.VenueMarket) {
	nbaStart := now.Add(2 * time.Hour)
	uclStart := now.Add(4 * time.Hour)

	poly = []canonical.VenueMarket{
		canonical.BuildMarket(canonical.MarketInput{
			Venue:     canonical.VenuePoly,
			ID:        "poly-demo-nba-celtics-knicks",
			Title:     "Boston Celtics vs New York Knicks",
			Outcomes:  []string{"Yes", "No"},
			Start:     nbaStart,
			SportHint: "NBA",
			Raw: map[string]any{
				"yes_bid": 0.52, "yes_ask": 0.54,
				"yes_bid_size": 1200.0, "yes_ask_size": 900.0,
			},
		}),
		canonical.BuildMarket(canonical.MarketInput{
			Venue:           canonical.VenuePoly,
			ID:              "poly-demo-ucl-gal-juv",
			Title:           "Galatasaray vs Juventus",
			Outcomes:        []string{"Yes", "No"},
			Start:           uclStart,
			SportHint:       "SOCCER",
			CompetitionHint: "UCL",
			Raw: map[string]any{
				"yes_bid": 0.44, "yes_ask": 0.46,
				"yes_bid_size": 860.0, "yes_ask_size": 760.0,
			},
		}),
	}
	kalshi = []canonical.VenueMarket{
		canonical.BuildMarket(canonical.MarketInput{
			Venue:     canonical.VenueKalshi,
			ID:        "kalshi-demo-nba-celtics-knicks",
			Title:     "Boston Celtics vs New York Knicks",
			Outcomes:  []string{"Yes", "No"},
			Start:     nbaStart,
			SportHint: "NBA",
			Raw: map[string]any{
				"yes_bid": 57, "yes_ask": 59,
				"yes_bid_size": 1400.0, "yes_ask_size": 1100.0,
			},
		}),
		canonical.BuildMarket(canonical.MarketInput{
			Venue:           canonical.VenueKalshi,
			ID:              "kalshi-demo-ucl-gal-juv",
			Title:           "Galatasaray vs Juventus",
			Outcomes:        []string{"Yes", "No"},
			Start:           uclStart,
			SportHint:       "SOCCER",
			CompetitionHint: "UCL",
			Raw: map[string]any{
				"yes_bid": 49, "yes_ask": 51,
				"yes_bid_size": 900.0, "yes_ask_size": 1000.0,
			},
		}),
	}
	return poly, kalshi
}
