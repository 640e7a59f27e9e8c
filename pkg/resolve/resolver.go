// Package resolve pairs venue-A markets with their venue-B counterparts and
// assigns each pair a canonical event identity and a confidence-gated status.
package resolve

import (
	"math"
	"time"

	json "github.com/goccy/go-json"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
	"github.com/phenomenon0/sportsarb/pkg/fuzzy"
	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

// Score thresholds and weights.
const (
	autoThreshold   = 0.86
	reviewThreshold = 0.80

	teamWeight  = 0.5
	timeWeight  = 0.3
	titleWeight = 0.2

	// flipped must beat aligned by this margin to count as an orientation flip
	flipMargin = 0.05
)

func timeWindow(sport canonical.Sport) time.Duration {
	if sport == canonical.SportNBA {
		return 6 * time.Hour
	}
	return 12 * time.Hour
}

// Evidence is the serialized scoring record stored on both bindings.
type Evidence struct {
	TeamScore          float64 `json:"team_score"`
	TimeScore          float64 `json:"time_score"`
	TitleScore         float64 `json:"title_score"`
	TotalScore         float64 `json:"total_score"`
	OrientationFlipped bool    `json:"orientation_flipped"`
	Overridden         bool    `json:"overridden,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

// ResolvedPair is one matched cross-venue market pair.
type ResolvedPair struct {
	EventID        string
	Sport          canonical.Sport
	Competition    canonical.Competition
	StartTimeUTC   time.Time
	HomeTeam       string
	AwayTeam       string
	TitleCanonical string
	A              canonical.VenueMarket
	B              canonical.VenueMarket
	Status         canonical.BindingStatus
	Confidence     float64
	Evidence       Evidence
}

// EvidenceJSON serializes the evidence blob for persistence.
func (p ResolvedPair) EvidenceJSON() string {
	b, err := json.Marshal(p.Evidence)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Resolve pairs each eligible A-market with its best-scoring B-market.
// now anchors the start-time fallback so results are reproducible in tests.
func Resolve(aMarkets, bMarkets []canonical.VenueMarket, overrides map[OverrideKey]Override, now time.Time) []ResolvedPair {
	var pairs []ResolvedPair
	for _, a := range aMarkets {
		if a.Sport != canonical.SportNBA && a.Sport != canonical.SportSoccer {
			continue
		}
		if !a.Competition.Supported() {
			continue
		}
		best, ok := bestCandidate(a, bMarkets)
		if !ok {
			continue
		}
		pairs = append(pairs, scorePair(a, best.market, best.score, overrides, now))
	}
	return pairs
}

type candidate struct {
	market canonical.VenueMarket
	score  matchScore
}

type matchScore struct {
	team, timeS, title, total float64
	flipped                   bool
}

func bestCandidate(a canonical.VenueMarket, bMarkets []canonical.VenueMarket) (candidate, bool) {
	window := timeWindow(a.Sport)
	var (
		best  candidate
		found bool
	)
	for _, b := range bMarkets {
		if b.Sport != a.Sport || !b.Competition.Supported() {
			continue
		}
		if a.Sport == canonical.SportSoccer && b.Competition != a.Competition {
			continue
		}
		if a.StartTimeUTC != nil && b.StartTimeUTC != nil {
			delta := a.StartTimeUTC.Sub(*b.StartTimeUTC)
			if delta < 0 {
				delta = -delta
			}
			if delta > window {
				continue
			}
		}
		s := score(a, b, window)
		if !found || s.total > best.score.total {
			best = candidate{market: b, score: s}
			found = true
		}
	}
	return best, found
}

func score(a, b canonical.VenueMarket, window time.Duration) matchScore {
	var s matchScore

	if a.HomeTeam != "" && a.AwayTeam != "" && b.HomeTeam != "" && b.AwayTeam != "" {
		aligned := (fuzzy.TokenSetSimilarity(a.HomeTeam, b.HomeTeam) + fuzzy.TokenSetSimilarity(a.AwayTeam, b.AwayTeam)) / 2
		flipped := (fuzzy.TokenSetSimilarity(a.HomeTeam, b.AwayTeam) + fuzzy.TokenSetSimilarity(a.AwayTeam, b.HomeTeam)) / 2
		s.team = math.Max(aligned, flipped)
		s.flipped = flipped > aligned+flipMargin
	}

	if a.StartTimeUTC != nil && b.StartTimeUTC != nil {
		delta := a.StartTimeUTC.Sub(*b.StartTimeUTC)
		if delta < 0 {
			delta = -delta
		}
		s.timeS = math.Max(0, 1-delta.Hours()/window.Hours())
	}

	s.title = fuzzy.TokenSetSimilarity(a.Title, b.Title)
	s.total = teamWeight*s.team + timeWeight*s.timeS + titleWeight*s.title
	return s
}

func scorePair(a, b canonical.VenueMarket, s matchScore, overrides map[OverrideKey]Override, now time.Time) ResolvedPair {
	start := pairStart(a, b, now)
	home, away := pairTeams(a, b)

	pair := ResolvedPair{
		Sport:          a.Sport,
		Competition:    a.Competition,
		StartTimeUTC:   start,
		HomeTeam:       home,
		AwayTeam:       away,
		TitleCanonical: home + " vs " + away,
		A:              a,
		B:              b,
		Evidence: Evidence{
			TeamScore:          round4(s.team),
			TimeScore:          round4(s.timeS),
			TitleScore:         round4(s.title),
			TotalScore:         round4(s.total),
			OrientationFlipped: s.flipped,
		},
	}
	pair.EventID = canonical.DeterministicEventID(pair.Sport, pair.Competition, start, home, away)

	if ov, ok := overrides[OverrideKey{a.VenueMarketID, b.VenueMarketID}]; ok {
		pair.Status = canonical.BindingStatus(ov.Status)
		pair.Confidence = ov.Confidence
		pair.Evidence.Overridden = true
		pair.Evidence.Notes = ov.Notes
		telemetry.L().Info("resolver override applied",
			"a_market", a.VenueMarketID, "b_market", b.VenueMarketID, "status", pair.Status)
		return pair
	}

	pair.Confidence = round4(s.total)
	switch {
	case a.MarketType != canonical.WinnerBinary || b.MarketType != canonical.WinnerBinary:
		pair.Status = canonical.StatusReview
	case s.flipped:
		pair.Status = canonical.StatusReview
	case a.StartTimeUTC == nil || b.StartTimeUTC == nil:
		pair.Status = canonical.StatusReview
	case s.total >= autoThreshold:
		pair.Status = canonical.StatusAuto
	case s.total >= reviewThreshold:
		pair.Status = canonical.StatusReview
	default:
		pair.Status = canonical.StatusRejected
	}
	return pair
}

func pairStart(a, b canonical.VenueMarket, now time.Time) time.Time {
	switch {
	case a.StartTimeUTC != nil && b.StartTimeUTC != nil:
		if b.StartTimeUTC.Before(*a.StartTimeUTC) {
			return b.StartTimeUTC.UTC()
		}
		return a.StartTimeUTC.UTC()
	case a.StartTimeUTC != nil:
		return a.StartTimeUTC.UTC()
	case b.StartTimeUTC != nil:
		return b.StartTimeUTC.UTC()
	default:
		return now.UTC()
	}
}

func pairTeams(a, b canonical.VenueMarket) (string, string) {
	home := a.HomeTeam
	if home == "" {
		home = b.HomeTeam
	}
	if home == "" {
		home = "unknown-home"
	}
	away := a.AwayTeam
	if away == "" {
		away = b.AwayTeam
	}
	if away == "" {
		away = "unknown-away"
	}
	return home, away
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
