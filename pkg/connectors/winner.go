package connectors

import (
	"strings"

	"github.com/phenomenon0/sportsarb/pkg/canonical"
)

// noiseMarkers disqualify a question outright: props, spreads, totals.
var noiseMarkers = []string{
	"spread", "o/u", "over ", "under ", "assists", "points", "rebounds",
	"threes", "3-pointers", "turnovers", "steals", "blocks", "1h",
	"first half", "double-double", "triple-double", "margins",
	"by more than", "by at least",
}

// isWinnerQuestion keeps only match-winner style markets.
func isWinnerQuestion(question string, outcomes []string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return false
	}
	for _, marker := range noiseMarkers {
		if strings.Contains(q, marker) {
			return false
		}
	}

	switch {
	case strings.Contains(q, "end in a draw"):
		return true
	case strings.Contains(q, " winner"):
		return true
	case strings.HasSuffix(q, "winner?"):
		return true
	case strings.Contains(q, " win on "):
		return true
	case strings.HasPrefix(q, "will ") && strings.Contains(q, " win "):
		return true
	}

	if len(outcomes) == 2 && (strings.Contains(q, " vs") || strings.Contains(q, " at ")) {
		lo := []string{
			strings.ToLower(strings.TrimSpace(outcomes[0])),
			strings.ToLower(strings.TrimSpace(outcomes[1])),
		}
		yesNo := (lo[0] == "yes" && lo[1] == "no") || (lo[0] == "no" && lo[1] == "yes")
		overUnder := (lo[0] == "over" && lo[1] == "under") || (lo[0] == "under" && lo[1] == "over")
		if !yesNo && !overUnder {
			return true
		}
	}
	return false
}

// drawDetected reports whether any of the market's text or outcome labels
// indicate a three-way (home/draw/away) structure.
func drawDetected(outcomes []string, texts ...string) bool {
	for _, o := range outcomes {
		lo := strings.ToLower(o)
		if strings.Contains(lo, "draw") || strings.Contains(lo, "tie") {
			return true
		}
	}
	for _, t := range texts {
		lt := strings.ToLower(t)
		if strings.Contains(lt, "draw") || strings.Contains(lt, "tie") {
			return true
		}
	}
	return false
}

// applyDrawRewrite rewrites a draw market to the three-way schema.
func applyDrawRewrite(m *canonical.VenueMarket) {
	m.Outcomes = []string{"HOME", "DRAW", "AWAY"}
	m.MarketType = canonical.Winner3Way
}

// inScope keeps only (NBA, NBA) and (SOCCER, supported soccer league).
func inScope(m canonical.VenueMarket) bool {
	switch m.Sport {
	case canonical.SportNBA:
		return m.Competition == canonical.CompNBA
	case canonical.SportSoccer:
		return canonical.SupportedSoccer[m.Competition]
	default:
		return false
	}
}
