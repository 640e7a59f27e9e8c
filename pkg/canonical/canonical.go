package canonical

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var (
	vsPattern   = regexp.MustCompile(`(?i)^(.+?)\s+(?:vs\.?|v\.?|@|at)\s+(.+)$`)
	dashPattern = regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`)
	spaceRun    = regexp.MustCompile(`\s+`)
)

// soccerTokens are single tokens that imply soccer.
var soccerTokens = map[string]bool{
	"soccer": true, "football": true,
	"epl": true, "ucl": true, "uel": true, "laliga": true, "mls": true,
}

var soccerPhrases = []string{
	"premier league", "champions league", "europa league", "la liga",
}

var soccerPrefixes = []string{"epl-", "ucl-", "uel-", "lal-", "laliga-"}

// competitionKeywords maps detection keywords to a competition code.
// Order matters: multi-word phrases are checked against the joined text.
var competitionKeywords = []struct {
	key  string
	comp Competition
}{
	{"epl", CompEPL},
	{"premier league", CompEPL},
	{"ucl", CompUCL},
	{"champions league", CompUCL},
	{"uel", CompUEL},
	{"europa league", CompUEL},
	{"laliga", CompLaLiga},
	{"la liga", CompLaLiga},
	{"primera division", CompLaLiga},
	{"mls", Competition("MLS")},
}

// MarketInput is the raw material for BuildMarket.
type MarketInput struct {
	Venue           Venue
	ID              string
	Title           string
	Outcomes        []string
	Start           any
	SportHint       string
	CompetitionHint string
	Category        string
	Tags            []string
	Raw             map[string]any
}

// BuildMarket normalizes one vendor listing into a VenueMarket.
func BuildMarket(in MarketInput) VenueMarket {
	sport := SportFromHint(in.SportHint)
	if sport == SportUnknown {
		sport = DetectSport(in.Title, in.Category, in.Tags)
	}
	comp := DetectCompetition(sport, in.CompetitionHint, in.Title, in.Category, in.Tags)

	home, away := ParseTeams(in.Title)
	if home != "" {
		home = CanonicalizeTeam(sport, home)
	}
	if away != "" {
		away = CanonicalizeTeam(sport, away)
	}

	return VenueMarket{
		Venue:         in.Venue,
		VenueMarketID: in.ID,
		Title:         in.Title,
		Sport:         sport,
		Competition:   comp,
		StartTimeUTC:  ParseTime(in.Start),
		HomeTeam:      home,
		AwayTeam:      away,
		MarketType:    MarketTypeFor(in.Outcomes),
		Outcomes:      in.Outcomes,
		Raw:           in.Raw,
	}
}

// SportFromHint maps an explicit vendor hint onto a Sport.
func SportFromHint(hint string) Sport {
	switch strings.ToUpper(strings.TrimSpace(hint)) {
	case "NBA", "BASKETBALL":
		return SportNBA
	case "SOCCER", "FOOTBALL":
		return SportSoccer
	}
	return SportUnknown
}

// DetectSport classifies a market by its title, category, and tags.
func DetectSport(title, category string, tags []string) Sport {
	chunks := make([]string, 0, 2+len(tags))
	chunks = append(chunks, strings.ToLower(title), strings.ToLower(category))
	for _, t := range tags {
		chunks = append(chunks, strings.ToLower(t))
	}
	joined := strings.Join(chunks, " ")
	tokens := tokenSet(joined)

	if tokens["nba"] || tokens["basketball"] {
		return SportNBA
	}
	for _, c := range chunks {
		if strings.HasPrefix(c, "nba-") {
			return SportNBA
		}
	}

	for tok := range soccerTokens {
		if tokens[tok] {
			return SportSoccer
		}
	}
	for _, p := range soccerPhrases {
		if strings.Contains(joined, p) {
			return SportSoccer
		}
	}
	for _, c := range chunks {
		for _, p := range soccerPrefixes {
			if strings.HasPrefix(c, p) {
				return SportSoccer
			}
		}
	}
	return SportUnknown
}

// DetectCompetition resolves the competition for a market. An explicit hint
// wins when it names a supported competition; otherwise soccer competitions
// are inferred from keywords, and anything outside the supported set maps to
// empty.
func DetectCompetition(sport Sport, hint, title, category string, tags []string) Competition {
	if h := Competition(strings.ToUpper(strings.TrimSpace(hint))); h != "" {
		if h == CompNBA || SupportedSoccer[h] {
			return h
		}
	}
	if sport == SportNBA {
		return CompNBA
	}
	if sport != SportSoccer {
		return ""
	}

	chunks := make([]string, 0, 2+len(tags))
	chunks = append(chunks, strings.ToLower(title), strings.ToLower(category))
	for _, t := range tags {
		chunks = append(chunks, strings.ToLower(t))
	}
	joined := strings.Join(chunks, " ")
	tokens := tokenSet(joined)

	var found Competition
	for _, kw := range competitionKeywords {
		if strings.Contains(kw.key, " ") {
			if strings.Contains(joined, kw.key) {
				found = kw.comp
				break
			}
		} else if tokens[kw.key] {
			found = kw.comp
			break
		}
	}
	if found == "" {
		for _, c := range chunks {
			switch {
			case strings.HasPrefix(c, "epl-"):
				found = CompEPL
			case strings.HasPrefix(c, "ucl-"):
				found = CompUCL
			case strings.HasPrefix(c, "uel-"):
				found = CompUEL
			case strings.HasPrefix(c, "lal-"), strings.HasPrefix(c, "laliga-"):
				found = CompLaLiga
			}
			if found != "" {
				break
			}
		}
	}
	if SupportedSoccer[found] {
		return found
	}
	return ""
}

// ParseTeams splits a market title into (home, away). Returns empty strings
// when no separator matches.
func ParseTeams(title string) (string, string) {
	t := strings.TrimSpace(spaceRun.ReplaceAllString(title, " "))
	for _, re := range []*regexp.Regexp{vsPattern, dashPattern} {
		if m := re.FindStringSubmatch(t); m != nil {
			home := strings.Trim(m[1], " .,:;!?\"'")
			away := strings.Trim(m[2], " .,:;!?\"'")
			if home != "" && away != "" {
				return home, away
			}
		}
	}
	return "", ""
}

// ParseTime coerces a vendor timestamp of any common shape to UTC.
// Accepts time.Time, epoch seconds, and ISO-8601-ish strings. Naive
// timestamps are tagged UTC. Returns nil when unparseable.
func ParseTime(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if t.IsZero() {
			return nil
		}
		u := t.UTC()
		return &u
	case *time.Time:
		if t == nil {
			return nil
		}
		return ParseTime(*t)
	case int:
		return epochTime(float64(t))
	case int64:
		return epochTime(float64(t))
	case float64:
		return epochTime(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochTime(f)
		}
		layouts := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.999999999",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04Z07:00",
			"2006-01-02",
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				u := parsed.UTC()
				return &u
			}
		}
		return nil
	default:
		return nil
	}
}

func epochTime(f float64) *time.Time {
	if f <= 0 {
		return nil
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	u := time.Unix(sec, nsec).UTC()
	return &u
}

// MarketTypeFor classifies outcomes. Exactly {yes,no} is binary, any
// three-way list is WINNER_3WAY, everything else OTHER.
func MarketTypeFor(outcomes []string) MarketType {
	if len(outcomes) == 2 {
		a := strings.ToLower(strings.TrimSpace(outcomes[0]))
		b := strings.ToLower(strings.TrimSpace(outcomes[1]))
		if (a == "yes" && b == "no") || (a == "no" && b == "yes") {
			return WinnerBinary
		}
	}
	if len(outcomes) == 3 {
		return Winner3Way
	}
	return OtherMarket
}

// DeterministicEventID derives a stable id for a real-world game. The key
// is lowercased "sport|competition|startRFC3339|home|away", SHA-1 digested,
// and the hex digest fed to UUIDv5 under the DNS namespace. Identical
// inputs always produce the same id.
func DeterministicEventID(sport Sport, comp Competition, start time.Time, home, away string) string {
	key := strings.ToLower(fmt.Sprintf("%s|%s|%s|%s|%s",
		sport, comp, start.UTC().Format(time.RFC3339), home, away))
	sum := sha1.Sum([]byte(key))
	digest := hex.EncodeToString(sum[:])
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(digest)).String()
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range nonAlnum.Split(strings.ToLower(s), -1) {
		if tok != "" {
			out[tok] = true
		}
	}
	return out
}
