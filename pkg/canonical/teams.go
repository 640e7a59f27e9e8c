package canonical

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are dropped from team names before alias lookup.
var stopwords = map[string]bool{
	"fc": true, "afc": true, "cf": true, "sc": true,
	"club": true, "the": true,
}

// nbaAliases maps canonical NBA team names to the spellings vendors use.
var nbaAliases = map[string][]string{
	"atlanta hawks":          {"atlanta", "hawks", "atl"},
	"boston celtics":         {"boston", "celtics", "bos"},
	"brooklyn nets":          {"brooklyn", "nets", "bkn"},
	"charlotte hornets":      {"charlotte", "hornets", "cha"},
	"chicago bulls":          {"chicago", "bulls", "chi"},
	"cleveland cavaliers":    {"cleveland", "cavaliers", "cavs", "cle"},
	"dallas mavericks":       {"dallas", "mavericks", "mavs", "dal"},
	"denver nuggets":         {"denver", "nuggets", "den"},
	"detroit pistons":        {"detroit", "pistons", "det"},
	"golden state warriors":  {"golden state", "warriors", "gsw"},
	"houston rockets":        {"houston", "rockets", "hou"},
	"indiana pacers":         {"indiana", "pacers", "ind"},
	"los angeles clippers":   {"la clippers", "clippers", "lac"},
	"los angeles lakers":     {"la lakers", "lakers", "lal"},
	"memphis grizzlies":      {"memphis", "grizzlies", "mem"},
	"miami heat":             {"miami", "heat", "mia"},
	"milwaukee bucks":        {"milwaukee", "bucks", "mil"},
	"minnesota timberwolves": {"minnesota", "timberwolves", "wolves", "min"},
	"new orleans pelicans":   {"new orleans", "pelicans", "nop"},
	"new york knicks":        {"new york", "knicks", "nyk"},
	"oklahoma city thunder":  {"oklahoma city", "thunder", "okc"},
	"orlando magic":          {"orlando", "magic", "orl"},
	"philadelphia 76ers":     {"philadelphia", "76ers", "sixers", "phi"},
	"phoenix suns":           {"phoenix", "suns", "phx"},
	"portland trail blazers": {"portland", "trail blazers", "blazers", "por"},
	"sacramento kings":       {"sacramento", "kings", "sac"},
	"san antonio spurs":      {"san antonio", "spurs", "sas"},
	"toronto raptors":        {"toronto", "raptors", "tor"},
	"utah jazz":              {"utah", "jazz", "uta"},
	"washington wizards":     {"washington", "wizards", "was"},
}

// soccerAliases covers EPL, UCL/UEL regulars, and LaLiga.
var soccerAliases = map[string][]string{
	"arsenal":                 {"arsenal", "gunners", "ars"},
	"aston villa":             {"aston villa", "villa", "avl"},
	"bournemouth":             {"bournemouth", "afc bournemouth", "bou"},
	"brentford":               {"brentford", "bre"},
	"brighton":                {"brighton", "brighton hove albion", "brighton and hove albion", "bha"},
	"chelsea":                 {"chelsea", "blues", "che"},
	"crystal palace":          {"crystal palace", "palace", "cry"},
	"everton":                 {"everton", "eve"},
	"fulham":                  {"fulham", "ful"},
	"ipswich town":            {"ipswich", "ipswich town", "ips"},
	"leicester city":          {"leicester", "leicester city", "lei"},
	"liverpool":               {"liverpool", "liv"},
	"manchester city":         {"manchester city", "man city", "mci"},
	"manchester united":       {"manchester united", "man utd", "man united", "mun"},
	"newcastle united":        {"newcastle", "newcastle united", "new"},
	"nottingham forest":       {"nottingham forest", "forest", "nfo"},
	"southampton":             {"southampton", "sou"},
	"tottenham hotspur":       {"tottenham", "tottenham hotspur", "spurs", "tot"},
	"west ham united":         {"west ham", "west ham united", "whu"},
	"wolverhampton wanderers": {"wolverhampton", "wolves", "wolverhampton wanderers", "wol"},

	"real madrid":       {"real madrid", "madrid", "rma"},
	"barcelona":         {"barcelona", "barca", "fcb"},
	"atletico madrid":   {"atletico madrid", "atletico", "atm"},
	"athletic bilbao":   {"athletic bilbao", "athletic club", "bilbao"},
	"real sociedad":     {"real sociedad", "sociedad"},
	"real betis":        {"real betis", "betis"},
	"sevilla":           {"sevilla"},
	"valencia":          {"valencia"},
	"villarreal":        {"villarreal"},
	"girona":            {"girona"},
	"celta vigo":        {"celta vigo", "celta"},
	"getafe":            {"getafe"},
	"osasuna":           {"osasuna"},
	"mallorca":          {"mallorca", "rcd mallorca"},
	"rayo vallecano":    {"rayo vallecano", "rayo"},

	"bayern munich":       {"bayern munich", "bayern", "fc bayern"},
	"borussia dortmund":   {"borussia dortmund", "dortmund", "bvb"},
	"bayer leverkusen":    {"bayer leverkusen", "leverkusen"},
	"rb leipzig":          {"rb leipzig", "leipzig"},
	"paris saint-germain": {"paris saint germain", "psg", "paris sg"},
	"marseille":           {"marseille", "olympique marseille"},
	"monaco":              {"monaco", "as monaco"},
	"lille":               {"lille", "losc"},
	"juventus":            {"juventus", "juve"},
	"inter milan":         {"inter milan", "inter", "internazionale"},
	"ac milan":            {"ac milan", "milan"},
	"napoli":              {"napoli", "ssc napoli"},
	"atalanta":            {"atalanta"},
	"roma":                {"roma", "as roma"},
	"lazio":               {"lazio", "ss lazio"},
	"porto":               {"porto", "fc porto"},
	"benfica":             {"benfica", "sl benfica"},
	"sporting cp":         {"sporting cp", "sporting lisbon", "sporting"},
	"ajax":                {"ajax", "afc ajax"},
	"psv eindhoven":       {"psv eindhoven", "psv"},
	"feyenoord":           {"feyenoord"},
	"celtic":              {"celtic", "glasgow celtic"},
	"rangers":             {"rangers", "glasgow rangers"},
	"galatasaray":         {"galatasaray", "gala"},
	"fenerbahce":          {"fenerbahce"},
	"shakhtar donetsk":    {"shakhtar donetsk", "shakhtar"},
	"red bull salzburg":   {"red bull salzburg", "salzburg"},
	"club brugge":         {"club brugge", "brugge"},
}

type aliasEntry struct {
	alias     string
	canonical string
}

// aliasIndex holds the normalized exact-match map and a longest-first list
// for whole-word containment fallback.
type aliasIndex struct {
	exact   map[string]string
	ordered []aliasEntry
}

var sportIndex = map[Sport]*aliasIndex{
	SportNBA:    buildIndex(nbaAliases),
	SportSoccer: buildIndex(soccerAliases),
}

func buildIndex(table map[string][]string) *aliasIndex {
	idx := &aliasIndex{exact: map[string]string{}}
	for canonical, aliases := range table {
		keys := append([]string{canonical}, aliases...)
		for _, a := range keys {
			n := NormalizeTeam(a)
			if n == "" {
				continue
			}
			idx.exact[n] = canonical
			idx.ordered = append(idx.ordered, aliasEntry{alias: n, canonical: canonical})
		}
	}
	// Longest alias first so "golden state" wins before "den" is even tried.
	sort.Slice(idx.ordered, func(i, j int) bool {
		if len(idx.ordered[i].alias) != len(idx.ordered[j].alias) {
			return len(idx.ordered[i].alias) > len(idx.ordered[j].alias)
		}
		return idx.ordered[i].alias < idx.ordered[j].alias
	})
	return idx
}

var accentFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeTeam lowercases, folds accents, strips punctuation, and drops
// stopwords like "fc".
func NormalizeTeam(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s, _, _ = transform.String(accentFold, s)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	kept := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// CanonicalizeTeam resolves a raw team name to its canonical form for the
// given sport. Exact alias hits win; otherwise the longest alias contained
// in the name as whole words is used. Unknown names pass through normalized.
// The same alias may resolve differently per sport ("spurs").
func CanonicalizeTeam(sport Sport, raw string) string {
	n := NormalizeTeam(raw)
	if n == "" {
		return ""
	}
	idx, ok := sportIndex[sport]
	if !ok {
		return n
	}
	if canonical, ok := idx.exact[n]; ok {
		return canonical
	}
	padded := " " + n + " "
	for _, e := range idx.ordered {
		if strings.Contains(padded, " "+e.alias+" ") {
			return e.canonical
		}
	}
	return n
}
