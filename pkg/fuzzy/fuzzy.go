// Package fuzzy implements token-set title similarity on top of a
// Ratcliff-Obershelp sequence ratio.
package fuzzy

import (
	"regexp"
	"sort"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Ratio returns the Ratcliff-Obershelp similarity of two strings in [0, 1]:
// twice the total matched length over the combined length. Empty vs empty
// is 1.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra)+len(rb) == 0 {
		return 1
	}
	matched := 0
	for _, blk := range matchingBlocks(ra, rb) {
		matched += blk.size
	}
	return 2 * float64(matched) / float64(len(ra)+len(rb))
}

// TokenSetSimilarity compares two titles by their token sets: the maximum
// pairwise Ratio over the sorted intersection string and the two full
// sorted token strings. Returns 0 when either side has no tokens.
// Symmetric in its arguments.
func TokenSetSimilarity(a, b string) float64 {
	sa := tokens(a)
	sb := tokens(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	var inter []string
	for tok := range sa {
		if sb[tok] {
			inter = append(inter, tok)
		}
	}
	sort.Strings(inter)

	base := strings.Join(inter, " ")
	withA := strings.Join(sortedTokens(sa), " ")
	withB := strings.Join(sortedTokens(sb), " ")

	best := Ratio(base, withA)
	if r := Ratio(base, withB); r > best {
		best = r
	}
	if r := Ratio(withA, withB); r > best {
		best = r
	}
	return best
}

func tokens(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range nonAlnum.Split(strings.ToLower(s), -1) {
		if tok != "" {
			out[tok] = true
		}
	}
	return out
}

func sortedTokens(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

type block struct {
	a, b, size int
}

type span struct {
	alo, ahi, blo, bhi int
}

// matchingBlocks finds non-overlapping matching runs, longest-match first,
// recursing into the regions on either side.
func matchingBlocks(a, b []rune) []block {
	b2j := map[rune][]int{}
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	var blocks []block
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		m := longestMatch(a, b2j, s)
		if m.size == 0 {
			continue
		}
		blocks = append(blocks, m)
		if s.alo < m.a && s.blo < m.b {
			queue = append(queue, span{s.alo, m.a, s.blo, m.b})
		}
		if m.a+m.size < s.ahi && m.b+m.size < s.bhi {
			queue = append(queue, span{m.a + m.size, s.ahi, m.b + m.size, s.bhi})
		}
	}
	return blocks
}

func longestMatch(a []rune, b2j map[rune][]int, s span) block {
	best := block{a: s.alo, b: s.blo}
	j2len := map[int]int{}
	for i := s.alo; i < s.ahi; i++ {
		newj2len := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < s.blo {
				continue
			}
			if j >= s.bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > best.size {
				best = block{a: i - k + 1, b: j - k + 1, size: k}
			}
		}
		j2len = newj2len
	}
	return best
}
