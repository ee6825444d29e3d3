// internal/fuzzy/fuzzy.go

// Package fuzzy scores free-text guesses against canonical target names.
// All functions are pure; the package holds no mutable state.
package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Thresholds configures the acceptance policy for non-exact matches.
type Thresholds struct {
	// Similarity is the edit-distance similarity score (0-100) at or
	// above which a guess is accepted.
	Similarity float64

	// ShortSimilarity is the stricter score a guess must exceed when
	// the target is at most ShortLength characters ("Chad" vs "Chat"
	// must fail).
	ShortSimilarity float64

	// ShortLength is the normalized target length at or below which
	// ShortSimilarity applies.
	ShortLength int
}

// DefaultThresholds returns the standard acceptance policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Similarity:      85,
		ShortSimilarity: 95,
		ShortLength:     4,
	}
}

var combiningMarks = runes.In(unicode.Mn)

// Normalize lowercases s, strips diacritics via NFD decomposition,
// collapses non-alphanumeric runs to single spaces and trims the result.
// Malformed input yields the empty string.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(combiningMarks))
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	var b strings.Builder
	pendingSpace := false
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		} else {
			pendingSpace = true
		}
	}
	return b.String()
}

// Tokens splits the normalized form of s into its whitespace-separated
// tokens.
func Tokens(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}

// Levenshtein computes the classic dynamic-programming edit distance
// between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Evaluate reports whether input is an acceptable guess for target.
// synonyms maps normalized alternate spellings to the canonical display
// name (e.g. "usa" -> "United States"). The function never panics on
// malformed input; anything that normalizes to the empty string is not
// correct.
func Evaluate(input, target string, synonyms map[string]string, th Thresholds) bool {
	in := Normalize(input)
	tgt := Normalize(target)
	if in == "" || tgt == "" {
		return false
	}

	if in == tgt {
		return true
	}

	if synonyms != nil {
		if mapped, ok := synonyms[in]; ok && Normalize(mapped) == tgt {
			return true
		}
	}

	dist := Levenshtein(in, tgt)
	maxLen := len([]rune(in))
	if l := len([]rune(tgt)); l > maxLen {
		maxLen = l
	}
	levScore := (1 - float64(dist)/float64(maxLen)) * 100

	// Short targets are unforgiving: the token-overlap path does not
	// apply to them.
	if len(tgt) <= th.ShortLength {
		return levScore > th.ShortSimilarity
	}

	targetTokens := strings.Fields(tgt)
	inputTokens := strings.Fields(in)
	inputSet := make(map[string]struct{}, len(inputTokens))
	for _, t := range inputTokens {
		inputSet[t] = struct{}{}
	}
	hits := 0
	for _, t := range targetTokens {
		if _, ok := inputSet[t]; ok {
			hits++
		}
	}
	tokenScore := float64(hits) / float64(len(targetTokens)) * 100

	return levScore >= th.Similarity || tokenScore >= 100
}
