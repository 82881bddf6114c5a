package nlp

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// MatcherOption configures a [NameMatcher].
type MatcherOption func(*NameMatcher)

// WithPhoneticThreshold sets the Jaro-Winkler score a name that sounds like
// the input needs to be accepted. Default: 0.80.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *NameMatcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the Jaro-Winkler score a name needs when nothing
// sounds like the input. Default: 0.90.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *NameMatcher) { m.fuzzyThreshold = threshold }
}

// NameMatcher finds the known author name closest to a possibly misspelt
// one. Candidates whose Double Metaphone codes overlap the input's are
// preferred; among them the highest Jaro-Winkler score wins. Without a
// phonetic candidate a stricter pure spelling threshold applies.
//
// A NameMatcher is read-only after construction and safe for concurrent use.
type NameMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewNameMatcher returns a matcher with the given options applied.
func NewNameMatcher(opts ...MatcherOption) *NameMatcher {
	m := &NameMatcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the entry of names that best matches input, its score, and
// whether any entry cleared the thresholds. An exact case-insensitive match
// scores 1. When nothing matches the returned name is empty.
func (m *NameMatcher) Match(input string, names []string) (string, float64, bool) {
	in := strings.ToLower(strings.TrimSpace(input))
	if in == "" || len(names) == 0 {
		return "", 0, false
	}
	inTokens := strings.Fields(in)
	inCodes := codesFor(inTokens)

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, name := range names {
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == "" {
			continue
		}
		if lower == in {
			return name, 1, true
		}
		tokens := strings.Fields(lower)
		score := similarity(inTokens, tokens, in, lower)

		if overlaps(inCodes, codesFor(tokens)) {
			if score >= m.phoneticThreshold && (!phonetic || score > bestScore) {
				best, bestScore, phonetic = name, score, true
			}
		} else if !phonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, bestScore, best != ""
}

func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// strings with spaces removed, and every pair of tokens.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
		for _, x := range aTokens {
			for _, y := range bTokens {
				if s := matchr.JaroWinkler(x, y, false); s > score {
					score = s
				}
			}
		}
	}
	return score
}
