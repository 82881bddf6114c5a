package index

import (
	"slices"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// maxPrefixGrowth bounds how many characters a prefix expansion may add.
	maxPrefixGrowth = 3

	// minExpandLen is the shortest token that is expanded at all.
	minExpandLen = 3

	// phoneticThreshold is the Jaro-Winkler score a same-sounding term needs.
	phoneticThreshold = 0.9
)

// suffixes are stripped, longest first, to find a term's stem.
var suffixes = []string{"ing", "ed", "es", "ly", "s"}

// stem strips one common English suffix, keeping at least three characters.
func stem(term string) string {
	for _, suf := range suffixes {
		if strings.HasSuffix(term, suf) && len(term)-len(suf) >= minExpandLen {
			return term[:len(term)-len(suf)]
		}
	}
	return term
}

// vocabulary tracks every indexed term with the side tables used for
// expansion. Callers hold the index lock.
type vocabulary struct {
	sorted   []string
	bulk     bool // while set, add appends and seal sorts once

	stems    map[string][]string
	phonetic map[string][]string
}

func newVocabulary() *vocabulary {
	return &vocabulary{
		stems:    make(map[string][]string),
		phonetic: make(map[string][]string),
	}
}

// startBulk defers sorting until seal, for loading many terms at once.
func (v *vocabulary) startBulk() { v.bulk = true }

// seal sorts the terms added since startBulk.
func (v *vocabulary) seal() {
	slices.Sort(v.sorted)
	v.sorted = slices.Compact(v.sorted)
	v.bulk = false
}

// add registers a term seen for the first time.
func (v *vocabulary) add(term string) {
	if v.bulk {
		v.sorted = append(v.sorted, term)
	} else {
		i, found := slices.BinarySearch(v.sorted, term)
		if found {
			return
		}
		v.sorted = slices.Insert(v.sorted, i, term)
	}

	s := stem(term)
	v.stems[s] = append(v.stems[s], term)

	if len(term) >= minExpandLen && isAlpha(term) {
		p, sec := matchr.DoubleMetaphone(term)
		if p != "" {
			v.phonetic[p] = append(v.phonetic[p], term)
		}
		if sec != "" && sec != p {
			v.phonetic[sec] = append(v.phonetic[sec], term)
		}
	}
}

// expand returns the indexed terms that match token loosely: the token
// itself, terms sharing its stem, terms extending it by at most
// maxPrefixGrowth characters, and same-sounding terms that are also close in
// spelling.
func (v *vocabulary) expand(token string) []string {
	set := map[string]struct{}{token: {}}
	if len(token) < minExpandLen {
		return []string{token}
	}

	for _, t := range v.stems[stem(token)] {
		set[t] = struct{}{}
	}

	i := sort.SearchStrings(v.sorted, token)
	for ; i < len(v.sorted) && strings.HasPrefix(v.sorted[i], token); i++ {
		if len(v.sorted[i])-len(token) <= maxPrefixGrowth {
			set[v.sorted[i]] = struct{}{}
		}
	}

	if isAlpha(token) {
		p, sec := matchr.DoubleMetaphone(token)
		for _, code := range []string{p, sec} {
			if code == "" {
				continue
			}
			for _, t := range v.phonetic[code] {
				if matchr.JaroWinkler(token, t, false) >= phoneticThreshold {
					set[t] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
