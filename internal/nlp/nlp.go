// Package nlp post-filters retrieved messages: it decides whether a message
// says that someone does something, whether it states an opinion about a
// subject, and whether it merely repeats a query.
//
// [Extractor] is the collaborator interface the responder depends on.
// [Heuristic] is a dependency-light implementation built on word patterns
// and string similarity rather than a parser.
package nlp

import (
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/PennyNeko/Soph/internal/markov"
)

// Extractor inspects message text.
type Extractor interface {
	// CheckVerb looks for a clause of doc in which one of subjects performs
	// pred, and returns that clause from the subject onward. The subject
	// "I" is only accepted when it is listed in subjects.
	CheckVerb(doc string, subjects []string, pred string) (string, bool)

	// Filter returns the positions of at most limit docs that express an
	// opinion about subject, in input order.
	Filter(docs []string, subject string, limit int) []int

	// IsSame reports whether doc says little more than query does.
	IsSame(doc, query string) bool
}

// sameThreshold is the Jaro-Winkler score at which two normalised texts
// count as the same.
const sameThreshold = 0.9

// maxVerbGap is the number of words allowed between a subject and its verb,
// enough for "Alice really doesn't like".
const maxVerbGap = 3

// irregular maps a base verb to its common inflections beyond the regular
// suffixes.
var irregular = map[string][]string{
	"be":    {"is", "are", "am", "was", "were", "been", "'s", "'m", "'re"},
	"have":  {"has", "had"},
	"do":    {"does", "did", "done"},
	"go":    {"goes", "went", "gone"},
	"say":   {"says", "said"},
	"think": {"thought"},
	"make":  {"made"},
	"buy":   {"bought"},
	"eat":   {"ate", "eaten"},
	"drink": {"drank", "drunk"},
	"feel":  {"felt"},
	"get":   {"got", "gotten"},
	"know":  {"knew", "known"},
	"see":   {"saw", "seen"},
}

// negations reverse a clause when they stand between subject and verb.
var negations = map[string]struct{}{}

// opinionWords mark a clause as a judgement on its subject.
var opinionWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`not never no don't dont doesn't doesnt didn't didnt
		won't wont can't cant cannot isn't wasn't aren't haven't hasn't hardly`) {
		negations[w] = struct{}{}
	}
	for _, w := range strings.Fields(`is are was were isn't aren't wasn't
		think thinks thought like likes liked love loves loved hate hates hated
		prefer prefers feel feels seem seems sucks suck rocks rock
		best worst good bad great awful terrible amazing overrated underrated
		better worse favourite favorite boring fun cute ugly`) {
		opinionWords[w] = struct{}{}
	}
}

// Heuristic is the pattern-based [Extractor]. The zero value is not usable;
// construct with [NewHeuristic].
type Heuristic struct {
	names *NameMatcher
}

var _ Extractor = (*Heuristic)(nil)

// NewHeuristic returns a Heuristic that matches subject names with names.
// A nil matcher uses [NewNameMatcher] defaults.
func NewHeuristic(names *NameMatcher) *Heuristic {
	if names == nil {
		names = NewNameMatcher()
	}
	return &Heuristic{names: names}
}

// CheckVerb implements [Extractor].
func (h *Heuristic) CheckVerb(doc string, subjects []string, pred string) (string, bool) {
	predWords := words(pred)
	if len(predWords) == 0 || len(subjects) == 0 {
		return "", false
	}
	forms := inflections(predWords[0])

	for _, clause := range clauses(doc) {
		raw := strings.Fields(clause)
		norm := make([]string, len(raw))
		for i, w := range raw {
			norm[i] = normWord(w)
		}

		for v := range norm {
			if _, ok := forms[norm[v]]; !ok || !hasPrefixAt(norm, v+1, predWords[1:]) {
				continue
			}
			for s := max(0, v-maxVerbGap-1); s < v; s++ {
				if h.isSubject(norm[s], raw[s], subjects) {
					return strings.Join(raw[s:], " "), true
				}
			}
		}
	}
	return "", false
}

// Negated reports whether a negation stands between the subject that opens
// extract and the first form of pred's verb, as in "Alice doesn't like tea".
// extract is a clause as returned by [Extractor.CheckVerb].
func Negated(extract, pred string) bool {
	predWords := words(pred)
	if len(predWords) == 0 {
		return false
	}
	forms := inflections(predWords[0])
	ws := words(extract)
	for _, w := range ws[min(1, len(ws)):] {
		if _, ok := forms[w]; ok {
			return false
		}
		if _, ok := negations[w]; ok {
			return true
		}
	}
	return false
}

func (h *Heuristic) isSubject(norm, raw string, subjects []string) bool {
	if norm == "" {
		return false
	}
	for _, subj := range subjects {
		switch {
		case strings.EqualFold(subj, "i"):
			if norm == "i" || norm == "i'm" || norm == "i've" || norm == "i'd" {
				return true
			}
		case isDigits(subj):
			if strings.Contains(raw, subj) {
				return true
			}
		}
	}

	var names []string
	for _, subj := range subjects {
		if !strings.EqualFold(subj, "i") && !isDigits(subj) {
			names = append(names, subj)
		}
	}
	if len(names) == 0 || len(norm) < 3 {
		return false
	}
	_, _, ok := h.names.Match(strings.TrimSuffix(norm, "'s"), names)
	return ok
}

// Filter implements [Extractor].
func (h *Heuristic) Filter(docs []string, subject string, limit int) []int {
	subj := words(subject)
	if len(subj) == 0 || limit <= 0 {
		return nil
	}
	var out []int
	for i, doc := range docs {
		if len(out) >= limit {
			break
		}
		if opinionated(doc, subj) {
			out = append(out, i)
		}
	}
	return out
}

// opinionated reports whether some clause of doc mentions subj together
// with an opinion word.
func opinionated(doc string, subj []string) bool {
	for _, clause := range clauses(doc) {
		ws := words(clause)
		at := indexPhrase(ws, subj)
		if at < 0 {
			continue
		}
		for i, w := range ws {
			if i >= at && i < at+len(subj) {
				continue
			}
			if _, ok := opinionWords[w]; ok {
				return true
			}
		}
	}
	return false
}

// IsSame implements [Extractor]. A doc is the same as query when their
// normalised forms are equal or very close, or when every word of doc also
// occurs in query.
func (h *Heuristic) IsSame(doc, query string) bool {
	d, q := words(doc), words(query)
	if len(d) == 0 {
		return true
	}
	dj, qj := strings.Join(d, " "), strings.Join(q, " ")
	if dj == qj {
		return true
	}
	if len(q) > 0 && matchr.JaroWinkler(dj, qj, false) >= sameThreshold {
		return true
	}
	for _, w := range d {
		if !slices.Contains(q, w) {
			return false
		}
	}
	return true
}

// clauses splits text into sentences and each sentence at , ; and :.
func clauses(text string) []string {
	var out []string
	for _, s := range markov.SplitIntoSentences(text) {
		for _, c := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == ':' }) {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

// words returns the normalised words of text.
func words(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		if n := normWord(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normWord lowercases w and strips everything but letters, digits and inner
// apostrophes.
func normWord(w string) string {
	w = strings.ReplaceAll(strings.ToLower(w), "’", "'")
	w = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return -1
	}, w)
	return strings.Trim(w, "'")
}

// inflections returns the forms of verb considered equivalent to it.
func inflections(verb string) map[string]struct{} {
	forms := map[string]struct{}{verb: {}}
	add := func(s ...string) {
		for _, f := range s {
			forms[f] = struct{}{}
		}
	}
	add(verb+"s", verb+"es", verb+"ed", verb+"d", verb+"ing")
	if base, ok := strings.CutSuffix(verb, "e"); ok && base != "" {
		add(base + "ing")
	}
	if base, ok := strings.CutSuffix(verb, "y"); ok && base != "" {
		add(base+"ies", base+"ied")
	}
	add(irregular[verb]...)
	return forms
}

func hasPrefixAt(ws []string, at int, prefix []string) bool {
	if at+len(prefix) > len(ws) {
		return false
	}
	return slices.Equal(ws[at:at+len(prefix)], prefix)
}

func indexPhrase(ws, phrase []string) int {
	for i := 0; i+len(phrase) <= len(ws); i++ {
		if slices.Equal(ws[i:i+len(phrase)], phrase) {
			return i
		}
		// Plural subject, "cats" for "cat".
		if len(phrase) == 1 && ws[i] == phrase[0]+"s" {
			return i
		}
	}
	return -1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
