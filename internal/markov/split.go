package markov

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// potentialEnd matches a word ending in terminal punctuation, optional
// closing quotes or brackets, and the whitespace that follows them.
var potentialEnd = regexp.MustCompile(`([\p{L}\p{M}\p{N}_.'’&\])]+[.?!])([‘’“”'"\)\]]*)(\s+)`)

// abbrCapped lists abbreviations that appear capitalised ("Dr.", "Calif.").
var abbrCapped = toSet(strings.Join([]string{
	"ala|ariz|ark|calif|colo|conn|del|fla|ga|ill|ind|kan|ky|la|md|mass|mich|minn|miss|mo|mont|neb|nev|okla|ore|pa|tenn|vt|va|wash|wis|wyo",
	"u.s",
	"mr|ms|mrs|msr|dr|gov|pres|sen|sens|rep|reps|prof|gen|messrs|col|sr|jf|sgt|mgr|fr|rev|jr|snr|atty|supt",
	"ave|blvd|st|rd|hwy",
	"jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec",
	"a|b|c|d|e|f|g|h|i|j|k|l|m|n|o|p|q|r|s|t|u|v|w|x|y|z",
}, "|"))

// dottedAcronyms never end a sentence, even though their capitals would.
var dottedAcronyms = toSet("U.S.|U.N.|E.U.|F.B.I.|C.I.A.")

// abbrLowercase lists abbreviations that appear in lowercase ("etc.").
var abbrLowercase = toSet("etc|v|vs|viz|al|pct")

func toSet(pipeSeparated string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings.Split(pipeSeparated, "|") {
		set[s] = struct{}{}
	}
	return set
}

// SplitIntoSentences splits text at sentence boundaries.
//
// A boundary follows a word ending in '.', '?' or '!' (plus any closing
// quotes or brackets) when the next non-space character is not a lowercase
// letter or a dash, and the word is not a known abbreviation. Text without
// any boundary is returned as a single sentence.
func SplitIntoSentences(text string) []string {
	var ends []int
	for _, m := range potentialEnd.FindAllStringSubmatchIndex(text, -1) {
		word := text[m[2]:m[3]]
		wsStart, wsEnd := m[6], m[7]
		if wsEnd-wsStart == 1 && lowercaseOrDashAt(text, wsEnd) {
			// A single space followed by a lowercase word continues the sentence.
			continue
		}
		if !isSentenceEnder(word) {
			continue
		}
		ends = append(ends, m[5])
	}

	var sentences []string
	start := 0
	for _, end := range append(ends, len(text)) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

func lowercaseOrDashAt(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return (r >= 'a' && r <= 'z') || r == '-' || r == '–' || r == '—'
}

func isSentenceEnder(word string) bool {
	if _, ok := dottedAcronyms[word]; ok {
		return false
	}
	last := word[len(word)-1]
	if last == '?' || last == '!' {
		return true
	}
	caps := 0
	for i := 0; i < len(word); i++ {
		if word[i] >= 'A' && word[i] <= 'Z' {
			caps++
		}
	}
	if caps > 1 {
		return true
	}
	return last == '.' && !isAbbreviation(word)
}

func isAbbreviation(dotted string) bool {
	clipped := dotted[:len(dotted)-1]
	if clipped == "" {
		return false
	}
	if clipped[0] >= 'A' && clipped[0] <= 'Z' {
		_, ok := abbrCapped[strings.ToLower(clipped)]
		return ok
	}
	_, ok := abbrLowercase[clipped]
	return ok
}

// splitWords tokenises a sentence on runs of whitespace.
func splitWords(sentence string) []string {
	return strings.Fields(sentence)
}

// joinWords is the inverse of splitWords.
func joinWords(words []string) string {
	return strings.Join(words, " ")
}
