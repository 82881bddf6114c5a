package index

import (
	"regexp"
	"strings"
	"unicode"
)

// mentionPattern matches user and role mentions such as <@123>, <@!123> and
// <@&123>.
var mentionPattern = regexp.MustCompile(`<@[!&]?(\d+)>`)

// Tokenize lowercases text and splits it into terms made of letters, digits
// and apostrophes. Mentions become the bare id so that "<@!42>" and "<@42>"
// index alike.
func Tokenize(text string) []string {
	text = mentionPattern.ReplaceAllString(text, " $1 ")
	text = strings.ReplaceAll(strings.ToLower(text), "’", "'")

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})

	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// normalize returns the canonical comparison form of text.
func normalize(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// containsPhrase reports whether phrase occurs as a contiguous run in tokens.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 {
		return true
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}
