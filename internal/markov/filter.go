package markov

import (
	"fmt"
	"regexp"
)

// SentenceFilter decides whether a sentence may be used, both as training
// input and as generated output.
type SentenceFilter func(sentence string) bool

// AcceptAll admits every sentence.
func AcceptAll(string) bool { return true }

var strayPunctuation = regexp.MustCompile(`(^')|('$)|\s'|'\s|["()\[\]]`)

// RejectStrayPunctuation rejects sentences with unbalanced-looking quotes or
// brackets: a leading or trailing apostrophe, an apostrophe next to
// whitespace, or any of "()[].
func RejectStrayPunctuation(sentence string) bool {
	return !strayPunctuation.MatchString(sentence)
}

// Filter names accepted by [FilterByName].
const (
	FilterAcceptAll              = "accept_all"
	FilterRejectStrayPunctuation = "reject_stray_punctuation"
)

// FilterByName returns the policy registered under name. An empty name
// selects [AcceptAll].
func FilterByName(name string) (SentenceFilter, error) {
	switch name {
	case "", FilterAcceptAll:
		return AcceptAll, nil
	case FilterRejectStrayPunctuation:
		return RejectStrayPunctuation, nil
	default:
		return nil, fmt.Errorf("markov: unknown sentence filter %q", name)
	}
}
