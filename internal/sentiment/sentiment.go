// Package sentiment scores the polarity of short texts.
//
// [Analyzer] is the collaborator interface; the OpenAI-backed implementation
// lives in the openai subpackage. [Lexicon] is a small word-list analyzer
// used when no remote provider is configured.
package sentiment

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// Labels returned in [Score.Label].
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// neutralBand is the half-width around zero labelled neutral.
const neutralBand = 0.1

// ErrNoProvider is returned when sentiment scoring is disabled.
var ErrNoProvider = errors.New("sentiment: no provider configured")

// Score is the polarity of one text. Value lies in [-1, 1].
type Score struct {
	Label string
	Value float64
}

// Analyzer scores texts. Implementations return exactly one Score per input
// text, in order.
type Analyzer interface {
	Analyze(ctx context.Context, texts []string) ([]Score, error)
}

// LabelFor returns the label of a polarity value.
func LabelFor(v float64) string {
	switch {
	case v > neutralBand:
		return Positive
	case v < -neutralBand:
		return Negative
	default:
		return Neutral
	}
}

// NewScore clamps v to [-1, 1] and labels it.
func NewScore(v float64) Score {
	v = max(-1, min(1, v))
	return Score{Label: LabelFor(v), Value: v}
}

// Lexicon scores texts by counting positive and negative words. Negators
// flip the next scored word.
type Lexicon struct {
	words map[string]float64
}

var _ Analyzer = (*Lexicon)(nil)

var (
	positiveWords = `good great love loved loves like likes liked nice awesome amazing
		best better happy fun cool excellent wonderful fantastic beautiful cute
		enjoy enjoyed glad perfect brilliant yay thanks lovely`
	negativeWords = `bad awful hate hated hates terrible worst worse sad angry ugly
		boring annoying horrible stupid sucks suck dislike disgusting broken
		fail failed wrong poor ugh`
	negators = map[string]bool{"not": true, "no": true, "never": true, "don't": true,
		"doesn't": true, "didn't": true, "isn't": true, "wasn't": true, "can't": true}
)

// NewLexicon returns the built-in English lexicon.
func NewLexicon() *Lexicon {
	l := &Lexicon{words: make(map[string]float64)}
	for _, w := range strings.Fields(positiveWords) {
		l.words[w] = 1
	}
	for _, w := range strings.Fields(negativeWords) {
		l.words[w] = -1
	}
	return l
}

// Analyze implements [Analyzer]. The score of a text is the mean polarity
// of its scored words; a text without scored words is neutral.
func (l *Lexicon) Analyze(ctx context.Context, texts []string) ([]Score, error) {
	out := make([]Score, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = NewScore(l.score(text))
	}
	return out, nil
}

func (l *Lexicon) score(text string) float64 {
	var (
		sum    float64
		n      int
		negate bool
	)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		if negators[w] {
			negate = true
			continue
		}
		v, ok := l.words[w]
		if !ok {
			continue
		}
		if negate {
			v = -v
			negate = false
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
