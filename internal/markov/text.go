// Package markov implements n-gram text models compatible with the markovify
// serialization format.
//
// A [Text] is built from raw text (or decoded from JSON), is immutable, and
// can be shared between goroutines. Generation draws weighted random walks
// from its [Chain] and rejects candidates that copy the training text too
// closely.
package markov

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

// DefaultStateSize is the number of tokens in a chain state unless
// overridden with [WithStateSize].
const DefaultStateSize = 2

// Generation limits.
const (
	defaultTries           = 10
	defaultMaxOverlapRatio = 0.7
	defaultMaxOverlapTotal = 15
)

// ErrInvalidStateSize is returned when a state size below 1 is requested.
var ErrInvalidStateSize = errors.New("markov: state size must be at least 1")

// Text is a trained text model.
type Text struct {
	stateSize int
	chain     *Chain
	sentences [][]string
	rejoined  string
	filter    SentenceFilter
}

type textConfig struct {
	stateSize int
	filter    SentenceFilter
}

// Option configures [NewText] and [FromJSON].
type Option func(*textConfig)

// WithStateSize sets the chain order. Ignored by [FromJSON], which uses the
// serialized state size.
func WithStateSize(n int) Option {
	return func(c *textConfig) { c.stateSize = n }
}

// WithInputFilter sets the sentence quality policy. It is applied to
// training sentences and to generated candidates.
func WithInputFilter(f SentenceFilter) Option {
	return func(c *textConfig) {
		if f != nil {
			c.filter = f
		}
	}
}

func newTextConfig(opts []Option) textConfig {
	cfg := textConfig{stateSize: DefaultStateSize, filter: AcceptAll}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// NewText trains a model on input.
func NewText(input string, opts ...Option) (*Text, error) {
	cfg := newTextConfig(opts)
	if cfg.stateSize < 1 {
		return nil, ErrInvalidStateSize
	}
	sentences := parseSentences(input, cfg.filter)
	return newText(cfg.stateSize, NewChain(sentences, cfg.stateSize), sentences, cfg.filter), nil
}

func newText(stateSize int, chain *Chain, sentences [][]string, filter SentenceFilter) *Text {
	joined := make([]string, len(sentences))
	for i, s := range sentences {
		joined[i] = joinWords(s)
	}
	return &Text{
		stateSize: stateSize,
		chain:     chain,
		sentences: sentences,
		rejoined:  strings.Join(joined, " "),
		filter:    filter,
	}
}

func parseSentences(input string, filter SentenceFilter) [][]string {
	var out [][]string
	for _, s := range SplitIntoSentences(input) {
		if !filter(s) {
			continue
		}
		if words := splitWords(s); len(words) > 0 {
			out = append(out, words)
		}
	}
	return out
}

// StateSize returns the chain order.
func (t *Text) StateSize() int { return t.stateSize }

// Chain returns the transition table.
func (t *Text) Chain() *Chain { return t.chain }

// Sentences returns the number of training sentences retained by the model.
func (t *Text) Sentences() int { return len(t.sentences) }

// Equal reports whether two models have the same state size, transition
// table and training text.
func (t *Text) Equal(other *Text) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.stateSize == other.stateSize &&
		t.rejoined == other.rejoined &&
		t.chain.Equal(other.chain)
}

type genConfig struct {
	rng             *rand.Rand
	tries           int
	testOutput      bool
	maxOverlapRatio float64
	maxOverlapTotal int
}

// GenerateOption configures [Text.MakeSentence] and [Text.MakeShortSentence].
type GenerateOption func(*genConfig)

// WithRand draws all randomness from rng.
func WithRand(rng *rand.Rand) GenerateOption {
	return func(c *genConfig) { c.rng = rng }
}

// WithTries overrides the number of walks per sentence.
func WithTries(n int) GenerateOption {
	return func(c *genConfig) {
		if n > 0 {
			c.tries = n
		}
	}
}

// WithoutNoveltyTest accepts candidates that repeat the training text.
func WithoutNoveltyTest() GenerateOption {
	return func(c *genConfig) { c.testOutput = false }
}

func newGenConfig(opts []GenerateOption) genConfig {
	cfg := genConfig{
		tries:           defaultTries,
		testOutput:      true,
		maxOverlapRatio: defaultMaxOverlapRatio,
		maxOverlapTotal: defaultMaxOverlapTotal,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// MakeSentence walks the chain until it produces an acceptable sentence or
// the retry budget runs out.
func (t *Text) MakeSentence(opts ...GenerateOption) (string, bool) {
	cfg := newGenConfig(opts)
	return t.makeSentence(cfg, 0)
}

// MakeShortSentence is like MakeSentence but only accepts sentences of at
// most maxChars characters. It makes up to tries MakeSentence attempts of
// tries walks each, so at most tries*tries walks. The length is checked on
// every walk before the filter and the novelty test, and an overlong walk
// only uses up its own slot.
func (t *Text) MakeShortSentence(maxChars int, opts ...GenerateOption) (string, bool) {
	cfg := newGenConfig(opts)
	for i := 0; i < cfg.tries; i++ {
		if s, ok := t.makeSentence(cfg, maxChars); ok {
			return s, true
		}
	}
	return "", false
}

func (t *Text) makeSentence(cfg genConfig, maxChars int) (string, bool) {
	for i := 0; i < cfg.tries; i++ {
		words := t.chain.Walk(cfg.rng)
		if len(words) == 0 {
			continue
		}
		s := joinWords(words)
		if maxChars > 0 && utf8.RuneCountInString(s) > maxChars {
			continue
		}
		if !t.filter(s) {
			continue
		}
		if cfg.testOutput && !t.novel(words, cfg.maxOverlapRatio, cfg.maxOverlapTotal) {
			continue
		}
		return s, true
	}
	return "", false
}

// novel reports whether no window of the candidate appears verbatim in the
// training text.
func (t *Text) novel(words []string, ratio float64, total int) bool {
	overlapMax := min(total, int(math.RoundToEven(ratio*float64(len(words)))))
	window := overlapMax + 1
	grams := max(len(words)-overlapMax, 1)
	for i := 0; i < grams; i++ {
		end := min(i+window, len(words))
		if strings.Contains(t.rejoined, joinWords(words[i:end])) {
			return false
		}
	}
	return true
}
