package markov

import (
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
)

// Markers framing every run in the transition table. They match the tokens
// used by the serialized models produced by the ingestion pipeline.
const (
	Begin = "___BEGIN__"
	End   = "___END__"
)

// keySep joins state tokens into a map key.
const keySep = "\x1f"

// followers is the frozen next-token distribution of one state. Words are
// sorted so that seeded walks are reproducible.
type followers struct {
	words  []string
	counts []float64
	cum    []float64
}

// Chain is an order-N transition table. A Chain is immutable once built and
// safe for concurrent use.
type Chain struct {
	stateSize int
	model     map[string]*followers
}

// counts is the mutable form used while building or combining chains.
type counts map[string]map[string]float64

func (c counts) add(state []string, next string, weight float64) {
	key := strings.Join(state, keySep)
	m, ok := c[key]
	if !ok {
		m = make(map[string]float64)
		c[key] = m
	}
	m[next] += weight
}

// NewChain builds the transition table for runs with the given state size.
func NewChain(runs [][]string, stateSize int) *Chain {
	c := make(counts)
	for _, run := range runs {
		items := make([]string, 0, stateSize+len(run)+1)
		for i := 0; i < stateSize; i++ {
			items = append(items, Begin)
		}
		items = append(items, run...)
		items = append(items, End)
		for i := 0; i < len(run)+1; i++ {
			c.add(items[i:i+stateSize], items[i+stateSize], 1)
		}
	}
	return freeze(c, stateSize)
}

func freeze(c counts, stateSize int) *Chain {
	model := make(map[string]*followers, len(c))
	for key, next := range c {
		f := &followers{
			words:  make([]string, 0, len(next)),
			counts: make([]float64, 0, len(next)),
			cum:    make([]float64, 0, len(next)),
		}
		for w := range next {
			f.words = append(f.words, w)
		}
		sort.Strings(f.words)
		total := 0.0
		for _, w := range f.words {
			total += next[w]
			f.counts = append(f.counts, next[w])
			f.cum = append(f.cum, total)
		}
		model[key] = f
	}
	return &Chain{stateSize: stateSize, model: model}
}

// StateSize returns N, the number of tokens in a state.
func (c *Chain) StateSize() int { return c.stateSize }

// Len returns the number of distinct states.
func (c *Chain) Len() int { return len(c.model) }

// Next returns the weighted followers recorded for state. The returned map
// is a copy.
func (c *Chain) Next(state ...string) map[string]float64 {
	f, ok := c.model[strings.Join(state, keySep)]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(f.words))
	for i, w := range f.words {
		out[w] = f.counts[i]
	}
	return out
}

// Equal reports whether both chains hold the same transition table.
func (c *Chain) Equal(other *Chain) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.stateSize != other.stateSize || len(c.model) != len(other.model) {
		return false
	}
	for key, f := range c.model {
		g, ok := other.model[key]
		if !ok || !slices.Equal(f.words, g.words) || !slices.Equal(f.counts, g.counts) {
			return false
		}
	}
	return true
}

// Walk performs one random walk from the begin state to the end marker and
// returns the generated tokens. A nil rng uses the global source.
func (c *Chain) Walk(rng *rand.Rand) []string {
	state := make([]string, c.stateSize)
	for i := range state {
		state[i] = Begin
	}

	var words []string
	for {
		next := c.move(state, rng)
		if next == End {
			return words
		}
		words = append(words, next)
		copy(state, state[1:])
		state[len(state)-1] = next
	}
}

func (c *Chain) move(state []string, rng *rand.Rand) string {
	f, ok := c.model[strings.Join(state, keySep)]
	if !ok || len(f.words) == 0 {
		return End
	}
	total := f.cum[len(f.cum)-1]
	if total <= 0 {
		return End
	}
	var r float64
	if rng != nil {
		r = rng.Float64() * total
	} else {
		r = rand.Float64() * total
	}
	i := sort.Search(len(f.cum), func(i int) bool { return f.cum[i] > r })
	if i == len(f.cum) {
		i = len(f.cum) - 1
	}
	return f.words[i]
}

// items lists the table in a stable order for serialization.
func (c *Chain) items() []chainItem {
	keys := make([]string, 0, len(c.model))
	for k := range c.model {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]chainItem, 0, len(keys))
	for _, k := range keys {
		f := c.model[k]
		next := make(map[string]float64, len(f.words))
		for i, w := range f.words {
			next[w] = f.counts[i]
		}
		out = append(out, chainItem{state: strings.Split(k, keySep), next: next})
	}
	return out
}

type chainItem struct {
	state []string
	next  map[string]float64
}
