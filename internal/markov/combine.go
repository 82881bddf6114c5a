package markov

import (
	"errors"
	"math"
)

// Combination errors.
var (
	ErrNoModels          = errors.New("markov: no models to combine")
	ErrStateSizeMismatch = errors.New("markov: models have different state sizes")
	ErrInvalidWeights    = errors.New("markov: invalid combination weights")
)

// Combine returns a new model whose transition counts are the weighted sum
// of the inputs' counts over the union of their states. A nil weights slice
// weighs every model 1. The inputs are not modified.
func Combine(models []*Text, weights []float64) (*Text, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	if weights == nil {
		weights = make([]float64, len(models))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(models) {
		return nil, ErrInvalidWeights
	}
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, ErrInvalidWeights
		}
	}

	stateSize := models[0].stateSize
	for _, m := range models[1:] {
		if m.stateSize != stateSize {
			return nil, ErrStateSizeMismatch
		}
	}

	sum := make(counts)
	var sentences [][]string
	for i, m := range models {
		for key, f := range m.chain.model {
			next, ok := sum[key]
			if !ok {
				next = make(map[string]float64, len(f.words))
				sum[key] = next
			}
			for j, w := range f.words {
				next[w] += f.counts[j] * weights[i]
			}
		}
		sentences = append(sentences, m.sentences...)
	}

	return newText(stateSize, freeze(sum, stateSize), sentences, models[0].filter), nil
}
