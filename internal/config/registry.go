package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/PennyNeko/Soph/internal/sentiment"
)

// ErrProviderNotRegistered is returned by [Registry.CreateSentiment] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SentimentFactory builds an analyzer from its configuration block.
type SentimentFactory func(SentimentConfig) (sentiment.Analyzer, error)

// Registry maps provider names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	sentiment map[string]SentimentFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sentiment: make(map[string]SentimentFactory)}
}

// RegisterSentiment registers a sentiment provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSentiment(name string, factory SentimentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentiment[name] = factory
}

// CreateSentiment instantiates the analyzer registered under entry.Provider.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateSentiment(entry SentimentConfig) (sentiment.Analyzer, error) {
	r.mu.RLock()
	factory, ok := r.sentiment[entry.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sentiment/%q", ErrProviderNotRegistered, entry.Provider)
	}
	return factory(entry)
}

// SentimentProviders returns the registered names, sorted.
func (r *Registry) SentimentProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sentiment))
	for name := range r.sentiment {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
