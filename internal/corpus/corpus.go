// Package corpus holds the per-author Markov models of one community and
// generates pastiche text from them.
//
// A corpus directory contains an "authors" file mapping display names to
// author ids and one markovify JSON model per author, named after the id.
// Models are immutable once loaded. Combined models for groups of authors
// are built on demand and kept in a small [mru.Cache].
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/PennyNeko/Soph/internal/markov"
	"github.com/PennyNeko/Soph/internal/mru"
	"github.com/PennyNeko/Soph/internal/observe"
)

// AuthorsFile is the name of the name to id mapping inside a corpus
// directory.
const AuthorsFile = "authors"

// Defaults applied when the corresponding option is not set.
const (
	DefaultCacheCapacity   = 3
	DefaultLoadConcurrency = 4
)

// Generation limits.
const (
	impersonateMaxChars  = 300
	conversationMaxChars = 140
)

// Corpus is the set of author models of one community. Safe for concurrent
// use.
type Corpus struct {
	ids    map[string]string // name -> id
	models map[string]*markov.Text

	combined *mru.Cache[string, *markov.Text]
	flight   singleflight.Group

	metrics *observe.Metrics
	rng     *rand.Rand
	genOpts []markov.GenerateOption
}

type config struct {
	filter      []string
	concurrency int
	capacity    int
	metrics     *observe.Metrics
	rng         *rand.Rand
	modelOpts   []markov.Option
}

// Option configures [Load] and [New].
type Option func(*config)

// WithFilter restricts loading to the named authors. Model files of other
// authors are never read.
func WithFilter(names ...string) Option {
	return func(c *config) { c.filter = append(c.filter, names...) }
}

// WithLoadConcurrency bounds how many model files are decoded at once.
func WithLoadConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithCacheCapacity sets how many combined models are kept.
func WithCacheCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithMetrics records cache lookups and generation attempts.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithModelOptions is passed to [markov.FromJSON] for every model file,
// typically to install a sentence filter.
func WithModelOptions(opts ...markov.Option) Option {
	return func(c *config) { c.modelOpts = append(c.modelOpts, opts...) }
}

// WithRand draws all generation randomness from rng. A *rand.Rand is not
// safe for concurrent use, so this is meant for tests.
func WithRand(rng *rand.Rand) Option {
	return func(c *config) { c.rng = rng }
}

func newConfig(opts []Option) config {
	cfg := config{
		concurrency: DefaultLoadConcurrency,
		capacity:    DefaultCacheCapacity,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// New assembles a corpus from already built models. ids maps display names
// to author ids and models maps author ids to models. Load options that
// concern reading files are ignored.
func New(ids map[string]string, models map[string]*markov.Text, opts ...Option) *Corpus {
	cfg := newConfig(opts)
	c := &Corpus{
		ids:      make(map[string]string, len(ids)),
		models:   make(map[string]*markov.Text, len(models)),
		combined: mru.New[string, *markov.Text](cfg.capacity),
		metrics:  cfg.metrics,
		rng:      cfg.rng,
	}
	for name, id := range ids {
		c.ids[name] = id
	}
	for id, m := range models {
		c.models[id] = m
	}
	if cfg.rng != nil {
		c.genOpts = []markov.GenerateOption{markov.WithRand(cfg.rng)}
	}
	return c
}

// Load reads the corpus in dir. A missing or malformed authors file is an
// error; a model file that cannot be decoded is logged and skipped.
func Load(ctx context.Context, dir string, opts ...Option) (*Corpus, error) {
	start := time.Now()
	cfg := newConfig(opts)

	blob, err := os.ReadFile(filepath.Join(dir, AuthorsFile))
	if err != nil {
		return nil, fmt.Errorf("corpus: load %s: %w", dir, err)
	}
	var ids map[string]string
	if err := json.Unmarshal(blob, &ids); err != nil {
		return nil, fmt.Errorf("corpus: load %s: authors file: %w", dir, err)
	}

	var allowed map[string]bool
	if len(cfg.filter) > 0 {
		allowed = make(map[string]bool, len(cfg.filter))
		for _, name := range cfg.filter {
			if id, ok := ids[name]; ok {
				allowed[id] = true
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus: load %s: %w", dir, err)
	}

	var (
		mu     sync.Mutex
		models = make(map[string]*markov.Text)
		log    = observe.Logger(ctx)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for _, e := range entries {
		name := e.Name()
		if name == AuthorsFile || !e.Type().IsRegular() {
			continue
		}
		if allowed != nil && !allowed[name] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := loadModel(filepath.Join(dir, name), cfg.modelOpts)
			if err != nil {
				log.Warn("corpus: skipping model file", "file", name, "err", err)
				return nil
			}
			mu.Lock()
			models[name] = m
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("corpus: load %s: %w", dir, err)
	}

	c := New(ids, models, opts...)
	if cfg.metrics != nil {
		cfg.metrics.CorpusLoadDuration.Record(ctx, time.Since(start).Seconds())
	}
	log.Info("corpus loaded", "dir", dir, "authors", len(ids), "models", len(models), "elapsed", time.Since(start))
	return c, nil
}

func loadModel(path string, opts []markov.Option) (*markov.Text, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return markov.FromJSON(blob, opts...)
}

// Model returns the model of the named author.
func (c *Corpus) Model(name string) (*markov.Text, bool) {
	id, ok := c.ids[name]
	if !ok {
		return nil, false
	}
	m, ok := c.models[id]
	return m, ok
}

// NameForID returns the first name, in sorted order, under which the author
// with id has a loaded model.
func (c *Corpus) NameForID(id string) (string, bool) {
	if _, ok := c.models[id]; !ok {
		return "", false
	}
	var best string
	for name, nid := range c.ids {
		if nid == id && (best == "" || name < best) {
			best = name
		}
	}
	return best, best != ""
}

// Authors returns the names of every author with a loaded model, sorted.
func (c *Corpus) Authors() []string {
	out := make([]string, 0, len(c.models))
	for name, id := range c.ids {
		if _, ok := c.models[id]; ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Key returns the composite cache key for a set of names: sorted,
// de-duplicated and joined with "+".
func Key(names []string) string {
	return strings.Join(uniqueSorted(names), "+")
}

func uniqueSorted(names []string) []string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

// CombinedModel returns the weighted union of the named authors' models.
// The result is cached by [Key], so the order of names does not matter.
// It reports false if names is empty or any name has no model.
func (c *Corpus) CombinedModel(ctx context.Context, names []string) (*markov.Text, bool) {
	if len(names) == 0 {
		return nil, false
	}
	parts := uniqueSorted(names)
	key := strings.Join(parts, "+")
	if m, ok := c.combined.Get(key); ok {
		c.recordLookup(ctx, true)
		return m, true
	}
	c.recordLookup(ctx, false)

	v, err, _ := c.flight.Do(key, func() (any, error) {
		if m, ok := c.combined.Get(key); ok {
			return m, nil
		}
		_, t := observe.Sub(ctx, "corpus.combine")
		defer t.Stop()

		models := make([]*markov.Text, 0, len(parts))
		for _, name := range parts {
			m, ok := c.Model(name)
			if !ok {
				return nil, fmt.Errorf("corpus: no model for %q", name)
			}
			models = append(models, m)
		}
		m, err := markov.Combine(models, nil)
		if err != nil {
			return nil, err
		}
		c.combined.Insert(key, m)
		return m, nil
	})
	if err != nil {
		observe.Logger(ctx).Debug("combined model unavailable", "key", key, "err", err)
		return nil, false
	}
	return v.(*markov.Text), true
}

func (c *Corpus) recordLookup(ctx context.Context, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(ctx, hit)
	}
}

// CacheStats returns the combined-model cache counters.
func (c *Corpus) CacheStats() mru.Stats {
	return c.combined.Stats()
}

// Impersonate generates up to count sentences in the style of the named
// authors. A single name uses that author's model, several use their
// combined model. At most 2*count sentences are attempted, so the result may
// be shorter than count or empty. Unknown names yield nil.
func (c *Corpus) Impersonate(ctx context.Context, names []string, count int) []string {
	ctx, t := observe.Sub(ctx, "corpus.impersonate")
	defer t.Stop()

	var (
		model *markov.Text
		ok    bool
	)
	if len(names) == 1 {
		model, ok = c.Model(names[0])
	} else {
		model, ok = c.CombinedModel(ctx, names)
	}
	if !ok {
		return nil
	}

	start := time.Now()
	var out []string
	for tries := 0; len(out) < count && tries < 2*count; tries++ {
		s, ok := model.MakeShortSentence(impersonateMaxChars, c.genOpts...)
		c.recordAttempt(ctx, "impersonate", ok)
		if ok {
			out = append(out, s)
		}
	}
	c.recordGeneration(ctx, "impersonate", start)
	return out
}

// InventConversation generates up to count lines of the form
// "name: sentence", each attributed to one of names picked at random. The
// attempt budget matches [Corpus.Impersonate]. Unknown names yield nil.
func (c *Corpus) InventConversation(ctx context.Context, names []string, count int) []string {
	ctx, t := observe.Sub(ctx, "corpus.converse")
	defer t.Stop()

	if len(names) == 0 {
		return nil
	}
	models := make([]*markov.Text, len(names))
	for i, name := range names {
		m, ok := c.Model(name)
		if !ok {
			return nil
		}
		models[i] = m
	}

	start := time.Now()
	var out []string
	for tries := 0; len(out) < count && tries < 2*count; tries++ {
		i := c.intN(len(models))
		s, ok := models[i].MakeShortSentence(conversationMaxChars, c.genOpts...)
		c.recordAttempt(ctx, "converse", ok)
		if ok {
			out = append(out, names[i]+": "+s)
		}
	}
	c.recordGeneration(ctx, "converse", start)
	return out
}

func (c *Corpus) intN(n int) int {
	if c.rng != nil {
		return c.rng.IntN(n)
	}
	return rand.IntN(n)
}

func (c *Corpus) recordAttempt(ctx context.Context, op string, accepted bool) {
	if c.metrics != nil {
		c.metrics.RecordGenerationAttempt(ctx, op, accepted)
	}
}

func (c *Corpus) recordGeneration(ctx context.Context, op string, start time.Time) {
	if c.metrics != nil {
		c.metrics.GenerationDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("op", op)))
	}
}

// Loaded reports the number of loaded models, for logging.
func (c *Corpus) Loaded() int { return len(c.models) }
