// Package index implements the in-memory inverted index over a community's
// message archive.
//
// An [Index] is rebuilt from its [archive.Archive] when opened and grows by
// [Index.Add]. Postings are append-only. All query methods take the read
// lock for their whole duration, so a concurrent Add is observed either
// entirely or not at all.
//
// Query methods accept an optional [observe.Timer] through the context. A
// context without a timer costs one lookup and nothing else.
package index

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PennyNeko/Soph/internal/archive"
	"github.com/PennyNeko/Soph/internal/observe"
)

// Defaults applied when the corresponding option is not set.
const (
	DefaultLimit    = 100
	DefaultMinWords = 4
)

// Result is one matching document.
type Result struct {
	ID        string
	AuthorID  string
	Text      string
	Timestamp time.Time
}

// Stat is a per-author match count.
type Stat struct {
	Count    int
	AuthorID string
}

type entry struct {
	doc    archive.Document
	tokens []string
	words  int
}

// Index is the inverted index of one community. Safe for concurrent use.
type Index struct {
	arch      archive.Archive
	community string
	metrics   *observe.Metrics
	limit     int
	minWords  int

	mu       sync.RWMutex
	docs     []entry
	byID     map[string]int
	postings map[string][]int
	byAuthor map[string][]int
	vocab    *vocabulary
}

// Option configures an [Index].
type Option func(*Index)

// WithMetrics records query latencies and indexed documents.
func WithMetrics(m *observe.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// WithCommunity labels metrics with the community id.
func WithCommunity(id string) Option {
	return func(ix *Index) { ix.community = id }
}

// WithDefaultLimit sets the result cap used when a query does not set one.
func WithDefaultLimit(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.limit = n
		}
	}
}

// WithMinWords sets the default minimum word count for [Index.QueryLong].
func WithMinWords(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.minWords = n
		}
	}
}

// Open builds the index from every document in arch. The index keeps arch
// and appends to it from [Index.Add]; closing arch remains the caller's job.
func Open(ctx context.Context, arch archive.Archive, opts ...Option) (*Index, error) {
	ix := &Index{
		arch:     arch,
		limit:    DefaultLimit,
		minWords: DefaultMinWords,
		byID:     make(map[string]int),
		postings: make(map[string][]int),
		byAuthor: make(map[string][]int),
		vocab:    newVocabulary(),
	}
	for _, o := range opts {
		o(ix)
	}

	var docs []archive.Document
	if err := arch.Scan(ctx, func(d archive.Document) error {
		docs = append(docs, d)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Timestamp.Before(docs[j].Timestamp) })

	ix.vocab.startBulk()
	for _, d := range docs {
		ix.addLocked(d)
	}
	ix.vocab.seal()
	observe.Logger(ctx).Debug("index opened", "community", ix.community, "documents", len(ix.docs), "terms", len(ix.postings))
	return ix, nil
}

// Add appends doc to the archive, then to the postings. A document whose id
// is already indexed is stored but not indexed twice.
func (ix *Index) Add(ctx context.Context, doc archive.Document) error {
	if err := ix.arch.Append(ctx, doc); err != nil {
		return fmt.Errorf("index: add %s: %w", doc.ID, err)
	}

	ix.mu.Lock()
	added := ix.addLocked(doc)
	ix.mu.Unlock()

	if added && ix.metrics != nil {
		ix.metrics.RecordDocumentIndexed(ctx, ix.community)
	}
	return nil
}

func (ix *Index) addLocked(doc archive.Document) bool {
	if _, ok := ix.byID[doc.ID]; ok {
		return false
	}
	n := len(ix.docs)
	tokens := Tokenize(doc.Text)
	ix.docs = append(ix.docs, entry{doc: doc, tokens: tokens, words: len(strings.Fields(doc.Text))})
	ix.byID[doc.ID] = n
	ix.byAuthor[doc.AuthorID] = append(ix.byAuthor[doc.AuthorID], n)

	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, known := ix.postings[t]; !known {
			ix.vocab.add(t)
		}
		ix.postings[t] = append(ix.postings[t], n)
	}
	return true
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Authors returns the ids of every author with at least one document.
func (ix *Index) Authors() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]string, 0, len(ix.byAuthor))
	for id := range ix.byAuthor {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Counts returns the number of documents written by authorID.
func (ix *Index) Counts(authorID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byAuthor[authorID])
}

func (ix *Index) observeQuery(ctx context.Context, kind string, start time.Time) {
	if ix.metrics != nil {
		ix.metrics.ObserveQuery(ctx, kind, time.Since(start))
	}
}

func (ix *Index) result(n int) Result {
	d := ix.docs[n].doc
	return Result{ID: d.ID, AuthorID: d.AuthorID, Text: d.Text, Timestamp: d.Timestamp}
}

// newestFirst orders document numbers by descending timestamp, breaking ties
// by insertion order.
func (ix *Index) newestFirst(nums []int) {
	sort.Slice(nums, func(i, j int) bool {
		a, b := ix.docs[nums[i]].doc.Timestamp, ix.docs[nums[j]].doc.Timestamp
		if !a.Equal(b) {
			return a.After(b)
		}
		return nums[i] > nums[j]
	})
}
