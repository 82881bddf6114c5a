package index

import (
	"context"
	"sort"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/PennyNeko/Soph/internal/observe"
)

// dedupeThreshold is the Jaro-Winkler score above which two normalised
// documents count as the same message.
const dedupeThreshold = 0.95

// QueryOptions tunes [Index.Query].
type QueryOptions struct {
	// Limit caps the result count. Zero uses the index default.
	Limit int

	// AuthorID restricts results to documents by that author.
	AuthorID string

	// AuthorNames admits documents by other authors that mention one of
	// the names (or the author's id as a mention).
	AuthorNames []string

	// Expand broadens each token to related indexed terms.
	Expand bool

	// Dedupe drops near-identical documents.
	Dedupe bool
}

// LongOptions tunes [Index.QueryLong].
type LongOptions struct {
	Limit    int
	AuthorID string
	Expand   bool

	// MinWords skips shorter documents. Zero uses the index default.
	MinWords int
}

// Query returns documents containing every token of term, newest first. A
// multi-word term must match as a phrase unless Expand is set.
func (ix *Index) Query(ctx context.Context, term string, opts QueryOptions) []Result {
	ctx, t := observe.Sub(ctx, "index.query")
	defer t.Stop()
	defer ix.observeQuery(ctx, "query", time.Now())

	tokens := Tokenize(term)
	if len(tokens) == 0 {
		return nil
	}
	limit := ix.limitOr(opts.Limit)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	nums := ix.match(tokens, opts.Expand)
	nums = ix.filterAuthor(nums, opts.AuthorID, opts.AuthorNames)
	ix.newestFirst(nums)

	var d deduper
	out := make([]Result, 0, min(limit, len(nums)))
	for _, n := range nums {
		if len(out) >= limit {
			break
		}
		if opts.Dedupe && !d.admit(ix.docs[n].doc.Text) {
			continue
		}
		out = append(out, ix.result(n))
	}
	return out
}

// QueryLong is like Query but favours substantive documents: results are
// ordered by word count (then recency), always de-duplicated, and documents
// shorter than MinWords are skipped.
func (ix *Index) QueryLong(ctx context.Context, term string, opts LongOptions) []Result {
	ctx, t := observe.Sub(ctx, "index.query_long")
	defer t.Stop()
	defer ix.observeQuery(ctx, "long", time.Now())

	tokens := Tokenize(term)
	if len(tokens) == 0 {
		return nil
	}
	limit := ix.limitOr(opts.Limit)
	minWords := opts.MinWords
	if minWords <= 0 {
		minWords = ix.minWords
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	nums := ix.match(tokens, opts.Expand)
	nums = ix.filterAuthor(nums, opts.AuthorID, nil)

	long := nums[:0]
	for _, n := range nums {
		if ix.docs[n].words >= minWords {
			long = append(long, n)
		}
	}
	ix.newestFirst(long)
	sort.SliceStable(long, func(i, j int) bool {
		return ix.docs[long[i]].words > ix.docs[long[j]].words
	})

	var d deduper
	out := make([]Result, 0, min(limit, len(long)))
	for _, n := range long {
		if len(out) >= limit {
			break
		}
		if d.admit(ix.docs[n].doc.Text) {
			out = append(out, ix.result(n))
		}
	}
	return out
}

// QueryStats counts matching documents per author, highest count first and
// ties broken by author id.
func (ix *Index) QueryStats(ctx context.Context, term string, expand bool) []Stat {
	ctx, t := observe.Sub(ctx, "index.query_stats")
	defer t.Stop()
	defer ix.observeQuery(ctx, "stats", time.Now())

	tokens := Tokenize(term)
	if len(tokens) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	counts := make(map[string]int)
	for _, n := range ix.match(tokens, expand) {
		counts[ix.docs[n].doc.AuthorID]++
	}

	stats := make([]Stat, 0, len(counts))
	for id, c := range counts {
		stats = append(stats, Stat{Count: c, AuthorID: id})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].AuthorID < stats[j].AuthorID
	})
	return stats
}

// Last returns the most recent documents by authorID, newest first.
func (ix *Index) Last(ctx context.Context, authorID string, limit int) []Result {
	ctx, t := observe.Sub(ctx, "index.last")
	defer t.Stop()
	defer ix.observeQuery(ctx, "last", time.Now())

	limit = ix.limitOr(limit)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	nums := append([]int(nil), ix.byAuthor[authorID]...)
	ix.newestFirst(nums)
	if len(nums) > limit {
		nums = nums[:limit]
	}
	out := make([]Result, len(nums))
	for i, n := range nums {
		out[i] = ix.result(n)
	}
	return out
}

func (ix *Index) limitOr(n int) int {
	if n > 0 {
		return n
	}
	return ix.limit
}

// match returns the documents containing every token (or, with expand, one
// of each token's expansions). Callers hold the read lock.
func (ix *Index) match(tokens []string, expand bool) []int {
	var cand map[int]struct{}
	for _, tok := range tokens {
		terms := []string{tok}
		if expand {
			terms = ix.vocab.expand(tok)
		}
		hit := make(map[int]struct{})
		for _, term := range terms {
			for _, n := range ix.postings[term] {
				if cand == nil {
					hit[n] = struct{}{}
				} else if _, ok := cand[n]; ok {
					hit[n] = struct{}{}
				}
			}
		}
		if len(hit) == 0 {
			return nil
		}
		cand = hit
	}

	nums := make([]int, 0, len(cand))
	for n := range cand {
		if !expand && len(tokens) > 1 && !containsPhrase(ix.docs[n].tokens, tokens) {
			continue
		}
		nums = append(nums, n)
	}
	return nums
}

// filterAuthor keeps documents written by authorID and, when names are
// given, documents by anyone that mention one of them. With no authorID
// only the mention rule applies; with neither, nums is returned as is.
func (ix *Index) filterAuthor(nums []int, authorID string, names []string) []int {
	if authorID == "" && len(names) == 0 {
		return nums
	}

	var phrases [][]string
	if len(names) > 0 {
		if authorID != "" {
			phrases = append(phrases, []string{authorID})
		}
		for _, name := range names {
			if p := Tokenize(name); len(p) > 0 {
				phrases = append(phrases, p)
			}
		}
	}

	out := nums[:0]
	for _, n := range nums {
		e := ix.docs[n]
		if authorID != "" && e.doc.AuthorID == authorID {
			out = append(out, n)
			continue
		}
		for _, p := range phrases {
			if containsPhrase(e.tokens, p) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// deduper admits a document unless its normalised text equals, or is very
// close to, one already admitted.
type deduper struct {
	kept []string
}

func (d *deduper) admit(text string) bool {
	n := normalize(text)
	for _, k := range d.kept {
		if k == n {
			return false
		}
		if k != "" && n != "" && matchr.JaroWinkler(k, n, false) >= dedupeThreshold {
			return false
		}
	}
	d.kept = append(d.kept, n)
	return true
}
