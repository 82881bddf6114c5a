package index_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PennyNeko/Soph/internal/archive"
	"github.com/PennyNeko/Soph/internal/index"
	"github.com/PennyNeko/Soph/internal/observe"
)

var base = time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC)

// seq builds documents one minute apart, in order.
func seq(specs ...[2]string) []archive.Document {
	docs := make([]archive.Document, len(specs))
	for i, s := range specs {
		docs[i] = archive.Document{
			ID:        string(rune('a' + i)),
			AuthorID:  s[0],
			Text:      s[1],
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return docs
}

func openIndex(t *testing.T, docs []archive.Document, opts ...index.Option) (*index.Index, *archive.MemStore) {
	t.Helper()
	// Reverse the archive order to prove Open sorts by timestamp.
	rev := slices.Clone(docs)
	slices.Reverse(rev)
	store := archive.NewMemStore(rev...)
	ix, err := index.Open(context.Background(), store, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ix, store
}

func texts(rs []index.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Text
	}
	return out
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := index.Tokenize("Hey <@!42>, it’s FINE... 'quoted' words")
	want := []string{"hey", "42", "it's", "fine", "quoted", "words"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokenize = %q, want %q", got, want)
	}
}

func TestQueryNewestFirstAndLimit(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq(
		[2]string{"1", "pizza is great"},
		[2]string{"2", "I had pizza today"},
		[2]string{"1", "no food here"},
		[2]string{"3", "cold pizza for breakfast"},
	))

	got := texts(ix.Query(context.Background(), "pizza", index.QueryOptions{}))
	want := []string{"cold pizza for breakfast", "I had pizza today", "pizza is great"}
	if !slices.Equal(got, want) {
		t.Errorf("Query = %q, want %q", got, want)
	}

	limited := ix.Query(context.Background(), "pizza", index.QueryOptions{Limit: 1})
	if len(limited) != 1 || limited[0].AuthorID != "3" {
		t.Errorf("Query limit 1 = %+v", limited)
	}
}

func TestQueryPhrase(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq(
		[2]string{"1", "the red car is fast"},
		[2]string{"2", "a car that is red"},
	))
	ctx := context.Background()

	if got := texts(ix.Query(ctx, "red car", index.QueryOptions{})); !slices.Equal(got, []string{"the red car is fast"}) {
		t.Errorf("phrase query = %q", got)
	}
	if got := ix.Query(ctx, "red car", index.QueryOptions{Expand: true}); len(got) != 2 {
		t.Errorf("expanded query matched %d docs, want 2", len(got))
	}
	if got := ix.Query(ctx, "?!", index.QueryOptions{}); got != nil {
		t.Errorf("query without tokens = %+v, want nil", got)
	}
}

func TestQueryExpansion(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq(
		[2]string{"1", "my cats are asleep"},
		[2]string{"2", "what a lovely colour"},
		[2]string{"3", "talking about the catalogue"},
	))
	ctx := context.Background()

	if got := ix.Query(ctx, "cat", index.QueryOptions{}); len(got) != 0 {
		t.Errorf("unexpanded query matched %q", texts(got))
	}
	if got := texts(ix.Query(ctx, "cat", index.QueryOptions{Expand: true})); !slices.Equal(got, []string{"my cats are asleep"}) {
		t.Errorf("expanded cat = %q", got)
	}
	if got := texts(ix.Query(ctx, "color", index.QueryOptions{Expand: true})); !slices.Equal(got, []string{"what a lovely colour"}) {
		t.Errorf("expanded color = %q", got)
	}
}

func TestQueryAuthorFilter(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq(
		[2]string{"1", "I like jazz"},
		[2]string{"2", "alice likes jazz too"},
		[2]string{"2", "<@1> really likes jazz"},
		[2]string{"3", "jazz is noise"},
	))
	ctx := context.Background()

	own := ix.Query(ctx, "jazz", index.QueryOptions{AuthorID: "1"})
	if got := texts(own); !slices.Equal(got, []string{"I like jazz"}) {
		t.Errorf("own docs = %q", got)
	}

	named := ix.Query(ctx, "jazz", index.QueryOptions{AuthorID: "1", AuthorNames: []string{"Alice"}})
	want := []string{"<@1> really likes jazz", "alice likes jazz too", "I like jazz"}
	if got := texts(named); !slices.Equal(got, want) {
		t.Errorf("with names = %q, want %q", got, want)
	}
}

func TestQueryDedupe(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq(
		[2]string{"1", "Hello there, friend!"},
		[2]string{"2", "hello there friend"},
		[2]string{"3", "hello to a different friend entirely"},
	))
	ctx := context.Background()

	if got := ix.Query(ctx, "friend", index.QueryOptions{}); len(got) != 3 {
		t.Fatalf("without dedupe got %d, want 3", len(got))
	}
	got := ix.Query(ctx, "friend", index.QueryOptions{Dedupe: true})
	if len(got) != 2 {
		t.Fatalf("with dedupe got %q", texts(got))
	}
	if got[0].Text != "hello to a different friend entirely" || got[1].AuthorID != "2" {
		t.Errorf("dedupe kept %+v", got)
	}
}

func TestQueryLong(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq(
		[2]string{"1", "tea"},
		[2]string{"2", "tea is a fine drink"},
		[2]string{"3", "I think tea is the finest drink of them all"},
		[2]string{"1", "tea tea tea tea"},
		[2]string{"2", "Tea is a fine drink!"},
	))
	ctx := context.Background()

	got := texts(ix.QueryLong(ctx, "tea", index.LongOptions{}))
	want := []string{"I think tea is the finest drink of them all", "Tea is a fine drink!", "tea tea tea tea"}
	if !slices.Equal(got, want) {
		t.Errorf("QueryLong = %q, want %q", got, want)
	}

	byAuthor := texts(ix.QueryLong(ctx, "tea", index.LongOptions{AuthorID: "1"}))
	if !slices.Equal(byAuthor, []string{"tea tea tea tea"}) {
		t.Errorf("QueryLong author 1 = %q", byAuthor)
	}

	strict := ix.QueryLong(ctx, "tea", index.LongOptions{MinWords: 6})
	if len(strict) != 1 {
		t.Errorf("QueryLong MinWords 6 = %q", texts(strict))
	}
}

func TestQueryStatsCountsLast(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq(
		[2]string{"b", "run is fun"},
		[2]string{"a", "run run run"},
		[2]string{"a", "let's run"},
		[2]string{"b", "she runs home"},
		[2]string{"c", "nothing"},
	))
	ctx := context.Background()

	stats := ix.QueryStats(ctx, "run", false)
	want := []index.Stat{{Count: 2, AuthorID: "a"}, {Count: 1, AuthorID: "b"}}
	if !slices.Equal(stats, want) {
		t.Errorf("QueryStats = %+v, want %+v", stats, want)
	}
	if expanded := ix.QueryStats(ctx, "run", true); len(expanded) != 2 || expanded[0].Count != 2 || expanded[1].Count != 2 {
		t.Errorf("expanded QueryStats = %+v", expanded)
	}

	if got := ix.Counts("b"); got != 2 {
		t.Errorf("Counts(b) = %d, want 2", got)
	}
	if got := ix.Counts("nobody"); got != 0 {
		t.Errorf("Counts(nobody) = %d, want 0", got)
	}

	last := texts(ix.Last(ctx, "a", 1))
	if !slices.Equal(last, []string{"let's run"}) {
		t.Errorf("Last(a, 1) = %q", last)
	}
	if !slices.Equal(ix.Authors(), []string{"a", "b", "c"}) {
		t.Errorf("Authors = %v", ix.Authors())
	}
}

func TestAddAppendsToArchive(t *testing.T) {
	t.Parallel()

	ix, store := openIndex(t, nil)
	ctx := context.Background()
	doc := archive.Document{ID: "new", AuthorID: "9", Text: "fresh message", Timestamp: base}

	if err := ix.Add(ctx, doc); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := ix.Add(ctx, doc); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if ix.Len() != 1 || store.Len() != 1 {
		t.Errorf("Len = %d, archive = %d, want 1 and 1", ix.Len(), store.Len())
	}
	if got := ix.Query(ctx, "fresh", index.QueryOptions{}); len(got) != 1 {
		t.Errorf("Query after Add = %+v", got)
	}

	if err := ix.Add(ctx, archive.Document{ID: "bad"}); err == nil {
		t.Error("Add of invalid document should fail")
	}
}

func TestConcurrentAddAndQuery(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := strings.Repeat("x", w+1) + string(rune('0'+i%10)) + string(rune('a'+i/10))
				_ = ix.Add(ctx, archive.Document{ID: id, AuthorID: "u", Text: "shared words here", Timestamp: base})
				ix.Query(ctx, "shared", index.QueryOptions{Limit: 5})
			}
		}(w)
	}
	wg.Wait()

	if ix.Len() != 200 {
		t.Errorf("Len = %d, want 200", ix.Len())
	}
}

func TestQueryRecordsTimer(t *testing.T) {
	t.Parallel()

	ix, _ := openIndex(t, seq([2]string{"1", "timed query"}))
	ctx, timer := observe.StartTimer(context.Background(), "request")
	ix.Query(ctx, "timed", index.QueryOptions{})
	ix.QueryStats(ctx, "timed", false)
	timer.Stop()

	out := timer.String()
	if !strings.Contains(out, "index.query:") || !strings.Contains(out, "index.query_stats:") {
		t.Errorf("timer tree missing index steps:\n%s", out)
	}
}
