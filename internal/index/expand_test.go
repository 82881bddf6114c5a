package index

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/PennyNeko/Soph/internal/archive"
)

func TestOpen_LargeVocabulary(t *testing.T) {
	t.Parallel()

	const terms = 50000
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]archive.Document, terms)
	for i := range docs {
		// Newest documents carry the smallest terms so insertion order is
		// the reverse of sorted order.
		docs[i] = archive.Document{
			ID:        fmt.Sprintf("d%d", i),
			AuthorID:  "1",
			Text:      fmt.Sprintf("word%06d", terms-i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
	}

	start := time.Now()
	ix, err := Open(context.Background(), archive.NewMemStore(docs...))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d := time.Since(start); d > 20*time.Second {
		t.Errorf("Open took %v for %d terms", d, terms)
	}

	if ix.vocab.bulk {
		t.Error("vocabulary still in bulk mode after Open")
	}
	if len(ix.vocab.sorted) != terms {
		t.Fatalf("vocabulary has %d terms, want %d", len(ix.vocab.sorted), terms)
	}
	if !slices.IsSorted(ix.vocab.sorted) {
		t.Fatal("vocabulary is not sorted after Open")
	}
}

func TestVocabulary_AddAfterSeal(t *testing.T) {
	t.Parallel()

	v := newVocabulary()
	v.startBulk()
	for _, term := range []string{"dog", "catalog", "cat"} {
		v.add(term)
	}
	v.seal()
	v.add("cats")
	v.add("bird")
	v.add("cats")

	want := []string{"bird", "cat", "catalog", "cats", "dog"}
	if !slices.Equal(v.sorted, want) {
		t.Errorf("sorted = %v, want %v", v.sorted, want)
	}
	if got := v.expand("cat"); !slices.Equal(got, []string{"cat", "cats"}) {
		t.Errorf("expand(cat) = %v, want [cat cats]", got)
	}
}
