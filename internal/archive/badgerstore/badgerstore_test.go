package badgerstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/PennyNeko/Soph/internal/archive"
	"github.com/PennyNeko/Soph/internal/archive/badgerstore"
)

func newStore(t *testing.T, cfg badgerstore.Config) *badgerstore.Store {
	t.Helper()
	s, err := badgerstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scanAll(t *testing.T, s archive.Archive) []archive.Document {
	t.Helper()
	var out []archive.Document
	if err := s.Scan(context.Background(), func(d archive.Document) error {
		out = append(out, d)
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return out
}

func TestAppendScanInTimestampOrder(t *testing.T) {
	t.Parallel()

	s := newStore(t, badgerstore.Config{InMemory: true})
	ctx := context.Background()
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	docs := []archive.Document{
		{ID: "3", AuthorID: "a", Text: "third", Timestamp: base.Add(2 * time.Minute)},
		{ID: "1", AuthorID: "b", Text: "first", Timestamp: base},
		{ID: "2", AuthorID: "a", Text: "second", Timestamp: base.Add(time.Minute), ChannelID: "general"},
	}
	for _, d := range docs {
		if err := s.Append(ctx, d); err != nil {
			t.Fatalf("Append(%s): %v", d.ID, err)
		}
	}

	got := scanAll(t, s)
	if len(got) != 3 {
		t.Fatalf("Scan returned %d docs, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Text != want {
			t.Errorf("doc %d = %q, want %q", i, got[i].Text, want)
		}
	}
	if got[1].ChannelID != "general" || !got[1].Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("round-tripped doc = %+v", got[1])
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := badgerstore.DefaultConfig(dir)
	cfg.GCInterval = 0

	s, err := badgerstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append(context.Background(), archive.Document{ID: "1", AuthorID: "a", Text: "kept", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	reopened := newStore(t, cfg)
	got := scanAll(t, reopened)
	if len(got) != 1 || got[0].Text != "kept" {
		t.Fatalf("after reopen: %+v", got)
	}
}

func TestAppendValidates(t *testing.T) {
	t.Parallel()

	s := newStore(t, badgerstore.Config{InMemory: true})
	if err := s.Append(context.Background(), archive.Document{ID: "x"}); err == nil {
		t.Fatal("expected validation error for missing author")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := badgerstore.Open(badgerstore.Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
