// Package archive defines the persisted message log that feeds a
// community's inverted index, plus an in-memory implementation.
//
// Persistent backends live in sub-packages: badgerstore (embedded, one
// directory per community) and postgres (shared database, one row set per
// community).
package archive

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// Document is one archived chat message. A document has exactly one author.
type Document struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate reports whether d can be stored.
func (d Document) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("archive: document id is required"))
	}
	if d.AuthorID == "" {
		errs = append(errs, errors.New("archive: document author is required"))
	}
	return errors.Join(errs...)
}

// Archive is an append-only document log.
//
// Implementations must be safe for concurrent use. Scan visits every stored
// document once, in no particular order; returning an error from fn stops
// the scan and Scan returns that error.
type Archive interface {
	Append(ctx context.Context, doc Document) error
	Scan(ctx context.Context, fn func(Document) error) error
	Close() error
}

// ErrClosed is returned by operations on a closed archive.
var ErrClosed = errors.New("archive: closed")

// Compile-time interface check.
var _ Archive = (*MemStore)(nil)

// MemStore is an in-memory [Archive]. Appending a document whose ID is
// already stored replaces it.
type MemStore struct {
	mu     sync.RWMutex
	docs   []Document
	byID   map[string]int
	closed bool
}

// NewMemStore returns an empty store seeded with docs.
func NewMemStore(docs ...Document) *MemStore {
	s := &MemStore{byID: make(map[string]int)}
	for _, d := range docs {
		_ = s.Append(context.Background(), d)
	}
	return s
}

// Append implements [Archive].
func (s *MemStore) Append(ctx context.Context, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if i, ok := s.byID[doc.ID]; ok {
		s.docs[i] = doc
		return nil
	}
	s.byID[doc.ID] = len(s.docs)
	s.docs = append(s.docs, doc)
	return nil
}

// Scan implements [Archive]. Documents are visited in insertion order.
func (s *MemStore) Scan(ctx context.Context, fn func(Document) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	docs := slices.Clone(s.docs)
	s.mu.RUnlock()

	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored documents.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close implements [Archive].
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
