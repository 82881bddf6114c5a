// Package postgres is an [archive.Archive] backed by a shared PostgreSQL
// database. Each community owns the rows tagged with its id in the
// archive_documents table.
package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PennyNeko/Soph/internal/archive"
)

var _ archive.Archive = (*Store)(nil)

const ddlArchiveDocuments = `
CREATE TABLE IF NOT EXISTS archive_documents (
    community   TEXT         NOT NULL,
    id          TEXT         NOT NULL,
    author_id   TEXT         NOT NULL,
    channel_id  TEXT         NOT NULL DEFAULT '',
    text        TEXT         NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (community, id)
);

CREATE INDEX IF NOT EXISTS idx_archive_documents_community_timestamp
    ON archive_documents (community, timestamp);

CREATE INDEX IF NOT EXISTS idx_archive_documents_author
    ON archive_documents (community, author_id);
`

// Migrate creates the archive table and its indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlArchiveDocuments); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Store is the archive of one community. Stores for different communities
// may share a pool through [OpenPool].
type Store struct {
	pool      *pgxpool.Pool
	community string
	ownsPool  bool
	closed    atomic.Bool
}

// Open connects to dsn, runs [Migrate], and returns the archive for
// community. The store owns its pool.
func Open(ctx context.Context, dsn, community string) (*Store, error) {
	pool, err := Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := OpenPool(pool, community)
	s.ownsPool = true
	return s, nil
}

// Connect creates a migrated connection pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres archive: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres archive: %w", err)
	}
	return pool, nil
}

// OpenPool returns the archive for community over an existing pool. Closing
// the store does not close the pool.
func OpenPool(pool *pgxpool.Pool, community string) *Store {
	return &Store{pool: pool, community: community}
}

// Append implements [archive.Archive]. A document whose id already exists in
// the community is updated in place.
func (s *Store) Append(ctx context.Context, doc archive.Document) error {
	if s.closed.Load() {
		return archive.ErrClosed
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO archive_documents (community, id, author_id, channel_id, text, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (community, id) DO UPDATE
		    SET author_id = EXCLUDED.author_id,
		        channel_id = EXCLUDED.channel_id,
		        text = EXCLUDED.text,
		        timestamp = EXCLUDED.timestamp`

	if _, err := s.pool.Exec(ctx, q,
		s.community, doc.ID, doc.AuthorID, doc.ChannelID, doc.Text, doc.Timestamp,
	); err != nil {
		return fmt.Errorf("postgres archive: append %s: %w", doc.ID, err)
	}
	return nil
}

// Scan implements [archive.Archive]. Documents are visited oldest first.
func (s *Store) Scan(ctx context.Context, fn func(archive.Document) error) error {
	if s.closed.Load() {
		return archive.ErrClosed
	}
	const q = `
		SELECT id, author_id, channel_id, text, timestamp
		FROM   archive_documents
		WHERE  community = $1
		ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, s.community)
	if err != nil {
		return fmt.Errorf("postgres archive: scan: %w", err)
	}

	var (
		d     archive.Document
		ts    time.Time
		fnErr error
	)
	_, err = pgx.ForEachRow(rows, []any{&d.ID, &d.AuthorID, &d.ChannelID, &d.Text, &ts}, func() error {
		d.Timestamp = ts
		fnErr = fn(d)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("postgres archive: scan: %w", err)
	}
	return nil
}

// Close releases the pool when the store owns it.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
