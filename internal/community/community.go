// Package community opens and caches the per-guild stores: the Markov
// corpus under <data_dir>/<guild>/markovData and the message archive with
// the index built over it.
//
// A [Registry] opens each community at most once, on first use, and
// implements [responder.Backend].
package community

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/PennyNeko/Soph/internal/archive"
	"github.com/PennyNeko/Soph/internal/archive/badgerstore"
	"github.com/PennyNeko/Soph/internal/archive/postgres"
	"github.com/PennyNeko/Soph/internal/corpus"
	"github.com/PennyNeko/Soph/internal/index"
	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/responder"
)

// CorpusDir is the corpus directory name inside a community directory.
const CorpusDir = "markovData"

// ErrClosed is returned by [Registry.Get] after [Registry.Close].
var ErrClosed = errors.New("community: registry closed")

// validID keeps guild ids usable as directory names.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Community is one guild's opened stores.
type Community struct {
	ID     string
	Index  *index.Index
	Corpus *corpus.Corpus

	archive archive.Archive
}

// ArchiveOpener opens the archive of one community.
type ArchiveOpener func(ctx context.Context, guildID string) (archive.Archive, error)

// BadgerArchives opens one badger directory per community at
// <dataDir>/<guild>/archive. A zero gcInterval keeps the store default.
func BadgerArchives(dataDir string, gcInterval time.Duration, logger *slog.Logger) ArchiveOpener {
	return func(_ context.Context, guildID string) (archive.Archive, error) {
		cfg := badgerstore.DefaultConfig(filepath.Join(dataDir, guildID, "archive"))
		cfg.Logger = logger
		if gcInterval > 0 {
			cfg.GCInterval = gcInterval
		}
		return badgerstore.Open(cfg)
	}
}

// PostgresArchives opens every community over one shared pool. Closing a
// community's archive leaves the pool open.
func PostgresArchives(pool *pgxpool.Pool) ArchiveOpener {
	return func(_ context.Context, guildID string) (archive.Archive, error) {
		return postgres.OpenPool(pool, guildID), nil
	}
}

// MemArchives keeps every community in memory.
func MemArchives() ArchiveOpener {
	return func(context.Context, string) (archive.Archive, error) {
		return archive.NewMemStore(), nil
	}
}

// Config configures a [Registry].
type Config struct {
	// DataDir holds one directory per community.
	DataDir string

	// Archives opens community archives. Defaults to [BadgerArchives].
	Archives ArchiveOpener

	// DefaultCommunity answers messages without a guild, such as direct
	// messages. Empty means those get [responder.ErrNoCommunity].
	DefaultCommunity string

	CorpusOptions []corpus.Option
	IndexOptions  []index.Option
	Metrics       *observe.Metrics
}

// Registry opens communities lazily and keeps them until Close. Safe for
// concurrent use.
type Registry struct {
	cfg Config

	flight singleflight.Group

	mu     sync.Mutex
	open   map[string]*Community
	closed bool
}

var _ responder.Backend = (*Registry)(nil)

// New returns an empty registry.
func New(cfg Config) *Registry {
	if cfg.Archives == nil {
		cfg.Archives = BadgerArchives(cfg.DataDir, 0, nil)
	}
	return &Registry{cfg: cfg, open: make(map[string]*Community)}
}

// Get returns the community of guildID, opening it on first use.
// Concurrent first calls share one open.
func (r *Registry) Get(ctx context.Context, guildID string) (*Community, error) {
	if guildID == "" {
		guildID = r.cfg.DefaultCommunity
	}
	if guildID == "" {
		return nil, responder.ErrNoCommunity
	}
	if !validID.MatchString(guildID) {
		return nil, fmt.Errorf("community: invalid id %q", guildID)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if c, ok := r.open[guildID]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.flight.Do(guildID, func() (any, error) {
		r.mu.Lock()
		c, ok := r.open[guildID]
		r.mu.Unlock()
		if ok {
			return c, nil
		}

		// One caller giving up must not fail the others waiting on this open.
		c, err := r.openCommunity(context.WithoutCancel(ctx), guildID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = c.archive.Close()
			return nil, ErrClosed
		}
		r.open[guildID] = c
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ActiveCommunities.Add(ctx, 1)
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Community), nil
}

func (r *Registry) openCommunity(ctx context.Context, guildID string) (*Community, error) {
	log := observe.Logger(ctx).With("community", guildID)

	dir := filepath.Join(r.cfg.DataDir, guildID, CorpusDir)
	opts := append([]corpus.Option{corpus.WithMetrics(r.cfg.Metrics)}, r.cfg.CorpusOptions...)
	c, err := corpus.Load(ctx, dir, opts...)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("community: no corpus, impersonation disabled", "dir", dir)
		c, err = corpus.New(nil, nil, opts...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("community: open %s: %w", guildID, err)
	}

	arch, err := r.cfg.Archives(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("community: open %s archive: %w", guildID, err)
	}
	ixOpts := append([]index.Option{index.WithCommunity(guildID), index.WithMetrics(r.cfg.Metrics)}, r.cfg.IndexOptions...)
	ix, err := index.Open(ctx, arch, ixOpts...)
	if err != nil {
		_ = arch.Close()
		return nil, fmt.Errorf("community: open %s: %w", guildID, err)
	}

	log.Info("community opened", "models", c.Loaded(), "documents", ix.Len())
	return &Community{ID: guildID, Index: ix, Corpus: c, archive: arch}, nil
}

// Index implements [responder.Backend].
func (r *Registry) Index(ctx context.Context, guildID string) (*index.Index, error) {
	c, err := r.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return c.Index, nil
}

// Corpus implements [responder.Backend].
func (r *Registry) Corpus(ctx context.Context, guildID string) (*corpus.Corpus, error) {
	c, err := r.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return c.Corpus, nil
}

// Open returns the ids of the opened communities, sorted.
func (r *Registry) Open() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.open))
	for id := range r.open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close closes every archive. Later calls to Get fail with [ErrClosed].
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for id, c := range r.open {
		if err := c.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("community: close %s: %w", id, err))
		}
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ActiveCommunities.Add(context.Background(), -1)
		}
	}
	r.open = nil
	return errors.Join(errs...)
}
