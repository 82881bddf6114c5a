// Package app wires all Soph subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the stores and builds the
// responder, Run serves HTTP and the Discord gateway, and Shutdown tears
// everything down in order.
//
// For testing, inject implementations via functional options (WithAuthors,
// WithArchives, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PennyNeko/Soph/internal/archive/postgres"
	"github.com/PennyNeko/Soph/internal/authors"
	"github.com/PennyNeko/Soph/internal/community"
	"github.com/PennyNeko/Soph/internal/config"
	"github.com/PennyNeko/Soph/internal/corpus"
	"github.com/PennyNeko/Soph/internal/discord"
	"github.com/PennyNeko/Soph/internal/health"
	"github.com/PennyNeko/Soph/internal/index"
	"github.com/PennyNeko/Soph/internal/markov"
	"github.com/PennyNeko/Soph/internal/mcp"
	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/responder"
	"github.com/PennyNeko/Soph/internal/sentiment"
)

// httpShutdownTimeout bounds draining in-flight HTTP requests.
const httpShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics        *observe.Metrics
	metricsHandler http.Handler
	authors        *authors.Store
	analyzer       sentiment.Analyzer
	archives       community.ArchiveOpener
	communities    *community.Registry
	engine         *responder.Engine
	bot            *discord.Bot
	mcp            *mcp.Server
	mux            *http.ServeMux

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithAuthors injects an author store instead of opening the configured
// files.
func WithAuthors(s *authors.Store) Option {
	return func(a *App) { a.authors = s }
}

// WithSentiment sets the analyzer behind the analyze command.
func WithSentiment(an sentiment.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// WithArchives injects an archive opener instead of the configured backend.
func WithArchives(o community.ArchiveOpener) Option {
	return func(a *App) { a.archives = o }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Communities are
// opened lazily; the Discord gateway connects in Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Authors ───────────────────────────────────────────────────────
	if err := a.initAuthors(); err != nil {
		return nil, fmt.Errorf("app: init authors: %w", err)
	}

	// ── 2. Communities ───────────────────────────────────────────────────
	if err := a.initCommunities(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init communities: %w", err)
	}

	// ── 3. Discord ───────────────────────────────────────────────────────
	if err := a.initDiscord(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init discord: %w", err)
	}

	// ── 4. Responder ─────────────────────────────────────────────────────
	a.initEngine()

	// ── 5. MCP ───────────────────────────────────────────────────────────
	if err := a.initMCP(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	// ── 6. HTTP routes ───────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initAuthors() error {
	if a.authors != nil {
		return nil
	}
	s, err := authors.Open(a.cfg.DataPath(a.cfg.Data.AuthorsFile), a.cfg.DataPath(a.cfg.Data.AliasFile))
	if err != nil {
		return err
	}
	a.authors = s
	return nil
}

func (a *App) initCommunities(ctx context.Context) error {
	if a.archives == nil {
		switch a.cfg.Index.Backend {
		case config.BackendPostgres:
			pool, err := postgres.Connect(ctx, a.cfg.Index.PostgresDSN)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, func() error { pool.Close(); return nil })
			a.archives = community.PostgresArchives(pool)
		case config.BackendMemory:
			a.archives = community.MemArchives()
		default:
			a.archives = community.BadgerArchives(a.cfg.Data.Dir, a.cfg.Index.BadgerGCInterval, slog.Default().With("component", "badger"))
		}
	}

	filter, err := markov.FilterByName(string(a.cfg.Markov.Filter))
	if err != nil {
		return err
	}
	a.communities = community.New(community.Config{
		DataDir:          a.cfg.Data.Dir,
		Archives:         a.archives,
		DefaultCommunity: a.cfg.Discord.DefaultGuild,
		Metrics:          a.metrics,
		CorpusOptions: []corpus.Option{
			corpus.WithFilter(a.cfg.Corpus.Filter...),
			corpus.WithCacheCapacity(a.cfg.Corpus.CacheCapacity),
			corpus.WithLoadConcurrency(a.cfg.Corpus.LoadConcurrency),
			corpus.WithMetrics(a.metrics),
			corpus.WithModelOptions(
				markov.WithStateSize(a.cfg.Markov.StateSize),
				markov.WithInputFilter(filter),
			),
		},
		IndexOptions: []index.Option{
			index.WithDefaultLimit(a.cfg.Index.QueryLimit),
			index.WithMinWords(a.cfg.Index.LongMinWords),
			index.WithMetrics(a.metrics),
		},
	})
	// Prepended so communities close before the pool they share.
	a.closers = append([]func() error{a.communities.Close}, a.closers...)
	return nil
}

func (a *App) initDiscord() error {
	if a.cfg.Discord.Token == "" {
		slog.Info("discord token not set, gateway disabled")
		return nil
	}
	bot, err := discord.New(discord.Config{
		Token:        a.cfg.Discord.Token,
		CommandGuild: a.cfg.Discord.DefaultGuild,
	}, a.authors)
	if err != nil {
		return err
	}
	a.bot = bot
	a.closers = append([]func() error{bot.Close}, a.closers...)
	return nil
}

func (a *App) initEngine() {
	opts := []responder.Option{
		responder.WithSettings(botSettings(a.cfg.Bot)),
		responder.WithMetrics(a.metrics),
	}
	if a.analyzer != nil {
		opts = append(opts, responder.WithSentiment(a.analyzer))
	}
	if a.bot != nil {
		opts = append(opts, responder.WithResolver(a.bot.Resolver()))
	}
	a.engine = responder.New(a.communities, a.authors, opts...)
}

func (a *App) initMCP() error {
	if !a.cfg.MCP.Enabled {
		return nil
	}
	srv, err := mcp.NewServer(a.communities, a.authors,
		mcp.WithToken(a.cfg.MCP.Token),
		mcp.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.mcp = srv
	return nil
}

func (a *App) initHTTP() {
	a.mux = http.NewServeMux()

	checkers := []health.Checker{health.DirChecker("data", a.cfg.Data.Dir)}
	if a.bot != nil {
		checkers = append(checkers, health.ConnChecker("discord", a.bot.Connected))
	}
	health.New(checkers...).Register(a.mux)

	if a.metricsHandler != nil {
		a.mux.Handle("GET /metrics", a.metricsHandler)
	}
	if a.mcp != nil {
		a.mcp.Register(a.mux)
	}
}

// botSettings converts the bot config section to responder settings.
func botSettings(b config.BotConfig) responder.Settings {
	return responder.Settings{
		Name:     b.Name,
		MasterID: b.MasterID,
		Timing:   b.Timing,
		Shrug:    b.Shrug,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler with the metrics middleware applied.
func (a *App) Handler() http.Handler {
	return observe.Middleware(a.metrics)(a.mux)
}

// Engine returns the responder.
func (a *App) Engine() *responder.Engine {
	return a.engine
}

// Communities returns the community registry.
func (a *App) Communities() *community.Registry {
	return a.communities
}

// Reload applies the hot-reloadable part of a config change. Fields that
// need a restart are logged and otherwise ignored.
func (a *App) Reload(d config.ConfigDiff) {
	if d.BotChanged {
		a.engine.SetSettings(botSettings(d.NewBot))
		slog.Info("bot settings reloaded", "name", d.NewBot.Name, "timing", d.NewBot.Timing)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured listen address and, when a token is set,
// the Discord gateway. It blocks until ctx is cancelled and then returns
// ctx.Err(), or returns early with the first serving error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.bot != nil {
		handlerOpts := []discord.HandlerOption{discord.WithNameLearner(a.authors)}
		if a.cfg.Discord.Ingest {
			handlerOpts = append(handlerOpts, discord.WithIngest(a.communities))
		}
		cmd, ask := discord.NewAskCommand(ctx, a.engine)
		a.bot.Router().RegisterCommand(discord.AskCommand, cmd, ask)

		if err := a.bot.Open(ctx, discord.NewMessageHandler(a.engine, handlerOpts...)); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		g.Go(func() error { return a.bot.Run(gctx) })
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), httpShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("app running", "discord", a.bot != nil, "mcp", a.mcp != nil)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: the gateway first, then the
// communities, then shared connection pools. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases whatever New opened before failing.
func (a *App) runClosers() {
	for _, closer := range a.closers {
		_ = closer()
	}
}
