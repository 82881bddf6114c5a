// Command soph is the main entry point for the Soph Discord bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/PennyNeko/Soph/internal/app"
	"github.com/PennyNeko/Soph/internal/config"
	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/resilience"
	"github.com/PennyNeko/Soph/internal/sentiment"
	"github.com/PennyNeko/Soph/internal/sentiment/anyllm"
	"github.com/PennyNeko/Soph/internal/sentiment/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload bot settings and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "soph: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "soph: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("soph starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Index.Backend,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Sentiment provider ────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, metrics)

	opts := []app.Option{
		app.WithMetrics(metrics),
		app.WithMetricsHandler(provider.MetricsHandler()),
	}
	if cfg.Sentiment.Provider != "" {
		analyzer, err := newAnalyzer(reg, cfg.Sentiment)
		if err != nil {
			slog.Error("failed to create sentiment provider", "name", cfg.Sentiment.Provider, "err", err)
			return 1
		}
		opts = append(opts, app.WithSentiment(analyzer))
		slog.Info("provider created", "kind", "sentiment", "name", cfg.Sentiment.Provider, "fallback", cfg.Sentiment.Fallback)
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.Reload(d)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go w.Run(ctx)
		}
	}

	slog.Info("soph ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	code := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		code = 1
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the sentiment analyzers that ship with Soph
// into reg.
func registerBuiltinProviders(reg *config.Registry, metrics *observe.Metrics) {
	reg.RegisterSentiment("openai", func(entry config.SentimentConfig) (sentiment.Analyzer, error) {
		opts := []openai.Option{openai.WithMetrics(metrics)}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(entry.Timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllm.Providers {
		if name == "openai" {
			continue
		}
		reg.RegisterSentiment(name, func(entry config.SentimentConfig) (sentiment.Analyzer, error) {
			var libOpts []anyllmlib.Option
			if entry.APIKey != "" {
				libOpts = append(libOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				libOpts = append(libOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, libOpts,
				anyllm.WithTimeout(entry.Timeout),
				anyllm.WithMetrics(metrics),
			)
		})
	}

	reg.RegisterSentiment("lexicon", func(config.SentimentConfig) (sentiment.Analyzer, error) {
		return sentiment.NewLexicon(), nil
	})
}

// newAnalyzer creates the configured analyzer, chained in front of the
// fallback provider when one is set.
func newAnalyzer(reg *config.Registry, entry config.SentimentConfig) (sentiment.Analyzer, error) {
	primary, err := reg.CreateSentiment(entry)
	if err != nil {
		return nil, err
	}
	if entry.Fallback == "" {
		return primary, nil
	}
	backup, err := reg.CreateSentiment(config.SentimentConfig{Provider: entry.Fallback})
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	f := resilience.NewFailover(entry.Provider, primary, resilience.BreakerConfig{Cooldown: time.Minute})
	f.Add(entry.Fallback, backup)
	return f, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
