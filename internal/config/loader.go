package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":9090"
	DefaultBotName         = "Soph"
	DefaultDataDir         = "data"
	DefaultAuthorsFile     = "authors"
	DefaultAliasFile       = "aliases"
	DefaultCacheCapacity   = 3
	DefaultLoadConcurrency = 4
	DefaultStateSize       = 2
	DefaultQueryLimit      = 100
	DefaultLongMinWords    = 4
)

// ValidSentimentProviders lists the sentiment providers main registers.
// Used by [Validate] to warn about unrecognised names.
var ValidSentimentProviders = []string{
	"openai", "lexicon",
	"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = DefaultBotName
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = DefaultDataDir
	}
	if cfg.Data.AuthorsFile == "" {
		cfg.Data.AuthorsFile = DefaultAuthorsFile
	}
	if cfg.Data.AliasFile == "" {
		cfg.Data.AliasFile = DefaultAliasFile
	}
	if cfg.Corpus.CacheCapacity == 0 {
		cfg.Corpus.CacheCapacity = DefaultCacheCapacity
	}
	if cfg.Corpus.LoadConcurrency == 0 {
		cfg.Corpus.LoadConcurrency = DefaultLoadConcurrency
	}
	if cfg.Markov.StateSize == 0 {
		cfg.Markov.StateSize = DefaultStateSize
	}
	if cfg.Markov.Filter == "" {
		cfg.Markov.Filter = FilterAcceptAll
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = BackendBadger
	}
	if cfg.Index.QueryLimit == 0 {
		cfg.Index.QueryLimit = DefaultQueryLimit
	}
	if cfg.Index.LongMinWords == 0 {
		cfg.Index.LongMinWords = DefaultLongMinWords
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Bot
	if cfg.Bot.MasterID == "" {
		slog.Warn("bot.master_id is empty; nobody can set aliases or options")
	}

	// Corpus
	if cfg.Corpus.CacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("corpus.cache_capacity %d must not be negative", cfg.Corpus.CacheCapacity))
	}
	if cfg.Corpus.LoadConcurrency < 0 {
		errs = append(errs, fmt.Errorf("corpus.load_concurrency %d must not be negative", cfg.Corpus.LoadConcurrency))
	}

	// Markov
	if cfg.Markov.StateSize < 0 || cfg.Markov.StateSize > 5 {
		errs = append(errs, fmt.Errorf("markov.state_size %d is out of range [1, 5]", cfg.Markov.StateSize))
	}
	if cfg.Markov.Filter != "" && !cfg.Markov.Filter.IsValid() {
		errs = append(errs, fmt.Errorf("markov.filter %q is invalid; valid values: accept_all, reject_stray_punctuation", cfg.Markov.Filter))
	}

	// Index
	if cfg.Index.Backend != "" && !cfg.Index.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("index.backend %q is invalid; valid values: badger, postgres, memory", cfg.Index.Backend))
	}
	if cfg.Index.Backend == BackendPostgres && cfg.Index.PostgresDSN == "" {
		errs = append(errs, errors.New("index.postgres_dsn is required when index.backend is postgres"))
	}
	if cfg.Index.QueryLimit < 0 {
		errs = append(errs, fmt.Errorf("index.query_limit %d must not be negative", cfg.Index.QueryLimit))
	}
	if cfg.Index.LongMinWords < 0 {
		errs = append(errs, fmt.Errorf("index.long_min_words %d must not be negative", cfg.Index.LongMinWords))
	}

	// Sentiment
	validateProviderName(cfg.Sentiment.Provider)
	if cfg.Sentiment.Provider == "openai" && cfg.Sentiment.APIKey == "" {
		errs = append(errs, errors.New("sentiment.api_key is required when sentiment.provider is openai"))
	}
	if f := cfg.Sentiment.Fallback; f != "" {
		switch {
		case cfg.Sentiment.Provider == "":
			errs = append(errs, errors.New("sentiment.fallback requires sentiment.provider"))
		case f == cfg.Sentiment.Provider:
			errs = append(errs, fmt.Errorf("sentiment.fallback %q must differ from sentiment.provider", f))
		default:
			validateProviderName(f)
		}
	}

	// Discord
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty; running without a chat transport")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// [ValidSentimentProviders].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidSentimentProviders, name) {
		return
	}
	slog.Warn("unknown sentiment provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidSentimentProviders,
	)
}

// DataPath resolves a file named in [DataConfig] against the data directory.
func (c *Config) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Data.Dir, name)
}
