// Package responder turns chat messages into answers about a community's
// message archive.
//
// An [Engine] strips the address prefix ("Ok Soph, ..."), routes the rest
// through an ordered list of [Route]s and formats the first non-empty reply.
// Handlers read from the community's [index.Index] and [corpus.Corpus]
// through a [Backend], resolve names with an [authors.Store] and post-filter
// results with an [nlp.Extractor].
package responder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PennyNeko/Soph/internal/authors"
	"github.com/PennyNeko/Soph/internal/corpus"
	"github.com/PennyNeko/Soph/internal/index"
	"github.com/PennyNeko/Soph/internal/nlp"
	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/sentiment"
)

// DefaultShrug is the reaction used when a request cannot be answered.
const DefaultShrug = "<:lann:275432680533917697>"

// replyWindow is how soon after answering someone else a reply is prefixed
// with the asker's name.
const replyWindow = 2 * time.Second

// ErrNoCommunity is returned by a [Backend] for messages outside a guild.
var ErrNoCommunity = errors.New("responder: message has no community")

// Message is an incoming chat message.
type Message struct {
	ID         string
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Content    string

	// Private marks a direct message. Direct messages need no address
	// prefix.
	Private bool
}

// Backend gives access to the per-community stores.
type Backend interface {
	Index(ctx context.Context, guildID string) (*index.Index, error)
	Corpus(ctx context.Context, guildID string) (*corpus.Corpus, error)
}

// Resolver looks up display names the author store does not know, such as
// role names or members that never posted.
type Resolver interface {
	ResolveName(ctx context.Context, guildID, id string) (string, bool)
}

// Settings are the runtime options. They can be replaced while the engine
// runs, by [Engine.SetSettings] or the "set" command.
type Settings struct {
	// Name is what users call the bot in the address prefix.
	Name string

	// MasterID is the only author allowed to change settings and aliases.
	MasterID string

	// Timing appends the handling time to every reply.
	Timing bool

	// Shrug is appended to apologetic replies.
	Shrug string
}

type settings struct {
	Settings
	address *regexp.Regexp
}

func compileSettings(s Settings) *settings {
	if s.Name == "" {
		s.Name = "Soph"
	}
	if s.Shrug == "" {
		s.Shrug = DefaultShrug
	}
	return &settings{
		Settings: s,
		address:  regexp.MustCompile(`^(Ok|So)((,\s*)|(\s+))` + regexp.QuoteMeta(s.Name) + `\s*[,\-.:]\s*`),
	}
}

// Engine is the query engine. Safe for concurrent use; each message is
// handled sequentially on the caller's goroutine.
type Engine struct {
	backend   Backend
	authors   *authors.Store
	extractor nlp.Extractor
	names     *nlp.NameMatcher
	analyzer  sentiment.Analyzer
	resolver  Resolver
	metrics   *observe.Metrics
	now       func() time.Time

	settings atomic.Pointer[settings]

	routes   []Route
	noPrefix []Route

	mu        sync.Mutex
	lastReply time.Time
	lastFrom  string
}

// Option configures an [Engine].
type Option func(*Engine)

// WithSettings sets the initial runtime options.
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings.Store(compileSettings(s)) }
}

// WithExtractor replaces the default [nlp.Heuristic].
func WithExtractor(x nlp.Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithNameMatcher sets the matcher used to resolve misspelt user names.
func WithNameMatcher(m *nlp.NameMatcher) Option {
	return func(e *Engine) { e.names = m }
}

// WithSentiment sets the sentiment analyzer. Without one the analyze
// command is unavailable.
func WithSentiment(a sentiment.Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithResolver sets the fallback name resolver.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithMetrics records handled messages.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNoPrefixRoutes installs routes that see every message before the
// address check.
func WithNoPrefixRoutes(routes ...Route) Option {
	return func(e *Engine) { e.noPrefix = append(e.noPrefix, routes...) }
}

// New returns an engine answering from backend and store.
func New(backend Backend, store *authors.Store, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		authors: store,
		now:     time.Now,
	}
	e.settings.Store(compileSettings(Settings{}))
	for _, o := range opts {
		o(e)
	}
	if e.names == nil {
		e.names = nlp.NewNameMatcher()
	}
	if e.extractor == nil {
		e.extractor = nlp.NewHeuristic(e.names)
	}
	e.routes = e.defaultRoutes()
	return e
}

// Settings returns the current runtime options.
func (e *Engine) Settings() Settings {
	return e.settings.Load().Settings
}

// SetSettings replaces the runtime options.
func (e *Engine) SetSettings(s Settings) {
	e.settings.Store(compileSettings(s))
}

// Routes returns the prefixed routes in dispatch order.
func (e *Engine) Routes() []Route {
	return e.routes
}

// Addressed reports whether content opens with the address prefix for the
// current name.
func (e *Engine) Addressed(content string) bool {
	return e.settings.Load().address.MatchString(content)
}

// Consume answers msg. It reports false when the message needs no reply:
// channel messages that do not address the bot by name, or requests
// nothing could answer.
func (e *Engine) Consume(ctx context.Context, msg Message) (string, bool) {
	ctx, timer := observe.StartTimer(ctx, "full_request")
	log := observe.Logger(ctx).With("message", msg.ID, "guild", msg.GuildID, "author", msg.AuthorID)
	log.Debug("consuming message", "content", truncate(msg.Content, 100))

	reply, status, err := e.consume(ctx, msg)
	if err != nil {
		log.Warn("responder: request failed", "err", err)
		reply, status = e.settings.Load().Shrug, "error"
	}
	elapsed := timer.Stop()

	now := e.now()
	e.mu.Lock()
	if reply != "" && msg.AuthorName != e.lastFrom && now.Sub(e.lastReply) < replyWindow &&
		!strings.Contains(reply, msg.AuthorName) {
		reply = msg.AuthorName + " - " + reply
	}
	e.lastReply = now
	e.lastFrom = msg.AuthorName
	e.mu.Unlock()

	if reply != "" && e.settings.Load().Timing {
		reply += fmt.Sprintf("\n%.2fs", elapsed.Seconds())
	}
	if e.metrics != nil {
		e.metrics.RecordMessage(ctx, status)
	}
	if reply != "" {
		log.Debug("request timing\n" + timer.String())
	}
	return reply, reply != ""
}

func (e *Engine) consume(ctx context.Context, msg Message) (reply, status string, err error) {
	s := e.settings.Load()
	payload := s.address.ReplaceAllString(msg.Content, "")

	if reply, err := dispatch(ctx, e.noPrefix, msg, payload); err != nil || reply != "" {
		return reply, "replied", err
	}

	if !msg.Private && len(payload) == len(msg.Content) {
		return "", "ignored", nil
	}
	if strings.TrimSpace(payload) == "" {
		return "What?", "replied", nil
	}

	reply, err = dispatch(ctx, e.routes, msg, payload)
	if err != nil || reply != "" {
		return reply, "replied", err
	}

	echo := e.stripMentions(ctx, msg.GuildID, payload)
	return fmt.Sprintf("I was addressed, and %s said \"%s\"", msg.AuthorName, echo), "fallback", nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
