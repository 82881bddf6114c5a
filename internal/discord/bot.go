// Package discord connects Soph to the Discord gateway. It owns the
// discordgo.Session lifecycle, feeds chat messages to the responder, records
// author names and routes slash command interactions.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token, without the "Bot " prefix.
	Token string

	// CommandGuild registers slash commands in one guild only, which
	// Discord applies immediately. Empty registers them globally.
	CommandGuild string
}

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	handler   *MessageHandler
	names     NameLearner
	guildID   string
	commands  []*discordgo.ApplicationCommand
	connected atomic.Bool
	closeOnce sync.Once
}

// New creates a Bot and registers the gateway handlers. It does not connect;
// call [Bot.Open] once the message handler exists.
func New(cfg Config, names NameLearner) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		names:   names,
		guildID: cfg.CommandGuild,
	}
	b.addHandlers(session)
	return b, nil
}

// Open attaches handler and connects to the gateway. Messages are handled
// under ctx.
func (b *Bot) Open(ctx context.Context, handler *MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handler != nil {
		return fmt.Errorf("discord: already open")
	}
	b.handler = handler
	b.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		var self string
		if s.State != nil && s.State.User != nil {
			self = s.State.User.ID
		}
		handler.Handle(ctx, s, self, m.Message)
	})
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	return nil
}

func (b *Bot) addHandlers(session *discordgo.Session) {
	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Connect) {
		b.connected.Store(true)
		slog.Info("discord connected")
	})
	session.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		b.connected.Store(false)
		slog.Warn("discord disconnected")
	})
	session.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.names == nil || g.Guild == nil {
			return
		}
		for _, m := range g.Members {
			b.learn(m)
		}
		slog.Debug("discord guild available", "guild", g.ID, "members", len(g.Members))
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if b.names != nil {
			b.learn(m.Member)
		}
	})
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
}

func (b *Bot) learn(m *discordgo.Member) {
	if m == nil || m.User == nil || m.User.Bot {
		return
	}
	if name := AuthorName(m.User, m); name != "" {
		b.names.Learn(name, m.User.ID)
	}
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Resolver returns a name resolver over the gateway state.
func (b *Bot) Resolver() *StateResolver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return NewStateResolver(b.session.State)
}

// Connected reports whether the gateway connection is up.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord. Commands registered for a single guild are
// removed; global commands are kept since Discord propagates them slowly.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.guildID != "" && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		b.connected.Store(false)
		slog.Info("discord bot closed")
	})
	return closeErr
}
