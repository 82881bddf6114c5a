package discord

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/PennyNeko/Soph/internal/archive"
	"github.com/PennyNeko/Soph/internal/index"
	"github.com/PennyNeko/Soph/internal/observe"
	"github.com/PennyNeko/Soph/internal/responder"
)

// maxMessageLen is Discord's message length limit, in characters.
const maxMessageLen = 2000

// DefaultStatus is shown as the bot's activity while it works on a reply.
const DefaultStatus = "with your text data"

// Sender is the subset of *discordgo.Session the handlers use.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UpdateGameStatus(idle int, name string) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Consumer answers chat messages. Implemented by *responder.Engine.
type Consumer interface {
	Consume(ctx context.Context, msg responder.Message) (string, bool)
	// Addressed reports whether content opens by addressing the bot.
	Addressed(content string) bool
}

// Indexes opens community indexes for ingestion. Implemented by
// *community.Registry.
type Indexes interface {
	Index(ctx context.Context, guildID string) (*index.Index, error)
}

// NameLearner records display names seen on the gateway. Implemented by
// *authors.Store.
type NameLearner interface {
	Learn(name, id string)
}

// MessageHandler turns gateway messages into responder calls.
type MessageHandler struct {
	consumer Consumer
	indexes  Indexes
	names    NameLearner
	ingest   bool
	status   string
}

// HandlerOption configures a [MessageHandler].
type HandlerOption func(*MessageHandler)

// WithIngest appends guild messages that do not address the bot to their
// community index.
func WithIngest(ix Indexes) HandlerOption {
	return func(h *MessageHandler) {
		h.indexes = ix
		h.ingest = ix != nil
	}
}

// WithNameLearner records author display names.
func WithNameLearner(n NameLearner) HandlerOption {
	return func(h *MessageHandler) { h.names = n }
}

// WithStatus replaces [DefaultStatus]. An empty status leaves the presence
// alone.
func WithStatus(status string) HandlerOption {
	return func(h *MessageHandler) { h.status = status }
}

// NewMessageHandler returns a handler answering through c.
func NewMessageHandler(c Consumer, opts ...HandlerOption) *MessageHandler {
	h := &MessageHandler{consumer: c, status: DefaultStatus}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle processes one message. Messages by selfID are ignored.
func (h *MessageHandler) Handle(ctx context.Context, s Sender, selfID string, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.ID == selfID {
		return
	}
	ctx, span := observe.StartSpan(ctx, "discord.message")
	defer span.End()
	log := observe.Logger(ctx).With("message", m.ID, "channel", m.ChannelID, "guild", m.GuildID)

	name := AuthorName(m.Author, m.Member)
	if h.names != nil {
		h.names.Learn(name, m.Author.ID)
	}
	if h.status != "" {
		if err := s.UpdateGameStatus(0, h.status); err != nil {
			log.Debug("discord: failed to set status", "err", err)
		}
		defer func() {
			if err := s.UpdateGameStatus(0, ""); err != nil {
				log.Debug("discord: failed to clear status", "err", err)
			}
		}()
	}

	reply, ok := h.consumer.Consume(ctx, responder.Message{
		ID:         m.ID,
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: name,
		Content:    m.Content,
		Private:    m.GuildID == "",
	})
	// Requests to the bot are not chat; the rest is indexed after answering
	// so a message never counts toward its own reply.
	if h.ingest && m.GuildID != "" && !m.Author.Bot && !h.consumer.Addressed(m.Content) {
		h.ingestMessage(ctx, log, m)
	}
	if !ok {
		return
	}
	for _, chunk := range SplitMessage(reply, maxMessageLen) {
		if _, err := s.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			log.Warn("discord: failed to send reply", "err", err)
			return
		}
	}
}

func (h *MessageHandler) ingestMessage(ctx context.Context, log *slog.Logger, m *discordgo.Message) {
	if strings.TrimSpace(m.Content) == "" {
		return
	}
	ix, err := h.indexes.Index(ctx, m.GuildID)
	if err != nil {
		log.Warn("discord: ingest skipped", "err", err)
		return
	}
	doc := archive.Document{
		ID:        m.ID,
		AuthorID:  m.Author.ID,
		ChannelID: m.ChannelID,
		Text:      m.Content,
		Timestamp: m.Timestamp,
	}
	if err := ix.Add(ctx, doc); err != nil {
		log.Warn("discord: ingest failed", "err", err)
	}
}

// AuthorName returns the name a user goes by: guild nickname, then global
// display name, then username.
func AuthorName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// SplitMessage cuts text into chunks of at most limit characters, preferring
// to break after a newline.
func SplitMessage(text string, limit int) []string {
	var out []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl + 1
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// byteOffset returns the byte offset of the n-th rune of s.
func byteOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}
