package discord_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/PennyNeko/Soph/internal/archive"
	"github.com/PennyNeko/Soph/internal/discord"
	"github.com/PennyNeko/Soph/internal/discord/mock"
	"github.com/PennyNeko/Soph/internal/index"
	"github.com/PennyNeko/Soph/internal/responder"
)

type fakeConsumer struct {
	mu    sync.Mutex
	got   []responder.Message
	reply string
}

func (f *fakeConsumer) Consume(_ context.Context, msg responder.Message) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return f.reply, f.reply != ""
}

func (f *fakeConsumer) Addressed(content string) bool {
	return strings.HasPrefix(content, "Ok Soph")
}

type fakeIndexes struct {
	ix  *index.Index
	err error
}

func (f *fakeIndexes) Index(context.Context, string) (*index.Index, error) {
	return f.ix, f.err
}

type learned map[string]string

func (l learned) Learn(name, id string) { l[name] = id }

func newIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.Open(context.Background(), archive.NewMemStore())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	return ix
}

func message(guild, author, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   guild,
		Content:   content,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Author:    &discordgo.User{ID: author, Username: "alice", GlobalName: "Alice"},
	}
}

func TestHandle_Reply(t *testing.T) {
	t.Parallel()
	c := &fakeConsumer{reply: "Nothing, apparently, Alice"}
	names := learned{}
	h := discord.NewMessageHandler(c, discord.WithNameLearner(names))
	s := &mock.Session{}

	m := message("g1", "u1", "Ok Soph, who talks about cheese?")
	m.Member = &discordgo.Member{Nick: "Ali"}
	h.Handle(context.Background(), s, "bot", m)

	if len(c.got) != 1 {
		t.Fatalf("consumed %d messages, want 1", len(c.got))
	}
	got := c.got[0]
	if got.AuthorName != "Ali" || got.AuthorID != "u1" || got.GuildID != "g1" || got.Private {
		t.Errorf("message = %+v", got)
	}
	if names["Ali"] != "u1" {
		t.Errorf("learned = %v, want Ali -> u1", names)
	}
	sent := s.Messages()
	if len(sent) != 1 || sent[0].ChannelID != "c1" || sent[0].Content != c.reply {
		t.Errorf("sent = %+v", sent)
	}
	want := []string{discord.DefaultStatus, ""}
	if strings.Join(s.Statuses, "|") != strings.Join(want, "|") {
		t.Errorf("statuses = %q, want %q", s.Statuses, want)
	}
}

func TestHandle_IgnoresSelf(t *testing.T) {
	t.Parallel()
	c := &fakeConsumer{reply: "hi"}
	h := discord.NewMessageHandler(c)
	s := &mock.Session{}

	h.Handle(context.Background(), s, "bot", message("g1", "bot", "Ok Soph, help"))
	h.Handle(context.Background(), s, "bot", &discordgo.Message{Content: "no author"})

	if len(c.got) != 0 || len(s.Messages()) != 0 {
		t.Errorf("consumed %d, sent %d; want nothing", len(c.got), len(s.Messages()))
	}
}

func TestHandle_NoReply(t *testing.T) {
	t.Parallel()
	c := &fakeConsumer{}
	h := discord.NewMessageHandler(c, discord.WithStatus(""))
	s := &mock.Session{}

	h.Handle(context.Background(), s, "bot", message("", "u1", "hello"))

	if len(c.got) != 1 || !c.got[0].Private {
		t.Fatalf("want one private message, got %+v", c.got)
	}
	if len(s.Messages()) != 0 {
		t.Errorf("sent %v, want nothing", s.Messages())
	}
	if len(s.Statuses) != 0 {
		t.Errorf("statuses = %q, want none", s.Statuses)
	}
}

func TestHandle_Ingest(t *testing.T) {
	t.Parallel()
	ix := newIndex(t)
	h := discord.NewMessageHandler(&fakeConsumer{}, discord.WithIngest(&fakeIndexes{ix: ix}))
	s := &mock.Session{}

	h.Handle(context.Background(), s, "bot", message("g1", "u1", "cheese is great"))
	dm := message("", "u1", "secret cheese")
	dm.ID = "m2"
	h.Handle(context.Background(), s, "bot", dm)
	bot := message("g1", "u2", "beep cheese")
	bot.ID = "m3"
	bot.Author.Bot = true
	h.Handle(context.Background(), s, "bot", bot)

	if ix.Len() != 1 {
		t.Fatalf("indexed %d documents, want 1", ix.Len())
	}
	if n := ix.Counts("u1"); n != 1 {
		t.Errorf("Counts(u1) = %d, want 1", n)
	}
}

func TestHandle_IngestErrorStillReplies(t *testing.T) {
	t.Parallel()
	c := &fakeConsumer{reply: "Done"}
	h := discord.NewMessageHandler(c, discord.WithIngest(&fakeIndexes{err: errors.New("closed")}))
	s := &mock.Session{}

	h.Handle(context.Background(), s, "bot", message("g1", "u1", "cheese is great"))

	if len(s.Messages()) != 1 {
		t.Errorf("sent %d messages, want 1", len(s.Messages()))
	}
}

func TestHandle_AddressedNotIngested(t *testing.T) {
	t.Parallel()
	ix := newIndex(t)
	c := &countingConsumer{ix: ix}
	h := discord.NewMessageHandler(c, discord.WithIngest(&fakeIndexes{ix: ix}))
	s := &mock.Session{}

	h.Handle(context.Background(), s, "bot", message("g1", "u1", "Ok Soph, who talks about cheese"))
	chat := message("g1", "u1", "cheese again")
	chat.ID = "m2"
	h.Handle(context.Background(), s, "bot", chat)

	if ix.Len() != 1 {
		t.Errorf("indexed %d documents, want only the chat message", ix.Len())
	}
	if c.seen != 0 {
		t.Errorf("question saw %d indexed documents, want 0", c.seen)
	}
}

// countingConsumer records how many documents the index held when the
// first message was consumed.
type countingConsumer struct {
	fakeConsumer
	ix    *index.Index
	seen  int
	calls int
}

func (c *countingConsumer) Consume(context.Context, responder.Message) (string, bool) {
	if c.calls == 0 {
		c.seen = c.ix.Len()
	}
	c.calls++
	return "No one, apparently", true
}

func TestHandle_SplitsLongReplies(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 99) + "\n"
	c := &fakeConsumer{reply: strings.Repeat(line, 30)}
	h := discord.NewMessageHandler(c)
	s := &mock.Session{}

	h.Handle(context.Background(), s, "bot", message("g1", "u1", "Ok Soph, help"))

	sent := s.Messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d chunks, want 2", len(sent))
	}
	if len(sent[0].Content) != 2000 || len(sent[1].Content) != 1000 {
		t.Errorf("chunk sizes = %d, %d", len(sent[0].Content), len(sent[1].Content))
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "empty", text: "", limit: 5, want: nil},
		{name: "fits", text: "hello", limit: 5, want: []string{"hello"}},
		{name: "hard cut", text: "abcdefg", limit: 3, want: []string{"abc", "def", "g"}},
		{name: "newline break", text: "ab\ncdef", limit: 5, want: []string{"ab\n", "cdef"}},
		{name: "multibyte", text: "ééééé", limit: 2, want: []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := discord.SplitMessage(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("SplitMessage(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
			for _, chunk := range got {
				if !utf8.ValidString(chunk) {
					t.Errorf("chunk %q is not valid UTF-8", chunk)
				}
			}
		})
	}
}

func TestAuthorName(t *testing.T) {
	t.Parallel()
	u := &discordgo.User{Username: "alice99", GlobalName: "Alice"}

	tests := []struct {
		name   string
		user   *discordgo.User
		member *discordgo.Member
		want   string
	}{
		{name: "nickname", user: u, member: &discordgo.Member{Nick: "Ali"}, want: "Ali"},
		{name: "global name", user: u, member: &discordgo.Member{}, want: "Alice"},
		{name: "username", user: &discordgo.User{Username: "bob"}, want: "bob"},
		{name: "nothing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := discord.AuthorName(tt.user, tt.member); got != tt.want {
				t.Errorf("AuthorName = %q, want %q", got, tt.want)
			}
		})
	}
}
