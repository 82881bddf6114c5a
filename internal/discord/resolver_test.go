package discord_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/PennyNeko/Soph/internal/discord"
)

func TestStateResolver(t *testing.T) {
	t.Parallel()
	st := discordgo.NewState()
	if err := st.GuildAdd(&discordgo.Guild{
		ID:    "g1",
		Roles: []*discordgo.Role{{ID: "r1", Name: "moderators"}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := st.MemberAdd(&discordgo.Member{
		GuildID: "g1",
		Nick:    "Ali",
		User:    &discordgo.User{ID: "u1", Username: "alice"},
	}); err != nil {
		t.Fatal(err)
	}
	r := discord.NewStateResolver(st)

	tests := []struct {
		name   string
		guild  string
		id     string
		want   string
		wantOK bool
	}{
		{name: "member", guild: "g1", id: "u1", want: "Ali", wantOK: true},
		{name: "role", guild: "g1", id: "r1", want: "moderators", wantOK: true},
		{name: "unknown id", guild: "g1", id: "u9"},
		{name: "unknown guild", guild: "g2", id: "u1"},
		{name: "direct message", guild: "", id: "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := r.ResolveName(context.Background(), tt.guild, tt.id)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ResolveName(%q, %q) = %q, %v; want %q, %v", tt.guild, tt.id, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
