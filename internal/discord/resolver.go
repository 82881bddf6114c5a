package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// StateResolver resolves member and role ids from the gateway state cache.
// It satisfies responder.Resolver.
type StateResolver struct {
	state *discordgo.State
}

// NewStateResolver returns a resolver reading st.
func NewStateResolver(st *discordgo.State) *StateResolver {
	return &StateResolver{state: st}
}

// ResolveName returns the display name of the member or role with the given
// id in guildID.
func (r *StateResolver) ResolveName(_ context.Context, guildID, id string) (string, bool) {
	if r.state == nil || guildID == "" {
		return "", false
	}
	if m, err := r.state.Member(guildID, id); err == nil && m != nil {
		if name := AuthorName(m.User, m); name != "" {
			return name, true
		}
	}
	if role, err := r.state.Role(guildID, id); err == nil && role != nil {
		return role.Name, true
	}
	return "", false
}
