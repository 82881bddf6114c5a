package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/PennyNeko/Soph/internal/responder"
)

// AskCommand is the name of the slash command that asks a question without
// the address prefix.
const AskCommand = "soph"

// askFallback answers a question no route understood.
const askFallback = "I don't know. Try `help`."

// NewAskCommand returns the /soph command definition and its handler. Answers
// are only visible to the asker.
func NewAskCommand(ctx context.Context, c Consumer) (*discordgo.ApplicationCommand, HandlerFunc) {
	cmd := &discordgo.ApplicationCommand{
		Name:        AskCommand,
		Description: "Ask about the server's messages",
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "text",
			Description: "The question, e.g. \"who talks about cheese\"",
			Required:    true,
		}},
	}
	handler := func(s Sender, i *discordgo.InteractionCreate) {
		var text string
		for _, opt := range i.ApplicationCommandData().Options {
			if opt.Name == "text" {
				text = opt.StringValue()
			}
		}
		DeferReply(s, i, true)

		var author *discordgo.User
		if i.Member != nil {
			author = i.Member.User
		} else {
			author = i.User
		}
		msg := responder.Message{
			ID:        i.ID,
			GuildID:   i.GuildID,
			ChannelID: i.ChannelID,
			Content:   text,
			Private:   true,
		}
		if author != nil {
			msg.AuthorID = author.ID
			msg.AuthorName = AuthorName(author, i.Member)
		}
		reply, ok := c.Consume(ctx, msg)
		if !ok {
			reply = askFallback
		}
		chunks := SplitMessage(reply, maxMessageLen)
		for _, chunk := range chunks {
			FollowUp(s, i, chunk, true)
		}
	}
	return cmd, handler
}
