package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lazycmd/pkg/cmd"
)

const EmbedColor = 0xb01e66

func embed(r cmd.Response) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       r.Title,
		Description: r.Content,
		Color:       EmbedColor,
	}
}

func flags(r cmd.Response) discordgo.MessageFlags {
	if r.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// interactionResponder answers a slash command: the initial reply is the
// interaction response, follow-ups are webhook messages.
type interactionResponder struct {
	s *discordgo.Session
	i *discordgo.Interaction
}

func (r *interactionResponder) Reply(ctx context.Context, resp cmd.Response) error {
	return r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed(resp)},
			Flags:  flags(resp),
		},
	}, discordgo.WithContext(ctx))
}

func (r *interactionResponder) Followup(ctx context.Context, resp cmd.Response) error {
	_, err := r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed(resp)},
		Flags:  flags(resp),
	}, discordgo.WithContext(ctx))
	return err
}

// messageResponder answers a prefix message: the initial reply references
// the message, follow-ups are plain channel messages. Channel messages
// cannot be ephemeral.
type messageResponder struct {
	s *discordgo.Session
	m *discordgo.Message
}

func (r *messageResponder) Reply(ctx context.Context, resp cmd.Response) error {
	_, err := r.s.ChannelMessageSendComplex(r.m.ChannelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{embed(resp)},
		Reference: r.m.Reference(),
	}, discordgo.WithContext(ctx))
	return err
}

func (r *messageResponder) Followup(ctx context.Context, resp cmd.Response) error {
	_, err := r.s.ChannelMessageSendEmbed(r.m.ChannelID, embed(resp), discordgo.WithContext(ctx))
	return err
}
