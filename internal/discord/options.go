package discord

import (
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/lazycmd/pkg/cmd"
)

// flattenOptions maps interaction options to strings. Sub-command options are
// merged into the same map.
func flattenOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	out := make(map[string]string, len(opts))
	var walk func([]*discordgo.ApplicationCommandInteractionDataOption)
	walk = func(opts []*discordgo.ApplicationCommandInteractionDataOption) {
		for _, o := range opts {
			switch o.Type {
			case discordgo.ApplicationCommandOptionSubCommand, discordgo.ApplicationCommandOptionSubCommandGroup:
				walk(o.Options)
				continue
			}
			out[o.Name] = optionValue(o)
		}
	}
	walk(opts)
	return out
}

func optionValue(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch o.Type {
	case discordgo.ApplicationCommandOptionString:
		return o.StringValue()
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(o.IntValue(), 10)
	case discordgo.ApplicationCommandOptionNumber:
		return strconv.FormatFloat(o.FloatValue(), 'f', -1, 64)
	case discordgo.ApplicationCommandOptionBoolean:
		return strconv.FormatBool(o.BoolValue())
	case discordgo.ApplicationCommandOptionUser,
		discordgo.ApplicationCommandOptionChannel,
		discordgo.ApplicationCommandOptionRole,
		discordgo.ApplicationCommandOptionMentionable:
		if id, ok := o.Value.(string); ok {
			return id
		}
	}
	return ""
}

func optionType(t string) discordgo.ApplicationCommandOptionType {
	switch t {
	case cmd.OptionInteger:
		return discordgo.ApplicationCommandOptionInteger
	case cmd.OptionBoolean:
		return discordgo.ApplicationCommandOptionBoolean
	case cmd.OptionUser:
		return discordgo.ApplicationCommandOptionUser
	default:
		return discordgo.ApplicationCommandOptionString
	}
}
