package discord

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/cmd"
	"github.com/keshon/lazycmd/pkg/retrylimit"
)

func TestBuildCommandDefinitions(t *testing.T) {
	all := []command.Metadata{
		{Name: "ban", Description: "Ban a user.", Kind: cmd.KindBoth, Enabled: true, Options: []cmd.Option{
			{Name: "user", Type: cmd.OptionUser, Required: true},
			{Name: "duration", Description: "How long", Type: cmd.OptionString},
		}},
		{Name: "legacy", Kind: cmd.KindText, Enabled: true},
		{Name: "off", Kind: cmd.KindBoth},
		{Name: "whoami", Kind: cmd.KindStructured, Enabled: true},
	}

	defs := buildCommandDefinitions(all)
	require.Len(t, defs, 2)

	ban := defs[0]
	assert.Equal(t, "ban", ban.Name)
	assert.Equal(t, discordgo.ChatApplicationCommand, ban.Type)
	require.Len(t, ban.Options, 2)
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, ban.Options[0].Type)
	assert.Equal(t, "user", ban.Options[0].Description, "missing descriptions fall back to the name")
	assert.True(t, ban.Options[0].Required)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, ban.Options[1].Type)

	assert.Equal(t, "whoami", defs[1].Description)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := strings.Repeat("é", 120)
	got := truncate(long, maxDescription)
	assert.Equal(t, maxDescription, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestHashCommandIgnoresOptionOrder(t *testing.T) {
	a := &discordgo.ApplicationCommand{Name: "ban", Description: "d", Options: []*discordgo.ApplicationCommandOption{
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser},
		{Name: "reason", Type: discordgo.ApplicationCommandOptionString},
	}}
	b := &discordgo.ApplicationCommand{Name: "ban", Description: "d", Options: []*discordgo.ApplicationCommandOption{
		{Name: "reason", Type: discordgo.ApplicationCommandOptionString},
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser},
	}}
	assert.Equal(t, hashCommand(a), hashCommand(b))

	b.Description = "changed"
	assert.NotEqual(t, hashCommand(a), hashCommand(b))
}

func TestHashStoreRoundTrip(t *testing.T) {
	h := &hashStore{dir: t.TempDir()}
	assert.Empty(t, h.load("g1"))

	require.NoError(t, h.save("g1", map[string]string{"ping": "abc"}))
	assert.Equal(t, map[string]string{"ping": "abc"}, h.load("g1"))
	assert.Empty(t, h.load("g2"))
}

func TestClassifyREST(t *testing.T) {
	rest := func(code int) error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
	}

	assert.Nil(t, classifyREST(nil))

	var fatal *retrylimit.FatalError
	assert.ErrorAs(t, classifyREST(rest(http.StatusBadRequest)), &fatal)

	var re *restError
	require.ErrorAs(t, classifyREST(rest(http.StatusTooManyRequests)), &re)
	assert.Equal(t, http.StatusTooManyRequests, re.StatusCode())
	assert.True(t, retrylimit.DefaultClassifier(classifyREST(rest(http.StatusBadGateway))))

	plain := errors.New("dial tcp: timeout")
	assert.Equal(t, plain, classifyREST(plain))
}

func TestFlattenOptions(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "formula", Type: discordgo.ApplicationCommandOptionString, Value: "2d6"},
		{Name: "limit", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(5)},
		{Name: "loud", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "123"},
		{Name: "group", Type: discordgo.ApplicationCommandOptionSubCommand, Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "nested", Type: discordgo.ApplicationCommandOptionString, Value: "x"},
		}},
	}
	assert.Equal(t, map[string]string{
		"formula": "2d6",
		"limit":   "5",
		"loud":    "true",
		"user":    "123",
		"nested":  "x",
	}, flattenOptions(opts))
}

func TestOptionType(t *testing.T) {
	assert.Equal(t, discordgo.ApplicationCommandOptionInteger, optionType(cmd.OptionInteger))
	assert.Equal(t, discordgo.ApplicationCommandOptionBoolean, optionType(cmd.OptionBoolean))
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, optionType(cmd.OptionUser))
	assert.Equal(t, discordgo.ApplicationCommandOptionString, optionType("anything"))
}

func TestNewDefaults(t *testing.T) {
	b := New(&discordgo.Session{}, nil, Config{}, zerolog.Nop())
	defer b.syncs.StopWait()

	assert.Equal(t, "data/commands", b.cfg.HashDir)
	assert.Equal(t, 2, b.cfg.SyncWorkers)

	b.syncGuild("g1")
	assert.Zero(t, b.syncs.WaitingQueueSize(), "registration is skipped when disabled")
}
