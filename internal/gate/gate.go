// Package gate decides whether a caller may run a command right now. Checks
// run in a fixed order and stop at the first denial:
// ban, owner-only, cooldown, verification level.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/pkg/util"
)

// Stage names the check that produced a decision.
type Stage int

const (
	StageBan Stage = iota + 1
	StageOwner
	StageCooldown
	StageVerification
	StageAllow
)

func (s Stage) String() string {
	switch s {
	case StageBan:
		return "ban"
	case StageOwner:
		return "owner-only"
	case StageCooldown:
		return "cooldown"
	case StageVerification:
		return "verification"
	case StageAllow:
		return "allow"
	}
	return "unknown"
}

// Ban is an active ban. A zero ExpiresAt means permanent.
type Ban struct {
	Reason    string
	ExpiresAt time.Time
}

// Permanent reports whether the ban has no expiry.
func (b Ban) Permanent() bool { return b.ExpiresAt.IsZero() }

// BanStore looks up bans.
type BanStore interface {
	// ActiveBan returns nil when the caller is not banned.
	ActiveBan(ctx context.Context, callerID string) (*Ban, error)
}

// VerificationStore looks up and registers callers' verification levels.
type VerificationStore interface {
	Level(ctx context.Context, callerID string) (command.VerificationLevel, error)
	EnsureRegistered(ctx context.Context, callerID string) error
}

// Cooldowns is the part of the cooldown tracker the gate reads.
type Cooldowns interface {
	Remaining(callerID, name string) int
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allow     bool
	Stage     Stage
	Reason    string
	Remaining int
	Ban       *Ban
	Required  command.VerificationLevel
	Current   command.VerificationLevel
	// Prompt is set on verification denials when an upgrade link is configured.
	Prompt string
}

// Gate evaluates invocations. It never sets a cooldown.
type Gate struct {
	bans      BanStore
	verify    VerificationStore
	cooldowns Cooldowns
	ownerID   string
	verifyURL string
	now       func() time.Time
	log       zerolog.Logger
}

// Config carries the gate's collaborators.
type Config struct {
	Bans         BanStore
	Verification VerificationStore
	Cooldowns    Cooldowns
	OwnerID      string
	VerifyURL    string
	Now          func() time.Time
}

// New returns a gate.
func New(cfg Config, log zerolog.Logger) *Gate {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{
		bans:      cfg.Bans,
		verify:    cfg.Verification,
		cooldowns: cfg.Cooldowns,
		ownerID:   cfg.OwnerID,
		verifyURL: cfg.VerifyURL,
		now:       now,
		log:       log,
	}
}

// IsOwner reports whether callerID is the configured owner.
func (g *Gate) IsOwner(callerID string) bool {
	return g.ownerID != "" && callerID == g.ownerID
}

// Evaluate runs the checks for one invocation of meta by callerID.
func (g *Gate) Evaluate(ctx context.Context, meta command.Metadata, callerID string) Decision {
	if d, done := g.checkBan(ctx, meta, callerID); done {
		return d
	}
	if meta.OwnerOnly && !g.IsOwner(callerID) {
		return Decision{Stage: StageOwner, Reason: "This command is restricted to the bot owner."}
	}
	if left := g.cooldowns.Remaining(callerID, meta.Name); left > 0 {
		return Decision{
			Stage:     StageCooldown,
			Remaining: left,
			Reason:    fmt.Sprintf("Slow down. You can use `%s` again in %s.", meta.Name, util.HumanSeconds(left)),
		}
	}
	if d, done := g.checkVerification(ctx, meta, callerID); done {
		return d
	}
	return Decision{Allow: true, Stage: StageAllow}
}

func (g *Gate) checkBan(ctx context.Context, meta command.Metadata, callerID string) (Decision, bool) {
	if g.bans == nil {
		return Decision{}, false
	}
	ban, err := g.bans.ActiveBan(ctx, callerID)
	if err != nil {
		g.log.Error().Err(err).Str("caller", callerID).Str("cmd", meta.Name).Msg("ban lookup failed")
		return unavailable(StageBan), true
	}
	if ban == nil || (!ban.Permanent() && !ban.ExpiresAt.After(g.now())) {
		return Decision{}, false
	}
	reason := "You are banned from using commands."
	if ban.Reason != "" {
		reason = fmt.Sprintf("You are banned from using commands: %s", ban.Reason)
	}
	if !ban.Permanent() {
		reason += fmt.Sprintf(" (until %s UTC)", util.FormatTime(ban.ExpiresAt, "YYYY-MM-DD hh:mm"))
	}
	return Decision{Stage: StageBan, Reason: reason, Ban: ban}, true
}

func (g *Gate) checkVerification(ctx context.Context, meta command.Metadata, callerID string) (Decision, bool) {
	required := meta.RequiredLevel()
	if required == command.LevelNone || g.verify == nil {
		return Decision{}, false
	}
	if err := g.verify.EnsureRegistered(ctx, callerID); err != nil {
		g.log.Error().Err(err).Str("caller", callerID).Msg("verification registration failed")
		return unavailable(StageVerification), true
	}
	level, err := g.verify.Level(ctx, callerID)
	if err != nil {
		g.log.Error().Err(err).Str("caller", callerID).Msg("verification lookup failed")
		return unavailable(StageVerification), true
	}
	if level >= required {
		return Decision{}, false
	}
	d := Decision{
		Stage:    StageVerification,
		Required: required,
		Current:  level,
		Reason:   fmt.Sprintf("`%s` requires %s verification; your level is %s.", meta.Name, required, level),
	}
	if g.verifyURL != "" {
		d.Prompt = fmt.Sprintf("Verify your account at %s", g.verifyURL)
	}
	return d, true
}

func unavailable(stage Stage) Decision {
	return Decision{Stage: stage, Reason: "Unable to check your access right now. Please try again later."}
}
