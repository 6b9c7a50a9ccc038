package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/lazycmd/internal/command"
	"github.com/keshon/lazycmd/internal/gate"
	"github.com/keshon/lazycmd/pkg/cmd"
)

type call struct {
	method string
	resp   cmd.Response
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	// failReplies makes that many initial replies fail.
	failReplies int
}

func (r *recorder) Reply(_ context.Context, resp cmd.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"reply", resp})
	if r.failReplies > 0 {
		r.failReplies--
		return errors.New("unknown interaction")
	}
	return nil
}

func (r *recorder) Followup(_ context.Context, resp cmd.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"followup", resp})
	return nil
}

func (r *recorder) methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.method
	}
	return out
}

type catalog map[string]command.Metadata

func (c catalog) Get(name string) (command.Metadata, bool) {
	m, ok := c[name]
	return m, ok
}

type loader struct {
	impls map[string]*command.Implementation
	calls int
}

func (l *loader) GetOrLoad(_ context.Context, name string) (*command.Implementation, bool) {
	l.calls++
	impl, ok := l.impls[name]
	return impl, ok
}

type authorizer struct {
	decision gate.Decision
	calls    int
}

func (a *authorizer) Evaluate(context.Context, command.Metadata, string) gate.Decision {
	a.calls++
	return a.decision
}

type cooldowns struct {
	set map[string]int
}

func (c *cooldowns) Set(callerID, name string, seconds int) {
	if seconds > 0 {
		c.set[callerID+"/"+name] = seconds
	}
}

type fixture struct {
	d      *Dispatcher
	loader *loader
	gate   *authorizer
	cds    *cooldowns
}

func newFixture(handler cmd.HandlerFunc) *fixture {
	f := &fixture{
		loader: &loader{impls: map[string]*command.Implementation{
			"foo": {Name: "foo", Kind: cmd.KindBoth, Structured: handler, Text: handler},
			"txt": {Name: "txt", Kind: cmd.KindText, Text: handler},
		}},
		gate: &authorizer{decision: gate.Decision{Allow: true, Stage: gate.StageAllow}},
		cds:  &cooldowns{set: map[string]int{}},
	}
	f.d = New(Config{
		Catalog: catalog{
			"foo":   {Name: "foo", Kind: cmd.KindBoth, Enabled: true, CooldownSeconds: 5},
			"txt":   {Name: "txt", Kind: cmd.KindText, Enabled: true},
			"slash": {Name: "slash", Kind: cmd.KindStructured, Enabled: true},
			"off":   {Name: "off", Kind: cmd.KindBoth},
		},
		Loader:    f.loader,
		Gate:      f.gate,
		Cooldowns: f.cds,
		Prefix:    "!",
	}, zerolog.Nop())
	return f
}

func ok(context.Context, *cmd.Invocation) error { return nil }

func structured(name string, r cmd.Responder) *cmd.Invocation {
	inv := cmd.NewInvocation(cmd.KindStructured, "u", r)
	inv.Name = name
	return inv
}

func text(line string, r cmd.Responder) *cmd.Invocation {
	inv := cmd.NewInvocation(cmd.KindText, "u", r)
	inv.Text = line
	return inv
}

func TestSuccessCommitsCooldown(t *testing.T) {
	f := newFixture(func(ctx context.Context, inv *cmd.Invocation) error {
		return inv.Respond(ctx, cmd.Response{Content: "hi"})
	})
	rec := &recorder{}

	assert.Equal(t, Succeeded, f.d.Dispatch(context.Background(), structured("foo", rec)))
	assert.Equal(t, []string{"reply"}, rec.methods())
	assert.Equal(t, 5, f.cds.set["u/foo"])
}

func TestRespondThenFailSendsOneFollowup(t *testing.T) {
	f := newFixture(func(ctx context.Context, inv *cmd.Invocation) error {
		if err := inv.Respond(ctx, cmd.Response{Content: "working on it"}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	rec := &recorder{}

	assert.Equal(t, Failed, f.d.Dispatch(context.Background(), structured("foo", rec)))
	assert.Equal(t, []string{"reply", "followup"}, rec.methods())
	assert.Equal(t, FailureNotice, rec.calls[1].resp)
	assert.NotContains(t, rec.calls[1].resp.Content, "boom")
	assert.Empty(t, f.cds.set)
}

func TestFailureBeforeRespondUsesReply(t *testing.T) {
	f := newFixture(func(context.Context, *cmd.Invocation) error { return errors.New("boom") })
	rec := &recorder{}

	assert.Equal(t, Failed, f.d.Dispatch(context.Background(), structured("foo", rec)))
	assert.Equal(t, []string{"reply"}, rec.methods())
	assert.Empty(t, f.cds.set)
}

func TestFailedReplyLeavesInitialReplyOpen(t *testing.T) {
	f := newFixture(func(ctx context.Context, inv *cmd.Invocation) error {
		return inv.Respond(ctx, cmd.Response{Content: "hi"})
	})
	rec := &recorder{failReplies: 1}

	assert.Equal(t, Failed, f.d.Dispatch(context.Background(), structured("foo", rec)))
	assert.Equal(t, []string{"reply", "reply"}, rec.methods())
	assert.Equal(t, FailureNotice, rec.calls[1].resp)
	assert.Empty(t, f.cds.set)
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(func(context.Context, *cmd.Invocation) error { panic("kaboom") })
	rec := &recorder{}

	assert.NotPanics(t, func() {
		assert.Equal(t, Failed, f.d.Dispatch(context.Background(), structured("foo", rec)))
	})
	assert.Equal(t, []string{"reply"}, rec.methods())
	assert.Empty(t, f.cds.set)
}

func TestExecuteWrapsPanic(t *testing.T) {
	err := execute(context.Background(), func(context.Context, *cmd.Invocation) error { panic("kaboom") }, &cmd.Invocation{})
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestDenialSendsOneEphemeralMessage(t *testing.T) {
	f := newFixture(ok)
	f.gate.decision = gate.Decision{Stage: gate.StageVerification, Reason: "need basic", Prompt: "go verify"}
	rec := &recorder{}

	assert.Equal(t, Denied, f.d.Dispatch(context.Background(), structured("foo", rec)))
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "reply", rec.calls[0].method)
	assert.True(t, rec.calls[0].resp.Ephemeral)
	assert.Equal(t, "need basic\ngo verify", rec.calls[0].resp.Content)
	assert.Zero(t, f.loader.calls, "denied invocations never load")
	assert.Empty(t, f.cds.set)
}

func TestUnknownCommands(t *testing.T) {
	f := newFixture(ok)
	rec := &recorder{}

	assert.Equal(t, Ignored, f.d.Dispatch(context.Background(), structured("nope", rec)))
	assert.Equal(t, Ignored, f.d.Dispatch(context.Background(), text("!nope", rec)))
	assert.Empty(t, rec.methods())
	assert.Zero(t, f.gate.calls)
}

func TestTextWithoutPrefixIgnored(t *testing.T) {
	f := newFixture(ok)
	rec := &recorder{}

	assert.Equal(t, Ignored, f.d.Dispatch(context.Background(), text("foo", rec)))
	assert.Equal(t, Ignored, f.d.Dispatch(context.Background(), text("!", rec)))
	assert.Zero(t, f.gate.calls)
}

func TestKindMismatchTreatedAsUnknown(t *testing.T) {
	f := newFixture(ok)
	rec := &recorder{}

	assert.Equal(t, Ignored, f.d.Dispatch(context.Background(), structured("txt", rec)))
	assert.Equal(t, Ignored, f.d.Dispatch(context.Background(), text("!slash", rec)))
	assert.Zero(t, f.gate.calls)
}

func TestTextInvocationParsesArguments(t *testing.T) {
	var got *cmd.Invocation
	f := newFixture(func(_ context.Context, inv *cmd.Invocation) error {
		got = inv
		return nil
	})

	assert.Equal(t, Succeeded, f.d.Dispatch(context.Background(), text("  !FOO a  b ", &recorder{})))
	require.NotNil(t, got)
	assert.Equal(t, "foo", got.Name)
	assert.Equal(t, []string{"a", "b"}, got.Args)
}

func TestUnavailable(t *testing.T) {
	f := newFixture(ok)
	rec := &recorder{}

	assert.Equal(t, Unavailable, f.d.Dispatch(context.Background(), structured("off", rec)))
	assert.Empty(t, rec.methods())

	f.loader.impls["foo"] = &command.Implementation{Name: "foo", Kind: cmd.KindText, Text: ok}
	assert.Equal(t, Unavailable, f.d.Dispatch(context.Background(), structured("foo", rec)))
	assert.Empty(t, f.cds.set)
}

func TestParseText(t *testing.T) {
	tests := []struct {
		prefix, text string
		name         string
		args         []string
		ok           bool
	}{
		{"!", "!ping", "ping", []string{}, true},
		{"!", "!Roll 2d6 + 1", "roll", []string{"2d6", "+", "1"}, true},
		{"!", "! ping", "ping", []string{}, true},
		{"!", "ping", "", nil, false},
		{"!", "!   ", "", nil, false},
		{"bot ", "bot help me", "help", []string{"me"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := ParseText(tt.prefix, tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			if tt.ok {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "denied", Denied.String())
}
