package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"plugbot/internal/clock"
	"plugbot/internal/dispatch"
	"plugbot/pkg/handler"
	"plugbot/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	superuser = int64(1)
	member    = int64(2)
	group     = int64(-100)
	private   = int64(2)
)

// blacklist is a static ChatBlacklist.
type blacklist struct {
	disabled map[int64]string
	err      error
	calls    int
}

func (b *blacklist) IsPluginDisabledForChat(ctx context.Context, chatID int64, plugin string) (bool, error) {
	b.calls++
	if b.err != nil {
		return false, b.err
	}
	return b.disabled[chatID] == plugin, nil
}

type pipelineEnv struct {
	pipeline  *dispatch.Pipeline
	responder *testutil.MockResponder
	clock     *clock.Mock
	blacklist *blacklist
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	env := &pipelineEnv{
		responder: testutil.NewMockResponder(),
		clock:     clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		blacklist: &blacklist{disabled: map[int64]string{}},
	}
	env.pipeline = dispatch.NewPipeline(
		testutil.Superusers{superuser: true},
		env.blacklist,
		env.clock,
		env.responder,
		zap.NewNop(),
	)
	return env
}

func bound(h *handler.Handler, plugin string) *handler.Handler {
	return h.Bind(plugin, 0)
}

func TestPipeline_NoMatch(t *testing.T) {
	env := newPipelineEnv(t)
	h := bound(handler.MustRegex(`^/echo`, noop), "echo")

	dec := env.pipeline.Evaluate(context.Background(), testutil.Message(private, member, "hello"), h)
	assert.Equal(t, dispatch.NoMatch, dec.Verdict)
}

func TestPipeline_KindFilterIsSilent(t *testing.T) {
	env := newPipelineEnv(t)
	h := bound(handler.MustRegex(`^/echo`, noop), "echo")

	dec := env.pipeline.Evaluate(context.Background(), testutil.Edited(private, member, "/echo hi"), h)
	assert.Equal(t, dispatch.Rejected, dec.Verdict)
	assert.Equal(t, dispatch.ReasonKind, dec.Reason)
	assert.False(t, dec.Abort)
	assert.Empty(t, env.responder.Calls())
}

func TestPipeline_GroupOnly(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()

	msg := bound(handler.MustRegex(`^/enablechat`, noop, handler.GroupOnly()), "plugin_manager")
	dec := env.pipeline.Evaluate(ctx, testutil.Message(private, member, "/enablechat echo"), msg)
	assert.Equal(t, dispatch.ReasonGroupOnly, dec.Reason)
	assert.False(t, dec.Abort)
	assert.Empty(t, env.responder.Calls())

	dec = env.pipeline.Evaluate(ctx, testutil.Message(group, member, "/enablechat echo"), msg)
	assert.Equal(t, dispatch.Admitted, dec.Verdict)

	cb := bound(handler.MustCallback(`^vote$`, noop, handler.GroupOnly()), "poll")
	dec = env.pipeline.Evaluate(ctx, testutil.Callback(private, member, "vote", time.Time{}), cb)
	assert.Equal(t, dispatch.ReasonGroupOnly, dec.Reason)
	assert.True(t, dec.Abort)
	assert.Equal(t, []string{dispatch.AlertGroupOnly}, env.responder.Alerts())
}

func TestPipeline_Privileged(t *testing.T) {
	ctx := context.Background()

	t.Run("message rejected silently", func(t *testing.T) {
		env := newPipelineEnv(t)
		h := bound(handler.MustRegex(`^/reload`, noop, handler.Privileged()), "plugin_manager")

		dec := env.pipeline.Evaluate(ctx, testutil.Message(private, member, "/reload"), h)
		assert.Equal(t, dispatch.ReasonPrivileged, dec.Reason)
		assert.False(t, dec.Abort)
		assert.Empty(t, env.responder.Calls())
	})

	t.Run("callback alerts", func(t *testing.T) {
		env := newPipelineEnv(t)
		h := bound(handler.MustCallback(`^admin$`, noop, handler.Privileged()), "plugin_manager")

		dec := env.pipeline.Evaluate(ctx, testutil.Callback(private, member, "admin", time.Time{}), h)
		assert.True(t, dec.Abort)
		assert.Equal(t, []string{dispatch.AlertPrivileged}, env.responder.Alerts())
	})

	t.Run("inline answered with empty results", func(t *testing.T) {
		env := newPipelineEnv(t)
		h := bound(handler.MustInline(`^secret$`, noop, handler.Privileged()), "secret")

		dec := env.pipeline.Evaluate(ctx, testutil.Inline(member, "secret"), h)
		assert.Equal(t, dispatch.Rejected, dec.Verdict)
		assert.False(t, dec.Abort)
		calls := testutil.FilterCalls(env.responder.Calls(), testutil.MethodAnswerInline)
		require.Len(t, calls, 1)
		assert.Empty(t, calls[0].Results)
	})

	t.Run("superuser admitted", func(t *testing.T) {
		env := newPipelineEnv(t)
		h := bound(handler.MustRegex(`^/reload`, noop, handler.Privileged()), "plugin_manager")

		dec := env.pipeline.Evaluate(ctx, testutil.Message(private, superuser, "/reload"), h)
		assert.Equal(t, dispatch.Admitted, dec.Verdict)
	})
}

func TestPipeline_CooldownBoundary(t *testing.T) {
	ctx := context.Background()
	newHandler := func() *handler.Handler {
		return bound(handler.MustCallback(`^dice:`, noop, handler.Cooldown(5*time.Second)), "dice")
	}

	tests := []struct {
		name      string
		age       time.Duration
		user      int64
		want      dispatch.Verdict
		wantAlert string
	}{
		{name: "4.9s rejected", age: 4900 * time.Millisecond, user: member, want: dispatch.Rejected, wantAlert: "🕒 Please wait 0.1 more seconds."},
		{name: "1.25s rejected", age: 1250 * time.Millisecond, user: member, want: dispatch.Rejected, wantAlert: "🕒 Please wait 3.8 more seconds."},
		{name: "5.1s admitted", age: 5100 * time.Millisecond, user: member, want: dispatch.Admitted},
		{name: "superuser bypasses", age: time.Second, user: superuser, want: dispatch.Admitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newPipelineEnv(t)
			sent := env.clock.Now().Add(-tt.age)

			dec := env.pipeline.Evaluate(ctx, testutil.Callback(group, tt.user, "dice:roll", sent), newHandler())
			assert.Equal(t, tt.want, dec.Verdict)

			if tt.wantAlert != "" {
				assert.Equal(t, dispatch.ReasonCooldown, dec.Reason)
				assert.True(t, dec.Abort)
				assert.Equal(t, []string{tt.wantAlert}, env.responder.Alerts())
				assert.Empty(t, testutil.FilterCalls(env.responder.Calls(), testutil.MethodRemoveKeyboard))
			} else {
				assert.Empty(t, env.responder.Alerts())
				assert.Len(t, testutil.FilterCalls(env.responder.Calls(), testutil.MethodRemoveKeyboard), 1)
			}
		})
	}
}

func TestPipeline_CooldownIgnoresUndatedInline(t *testing.T) {
	env := newPipelineEnv(t)
	h := bound(handler.MustInline(`^echo `, noop, handler.Cooldown(time.Minute)), "echo")

	u := testutil.Inline(member, "echo hi")
	assert.True(t, u.Date.IsZero())

	dec := env.pipeline.Evaluate(context.Background(), u, h)
	assert.Equal(t, dispatch.Admitted, dec.Verdict)
}

func TestPipeline_CooldownMessageIsSilent(t *testing.T) {
	env := newPipelineEnv(t)
	h := bound(handler.MustRegex(`^/slow`, noop, handler.Cooldown(time.Minute)), "slow")

	u := testutil.Message(private, member, "/slow")
	u.Date = env.clock.Now().Add(-10 * time.Second)

	dec := env.pipeline.Evaluate(context.Background(), u, h)
	assert.Equal(t, dispatch.ReasonCooldown, dec.Reason)
	assert.False(t, dec.Abort)
	assert.Empty(t, env.responder.Calls())

	env.clock.Advance(time.Minute)
	dec = env.pipeline.Evaluate(context.Background(), u, h)
	assert.Equal(t, dispatch.Admitted, dec.Verdict)
}

func TestPipeline_Blacklist(t *testing.T) {
	ctx := context.Background()

	t.Run("message in blacklisted group", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.blacklist.disabled[group] = "echo"
		h := bound(handler.MustRegex(`^/echo`, noop), "echo")

		dec := env.pipeline.Evaluate(ctx, testutil.Message(group, member, "/echo hi"), h)
		assert.Equal(t, dispatch.ReasonBlacklisted, dec.Reason)
		assert.False(t, dec.Abort)

		// Other plugins and other chats are unaffected
		other := bound(handler.MustRegex(`^/echo`, noop), "dice")
		assert.Equal(t, dispatch.Admitted, env.pipeline.Evaluate(ctx, testutil.Message(group, member, "/echo hi"), other).Verdict)
		assert.Equal(t, dispatch.Admitted, env.pipeline.Evaluate(ctx, testutil.Message(group-1, member, "/echo hi"), h).Verdict)
	})

	t.Run("private chats skip the lookup", func(t *testing.T) {
		env := newPipelineEnv(t)
		h := bound(handler.MustRegex(`^/echo`, noop), "echo")

		env.pipeline.Evaluate(ctx, testutil.Message(private, member, "/echo hi"), h)
		assert.Equal(t, 0, env.blacklist.calls)
	})

	t.Run("callback alerts", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.blacklist.disabled[group] = "dice"
		h := bound(handler.MustCallback(`^dice:`, noop), "dice")

		dec := env.pipeline.Evaluate(ctx, testutil.Callback(group, member, "dice:roll", time.Time{}), h)
		assert.True(t, dec.Abort)
		assert.Equal(t, []string{dispatch.AlertBlacklisted}, env.responder.Alerts())
	})

	t.Run("superuser bypasses", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.blacklist.disabled[group] = "echo"
		h := bound(handler.MustRegex(`^/echo`, noop), "echo")

		dec := env.pipeline.Evaluate(ctx, testutil.Message(group, superuser, "/echo hi"), h)
		assert.Equal(t, dispatch.Admitted, dec.Verdict)
	})

	t.Run("store error fails open", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.blacklist.err = errors.New("database is locked")
		h := bound(handler.MustRegex(`^/echo`, noop), "echo")

		dec := env.pipeline.Evaluate(ctx, testutil.Message(group, member, "/echo hi"), h)
		assert.Equal(t, dispatch.Admitted, dec.Verdict)
	})
}

func TestPipeline_KeepButton(t *testing.T) {
	env := newPipelineEnv(t)
	h := bound(handler.MustCallback(`^page:`, noop, handler.KeepButton()), "pager")

	dec := env.pipeline.Evaluate(context.Background(), testutil.Callback(group, member, "page:2", time.Time{}), h)
	assert.Equal(t, dispatch.Admitted, dec.Verdict)
	assert.Empty(t, env.responder.Calls())
}
