package dispatch

import (
	"context"
	"math"
	"strconv"
	"time"

	"plugbot/internal/clock"
	"plugbot/pkg/bot"
	"plugbot/pkg/handler"

	"go.uber.org/zap"
)

// Alert texts shown to users whose button press was rejected.
const (
	AlertGroupOnly   = "This plugin cannot be used here."
	AlertPrivileged  = "Only superusers can use this."
	AlertBlacklisted = "This plugin has been disabled for this chat."
)

// inlineRejectCache is how long clients cache the empty answer to a rejected
// privileged inline query.
const inlineRejectCache = 5

// Verdict is the outcome of evaluating one handler against one update.
type Verdict int

const (
	// NoMatch means the predicate did not match; the scan continues.
	NoMatch Verdict = iota
	// Rejected means the predicate matched but a policy refused the update.
	Rejected
	// Admitted means the callback must run.
	Admitted
)

func (v Verdict) String() string {
	switch v {
	case Rejected:
		return "rejected"
	case Admitted:
		return "admitted"
	default:
		return "no_match"
	}
}

// Reason names the policy that rejected an update.
type Reason string

// Rejection reasons
const (
	ReasonKind        Reason = "kind"
	ReasonGroupOnly   Reason = "group_only"
	ReasonPrivileged  Reason = "privileged"
	ReasonCooldown    Reason = "cooldown"
	ReasonBlacklisted Reason = "blacklisted"
)

// Decision is the result of Evaluate.
type Decision struct {
	Verdict Verdict
	Reason  Reason
	Match   *handler.Match

	// Abort is set when the rejection was answered visibly. The dispatcher
	// stops scanning since the interaction has been consumed.
	Abort bool
}

// SuperuserSet answers whether a user bypasses privilege, cooldown and
// blacklist checks.
type SuperuserSet interface {
	IsSuperuser(userID int64) bool
}

// ChatBlacklist answers whether a plugin is disabled in a chat.
type ChatBlacklist interface {
	IsPluginDisabledForChat(ctx context.Context, chatID int64, plugin string) (bool, error)
}

// Pipeline applies the admission policies, in a fixed order, to a matched
// handler: kind, group-only, privilege, cooldown, blacklist.
type Pipeline struct {
	superusers SuperuserSet
	blacklist  ChatBlacklist
	clock      clock.Clock
	bot        bot.Responder
	logger     *zap.Logger
}

// NewPipeline creates a pipeline. blacklist may be nil, which disables the
// blacklist check.
func NewPipeline(superusers SuperuserSet, blacklist ChatBlacklist, clk clock.Clock, responder bot.Responder, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		superusers: superusers,
		blacklist:  blacklist,
		clock:      clk,
		bot:        responder,
		logger:     logger.Named("pipeline"),
	}
}

// Evaluate decides whether h may handle u. Visible rejections (alerts,
// empty inline answers) are sent before returning.
func (p *Pipeline) Evaluate(ctx context.Context, u *bot.Update, h *handler.Handler) Decision {
	m := h.Match(u)
	if m == nil {
		return Decision{Verdict: NoMatch}
	}

	if !h.Accepts(u.Kind) {
		return Decision{Verdict: Rejected, Reason: ReasonKind, Match: m}
	}

	isCallback := u.Kind == bot.KindCallbackQuery

	if h.GroupOnly() && !u.IsGroup() {
		if isCallback {
			p.alert(ctx, u, AlertGroupOnly)
			return Decision{Verdict: Rejected, Reason: ReasonGroupOnly, Match: m, Abort: true}
		}
		return Decision{Verdict: Rejected, Reason: ReasonGroupOnly, Match: m}
	}

	if p.superusers != nil && p.superusers.IsSuperuser(u.UserID()) {
		return p.admit(ctx, u, h, m)
	}

	if h.Privileged() {
		switch u.Kind {
		case bot.KindCallbackQuery:
			p.alert(ctx, u, AlertPrivileged)
			return Decision{Verdict: Rejected, Reason: ReasonPrivileged, Match: m, Abort: true}
		case bot.KindInlineQuery:
			if u.Inline != nil {
				if err := p.bot.AnswerInline(ctx, u.Inline.ID, nil, inlineRejectCache, true); err != nil {
					p.logger.Warn("Failed to answer rejected inline query", zap.Error(err))
				}
			}
			return Decision{Verdict: Rejected, Reason: ReasonPrivileged, Match: m}
		default:
			return Decision{Verdict: Rejected, Reason: ReasonPrivileged, Match: m}
		}
	}

	if cd := h.Cooldown(); cd > 0 {
		elapsed := p.clock.Now().Sub(u.Date)
		if elapsed < cd {
			if isCallback {
				p.alert(ctx, u, cooldownAlert(cd-elapsed))
				return Decision{Verdict: Rejected, Reason: ReasonCooldown, Match: m, Abort: true}
			}
			return Decision{Verdict: Rejected, Reason: ReasonCooldown, Match: m}
		}
	}

	if p.blacklist != nil && u.IsGroup() {
		disabled, err := p.blacklist.IsPluginDisabledForChat(ctx, u.ChatID(), h.Plugin())
		if err != nil {
			p.logger.Error("Blacklist lookup failed, admitting update",
				zap.String("plugin", h.Plugin()),
				zap.Int64("chat_id", u.ChatID()),
				zap.Error(err))
		} else if disabled {
			if isCallback {
				p.alert(ctx, u, AlertBlacklisted)
				return Decision{Verdict: Rejected, Reason: ReasonBlacklisted, Match: m, Abort: true}
			}
			return Decision{Verdict: Rejected, Reason: ReasonBlacklisted, Match: m}
		}
	}

	return p.admit(ctx, u, h, m)
}

func (p *Pipeline) admit(ctx context.Context, u *bot.Update, h *handler.Handler, m *handler.Match) Decision {
	if u.Kind == bot.KindCallbackQuery && h.DeletesButton() && u.Callback != nil {
		if err := p.bot.RemoveKeyboard(ctx, u.Callback); err != nil {
			p.logger.Debug("Failed to remove keyboard", zap.Error(err))
		}
	}
	return Decision{Verdict: Admitted, Match: m}
}

func (p *Pipeline) alert(ctx context.Context, u *bot.Update, text string) {
	if u.Callback == nil {
		return
	}
	if err := p.bot.AnswerCallback(ctx, u.Callback.ID, text, true); err != nil {
		p.logger.Warn("Failed to answer callback query", zap.String("alert", text), zap.Error(err))
	}
}

func cooldownAlert(remaining time.Duration) string {
	secs := math.Round(remaining.Seconds()*10) / 10
	return "🕒 Please wait " + strconv.FormatFloat(secs, 'f', 1, 64) + " more seconds."
}
