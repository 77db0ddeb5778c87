// Package dice rolls dice in NdM notation.
package dice

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"plugbot/pkg/bot"
	"plugbot/pkg/handler"
)

// Limits on the notation
const (
	MaxDice  = 20
	MaxSides = 1000
)

// RerollCooldown is the minimum age of a roll before it can be rolled again.
const RerollCooldown = 5 * time.Second

const callbackPrefix = "dice:"

// Plugin implements the dice plugin.
type Plugin struct {
	username string
	intn     func(n int) int
}

// New creates the dice plugin. intn returns a uniform value in [0, n); nil
// uses math/rand.
func New(username string, intn func(n int) int) *Plugin {
	if intn == nil {
		intn = rand.IntN
	}
	return &Plugin{username: username, intn: intn}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Handlers() []*handler.Handler {
	return []*handler.Handler{
		handler.NewCommand("roll", p.username, p.handleRoll),
		handler.MustCallback(`^dice:(\d+)d(\d+)$`, p.handleReroll,
			handler.Cooldown(RerollCooldown), handler.Describe("roll again")),
	}
}

func (p *Plugin) Commands() []bot.Command {
	return []bot.Command{{Command: "roll", Description: "[NdM] - Roll dice, 1d6 by default"}}
}

// Parse reads NdM notation. An empty string is 1d6.
func Parse(s string) (count, sides int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 1, 6, nil
	}

	a, b, ok := strings.Cut(s, "d")
	if !ok {
		return 0, 0, fmt.Errorf("invalid dice %q", s)
	}
	count = 1
	if a != "" {
		if count, err = strconv.Atoi(a); err != nil {
			return 0, 0, fmt.Errorf("invalid dice count %q", a)
		}
	}
	if sides, err = strconv.Atoi(b); err != nil {
		return 0, 0, fmt.Errorf("invalid dice sides %q", b)
	}

	if count < 1 || count > MaxDice {
		return 0, 0, fmt.Errorf("dice count must be between 1 and %d", MaxDice)
	}
	if sides < 2 || sides > MaxSides {
		return 0, 0, fmt.Errorf("dice sides must be between 2 and %d", MaxSides)
	}
	return count, sides, nil
}

func (p *Plugin) roll(count, sides int) (string, bot.Keyboard) {
	rolls := make([]string, count)
	total := 0
	for i := range rolls {
		v := p.intn(sides) + 1
		total += v
		rolls[i] = strconv.Itoa(v)
	}

	text := fmt.Sprintf("🎲 %dd%d: %d", count, sides, total)
	if count > 1 {
		text += " (" + strings.Join(rolls, " + ") + ")"
	}
	kb := bot.Keyboard{{{Text: "Roll again", Data: fmt.Sprintf("%s%dd%d", callbackPrefix, count, sides)}}}
	return text, kb
}

func (p *Plugin) handleRoll(ctx context.Context, c *handler.Context) error {
	count, sides, err := Parse(c.Arg(1))
	if err != nil {
		return c.Reply(ctx, "❌ "+err.Error()+".")
	}
	text, kb := p.roll(count, sides)
	return c.ReplyWith(ctx, text, &bot.SendOptions{Keyboard: kb})
}

func (p *Plugin) handleReroll(ctx context.Context, c *handler.Context) error {
	count, _ := strconv.Atoi(c.Arg(1))
	sides, _ := strconv.Atoi(c.Arg(2))
	if count < 1 || count > MaxDice || sides < 2 || sides > MaxSides {
		return c.Bot.AnswerCallback(ctx, c.Update.Callback.ID, "Invalid dice.", true)
	}

	if err := c.Bot.AnswerCallback(ctx, c.Update.Callback.ID, "", false); err != nil {
		c.Logger.Debug("Failed to answer callback")
	}
	text, kb := p.roll(count, sides)
	return c.ReplyWith(ctx, text, &bot.SendOptions{Keyboard: kb})
}
