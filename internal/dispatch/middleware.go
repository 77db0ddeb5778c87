package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"plugbot/pkg/bot"
	"plugbot/pkg/handler"

	"go.uber.org/zap"
)

// Middleware wraps a callback. The dispatcher applies the same chain to every
// admitted handler; the handler itself is available as c.Handler.
type Middleware func(next handler.Callback) handler.Callback

// Chain composes middleware so that the first one is outermost.
func Chain(cb handler.Callback, mws ...Middleware) handler.Callback {
	for i := len(mws) - 1; i >= 0; i-- {
		cb = mws[i](cb)
	}
	return cb
}

// PanicError is returned by Recover when a callback panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover turns a panicking callback into a *PanicError.
func Recover() Middleware {
	return func(next handler.Callback) handler.Callback {
		return func(ctx context.Context, c *handler.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			return next(ctx, c)
		}
	}
}

// LogInvocation logs each invocation at the handler's log level.
func LogInvocation(logger *zap.Logger) Middleware {
	return func(next handler.Callback) handler.Callback {
		return func(ctx context.Context, c *handler.Context) error {
			start := time.Now()
			err := next(ctx, c)

			level := zap.InfoLevel
			if c.Handler != nil {
				level = c.Handler.LogLevel()
			}
			if ce := logger.Check(level, "Handler invoked"); ce != nil {
				fields := []zap.Field{
					zap.Stringer("kind", c.Update.Kind),
					zap.Int64("chat_id", c.ChatID()),
					zap.Int64("user_id", c.Update.UserID()),
					zap.Duration("duration", time.Since(start)),
					zap.String("trace_id", c.TraceID),
				}
				if c.Handler != nil {
					fields = append(fields, zap.String("plugin", c.Handler.Plugin()), zap.Stringer("handler", c.Handler))
				}
				if err != nil {
					fields = append(fields, zap.Error(err))
				}
				ce.Write(fields...)
			}
			return err
		}
	}
}

// ChatAction sends a typing indicator before handlers built with Typing().
func ChatAction() Middleware {
	return func(next handler.Callback) handler.Callback {
		return func(ctx context.Context, c *handler.Context) error {
			if c.Handler != nil && c.Handler.SendsTyping() {
				if chatID := c.ChatID(); chatID != 0 {
					if err := c.Bot.SendChatAction(ctx, chatID, bot.ActionTyping); err != nil && c.Logger != nil {
						c.Logger.Debug("Failed to send chat action", zap.Error(err))
					}
				}
			}
			return next(ctx, c)
		}
	}
}
