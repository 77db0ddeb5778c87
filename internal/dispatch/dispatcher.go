package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"plugbot/internal/trace"
	"plugbot/pkg/bot"
	"plugbot/pkg/handler"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer sees every update before handlers are consulted.
type Observer interface {
	Observe(ctx context.Context, u *bot.Update)
}

// Dispatcher routes updates through the registry and the pipeline and runs
// at most one callback per update.
type Dispatcher struct {
	registry   *Registry
	pipeline   *Pipeline
	bot        bot.Responder
	logger     *zap.Logger
	observers  []Observer
	middleware []Middleware
	trace      *trace.Recorder
	errorChat  int64
	workers    int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(mws ...Middleware) Option {
	return func(d *Dispatcher) { d.middleware = append(d.middleware, mws...) }
}

// WithTrace records every dispatch into r.
func WithTrace(r *trace.Recorder) Option {
	return func(d *Dispatcher) { d.trace = r }
}

// WithErrorChat forwards callback failures to chatID as a document.
func WithErrorChat(chatID int64) Option {
	return func(d *Dispatcher) { d.errorChat = chatID }
}

// WithWorkers sets the number of goroutines used by Run.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// NewDispatcher creates a dispatcher. Recover, LogInvocation and ChatAction
// are always applied, in that order.
func NewDispatcher(registry *Registry, pipeline *Pipeline, responder bot.Responder, logger *zap.Logger, opts ...Option) *Dispatcher {
	logger = logger.Named("dispatch")
	d := &Dispatcher{
		registry: registry,
		pipeline: pipeline,
		bot:      responder,
		logger:   logger,
		workers:  4,
	}
	d.middleware = []Middleware{Recover(), LogInvocation(logger), ChatAction()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one update and reports whether a callback ran.
func (d *Dispatcher) Dispatch(ctx context.Context, u *bot.Update) bool {
	start := time.Now()
	u.NormalizeCaption()

	for _, o := range d.observers {
		o.Observe(ctx, u)
	}

	entry := trace.Entry{
		ID:       trace.NewID(),
		UpdateID: u.ID,
		Kind:     u.Kind,
		ChatID:   u.ChatID(),
		UserID:   u.UserID(),
		Outcome:  trace.OutcomeUnhandled,
		Time:     start,
	}

	var (
		admitted *handler.Handler
		match    *handler.Match
	)
	for h := range d.registry.Scan() {
		dec := d.pipeline.Evaluate(ctx, u, h)
		if dec.Verdict == NoMatch {
			continue
		}
		if dec.Verdict == Rejected {
			entry.Rejections = append(entry.Rejections, trace.Rejection{Plugin: h.Plugin(), Reason: string(dec.Reason)})
			if dec.Abort {
				break
			}
			continue
		}
		admitted, match = h, dec.Match
		break
	}

	if admitted == nil {
		if len(entry.Rejections) > 0 {
			entry.Outcome = trace.OutcomeRejected
		}
		d.record(entry, start)
		return false
	}

	entry.Plugin = admitted.Plugin()
	entry.Handler = admitted.String()
	entry.Outcome = trace.OutcomeHandled

	c := &handler.Context{
		Update:  u,
		Match:   match,
		Handler: admitted,
		Bot:     d.bot,
		Logger:  d.logger.Named(admitted.Plugin()),
		TraceID: entry.ID,
	}
	if err := Chain(admitted.Invoke, d.middleware...)(ctx, c); err != nil {
		entry.Outcome = trace.OutcomeFailed
		entry.Error = err.Error()
		d.reportError(ctx, u, admitted, err)
	}

	d.record(entry, start)
	return true
}

func (d *Dispatcher) record(e trace.Entry, start time.Time) {
	if d.trace == nil {
		return
	}
	e.Duration = time.Since(start)
	d.trace.Record(e)
}

// Run consumes updates with the configured number of workers until updates
// is closed or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan *bot.Update) error {
	d.logger.Info("Dispatcher started", zap.Int("workers", d.workers))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case u, ok := <-updates:
					if !ok {
						return nil
					}
					d.Dispatch(ctx, u)
				}
			}
		})
	}
	err := g.Wait()

	d.logger.Info("Dispatcher stopped")
	return err
}

func (d *Dispatcher) reportError(ctx context.Context, u *bot.Update, h *handler.Handler, err error) {
	var stack []byte
	var pe *PanicError
	if errors.As(err, &pe) {
		stack = pe.Stack
	}

	d.logger.Error("Handler failed",
		zap.String("plugin", h.Plugin()),
		zap.Stringer("handler", h),
		zap.Int64("update_id", u.ID),
		zap.Int64("chat_id", u.ChatID()),
		zap.Error(err),
		zap.ByteString("stack", stack))

	if d.errorChat == 0 {
		return
	}

	doc := bot.Document{
		Filename: "traceback.txt",
		Content:  []byte(errorReport(u, h, err, stack)),
		Caption:  fmt.Sprintf("%s failed on update %d", h.Plugin(), u.ID),
	}
	if sendErr := d.bot.SendDocument(ctx, d.errorChat, doc); sendErr != nil {
		d.logger.Warn("Failed to send error report", zap.Error(sendErr))
	}
}

func errorReport(u *bot.Update, h *handler.Handler, err error, stack []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Handler: %s\n", h)
	fmt.Fprintf(&b, "Error: %v\n\n", err)

	payload := []byte(u.Raw)
	if len(payload) == 0 {
		payload, _ = json.MarshalIndent(u, "", "  ")
	}
	b.WriteString("Update:\n")
	b.Write(payload)
	b.WriteString("\n")

	if len(stack) > 0 {
		b.WriteString("\nTraceback:\n")
		b.Write(stack)
	}
	return b.String()
}
