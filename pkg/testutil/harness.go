package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"plugbot/internal/clock"
	"plugbot/internal/dispatch"
	"plugbot/internal/ingest"
	"plugbot/internal/loader"
	"plugbot/internal/store"
	"plugbot/internal/trace"
	"plugbot/pkg/bot"
	"plugbot/pkg/plugin"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Superuser is the superuser id configured in every Harness.
const Superuser = int64(1)

// BotUsername is the bot username configured in every Harness.
const BotUsername = "testbot"

// Harness wires the dispatch engine on an in-memory store with a recording
// responder and a manual clock.
//
// Example usage:
//
//	h := testutil.NewHarness(t, testutil.WithFactories(factories))
//	require.NoError(t, h.Loader.LoadPlugin(ctx, "user/echo"))
//	h.Send(testutil.Message(5, 5, "/echo hi"))
//	assert.Equal(t, []string{"hi"}, h.Bot.Messages(5))
type Harness struct {
	Factories  *plugin.Registry
	Registry   *dispatch.Registry
	Pipeline   *dispatch.Pipeline
	Dispatcher *dispatch.Dispatcher
	Loader     *loader.Loader
	Store      *store.Memory
	Bot        *MockResponder
	Clock      *clock.Mock
	Trace      *trace.Recorder
	Scheduler  *Scheduler
	Context    *plugin.Context
	Logger     *zap.Logger
}

type harnessConfig struct {
	factories *plugin.Registry
	core      []string
	errorChat int64
}

// HarnessOption customizes NewHarness.
type HarnessOption func(*harnessConfig)

// WithFactories uses r instead of the global factory registry.
func WithFactories(r *plugin.Registry) HarnessOption {
	return func(c *harnessConfig) { c.factories = r }
}

// WithCore sets the core plugin list (empty by default).
func WithCore(names ...string) HarnessOption {
	return func(c *harnessConfig) { c.core = names }
}

// WithErrorChat forwards handler failures to chatID.
func WithErrorChat(chatID int64) HarnessOption {
	return func(c *harnessConfig) { c.errorChat = chatID }
}

// NewHarness builds a Harness. Without WithFactories the global registry
// populated by plugin init() functions is used.
func NewHarness(t testing.TB, opts ...HarnessOption) *Harness {
	t.Helper()

	cfg := harnessConfig{factories: plugin.Global()}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	h := &Harness{
		Factories: cfg.factories,
		Registry:  dispatch.NewRegistry(),
		Store:     store.NewMemory(),
		Bot:       NewMockResponder(),
		Clock:     clock.NewMock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		Trace:     trace.NewRecorder(64),
		Scheduler: NewScheduler(),
		Logger:    logger,
	}
	supers := Superusers{Superuser: true}

	h.Context = plugin.NewContext(h.Bot, h.Store, supers, logger, h.Clock, BotUsername, 0)
	h.Loader = loader.New(h.Factories, h.Registry, h.Store, h.Context, logger,
		loader.WithCorePlugins(cfg.core...),
		loader.WithScheduler(h.Scheduler),
		loader.WithClock(h.Clock))
	h.Pipeline = dispatch.NewPipeline(supers, h.Loader, h.Clock, h.Bot, logger)
	h.Dispatcher = dispatch.NewDispatcher(h.Registry, h.Pipeline, h.Bot, logger,
		dispatch.WithTrace(h.Trace),
		dispatch.WithErrorChat(cfg.errorChat),
		dispatch.WithObserver(ingest.NewRecorder(h.Store, logger)))

	t.Cleanup(h.Loader.Shutdown)
	return h
}

// Send dispatches u and reports whether a handler ran. Messages are stamped
// with the harness clock, as are callbacks without a date. Inline queries
// carry no date.
func (h *Harness) Send(u *bot.Update) bool {
	if u.IsMessage() || (u.Kind == bot.KindCallbackQuery && u.Date.IsZero()) {
		u.Date = h.Clock.Now()
	}
	return h.Dispatcher.Dispatch(context.Background(), u)
}

// Scheduler is an in-memory loader.Scheduler whose jobs run on demand.
type Scheduler struct {
	mu     sync.Mutex
	nextID cron.EntryID
	jobs   map[cron.EntryID]ScheduledJob
}

// ScheduledJob is a job registered with Scheduler.
type ScheduledJob struct {
	Spec string
	Run  func()
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{jobs: make(map[cron.EntryID]ScheduledJob)}
}

// AddFunc validates spec like cron does and stores cmd.
func (s *Scheduler) AddFunc(spec string, cmd func()) (cron.EntryID, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.jobs[s.nextID] = ScheduledJob{Spec: spec, Run: cmd}
	return s.nextID, nil
}

// Remove drops a job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RunAll runs every scheduled job once, synchronously.
func (s *Scheduler) RunAll() {
	s.mu.Lock()
	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.Run()
	}
}
