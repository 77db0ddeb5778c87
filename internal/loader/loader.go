// Package loader manages the plugin lifecycle: it builds plugins from their
// registered factories, publishes their handlers to the dispatch registry,
// schedules their jobs and tears all of it down again on unload.
package loader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"plugbot/internal/clock"
	"plugbot/internal/dispatch"
	"plugbot/internal/store"
	"plugbot/pkg/bot"
	"plugbot/pkg/handler"
	"plugbot/pkg/plugin"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MaxCommands is the most commands the chat service accepts in one list.
const MaxCommands = 100

// jobTimeout bounds a single run of a plugin job.
const jobTimeout = 5 * time.Minute

// DefaultCorePlugins are loaded at startup and cannot be disabled.
var DefaultCorePlugins = []string{"plugin_manager", "about"}

// Scheduler runs plugin jobs. *cron.Cron satisfies it.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Remove(id cron.EntryID)
}

// Record is the bookkeeping entry of an active plugin.
type Record struct {
	Name     string
	Category plugin.Namespace
	Group    int
	Handlers []*handler.Handler
	Commands []bot.Command
	Enabled  bool
	LoadedAt time.Time

	instance plugin.Plugin
	jobs     []cron.EntryID
}

// Loader implements plugin.Manager.
type Loader struct {
	mu        sync.RWMutex
	factories *plugin.Registry
	registry  *dispatch.Registry
	store     store.Store
	pctx      *plugin.Context
	scheduler Scheduler
	clock     clock.Clock
	core      []string
	records   []*Record
	logger    *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithCorePlugins replaces the core plugin list.
func WithCorePlugins(names ...string) Option {
	return func(l *Loader) { l.core = names }
}

// WithScheduler sets the scheduler for plugin jobs. Without one, jobs are
// ignored.
func WithScheduler(s Scheduler) Option {
	return func(l *Loader) { l.scheduler = s }
}

// WithClock sets the clock used for load timestamps.
func WithClock(c clock.Clock) Option {
	return func(l *Loader) { l.clock = c }
}

// New creates a Loader and installs it as pctx.Manager.
func New(factories *plugin.Registry, registry *dispatch.Registry, st store.Store, pctx *plugin.Context, logger *zap.Logger, opts ...Option) *Loader {
	l := &Loader{
		factories: factories,
		registry:  registry,
		store:     st,
		pctx:      pctx,
		clock:     clock.NewReal(),
		core:      DefaultCorePlugins,
		logger:    logger.Named("loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	pctx.Manager = l
	return l
}

// LoadCorePlugins loads the core plugins in order. Failures are logged and
// do not stop the remaining plugins from loading.
func (l *Loader) LoadCorePlugins(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loadCore(ctx)
	return nil
}

// LoadUserPlugins loads every user plugin the store marks as enabled.
func (l *Loader) LoadUserPlugins(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.loadUser(ctx)
}

func (l *Loader) loadCore(ctx context.Context) {
	for _, name := range l.core {
		if err := l.load(ctx, plugin.Path(plugin.NamespaceCore, name)); err != nil {
			l.logLoadFailure(name, err)
		}
	}
}

func (l *Loader) loadUser(ctx context.Context) error {
	names, err := l.store.EnabledPlugins(ctx)
	if err != nil {
		return fmt.Errorf("failed to read enabled plugins: %w", err)
	}
	for _, name := range names {
		if l.isCore(name) {
			continue
		}
		if err := l.load(ctx, plugin.Path(plugin.NamespaceUser, name)); err != nil {
			l.logLoadFailure(name, err)
		}
	}
	return nil
}

func (l *Loader) logLoadFailure(name string, err error) {
	var le *LoadError
	if errors.As(err, &le) {
		l.logger.Error("Could not load plugin",
			zap.String("plugin", name),
			zap.Error(le.Err),
			zap.ByteString("stack", le.Stack))
		return
	}
	l.logger.Error("Could not load plugin", zap.String("plugin", name), zap.Error(err))
}

// LoadPlugin loads the plugin at path ("core/<name>" or "user/<name>").
func (l *Loader) LoadPlugin(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.load(ctx, path)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			l.logLoadFailure(le.Plugin, err)
		}
	}
	return err
}

func (l *Loader) load(ctx context.Context, path string) error {
	ns, name, err := plugin.ParsePath(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, ErrResolution)
	}
	if l.find(name) != nil {
		return fmt.Errorf("%s: %w", name, ErrAlreadyLoaded)
	}

	info := l.factories.Resolve(path)
	if info == nil {
		return fmt.Errorf("%s: %w", path, ErrResolution)
	}

	p, err := l.instantiate(info)
	if err != nil {
		return err
	}
	if p == nil {
		l.logger.Debug("Plugin has no entry point, skipping", zap.String("path", path))
		return nil
	}

	rec := &Record{
		Name:     name,
		Category: ns,
		Enabled:  true,
		instance: p,
	}
	if err := l.collect(rec); err != nil {
		stop(p)
		return err
	}
	if err := l.schedule(rec); err != nil {
		stop(p)
		return err
	}

	rec.Group = l.registry.Register(name, rec.Handlers)
	rec.Handlers = l.registry.Handlers(rec.Group)
	rec.LoadedAt = l.clock.Now()
	l.records = append(l.records, rec)

	l.logger.Info("Loaded plugin",
		zap.String("path", path),
		zap.Int("group", rec.Group),
		zap.Int("handlers", len(rec.Handlers)),
		zap.Int("jobs", len(rec.jobs)))
	return nil
}

// instantiate runs the factory and the optional Start hook, turning errors
// and panics into a *LoadError.
func (l *Loader) instantiate(info *plugin.PluginInfo) (p plugin.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = &LoadError{Plugin: info.Name, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	p, err = info.Factory(l.pctx)
	if err != nil {
		return nil, &LoadError{Plugin: info.Name, Err: err, Stack: debug.Stack()}
	}
	if p == nil {
		return nil, nil
	}
	if p.Name() != info.Name {
		return nil, &LoadError{
			Plugin: info.Name,
			Err:    fmt.Errorf("plugin reports name %q", p.Name()),
			Stack:  debug.Stack(),
		}
	}

	if s, ok := p.(plugin.Starter); ok {
		if err := s.Start(); err != nil {
			return nil, &LoadError{Plugin: info.Name, Err: fmt.Errorf("start: %w", err), Stack: debug.Stack()}
		}
	}
	return p, nil
}

// collect reads handlers and commands, which plugins may build lazily.
func (l *Loader) collect(rec *Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &LoadError{Plugin: rec.Name, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	rec.Handlers = rec.instance.Handlers()
	rec.Commands = rec.instance.Commands()
	return nil
}

func (l *Loader) schedule(rec *Record) (err error) {
	sp, ok := rec.instance.(plugin.Scheduled)
	if !ok || l.scheduler == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &LoadError{Plugin: rec.Name, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
		if err != nil {
			l.unschedule(rec)
		}
	}()

	for _, job := range sp.Jobs() {
		id, err := l.scheduler.AddFunc(job.Spec, l.runJob(rec.Name, job))
		if err != nil {
			return &LoadError{
				Plugin: rec.Name,
				Err:    fmt.Errorf("schedule job %s (%s): %w", job.Name, job.Spec, err),
				Stack:  debug.Stack(),
			}
		}
		rec.jobs = append(rec.jobs, id)
	}
	return nil
}

func (l *Loader) unschedule(rec *Record) {
	if l.scheduler == nil {
		return
	}
	for _, id := range rec.jobs {
		l.scheduler.Remove(id)
	}
	rec.jobs = nil
}

func (l *Loader) runJob(name string, job plugin.Job) func() {
	logger := l.logger.With(zap.String("plugin", name), zap.String("job", job.Name))
	return func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := job.Run(ctx); err != nil {
			logger.Error("Job failed", zap.Error(err))
			return
		}
		logger.Debug("Job finished")
	}
}

// stop calls the optional Stop hook, containing panics.
func stop(p plugin.Plugin) {
	s, ok := p.(plugin.Stopper)
	if !ok {
		return
	}
	defer func() { recover() }()
	s.Stop()
}

// UnloadPlugin deactivates the plugin name, core or not. Refusing to disable
// core plugins is up to the caller.
func (l *Loader) UnloadPlugin(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.unload(name)
}

func (l *Loader) unload(name string) error {
	idx := l.index(name)
	if idx < 0 {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	rec := l.records[idx]

	if err := l.registry.Unregister(rec.Group); err != nil {
		l.logger.Warn("Handler group already gone", zap.String("plugin", name), zap.Error(err))
	}
	l.unschedule(rec)
	stop(rec.instance)

	l.records = append(l.records[:idx:idx], l.records[idx+1:]...)
	l.logger.Info("Unloaded plugin", zap.String("plugin", name))
	return nil
}

// ReloadPlugin unloads name and loads it again from its namespace. Handlers
// return to the lowest priority.
func (l *Loader) ReloadPlugin(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.unload(name); err != nil {
		return err
	}

	ns := plugin.NamespaceUser
	if l.isCore(name) {
		ns = plugin.NamespaceCore
	}
	err := l.load(ctx, plugin.Path(ns, name))
	if err != nil {
		l.logLoadFailure(name, err)
	}
	return err
}

// ReloadAllPlugins stops every plugin, resets the registry and loads core
// and enabled user plugins afresh.
func (l *Loader) ReloadAllPlugins(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopAll()

	l.loadCore(ctx)
	if err := l.loadUser(ctx); err != nil {
		return err
	}

	l.logger.Info("Reloaded all plugins", zap.Int("active", len(l.records)))
	return nil
}

// Shutdown stops every active plugin and empties the registry.
func (l *Loader) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopAll()
	l.logger.Info("All plugins stopped")
}

func (l *Loader) stopAll() {
	for i := len(l.records) - 1; i >= 0; i-- {
		rec := l.records[i]
		l.unschedule(rec)
		stop(rec.instance)
	}
	l.records = nil
	l.registry.Reset()
}

// IsPluginDisabledForChat reports whether name is blacklisted in chatID.
func (l *Loader) IsPluginDisabledForChat(ctx context.Context, chatID int64, name string) (bool, error) {
	return l.store.IsBlacklisted(ctx, chatID, name)
}

// SyncCommands publishes the command list of the active plugins.
func (l *Loader) SyncCommands(ctx context.Context) error {
	commands := l.Commands()
	if len(commands) > MaxCommands {
		l.logger.Warn("Too many commands, not publishing",
			zap.Int("commands", len(commands)),
			zap.Int("max", MaxCommands))
		return nil
	}
	if err := l.pctx.Bot.SetCommands(ctx, commands); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	l.logger.Info("Published commands", zap.Int("commands", len(commands)))
	return nil
}

// Plugins returns copies of the active records in load order.
func (l *Loader) Plugins() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, *rec)
	}
	return out
}

// Active returns the public view of the active plugins sorted by name.
func (l *Loader) Active() []plugin.Info {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]plugin.Info, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, plugin.Info{
			Name:     rec.Name,
			Core:     rec.Category == plugin.NamespaceCore,
			Enabled:  rec.Enabled,
			Group:    rec.Group,
			Handlers: len(rec.Handlers),
			LoadedAt: rec.LoadedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Commands returns the commands of all active plugins sorted by command.
func (l *Loader) Commands() []bot.Command {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []bot.Command
	for _, rec := range l.records {
		out = append(out, rec.Commands...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// IsLoaded reports whether name is active.
func (l *Loader) IsLoaded(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.find(name) != nil
}

// IsCore reports whether name is on the core list.
func (l *Loader) IsCore(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isCore(name)
}

// Exists reports whether a factory is registered for name in either
// namespace.
func (l *Loader) Exists(name string) bool {
	return l.factories.Get(plugin.NamespaceCore, name) != nil ||
		l.factories.Get(plugin.NamespaceUser, name) != nil
}

func (l *Loader) isCore(name string) bool {
	for _, c := range l.core {
		if c == name {
			return true
		}
	}
	return false
}

func (l *Loader) index(name string) int {
	for i, rec := range l.records {
		if rec.Name == name {
			return i
		}
	}
	return -1
}

func (l *Loader) find(name string) *Record {
	if i := l.index(name); i >= 0 {
		return l.records[i]
	}
	return nil
}

var _ plugin.Manager = (*Loader)(nil)
