// Package coordinator wires file watchers to builds and browser reloads
// while the server runs in development mode.
package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/specserve/internal/build"
	"git.home.luguber.info/inful/specserve/internal/config"
	"git.home.luguber.info/inful/specserve/internal/events"
	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/logfields"
	"git.home.luguber.info/inful/specserve/internal/watch"
)

// State of the coordinator.
type State int

const (
	StateIdle State = iota
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	default:
		return "stopped"
	}
}

// Watcher registers a pattern set and returns a handle that stops it.
type Watcher interface {
	Watch(patterns []string, opts watch.Options, fn watch.Callback) (io.Closer, error)
}

// Builder schedules builds; *build.Coordinator implements it.
type Builder interface {
	Request(ctx context.Context, target string, done build.DoneFunc)
}

// Reloader asks connected browsers to reload; *livereload.Hub implements it.
type Reloader interface {
	Reload(reason string)
}

// Options drive what is watched and how sources map to build targets.
type Options struct {
	Dev            bool
	Root           string
	ReloadPatterns []string
	SourcePatterns []string
	SourceExt      string
	OutputExt      string
	Watch          watch.Options
	// StableWait is the poll interval used to wait for a built file to
	// settle before reloading. Zero reloads immediately.
	StableWait time.Duration
}

// OptionsFromConfig maps the loaded configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Dev:            cfg.Dev,
		Root:           cfg.Server,
		ReloadPatterns: cfg.ReloadPatterns,
		SourcePatterns: cfg.SourcePatterns,
		SourceExt:      cfg.SourceExt,
		OutputExt:      cfg.OutputExt,
		Watch: watch.Options{
			IgnoreInitial:    cfg.WatchOptions.IgnoreInitial,
			Debounce:         cfg.WatchOptions.Debounce,
			RespectGitignore: cfg.WatchOptions.RespectGitignore,
		},
		StableWait: cfg.Build.StableWait,
	}
}

// Coordinator owns the reload watcher and the build-source watcher.
type Coordinator struct {
	opts     Options
	watcher  Watcher
	builder  Builder
	reloader Reloader
	bus      *events.Bus
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	ctx     context.Context
	cancel  context.CancelFunc
	closers []io.Closer
	wg      sync.WaitGroup
}

// New returns an idle coordinator.
func New(opts Options, w Watcher, b Builder, r Reloader) *Coordinator {
	return &Coordinator{
		opts:     opts,
		watcher:  w,
		builder:  b,
		reloader: r,
		logger:   slog.Default(),
	}
}

// WithBus publishes change, build and reload events on bus.
func (c *Coordinator) WithBus(bus *events.Bus) *Coordinator {
	c.bus = bus
	return c
}

// WithLogger replaces the default logger.
func (c *Coordinator) WithLogger(l *slog.Logger) *Coordinator {
	if l != nil {
		c.logger = l
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start registers both watchers when Dev is set. Outside development mode
// it stays idle and returns nil. Starting twice is an error.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle || c.ctx != nil {
		return ferrors.NewError(ferrors.CategoryRuntime, "coordinator already started").
			WithContext("state", c.state.String()).
			Build()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	if !c.opts.Dev {
		c.logger.Debug("Not in development mode; file watching disabled")
		return nil
	}

	reload, err := c.watcher.Watch(c.reloadPatterns(), c.opts.Watch, c.onReloadEvent)
	if err != nil {
		c.resetLocked()
		return err
	}
	sources, err := c.watcher.Watch(c.opts.SourcePatterns, c.opts.Watch, c.onSourceEvent)
	if err != nil {
		_ = reload.Close()
		c.resetLocked()
		return err
	}
	c.closers = []io.Closer{reload, sources}
	c.state = StateWatching
	c.logger.Info("Watching for changes",
		logfields.Pattern(strings.Join(c.opts.ReloadPatterns, ",")),
		slog.String("sources", strings.Join(c.opts.SourcePatterns, ",")))
	return nil
}

// reloadPatterns is ReloadPatterns with the build outputs of SourcePatterns
// excluded. Those outputs reload once the build has settled, not while make
// is still writing them.
func (c *Coordinator) reloadPatterns() []string {
	patterns := append([]string(nil), c.opts.ReloadPatterns...)
	for _, p := range c.opts.SourcePatterns {
		for _, src := range watch.SplitPatterns(p) {
			if strings.HasPrefix(src, "!") || !strings.HasSuffix(src, c.opts.SourceExt) {
				continue
			}
			patterns = append(patterns, "!"+TargetFor(src, c.opts.SourceExt, c.opts.OutputExt))
		}
	}
	return patterns
}

func (c *Coordinator) resetLocked() {
	c.cancel()
	c.ctx, c.cancel = nil, nil
}

// Stop closes the watchers and waits for in-flight build callbacks.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	closers := c.closers
	c.closers = nil
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	var errs []error
	for _, cl := range closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.wg.Wait()
	return errors.Join(errs...)
}

// active returns the run context while watching. With track set it also
// registers a pending build callback that Stop waits for.
func (c *Coordinator) active(track bool) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateWatching {
		return nil, false
	}
	if track {
		c.wg.Add(1)
	}
	return c.ctx, true
}

// onReloadEvent reloads browsers on any change to a served file.
func (c *Coordinator) onReloadEvent(ev watch.Event) {
	if ev.Op != watch.OpChange {
		return
	}
	ctx, ok := c.active(false)
	if !ok {
		return
	}
	c.publish(ctx, events.ChangeDetected{Op: string(ev.Op), Path: ev.Path, Watcher: "reload", At: time.Now()})
	c.reload(ctx, "change", ev.Path)
}

// onSourceEvent rebuilds the output of a changed source, then reloads.
func (c *Coordinator) onSourceEvent(ev watch.Event) {
	if ev.Op != watch.OpChange {
		return
	}
	ctx, ok := c.active(true)
	if !ok {
		return
	}
	target := TargetFor(ev.Path, c.opts.SourceExt, c.opts.OutputExt)
	c.logger.Info("Detected change", logfields.Path(ev.Path))
	c.logger.Info("Rewriting", logfields.Target(target))
	c.publish(ctx, events.ChangeDetected{Op: string(ev.Op), Path: ev.Path, Watcher: "source", At: time.Now()})

	c.builder.Request(ctx, target, func(res build.Result) {
		defer c.wg.Done()
		c.onBuilt(ctx, ev.Path, target, res)
	})
}

func (c *Coordinator) onBuilt(ctx context.Context, source, target string, res build.Result) {
	c.publish(ctx, completedEvent(source, target, res))

	switch {
	case res.Status == build.StatusSuperseded:
		c.logger.Debug("Build superseded", logfields.Target(target))
		return
	case !res.OK():
		c.logger.Warn("Build failed", logfields.Target(target), logfields.Error(res.Err))
		return
	}

	if c.opts.StableWait > 0 {
		out := filepath.Join(c.opts.Root, filepath.FromSlash(target))
		if err := build.WaitStable(ctx, out, c.opts.StableWait); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Build output not stable; reloading anyway", logfields.Target(target), logfields.Error(err))
		}
	}
	c.logger.Info("Reloading", logfields.Target(target))
	c.reload(ctx, "build", target)
}

func (c *Coordinator) reload(ctx context.Context, reason, path string) {
	c.reloader.Reload(reason)
	c.publish(ctx, events.ReloadRequested{Reason: reason, Path: path, At: time.Now()})
}

func (c *Coordinator) publish(ctx context.Context, evt any) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, evt); err != nil && ctx.Err() == nil {
		c.logger.Debug("Event publish failed", logfields.Error(err))
	}
}

func completedEvent(source, target string, res build.Result) events.BuildCompleted {
	e := events.BuildCompleted{
		BuildID:   res.BuildID,
		Source:    source,
		Target:    target,
		Status:    string(res.Status),
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// TargetFor maps a source path to its build output by swapping a trailing
// srcExt for outExt. Paths without srcExt are returned unchanged.
func TargetFor(source, srcExt, outExt string) string {
	if !strings.HasSuffix(source, srcExt) {
		return source
	}
	return strings.TrimSuffix(source, srcExt) + outExt
}

// ServiceWatcher adapts *watch.Service to Watcher.
type ServiceWatcher struct {
	Service *watch.Service
}

func (s ServiceWatcher) Watch(patterns []string, opts watch.Options, fn watch.Callback) (io.Closer, error) {
	w, err := s.Service.Watch(patterns, opts, fn)
	if err != nil {
		return nil, err
	}
	return w, nil
}
