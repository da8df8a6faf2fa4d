package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/logfields"
	"git.home.luguber.info/inful/specserve/internal/metrics"
)

// Options mirror the watcher options of the live-reload service.
type Options struct {
	// IgnoreInitial suppresses add events for paths that exist at startup.
	IgnoreInitial bool
	// Debounce collapses bursts per path. Zero delivers every event.
	Debounce time.Duration
	// RespectGitignore skips paths matched by <root>/.gitignore.
	RespectGitignore bool
}

// Service creates watchers rooted at one directory. Exclusions given to
// NewService apply to every watcher it creates.
type Service struct {
	root     string
	excludes *Matcher
	recorder metrics.Recorder
}

// NewService returns a Service for root. excludes are `!`-prefixed globs
// (entries without the prefix are ignored) shared by all watchers.
func NewService(root string, excludes []string, recorder metrics.Recorder) (*Service, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "resolve watch root").
			WithContext("root", root).
			Build()
	}
	var neg []string
	for _, p := range excludes {
		for _, q := range SplitPatterns(p) {
			if strings.HasPrefix(q, "!") {
				neg = append(neg, q)
			}
		}
	}
	m, err := NewMatcher(neg...)
	if err != nil {
		return nil, err
	}
	return &Service{root: abs, excludes: m, recorder: metrics.OrNoop(recorder)}, nil
}

// Root returns the absolute watch root.
func (s *Service) Root() string { return s.root }

// Watcher is one registered pattern set.
type Watcher struct {
	svc     *Service
	match   *Matcher
	opts    Options
	fn      Callback
	fsw     *fsnotify.Watcher
	ignore  gitignore.Matcher
	dirs    map[string]struct{}
	files   map[string]struct{}
	dirsMu  sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Op
	mu      sync.Mutex
	queue   chan Event
	cancel  context.CancelFunc
	done    chan struct{}
}

// Watch starts watching the root for paths matching patterns and calls fn
// for each debounced event. Patterns may be comma separated; `!` excludes.
func (s *Service) Watch(patterns []string, opts Options, fn Callback) (*Watcher, error) {
	m, err := NewMatcher(patterns...)
	if err != nil {
		return nil, err
	}
	if !m.HasIncludes() {
		return nil, ferrors.ValidationError("watch needs at least one include pattern").
			WithContext("patterns", strings.Join(patterns, ",")).
			Build()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "create fsnotify watcher").Build()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		svc:     s,
		match:   m,
		opts:    opts,
		fn:      fn,
		fsw:     fsw,
		dirs:    make(map[string]struct{}),
		files:   make(map[string]struct{}),
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]Op),
		queue:   make(chan Event, 64),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if opts.RespectGitignore {
		ig, err := loadGitignore(s.root)
		if err != nil {
			slog.Warn("Ignoring unreadable .gitignore", logfields.Path(s.root), logfields.Error(err))
		}
		w.ignore = ig
	}

	var initial []Event
	if err := w.addTree(s.root, func(ev Event) { initial = append(initial, ev) }); err != nil {
		_ = fsw.Close()
		cancel()
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "register watch directories").
			WithContext("root", s.root).
			Build()
	}

	go w.dispatch(ctx)
	go w.loop(ctx)

	if !opts.IgnoreInitial {
		for _, ev := range initial {
			w.enqueue(ev)
		}
	}
	slog.Debug("Watcher registered", logfields.Pattern(strings.Join(patterns, ",")), slog.Int("dirs", w.dirCount()))
	return w, nil
}

// Close stops the watcher. Pending debounced events are dropped.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsw.Close()
	<-w.done
	w.mu.Lock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) dirCount() int {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	return len(w.dirs)
}

// rel converts an absolute path into the slash separated form patterns see.
func (w *Watcher) rel(abs string) (string, bool) {
	r, err := filepath.Rel(w.svc.root, abs)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// skipped reports paths no watcher should look at.
func (w *Watcher) skipped(rel string, isDir bool) bool {
	if rel == ".git" || strings.HasPrefix(rel, ".git/") {
		return true
	}
	if w.svc.excludes.Excluded(rel) {
		return true
	}
	if w.ignore != nil && w.ignore.Match(strings.Split(rel, "/"), isDir) {
		return true
	}
	return false
}

// addTree registers every directory under dir and reports the matching
// entries found to seen.
func (w *Watcher) addTree(dir string, seen func(Event)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		rel, ok := w.rel(p)
		if ok && w.skipped(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(p); err != nil {
				slog.Warn("Watch add failed", logfields.Path(p), logfields.Error(err))
				return nil
			}
			w.dirsMu.Lock()
			w.dirs[p] = struct{}{}
			w.dirsMu.Unlock()
			if ok && w.match.Match(rel) {
				seen(Event{Op: OpAddDir, Path: rel})
			}
			return nil
		}
		w.dirsMu.Lock()
		w.files[p] = struct{}{}
		w.dirsMu.Unlock()
		if ok && w.match.Match(rel) {
			seen(Event{Op: OpAdd, Path: rel})
		}
		return nil
	})
}

// remember records a created file and reports whether it was already known.
// Editors that save by renaming a temp file over the target produce a
// create for a path that never went away.
func (w *Watcher) remember(abs string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	_, known := w.files[abs]
	w.files[abs] = struct{}{}
	return known
}

// forget drops abs from the known paths and reports whether it was a
// directory. Files below a removed directory are dropped with it.
func (w *Watcher) forget(abs string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	delete(w.files, abs)
	if _, isDir := w.dirs[abs]; !isDir {
		return false
	}
	prefix := abs + string(filepath.Separator)
	for d := range w.dirs {
		if d == abs || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	for f := range w.files {
		if strings.HasPrefix(f, prefix) {
			delete(w.files, f)
		}
	}
	return true
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.rel(ev.Name)
	if !ok || isTempFile(rel) {
		return
	}

	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		fi, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if fi.IsDir() {
			if w.skipped(rel, true) {
				return
			}
			op = OpAddDir
			// Files created before the directory watch landed are reported as adds.
			_ = w.addTree(ev.Name, func(e Event) {
				if e.Path != rel {
					w.schedule(e)
				}
			})
		} else {
			op = OpAdd
			if w.remember(ev.Name) {
				op = OpChange
			}
		}
	case ev.Has(fsnotify.Write):
		op = OpChange
		w.remember(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpUnlink
		if w.forget(ev.Name) {
			op = OpUnlinkDir
		}
	default:
		return
	}

	isDir := op == OpAddDir || op == OpUnlinkDir
	if w.skipped(rel, isDir) || !w.match.Match(rel) {
		return
	}
	w.schedule(Event{Op: op, Path: rel})
}

// schedule debounces ev per path.
func (w *Watcher) schedule(ev Event) {
	if w.opts.Debounce <= 0 {
		w.enqueue(ev)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.pending[ev.Path]; ok {
		ev.Op = merge(prev, ev.Op)
	}
	w.pending[ev.Path] = ev.Op
	if t, ok := w.timers[ev.Path]; ok {
		t.Stop()
	}
	w.timers[ev.Path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		op, ok := w.pending[ev.Path]
		delete(w.pending, ev.Path)
		delete(w.timers, ev.Path)
		w.mu.Unlock()
		if ok {
			w.enqueue(Event{Op: op, Path: ev.Path})
		}
	})
}

func (w *Watcher) enqueue(ev Event) {
	select {
	case <-w.done:
	case w.queue <- ev:
	}
}

// dispatch runs callbacks one at a time.
func (w *Watcher) dispatch(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.queue:
			w.svc.recorder.IncWatchEvent(string(ev.Op))
			w.fn(ev)
		}
	}
}
