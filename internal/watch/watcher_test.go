package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) has(ev Event) bool {
	for _, e := range l.snapshot() {
		if e == ev {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func newTestService(t *testing.T, root string, excludes ...string) *Service {
	t.Helper()
	svc, err := NewService(root, excludes, nil)
	require.NoError(t, err)
	return svc
}

func TestWatcher_ChangeEvent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "spec", "latest", "index.bs")
	writeFile(t, src, "v1")

	var log eventLog
	w, err := newTestService(t, root).Watch([]string{"spec/{latest,1.1}/index.bs"},
		Options{IgnoreInitial: true, Debounce: 20 * time.Millisecond}, log.add)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	writeFile(t, src, "v2")
	require.Eventually(t, func() bool {
		return log.has(Event{Op: OpChange, Path: "spec/latest/index.bs"})
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoreInitial(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), "x")

	var quiet eventLog
	w, err := newTestService(t, root).Watch([]string{"*.html"}, Options{IgnoreInitial: true}, quiet.add)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Close())
	require.Empty(t, quiet.snapshot())

	var loud eventLog
	w, err = newTestService(t, root).Watch([]string{"*.html"}, Options{IgnoreInitial: false}, loud.add)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	require.Eventually(t, func() bool {
		return loud.has(Event{Op: OpAdd, Path: "index.html"})
	}, time.Second, 10*time.Millisecond)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()

	var log eventLog
	w, err := newTestService(t, root).Watch([]string{"charter/**"}, Options{IgnoreInitial: true}, log.add)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.NoError(t, os.Mkdir(filepath.Join(root, "charter"), 0o750))
	require.Eventually(t, func() bool {
		return log.has(Event{Op: OpAddDir, Path: "charter"})
	}, 2*time.Second, 10*time.Millisecond)

	file := filepath.Join(root, "charter", "index.html")
	writeFile(t, file, "x")
	require.Eventually(t, func() bool {
		return log.has(Event{Op: OpAdd, Path: "charter/index.html"}) ||
			log.has(Event{Op: OpChange, Path: "charter/index.html"})
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(file))
	require.Eventually(t, func() bool {
		return log.has(Event{Op: OpUnlink, Path: "charter/index.html"})
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ExclusionsAndGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "build/\n")
	writeFile(t, filepath.Join(root, "build", "out.js"), "x")
	writeFile(t, filepath.Join(root, "node_modules", "lib.js"), "x")
	writeFile(t, filepath.Join(root, "app.js"), "x")

	var log eventLog
	svc := newTestService(t, root, "**", "!node_modules")
	w, err := svc.Watch([]string{"*.js", "**/*.js"}, Options{IgnoreInitial: false, RespectGitignore: true}, log.add)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	require.Eventually(t, func() bool {
		return log.has(Event{Op: OpAdd, Path: "app.js"})
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	for _, ev := range log.snapshot() {
		require.NotContains(t, ev.Path, "node_modules")
		require.NotContains(t, ev.Path, "build/")
	}
}

func TestWatcher_DebounceCollapsesBurst(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "style.css")
	writeFile(t, file, "a")

	var log eventLog
	w, err := newTestService(t, root).Watch([]string{"*.css"},
		Options{IgnoreInitial: true, Debounce: 150 * time.Millisecond}, log.add)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	for i := range 5 {
		writeFile(t, file, string(rune('a'+i)))
		time.Sleep(10 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return len(log.snapshot()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	require.Equal(t, []Event{{Op: OpChange, Path: "style.css"}}, log.snapshot())
}

func TestWatch_RequiresIncludePattern(t *testing.T) {
	_, err := newTestService(t, t.TempDir()).Watch([]string{"!*.zip"}, Options{}, func(Event) {})
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	require.Equal(t, OpAdd, merge(OpAdd, OpChange))
	require.Equal(t, OpUnlink, merge(OpAdd, OpUnlink))
	require.Equal(t, OpChange, merge(OpChange, OpChange))
	require.Equal(t, OpChange, merge(OpUnlink, OpAdd))
	require.Equal(t, OpAdd, merge(OpUnlinkDir, OpAdd))
}

func watchSource(t *testing.T, debounce time.Duration) (string, *eventLog) {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "spec", "latest", "index.bs")
	writeFile(t, src, "v1")

	log := &eventLog{}
	w, err := newTestService(t, root).Watch([]string{"spec/{latest,1.1}/index.bs"},
		Options{IgnoreInitial: true, Debounce: debounce}, log.add)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return src, log
}

func requireOnlyChange(t *testing.T, log *eventLog) {
	t.Helper()
	want := Event{Op: OpChange, Path: "spec/latest/index.bs"}
	require.Eventually(t, func() bool { return log.has(want) }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	for _, ev := range log.snapshot() {
		require.Equal(t, want, ev)
	}
}

func TestWatcher_RenameOverKnownFileIsChange(t *testing.T) {
	src, log := watchSource(t, 0)

	tmp := filepath.Join(filepath.Dir(src), ".index.bs.tmp123")
	writeFile(t, tmp, "v2")
	require.NoError(t, os.Rename(tmp, src))

	requireOnlyChange(t, log)
}

func TestWatcher_UnlinkThenCreateIsChange(t *testing.T) {
	src, log := watchSource(t, 50*time.Millisecond)

	require.NoError(t, os.Remove(src))
	writeFile(t, src, "v2")

	requireOnlyChange(t, log)
}
