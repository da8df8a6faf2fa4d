package build

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// gatedRunner blocks every build until release is called or its context ends.
type gatedRunner struct {
	mu      sync.Mutex
	started []string
	gates   []chan struct{}
}

func (r *gatedRunner) RunMake(ctx context.Context, target string, _ Options) <-chan Result {
	gate := make(chan struct{})
	r.mu.Lock()
	r.started = append(r.started, target)
	r.gates = append(r.gates, gate)
	r.mu.Unlock()

	out := make(chan Result, 1)
	go func() {
		defer close(out)
		select {
		case <-gate:
			out <- Result{Target: target, Status: StatusSuccess}
		case <-ctx.Done():
			out <- Result{Target: target, Status: StatusCanceled, Err: contextFailure(ctx.Err(), target, 0)}
		}
	}()
	return out
}

func (r *gatedRunner) starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func (r *gatedRunner) release(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.gates[i])
}

func collect(ch chan Result) DoneFunc {
	return func(res Result) { ch <- res }
}

func waitResult(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for build result")
		return Result{}
	}
}

func TestCoordinator_SingleRequest(t *testing.T) {
	r := &gatedRunner{}
	c := NewCoordinator(r, DefaultOptions(), true)
	got := make(chan Result, 1)

	c.Request(t.Context(), "a.html", collect(got))
	require.Eventually(t, func() bool { return r.starts() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, c.Running("a.html"))

	r.release(0)
	res := waitResult(t, got)
	require.Equal(t, StatusSuccess, res.Status)
	c.Wait()
	require.False(t, c.Running("a.html"))
}

func TestCoordinator_BurstCoalescesToOneFollowUp(t *testing.T) {
	r := &gatedRunner{}
	c := NewCoordinator(r, DefaultOptions(), false)

	first := make(chan Result, 1)
	second := make(chan Result, 1)
	third := make(chan Result, 1)

	c.Request(t.Context(), "a.html", collect(first))
	require.Eventually(t, func() bool { return r.starts() == 1 }, time.Second, 5*time.Millisecond)

	c.Request(t.Context(), "a.html", collect(second))
	c.Request(t.Context(), "a.html", collect(third))

	require.Equal(t, StatusSuperseded, waitResult(t, first).Status)
	require.Equal(t, StatusSuperseded, waitResult(t, second).Status)

	r.release(0)
	require.Eventually(t, func() bool { return r.starts() == 2 }, time.Second, 5*time.Millisecond)
	r.release(1)

	require.Equal(t, StatusSuccess, waitResult(t, third).Status)
	c.Wait()
	require.Equal(t, 2, r.starts())
}

func TestCoordinator_CancelsSupersededBuild(t *testing.T) {
	r := &gatedRunner{}
	c := NewCoordinator(r, DefaultOptions(), true)

	first := make(chan Result, 1)
	second := make(chan Result, 1)

	c.Request(t.Context(), "a.html", collect(first))
	require.Eventually(t, func() bool { return r.starts() == 1 }, time.Second, 5*time.Millisecond)
	c.Request(t.Context(), "a.html", collect(second))

	require.Equal(t, StatusSuperseded, waitResult(t, first).Status)
	// The canceled first build frees the slot for the follow-up without release.
	require.Eventually(t, func() bool { return r.starts() == 2 }, time.Second, 5*time.Millisecond)
	r.release(1)
	require.Equal(t, StatusSuccess, waitResult(t, second).Status)
	c.Wait()
}

func TestCoordinator_TargetsAreIndependent(t *testing.T) {
	r := &gatedRunner{}
	c := NewCoordinator(r, DefaultOptions(), true)

	a := make(chan Result, 1)
	b := make(chan Result, 1)
	c.Request(t.Context(), "latest.html", collect(a))
	c.Request(t.Context(), "1.1.html", collect(b))
	require.Eventually(t, func() bool { return r.starts() == 2 }, time.Second, 5*time.Millisecond)

	r.release(0)
	r.release(1)
	require.Equal(t, StatusSuccess, waitResult(t, a).Status)
	require.Equal(t, StatusSuccess, waitResult(t, b).Status)
	c.Wait()
}
