package build

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/logfields"
	"git.home.luguber.info/inful/specserve/internal/metrics"
)

// DoneFunc receives the settlement for one Request.
type DoneFunc func(Result)

// Coordinator keeps at most one build per target in flight. A request that
// arrives while its target is building supersedes the running build (its
// DoneFunc receives StatusSuperseded, and its process is canceled when
// CancelSuperseded is set) and is queued as the single follow-up. Requests
// queued behind the same running build collapse into the newest one.
type Coordinator struct {
	runner           Runner
	opts             Options
	cancelSuperseded bool
	recorder         metrics.Recorder

	mu      sync.Mutex
	targets map[string]*targetState
	wg      sync.WaitGroup
}

type targetState struct {
	running bool
	cancel  context.CancelFunc
	// current is notified when the running build settles; nil once superseded.
	current DoneFunc
	// next holds the queued follow-up request, if any.
	next    DoneFunc
	nextCtx context.Context
}

// NewCoordinator wraps runner. opts is used for every build it starts.
func NewCoordinator(runner Runner, opts Options, cancelSuperseded bool) *Coordinator {
	return &Coordinator{
		runner:           runner,
		opts:             opts,
		cancelSuperseded: cancelSuperseded,
		recorder:         metrics.NoopRecorder{},
		targets:          make(map[string]*targetState),
	}
}

// WithRecorder sets the metrics recorder used for superseded builds.
func (c *Coordinator) WithRecorder(r metrics.Recorder) *Coordinator {
	c.recorder = metrics.OrNoop(r)
	return c
}

// Request schedules a build of target. done is called exactly once, from
// another goroutine.
func (c *Coordinator) Request(ctx context.Context, target string, done DoneFunc) {
	if done == nil {
		done = func(Result) {}
	}
	var superseded []DoneFunc

	c.mu.Lock()
	st := c.targets[target]
	if st == nil {
		st = &targetState{}
		c.targets[target] = st
	}
	if !st.running {
		c.startLocked(ctx, target, st, done)
		c.mu.Unlock()
		return
	}
	if st.next != nil {
		superseded = append(superseded, st.next)
	}
	if st.current != nil {
		superseded = append(superseded, st.current)
		st.current = nil
		if c.cancelSuperseded && st.cancel != nil {
			st.cancel()
		}
	}
	st.next, st.nextCtx = done, ctx
	c.mu.Unlock()

	for _, fn := range superseded {
		c.recorder.IncBuildOutcome(metrics.OutcomeSuperseded)
		fn(supersededResult(target))
	}
	slog.Debug("Build request coalesced", logfields.Target(target), slog.Int("superseded", len(superseded)))
}

// startLocked must be called with c.mu held.
func (c *Coordinator) startLocked(ctx context.Context, target string, st *targetState, done DoneFunc) {
	bctx, cancel := context.WithCancel(ctx)
	st.running = true
	st.cancel = cancel
	st.current = done
	opts := c.opts
	opts.Async = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := <-c.runner.RunMake(bctx, target, opts)
		cancel()
		c.finish(target, res)
	}()
}

func (c *Coordinator) finish(target string, res Result) {
	c.mu.Lock()
	st := c.targets[target]
	notify := st.current
	st.current = nil
	st.running = false
	st.cancel = nil
	if st.next != nil {
		next, nextCtx := st.next, st.nextCtx
		st.next, st.nextCtx = nil, nil
		if nextCtx.Err() != nil {
			c.mu.Unlock()
			if notify != nil {
				notify(res)
			}
			next(Result{Target: target, Status: StatusCanceled, StartedAt: time.Now(),
				Err: contextFailure(nextCtx.Err(), target, 0)})
			return
		}
		c.startLocked(nextCtx, target, st, next)
	} else {
		delete(c.targets, target)
	}
	c.mu.Unlock()

	if notify != nil {
		notify(res)
	}
}

// Running reports whether a build for target is in flight.
func (c *Coordinator) Running(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.targets[target]
	return st != nil && st.running
}

// Wait blocks until all started builds, including follow-ups, have settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func supersededResult(target string) Result {
	return Result{
		Target:    target,
		Status:    StatusSuperseded,
		StartedAt: time.Now(),
		Err: ferrors.WrapError(ErrSuperseded, ferrors.CategoryCanceled, "build superseded by a newer change").
			WithSeverity(ferrors.SeverityInfo).
			WithContext("target", target).
			Build(),
	}
}
