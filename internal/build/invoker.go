package build

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/logfields"
	"git.home.luguber.info/inful/specserve/internal/metrics"
)

// Runner is the surface the coordinator needs from an Invoker.
type Runner interface {
	RunMake(ctx context.Context, target string, opts Options) <-chan Result
}

// Invoker runs `<command> <target>` in a working directory.
type Invoker struct {
	command  string
	args     []string
	dir      string
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewInvoker returns an Invoker running command in dir. Extra args are
// placed before the target, e.g. NewInvoker("make", ".", "-s").
func NewInvoker(command, dir string, args ...string) *Invoker {
	return &Invoker{
		command:  command,
		args:     args,
		dir:      dir,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
}

// WithRecorder sets the metrics recorder.
func (i *Invoker) WithRecorder(r metrics.Recorder) *Invoker {
	i.recorder = metrics.OrNoop(r)
	return i
}

// WithLogger sets the logger used for build output.
func (i *Invoker) WithLogger(l *slog.Logger) *Invoker {
	if l != nil {
		i.logger = l
	}
	return i
}

// RunMake starts the build for target and returns a channel that receives
// exactly one Result and is then closed.
func (i *Invoker) RunMake(ctx context.Context, target string, opts Options) <-chan Result {
	out := make(chan Result, 1)
	if opts.Async {
		go i.run(ctx, target, opts, out)
	} else {
		i.run(ctx, target, opts, out)
	}
	return out
}

// Run builds target and waits for the settlement.
func (i *Invoker) Run(ctx context.Context, target string, opts Options) Result {
	opts.Async = false
	return <-i.RunMake(ctx, target, opts)
}

func (i *Invoker) run(ctx context.Context, target string, opts Options, out chan<- Result) {
	defer close(out)

	res := Result{BuildID: uuid.NewString(), Target: target, StartedAt: time.Now()}
	settled := false
	deliver := func(s settlement) {
		settled = true
		res.Stdout, res.Stderr, res.ExitCode, res.Err = s.stdout, s.stderr, s.exitCode, s.err
		res.Status = statusFor(s.err)
		res.Duration = time.Since(res.StartedAt)
		i.logSettlement(res, opts.Silent)
		i.recorder.ObserveBuildDuration(target, res.Duration)
		i.recorder.IncBuildOutcome(res.Outcome())
		out <- res
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), i.args...), target)
	cmd := exec.CommandContext(ctx, i.command, args...) //nolint:gosec // command comes from local config
	cmd.Dir = i.dir
	cmd.WaitDelay = time.Second
	ownProcessGroup(cmd)

	chunks, err := i.start(cmd)
	if err != nil {
		deliver(settlement{
			exitCode: -1,
			err: ferrors.WrapError(err, ferrors.CategoryBuild, "failed to start build command").
				WithContext("command", i.command).
				WithContext("target", target).
				Build(),
		})
		return
	}

	i.logger.Debug("Build started", logfields.BuildID(res.BuildID), logfields.Target(target), slog.String("policy", string(opts.Policy)))

	s := newSettler(opts.Policy, target)
	for c := range chunks {
		if settled {
			continue
		}
		if opts.Policy == PolicyFirstEvent && c.stdout != "" && c.stderr == "" && !c.exited {
			c = coalesce(c, chunks, firstEventGrace)
		}
		if c.exited && c.stdout == "" && c.stderr == "" && ctx.Err() != nil {
			deliver(settlement{stdout: c.stdout, exitCode: c.exitCode, err: contextFailure(ctx.Err(), target, opts.Timeout)})
			continue
		}
		if st, done := s.observe(c); done {
			deliver(st)
		}
	}
}

// start launches cmd and returns its chunk stream. The stream ends with one
// exit chunk and is then closed.
//
// Output is copied by exec's own goroutines into chunkWriters, so Wait
// covers both the process and the copies, and WaitDelay bounds how long
// leftover children may hold the pipes open.
func (i *Invoker) start(cmd *exec.Cmd) (<-chan chunk, error) {
	chunks := make(chan chunk, 16)
	cmd.Stdout = chunkWriter{chunks: chunks, wrap: func(s string) chunk { return chunk{stdout: s} }}
	cmd.Stderr = chunkWriter{chunks: chunks, wrap: func(s string) chunk { return chunk{stderr: s} }}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go func() {
		c := exitChunk(cmd.Wait())
		chunks <- c
		close(chunks)
	}()
	return chunks, nil
}

// chunkWriter forwards each write as one chunk.
type chunkWriter struct {
	chunks chan<- chunk
	wrap   func(string) chunk
}

func (w chunkWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.chunks <- w.wrap(string(p))
	}
	return len(p), nil
}

// firstEventGrace is how long a stdout chunk waits for stderr written
// alongside it before the first-event policy settles on it.
const firstEventGrace = 50 * time.Millisecond

// coalesce folds chunks arriving within grace of c into c, stopping early
// once stderr or the exit shows up.
func coalesce(c chunk, chunks <-chan chunk, grace time.Duration) chunk {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for !c.exited && c.stderr == "" {
		select {
		case next, ok := <-chunks:
			if !ok {
				return c
			}
			c.stdout += next.stdout
			c.stderr += next.stderr
			if next.exited {
				c.exited, c.exitCode, c.exitErr = true, next.exitCode, next.exitErr
			}
		case <-timer.C:
			return c
		}
	}
	return c
}

func exitChunk(err error) chunk {
	c := chunk{exited: true}
	// The command succeeded but something it left behind held the pipes
	// open past WaitDelay; the output it produced is complete.
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return c
	}
	c.exitErr = err
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		c.exitCode = exitErr.ExitCode()
	} else {
		c.exitCode = -1
	}
	return c
}

func contextFailure(err error, target string, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ferrors.WrapError(err, ferrors.CategoryTimeout, "build timed out").
			Warning().
			WithContext("target", target).
			WithContext("timeout", timeout.String()).
			Build()
	}
	return ferrors.WrapError(err, ferrors.CategoryCanceled, "build canceled").
		WithSeverity(ferrors.SeverityInfo).
		WithContext("target", target).
		Build()
}

func (i *Invoker) logSettlement(res Result, silent bool) {
	if silent {
		return
	}
	attrs := []any{logfields.BuildID(res.BuildID), logfields.Target(res.Target)}
	if res.Stderr != "" {
		i.logger.Warn("Program stderr", append(attrs, slog.String("stderr", res.Stderr))...)
	}
	if res.Stdout != "" {
		i.logger.Info("Program output", append(attrs, slog.String("stdout", res.Stdout))...)
	}
	i.logger.Info("Exit code", append(attrs, logfields.ExitCode(res.ExitCode), logfields.Duration(res.Duration), slog.String("status", string(res.Status)))...)
}
