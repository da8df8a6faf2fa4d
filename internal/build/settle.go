package build

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// chunk is one observation from a running build: an output read, or the
// process exit. A chunk may carry stdout and stderr together.
type chunk struct {
	stdout   string
	stderr   string
	exited   bool
	exitCode int
	exitErr  error
}

// settlement is the classified outcome a settler produces.
type settlement struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

// settler reduces a chunk stream to one settlement. observe returns true
// once the settlement is final; exit chunks always finalize.
type settler interface {
	observe(c chunk) (settlement, bool)
}

func newSettler(p Policy, target string) settler {
	if p == PolicyFirstEvent {
		return &firstEventSettler{target: target}
	}
	return &aggregateSettler{target: target}
}

// firstEventSettler settles on the first chunk carrying stderr or stdout,
// checking stderr first. A bare exit resolves with the (empty) stdout of the
// exit chunk, regardless of exit code.
type firstEventSettler struct {
	target string
}

func (s *firstEventSettler) observe(c chunk) (settlement, bool) {
	if c.stderr != "" {
		return settlement{
			stdout: c.stdout,
			stderr: c.stderr,
			err:    buildFailure(s.target, c.stderr, 0, nil),
		}, true
	}
	if c.stdout != "" {
		return settlement{stdout: c.stdout}, true
	}
	if c.exited {
		return settlement{stdout: c.stdout, exitCode: c.exitCode}, true
	}
	return settlement{}, false
}

// aggregateSettler collects every chunk and classifies on exit.
type aggregateSettler struct {
	target string
	stdout strings.Builder
	stderr strings.Builder
}

func (s *aggregateSettler) observe(c chunk) (settlement, bool) {
	s.stdout.WriteString(c.stdout)
	s.stderr.WriteString(c.stderr)
	if !c.exited {
		return settlement{}, false
	}
	out := settlement{stdout: s.stdout.String(), stderr: s.stderr.String(), exitCode: c.exitCode}
	if out.stderr != "" || c.exitCode != 0 || c.exitErr != nil {
		out.err = buildFailure(s.target, out.stderr, c.exitCode, c.exitErr)
	}
	return out, true
}

// buildFailure wraps captured stderr into a classified build error. The
// stderr text is the error's message so callers logging err see it verbatim.
func buildFailure(target, stderr string, exitCode int, cause error) error {
	msg := strings.TrimRight(stderr, "\n")
	if msg == "" {
		msg = "build exited without output"
	}
	if cause == nil {
		cause = ErrBuildFailed
	} else {
		cause = fmt.Errorf("%w: %w", ErrBuildFailed, cause)
	}
	return ferrors.WrapError(cause, ferrors.CategoryBuild, msg).
		WithContext("target", target).
		WithContext("exit_code", exitCode).
		Build()
}
