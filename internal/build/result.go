package build

import (
	"time"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/metrics"
)

// Status is the settled state of a build.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
	StatusCanceled   Status = "canceled"
	StatusSuperseded Status = "superseded"
)

// Result is the single settlement of one build invocation.
type Result struct {
	BuildID   string
	Target    string
	Status    Status
	Stdout    string
	Stderr    string
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
	// Err is nil exactly when Status is StatusSuccess.
	Err error
}

// OK reports whether the build resolved successfully.
func (r Result) OK() bool { return r.Err == nil }

// Outcome maps the status to its metrics label.
func (r Result) Outcome() metrics.BuildOutcome {
	switch r.Status {
	case StatusSuccess:
		return metrics.OutcomeSuccess
	case StatusTimeout:
		return metrics.OutcomeTimeout
	case StatusCanceled:
		return metrics.OutcomeCanceled
	case StatusSuperseded:
		return metrics.OutcomeSuperseded
	default:
		return metrics.OutcomeFailed
	}
}

// statusFor derives a Status from a classified error category.
func statusFor(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	switch ferrors.GetCategory(err) {
	case ferrors.CategoryTimeout:
		return StatusTimeout
	case ferrors.CategoryCanceled:
		return StatusCanceled
	default:
		return StatusFailed
	}
}
