package metrics

import "time"

// BuildOutcome enumerates build result categories for counters.
type BuildOutcome string

const (
	OutcomeSuccess    BuildOutcome = "success"
	OutcomeFailed     BuildOutcome = "failed"
	OutcomeTimeout    BuildOutcome = "timeout"
	OutcomeCanceled   BuildOutcome = "canceled"
	OutcomeSuperseded BuildOutcome = "superseded"
)

// Recorder defines observability hooks. Implementations may forward to
// Prometheus; NoopRecorder discards everything.
type Recorder interface {
	ObserveBuildDuration(target string, d time.Duration)
	IncBuildOutcome(outcome BuildOutcome)
	IncReload(reason string)
	SetLiveReloadClients(n int)
	IncWatchEvent(op string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(BuildOutcome)               {}
func (NoopRecorder) IncReload(string)                           {}
func (NoopRecorder) SetLiveReloadClients(int)                   {}
func (NoopRecorder) IncWatchEvent(string)                       {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
