package events

import "time"

// ChangeDetected is emitted for every watch event the coordinator acts on.
type ChangeDetected struct {
	Op      string
	Path    string
	Watcher string
	At      time.Time
}

// BuildCompleted carries the settlement of one build. Superseded builds
// are reported too, with Status "superseded".
type BuildCompleted struct {
	BuildID   string
	Source    string
	Target    string
	Status    string
	ExitCode  int
	Stdout    string
	Stderr    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded reports whether the build resolved.
func (e BuildCompleted) Succeeded() bool { return e.Status == "success" }

// ReloadRequested is emitted each time browsers are asked to reload.
type ReloadRequested struct {
	Reason string
	Path   string
	At     time.Time
}
