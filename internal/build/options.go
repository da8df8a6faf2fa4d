package build

import (
	"time"

	"git.home.luguber.info/inful/specserve/internal/config"
)

// Policy selects how subprocess output settles a build.
type Policy string

const (
	// PolicyAggregate collects all output until exit; non-empty stderr or a
	// non-zero exit code rejects.
	PolicyAggregate Policy = config.PolicyAggregate
	// PolicyFirstEvent settles on the first classifying chunk: stderr
	// rejects, stdout resolves, a bare exit resolves with the stdout captured
	// so far. Later chunks are drained and discarded.
	PolicyFirstEvent Policy = config.PolicyFirstEvent
)

// Options configures one RunMake invocation.
type Options struct {
	// Silent suppresses the stdout/stderr/exit code log lines.
	Silent bool
	// Async makes RunMake return before the build finishes. When false the
	// returned channel is already settled.
	Async   bool
	Policy  Policy
	Timeout time.Duration
}

// DefaultOptions returns the defaults: not silent, asynchronous, aggregate
// policy, two minute timeout.
func DefaultOptions() Options {
	return Options{
		Async:   true,
		Policy:  PolicyAggregate,
		Timeout: 2 * time.Minute,
	}
}

// OptionsFromConfig maps BuildConfig onto Options.
func OptionsFromConfig(cfg config.BuildConfig) Options {
	opts := DefaultOptions()
	opts.Silent = cfg.Silent
	if cfg.Policy != "" {
		opts.Policy = Policy(cfg.Policy)
	}
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	return opts
}
