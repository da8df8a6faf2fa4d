// Package build runs the external build command (`make <target>` by default)
// and coordinates overlapping build requests.
//
// RunMake starts one subprocess and settles exactly once, on the result
// channel it returns. How output is classified is governed by Policy:
// PolicyFirstEvent settles on the first classifying output chunk,
// PolicyAggregate collects everything until exit. Every invocation settles on process exit, context
// cancellation or Options.Timeout, whichever comes first.
//
// Coordinator sits in front of an Invoker and keeps at most one build per
// target in flight: later requests supersede earlier ones and are coalesced
// into a single follow-up build.
package build
