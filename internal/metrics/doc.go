// Package metrics provides the observability hooks for builds, reloads and
// file watching.
//
// Components receive a Recorder through their constructors and default to
// NoopRecorder, so no call site needs a nil check:
//
//	inv := build.NewInvoker(cfg.Build, cfg.Server) // NoopRecorder
//	inv = inv.WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// The serve command wires a PrometheusRecorder and exposes it with
// HTTPHandler at /metrics.
package metrics
