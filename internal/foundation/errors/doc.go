// Package errors provides the classified error primitives used across specserve.
//
// A ClassifiedError carries a category (config, build, watch, server, ...),
// a severity and a retry hint alongside the message and optional cause. The
// fluent ErrorBuilder is the usual way to construct one:
//
//	err := errors.BuildError("make failed").
//		WithContext("target", "spec/latest/index.html").
//		WithCause(runErr).
//		Build()
//
// The CLI and HTTP adapters turn classified errors into exit codes and JSON
// error payloads respectively.
package errors
