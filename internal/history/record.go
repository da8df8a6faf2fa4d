// Package history keeps a queryable log of build settlements in SQLite.
package history

import (
	"context"
	"time"
)

// Record is one persisted build settlement.
type Record struct {
	ID        string
	Target    string
	Status    string
	ExitCode  int
	Stdout    string
	Stderr    string
	StartedAt time.Time
	Duration  time.Duration
}

// Store persists build records.
type Store interface {
	Append(ctx context.Context, r Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	ByTarget(ctx context.Context, target string, limit int) ([]Record, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
