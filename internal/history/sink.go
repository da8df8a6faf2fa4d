package history

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/specserve/internal/events"
	"git.home.luguber.info/inful/specserve/internal/logfields"
)

// FromEvent converts a build event into a record.
func FromEvent(e events.BuildCompleted) Record {
	return Record{
		ID:        e.BuildID,
		Target:    e.Target,
		Status:    e.Status,
		ExitCode:  e.ExitCode,
		Stdout:    e.Stdout,
		Stderr:    e.Stderr,
		StartedAt: e.StartedAt,
		Duration:  e.Duration,
	}
}

// Consume appends every BuildCompleted published on bus until ctx ends or
// the bus closes. Superseded builds that never ran carry no ID and are
// skipped.
func Consume(ctx context.Context, bus *events.Bus, store Store) error {
	ch, unsubscribe := events.Subscribe[events.BuildCompleted](bus, 16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if e.BuildID == "" {
				continue
			}
			if err := store.Append(ctx, FromEvent(e)); err != nil {
				slog.Warn("Failed to record build", logfields.BuildID(e.BuildID), logfields.Error(err))
			}
		}
	}
}
