package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/logfields"
)

// DefaultRetention is how long build records are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Pruner deletes old records on a schedule.
type Pruner struct {
	scheduler gocron.Scheduler
	store     Store
	retention time.Duration
	now       func() time.Time
}

// NewPruner creates a pruner that runs every interval.
func NewPruner(store Store, retention, interval time.Duration) (*Pruner, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = time.Hour
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "create gocron scheduler").Build()
	}
	p := &Pruner{scheduler: s, store: store, retention: retention, now: time.Now}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.runOnce),
		gocron.WithName("history-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "schedule history pruning").Build()
	}
	return p, nil
}

// Start begins the schedule.
func (p *Pruner) Start() {
	slog.Debug("Starting history pruner", slog.Duration("retention", p.retention))
	p.scheduler.Start()
}

// Stop shuts the scheduler down.
func (p *Pruner) Stop() error {
	return p.scheduler.Shutdown()
}

func (p *Pruner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := p.Prune(ctx); err != nil {
		slog.Warn("History prune failed", logfields.Error(err))
	}
}

// Prune deletes records older than the retention window now.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	n, err := p.store.PruneBefore(ctx, p.now().Add(-p.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Pruned build history", slog.Int64("records", n))
	}
	return n, nil
}
