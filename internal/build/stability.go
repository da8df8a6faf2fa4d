package build

import (
	"context"
	"os"
	"time"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// stableAttempts bounds WaitStable to this many polls.
const stableAttempts = 20

// WaitStable polls path every interval until it exists and its size and
// modification time are unchanged across two consecutive polls. It returns
// an error wrapping ErrNotStable if that does not happen within the bounded
// number of attempts.
func WaitStable(ctx context.Context, path string, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	var last os.FileInfo
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range stableAttempts {
		fi, err := os.Stat(path)
		if err == nil && last != nil && fi.Size() == last.Size() && fi.ModTime().Equal(last.ModTime()) {
			return nil
		}
		if err == nil {
			last = fi
		} else {
			last = nil
		}
		select {
		case <-ctx.Done():
			return ferrors.WrapError(ctx.Err(), ferrors.CategoryCanceled, "stability wait canceled").
				WithSeverity(ferrors.SeverityInfo).
				WithContext("path", path).
				Build()
		case <-ticker.C:
		}
	}
	return ferrors.WrapError(ErrNotStable, ferrors.CategoryBuild, "build output did not settle").
		Warning().
		WithContext("path", path).
		WithContext("interval", interval.String()).
		Build()
}
