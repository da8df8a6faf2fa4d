package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitStable_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte("<html></html>"), 0o600))
	require.NoError(t, WaitStable(t.Context(), path, 5*time.Millisecond))
}

func TestWaitStable_FileAppearsLate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.WriteFile(path, []byte("done"), 0o600)
	}()
	require.NoError(t, WaitStable(t.Context(), path, 10*time.Millisecond))
}

func TestWaitStable_MissingFileGivesUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.html")
	err := WaitStable(t.Context(), path, time.Millisecond)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotStable))
}

func TestWaitStable_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := WaitStable(ctx, filepath.Join(t.TempDir(), "x"), 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitStable_ZeroIntervalSkips(t *testing.T) {
	require.NoError(t, WaitStable(t.Context(), "/nonexistent", 0))
}
