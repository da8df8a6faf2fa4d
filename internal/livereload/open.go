package livereload

import (
	"context"
	"os/exec"
	"runtime"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// browserCommand returns the platform command that opens url.
var browserCommand = func(url string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// OpenBrowser opens url in the default browser and does not wait for it.
func OpenBrowser(ctx context.Context, url string) error {
	name, args := browserCommand(url)
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // fixed command, url is our own listen address
	if err := cmd.Start(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "open browser").
			Warning().
			WithContext("command", name).
			WithContext("url", url).
			Build()
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
