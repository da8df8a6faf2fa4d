package commands

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"git.home.luguber.info/inful/specserve/internal/version"
)

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (v *VersionCmd) Run(_ *Global, _ *CLI) error {
	printVersion(os.Stdout)
	return nil
}

func printVersion(out io.Writer) {
	_, _ = fmt.Fprintf(out, "specserve %s\n", version.Version)
	_, _ = fmt.Fprintf(out, "  commit: %s\n", version.GitCommit)
	_, _ = fmt.Fprintf(out, "  built:  %s\n", version.BuildTime)
	_, _ = fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
