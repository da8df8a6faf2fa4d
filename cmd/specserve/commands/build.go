package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/specserve/internal/build"
	"git.home.luguber.info/inful/specserve/internal/config"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Target  string        `arg:"" help:"Make target to build, e.g. spec/latest/index.html"`
	Policy  string        `enum:",aggregate,first-event" default:"" help:"Output settlement policy (default from config)."`
	Timeout time.Duration `help:"Kill the build after this long (default from config)."`
	Silent  bool          `help:"Do not log build output."`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.loadOptions())
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunBuild(ctx, os.Stdout, cfg, b)
}

// RunBuild runs the build command once for b.Target and waits for it.
func RunBuild(ctx context.Context, out io.Writer, cfg config.Config, b *BuildCmd) error {
	opts := build.OptionsFromConfig(cfg.Build)
	opts.Async = false
	if b.Policy != "" {
		opts.Policy = build.Policy(b.Policy)
	}
	if b.Timeout > 0 {
		opts.Timeout = b.Timeout
	}
	opts.Silent = opts.Silent || b.Silent

	res := build.NewInvoker(cfg.Build.Command, cfg.Server).Run(ctx, b.Target, opts)
	if res.Err != nil {
		return res.Err
	}
	_, _ = fmt.Fprintf(out, "Built %s in %s\n", res.Target, res.Duration.Round(time.Millisecond))
	return nil
}
