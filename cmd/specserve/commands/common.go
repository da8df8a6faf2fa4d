package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/specserve/internal/config"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"YAML override file. A missing file is ignored unless set explicitly." default:""`
	EnvDir  string           `name:"env-dir" help:"Directory holding .env and .env.local." default:""`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve      ServeCmd      `cmd:"" default:"withargs" help:"Serve the site root and, in development mode, rebuild and live reload on change"`
	Build      BuildCmd      `cmd:"" help:"Run the build command for one target once"`
	ShowConfig ShowConfigCmd `cmd:"" name:"config" help:"Print the resolved configuration"`
	Init       InitCmd       `cmd:"" help:"Write an override file populated with the defaults"`
	Info       VersionCmd    `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// loadOptions maps the global flags. Without --config the default override
// file is read when it exists.
func (c *CLI) loadOptions() config.LoadOptions {
	opts := config.LoadOptions{OverrideFile: c.Config, Required: c.Config != "", EnvDir: c.EnvDir}
	if opts.OverrideFile == "" {
		opts.OverrideFile = config.DefaultOverrideFile
	}
	return opts
}
