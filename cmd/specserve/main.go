package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/specserve/cmd/specserve/commands"
	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("specserve"),
		kong.Description("Development server for specification sources with rebuild and live reload."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)
	err := ctx.Run(&commands.Global{Logger: slog.Default()}, &cli)
	ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
