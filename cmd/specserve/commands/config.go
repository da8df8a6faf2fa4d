package commands

import (
	"encoding/json"
	"io"
	"os"

	"git.home.luguber.info/inful/specserve/internal/config"
	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// ShowConfigCmd implements the 'config' command.
type ShowConfigCmd struct {
	JSON       bool   `name:"json" help:"Print JSON instead of YAML"`
	Dev        bool   `help:"Resolve as if development mode was forced"`
	ToggleMode string `name:"toggle-mode" enum:",value,presence" default:"" help:"How BS_* toggles are read: value or presence."`
}

func (c *ShowConfigCmd) Run(_ *Global, root *CLI) error {
	opts := root.loadOptions()
	opts.ForceDev = c.Dev
	opts.ToggleMode = c.ToggleMode
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	return WriteConfig(os.Stdout, cfg, c.JSON)
}

// WriteConfig prints cfg as YAML, or indented JSON when asJSON is set.
func WriteConfig(out io.Writer, cfg config.Config, asJSON bool) error {
	var (
		data []byte
		err  error
	)
	if asJSON {
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode config").Build()
		}
		data = append(data, '\n')
	} else if data, err = config.Marshal(cfg); err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
