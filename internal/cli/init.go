package cli

import (
	"fmt"

	"git.home.luguber.info/inful/sitepress/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file."`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	path, _ := root.configPath()
	if err := config.Init(path, i.Force); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Stdout, "Wrote example configuration to %s\n", path)
	return nil
}
