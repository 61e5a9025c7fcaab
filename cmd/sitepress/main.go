// Command sitepress builds the site declared in sitepress.yaml.
package main

import (
	"os"

	"git.home.luguber.info/inful/sitepress/internal/cli"
	"git.home.luguber.info/inful/sitepress/internal/declare"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], cli.Options{Site: declare.Site}))
}
