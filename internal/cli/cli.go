// Package cli is the command tree shared by the stock sitepress binary and
// site programs built on pkg/site.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/sitepress/internal/config"
	"git.home.luguber.info/inful/sitepress/internal/engine"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/task"
	"git.home.luguber.info/inful/sitepress/internal/version"
)

// SiteFunc returns the units of one build pass.
type SiteFunc func(cfg *config.Config, logger *slog.Logger) (*task.Queue[engine.Unit], error)

// Global carries what commands share beyond flags.
type Global struct {
	Logger *slog.Logger
	Site   SiteFunc
	// WatchPaths join the default watch list, typically the directory of
	// the site program's own sources.
	WatchPaths []string
	Registry   *prometheus.Registry
	Stdout     io.Writer
	Stderr     io.Writer
}

// CLI is the root command.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (default: sitepress.yaml when present)." type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging."`
	Version kong.VersionFlag `name:"version" help:"Show version and exit."`

	Build   BuildCmd   `cmd:"" default:"withargs" help:"Build the site (the default command)."`
	History HistoryCmd `cmd:"" help:"List recent builds."`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file."`

	stderr io.Writer `kong:"-"`
}

// AfterApply installs the default logger once flags are parsed.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(c.stderr, level, config.LogFormatText))
	return nil
}

// configPath returns the configuration path and whether it was requested
// explicitly.
func (c *CLI) configPath() (string, bool) {
	if c.Config == "" {
		return config.DefaultFile, false
	}
	return c.Config, true
}

func (c *CLI) loadConfig() (*config.Config, error) {
	path, explicit := c.configPath()
	return config.LoadOrDefault(path, explicit)
}

// Options customise Execute.
type Options struct {
	Name        string
	Description string
	Site        SiteFunc
	WatchPaths  []string
	Stdout      io.Writer
	Stderr      io.Writer
}

// Execute parses args, runs the selected command and returns the process
// exit code.
func Execute(args []string, opts Options) int {
	if opts.Name == "" {
		opts.Name = "sitepress"
	}
	if opts.Description == "" {
		opts.Description = "Build a static site from source files and the units that render them."
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	root := &CLI{stderr: opts.Stderr}
	parser, err := kong.New(root,
		kong.Name(opts.Name),
		kong.Description(opts.Description),
		kong.UsageOnError(),
		kong.Writers(opts.Stdout, opts.Stderr),
		kong.Vars{"version": version.String()},
	)
	if err != nil {
		_, _ = fmt.Fprintln(opts.Stderr, err)
		return 10
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		var parseErr *kong.ParseError
		if errors.As(err, &parseErr) {
			_ = parseErr.Context.PrintUsage(true)
		}
		_, _ = fmt.Fprintf(opts.Stderr, "%s: error: %v\n", opts.Name, err)
		return 2
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	g := &Global{
		Logger:     slog.Default(),
		Site:       opts.Site,
		WatchPaths: opts.WatchPaths,
		Registry:   reg,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
	}
	err = ctx.Run(g, root)

	adapter := ferrors.NewCLIErrorAdapter(root.Verbose, slog.Default())
	return adapter.HandleError(err)
}
