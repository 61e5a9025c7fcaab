// Package site is the registration API for site programs. A program
// declares its units on a Site and hands control to Main, which provides
// the full sitepress command line: one-shot builds, monitor mode, serving
// and build history.
//
//	s := site.New()
//	s.FanOut("bio", site.Options{Foreach: "cats/*.md", Target: "{stem}.html", OpenFiles: true}, renderBio)
//	s.Page("index", site.Options{Target: "index.html", DependsOn: []string{"bio"}}, renderIndex)
//	s.Main()
package site

import (
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/sitepress/internal/cli"
	"git.home.luguber.info/inful/sitepress/internal/config"
	"git.home.luguber.info/inful/sitepress/internal/engine"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/pipe"
	"git.home.luguber.info/inful/sitepress/internal/task"
)

type (
	// Context is handed to every user function.
	Context = engine.Context
	// Item is one source of a fan-out page.
	Item = engine.Item
	// Result is what a page function returns; nil skips the item.
	Result = engine.Result
	// Artifact is a file written by a completed unit.
	Artifact = engine.Artifact
	// PageFunc renders one page.
	PageFunc = engine.PageFunc
	// PipeFunc chains stages onto the matched files of a pipeline.
	PipeFunc = engine.PipeFunc
	// Source is the ordered stream list of a pipeline.
	Source = pipe.Source
	// Stage transforms a stream list.
	Stage = pipe.Stage
	// Buffer is one named, rewindable stream.
	Buffer = pipe.Buffer
	// Config is the loaded sitepress.yaml.
	Config = config.Config
)

// Options configure one unit.
type Options struct {
	// Target is an output path template such as "{dir}/{stem}.html".
	Target string
	// Foreach is one glob pattern relative to the source directory. It
	// must match at least one file.
	Foreach string
	// ForeachAll lists glob patterns whose union may be empty. Set either
	// Foreach or ForeachAll.
	ForeachAll []string
	// OpenFiles hands page functions an opened document, and pipelines the
	// document body without front matter.
	OpenFiles bool
	// DependsOn names units that must run first. Only their artifacts can
	// be read through Context.Artifacts.
	DependsOn []string
}

// Site collects unit declarations.
type Site struct {
	name  string
	units []engine.Unit
	errs  []error
	watch []string
}

// New returns an empty Site.
func New() *Site {
	s := &Site{name: "sitepress"}
	// Watching the program's working directory picks up edits to its
	// sources when run with "go run".
	if wd, err := os.Getwd(); err == nil {
		s.watch = append(s.watch, wd)
	}
	return s
}

// Name sets the program name shown in help and errors.
func (s *Site) Name(name string) *Site {
	s.name = name
	return s
}

// Watch adds paths watched in monitor mode besides the defaults.
func (s *Site) Watch(paths ...string) *Site {
	s.watch = append(s.watch, paths...)
	return s
}

// Page registers a single-shot page written to opts.Target unless fn
// returns its own target.
func (s *Site) Page(name string, opts Options, fn PageFunc) *Site {
	if !opts.foreach().IsZero() {
		return s.fail(name, "a page has no foreach patterns; use FanOut")
	}
	return s.add(&engine.PageUnit{Name: name, Target: opts.Target, Deps: opts.DependsOn, Func: fn})
}

// FanOut registers a page called once per file matched by opts.Foreach.
func (s *Site) FanOut(name string, opts Options, fn PageFunc) *Site {
	foreach, msg := opts.required("a fan-out page")
	if msg != "" {
		return s.fail(name, msg)
	}
	return s.add(&engine.PageUnit{
		Name:      name,
		Target:    opts.Target,
		Foreach:   foreach,
		OpenFiles: opts.OpenFiles,
		Deps:      opts.DependsOn,
		Func:      fn,
	})
}

// Asset registers a verbatim copy of every file matched by opts.Foreach.
func (s *Site) Asset(name string, opts Options) *Site {
	foreach, msg := opts.required("an asset")
	if msg != "" {
		return s.fail(name, msg)
	}
	return s.add(&engine.AssetUnit{Name: name, Foreach: foreach, Target: opts.Target, Deps: opts.DependsOn})
}

// Pipeline registers a transform pipeline over the files matched by
// opts.Foreach. A nil fn writes the streams unchanged.
func (s *Site) Pipeline(name string, opts Options, fn PipeFunc) *Site {
	foreach, msg := opts.required("a pipeline")
	if msg != "" {
		return s.fail(name, msg)
	}
	return s.add(&engine.PipelineUnit{
		Name:      name,
		Foreach:   foreach,
		OpenFiles: opts.OpenFiles,
		Deps:      opts.DependsOn,
		Func:      fn,
	})
}

func (o Options) foreach() pathresolve.Patterns {
	if o.ForeachAll != nil {
		return pathresolve.PatternList(o.ForeachAll...)
	}
	if o.Foreach != "" {
		return pathresolve.Pattern(o.Foreach)
	}
	return pathresolve.Patterns{}
}

// required returns the unit's patterns, or a message when they are missing
// or given twice.
func (o Options) required(what string) (pathresolve.Patterns, string) {
	switch {
	case o.Foreach != "" && o.ForeachAll != nil:
		return pathresolve.Patterns{}, what + " takes Foreach or ForeachAll, not both"
	case o.foreach().IsZero():
		return pathresolve.Patterns{}, what + " needs foreach patterns"
	}
	return o.foreach(), ""
}

func (s *Site) add(u engine.Unit) *Site {
	s.units = append(s.units, u)
	return s
}

func (s *Site) fail(name, msg string) *Site {
	s.errs = append(s.errs, ferrors.ConfigError(msg).WithContext("task", name).Build())
	return s
}

// Queue returns the registered units as a build queue. Registration errors
// surface here.
func (s *Site) Queue() (*task.Queue[engine.Unit], error) {
	if len(s.errs) > 0 {
		return nil, s.errs[0]
	}
	q := task.NewQueue[engine.Unit]()
	for _, u := range s.units {
		if err := q.Enqueue(u); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Execute runs the sitepress command line with args and returns the exit
// code.
func (s *Site) Execute(args []string) int {
	return cli.Execute(args, cli.Options{
		Name:        s.name,
		Description: fmt.Sprintf("Build the %s site.", s.name),
		Site: func(*config.Config, *slog.Logger) (*task.Queue[engine.Unit], error) {
			return s.Queue()
		},
		WatchPaths: s.watch,
	})
}

// Main runs the command line with os.Args and exits.
func (s *Site) Main() {
	os.Exit(s.Execute(os.Args[1:]))
}

// Text returns a textual result for the unit's target.
func Text(content string) *Result { return engine.Text(content) }

// Concat joins all streams into one named name.
func Concat(name string) Stage { return pipe.Concat(name) }

// Run filters the joined streams through an external command. argv[0] is
// the program.
func Run(name string, argv ...string) Stage { return pipe.Run(name, argv...) }

// Map transforms each stream.
func Map(fn func(*Buffer) (*Buffer, error)) Stage { return pipe.Map(fn) }

// MapIndexed transforms each stream, passing its 0-based position.
func MapIndexed(fn func(int, *Buffer) (*Buffer, error)) Stage { return pipe.MapIndexed(fn) }

// Rename changes stream names.
func Rename(fn func(string) string) Stage { return pipe.Rename(fn) }
