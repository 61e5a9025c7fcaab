package engine

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/sitepress/internal/document"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/pipe"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
)

// Context is handed to every unit and user function. It replaces any
// reliance on the process working directory.
type Context struct {
	BuildID   string
	SourceDir string
	OutputDir string
	// Source is rooted at SourceDir; every glob and open goes through it.
	Source fs.FS
	Logger *slog.Logger

	task  string
	deps  sets.Set[string]
	build *build
}

// Task returns the id of the running unit.
func (c *Context) Task() string { return c.task }

// Artifacts returns what a completed dependency wrote. Reading a task that
// the running unit did not declare in DependsOn is a configuration error.
func (c *Context) Artifacts(id string) ([]Artifact, error) {
	if !c.deps.Has(id) {
		return nil, ferrors.ConfigError(fmt.Sprintf("task %q reads artifacts of %q without depending on it", c.task, id)).
			WithContext("task", c.task).
			WithContext("dependency", id).
			Build()
	}
	return slices.Clone(c.build.artifacts[id]), nil
}

// Glob expands one pattern against the source root. Matching nothing is
// a not_found error.
func (c *Context) Glob(pattern string) ([]string, error) {
	return pathresolve.Glob(c.Source, pattern)
}

// GlobAll expands patterns against the source root and returns the union,
// which may be empty.
func (c *Context) GlobAll(patterns ...string) ([]string, error) {
	return pathresolve.GlobAll(c.Source, patterns)
}

// Expand expands a unit's foreach patterns against the source root.
func (c *Context) Expand(p pathresolve.Patterns) ([]string, error) {
	return p.Expand(c.Source)
}

// Open reads the front matter of a source file. The caller closes it.
func (c *Context) Open(name string) (*document.Document, error) {
	return document.OpenFS(c.Source, name)
}

// ReadFile returns the raw bytes of a source file.
func (c *Context) ReadFile(name string) ([]byte, error) {
	data, err := fs.ReadFile(c.Source, name)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read source file").
			WithContext("path", name).
			Build()
	}
	return data, nil
}

// Command returns a pipe stage running argv inside the source directory.
func (c *Context) Command(name string, argv ...string) pipe.Stage {
	return pipe.RunIn(c.SourceDir, name, argv...)
}

// Write records and writes r. r.Target must be set.
func (c *Context) Write(r *Result) error {
	return c.writeResult(r, "")
}

func (c *Context) writeResult(r *Result, source string) error {
	if r.Binary {
		return c.emit(r.Target, source, r.Metadata, func(target string) (string, error) {
			return c.build.writer.WriteBinary(target, r.Content)
		})
	}
	return c.emit(r.Target, source, r.Metadata, func(target string) (string, error) {
		return c.build.writer.WriteText(target, r.Content)
	})
}

// copy streams a source file to target unchanged.
func (c *Context) copy(target, source string, meta map[string]any) error {
	return c.emit(target, source, meta, func(target string) (string, error) {
		f, err := c.Source.Open(source)
		if err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "open asset").
				WithContext("path", source).
				Build()
		}
		defer func() { _ = f.Close() }()
		return c.build.writer.WriteFrom(target, f)
	})
}

// writeStream writes a pipe buffer to the target named by the buffer.
func (c *Context) writeStream(b *pipe.Buffer) error {
	return c.emit(b.Name(), "", nil, func(target string) (string, error) {
		b.Rewind()
		return c.build.writer.WriteFrom(target, io.Reader(b))
	})
}

func (c *Context) emit(target, source string, meta map[string]any, write func(string) (string, error)) error {
	if target == "" {
		return ferrors.ConfigError("artifact has no target").
			WithContext("task", c.task).
			WithContext("source", source).
			Build()
	}
	target = path.Clean(filepath.ToSlash(target))

	abs, err := c.build.writer.Resolve(target)
	if err != nil {
		return ferrors.ConfigError("target must be relative and under the output directory; did it begin with / or ..?").
			WithContext("task", c.task).
			WithContext("target", target).
			WithCause(err).
			Build()
	}
	if c.build.indexPath != "" && abs == c.build.indexPath {
		return ferrors.ConfigError("target collides with the build index").
			WithContext("task", c.task).
			WithContext("target", target).
			Build()
	}
	if owner, dup := c.build.owners[target]; dup {
		return ferrors.ConfigError(fmt.Sprintf("target %q is produced by both %q and %q", target, owner, c.task)).
			WithContext("task", c.task).
			WithContext("target", target).
			Build()
	}

	if _, err := write(target); err != nil {
		return err
	}
	c.build.owners[target] = c.task
	c.build.written = append(c.build.written, target)
	c.build.artifacts[c.task] = append(c.build.artifacts[c.task], Artifact{
		Task:     c.task,
		Target:   target,
		Source:   source,
		Metadata: meta,
	})
	c.Logger.Debug("Wrote artifact", logfields.Task(c.task), logfields.Target(target))
	return nil
}
