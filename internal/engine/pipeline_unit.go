package engine

import (
	"context"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/pipe"
)

// PipeFunc transforms the opened sources of a pipeline unit. The streams
// left in the returned Source are written, each to the target its name gives.
type PipeFunc func(ctx context.Context, bc *Context, src *pipe.Source) (*pipe.Source, error)

// PipelineUnit feeds every file matched by Foreach through Func.
type PipelineUnit struct {
	Name    string
	Foreach pathresolve.Patterns
	// OpenFiles streams the decoded document body with front matter removed
	// instead of the raw file bytes.
	OpenFiles bool
	Deps      []string
	Func      PipeFunc
}

func (u *PipelineUnit) ID() string          { return u.Name }
func (u *PipelineUnit) DependsOn() []string { return u.Deps }
func (u *PipelineUnit) Kind() string        { return KindPipeline }

func (u *PipelineUnit) Run(ctx context.Context, bc *Context) error {
	paths, err := bc.Expand(u.Foreach)
	if err != nil {
		return annotate(err, u.Name, "")
	}

	bufs := make([]*pipe.Buffer, 0, len(paths))
	release := func() {
		for _, b := range bufs {
			_ = b.Close()
		}
	}
	for _, p := range paths {
		b, err := u.load(bc, p)
		if err != nil {
			release()
			return annotate(err, u.Name, p)
		}
		bufs = append(bufs, b)
	}

	src := pipe.NewSource(bufs...)
	defer func() { _ = src.Close() }()
	if u.Func != nil {
		out, err := u.Func(ctx, bc, src)
		if err != nil {
			return annotate(err, u.Name, "")
		}
		if out != nil && out != src {
			defer func() { _ = out.Close() }()
			src = out
		}
	}

	bc.Logger.Info("Pipeline yielded streams", logfields.Task(u.Name), logfields.Count(src.Len()))
	for _, b := range src.Streams() {
		if err := bc.writeStream(b); err != nil {
			return err
		}
	}
	return nil
}

func (u *PipelineUnit) load(bc *Context, rel string) (*pipe.Buffer, error) {
	if !u.OpenFiles {
		f, err := bc.Source.Open(rel)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open pipeline source").
				WithContext("path", rel).
				Build()
		}
		defer func() { _ = f.Close() }()
		return pipe.FromReader(rel, f)
	}
	doc, err := bc.Open(rel)
	if err != nil {
		return nil, err
	}
	defer func() { _ = doc.Close() }()
	return pipe.FromReader(rel, doc.Body())
}
