package engine

import (
	"context"

	"git.home.luguber.info/inful/sitepress/internal/document"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/task"
)

// Unit kinds reported in logs and the build report.
const (
	KindPage     = "page"
	KindAsset    = "asset"
	KindPipeline = "pipeline"
)

// Unit is a task the engine knows how to run.
type Unit interface {
	task.Task
	Kind() string
	Run(ctx context.Context, bc *Context) error
}

// Item is one fan-out source handed to a page function.
type Item struct {
	// Path is slash-separated and relative to the source root. Empty for
	// single-shot units.
	Path string
	// Target is the unit's template resolved for this item, or Path when the
	// unit has no template.
	Target string
	Fields pathresolve.Fields
	// Doc is set when the unit opens files; the engine closes it.
	Doc *document.Document
}

// PageFunc renders one page.
type PageFunc func(ctx context.Context, bc *Context, item *Item) (*Result, error)

// PageUnit calls Func once, or once per file matched by Foreach.
type PageUnit struct {
	Name string
	// Target is a template such as "{dir}/{stem}.html".
	Target  string
	Foreach pathresolve.Patterns
	// OpenFiles hands Func an opened Document instead of a bare path.
	OpenFiles bool
	Deps      []string
	Func      PageFunc
}

func (u *PageUnit) ID() string          { return u.Name }
func (u *PageUnit) DependsOn() []string { return u.Deps }
func (u *PageUnit) Kind() string        { return KindPage }

func (u *PageUnit) Run(ctx context.Context, bc *Context) error {
	if u.Func == nil {
		return ferrors.ConfigError("page unit has no function").WithContext("task", u.Name).Build()
	}
	if u.Foreach.IsZero() {
		item := &Item{Fields: pathresolve.Fields{}}
		if u.Target != "" {
			t, err := pathresolve.ResolveTarget(u.Target, item.Fields, u.Name, "")
			if err != nil {
				return err
			}
			item.Target = t
		}
		return u.render(ctx, bc, item)
	}

	paths, err := bc.Expand(u.Foreach)
	if err != nil {
		return annotate(err, u.Name, "")
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := newItem(bc, p, u.Target, u.OpenFiles)
		if err != nil {
			return err
		}
		err = u.render(ctx, bc, item)
		if item.Doc != nil {
			_ = item.Doc.Close()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *PageUnit) render(ctx context.Context, bc *Context, item *Item) error {
	res, err := u.Func(ctx, bc, item)
	if err != nil {
		return annotate(err, u.Name, item.Path)
	}
	if res == nil {
		bc.Logger.Info("Page function returned nothing, skipping", logfields.Task(u.Name), logfields.Source(item.Path))
		bc.build.skipped++
		return nil
	}
	out := *res
	if out.Target == "" {
		out.Target = item.Target
	}
	if out.Target == "" {
		return ferrors.ConfigError("page returned only content and the unit declares no target").
			WithContext("task", u.Name).
			Build()
	}
	return bc.writeResult(&out, item.Path)
}

// AssetUnit copies every file matched by Foreach verbatim.
type AssetUnit struct {
	Name    string
	Foreach pathresolve.Patterns
	// Target defaults to the source path.
	Target string
	Deps   []string
}

func (u *AssetUnit) ID() string          { return u.Name }
func (u *AssetUnit) DependsOn() []string { return u.Deps }
func (u *AssetUnit) Kind() string        { return KindAsset }

func (u *AssetUnit) Run(ctx context.Context, bc *Context) error {
	paths, err := bc.Expand(u.Foreach)
	if err != nil {
		return annotate(err, u.Name, "")
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := newItem(bc, p, u.Target, false)
		if err != nil {
			return err
		}
		if err := bc.copy(item.Target, p, nil); err != nil {
			return err
		}
	}
	return nil
}

func newItem(bc *Context, rel, tmpl string, open bool) (*Item, error) {
	item := &Item{Path: rel, Target: rel}
	var meta map[string]any
	if open {
		doc, err := bc.Open(rel)
		if err != nil {
			return nil, annotate(err, bc.task, rel)
		}
		item.Doc = doc
		meta = doc.FrontMatter
	}
	item.Fields = pathresolve.FieldsFor(rel, meta)
	if tmpl != "" {
		t, err := pathresolve.ResolveTarget(tmpl, item.Fields, bc.task, rel)
		if err != nil {
			if item.Doc != nil {
				_ = item.Doc.Close()
			}
			return nil, err
		}
		item.Target = t
	}
	return item, nil
}

// annotate attaches the task and source to err, keeping its category.
// Unclassified errors from user functions become build errors.
func annotate(err error, taskID, source string) error {
	ce, ok := ferrors.AsClassified(err)
	if ok && ce == err {
		ce = ce.WithContext("task", taskID)
		if source != "" {
			ce = ce.WithContext("source", source)
		}
		return ce
	}
	b := ferrors.WrapError(err, ferrors.CategoryBuild, "unit function failed").OnChange()
	if ok {
		b = ferrors.WrapError(err, ce.Category(), ce.Message()).
			WithSeverity(ce.Severity()).
			WithRetry(ce.RetryStrategy())
	}
	b = b.WithContext("task", taskID)
	if source != "" {
		b = b.WithContext("source", source)
	}
	return b.Build()
}
