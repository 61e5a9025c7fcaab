package declare

import (
	"bytes"
	"context"
	"encoding/hex"
	"html/template"
	"log/slog"
	"maps"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"

	"git.home.luguber.info/inful/sitepress/internal/config"
	"git.home.luguber.info/inful/sitepress/internal/engine"
	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/markdown"
	"git.home.luguber.info/inful/sitepress/internal/pathresolve"
	"git.home.luguber.info/inful/sitepress/internal/pipe"
	"git.home.luguber.info/inful/sitepress/internal/task"
)

// DefaultLayoutCacheSize bounds the number of parsed layouts kept.
const DefaultLayoutCacheSize = 64

// Page is the data a layout is executed with.
type Page struct {
	Unit    string
	BuildID string
	// Path is the source path, empty for single-shot pages.
	Path   string
	Target string
	Fields pathresolve.Fields
	Meta   map[string]any
	// Title is meta.title, else the first level-one heading of a Markdown body.
	Title   string
	Content template.HTML
	Deps    map[string][]engine.Artifact
}

// Builder creates engine units from configuration.
type Builder struct {
	md      *markdown.Renderer
	layouts *lru.Cache[string, *template.Template]
	logger  *slog.Logger
}

// New returns a Builder.
func New(logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *template.Template](DefaultLayoutCacheSize)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "create layout cache").Build()
	}
	return &Builder{
		md:      markdown.NewRenderer(markdown.Options{Unsafe: true, RewriteLink: markdown.RewriteExt(".html")}),
		layouts: cache,
		logger:  logger,
	}, nil
}

// Site builds the queue declared by cfg.Units with a fresh Builder. It is
// the site function of the stock binary.
func Site(cfg *config.Config, logger *slog.Logger) (*task.Queue[engine.Unit], error) {
	b, err := New(logger)
	if err != nil {
		return nil, err
	}
	return b.Queue(cfg.Units)
}

// Queue returns a queue holding one unit per entry of units.
func (b *Builder) Queue(units []config.UnitConfig) (*task.Queue[engine.Unit], error) {
	q := task.NewQueue[engine.Unit]()
	for _, uc := range units {
		u, err := b.Unit(uc)
		if err != nil {
			return nil, err
		}
		if err := q.Enqueue(u); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// patterns keeps the written form: a list may match nothing, a single
// pattern may not.
func patterns(p config.Patterns) pathresolve.Patterns {
	switch {
	case p.List:
		return pathresolve.PatternList(p.Items...)
	case len(p.Items) > 0:
		return pathresolve.Pattern(p.Items[0])
	default:
		return pathresolve.Patterns{}
	}
}

// Unit converts one unit declaration.
func (b *Builder) Unit(uc config.UnitConfig) (engine.Unit, error) {
	foreach := patterns(uc.Foreach)
	switch uc.Kind {
	case config.UnitPage, "":
		return &engine.PageUnit{
			Name:      uc.Name,
			Target:    uc.Target,
			Foreach:   foreach,
			OpenFiles: !foreach.IsZero(),
			Deps:      uc.DependsOn,
			Func:      b.page(uc),
		}, nil
	case config.UnitAsset:
		return &engine.AssetUnit{
			Name:    uc.Name,
			Foreach: foreach,
			Target:  uc.Target,
			Deps:    uc.DependsOn,
		}, nil
	case config.UnitPipeline:
		return &engine.PipelineUnit{
			Name:    uc.Name,
			Foreach: foreach,
			Deps:    uc.DependsOn,
			Func:    stages(uc.Stages),
		}, nil
	default:
		return nil, ferrors.ConfigError("unknown unit kind").
			WithContext("task", uc.Name).
			WithContext("kind", string(uc.Kind)).
			Build()
	}
}

func (b *Builder) page(uc config.UnitConfig) engine.PageFunc {
	return func(_ context.Context, bc *engine.Context, item *engine.Item) (*engine.Result, error) {
		page := &Page{
			Unit:    uc.Name,
			BuildID: bc.BuildID,
			Path:    item.Path,
			Target:  item.Target,
			Fields:  item.Fields,
			Deps:    make(map[string][]engine.Artifact, len(uc.DependsOn)),
		}
		for _, dep := range uc.DependsOn {
			arts, err := bc.Artifacts(dep)
			if err != nil {
				return nil, err
			}
			page.Deps[dep] = arts
		}

		if item.Doc != nil {
			if draft(item.Doc.FrontMatter) {
				bc.Logger.Debug("Skipping draft", logfields.Task(uc.Name), logfields.Source(item.Path))
				return nil, nil
			}
			page.Meta = item.Doc.FrontMatter
			body, err := item.Doc.ReadBody()
			if err != nil {
				return nil, err
			}
			if b.wantsMarkdown(uc, item.Path) {
				html, err := b.md.Render(body)
				if err != nil {
					return nil, ferrors.WrapError(err, ferrors.CategoryDocument, "render markdown").
						WithContext("source", item.Path).
						Build()
				}
				page.Title = b.md.Title(body)
				page.Content = template.HTML(html) // #nosec G203 -- rendered from the site's own sources
			} else {
				page.Content = template.HTML(body) // #nosec G203 -- the site's own sources
			}
			if t, ok := page.Meta["title"].(string); ok && t != "" {
				page.Title = t
			}
		}

		content := []byte(page.Content)
		if uc.Layout != "" {
			tmpl, err := b.layout(bc, uc.Layout)
			if err != nil {
				return nil, err
			}
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, page); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryBuild, "execute layout").
					WithContext("layout", uc.Layout).
					OnChange().
					Build()
			}
			content = buf.Bytes()
		}

		meta := maps.Clone(page.Meta)
		if meta == nil {
			meta = make(map[string]any)
		}
		if _, ok := meta["title"]; !ok && page.Title != "" {
			meta["title"] = page.Title
		}
		return &engine.Result{Content: content, Metadata: meta}, nil
	}
}

func (b *Builder) wantsMarkdown(uc config.UnitConfig, name string) bool {
	if uc.Markdown != nil {
		return *uc.Markdown
	}
	return markdown.IsMarkdown(name)
}

// layout returns the parsed layout at name. Parsed layouts are cached by
// content, so edits between builds of a long-lived process are picked up.
func (b *Builder) layout(bc *engine.Context, name string) (*template.Template, error) {
	data, err := bc.ReadFile(name)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(data)
	key := name + "\x00" + hex.EncodeToString(sum[:])
	if tmpl, ok := b.layouts.Get(key); ok {
		return tmpl, nil
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(string(data))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse layout").
			WithContext("layout", name).
			UserAction().
			Build()
	}
	b.layouts.Add(key, tmpl)
	b.logger.Debug("Parsed layout", logfields.Path(name))
	return tmpl, nil
}

// draft reports whether front matter marks the document as a draft.
func draft(fm map[string]any) bool {
	v, ok := fm["draft"].(string)
	return ok && (v == "true" || v == "yes")
}

func stages(cfgs []config.StageConfig) engine.PipeFunc {
	if len(cfgs) == 0 {
		return nil
	}
	return func(ctx context.Context, bc *engine.Context, src *pipe.Source) (*pipe.Source, error) {
		list := make([]pipe.Stage, 0, len(cfgs))
		for _, st := range cfgs {
			switch {
			case st.Concat != "":
				list = append(list, pipe.Concat(st.Concat))
			case len(st.Run) > 0:
				list = append(list, bc.Command(st.Name, st.Run...))
			case st.Into != "":
				list = append(list, pipe.Into(st.Into))
			}
		}
		return src.Chain(ctx, list...)
	}
}
