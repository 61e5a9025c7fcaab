package markdown

import (
	"net/url"
	"path"
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// linkRewriter applies a destination mapping to links and images.
type linkRewriter struct {
	rewrite func(string) string
}

func (l *linkRewriter) Transform(doc *gmast.Document, _ text.Reader, _ parser.Context) {
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Link:
			node.Destination = []byte(l.rewrite(string(node.Destination)))
		case *gmast.Image:
			node.Destination = []byte(l.rewrite(string(node.Destination)))
		}
		return gmast.WalkContinue, nil
	})
}

// RewriteExt returns a link mapping that swaps the extension of relative
// links to Markdown files, keeping any query and fragment. Absolute URLs
// and rooted paths are left alone.
func RewriteExt(ext string) func(string) string {
	return func(dest string) string {
		u, err := url.Parse(dest)
		if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" || strings.HasPrefix(u.Path, "/") {
			return dest
		}
		if !IsMarkdown(u.Path) {
			return dest
		}
		u.Path = strings.TrimSuffix(u.Path, path.Ext(u.Path)) + ext
		return u.String()
	}
}
