package declare

import (
	"fmt"
	"html/template"
	"path"
	"slices"
	"strings"

	"git.home.luguber.info/inful/sitepress/internal/engine"
)

var funcs = template.FuncMap{
	"sortBy": sortBy,
	"rel":    rel,
}

// sortBy orders artifacts by a metadata key, then by target.
func sortBy(key string, arts []engine.Artifact) []engine.Artifact {
	out := slices.Clone(arts)
	slices.SortStableFunc(out, func(a, b engine.Artifact) int {
		if c := strings.Compare(fmt.Sprint(a.Metadata[key]), fmt.Sprint(b.Metadata[key])); c != 0 {
			return c
		}
		return strings.Compare(a.Target, b.Target)
	})
	return out
}

// rel returns the link from the page at from to the target to.
func rel(from, to string) string {
	fromDir := path.Dir(path.Clean("/" + from))
	toPath := path.Clean("/" + to)
	fromParts := split(fromDir)
	toParts := split(toPath)

	i := 0
	for i < len(fromParts) && i < len(toParts)-1 && fromParts[i] == toParts[i] {
		i++
	}
	up := strings.Repeat("../", len(fromParts)-i)
	return up + strings.Join(toParts[i:], "/")
}

func split(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
