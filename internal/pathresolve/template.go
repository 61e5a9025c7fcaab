package pathresolve

import (
	"errors"
	"fmt"
	"path"
	"strings"

	ferrors "git.home.luguber.info/inful/sitepress/internal/foundation/errors"
)

// ErrUnknownField is the cause when a target template names a field the
// current item does not provide.
var ErrUnknownField = errors.New("unknown template field")

// metaPrefix selects a front matter key in a template field name.
const metaPrefix = "meta."

// Fields is the substitution context of one fan-out item.
type Fields map[string]any

// FieldsFor describes a matched source file. rel is slash-separated and
// relative to the source root; meta is the file's front matter, possibly nil.
func FieldsFor(rel string, meta map[string]any) Fields {
	dir := path.Dir(rel)
	if dir == "." {
		dir = ""
	}
	name := path.Base(rel)
	ext := path.Ext(name)
	f := Fields{
		"path": rel,
		"dir":  dir,
		"name": name,
		"stem": strings.TrimSuffix(name, ext),
		"ext":  ext,
	}
	if meta != nil {
		f["meta"] = meta
	}
	return f
}

// Lookup returns the value of a field. Names starting with "meta." are
// resolved against the front matter, following nested mappings.
func (f Fields) Lookup(name string) (any, bool) {
	if !strings.HasPrefix(name, metaPrefix) {
		v, ok := f[name]
		return v, ok
	}
	cur, ok := f["meta"]
	if !ok {
		return nil, false
	}
	for _, key := range strings.Split(strings.TrimPrefix(name, metaPrefix), ".") {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// ResolveTarget substitutes {field} references in tmpl. "{{" and "}}" produce
// literal braces. unit and item are only used to annotate errors.
func ResolveTarget(tmpl string, fields Fields, unit, item string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", templateError("unterminated field in target template", tmpl, unit, item, nil)
			}
			name := strings.TrimSpace(tmpl[i+1 : i+1+end])
			v, ok := fields.Lookup(name)
			if !ok {
				return "", templateError(fmt.Sprintf("unknown field %q in target template", name), tmpl, unit, item, ErrUnknownField)
			}
			s, err := fieldString(v)
			if err != nil {
				return "", templateError(fmt.Sprintf("field %q %v", name, err), tmpl, unit, item, ErrUnknownField)
			}
			b.WriteString(s)
			i += end + 1
		case c == '}':
			return "", templateError("unbalanced '}' in target template", tmpl, unit, item, nil)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func fieldString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", errors.New("has no value")
	case string:
		return t, nil
	case map[string]any, []any:
		return "", errors.New("is not a scalar")
	default:
		return fmt.Sprint(t), nil
	}
}

func templateError(msg, tmpl, unit, item string, cause error) error {
	b := ferrors.ConfigError(msg).
		WithContext("template", tmpl).
		WithContext("task", unit)
	if item != "" {
		b = b.WithContext("item", item)
	}
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b.Build()
}
