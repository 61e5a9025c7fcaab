package document

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// decodeFrontMatter parses a YAML mapping keeping every scalar as text:
// "10" and "true" stay strings so the caller decides on any conversion.
// Sequences become []any, mappings map[string]any and nulls nil.
func decodeFrontMatter(raw []byte) (map[string]any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return map[string]any{}, nil
	}
	node := root.Content[0]
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return map[string]any{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	d := &nodeDecoder{budget: max(minNodeBudget, len(raw)), active: map[*yaml.Node]bool{}}
	v, err := d.value(node)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// minNodeBudget bounds alias expansion for small documents; larger ones
// may expand one value per input byte.
const minNodeBudget = 10_000

// nodeDecoder walks a node tree following aliases. active holds the
// aliases on the current descent path so a self-containing anchor is an
// error, and budget caps the total values produced.
type nodeDecoder struct {
	budget int
	active map[*yaml.Node]bool
}

func (d *nodeDecoder) value(n *yaml.Node) (any, error) {
	d.budget--
	if d.budget < 0 {
		return nil, fmt.Errorf("line %d: front matter expands to too many values", n.Line)
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return n.Value, nil
	case yaml.AliasNode:
		if n.Alias == nil || d.active[n] {
			return nil, fmt.Errorf("line %d: alias %q refers to itself", n.Line, n.Value)
		}
		d.active[n] = true
		defer delete(d.active, n)
		return d.value(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := d.value(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			if _, dup := out[k.Value]; dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
			}
			v, err := d.value(vn)
			if err != nil {
				return nil, err
			}
			out[k.Value] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
}
