package transform

import (
	"fmt"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
)

// AttributePrefix marks attribute values inside a nested record, so a node
// child and an attribute with the same name never collide.
const AttributePrefix = "@"

// TreeTransformer reshapes flat storage records into the nested form the
// tree codec encodes, and back. The shape follows the subtree of the
// profile's primary iteration node.
type TreeTransformer struct {
	tree      *profile.Tree
	iteration *profile.Node
}

// NewTreeTransformer builds the stage for a profile tree. The tree must
// carry at least one iteration node.
func NewTreeTransformer(tree *profile.Tree) (*TreeTransformer, error) {
	its := tree.Iterations()
	if len(its) == 0 {
		return nil, fmt.Errorf("profile tree has no iteration node")
	}
	return &TreeTransformer{tree: tree, iteration: its[0]}, nil
}

// Name identifies the stage.
func (t *TreeTransformer) Name() string { return "tree" }

// TransformForward nests each flat record per the iteration subtree.
func (t *TreeTransformer) TransformForward(batch []adapter.Record) ([]adapter.Record, error) {
	out := make([]adapter.Record, 0, len(batch))
	for _, rec := range batch {
		out = append(out, nest(t.iteration, rec))
	}
	return out, nil
}

// TransformBackward flattens each nested record back to storage field names.
func (t *TreeTransformer) TransformBackward(batch []adapter.Record) ([]adapter.Record, error) {
	out := make([]adapter.Record, 0, len(batch))
	for _, rec := range batch {
		flat := make(adapter.Record)
		flatten(t.iteration, rec, flat)
		out = append(out, flat)
	}
	return out, nil
}

func nest(node *profile.Node, flat adapter.Record) adapter.Record {
	nested := make(adapter.Record)
	for _, a := range node.Attributes() {
		if v, ok := flat[fieldOf(a)]; ok {
			nested[AttributePrefix+a.Name] = v
		}
	}
	for _, c := range node.Children() {
		switch c.Kind {
		case profile.KindLeaf:
			if v, ok := flat[fieldOf(c)]; ok {
				nested[c.Name] = v
			}
		case profile.KindNode:
			nested[c.Name] = nest(c, flat)
		case profile.KindIteration:
			// A nested repeating group: the adapter delivers child rows
			// pre-correlated under the iteration's name.
			rows, ok := flat[c.Name].([]adapter.Record)
			if !ok {
				continue
			}
			var group []adapter.Record
			for _, row := range rows {
				group = append(group, nest(c, row))
			}
			nested[c.Name] = group
		}
	}
	return nested
}

func flatten(node *profile.Node, nested adapter.Record, flat adapter.Record) {
	for _, a := range node.Attributes() {
		if v, ok := nested[AttributePrefix+a.Name]; ok {
			flat[fieldOf(a)] = v
		}
	}
	for _, c := range node.Children() {
		switch c.Kind {
		case profile.KindLeaf:
			if v, ok := nested[c.Name]; ok {
				flat[fieldOf(c)] = v
			}
		case profile.KindNode:
			if sub, ok := nested[c.Name].(adapter.Record); ok {
				flatten(c, sub, flat)
			}
		case profile.KindIteration:
			rows, ok := nested[c.Name].([]adapter.Record)
			if !ok {
				continue
			}
			var group []adapter.Record
			for _, row := range rows {
				sub := make(adapter.Record)
				flatten(c, row, sub)
				group = append(group, sub)
			}
			flat[c.Name] = group
		}
	}
}

// fieldOf returns the storage-facing name a node binds to; a node without
// an explicit binding uses its display name.
func fieldOf(n *profile.Node) string {
	if n.SourceField != "" {
		return n.SourceField
	}
	return n.Name
}
