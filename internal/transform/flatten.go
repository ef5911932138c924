package transform

import (
	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
)

// FlattenTransformer maps flat storage records onto the flat file column
// universe: the leaf and attribute names of the profile tree in pre-order.
type FlattenTransformer struct {
	leaves []*profile.Node
}

// NewFlattenTransformer builds the stage for a profile tree.
func NewFlattenTransformer(tree *profile.Tree) *FlattenTransformer {
	return &FlattenTransformer{leaves: tree.Leaves()}
}

// Name identifies the stage.
func (t *FlattenTransformer) Name() string { return "flatten" }

// ComposeHeader returns the file column names in tree pre-order.
func (t *FlattenTransformer) ComposeHeader() []string {
	header := make([]string, 0, len(t.leaves))
	for _, l := range t.leaves {
		header = append(header, l.Name)
	}
	return header
}

// TransformForward renames storage fields to file column names.
func (t *FlattenTransformer) TransformForward(batch []adapter.Record) ([]adapter.Record, error) {
	out := make([]adapter.Record, 0, len(batch))
	for _, rec := range batch {
		row := make(adapter.Record, len(t.leaves))
		for _, l := range t.leaves {
			if v, ok := rec[fieldOf(l)]; ok {
				row[l.Name] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// TransformBackward renames file columns back to storage fields.
func (t *FlattenTransformer) TransformBackward(batch []adapter.Record) ([]adapter.Record, error) {
	out := make([]adapter.Record, 0, len(batch))
	for _, rec := range batch {
		row := make(adapter.Record, len(t.leaves))
		for _, l := range t.leaves {
			if v, ok := rec[l.Name]; ok {
				row[fieldOf(l)] = v
			}
		}
		out = append(out, row)
	}
	return out, nil
}
