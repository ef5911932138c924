package profile

import (
	"encoding/json"
	"fmt"
)

// treeNode is the persisted wire shape of one mapping node. The
// shopwareField name is kept for compatibility with profile blobs written
// by the original shop plugin.
type treeNode struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        Kind       `json:"type"`
	Index       int        `json:"index"`
	AdapterName string     `json:"adapter,omitempty"`
	ParentKey   string     `json:"parentKey,omitempty"`
	SourceField string     `json:"shopwareField,omitempty"`
	Children    []treeNode `json:"children,omitempty"`
	Attributes  []treeNode `json:"attributes,omitempty"`
}

// MarshalJSON serializes the tree as a single nested document rooted at the
// reserved root node.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeNode(t.root))
}

func encodeNode(n *Node) treeNode {
	out := treeNode{
		ID:          n.ID,
		Name:        n.Name,
		Kind:        n.Kind,
		Index:       n.OrderIndex,
		AdapterName: n.AdapterName,
		ParentKey:   n.ParentKey,
		SourceField: n.SourceField,
	}
	for _, c := range n.Children() {
		out.Children = append(out.Children, encodeNode(c))
	}
	for _, a := range n.Attributes() {
		out.Attributes = append(out.Attributes, encodeNode(a))
	}
	return out
}

// ParseTree rehydrates a tree from its persisted JSON blob.
func ParseTree(data []byte) (*Tree, error) {
	var root treeNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse profile tree: %w", err)
	}
	if root.ID != RootID {
		return nil, fmt.Errorf("parse profile tree: root id is %q, want %q", root.ID, RootID)
	}

	t := NewTree()
	t.root.Name = root.Name
	if root.Kind != "" {
		t.root.Kind = root.Kind
	}
	if err := appendParsed(t, RootID, root.Children, false); err != nil {
		return nil, err
	}
	if err := appendParsed(t, RootID, root.Attributes, true); err != nil {
		return nil, err
	}
	return t, nil
}

func appendParsed(t *Tree, parentID string, nodes []treeNode, asAttribute bool) error {
	for _, tn := range nodes {
		kind := tn.Kind
		if asAttribute {
			kind = KindAttribute
		}
		if kind == "" {
			kind = KindNode
		}
		n := &Node{
			ID:          tn.ID,
			Name:        tn.Name,
			Kind:        kind,
			OrderIndex:  tn.Index,
			SourceField: tn.SourceField,
			AdapterName: tn.AdapterName,
			ParentKey:   tn.ParentKey,
		}
		if _, err := t.Append(parentID, n); err != nil {
			return fmt.Errorf("parse profile tree: %w", err)
		}
		if err := appendParsed(t, n.ID, tn.Children, false); err != nil {
			return err
		}
		if err := appendParsed(t, n.ID, tn.Attributes, true); err != nil {
			return err
		}
	}
	return nil
}

// Encode returns the persisted blob for the tree.
func (t *Tree) Encode() ([]byte, error) {
	data, err := t.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode profile tree: %w", err)
	}
	return data, nil
}
