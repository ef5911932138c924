package profile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// RootID is the reserved id of the single root node every tree carries.
const RootID = "root"

// Kind classifies a mapping node.
type Kind string

const (
	// KindNode is a structural element that groups children.
	KindNode Kind = "node"
	// KindLeaf binds a single scalar file field to a source column.
	KindLeaf Kind = "leaf"
	// KindAttribute renders as an XML attribute (or a plain column in flat
	// formats) on its owning node.
	KindAttribute Kind = "attribute"
	// KindIteration marks a repeating group produced by a data adapter.
	KindIteration Kind = "iteration"
)

var (
	// ErrNotFound is returned when a node id does not exist in the tree.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidParent is returned when the target parent id does not exist.
	ErrInvalidParent = errors.New("invalid parent node")
	// ErrCyclicMove is returned when a move would place a node under its
	// own subtree.
	ErrCyclicMove = errors.New("cannot move node into its own subtree")
)

// Node is one position in the mapping tree.
//
// Children and attributes are owned ordered lists; OrderIndex orders
// siblings within each list. AdapterName and ParentKey are only meaningful
// for KindIteration nodes.
type Node struct {
	ID          string
	Name        string
	Kind        Kind
	OrderIndex  int
	SourceField string
	AdapterName string
	ParentKey   string

	parent     *Node
	children   []*Node
	attributes []*Node
}

// Children returns the child nodes in ascending OrderIndex.
func (n *Node) Children() []*Node {
	return sortedByIndex(n.children)
}

// Attributes returns the attribute nodes in ascending OrderIndex.
func (n *Node) Attributes() []*Node {
	return sortedByIndex(n.attributes)
}

// Parent returns the owning node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

func sortedByIndex(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	copy(out, nodes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

// Tree is the mapping tree of a profile.
//
// Nodes are held in an id-keyed index alongside the parent/child edges, so
// lookup is O(1) and cycle prevention on Move is a parent-chain walk
// instead of a recursive search.
type Tree struct {
	root  *Node
	index map[string]*Node
}

// NewTree creates a tree holding only the reserved root node.
func NewTree() *Tree {
	root := &Node{ID: RootID, Name: "Root", Kind: KindNode}
	return &Tree{
		root:  root,
		index: map[string]*Node{RootID: root},
	}
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the number of nodes in the tree, root included.
func (t *Tree) Len() int { return len(t.index) }

// FindByID returns the node with the given id.
func (t *Tree) FindByID(id string) (*Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

// Append adds a node under the parent with the given id. Attribute nodes
// join the parent's attribute list, every other kind joins the children.
// A fresh id is assigned when the node carries none.
func (t *Tree) Append(parentID string, n *Node) (*Node, error) {
	parent, ok := t.index[parentID]
	if !ok {
		return nil, fmt.Errorf("append %q: %w", parentID, ErrInvalidParent)
	}
	if parent.Kind == KindLeaf {
		return nil, fmt.Errorf("append to leaf %q: %w", parentID, ErrInvalidParent)
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if _, exists := t.index[n.ID]; exists {
		return nil, fmt.Errorf("append: duplicate node id %q", n.ID)
	}
	if n.Kind == KindIteration && n.AdapterName == "" {
		return nil, fmt.Errorf("append %q: iteration node requires an adapter", n.ID)
	}

	n.parent = parent
	if n.Kind == KindAttribute {
		parent.attributes = append(parent.attributes, n)
	} else {
		parent.children = append(parent.children, n)
	}
	t.index[n.ID] = n
	return n, nil
}

// Move detaches the node (with its whole subtree) and re-appends it under
// the new parent, keeping order index and kind-specific fields intact.
func (t *Tree) Move(nodeID, newParentID string) error {
	n, ok := t.index[nodeID]
	if !ok {
		return fmt.Errorf("move %q: %w", nodeID, ErrNotFound)
	}
	if n == t.root {
		return fmt.Errorf("move %q: root cannot be moved", nodeID)
	}
	parent, ok := t.index[newParentID]
	if !ok {
		return fmt.Errorf("move %q to %q: %w", nodeID, newParentID, ErrInvalidParent)
	}
	for p := parent; p != nil; p = p.parent {
		if p == n {
			return fmt.Errorf("move %q to %q: %w", nodeID, newParentID, ErrCyclicMove)
		}
	}

	t.detach(n)
	n.parent = parent
	if n.Kind == KindAttribute {
		parent.attributes = append(parent.attributes, n)
	} else {
		parent.children = append(parent.children, n)
	}
	return nil
}

// NodeUpdate carries the editable fields of a node. SourceField is cleared
// when empty; AdapterName and ParentKey apply to iteration nodes only, and
// an empty ParentKey clears the stored value.
type NodeUpdate struct {
	Name        string
	OrderIndex  int
	SourceField string
	AdapterName string
	ParentKey   string
}

// Update merges the given fields into the node.
func (t *Tree) Update(nodeID string, upd NodeUpdate) error {
	n, ok := t.index[nodeID]
	if !ok {
		return fmt.Errorf("update %q: %w", nodeID, ErrNotFound)
	}

	n.Name = upd.Name
	n.OrderIndex = upd.OrderIndex
	n.SourceField = upd.SourceField

	if n.Kind == KindIteration {
		if upd.AdapterName == "" {
			return fmt.Errorf("update %q: iteration node requires an adapter", nodeID)
		}
		n.AdapterName = upd.AdapterName
		n.ParentKey = upd.ParentKey
	}
	return nil
}

// Delete removes the node and all of its descendants. It reports whether
// anything was removed; the root cannot be deleted.
func (t *Tree) Delete(nodeID string) bool {
	n, ok := t.index[nodeID]
	if !ok || n == t.root {
		return false
	}
	t.detach(n)
	t.dropSubtree(n)
	return true
}

func (t *Tree) detach(n *Node) {
	p := n.parent
	if p == nil {
		return
	}
	p.children = removeNode(p.children, n)
	p.attributes = removeNode(p.attributes, n)
	n.parent = nil
}

func removeNode(nodes []*Node, target *Node) []*Node {
	for i, c := range nodes {
		if c == target {
			return append(nodes[:i:i], nodes[i+1:]...)
		}
	}
	return nodes
}

func (t *Tree) dropSubtree(n *Node) {
	delete(t.index, n.ID)
	for _, c := range n.children {
		t.dropSubtree(c)
	}
	for _, a := range n.attributes {
		t.dropSubtree(a)
	}
}

// Walk visits the tree in deterministic pre-order: each node, then its
// children, then its attributes, each list in ascending OrderIndex. The
// visit stops when fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	walk(t.root, fn)
}

func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children() {
		if !walk(c, fn) {
			return false
		}
	}
	for _, a := range n.Attributes() {
		if !walk(a, fn) {
			return false
		}
	}
	return true
}

// Leaves returns the leaf and attribute nodes in Walk order. Their names
// form the column universe of flat file formats.
func (t *Tree) Leaves() []*Node {
	var leaves []*Node
	t.Walk(func(n *Node) bool {
		if n.Kind == KindLeaf || n.Kind == KindAttribute {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

// Iterations returns the iteration nodes in Walk order. The first entry is
// the primary repeating group of the profile.
func (t *Tree) Iterations() []*Node {
	var its []*Node
	t.Walk(func(n *Node) bool {
		if n.Kind == KindIteration {
			its = append(its, n)
		}
		return true
	})
	return its
}

// Depth returns the number of edges between the node and the root.
func (t *Tree) Depth(n *Node) int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}
