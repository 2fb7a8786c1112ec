package tree

import (
	"encoding/json"
	"fmt"
	"slices"

	"vidrepo/internal/services"
)

// Tree is an immutable root sequence of nodes. Every mutating method returns
// a new Tree; the receiver and any Node previously read from it are left
// untouched. Only the ancestors of a changed node are copied.
type Tree struct {
	roots []Node
}

// FromRoots builds a tree over a copy of roots.
func FromRoots(roots ...Node) Tree {
	return Tree{roots: slices.Clone(roots)}
}

// Roots returns a copy of the top-level nodes.
func (t Tree) Roots() []Node {
	return slices.Clone(t.roots)
}

// Len counts every node in the tree.
func (t Tree) Len() int {
	count := 0
	t.Walk(func([]string, Node) bool {
		count++
		return true
	})
	return count
}

// Find performs a depth-first search for id. The first match wins.
func (t Tree) Find(id string) (Node, bool) {
	return find(t.roots, id)
}

func find(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
		if folder, ok := n.Body.(Folder); ok {
			if found, ok := find(folder.Children, id); ok {
				return found, true
			}
		}
	}
	return Node{}, false
}

// Parent returns the folder directly containing id. ok is false for root
// nodes and unknown ids.
func (t Tree) Parent(id string) (Node, bool) {
	var parent Node
	var found bool
	t.Walk(func(_ []string, n Node) bool {
		if folder, ok := n.Body.(Folder); ok {
			for _, child := range folder.Children {
				if child.ID == id {
					parent, found = n, true
					return false
				}
			}
		}
		return true
	})
	return parent, found
}

// Path returns the names from the root down to id, inclusive.
func (t Tree) Path(id string) ([]string, bool) {
	var out []string
	t.Walk(func(path []string, n Node) bool {
		if n.ID == id {
			out = slices.Clone(path)
			return false
		}
		return true
	})
	return out, out != nil
}

// TopLevel returns the first root node named name.
func (t Tree) TopLevel(name string) (Node, bool) {
	for _, n := range t.roots {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// ChildByName returns the first direct child of parentID named name.
func (t Tree) ChildByName(parentID, name string) (Node, bool) {
	parent, ok := t.Find(parentID)
	if !ok {
		return Node{}, false
	}
	folder, ok := parent.Body.(Folder)
	if !ok {
		return Node{}, false
	}
	for _, child := range folder.Children {
		if child.Name == name {
			return child, true
		}
	}
	return Node{}, false
}

// Walk visits nodes depth-first in order. path holds the names from the root
// to the visited node. Returning false stops the walk.
func (t Tree) Walk(fn func(path []string, n Node) bool) {
	walk(t.roots, nil, fn)
}

func walk(nodes []Node, prefix []string, fn func([]string, Node) bool) bool {
	for _, n := range nodes {
		path := append(slices.Clip(prefix), n.Name)
		if !fn(path, n) {
			return false
		}
		if folder, ok := n.Body.(Folder); ok {
			if !walk(folder.Children, path, fn) {
				return false
			}
		}
	}
	return true
}

// Validate reports duplicate ids and empty names.
func (t Tree) Validate() error {
	seen := make(map[string]struct{})
	var err error
	t.Walk(func(path []string, n Node) bool {
		if n.ID == "" {
			err = services.Wrap(services.ErrValidation, "tree", "validate", fmt.Sprintf("node at %v has no id", path), nil)
			return false
		}
		if _, dup := seen[n.ID]; dup {
			err = services.Wrap(services.ErrDuplicateID, "tree", "validate", fmt.Sprintf("id %q appears more than once", n.ID), nil)
			return false
		}
		seen[n.ID] = struct{}{}
		return true
	})
	return err
}

// InsertChild appends node to the children of parentID.
func (t Tree) InsertChild(parentID string, node Node) (Tree, error) {
	parent, ok := t.Find(parentID)
	if !ok {
		return t, services.Wrap(services.ErrNotFound, "tree", "insert", fmt.Sprintf("parent %q not found", parentID), nil)
	}
	if !parent.IsFolder() {
		return t, services.Wrap(services.ErrNotFound, "tree", "insert", fmt.Sprintf("parent %q is not a folder", parentID), nil)
	}
	if err := t.checkFresh(node); err != nil {
		return t, err
	}
	roots, _ := replace(t.roots, parentID, func(n Node) Node {
		folder := n.Body.(Folder)
		children := make([]Node, 0, len(folder.Children)+1)
		children = append(children, folder.Children...)
		n.Body = Folder{Children: append(children, node)}
		return n
	})
	return Tree{roots: roots}, nil
}

// AppendRoot adds node at the end of the root sequence.
func (t Tree) AppendRoot(node Node) (Tree, error) {
	if err := t.checkFresh(node); err != nil {
		return t, err
	}
	roots := make([]Node, 0, len(t.roots)+1)
	roots = append(roots, t.roots...)
	return Tree{roots: append(roots, node)}, nil
}

func (t Tree) checkFresh(node Node) error {
	incoming := FromRoots(node)
	if err := incoming.Validate(); err != nil {
		return err
	}
	var err error
	incoming.Walk(func(_ []string, n Node) bool {
		if _, exists := t.Find(n.ID); exists {
			err = services.Wrap(services.ErrDuplicateID, "tree", "insert", fmt.Sprintf("id %q already exists", n.ID), nil)
			return false
		}
		return true
	})
	return err
}

// Remove deletes every node with id together with its subtree. A missing id
// is a no-op reporting false. Locked nodes, or subtrees holding one, are
// refused.
func (t Tree) Remove(id string) (Tree, bool, error) {
	target, ok := t.Find(id)
	if !ok {
		return t, false, nil
	}
	locked := false
	FromRoots(target).Walk(func(_ []string, n Node) bool {
		locked = n.Locked
		return !locked
	})
	if locked {
		return t, false, services.Wrap(services.ErrLocked, "tree", "remove", fmt.Sprintf("%q is locked or contains locked nodes", target.Name), nil)
	}
	roots, removed := remove(t.roots, id)
	return Tree{roots: roots}, removed, nil
}

func remove(nodes []Node, id string) ([]Node, bool) {
	var out []Node
	changed := false
	for i, n := range nodes {
		if n.ID == id {
			if out == nil {
				out = slices.Clone(nodes[:i])
			}
			changed = true
			continue
		}
		if folder, ok := n.Body.(Folder); ok {
			if children, removed := remove(folder.Children, id); removed {
				if out == nil {
					out = slices.Clone(nodes[:i])
				}
				n.Body = Folder{Children: children}
				changed = true
			}
		}
		if out != nil {
			out = append(out, n)
		}
	}
	if !changed {
		return nodes, false
	}
	if out == nil {
		out = []Node{}
	}
	return out, true
}

// UpdateContent replaces a file's content.
func (t Tree) UpdateContent(id, content string) (Tree, error) {
	target, ok := t.Find(id)
	if !ok {
		return t, services.Wrap(services.ErrNotFound, "tree", "update content", fmt.Sprintf("node %q not found", id), nil)
	}
	if target.IsFolder() {
		return t, services.Wrap(services.ErrTypeMismatch, "tree", "update content", fmt.Sprintf("%q is a folder", target.Name), nil)
	}
	if target.Locked {
		return t, services.Wrap(services.ErrLocked, "tree", "update content", fmt.Sprintf("%q is locked", target.Name), nil)
	}
	roots, _ := replace(t.roots, id, func(n Node) Node {
		n.Body = File{Content: content}
		return n
	})
	return Tree{roots: roots}, nil
}

// Rename changes a node's display name. The id is unchanged.
func (t Tree) Rename(id, name string) (Tree, error) {
	clean, err := ValidateName(name)
	if err != nil {
		return t, err
	}
	target, ok := t.Find(id)
	if !ok {
		return t, services.Wrap(services.ErrNotFound, "tree", "rename", fmt.Sprintf("node %q not found", id), nil)
	}
	if target.Locked {
		return t, services.Wrap(services.ErrLocked, "tree", "rename", fmt.Sprintf("%q is locked", target.Name), nil)
	}
	roots, _ := replace(t.roots, id, func(n Node) Node {
		n.Name = clean
		return n
	})
	return Tree{roots: roots}, nil
}

// ToggleOpen flips the display flag. It is allowed on locked nodes.
func (t Tree) ToggleOpen(id string) (Tree, error) {
	roots, ok := replace(t.roots, id, func(n Node) Node {
		n.Open = !n.Open
		return n
	})
	if !ok {
		return t, services.Wrap(services.ErrNotFound, "tree", "toggle open", fmt.Sprintf("node %q not found", id), nil)
	}
	return Tree{roots: roots}, nil
}

// replace path-copies the first node matching id through fn.
func replace(nodes []Node, id string, fn func(Node) Node) ([]Node, bool) {
	for i, n := range nodes {
		if n.ID == id {
			out := slices.Clone(nodes)
			out[i] = fn(n)
			return out, true
		}
		if folder, ok := n.Body.(Folder); ok {
			if children, found := replace(folder.Children, id, fn); found {
				out := slices.Clone(nodes)
				n.Body = Folder{Children: children}
				out[i] = n
				return out, true
			}
		}
	}
	return nodes, false
}

// MarshalJSON encodes the root sequence.
func (t Tree) MarshalJSON() ([]byte, error) {
	roots := t.roots
	if roots == nil {
		roots = []Node{}
	}
	return json.Marshal(roots)
}

// UnmarshalJSON decodes and validates a root sequence.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var roots []Node
	if err := json.Unmarshal(data, &roots); err != nil {
		return err
	}
	decoded := Tree{roots: roots}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*t = decoded
	return nil
}
