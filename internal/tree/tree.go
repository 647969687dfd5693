// Package tree holds the value types for the bookmark tree: a closed
// sum over folders and bookmarks. Nodes are never mutated in place by
// the sync engine; every structural change is expressed as a new tree
// or as a discrete action against a store.
package tree

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Node is either a *Bookmark or a *Folder. The unexported marker keeps
// the sum closed so diff and apply code can type-switch exhaustively.
type Node interface {
	node()

	// Clone returns a deep copy.
	Clone() Node
}

// Bookmark is a leaf node.
type Bookmark struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// Folder is an interior node. Children order is semantically significant
// only when the owning store declares ordering support.
type Folder struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Title    string `json:"title"`
	Children []Node `json:"children"`
}

func (*Bookmark) node() {}
func (*Folder) node()   {}

// Clone returns a deep copy of the bookmark.
func (b *Bookmark) Clone() Node {
	c := *b
	return &c
}

// Clone returns a deep copy of the folder and its entire subtree.
func (f *Folder) Clone() Node {
	c := &Folder{
		ID:       f.ID,
		ParentID: f.ParentID,
		Title:    f.Title,
	}

	if f.Children != nil {
		c.Children = make([]Node, len(f.Children))
		for i, child := range f.Children {
			c.Children[i] = child.Clone()
		}
	}

	return c
}

// CloneFolder is Clone with the concrete type preserved.
func (f *Folder) CloneFolder() *Folder {
	cloned, _ := f.Clone().(*Folder)
	return cloned
}

// ID returns the node's id in its owning store's namespace.
func ID(n Node) string {
	switch v := n.(type) {
	case *Bookmark:
		return v.ID
	case *Folder:
		return v.ID
	}

	return ""
}

// ParentID returns the id of the node's parent folder.
func ParentID(n Node) string {
	switch v := n.(type) {
	case *Bookmark:
		return v.ParentID
	case *Folder:
		return v.ParentID
	}

	return ""
}

// Title returns the node's display title.
func Title(n Node) string {
	switch v := n.(type) {
	case *Bookmark:
		return v.Title
	case *Folder:
		return v.Title
	}

	return ""
}

// IsFolder reports whether the node is a folder.
func IsFolder(n Node) bool {
	_, ok := n.(*Folder)
	return ok
}

// Find returns the node with the given id in the subtree rooted at f,
// including f itself, or nil.
func (f *Folder) Find(id string) Node {
	if f.ID == id {
		return f
	}

	for _, child := range f.Children {
		switch v := child.(type) {
		case *Bookmark:
			if v.ID == id {
				return v
			}
		case *Folder:
			if found := v.Find(id); found != nil {
				return found
			}
		}
	}

	return nil
}

// FindFolder returns the folder with the given id, or nil if the id is
// absent or names a bookmark.
func (f *Folder) FindFolder(id string) *Folder {
	found, _ := f.Find(id).(*Folder)
	return found
}

// Walk visits every node in the subtree rooted at f, including f,
// parents before children. Returning false from fn stops the walk.
func (f *Folder) Walk(fn func(Node) bool) {
	if !fn(f) {
		return
	}

	for _, child := range f.Children {
		switch v := child.(type) {
		case *Bookmark:
			if !fn(v) {
				return
			}
		case *Folder:
			v.Walk(fn)
		}
	}
}

// ByID returns an index of every node in the subtree, keyed by id.
func (f *Folder) ByID() map[string]Node {
	index := make(map[string]Node)
	f.Walk(func(n Node) bool {
		index[ID(n)] = n
		return true
	})

	return index
}

// Count returns the number of nodes in the subtree, excluding f itself.
func (f *Folder) Count() int {
	count := -1
	f.Walk(func(Node) bool {
		count++
		return true
	})

	return count
}

// Equal reports structural equality: title and url for bookmarks, title
// and child equality for folders. With ordered false, children are
// compared as title-sorted sets; ids are never compared.
func Equal(a, b Node, ordered bool) bool {
	switch av := a.(type) {
	case *Bookmark:
		bv, ok := b.(*Bookmark)
		if !ok {
			return false
		}

		return av.Title == bv.Title && av.URL == bv.URL

	case *Folder:
		bv, ok := b.(*Folder)
		if !ok {
			return false
		}

		if av.Title != bv.Title || len(av.Children) != len(bv.Children) {
			return false
		}

		ac, bc := av.Children, bv.Children
		if !ordered {
			ac = sortedByTitle(ac)
			bc = sortedByTitle(bc)
		}

		for i := range ac {
			if !Equal(ac[i], bc[i], ordered) {
				return false
			}
		}

		return true
	}

	return false
}

// sortedByTitle returns a copy of children sorted by title. Sorting is
// for comparison only, never for storage.
func sortedByTitle(children []Node) []Node {
	sorted := make([]Node, len(children))
	copy(sorted, children)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Title(sorted[i]) < Title(sorted[j])
	})

	return sorted
}

// Inspect renders the subtree as an indented listing for diagnostics.
func Inspect(n Node) string {
	var sb strings.Builder
	inspect(&sb, n, 0)

	return sb.String()
}

func inspect(sb *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)

	switch v := n.(type) {
	case *Bookmark:
		fmt.Fprintf(sb, "%s- %s (%s)\n", indent, v.Title, v.URL)
	case *Folder:
		fmt.Fprintf(sb, "%s+ %s/\n", indent, v.Title)

		for _, child := range v.Children {
			inspect(sb, child, depth+1)
		}
	}
}

// MarshalJSON tags the bookmark with its kind so mixed child slices
// round-trip unambiguously in diagnostics output.
func (b *Bookmark) MarshalJSON() ([]byte, error) {
	type bookmark Bookmark

	return json.Marshal(struct {
		Kind string `json:"kind"`
		*bookmark
	}{Kind: "bookmark", bookmark: (*bookmark)(b)})
}

// MarshalJSON tags the folder with its kind.
func (f *Folder) MarshalJSON() ([]byte, error) {
	type folder Folder

	return json.Marshal(struct {
		Kind string `json:"kind"`
		*folder
	}{Kind: "folder", folder: (*folder)(f)})
}
