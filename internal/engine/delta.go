package engine

import (
	"github.com/alexjbarnes/bookmark-sync/internal/mapping"
	"github.com/alexjbarnes/bookmark-sync/internal/tree"
	"github.com/alexjbarnes/bookmark-sync/internal/urlnorm"
)

// Change classifies how one side of a mapped pair diverged from the
// cached mirror. Updated and Moved may be set together; a zero Change
// means unchanged.
type Change struct {
	Updated bool // title or url differs from the last-synced snapshot
	Moved   bool // parent differs from the last-synced snapshot
}

// Any reports whether the node changed at all.
func (c Change) Any() bool {
	return c.Updated || c.Moved
}

// localChange classifies the local node against its mapping entry.
// A nil node means the local copy was removed; the caller handles that
// before asking for a change classification.
func localChange(e mapping.Entry, n tree.Node) Change {
	var c Change

	switch v := n.(type) {
	case *tree.Bookmark:
		if v.Title != e.Title || !urlnorm.Equivalent(v.URL, e.URL) {
			c.Updated = true
		}

		if v.ParentID != e.ParentLocalID {
			c.Moved = true
		}
	case *tree.Folder:
		if v.Title != e.Title {
			c.Updated = true
		}

		if v.ParentID != e.ParentLocalID {
			c.Moved = true
		}
	}

	return c
}

// remoteChange classifies the remote node against its mapping entry.
// resolveLocal maps the entry's cached parent (a local id) into the
// remote namespace for the move comparison.
func remoteChange(e mapping.Entry, n tree.Node, resolveLocal func(string) (string, bool)) Change {
	var c Change

	cachedParentRemote, _ := resolveLocal(e.ParentLocalID)

	switch v := n.(type) {
	case *tree.Bookmark:
		if v.Title != e.Title || !urlnorm.Equivalent(v.URL, e.URL) {
			c.Updated = true
		}

		if v.ParentID != cachedParentRemote {
			c.Moved = true
		}
	case *tree.Folder:
		if v.Title != e.Title {
			c.Updated = true
		}

		if v.ParentID != cachedParentRemote {
			c.Moved = true
		}
	}

	return c
}
