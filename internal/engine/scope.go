package engine

import (
	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

// pruneTree returns a copy of root with out-of-scope subtrees removed:
// children rooted at an excluded id (another account's local root) and
// bookmarks whose URL the acceptability predicate refuses. Pruned nodes
// are invisible to the whole pass, so they are never created, updated,
// removed or mapped, and are re-evaluated identically next pass.
func pruneTree(root *tree.Folder, exclude map[string]struct{}, accepts func(string) bool) *tree.Folder {
	pruned := root.CloneFolder()
	pruneChildren(pruned, exclude, accepts)

	return pruned
}

func pruneChildren(f *tree.Folder, exclude map[string]struct{}, accepts func(string) bool) {
	kept := f.Children[:0]

	for _, child := range f.Children {
		switch v := child.(type) {
		case *tree.Bookmark:
			if accepts != nil && !accepts(v.URL) {
				continue
			}
		case *tree.Folder:
			if _, excluded := exclude[v.ID]; excluded {
				continue
			}

			pruneChildren(v, exclude, accepts)
		}

		kept = append(kept, child)
	}

	f.Children = kept
}
