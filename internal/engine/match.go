package engine

import (
	"fmt"

	bserrors "github.com/alexjbarnes/bookmark-sync/internal/errors"
	"github.com/alexjbarnes/bookmark-sync/internal/mapping"
	"github.com/alexjbarnes/bookmark-sync/internal/tree"
	"github.com/alexjbarnes/bookmark-sync/internal/urlnorm"
)

// matchTrees pairs nodes across the two current trees that have no
// mapping yet, by content equality scoped to corresponding folders:
// title equality for folders, title plus canonical-URL equality for
// bookmarks. An existing mapping always takes priority; content only
// merges identity at first contact. Matching stages mapping entries and
// emits no create or update actions, so content already present on both
// sides is never duplicated.
func (e *Engine) matchTrees(localRoot, remoteRoot *tree.Folder, remoteIdx map[string]tree.Node, stats *Stats) error {
	return e.matchFolder(localRoot, remoteRoot, remoteIdx, stats)
}

func (e *Engine) matchFolder(localF, remoteF *tree.Folder, remoteIdx map[string]tree.Node, stats *Stats) error {
	// Remote children of this folder already claimed by a mapping or by
	// an earlier content match.
	claimed := make(map[string]struct{})

	for _, rc := range remoteF.Children {
		if _, ok := e.store.ResolveRemote(e.accountID, tree.ID(rc)); ok {
			claimed[tree.ID(rc)] = struct{}{}
		}
	}

	for _, lc := range localF.Children {
		localID := tree.ID(lc)

		if remoteID, ok := e.store.ResolveLocal(e.accountID, localID); ok {
			// Already mapped. Descend into the corresponding folder pair,
			// wherever the remote copy currently sits, so deeper unmapped
			// content still gets matched.
			lf, isFolder := lc.(*tree.Folder)
			if !isFolder {
				continue
			}

			if rf, ok := remoteIdx[remoteID].(*tree.Folder); ok {
				if err := e.matchFolder(lf, rf, remoteIdx, stats); err != nil {
					return err
				}
			}

			continue
		}

		rc := findContentMatch(lc, remoteF.Children, claimed)
		if rc == nil {
			continue
		}

		remoteID := tree.ID(rc)
		if _, taken := e.store.ResolveRemote(e.accountID, remoteID); taken {
			return fmt.Errorf("%w: remote node %s already paired\n%s",
				bserrors.ErrMatchingConflict, remoteID, tree.DiffText(localF, remoteF))
		}

		claimed[remoteID] = struct{}{}

		entry := mapping.Entry{
			LocalID:       localID,
			RemoteID:      remoteID,
			Title:         tree.Title(lc),
			ParentLocalID: localF.ID,
			Folder:        tree.IsFolder(lc),
		}
		if bm, ok := lc.(*tree.Bookmark); ok {
			entry.URL = bm.URL
		}

		e.store.Put(e.accountID, entry)
		stats.Matched++

		if lf, ok := lc.(*tree.Folder); ok {
			rf, _ := rc.(*tree.Folder)
			if err := e.matchFolder(lf, rf, remoteIdx, stats); err != nil {
				return err
			}
		}
	}

	return nil
}

// findContentMatch returns the first unclaimed sibling of the remote
// folder that is content-equal to the local node, or nil. Two bookmarks
// with identical content in different folders never match each other.
func findContentMatch(local tree.Node, remoteChildren []tree.Node, claimed map[string]struct{}) tree.Node {
	for _, rc := range remoteChildren {
		if _, taken := claimed[tree.ID(rc)]; taken {
			continue
		}

		switch lv := local.(type) {
		case *tree.Bookmark:
			rv, ok := rc.(*tree.Bookmark)
			if ok && lv.Title == rv.Title && urlnorm.Equivalent(lv.URL, rv.URL) {
				return rc
			}
		case *tree.Folder:
			rv, ok := rc.(*tree.Folder)
			if ok && lv.Title == rv.Title {
				return rc
			}
		}
	}

	return nil
}
