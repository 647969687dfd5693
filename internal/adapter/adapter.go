// Package adapter defines the capability contract a bookmark backend
// must satisfy to take part in a sync pass. The local bookmark store
// satisfies the same contract over local ids, so the engine treats both
// sides uniformly. Optional capabilities are separate interfaces
// discovered by type assertion.
package adapter

import (
	"context"

	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

// Adapter is the core contract. Ids live in the backend's own namespace
// and are never compared against the other side's ids directly.
type Adapter interface {
	// GetBookmarksTree returns a snapshot of the full tree, rooted at the
	// backend-defined root.
	GetBookmarksTree(ctx context.Context) (*tree.Folder, error)

	CreateFolder(ctx context.Context, parentID, title string) (string, error)
	UpdateFolder(ctx context.Context, id, title string) error
	MoveFolder(ctx context.Context, id, newParentID string) error
	RemoveFolder(ctx context.Context, id string) error

	CreateBookmark(ctx context.Context, b *tree.Bookmark) (string, error)
	// UpdateBookmark applies title, url and parent from b to the stored
	// bookmark with b.ID. A changed parent is a move.
	UpdateBookmark(ctx context.Context, b *tree.Bookmark) error
	RemoveBookmark(ctx context.Context, id string) error
}

// Batcher brackets a batch of remote mutations. The engine invokes the
// pair once per pass, not per action, and OnSyncComplete runs on every
// exit path including failure.
type Batcher interface {
	OnSyncStart(ctx context.Context) error
	OnSyncComplete(ctx context.Context) error
}

// Orderer declares ordering support. When both sides implement it, the
// engine reproduces child order across sides with explicit order writes;
// otherwise children compare unordered.
type Orderer interface {
	SetChildOrder(ctx context.Context, folderID string, order []string) error
}

// URLAcceptor lets a backend refuse URLs it cannot store. Nodes failing
// the predicate are excluded from reconciliation entirely: left alone
// locally, never created remotely, never mapped.
type URLAcceptor interface {
	AcceptsURL(url string) bool
}

// SupportsOrdering reports whether a satisfies Orderer.
func SupportsOrdering(a Adapter) bool {
	_, ok := a.(Orderer)
	return ok
}
