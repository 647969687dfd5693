// Package memory implements the adapter contract against an in-memory
// tree. It backs tests (two accounts pointed at one Backend model two
// clients sharing a server) and serves as the reference implementation
// of the full capability surface: batching, ordering and a URL filter.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/alexjbarnes/bookmark-sync/internal/tree"
	"github.com/google/uuid"
)

// Backend is an in-memory bookmark store. All methods are safe for
// concurrent use.
type Backend struct {
	mu        sync.Mutex
	root      *tree.Folder
	httpOnly  bool
	failNext  error
	mutations int
	batches   int
	inBatch   bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithHTTPOnly makes the backend reject every URL whose scheme is not
// http or https, mimicking backends that cannot store other schemes.
func WithHTTPOnly() Option {
	return func(b *Backend) { b.httpOnly = true }
}

// New returns an empty backend with a root folder.
func New(opts ...Option) *Backend {
	b := &Backend{
		root: &tree.Folder{ID: uuid.NewString(), Title: "root"},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// RootID returns the backend's root folder id.
func (b *Backend) RootID() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.root.ID
}

// Mutations returns the number of mutating calls the backend has seen.
func (b *Backend) Mutations() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.mutations
}

// Batches returns how many OnSyncStart/OnSyncComplete pairs completed.
func (b *Backend) Batches() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.batches
}

// FailNext makes the next adapter call return err, once.
func (b *Backend) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failNext = err
}

func (b *Backend) takeFailure() error {
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil

		return err
	}

	return nil
}

// GetBookmarksTree returns a deep copy of the current tree.
func (b *Backend) GetBookmarksTree(_ context.Context) (*tree.Folder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return nil, err
	}

	return b.root.CloneFolder(), nil
}

// CreateFolder creates an empty folder under parentID.
func (b *Backend) CreateFolder(_ context.Context, parentID, title string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return "", err
	}

	parent := b.root.FindFolder(parentID)
	if parent == nil {
		return "", fmt.Errorf("folder %s not found", parentID)
	}

	id := uuid.NewString()
	parent.Children = append(parent.Children, &tree.Folder{
		ID:       id,
		ParentID: parentID,
		Title:    title,
	})
	b.mutations++

	return id, nil
}

// UpdateFolder renames a folder.
func (b *Backend) UpdateFolder(_ context.Context, id, title string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return err
	}

	f := b.root.FindFolder(id)
	if f == nil {
		return fmt.Errorf("folder %s not found", id)
	}

	f.Title = title
	b.mutations++

	return nil
}

// MoveFolder reparents a folder, appending it to the new parent.
func (b *Backend) MoveFolder(_ context.Context, id, newParentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return err
	}

	f := b.root.FindFolder(id)
	if f == nil {
		return fmt.Errorf("folder %s not found", id)
	}

	if f == b.root || f.FindFolder(newParentID) != nil {
		return fmt.Errorf("cannot move folder %s under %s", id, newParentID)
	}

	parent := b.root.FindFolder(newParentID)
	if parent == nil {
		return fmt.Errorf("folder %s not found", newParentID)
	}

	b.detach(id)
	f.ParentID = newParentID
	parent.Children = append(parent.Children, f)
	b.mutations++

	return nil
}

// RemoveFolder removes a folder and its entire subtree.
func (b *Backend) RemoveFolder(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return err
	}

	if b.detach(id) == nil {
		return fmt.Errorf("folder %s not found", id)
	}

	b.mutations++

	return nil
}

// CreateBookmark stores a bookmark under b.ParentID and returns its id.
func (b *Backend) CreateBookmark(_ context.Context, bm *tree.Bookmark) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return "", err
	}

	parent := b.root.FindFolder(bm.ParentID)
	if parent == nil {
		return "", fmt.Errorf("folder %s not found", bm.ParentID)
	}

	id := uuid.NewString()
	parent.Children = append(parent.Children, &tree.Bookmark{
		ID:       id,
		ParentID: bm.ParentID,
		Title:    bm.Title,
		URL:      bm.URL,
	})
	b.mutations++

	return id, nil
}

// UpdateBookmark applies title, url and parent from bm. A changed
// parent moves the bookmark, appending it to the new parent.
func (b *Backend) UpdateBookmark(_ context.Context, bm *tree.Bookmark) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return err
	}

	node := b.root.Find(bm.ID)
	stored, ok := node.(*tree.Bookmark)
	if !ok {
		return fmt.Errorf("bookmark %s not found", bm.ID)
	}

	stored.Title = bm.Title
	stored.URL = bm.URL

	if bm.ParentID != "" && bm.ParentID != stored.ParentID {
		detached := b.detach(bm.ID)
		parent := b.root.FindFolder(bm.ParentID)

		if detached == nil || parent == nil {
			return fmt.Errorf("cannot move bookmark %s to %s", bm.ID, bm.ParentID)
		}

		stored.ParentID = bm.ParentID
		parent.Children = append(parent.Children, stored)
	}

	b.mutations++

	return nil
}

// RemoveBookmark deletes a bookmark.
func (b *Backend) RemoveBookmark(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return err
	}

	if b.detach(id) == nil {
		return fmt.Errorf("bookmark %s not found", id)
	}

	b.mutations++

	return nil
}

// SetChildOrder reorders a folder's children to the given id sequence.
// Ids missing from order keep their relative position at the end.
func (b *Backend) SetChildOrder(_ context.Context, folderID string, order []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return err
	}

	f := b.root.FindFolder(folderID)
	if f == nil {
		return fmt.Errorf("folder %s not found", folderID)
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	reordered := make([]tree.Node, 0, len(f.Children))
	rest := make([]tree.Node, 0)

	for _, id := range order {
		for _, child := range f.Children {
			if tree.ID(child) == id {
				reordered = append(reordered, child)
				break
			}
		}
	}

	for _, child := range f.Children {
		if _, ok := pos[tree.ID(child)]; !ok {
			rest = append(rest, child)
		}
	}

	f.Children = append(reordered, rest...)
	b.mutations++

	return nil
}

// OnSyncStart begins a mutation batch.
func (b *Backend) OnSyncStart(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.takeFailure(); err != nil {
		return err
	}

	b.inBatch = true

	return nil
}

// OnSyncComplete ends the batch started by OnSyncStart.
func (b *Backend) OnSyncComplete(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inBatch {
		b.inBatch = false
		b.batches++
	}

	return nil
}

// AcceptsURL reports whether the backend can store the URL. Without the
// http-only option every URL is accepted.
func (b *Backend) AcceptsURL(url string) bool {
	if !b.httpOnly {
		return true
	}

	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// detach removes the node with the given id from its parent and returns
// it. The caller holds the lock.
func (b *Backend) detach(id string) tree.Node {
	var (
		parent *tree.Folder
		index  = -1
	)

	b.root.Walk(func(n tree.Node) bool {
		f, ok := n.(*tree.Folder)
		if !ok {
			return true
		}

		for i, child := range f.Children {
			if tree.ID(child) == id {
				parent, index = f, i
				return false
			}
		}

		return true
	})

	if parent == nil {
		return nil
	}

	node := parent.Children[index]
	parent.Children = append(parent.Children[:index], parent.Children[index+1:]...)

	return node
}
