package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "bookmarks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestRootAlwaysExists(t *testing.T) {
	s := newTestStore(t)

	root, err := s.GetBookmarksTree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RootID, root.ID)
	assert.Empty(t, root.Children)

	assert.Error(t, s.RemoveFolder(context.Background(), RootID))
}

func TestCreateAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder, err := s.CreateFolder(ctx, RootID, "foo")
	require.NoError(t, err)

	_, err = s.CreateBookmark(ctx, &tree.Bookmark{ParentID: folder, Title: "url", URL: "http://ur.l/"})
	require.NoError(t, err)

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)

	require.Len(t, root.Children, 1)
	f := root.Children[0].(*tree.Folder)
	assert.Equal(t, "foo", f.Title)
	require.Len(t, f.Children, 1)

	bm := f.Children[0].(*tree.Bookmark)
	assert.Equal(t, "url", bm.Title)
	assert.Equal(t, "http://ur.l/", bm.URL)
	assert.Equal(t, folder, bm.ParentID)
}

func TestChildrenKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"c", "a", "b"} {
		_, err := s.CreateBookmark(ctx, &tree.Bookmark{ParentID: RootID, Title: title, URL: "http://" + title + "/"})
		require.NoError(t, err)
	}

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, titles(root.Children))
}

func TestUpdateBookmarkMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder, err := s.CreateFolder(ctx, RootID, "foo")
	require.NoError(t, err)

	id, err := s.CreateBookmark(ctx, &tree.Bookmark{ParentID: RootID, Title: "url", URL: "http://ur.l/"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateBookmark(ctx, &tree.Bookmark{
		ID: id, ParentID: folder, Title: "renamed", URL: "http://new/",
	}))

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)

	f := root.FindFolder(folder)
	require.Len(t, f.Children, 1)

	bm := f.Children[0].(*tree.Bookmark)
	assert.Equal(t, "renamed", bm.Title)
	assert.Equal(t, "http://new/", bm.URL)
}

func TestMoveFolderAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateFolder(ctx, RootID, "a")
	require.NoError(t, err)
	b, err := s.CreateFolder(ctx, RootID, "b")
	require.NoError(t, err)

	_, err = s.CreateBookmark(ctx, &tree.Bookmark{ParentID: b, Title: "existing", URL: "http://e/"})
	require.NoError(t, err)

	require.NoError(t, s.MoveFolder(ctx, a, b))

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)

	bf := root.FindFolder(b)
	require.Len(t, bf.Children, 2)
	assert.Equal(t, "a", tree.Title(bf.Children[1]), "moved folder lands at the end")
}

func TestMoveFolderRejectsCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateFolder(ctx, RootID, "a")
	require.NoError(t, err)
	b, err := s.CreateFolder(ctx, a, "b")
	require.NoError(t, err)
	c, err := s.CreateFolder(ctx, b, "c")
	require.NoError(t, err)

	assert.Error(t, s.MoveFolder(ctx, a, a))
	assert.Error(t, s.MoveFolder(ctx, a, b))
	assert.Error(t, s.MoveFolder(ctx, a, c))

	// The rejected moves leave the tree intact.
	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)

	af := root.FindFolder(a)
	require.NotNil(t, af)
	assert.Equal(t, RootID, af.ParentID)
	require.NotNil(t, af.FindFolder(c))

	require.NoError(t, s.MoveFolder(ctx, c, a))
}

func TestRemoveFolderCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	folder, err := s.CreateFolder(ctx, RootID, "foo")
	require.NoError(t, err)
	inner, err := s.CreateFolder(ctx, folder, "bar")
	require.NoError(t, err)
	_, err = s.CreateBookmark(ctx, &tree.Bookmark{ParentID: inner, Title: "url", URL: "http://ur.l/"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveFolder(ctx, folder))

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)
	assert.Empty(t, root.Children)
	assert.Zero(t, root.Count())
}

func TestRemoveMissingNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.RemoveBookmark(ctx, "missing"))
	assert.Error(t, s.RemoveFolder(ctx, "missing"))
	assert.Error(t, s.UpdateFolder(ctx, "missing", "x"))
}

func TestSetChildOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string

	for _, title := range []string{"one", "two", "three"} {
		id, err := s.CreateBookmark(ctx, &tree.Bookmark{ParentID: RootID, Title: title, URL: "http://" + title + "/"})
		require.NoError(t, err)

		ids = append(ids, id)
	}

	require.NoError(t, s.SetChildOrder(ctx, RootID, []string{ids[2], ids[0], ids[1]}))

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "one", "two"}, titles(root.Children))
}

func TestSetChildOrderPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string

	for _, title := range []string{"one", "two", "three"} {
		id, err := s.CreateBookmark(ctx, &tree.Bookmark{ParentID: RootID, Title: title, URL: "http://" + title + "/"})
		require.NoError(t, err)

		ids = append(ids, id)
	}

	// Only "three" is pinned; the rest keep their relative order after it.
	require.NoError(t, s.SetChildOrder(ctx, RootID, []string{ids[2]}))

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "one", "two"}, titles(root.Children))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.CreateBookmark(ctx, &tree.Bookmark{ParentID: RootID, Title: "url", URL: "http://ur.l/"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "url", tree.Title(root.Children[0]))
}

func titles(children []tree.Node) []string {
	out := make([]string, 0, len(children))
	for _, child := range children {
		out = append(out, tree.Title(child))
	}

	return out
}
