package mapping

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

const account = "acc1"

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := LoadAt(filepath.Join(t.TempDir(), "mappings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.InitAccount(account))

	return s
}

func TestStagedChangesInvisibleUntilCommit(t *testing.T) {
	s := newTestStore(t)

	s.Put(account, Entry{LocalID: "l1", RemoteID: "r1", Title: "one"})

	// Resolution sees the stage, the committed entry set does not.
	remoteID, ok := s.ResolveLocal(account, "l1")
	require.True(t, ok)
	assert.Equal(t, "r1", remoteID)

	localID, ok := s.ResolveRemote(account, "r1")
	require.True(t, ok)
	assert.Equal(t, "l1", localID)

	entries, err := s.Entries(account)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Commit(account))

	entries, err = s.Entries(account)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries["l1"].RemoteID)
}

func TestRollbackDiscardsStage(t *testing.T) {
	s := newTestStore(t)

	s.Put(account, Entry{LocalID: "l1", RemoteID: "r1"})
	s.Rollback(account)

	_, ok := s.ResolveLocal(account, "l1")
	assert.False(t, ok)

	require.NoError(t, s.Commit(account))

	entries, err := s.Entries(account)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoveByEitherKey(t *testing.T) {
	s := newTestStore(t)

	s.Put(account, Entry{LocalID: "l1", RemoteID: "r1"})
	s.Put(account, Entry{LocalID: "l2", RemoteID: "r2"})
	require.NoError(t, s.Commit(account))

	s.Remove(account, "l1", "")
	s.Remove(account, "", "r2")

	// Staged removals hide committed pairs in both directions.
	_, ok := s.ResolveLocal(account, "l1")
	assert.False(t, ok)
	_, ok = s.ResolveRemote(account, "r2")
	assert.False(t, ok)

	require.NoError(t, s.Commit(account))

	entries, err := s.Entries(account)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, ok = s.ResolveRemote(account, "r1")
	assert.False(t, ok, "reverse key must go with the entry")
}

func TestCommitReplacesRemoteID(t *testing.T) {
	s := newTestStore(t)

	s.Put(account, Entry{LocalID: "l1", RemoteID: "r1"})
	require.NoError(t, s.Commit(account))

	// Same local node recreated remotely under a fresh id.
	s.Put(account, Entry{LocalID: "l1", RemoteID: "r9"})
	require.NoError(t, s.Commit(account))

	localID, ok := s.ResolveRemote(account, "r9")
	require.True(t, ok)
	assert.Equal(t, "l1", localID)

	_, ok = s.ResolveRemote(account, "r1")
	assert.False(t, ok, "stale reverse key must be dropped")
}

func TestAccountsArePartitioned(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InitAccount("acc2"))

	s.Put(account, Entry{LocalID: "l1", RemoteID: "r1"})
	require.NoError(t, s.Commit(account))

	_, ok := s.ResolveLocal("acc2", "l1")
	assert.False(t, ok)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.db")

	s, err := LoadAt(path)
	require.NoError(t, err)
	require.NoError(t, s.InitAccount(account))

	s.Put(account, Entry{LocalID: "l1", RemoteID: "r1", Title: "one"})
	require.NoError(t, s.Commit(account))
	require.NoError(t, s.Close())

	s, err = LoadAt(path)
	require.NoError(t, err)
	defer s.Close()

	remoteID, ok := s.ResolveLocal(account, "l1")
	require.True(t, ok)
	assert.Equal(t, "r1", remoteID)
}

func TestMirror(t *testing.T) {
	s := newTestStore(t)

	s.Put(account, Entry{LocalID: "root", RemoteID: "rr", Folder: true, ChildOrder: []string{"f1", "b1"}})
	s.Put(account, Entry{LocalID: "f1", RemoteID: "rf1", Title: "folder", ParentLocalID: "root", Folder: true})
	s.Put(account, Entry{LocalID: "b1", RemoteID: "rb1", Title: "mark", URL: "http://ur.l/", ParentLocalID: "root"})
	s.Put(account, Entry{LocalID: "b2", RemoteID: "rb2", Title: "inner", URL: "http://ur.l/2", ParentLocalID: "f1"})
	require.NoError(t, s.Commit(account))

	mirror, err := s.Mirror(account)
	require.NoError(t, err)

	require.Len(t, mirror.Children, 2)
	assert.Equal(t, "f1", tree.ID(mirror.Children[0]), "cached child order is honored")
	assert.Equal(t, "b1", tree.ID(mirror.Children[1]))

	inner := mirror.FindFolder("f1")
	require.NotNil(t, inner)
	require.Len(t, inner.Children, 1)
	assert.Equal(t, "http://ur.l/2", inner.Children[0].(*tree.Bookmark).URL)
}

func TestMirrorEmptyBeforeFirstSync(t *testing.T) {
	s := newTestStore(t)

	mirror, err := s.Mirror(account)
	require.NoError(t, err)
	assert.Empty(t, mirror.Children)
}
