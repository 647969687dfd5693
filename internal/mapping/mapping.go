// Package mapping persists the correspondence between local node ids and
// remote node ids, one partition per account. The full entry set for an
// account, together with the mirror tree it implies, is the third party
// to every three-way diff: the state both sides had after the last
// successful sync.
//
// Mutations are staged in memory and written in a single bbolt
// transaction on Commit, so a crash mid-pass never leaves a partially
// updated mapping. Readers always see the last committed snapshot.
package mapping

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/alexjbarnes/bookmark-sync/internal/errors"
	"github.com/alexjbarnes/bookmark-sync/internal/tree"
	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the store directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt file lock.
	storeOpenTimeout = 5 * time.Second
)

func entriesBucket(accountID string) []byte {
	return []byte("account:" + accountID + ":entries")
}

func remoteBucket(accountID string) []byte {
	return []byte("account:" + accountID + ":remote")
}

// Entry is the persisted correspondence between one local node and one
// remote node, plus the node's last-synced shape. ChildOrder carries the
// last-synced child sequence (local ids) for folders whose stores track
// explicit ordering; nil otherwise.
type Entry struct {
	LocalID       string   `json:"localId"`
	RemoteID      string   `json:"remoteId"`
	Title         string   `json:"title"`
	URL           string   `json:"url,omitempty"`
	ParentLocalID string   `json:"parentLocalId"`
	Folder        bool     `json:"folder"`
	ChildOrder    []string `json:"childOrder,omitempty"`
}

// stage accumulates uncommitted changes for one account's pass.
type stage struct {
	puts    map[string]Entry    // local id -> entry
	removes map[string]struct{} // local ids to delete
}

func newStage() *stage {
	return &stage{
		puts:    make(map[string]Entry),
		removes: make(map[string]struct{}),
	}
}

// Store wraps a bbolt database holding all accounts' mapping partitions.
type Store struct {
	db *bolt.DB

	mu     sync.Mutex
	stages map[string]*stage // account id -> staged changes
}

// Load opens the mapping database at the default location under the
// user's home directory, creating it if needed.
func Load() (*Store, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}

	return LoadAt(filepath.Join(dir, ".bookmark-sync", "mappings.db"))
}

// LoadAt opens a mapping database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening mapping db: %w", err)
	}

	return &Store{db: db, stages: make(map[string]*stage)}, nil
}

// Close closes the database. Uncommitted stages are discarded.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitAccount ensures the account's buckets exist. Call once before the
// account's first pass.
func (s *Store) InitAccount(accountID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket(accountID)); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(remoteBucket(accountID))

		return err
	})
}

func (s *Store) stageFor(accountID string) *stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stages[accountID]
	if !ok {
		st = newStage()
		s.stages[accountID] = st
	}

	return st
}

// Put stages an idempotent upsert of the entry for the account.
func (s *Store) Put(accountID string, e Entry) {
	st := s.stageFor(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(st.removes, e.LocalID)
	st.puts[e.LocalID] = e
}

// Remove stages the deletion of an entry found by either key. Passing
// both ids is allowed; the local id wins when they disagree.
func (s *Store) Remove(accountID, localID, remoteID string) {
	if localID == "" && remoteID != "" {
		localID, _ = s.ResolveRemote(accountID, remoteID)
	}

	if localID == "" {
		return
	}

	st := s.stageFor(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(st.puts, localID)
	st.removes[localID] = struct{}{}
}

// ResolveLocal returns the remote id mapped to a local id, consulting
// staged changes first and the committed snapshot second.
func (s *Store) ResolveLocal(accountID, localID string) (string, bool) {
	s.mu.Lock()
	if st, ok := s.stages[accountID]; ok {
		if _, removed := st.removes[localID]; removed {
			s.mu.Unlock()
			return "", false
		}

		if e, ok := st.puts[localID]; ok {
			s.mu.Unlock()
			return e.RemoteID, true
		}
	}
	s.mu.Unlock()

	var remoteID string

	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket(accountID))
		if b == nil {
			return nil
		}

		v := b.Get([]byte(localID))
		if v == nil {
			return nil
		}

		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil
		}

		remoteID = e.RemoteID

		return nil
	})

	return remoteID, remoteID != ""
}

// ResolveRemote returns the local id mapped to a remote id.
func (s *Store) ResolveRemote(accountID, remoteID string) (string, bool) {
	s.mu.Lock()
	if st, ok := s.stages[accountID]; ok {
		for _, e := range st.puts {
			if e.RemoteID == remoteID {
				s.mu.Unlock()
				return e.LocalID, true
			}
		}
	}
	s.mu.Unlock()

	var localID string

	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(remoteBucket(accountID))
		if b == nil {
			return nil
		}

		if v := b.Get([]byte(remoteID)); v != nil {
			localID = string(v)
		}

		return nil
	})

	if localID == "" {
		return "", false
	}

	// A staged removal hides the committed pair.
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stages[accountID]; ok {
		if _, removed := st.removes[localID]; removed {
			return "", false
		}
	}

	return localID, true
}

// Entries returns the committed entry set for an account, keyed by
// local id. Staged changes are not included.
func (s *Store) Entries(accountID string) (map[string]Entry, error) {
	result := make(map[string]Entry)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket(accountID))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}

			result[string(k)] = e

			return nil
		})
	})

	return result, err
}

// Commit writes all staged changes for the account in a single
// transaction. On failure nothing is persisted and the stage is kept so
// the pass can be retried or rolled back explicitly.
func (s *Store) Commit(accountID string) error {
	s.mu.Lock()
	st, ok := s.stages[accountID]
	if !ok || (len(st.puts) == 0 && len(st.removes) == 0) {
		delete(s.stages, accountID)
		s.mu.Unlock()

		return nil
	}

	puts := make([]Entry, 0, len(st.puts))
	for _, e := range st.puts {
		puts = append(puts, e)
	}

	removes := make([]string, 0, len(st.removes))
	for id := range st.removes {
		removes = append(removes, id)
	}
	s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		eb, err := tx.CreateBucketIfNotExists(entriesBucket(accountID))
		if err != nil {
			return err
		}

		rb, err := tx.CreateBucketIfNotExists(remoteBucket(accountID))
		if err != nil {
			return err
		}

		for _, localID := range removes {
			if v := eb.Get([]byte(localID)); v != nil {
				var old Entry
				if err := json.Unmarshal(v, &old); err == nil && old.RemoteID != "" {
					if err := rb.Delete([]byte(old.RemoteID)); err != nil {
						return err
					}
				}
			}

			if err := eb.Delete([]byte(localID)); err != nil {
				return err
			}
		}

		for _, e := range puts {
			// Drop a stale reverse key if the pair's remote id changed.
			if v := eb.Get([]byte(e.LocalID)); v != nil {
				var old Entry
				if err := json.Unmarshal(v, &old); err == nil && old.RemoteID != e.RemoteID {
					if err := rb.Delete([]byte(old.RemoteID)); err != nil {
						return err
					}
				}
			}

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}

			if err := eb.Put([]byte(e.LocalID), data); err != nil {
				return err
			}

			if err := rb.Put([]byte(e.RemoteID), []byte(e.LocalID)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMappingStoreCorrupt, err)
	}

	s.mu.Lock()
	delete(s.stages, accountID)
	s.mu.Unlock()

	return nil
}

// Rollback discards all staged changes for the account.
func (s *Store) Rollback(accountID string) {
	s.mu.Lock()
	delete(s.stages, accountID)
	s.mu.Unlock()
}

// Mirror reconstructs the last-synced tree shape from committed entries.
// Node ids are local ids. Children follow the cached ChildOrder where
// present; entries missing from it are appended title-sorted so the
// result is deterministic. Returns an empty root if no prior sync exists.
func (s *Store) Mirror(accountID string) (*tree.Folder, error) {
	entries, err := s.Entries(accountID)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}

	var rootEntry *Entry

	for id := range entries {
		e := entries[id]
		if e.Folder && e.ParentLocalID == "" {
			rootEntry = &e
			break
		}
	}

	if rootEntry == nil {
		return &tree.Folder{}, nil
	}

	return buildFolder(*rootEntry, entries), nil
}

func buildFolder(e Entry, entries map[string]Entry) *tree.Folder {
	f := &tree.Folder{
		ID:       e.LocalID,
		ParentID: e.ParentLocalID,
		Title:    e.Title,
	}

	var childIDs []string

	seen := make(map[string]struct{})

	for _, id := range e.ChildOrder {
		child, ok := entries[id]
		if !ok || child.ParentLocalID != e.LocalID {
			continue
		}

		childIDs = append(childIDs, id)
		seen[id] = struct{}{}
	}

	var rest []string

	for id, child := range entries {
		if child.ParentLocalID != e.LocalID {
			continue
		}

		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}

	sort.Slice(rest, func(i, j int) bool {
		if entries[rest[i]].Title != entries[rest[j]].Title {
			return entries[rest[i]].Title < entries[rest[j]].Title
		}

		return rest[i] < rest[j]
	})

	childIDs = append(childIDs, rest...)

	for _, id := range childIDs {
		child := entries[id]
		if child.Folder {
			f.Children = append(f.Children, buildFolder(child, entries))
		} else {
			f.Children = append(f.Children, &tree.Bookmark{
				ID:       child.LocalID,
				ParentID: child.ParentLocalID,
				Title:    child.Title,
				URL:      child.URL,
			})
		}
	}

	return f
}
