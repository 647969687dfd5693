// Package localstore persists the local bookmark tree in SQLite. It is
// the local side of every sync account and supports explicit child
// ordering through per-row positions.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

// RootID is the id of the store's root folder. The root always exists
// and cannot be removed.
const RootID = "root"

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id        TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES nodes(id) ON DELETE CASCADE,
	title     TEXT NOT NULL DEFAULT '',
	url       TEXT,
	position  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, position);
`

// Store is a SQLite-backed bookmark tree. All methods are safe for
// concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the store at path. Pass ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}

	// A single connection avoids SQLITE_BUSY under concurrent passes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating sqlite store: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO nodes (id, parent_id, title, url, position) VALUES (?, NULL, '', NULL, 0)`,
		RootID,
	)
	if err != nil {
		return fmt.Errorf("creating root folder: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type row struct {
	id       string
	parentID sql.NullString
	title    string
	url      sql.NullString
}

// GetBookmarksTree loads the whole tree. Children come back in stored
// position order.
func (s *Store) GetBookmarksTree(ctx context.Context) (*tree.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, title, url FROM nodes ORDER BY parent_id, position, id`)
	if err != nil {
		return nil, fmt.Errorf("loading bookmark tree: %w", err)
	}
	defer rows.Close()

	folders := map[string]*tree.Folder{}
	var all []row

	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.parentID, &r.title, &r.url); err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}

		if !r.url.Valid {
			folders[r.id] = &tree.Folder{ID: r.id, ParentID: r.parentID.String, Title: r.title}
		}

		all = append(all, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading bookmark tree: %w", err)
	}

	for _, r := range all {
		if !r.parentID.Valid {
			continue
		}

		parent, ok := folders[r.parentID.String]
		if !ok {
			continue
		}

		if r.url.Valid {
			parent.Children = append(parent.Children, &tree.Bookmark{
				ID:       r.id,
				ParentID: r.parentID.String,
				Title:    r.title,
				URL:      r.url.String,
			})

			continue
		}

		parent.Children = append(parent.Children, folders[r.id])
	}

	root, ok := folders[RootID]
	if !ok {
		return nil, fmt.Errorf("root folder missing")
	}

	return root, nil
}

func (s *Store) nextPosition(ctx context.Context, parentID string) (int, error) {
	var pos sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM nodes WHERE parent_id = ?`, parentID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("computing child position: %w", err)
	}

	return int(pos.Int64) + 1, nil
}

// CreateFolder appends a new folder under parentID.
func (s *Store) CreateFolder(ctx context.Context, parentID, title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.nextPosition(ctx, parentID)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, parent_id, title, url, position) VALUES (?, ?, ?, NULL, ?)`,
		id, parentID, title, pos)
	if err != nil {
		return "", fmt.Errorf("creating folder: %w", err)
	}

	return id, nil
}

// CreateBookmark appends a new bookmark under b.ParentID.
func (s *Store) CreateBookmark(ctx context.Context, b *tree.Bookmark) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.nextPosition(ctx, b.ParentID)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, parent_id, title, url, position) VALUES (?, ?, ?, ?, ?)`,
		id, b.ParentID, b.Title, b.URL, pos)
	if err != nil {
		return "", fmt.Errorf("creating bookmark: %w", err)
	}

	return id, nil
}

// UpdateFolder renames a folder.
func (s *Store) UpdateFolder(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET title = ? WHERE id = ? AND url IS NULL`, title, id)
	if err != nil {
		return fmt.Errorf("updating folder: %w", err)
	}

	return requireAffected(res, id)
}

// MoveFolder reparents a folder, appending it at the end of the new
// parent's children. Reparenting a folder into its own subtree is
// rejected.
func (s *Store) MoveFolder(ctx context.Context, id, newParentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cycle int

	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE chain(id) AS (
			SELECT ?
			UNION ALL
			SELECT nodes.parent_id FROM nodes JOIN chain ON nodes.id = chain.id
		)
		SELECT COUNT(*) FROM chain WHERE id = ?`, newParentID, id).Scan(&cycle)
	if err != nil {
		return fmt.Errorf("moving folder: %w", err)
	}

	if cycle > 0 {
		return fmt.Errorf("cannot move folder %s under %s", id, newParentID)
	}

	pos, err := s.nextPosition(ctx, newParentID)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET parent_id = ?, position = ? WHERE id = ? AND url IS NULL AND id != ?`,
		newParentID, pos, id, RootID)
	if err != nil {
		return fmt.Errorf("moving folder: %w", err)
	}

	return requireAffected(res, id)
}

// UpdateBookmark rewrites a bookmark's title, url and parent. A changed
// parent appends the bookmark at the end of the new parent's children.
func (s *Store) UpdateBookmark(ctx context.Context, b *tree.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT parent_id FROM nodes WHERE id = ? AND url IS NOT NULL`, b.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("bookmark %s not found", b.ID)
	}

	if err != nil {
		return fmt.Errorf("updating bookmark: %w", err)
	}

	if current.String == b.ParentID {
		_, err = s.db.ExecContext(ctx,
			`UPDATE nodes SET title = ?, url = ? WHERE id = ?`, b.Title, b.URL, b.ID)
		if err != nil {
			return fmt.Errorf("updating bookmark: %w", err)
		}

		return nil
	}

	pos, err := s.nextPosition(ctx, b.ParentID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE nodes SET title = ?, url = ?, parent_id = ?, position = ? WHERE id = ?`,
		b.Title, b.URL, b.ParentID, pos, b.ID)
	if err != nil {
		return fmt.Errorf("updating bookmark: %w", err)
	}

	return nil
}

// RemoveFolder deletes a folder and its whole subtree.
func (s *Store) RemoveFolder(ctx context.Context, id string) error {
	if id == RootID {
		return fmt.Errorf("cannot remove root folder")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE id = ? AND url IS NULL`, id)
	if err != nil {
		return fmt.Errorf("removing folder: %w", err)
	}

	return requireAffected(res, id)
}

// RemoveBookmark deletes a bookmark.
func (s *Store) RemoveBookmark(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE id = ? AND url IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("removing bookmark: %w", err)
	}

	return requireAffected(res, id)
}

// SetChildOrder rewrites the positions of folderID's children to match
// order. Children absent from order keep positions after the ordered
// ones.
func (s *Store) SetChildOrder(ctx context.Context, folderID string, order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reordering children: %w", err)
	}
	defer tx.Rollback()

	for i, id := range order {
		_, err := tx.ExecContext(ctx,
			`UPDATE nodes SET position = ? WHERE id = ? AND parent_id = ?`, i, id, folderID)
		if err != nil {
			return fmt.Errorf("reordering children: %w", err)
		}
	}

	// Unordered children move past the ordered block, keeping their
	// relative order.
	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET position = position + ? WHERE parent_id = ? AND id NOT IN (`+placeholders(len(order))+`)`,
		append([]any{len(order), folderID}, toAny(order)...)...)
	if err != nil {
		return fmt.Errorf("reordering children: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reordering children: %w", err)
	}

	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("node %s not found", id)
	}

	return nil
}

func placeholders(n int) string {
	if n == 0 {
		return "''"
	}

	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}

	return string(out)
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}

	return out
}
