// Package engine implements the three-way reconciliation between the
// local bookmark tree, a remote tree, and the cached mirror of the last
// successful sync. One Engine run is one sync pass: it classifies every
// node's change since the mirror on both sides, matches unmapped nodes
// by content, resolves conflicts with last-write-wins by pass ordering,
// applies the resulting actions through both adapter contracts, and
// stages the mapping updates that become the next mirror.
//
// A pass is idempotent: re-running it with no intervening changes on
// either side emits zero actions.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alexjbarnes/bookmark-sync/internal/adapter"
	bserrors "github.com/alexjbarnes/bookmark-sync/internal/errors"
	"github.com/alexjbarnes/bookmark-sync/internal/mapping"
	"github.com/alexjbarnes/bookmark-sync/internal/tree"
	"golang.org/x/sync/errgroup"
)

// removeConcurrency bounds how many independent orphaned remote
// subtrees are removed in parallel. Mutations under one parent are
// never issued concurrently.
const removeConcurrency = 4

// Config wires one Engine.
type Config struct {
	AccountID   string
	LocalRootID string
	Local       adapter.Adapter
	Remote      adapter.Adapter
	Store       *mapping.Store
	Logger      *slog.Logger

	// ExcludeRoots are local ids of other accounts' roots; subtrees under
	// them belong to those accounts and are invisible to this engine.
	ExcludeRoots []string
}

// Engine runs sync passes for a single account.
type Engine struct {
	accountID   string
	localRootID string
	local       adapter.Adapter
	remote      adapter.Adapter
	store       *mapping.Store
	logger      *slog.Logger
	exclude     map[string]struct{}
}

// Stats counts the actions one pass emitted. Matched pairs are recorded
// separately because matching is not an action.
type Stats struct {
	CreatedRemote int
	CreatedLocal  int
	UpdatedRemote int
	UpdatedLocal  int
	MovedRemote   int
	MovedLocal    int
	RemovedRemote int
	RemovedLocal  int
	Reordered     int
	Matched       int
}

// Actions returns the total number of mutations the pass applied.
func (s Stats) Actions() int {
	return s.CreatedRemote + s.CreatedLocal +
		s.UpdatedRemote + s.UpdatedLocal +
		s.MovedRemote + s.MovedLocal +
		s.RemovedRemote + s.RemovedLocal +
		s.Reordered
}

// New creates an engine for one account.
func New(cfg Config) *Engine {
	exclude := make(map[string]struct{}, len(cfg.ExcludeRoots))
	for _, id := range cfg.ExcludeRoots {
		exclude[id] = struct{}{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		accountID:   cfg.AccountID,
		localRootID: cfg.LocalRootID,
		local:       cfg.Local,
		remote:      cfg.Remote,
		store:       cfg.Store,
		logger:      logger,
		exclude:     exclude,
	}
}

// pairState carries one mapped pair's classification for the pass.
type pairState struct {
	entry      mapping.Entry
	localNode  tree.Node
	remoteNode tree.Node
	localCh    Change
	remoteCh   Change
	res        Resolution
}

// pass is the working state of one engine run.
type pass struct {
	localWork  *tree.Folder
	remoteWork *tree.Folder
	localIdx   map[string]tree.Node
	remoteIdx  map[string]tree.Node
	entries    map[string]mapping.Entry
	pairs      map[string]*pairState // keyed by local id

	// created marks local ids whose remote counterpart was created or
	// recreated during this pass, so later phases do not act on them.
	created map[string]struct{}

	// skipped marks local ids whose pending change hit a capability gap.
	// Their committed entries are preserved so the change is re-detected
	// and retried next pass.
	skipped map[string]struct{}

	stats Stats
}

// Run executes one sync pass. Staged mapping changes are left for the
// caller to commit or roll back; actions already applied to either side
// stand regardless (re-running recomputes against whatever landed).
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	p := &pass{
		created: make(map[string]struct{}),
		skipped: make(map[string]struct{}),
		pairs:   make(map[string]*pairState),
	}

	if err := e.fetchTrees(ctx, p); err != nil {
		return p.stats, err
	}

	// The root pair is implicit: the account's local root always
	// corresponds to the backend-defined remote root.
	e.store.Put(e.accountID, mapping.Entry{
		LocalID:  p.localWork.ID,
		RemoteID: p.remoteWork.ID,
		Title:    p.localWork.Title,
		Folder:   true,
	})

	if err := e.matchTrees(p.localWork, p.remoteWork, p.remoteIdx, &p.stats); err != nil {
		return p.stats, err
	}

	var err error

	p.entries, err = e.store.Entries(e.accountID)
	if err != nil {
		return p.stats, fmt.Errorf("loading mapping entries: %w", err)
	}

	e.classifyPairs(p)

	e.logger.Debug("pass classified",
		slog.String("account", e.accountID),
		slog.Int("entries", len(p.entries)),
		slog.Int("matched", p.stats.Matched),
	)

	if err := e.createMissingRemote(ctx, p, p.localWork); err != nil {
		return p.stats, err
	}

	if err := e.recreateRemoved(ctx, p); err != nil {
		return p.stats, err
	}

	if err := e.createMissingLocal(ctx, p, p.remoteWork); err != nil {
		return p.stats, err
	}

	if err := e.applyPairChanges(ctx, p); err != nil {
		return p.stats, err
	}

	if err := e.applyRemovals(ctx, p); err != nil {
		return p.stats, err
	}

	final, err := e.fetchLocalWork(ctx)
	if err != nil {
		return p.stats, err
	}

	ordered := adapter.SupportsOrdering(e.local) && adapter.SupportsOrdering(e.remote)
	if ordered {
		if err := e.syncOrder(ctx, p, final); err != nil {
			return p.stats, err
		}

		// Order application may have reshuffled local children.
		final, err = e.fetchLocalWork(ctx)
		if err != nil {
			return p.stats, err
		}
	}

	e.rebuildEntries(p, final, ordered)

	return p.stats, nil
}

// fetchTrees loads and prunes both working trees.
func (e *Engine) fetchTrees(ctx context.Context, p *pass) error {
	localWork, err := e.fetchLocalWork(ctx)
	if err != nil {
		return err
	}

	remoteRoot, err := e.remote.GetBookmarksTree(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetching remote tree: %v", bserrors.ErrAdapterUnavailable, err)
	}

	p.localWork = localWork
	p.remoteWork = pruneTree(remoteRoot, nil, acceptFunc(e.remote))
	p.localIdx = p.localWork.ByID()
	p.remoteIdx = p.remoteWork.ByID()

	return nil
}

// fetchLocalWork loads the local tree, selects the account's subtree
// and prunes out-of-scope content.
func (e *Engine) fetchLocalWork(ctx context.Context) (*tree.Folder, error) {
	full, err := e.local.GetBookmarksTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching local tree: %w", err)
	}

	root := full
	if e.localRootID != "" && e.localRootID != full.ID {
		root = full.FindFolder(e.localRootID)
		if root == nil {
			return nil, fmt.Errorf("local root %s not found", e.localRootID)
		}
	}

	return pruneTree(root, e.exclude, acceptFunc(e.remote)), nil
}

// classifyPairs computes each mapped pair's change state and resolution.
// The root pair is never classified; root titles are not synced.
func (e *Engine) classifyPairs(p *pass) {
	resolveLocal := func(id string) (string, bool) {
		return e.store.ResolveLocal(e.accountID, id)
	}

	for localID, entry := range p.entries {
		if localID == p.localWork.ID {
			continue
		}

		ps := &pairState{entry: entry}
		ps.localNode = p.localIdx[localID]
		ps.remoteNode = p.remoteIdx[entry.RemoteID]

		if ps.localNode != nil {
			ps.localCh = localChange(entry, ps.localNode)
		}

		if ps.remoteNode != nil {
			ps.remoteCh = remoteChange(entry, ps.remoteNode, resolveLocal)
		}

		ps.res = Resolve(ps.localCh.Any(), ps.localNode == nil, ps.remoteCh.Any(), ps.remoteNode == nil)
		p.pairs[localID] = ps
	}
}

// topMost reports whether no ancestor of the entry (following cached
// parents) satisfies the predicate. Subtree-wide removals are acted on
// at their top-most node only.
func (p *pass) topMost(entry mapping.Entry, removed func(*pairState) bool) bool {
	parentID := entry.ParentLocalID
	for parentID != "" {
		parent, ok := p.pairs[parentID]
		if !ok {
			return true
		}

		if removed(parent) {
			return false
		}

		parentID = parent.entry.ParentLocalID
	}

	return true
}

// createMissingRemote walks the local working tree and creates, on the
// remote side, every subtree that has no mapping yet. Mapped children
// inside a new subtree are left to the pair logic, which moves them.
// Folders whose mapped remote copy is gone are skipped; recreation (or
// removal) of the whole subtree handles their content.
func (e *Engine) createMissingRemote(ctx context.Context, p *pass, f *tree.Folder) error {
	parentRemoteID, ok := e.store.ResolveLocal(e.accountID, f.ID)
	if !ok {
		return nil
	}

	if _, alive := p.remoteIdx[parentRemoteID]; !alive {
		return nil
	}

	for _, child := range f.Children {
		if _, mapped := e.store.ResolveLocal(e.accountID, tree.ID(child)); !mapped {
			if err := e.createRemoteSubtree(ctx, p, child, parentRemoteID); err != nil {
				return err
			}

			continue
		}

		if cf, isFolder := child.(*tree.Folder); isFolder {
			if err := e.createMissingRemote(ctx, p, cf); err != nil {
				return err
			}
		}
	}

	return nil
}

// recreateRemoved recreates, on the remote side, subtrees that were
// removed remotely but edited or moved locally since the last sync.
func (e *Engine) recreateRemoved(ctx context.Context, p *pass) error {
	for localID, ps := range p.pairs {
		if ps.res != ResolutionRecreateRemote {
			continue
		}

		if !p.topMost(ps.entry, func(parent *pairState) bool { return parent.remoteNode == nil }) {
			continue
		}

		if _, done := p.created[localID]; done {
			continue
		}

		parentRemoteID, ok := e.store.ResolveLocal(e.accountID, tree.ParentID(ps.localNode))
		if !ok {
			e.logger.Warn("skipping recreate, parent unmapped",
				slog.String("account", e.accountID),
				slog.String("local_id", localID),
			)

			continue
		}

		if err := e.createRemoteSubtree(ctx, p, ps.localNode, parentRemoteID); err != nil {
			return err
		}
	}

	return nil
}

// createRemoteSubtree creates n (and, for folders, its subtree) on the
// remote side under remoteParentID, staging a mapping entry per node.
// Nodes whose mapped remote copy is still alive are skipped; they were
// moved into this subtree and the pair logic repositions them.
func (e *Engine) createRemoteSubtree(ctx context.Context, p *pass, n tree.Node, remoteParentID string) error {
	localID := tree.ID(n)

	if _, done := p.created[localID]; done {
		return nil
	}

	if remoteID, mapped := e.store.ResolveLocal(e.accountID, localID); mapped {
		if _, alive := p.remoteIdx[remoteID]; alive {
			return nil
		}
	}

	switch v := n.(type) {
	case *tree.Bookmark:
		remoteID, err := e.remote.CreateBookmark(ctx, &tree.Bookmark{
			ParentID: remoteParentID,
			Title:    v.Title,
			URL:      v.URL,
		})
		if err != nil {
			if e.unsupported("create bookmark", err) {
				return nil
			}

			return e.adapterErr("creating remote bookmark", err)
		}

		p.stats.CreatedRemote++
		p.created[localID] = struct{}{}
		e.store.Put(e.accountID, mapping.Entry{
			LocalID:       localID,
			RemoteID:      remoteID,
			Title:         v.Title,
			URL:           v.URL,
			ParentLocalID: v.ParentID,
		})

	case *tree.Folder:
		remoteID, err := e.remote.CreateFolder(ctx, remoteParentID, v.Title)
		if err != nil {
			if e.unsupported("create folder", err) {
				return nil
			}

			return e.adapterErr("creating remote folder", err)
		}

		p.stats.CreatedRemote++
		p.created[localID] = struct{}{}
		e.store.Put(e.accountID, mapping.Entry{
			LocalID:       localID,
			RemoteID:      remoteID,
			Title:         v.Title,
			ParentLocalID: v.ParentID,
			Folder:        true,
		})

		for _, child := range v.Children {
			if err := e.createRemoteSubtree(ctx, p, child, remoteID); err != nil {
				return err
			}
		}
	}

	return nil
}

// createMissingLocal creates, on the local side, every remote subtree
// that has no mapping yet. Mapped nodes are never resurrected locally;
// the local side of the running pass is authoritative for removals.
func (e *Engine) createMissingLocal(ctx context.Context, p *pass, f *tree.Folder) error {
	parentLocalID, ok := e.store.ResolveRemote(e.accountID, f.ID)
	if !ok {
		return nil
	}

	for _, child := range f.Children {
		if _, mapped := e.store.ResolveRemote(e.accountID, tree.ID(child)); !mapped {
			if err := e.createLocalSubtree(ctx, p, child, parentLocalID); err != nil {
				return err
			}

			continue
		}

		if cf, isFolder := child.(*tree.Folder); isFolder {
			if err := e.createMissingLocal(ctx, p, cf); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *Engine) createLocalSubtree(ctx context.Context, p *pass, n tree.Node, localParentID string) error {
	if _, mapped := e.store.ResolveRemote(e.accountID, tree.ID(n)); mapped {
		return nil
	}

	switch v := n.(type) {
	case *tree.Bookmark:
		localID, err := e.local.CreateBookmark(ctx, &tree.Bookmark{
			ParentID: localParentID,
			Title:    v.Title,
			URL:      v.URL,
		})
		if err != nil {
			return fmt.Errorf("creating local bookmark: %w", err)
		}

		p.stats.CreatedLocal++
		e.store.Put(e.accountID, mapping.Entry{
			LocalID:       localID,
			RemoteID:      v.ID,
			Title:         v.Title,
			URL:           v.URL,
			ParentLocalID: localParentID,
		})

	case *tree.Folder:
		localID, err := e.local.CreateFolder(ctx, localParentID, v.Title)
		if err != nil {
			return fmt.Errorf("creating local folder: %w", err)
		}

		p.stats.CreatedLocal++
		e.store.Put(e.accountID, mapping.Entry{
			LocalID:       localID,
			RemoteID:      v.ID,
			Title:         v.Title,
			ParentLocalID: localParentID,
			Folder:        true,
		})

		for _, child := range v.Children {
			if err := e.createLocalSubtree(ctx, p, child, localID); err != nil {
				return err
			}
		}
	}

	return nil
}

// folderMove is a queued reparenting, applied shallowest target first so
// a folder is never moved under a parent that has not reached its final
// position yet.
type folderMove struct {
	id       string
	parentID string
	depth    int
	remote   bool
}

// applyPairChanges pushes local edits and moves to the remote side and
// applies remote edits and moves locally. Local changes win when both
// sides changed the same node.
func (e *Engine) applyPairChanges(ctx context.Context, p *pass) error {
	var remoteMoves, localMoves []folderMove

	// Deterministic iteration keeps logs and tests stable.
	localIDs := make([]string, 0, len(p.pairs))
	for id := range p.pairs {
		localIDs = append(localIDs, id)
	}
	sort.Strings(localIDs)

	for _, localID := range localIDs {
		ps := p.pairs[localID]

		if _, done := p.created[localID]; done {
			continue
		}

		var (
			moves []folderMove
			err   error
		)

		switch ps.res {
		case ResolutionPushLocal:
			moves, err = e.pushLocal(ctx, p, ps)
		case ResolutionApplyRemote:
			moves, err = e.applyRemote(ctx, p, ps)
		}

		if err != nil {
			return err
		}

		for _, m := range moves {
			if m.remote {
				remoteMoves = append(remoteMoves, m)
			} else {
				localMoves = append(localMoves, m)
			}
		}
	}

	if err := e.applyFolderMoves(ctx, p, remoteMoves, true); err != nil {
		return err
	}

	return e.applyFolderMoves(ctx, p, localMoves, false)
}

func (e *Engine) pushLocal(ctx context.Context, p *pass, ps *pairState) ([]folderMove, error) {
	switch local := ps.localNode.(type) {
	case *tree.Bookmark:
		remoteParent, ok := e.store.ResolveLocal(e.accountID, local.ParentID)
		if !ok {
			e.logger.Warn("skipping push, target parent unmapped",
				slog.String("account", e.accountID),
				slog.String("local_id", local.ID),
			)

			return nil, nil
		}

		err := e.remote.UpdateBookmark(ctx, &tree.Bookmark{
			ID:       ps.entry.RemoteID,
			ParentID: remoteParent,
			Title:    local.Title,
			URL:      local.URL,
		})
		if err != nil {
			if e.unsupported("update bookmark", err) {
				p.skipped[ps.entry.LocalID] = struct{}{}

				return nil, nil
			}

			return nil, e.adapterErr("updating remote bookmark", err)
		}

		if ps.localCh.Updated {
			p.stats.UpdatedRemote++
		}

		if ps.localCh.Moved {
			p.stats.MovedRemote++
		}

	case *tree.Folder:
		if ps.localCh.Updated {
			err := e.remote.UpdateFolder(ctx, ps.entry.RemoteID, local.Title)
			switch {
			case err == nil:
				p.stats.UpdatedRemote++
			case e.unsupported("update folder", err):
				p.skipped[ps.entry.LocalID] = struct{}{}
			default:
				return nil, e.adapterErr("updating remote folder", err)
			}
		}

		if ps.localCh.Moved {
			remoteParent, ok := e.store.ResolveLocal(e.accountID, local.ParentID)
			if !ok {
				e.logger.Warn("skipping move, target parent unmapped",
					slog.String("account", e.accountID),
					slog.String("local_id", local.ID),
				)

				return nil, nil
			}

			return []folderMove{{
				id:       ps.entry.RemoteID,
				parentID: remoteParent,
				depth:    depthOf(p.localWork, local.ParentID),
				remote:   true,
			}}, nil
		}
	}

	return nil, nil
}

func (e *Engine) applyRemote(ctx context.Context, p *pass, ps *pairState) ([]folderMove, error) {
	switch remote := ps.remoteNode.(type) {
	case *tree.Bookmark:
		localParent, ok := e.store.ResolveRemote(e.accountID, remote.ParentID)
		if !ok {
			e.logger.Warn("skipping apply, target parent unmapped",
				slog.String("account", e.accountID),
				slog.String("remote_id", remote.ID),
			)

			return nil, nil
		}

		err := e.local.UpdateBookmark(ctx, &tree.Bookmark{
			ID:       ps.entry.LocalID,
			ParentID: localParent,
			Title:    remote.Title,
			URL:      remote.URL,
		})
		if err != nil {
			return nil, fmt.Errorf("updating local bookmark: %w", err)
		}

		if ps.remoteCh.Updated {
			p.stats.UpdatedLocal++
		}

		if ps.remoteCh.Moved {
			p.stats.MovedLocal++
		}

	case *tree.Folder:
		if ps.remoteCh.Updated {
			if err := e.local.UpdateFolder(ctx, ps.entry.LocalID, remote.Title); err != nil {
				return nil, fmt.Errorf("updating local folder: %w", err)
			}

			p.stats.UpdatedLocal++
		}

		if ps.remoteCh.Moved {
			localParent, ok := e.store.ResolveRemote(e.accountID, remote.ParentID)
			if !ok {
				e.logger.Warn("skipping move, target parent unmapped",
					slog.String("account", e.accountID),
					slog.String("remote_id", remote.ID),
				)

				return nil, nil
			}

			// Crossing moves: the sides reparented the folders into each
			// other, so applying the remote move would cycle locally. The
			// local arrangement wins; the folder's local position is
			// pushed back to the remote instead.
			if lf, isFolder := p.localIdx[ps.entry.LocalID].(*tree.Folder); isFolder && lf.FindFolder(localParent) != nil {
				remoteParent, mapped := e.store.ResolveLocal(e.accountID, lf.ParentID)
				if !mapped {
					e.logger.Warn("skipping move, target parent unmapped",
						slog.String("account", e.accountID),
						slog.String("local_id", lf.ID),
					)

					return nil, nil
				}

				return []folderMove{{
					id:       ps.entry.RemoteID,
					parentID: remoteParent,
					depth:    depthOf(p.localWork, lf.ParentID),
					remote:   true,
				}}, nil
			}

			return []folderMove{{
				id:       ps.entry.LocalID,
				parentID: localParent,
				depth:    depthOf(p.remoteWork, remote.ParentID),
			}}, nil
		}
	}

	return nil, nil
}

// applyFolderMoves reparents folders shallowest target first.
func (e *Engine) applyFolderMoves(ctx context.Context, p *pass, moves []folderMove, remote bool) error {
	sort.SliceStable(moves, func(i, j int) bool {
		return moves[i].depth < moves[j].depth
	})

	for _, m := range moves {
		if remote {
			if err := e.remote.MoveFolder(ctx, m.id, m.parentID); err != nil {
				if e.unsupported("move folder", err) {
					if localID, ok := e.store.ResolveRemote(e.accountID, m.id); ok {
						p.skipped[localID] = struct{}{}
					}

					continue
				}

				return e.adapterErr("moving remote folder", err)
			}

			p.stats.MovedRemote++

			continue
		}

		if err := e.local.MoveFolder(ctx, m.id, m.parentID); err != nil {
			return fmt.Errorf("moving local folder: %w", err)
		}

		p.stats.MovedLocal++
	}

	return nil
}

// applyRemovals propagates deletions, acting on top-most removed nodes
// only since removing a folder removes its subtree. Independent remote
// subtree removals run concurrently; local removals are sequential.
func (e *Engine) applyRemovals(ctx context.Context, p *pass) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(removeConcurrency)

	var (
		removed atomic.Int64
		skipMu  sync.Mutex
	)

	for _, ps := range p.pairs {
		if ps.res != ResolutionRemoveRemote {
			continue
		}

		if !p.topMost(ps.entry, func(parent *pairState) bool { return parent.localNode == nil }) {
			continue
		}

		entry := ps.entry

		g.Go(func() error {
			var err error
			if entry.Folder {
				err = e.remote.RemoveFolder(gctx, entry.RemoteID)
			} else {
				err = e.remote.RemoveBookmark(gctx, entry.RemoteID)
			}

			if err != nil {
				if e.unsupported("remove node", err) {
					skipMu.Lock()
					p.skipped[entry.LocalID] = struct{}{}
					skipMu.Unlock()

					return nil
				}

				return e.adapterErr("removing remote node", err)
			}

			removed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	p.stats.RemovedRemote += int(removed.Load())

	for _, ps := range p.pairs {
		if ps.res != ResolutionRemoveLocal {
			continue
		}

		if !p.topMost(ps.entry, func(parent *pairState) bool { return parent.remoteNode == nil }) {
			continue
		}

		var err error
		if ps.entry.Folder {
			err = e.local.RemoveFolder(ctx, ps.entry.LocalID)
		} else {
			err = e.local.RemoveBookmark(ctx, ps.entry.LocalID)
		}

		if err != nil {
			return fmt.Errorf("removing local node: %w", err)
		}

		p.stats.RemovedLocal++
	}

	return nil
}

// rebuildEntries stages the post-sync snapshot: one entry per mapped
// node of the final local tree, and a removal for every committed entry
// whose node is gone. Entries of nodes whose change was skipped keep
// their committed state so the change stays pending. The committed
// result is the next pass's mirror.
func (e *Engine) rebuildEntries(p *pass, final *tree.Folder, ordered bool) {
	seen := make(map[string]struct{})

	final.Walk(func(n tree.Node) bool {
		localID := tree.ID(n)

		remoteID, ok := e.store.ResolveLocal(e.accountID, localID)
		if !ok {
			// Unmapped nodes (filtered content, failed creations) stay out
			// of the mirror so the next pass re-evaluates them.
			return true
		}

		seen[localID] = struct{}{}

		if _, skip := p.skipped[localID]; skip {
			return true
		}

		entry := mapping.Entry{
			LocalID:       localID,
			RemoteID:      remoteID,
			Title:         tree.Title(n),
			ParentLocalID: tree.ParentID(n),
		}

		if localID == final.ID {
			entry.ParentLocalID = ""
		}

		switch v := n.(type) {
		case *tree.Bookmark:
			entry.URL = v.URL
		case *tree.Folder:
			entry.Folder = true
			if ordered {
				entry.ChildOrder = e.mappedChildIDs(v)
			}
		}

		e.store.Put(e.accountID, entry)

		return true
	})

	for localID := range p.entries {
		if _, ok := seen[localID]; ok {
			continue
		}

		if _, skip := p.skipped[localID]; skip {
			continue
		}

		e.store.Remove(e.accountID, localID, "")
	}
}

// mappedChildIDs returns the folder's child ids, in order, restricted to
// mapped nodes.
func (e *Engine) mappedChildIDs(f *tree.Folder) []string {
	var ids []string

	for _, child := range f.Children {
		id := tree.ID(child)
		if _, ok := e.store.ResolveLocal(e.accountID, id); ok {
			ids = append(ids, id)
		}
	}

	return ids
}

// adapterErr classifies a remote adapter failure as unreachable or
// refused, which aborts the remainder of the pass. Callers check
// unsupported first; a capability gap never reaches here.
func (e *Engine) adapterErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", bserrors.ErrAdapterUnavailable, op, err)
}

// unsupported reports whether err is a capability gap. The affected
// node keeps its pre-pass state on both sides and the rest of the pass
// proceeds.
func (e *Engine) unsupported(op string, err error) bool {
	if !stderrors.Is(err, bserrors.ErrUnsupportedOperation) {
		return false
	}

	e.logger.Warn("skipping unsupported operation",
		slog.String("account", e.accountID),
		slog.String("op", op),
	)

	return true
}

// acceptFunc returns the adapter's URL-acceptability predicate, or nil
// when the adapter accepts everything.
func acceptFunc(a adapter.Adapter) func(string) bool {
	if acc, ok := a.(adapter.URLAcceptor); ok {
		return acc.AcceptsURL
	}

	return nil
}

// depthOf returns the depth of the node with the given id below root,
// or 0 when not found.
func depthOf(root *tree.Folder, id string) int {
	depth := 0

	var walk func(f *tree.Folder, d int) bool
	walk = func(f *tree.Folder, d int) bool {
		if f.ID == id {
			depth = d
			return true
		}

		for _, child := range f.Children {
			if tree.ID(child) == id {
				depth = d + 1
				return true
			}

			if cf, ok := child.(*tree.Folder); ok {
				if walk(cf, d+1) {
					return true
				}
			}
		}

		return false
	}

	walk(root, 0)

	return depth
}
