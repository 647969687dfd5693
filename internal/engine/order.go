package engine

import (
	"context"
	"fmt"

	"github.com/alexjbarnes/bookmark-sync/internal/adapter"
	bserrors "github.com/alexjbarnes/bookmark-sync/internal/errors"
	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

// syncOrder converges child ordering for every mapped folder pair. The
// remote order wins only when it diverged from the cached order and the
// local order did not; in every other case the local order wins.
// Divergence is judged on the ids common to both sides and the cache so
// that this pass's creations and removals do not count as reorders.
func (e *Engine) syncOrder(ctx context.Context, p *pass, final *tree.Folder) error {
	lo, okL := e.local.(adapter.Orderer)
	ro, okR := e.remote.(adapter.Orderer)
	if !okL || !okR {
		return nil
	}

	remoteRoot, err := e.remote.GetBookmarksTree(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetching remote tree: %v", bserrors.ErrAdapterUnavailable, err)
	}

	remoteIdx := pruneTree(remoteRoot, nil, acceptFunc(e.remote)).ByID()

	var walk func(f *tree.Folder) error
	walk = func(f *tree.Folder) error {
		if err := e.orderFolder(ctx, p, lo, ro, f, remoteIdx); err != nil {
			return err
		}

		for _, child := range f.Children {
			if cf, ok := child.(*tree.Folder); ok {
				if err := walk(cf); err != nil {
					return err
				}
			}
		}

		return nil
	}

	return walk(final)
}

func (e *Engine) orderFolder(ctx context.Context, p *pass, lo, ro adapter.Orderer, f *tree.Folder, remoteIdx map[string]tree.Node) error {
	remoteID, ok := e.store.ResolveLocal(e.accountID, f.ID)
	if !ok {
		return nil
	}

	remoteF, ok := remoteIdx[remoteID].(*tree.Folder)
	if !ok {
		return nil
	}

	localOrder := e.mappedChildIDs(f)
	remoteOrder := e.remoteChildIDsAsLocal(remoteF)

	if len(localOrder) < 2 && len(remoteOrder) < 2 {
		return nil
	}

	cached := p.entries[f.ID].ChildOrder

	common := intersect(localOrder, remoteOrder, cached)
	localMoved := !equalOrder(restrict(localOrder, common), restrict(cached, common))
	remoteMoved := !equalOrder(restrict(remoteOrder, common), restrict(cached, common))

	base := localOrder
	if remoteMoved && !localMoved {
		base = remoteOrder
	}

	target := mergeOrder(base, localOrder)

	if !equalOrder(target, localOrder) {
		if err := e.setOrder(ctx, lo, f.ID, target, false); err != nil {
			return err
		}

		p.stats.Reordered++
	}

	remoteTarget := e.localIDsAsRemote(target)
	remoteCurrent := mappedRemoteChildIDs(remoteF, remoteTarget)

	if !equalOrder(remoteTarget, remoteCurrent) {
		if err := e.setOrder(ctx, ro, remoteF.ID, remoteTarget, true); err != nil {
			return err
		}

		p.stats.Reordered++
	}

	return nil
}

func (e *Engine) setOrder(ctx context.Context, o adapter.Orderer, folderID string, order []string, remote bool) error {
	err := o.SetChildOrder(ctx, folderID, order)
	if err == nil {
		return nil
	}

	if e.unsupported("set child order", err) {
		return nil
	}

	if remote {
		return e.adapterErr("setting remote child order", err)
	}

	return fmt.Errorf("setting local child order: %w", err)
}

// remoteChildIDsAsLocal returns the remote folder's child ids, in
// order, translated to local ids. Unmapped children are skipped.
func (e *Engine) remoteChildIDsAsLocal(f *tree.Folder) []string {
	var ids []string

	for _, child := range f.Children {
		if localID, ok := e.store.ResolveRemote(e.accountID, tree.ID(child)); ok {
			ids = append(ids, localID)
		}
	}

	return ids
}

func (e *Engine) localIDsAsRemote(ids []string) []string {
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if remoteID, ok := e.store.ResolveLocal(e.accountID, id); ok {
			out = append(out, remoteID)
		}
	}

	return out
}

// mappedRemoteChildIDs returns the remote folder's child ids restricted
// to those present in want, preserving the folder's order.
func mappedRemoteChildIDs(f *tree.Folder, want []string) []string {
	set := make(map[string]struct{}, len(want))
	for _, id := range want {
		set[id] = struct{}{}
	}

	var ids []string

	for _, child := range f.Children {
		if _, ok := set[tree.ID(child)]; ok {
			ids = append(ids, tree.ID(child))
		}
	}

	return ids
}

// intersect returns the set of ids present in all given orderings.
func intersect(orders ...[]string) map[string]struct{} {
	counts := make(map[string]int)

	for _, order := range orders {
		for _, id := range order {
			counts[id]++
		}
	}

	out := make(map[string]struct{})

	for id, n := range counts {
		if n == len(orders) {
			out[id] = struct{}{}
		}
	}

	return out
}

func restrict(order []string, set map[string]struct{}) []string {
	var out []string

	for _, id := range order {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}

	return out
}

// mergeOrder arranges the ids of current by the sequence of base; ids
// absent from base keep their current relative position at the end.
func mergeOrder(base, current []string) []string {
	present := make(map[string]struct{}, len(current))
	for _, id := range current {
		present[id] = struct{}{}
	}

	placed := make(map[string]struct{}, len(current))
	out := make([]string, 0, len(current))

	for _, id := range base {
		if _, ok := present[id]; ok {
			out = append(out, id)
			placed[id] = struct{}{}
		}
	}

	for _, id := range current {
		if _, ok := placed[id]; !ok {
			out = append(out, id)
		}
	}

	return out
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
