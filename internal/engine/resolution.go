package engine

// Resolution is the outcome of comparing one mapped node pair's change
// state on both sides since the last sync. The engine performs actions
// based on the resolution; this is a pure decision with no I/O.
type Resolution int

const (
	// ResolutionNone means neither side changed the node.
	ResolutionNone Resolution = iota

	// ResolutionPushLocal means the local change (edit or move) is written
	// to the remote side. When both sides changed, the running pass is
	// authoritative for its local side, which yields last-write-wins
	// across passes: whichever replica syncs later overwrites the edit of
	// a replica that already synced.
	ResolutionPushLocal

	// ResolutionApplyRemote means the remote change is written to the
	// local side.
	ResolutionApplyRemote

	// ResolutionRemoveRemote means the node was removed locally and the
	// removal is propagated to the remote side, overriding any remote
	// edit of the same node.
	ResolutionRemoveRemote

	// ResolutionRemoveLocal means the node was removed remotely and the
	// local copy is clean, so the removal is propagated locally.
	ResolutionRemoveLocal

	// ResolutionRecreateRemote means the node was removed remotely but
	// edited or moved locally since the last sync. The local edit wins
	// and the node's subtree is recreated on the remote side.
	ResolutionRecreateRemote

	// ResolutionUnmap means both sides removed the node; only the mapping
	// entry is dropped.
	ResolutionUnmap
)

// Resolve decides what to do with a mapped pair given each side's
// whole-node change state since the cached mirror. "Changed" covers both
// value edits and structural moves; granularity is the whole node.
func Resolve(localChanged, localRemoved, remoteChanged, remoteRemoved bool) Resolution {
	switch {
	case localRemoved && remoteRemoved:
		return ResolutionUnmap

	case localRemoved:
		// Local deletion propagates, even over a remote edit: the deletion
		// belongs to the pass running now.
		return ResolutionRemoveRemote

	case remoteRemoved:
		if localChanged {
			return ResolutionRecreateRemote
		}

		return ResolutionRemoveLocal

	case localChanged:
		// Covers both the local-only and the both-changed case.
		return ResolutionPushLocal

	case remoteChanged:
		return ResolutionApplyRemote
	}

	return ResolutionNone
}
