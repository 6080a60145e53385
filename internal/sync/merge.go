package sync

// Classify computes the three-way diff across the remote snapshot, the local
// database snapshot and the base (ancestor) snapshot from the last successful
// reconciliation. It is a pure function over the three maps: no I/O, no
// locking, and identical inputs always yield identical results.
//
// The "no base" branches deliberately resolve to safe, reviewable outcomes
// (add / unchanged / needs-review) rather than silent overwrite or deletion.
// First contact between two independently maintained stores must never
// destroy data.
func Classify(remote map[EntryIdentity]*RemoteEntry, local map[EntryIdentity]*Entry, base map[EntryIdentity]*BaseState) *MergeOps {
	all := make(map[EntryIdentity]struct{})
	for id := range remote {
		all[id] = struct{}{}
	}
	for id := range local {
		all[id] = struct{}{}
	}
	for id := range base {
		all[id] = struct{}{}
	}

	ops := NewMergeOps()

	for id := range all {
		r, inRemote := remote[id]
		l, inLocal := local[id]
		b, inBase := base[id]

		switch {
		case inRemote && inLocal:
			classifyBoth(ops, id, r, l, b, inBase)

		case inRemote:
			if !inBase {
				// new remote entry
				ops.ToAdd[id] = &MergeOp{Op: OpAdd, Identity: id, Remote: r}
			} else {
				// previously synced, now missing locally, still present remotely
				ops.Conflicts[id] = &MergeOp{Op: OpConflict, Identity: id, Conflict: ConflictDeletedInCloud, Remote: r, Base: b}
			}

		case inLocal:
			if !inBase {
				// local-only entry never synced; leave alone
				ops.Unchanged[id] = struct{}{}
			} else if b.RemoteHash == l.ContentHash {
				// remote removed it; local unmodified since last sync
				ops.ToDelete[id] = &MergeOp{Op: OpDelete, Identity: id, Local: l, Base: b}
			} else {
				// local modified after remote deletion
				ops.Conflicts[id] = &MergeOp{Op: OpConflict, Identity: id, Conflict: ConflictDeletedInGitHub, Local: l, Base: b}
			}

		default:
			// in base only: already reconciled away on both sides
			ops.Cleanups[id] = struct{}{}
		}
	}

	return ops
}

func classifyBoth(ops *MergeOps, id EntryIdentity, r *RemoteEntry, l *Entry, b *BaseState, inBase bool) {
	if r.Hash == l.ContentHash {
		ops.Unchanged[id] = struct{}{}
		return
	}

	if !inBase {
		// first-ever sync contact for this identity; ambiguous who is
		// authoritative, never auto-resolved as a destructive conflict
		ops.NeedsReview[id] = &MergeOp{Op: OpNeedsReview, Identity: id, Conflict: ConflictNeedsReview, Remote: r, Local: l}
		return
	}

	switch {
	case b.RemoteHash == l.ContentHash:
		// remote changed, local did not
		ops.ToApply[id] = &MergeOp{Op: OpApply, Identity: id, Remote: r, Local: l, Base: b}
	case b.RemoteHash == r.Hash:
		// local changed, remote did not; local silently wins, no write required
		ops.Unchanged[id] = struct{}{}
	default:
		ops.Conflicts[id] = &MergeOp{Op: OpConflict, Identity: id, Conflict: ConflictBothModified, Remote: r, Local: l, Base: b}
	}
}
