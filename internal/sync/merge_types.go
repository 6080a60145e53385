package sync

// OpType labels the outcome of classifying one identity.
type OpType string

const (
	OpApply       OpType = "apply"        // remote changed, local did not; write remote content
	OpAdd         OpType = "add"          // new remote entry
	OpDelete      OpType = "delete"       // remote removed it; local unmodified since last sync
	OpConflict    OpType = "conflict"     // both sides diverged from the ancestor
	OpNeedsReview OpType = "needs_review" // first-ever sync contact, authority ambiguous
)

// MergeOp is the classified outcome for one identity, carrying the three
// snapshots that produced it.
type MergeOp struct {
	Op       OpType
	Identity EntryIdentity
	Conflict ConflictType
	Remote   *RemoteEntry
	Local    *Entry
	Base     *BaseState
}

// BatchApply holds identities whose remote content must be written locally.
type BatchApply map[EntryIdentity]*MergeOp

// BatchAdd holds identities new on the remote side.
type BatchAdd map[EntryIdentity]*MergeOp

// BatchDelete holds identities removed remotely and unmodified locally.
type BatchDelete map[EntryIdentity]*MergeOp

// BatchConflict holds identities where both sides diverged from the ancestor.
type BatchConflict map[EntryIdentity]*MergeOp

// BatchNeedsReview holds identities seen on both sides with no recorded ancestor.
type BatchNeedsReview map[EntryIdentity]*MergeOp

// BatchUnchanged is the set of identities requiring no write.
type BatchUnchanged map[EntryIdentity]struct{}

// BatchCleanup is the set of ancestor records whose identity is gone on both sides.
type BatchCleanup map[EntryIdentity]struct{}

// MergeOps partitions every identity of the three snapshots into exactly one
// outcome.
type MergeOps struct {
	ToApply     BatchApply
	ToAdd       BatchAdd
	ToDelete    BatchDelete
	Conflicts   BatchConflict
	NeedsReview BatchNeedsReview
	Unchanged   BatchUnchanged
	Cleanups    BatchCleanup
}

// NewMergeOps initializes and returns an empty MergeOps struct.
func NewMergeOps() *MergeOps {
	return &MergeOps{
		ToApply:     make(BatchApply),
		ToAdd:       make(BatchAdd),
		ToDelete:    make(BatchDelete),
		Conflicts:   make(BatchConflict),
		NeedsReview: make(BatchNeedsReview),
		Unchanged:   make(BatchUnchanged),
		Cleanups:    make(BatchCleanup),
	}
}

// HasChanges returns true if any write, delete, conflict or cleanup resulted
// from the classification.
func (m *MergeOps) HasChanges() bool {
	return len(m.ToApply) > 0 ||
		len(m.ToAdd) > 0 ||
		len(m.ToDelete) > 0 ||
		len(m.Conflicts) > 0 ||
		len(m.NeedsReview) > 0 ||
		len(m.Cleanups) > 0
}
