package sync

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ApplyResult reports the mutations committed by one apply transaction.
type ApplyResult struct {
	Applied  int `json:"applied"`
	Added    int `json:"added"`
	Deleted  int `json:"deleted"`
	Resolved int `json:"resolved,omitempty"`
	Skipped  int `json:"skipped,omitempty"`
}

// ApplyEngine materializes merge outcomes into the database. All mutations for
// a pull run inside one transaction: entry writes, entry deletes, ancestor
// advancement and conflict persistence commit together or not at all.
type ApplyEngine struct {
	db *sqlx.DB
}

func NewApplyEngine(db *sqlx.DB) *ApplyEngine {
	return &ApplyEngine{db: db}
}

// Apply executes the classified mutation set for one project. On any failure
// the entire transaction rolls back and the ancestor state is left untouched,
// since it must only ever describe content that has actually landed.
func (a *ApplyEngine) Apply(ctx context.Context, projectID string, ops *MergeOps, remote map[EntryIdentity]*RemoteEntry, commitSHA string, conflicts []*PendingConflict) (*ApplyResult, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, &ApplyError{Op: "begin", Err: err}
	}

	result, err := a.applyTx(ctx, tx, projectID, ops, remote, commitSHA, conflicts)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &ApplyError{Op: "commit", Err: err}
	}
	return result, nil
}

func (a *ApplyEngine) applyTx(ctx context.Context, tx *sqlx.Tx, projectID string, ops *MergeOps, remote map[EntryIdentity]*RemoteEntry, commitSHA string, conflicts []*PendingConflict) (*ApplyResult, error) {
	now := time.Now().UTC()
	result := &ApplyResult{}

	for _, op := range ops.ToApply {
		prevVersion := int64(0)
		if op.Local != nil {
			prevVersion = op.Local.Version
		}
		if err := updateEntryTx(ctx, tx, projectID, op.Remote, prevVersion, StatusPendingReview, now); err != nil {
			return nil, &ApplyError{Op: "update", Err: err}
		}
		result.Applied++
	}

	for _, op := range ops.ToAdd {
		if err := insertEntryTx(ctx, tx, projectID, op.Remote, StatusPendingReview, now); err != nil {
			return nil, &ApplyError{Op: "insert", Err: err}
		}
		result.Added++
	}

	for id, op := range ops.ToDelete {
		prevVersion := int64(0)
		if op.Local != nil {
			prevVersion = op.Local.Version
		}
		if err := deleteEntryTx(ctx, tx, projectID, id, prevVersion); err != nil {
			return nil, &ApplyError{Op: "delete", Err: err}
		}
		if err := deleteStateTx(ctx, tx, projectID, id); err != nil {
			return nil, &ApplyError{Op: "delete-state", Err: err}
		}
		result.Deleted++
	}

	// ancestor records whose identity is gone on both sides
	for id := range ops.Cleanups {
		if err := deleteStateTx(ctx, tx, projectID, id); err != nil {
			return nil, &ApplyError{Op: "cleanup", Err: err}
		}
	}

	// Advance the ancestor for every identity seen in the remote parse, so the
	// next merge has a correct base for currently-untouched entries. Identities
	// still in conflict are excluded: their remote content did not land, and
	// the ancestor must never run ahead of the database.
	for id, r := range remote {
		if _, ok := ops.Conflicts[id]; ok {
			continue
		}
		if _, ok := ops.NeedsReview[id]; ok {
			continue
		}
		if err := advanceStateTx(ctx, tx, projectID, id, r.Hash, r.Value, r.Comment, commitSHA, now); err != nil {
			return nil, &ApplyError{Op: "advance", Err: err}
		}
	}

	if err := replaceConflictsTx(ctx, tx, projectID, conflicts); err != nil {
		return nil, &ApplyError{Op: "conflicts", Err: err}
	}

	return result, nil
}
