package sync

// Strategy controls how conflicts are resolved during a pull.
type Strategy string

const (
	// StrategyPrompt leaves conflicts and needs-review items for persistence
	// and later human resolution. This is the default.
	StrategyPrompt Strategy = "prompt"

	// StrategyGitHub accepts the remote side: every conflict is promoted into
	// a write and the conflict set is cleared.
	StrategyGitHub Strategy = "github"

	// StrategyCloud keeps the local side: conflicts are discarded with no
	// database mutation.
	StrategyCloud Strategy = "cloud"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyPrompt, StrategyGitHub, StrategyCloud:
		return true
	}
	return false
}

// overlay applies the strategy on top of a classification, after Classify and
// before apply. It mutates ops in place and returns the number of conflicts it
// resolved.
func overlay(ops *MergeOps, strategy Strategy) int {
	if strategy == StrategyPrompt {
		return 0
	}

	resolved := 0

	for id, op := range ops.Conflicts {
		resolved++
		delete(ops.Conflicts, id)

		if strategy == StrategyCloud {
			// local wins, nothing to write
			ops.Unchanged[id] = struct{}{}
			continue
		}

		switch op.Conflict {
		case ConflictBothModified:
			ops.ToApply[id] = &MergeOp{Op: OpApply, Identity: id, Remote: op.Remote, Local: op.Local, Base: op.Base}
		case ConflictDeletedInCloud:
			ops.ToAdd[id] = &MergeOp{Op: OpAdd, Identity: id, Remote: op.Remote, Base: op.Base}
		case ConflictDeletedInGitHub:
			ops.ToDelete[id] = &MergeOp{Op: OpDelete, Identity: id, Local: op.Local, Base: op.Base}
		}
	}

	for id, op := range ops.NeedsReview {
		resolved++
		delete(ops.NeedsReview, id)

		if strategy == StrategyCloud {
			ops.Unchanged[id] = struct{}{}
			continue
		}
		ops.ToApply[id] = &MergeOp{Op: OpApply, Identity: id, Remote: op.Remote, Local: op.Local}
	}

	return resolved
}
