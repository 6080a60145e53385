package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategyValid(t *testing.T) {
	assert.True(t, StrategyPrompt.Valid())
	assert.True(t, StrategyGitHub.Valid())
	assert.True(t, StrategyCloud.Valid())
	assert.False(t, Strategy("").Valid())
	assert.False(t, Strategy("yolo").Valid())
}

func conflictedOps(t *testing.T) *MergeOps {
	t.Helper()

	both := id("both", "de")
	delCloud := id("del-cloud", "de")
	delGitHub := id("del-github", "de")
	review := id("review", "de")

	remote := map[EntryIdentity]*RemoteEntry{
		both:     remoteOf(both, "remote"),
		delCloud: remoteOf(delCloud, "remote"),
		review:   remoteOf(review, "remote"),
	}
	local := map[EntryIdentity]*Entry{
		both:      localOf(both, "local"),
		delGitHub: localOf(delGitHub, "local"),
		review:    localOf(review, "local"),
	}
	base := map[EntryIdentity]*BaseState{
		both:      baseOf(both, "ancestor"),
		delCloud:  baseOf(delCloud, "ancestor"),
		delGitHub: baseOf(delGitHub, "ancestor"),
	}

	ops := Classify(remote, local, base)
	require.Len(t, ops.Conflicts, 3)
	require.Len(t, ops.NeedsReview, 1)
	return ops
}

func TestOverlayPromptKeepsConflicts(t *testing.T) {
	ops := conflictedOps(t)
	resolved := overlay(ops, StrategyPrompt)

	assert.Zero(t, resolved)
	assert.Len(t, ops.Conflicts, 3)
	assert.Len(t, ops.NeedsReview, 1)
}

func TestOverlayGitHubAcceptsRemote(t *testing.T) {
	ops := conflictedOps(t)
	resolved := overlay(ops, StrategyGitHub)

	assert.Equal(t, 4, resolved)
	assert.Empty(t, ops.Conflicts)
	assert.Empty(t, ops.NeedsReview)

	// both_modified and needs_review become writes, deleted_in_cloud becomes
	// an add, deleted_in_github becomes a delete
	assert.Contains(t, ops.ToApply, id("both", "de"))
	assert.Contains(t, ops.ToApply, id("review", "de"))
	assert.Contains(t, ops.ToAdd, id("del-cloud", "de"))
	assert.Contains(t, ops.ToDelete, id("del-github", "de"))
}

func TestOverlayCloudKeepsLocal(t *testing.T) {
	ops := conflictedOps(t)
	resolved := overlay(ops, StrategyCloud)

	assert.Equal(t, 4, resolved)
	assert.Empty(t, ops.Conflicts)
	assert.Empty(t, ops.NeedsReview)
	assert.Empty(t, ops.ToApply)
	assert.Empty(t, ops.ToAdd)
	assert.Empty(t, ops.ToDelete)

	assert.Contains(t, ops.Unchanged, id("both", "de"))
	assert.Contains(t, ops.Unchanged, id("del-cloud", "de"))
	assert.Contains(t, ops.Unchanged, id("del-github", "de"))
	assert.Contains(t, ops.Unchanged, id("review", "de"))
}

func TestOverlayLeavesCleanClassificationAlone(t *testing.T) {
	hello := id("hello", "de")
	remote := map[EntryIdentity]*RemoteEntry{hello: remoteOf(hello, "Hallo Welt")}
	local := map[EntryIdentity]*Entry{hello: localOf(hello, "Hallo")}
	base := map[EntryIdentity]*BaseState{hello: baseOf(hello, "Hallo")}

	ops := Classify(remote, local, base)
	resolved := overlay(ops, StrategyGitHub)

	assert.Zero(t, resolved)
	assert.Contains(t, ops.ToApply, hello)
}
