package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOf(projectID, key string, typ ConflictType) *PendingConflict {
	return &PendingConflict{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Identity:  id(key, "de"),
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
}

func replaceAll(t *testing.T, store *ConflictStore, projectID string, conflicts []*PendingConflict) {
	t.Helper()
	tx, err := store.db.Beginx()
	require.NoError(t, err)
	require.NoError(t, replaceConflictsTx(context.Background(), tx, projectID, conflicts))
	require.NoError(t, tx.Commit())
}

func TestConflictStoreReplaceAll(t *testing.T) {
	database := newTestDB(t)
	store, err := NewConflictStore(database)
	require.NoError(t, err)
	ctx := context.Background()

	first := []*PendingConflict{
		pendingOf("p1", "a", ConflictBothModified),
		pendingOf("p1", "b", ConflictDeletedInGitHub),
	}
	replaceAll(t, store, "p1", first)

	conflicts, err := store.List(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, conflicts, 2)

	// a fresh pull supersedes the previous set wholesale
	second := []*PendingConflict{
		pendingOf("p1", "c", ConflictDeletedInCloud),
	}
	replaceAll(t, store, "p1", second)

	conflicts, err = store.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c", conflicts[0].Identity.Key)

	// the superseded IDs are gone
	tx, err := database.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()
	stale, err := getConflictTx(ctx, tx, "p1", first[0].ID)
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestConflictStoreReplaceAllIsScopedToProject(t *testing.T) {
	database := newTestDB(t)
	store, err := NewConflictStore(database)
	require.NoError(t, err)
	ctx := context.Background()

	replaceAll(t, store, "p1", []*PendingConflict{pendingOf("p1", "a", ConflictBothModified)})
	replaceAll(t, store, "p2", []*PendingConflict{pendingOf("p2", "b", ConflictBothModified)})

	// clearing p1 must not touch p2
	replaceAll(t, store, "p1", nil)

	p1, err := store.List(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, p1)

	p2, err := store.List(ctx, "p2")
	require.NoError(t, err)
	assert.Len(t, p2, 1)
}

func TestConflictStorePluralContextRoundTrip(t *testing.T) {
	database := newTestDB(t)
	store, err := NewConflictStore(database)
	require.NoError(t, err)

	c := pendingOf("p1", "cart.items", ConflictBothModified)
	c.Identity.Plural = PluralOther
	c.IsPlural = true
	c.SourcePluralText = "%d items"
	replaceAll(t, store, "p1", []*PendingConflict{c})

	conflicts, err := store.List(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, PluralOther, conflicts[0].Identity.Plural)
	assert.True(t, conflicts[0].IsPlural)
	assert.Equal(t, "%d items", conflicts[0].SourcePluralText)
}

func TestConflictStoreSummary(t *testing.T) {
	database := newTestDB(t)
	store, err := NewConflictStore(database)
	require.NoError(t, err)

	replaceAll(t, store, "p1", []*PendingConflict{
		pendingOf("p1", "a", ConflictBothModified),
		pendingOf("p1", "b", ConflictBothModified),
		pendingOf("p1", "c", ConflictNeedsReview),
	})

	summary, err := store.Summary(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByType[ConflictBothModified])
	assert.Equal(t, 1, summary.ByType[ConflictNeedsReview])
}
