package sync

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlocale/openlocale/internal/db"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := db.NewSqliteDb(db.WithMaxOpenConns(1))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func insertRemote(t *testing.T, database *sqlx.DB, projectID string, r *RemoteEntry) {
	t.Helper()
	tx, err := database.Beginx()
	require.NoError(t, err)
	require.NoError(t, insertEntryTx(context.Background(), tx, projectID, r, StatusTranslated, time.Now().UTC()))
	require.NoError(t, tx.Commit())
}

func TestEntryStoreLoadProjectRecomputesHashes(t *testing.T) {
	database := newTestDB(t)
	store, err := NewEntryStore(database)
	require.NoError(t, err)
	ctx := context.Background()

	// a row written with a stale hash still comes back with the contract hash
	stale := &RemoteEntry{
		Identity: id("hello", "de"),
		Value:    "Hallo",
		Comment:  "greeting",
		Hash:     "stale-hash",
	}
	insertRemote(t, database, "p1", stale)

	snapshot, err := store.LoadProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, HashEntry("Hallo", "greeting"), snapshot[id("hello", "de")].ContentHash)
}

func TestEntryStoreLoadProjectPluralGroupHash(t *testing.T) {
	database := newTestDB(t)
	store, err := NewEntryStore(database)
	require.NoError(t, err)
	ctx := context.Background()

	one := EntryIdentity{Key: "items", Language: "de", Plural: PluralOne}
	other := EntryIdentity{Key: "items", Language: "de", Plural: PluralOther}
	insertRemote(t, database, "p1", &RemoteEntry{Identity: one, Value: "%d Stück", Hash: "x", IsPlural: true})
	insertRemote(t, database, "p1", &RemoteEntry{Identity: other, Value: "%d Stücke", Comment: "cart", Hash: "y", IsPlural: true})

	snapshot, err := store.LoadProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	want := HashPluralGroup(map[PluralForm]string{PluralOne: "%d Stück", PluralOther: "%d Stücke"}, "cart")
	assert.Equal(t, want, snapshot[one].ContentHash)
	assert.Equal(t, want, snapshot[other].ContentHash, "all rows of a plural group carry the group hash")
}

func TestUpdateEntryVersionConflict(t *testing.T) {
	database := newTestDB(t)
	_, err := NewEntryStore(database)
	require.NoError(t, err)
	ctx := context.Background()

	r := remoteOf(id("hello", "de"), "Hallo")
	insertRemote(t, database, "p1", r)

	tx, err := database.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = updateEntryTx(ctx, tx, "p1", remoteOf(id("hello", "de"), "neu"), 99, StatusPendingReview, time.Now().UTC())
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestDeleteEntryVersionConflict(t *testing.T) {
	database := newTestDB(t)
	_, err := NewEntryStore(database)
	require.NoError(t, err)
	ctx := context.Background()

	insertRemote(t, database, "p1", remoteOf(id("hello", "de"), "Hallo"))

	tx, err := database.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	err = deleteEntryTx(ctx, tx, "p1", id("hello", "de"), 99)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestEntryStoreGetAbsentIsNil(t *testing.T) {
	database := newTestDB(t)
	store, err := NewEntryStore(database)
	require.NoError(t, err)

	entry, err := store.Get(context.Background(), "p1", id("nope", "de"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}
