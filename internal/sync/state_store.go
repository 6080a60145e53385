package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS base_sync_state (
    project_id TEXT NOT NULL,
    key TEXT NOT NULL,
    language TEXT NOT NULL,
    plural_form TEXT NOT NULL DEFAULT '',
    remote_hash TEXT NOT NULL,
    remote_value TEXT NOT NULL DEFAULT '',
    remote_comment TEXT NOT NULL DEFAULT '',
    remote_commit_sha TEXT NOT NULL DEFAULT '',
    synced_at TEXT NOT NULL, -- RFC3339
    version INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY(project_id, key, language, plural_form)
);

CREATE INDEX IF NOT EXISTS idx_base_state_project ON base_sync_state(project_id);
`

type dbBaseState struct {
	ProjectID       string `db:"project_id"`
	Key             string `db:"key"`
	Language        string `db:"language"`
	PluralForm      string `db:"plural_form"`
	RemoteHash      string `db:"remote_hash"`
	RemoteValue     string `db:"remote_value"`
	RemoteComment   string `db:"remote_comment"`
	RemoteCommitSHA string `db:"remote_commit_sha"`
	SyncedAt        string `db:"synced_at"`
	Version         int64  `db:"version"`
}

// StateStore persists the last known common ancestor per identity. Rows are
// only ever written inside the apply transaction, after the content they
// describe has actually been committed.
type StateStore struct {
	db *sqlx.DB
}

func NewStateStore(db *sqlx.DB) (*StateStore, error) {
	if _, err := db.Exec(stateSchema); err != nil {
		return nil, fmt.Errorf("initialize base sync state schema: %w", err)
	}
	return &StateStore{db: db}, nil
}

// LoadProject returns the full ancestor snapshot for a project keyed by identity.
func (s *StateStore) LoadProject(ctx context.Context, projectID string) (map[EntryIdentity]*BaseState, error) {
	var rows []dbBaseState
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM base_sync_state WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("load base state for project %s: %w", projectID, err)
	}

	snapshot := make(map[EntryIdentity]*BaseState, len(rows))
	for _, row := range rows {
		st, err := row.toState()
		if err != nil {
			return nil, err
		}
		snapshot[st.Identity] = st
	}
	return snapshot, nil
}

func (row *dbBaseState) toState() (*BaseState, error) {
	syncedAt, err := time.Parse(time.RFC3339, row.SyncedAt)
	if err != nil {
		return nil, fmt.Errorf("parse synced_at for %s/%s: %w", row.Key, row.Language, err)
	}
	id := EntryIdentity{Key: row.Key, Language: row.Language, Plural: PluralForm(row.PluralForm)}
	return &BaseState{
		Identity:        id,
		RemoteHash:      row.RemoteHash,
		RemoteValue:     row.RemoteValue,
		RemoteComment:   row.RemoteComment,
		RemoteCommitSHA: row.RemoteCommitSHA,
		SyncedAt:        syncedAt,
		Version:         row.Version,
	}, nil
}

// Count returns the number of ancestor records for a project.
func (s *StateStore) Count(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM base_sync_state WHERE project_id = ?", projectID)
	if err != nil {
		return 0, fmt.Errorf("count base state: %w", err)
	}
	return count, nil
}

// advanceStateTx records the remote snapshot for one identity as the new
// ancestor, inside the apply transaction.
func advanceStateTx(ctx context.Context, tx *sqlx.Tx, projectID string, id EntryIdentity, hash, value, comment, commitSHA string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO base_sync_state (project_id, key, language, plural_form, remote_hash,
		                             remote_value, remote_comment, remote_commit_sha, synced_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(project_id, key, language, plural_form) DO UPDATE SET
		    remote_hash = excluded.remote_hash,
		    remote_value = excluded.remote_value,
		    remote_comment = excluded.remote_comment,
		    remote_commit_sha = excluded.remote_commit_sha,
		    synced_at = excluded.synced_at,
		    version = base_sync_state.version + 1`,
		projectID, id.Key, id.Language, string(id.Plural),
		hash, value, comment, commitSHA, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("advance base state %v: %w", id, err)
	}
	return nil
}

// groupStatesTx returns the ancestor rows of one plural group.
func groupStatesTx(ctx context.Context, tx *sqlx.Tx, projectID, key, language string) ([]*BaseState, error) {
	var rows []dbBaseState
	err := tx.SelectContext(ctx, &rows, `
		SELECT * FROM base_sync_state
		WHERE project_id = ? AND key = ? AND language = ? AND plural_form != ''`,
		projectID, key, language)
	if err != nil {
		return nil, fmt.Errorf("load base state group %s/%s: %w", key, language, err)
	}

	states := make([]*BaseState, 0, len(rows))
	for _, row := range rows {
		st, err := row.toState()
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

func deleteStateTx(ctx context.Context, tx *sqlx.Tx, projectID string, id EntryIdentity) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM base_sync_state
		WHERE project_id = ? AND key = ? AND language = ? AND plural_form = ?`,
		projectID, id.Key, id.Language, string(id.Plural))
	if err != nil {
		return fmt.Errorf("delete base state %v: %w", id, err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
