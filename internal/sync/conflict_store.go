package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const conflictSchema = `
CREATE TABLE IF NOT EXISTS pending_conflicts (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    key TEXT NOT NULL,
    language TEXT NOT NULL,
    plural_form TEXT NOT NULL DEFAULT '',
    conflict_type TEXT NOT NULL,
    remote_value TEXT NOT NULL DEFAULT '',
    remote_comment TEXT NOT NULL DEFAULT '',
    local_value TEXT NOT NULL DEFAULT '',
    local_modified_at TEXT NOT NULL DEFAULT '', -- RFC3339, empty when entry is absent
    is_plural INTEGER NOT NULL DEFAULT 0,
    source_plural_text TEXT NOT NULL DEFAULT '',
    remote_commit_sha TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL, -- RFC3339
    UNIQUE(project_id, key, language, plural_form)
);

CREATE INDEX IF NOT EXISTS idx_conflicts_project ON pending_conflicts(project_id);
`

type dbConflict struct {
	ID              string `db:"id"`
	ProjectID       string `db:"project_id"`
	Key             string `db:"key"`
	Language        string `db:"language"`
	PluralForm      string `db:"plural_form"`
	ConflictType    string `db:"conflict_type"`
	RemoteValue     string `db:"remote_value"`
	RemoteComment   string `db:"remote_comment"`
	LocalValue       string `db:"local_value"`
	LocalModifiedAt  string `db:"local_modified_at"`
	IsPlural         bool   `db:"is_plural"`
	SourcePluralText string `db:"source_plural_text"`
	RemoteCommitSHA  string `db:"remote_commit_sha"`
	CreatedAt        string `db:"created_at"`
}

// ConflictStore persists the unresolved conflict set for a project. The set is
// replaced wholesale on each pull, never extended across pulls, so stale
// resolutions are naturally void.
type ConflictStore struct {
	db *sqlx.DB
}

func NewConflictStore(db *sqlx.DB) (*ConflictStore, error) {
	if _, err := db.Exec(conflictSchema); err != nil {
		return nil, fmt.Errorf("initialize pending conflicts schema: %w", err)
	}
	return &ConflictStore{db: db}, nil
}

// List returns the current conflict set for a project.
func (s *ConflictStore) List(ctx context.Context, projectID string) ([]*PendingConflict, error) {
	var rows []dbConflict
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM pending_conflicts WHERE project_id = ? ORDER BY key, language, plural_form", projectID)
	if err != nil {
		return nil, fmt.Errorf("list conflicts for project %s: %w", projectID, err)
	}

	conflicts := make([]*PendingConflict, 0, len(rows))
	for _, row := range rows {
		c, err := row.toConflict()
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

// Summary aggregates the conflict set for a project by type.
func (s *ConflictStore) Summary(ctx context.Context, projectID string) (*ConflictSummary, error) {
	conflicts, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byType := make(map[ConflictType]int)
	for _, c := range conflicts {
		byType[c.Type]++
	}
	return &ConflictSummary{
		ProjectID: projectID,
		Total:     len(conflicts),
		ByType:    byType,
		Conflicts: conflicts,
	}, nil
}

func (row *dbConflict) toConflict() (*PendingConflict, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for conflict %s: %w", row.ID, err)
	}
	var localModifiedAt time.Time
	if row.LocalModifiedAt != "" {
		localModifiedAt, err = time.Parse(time.RFC3339, row.LocalModifiedAt)
		if err != nil {
			return nil, fmt.Errorf("parse local_modified_at for conflict %s: %w", row.ID, err)
		}
	}
	return &PendingConflict{
		ID:        row.ID,
		ProjectID: row.ProjectID,
		Identity: EntryIdentity{
			Key:      row.Key,
			Language: row.Language,
			Plural:   PluralForm(row.PluralForm),
		},
		Type:             ConflictType(row.ConflictType),
		RemoteValue:      row.RemoteValue,
		RemoteComment:    row.RemoteComment,
		LocalValue:       row.LocalValue,
		LocalModifiedAt:  localModifiedAt,
		IsPlural:         row.IsPlural,
		SourcePluralText: row.SourcePluralText,
		RemoteCommitSHA:  row.RemoteCommitSHA,
		CreatedAt:        createdAt,
	}, nil
}

// replaceConflictsTx clears and rewrites the full conflict set for a project.
func replaceConflictsTx(ctx context.Context, tx *sqlx.Tx, projectID string, conflicts []*PendingConflict) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_conflicts WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("clear conflicts for project %s: %w", projectID, err)
	}

	for _, c := range conflicts {
		localModifiedAt := ""
		if !c.LocalModifiedAt.IsZero() {
			localModifiedAt = c.LocalModifiedAt.Format(time.RFC3339)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending_conflicts (id, project_id, key, language, plural_form, conflict_type,
			                               remote_value, remote_comment, local_value, local_modified_at,
			                               is_plural, source_plural_text, remote_commit_sha, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProjectID, c.Identity.Key, c.Identity.Language, string(c.Identity.Plural),
			string(c.Type), c.RemoteValue, c.RemoteComment, c.LocalValue, localModifiedAt,
			c.IsPlural, c.SourcePluralText, c.RemoteCommitSHA, c.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert conflict %v: %w", c.Identity, err)
		}
	}
	return nil
}

// getConflictTx returns one conflict by record ID, or nil when the ID is not
// part of the current conflict set (stale resolutions resolve to nil).
func getConflictTx(ctx context.Context, tx *sqlx.Tx, projectID, conflictID string) (*PendingConflict, error) {
	var row dbConflict
	err := sqlx.GetContext(ctx, tx, &row,
		"SELECT * FROM pending_conflicts WHERE project_id = ? AND id = ?", projectID, conflictID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conflict %s: %w", conflictID, err)
	}
	return row.toConflict()
}

// groupConflictsTx returns every pending conflict of one plural group. Forms
// of a group share the group fingerprint, so resolutions operate on all of
// them together.
func groupConflictsTx(ctx context.Context, tx *sqlx.Tx, projectID, key, language string) ([]*PendingConflict, error) {
	var rows []dbConflict
	err := tx.SelectContext(ctx, &rows, `
		SELECT * FROM pending_conflicts
		WHERE project_id = ? AND key = ? AND language = ? AND is_plural = 1
		ORDER BY plural_form`,
		projectID, key, language)
	if err != nil {
		return nil, fmt.Errorf("load conflict group %s/%s: %w", key, language, err)
	}

	group := make([]*PendingConflict, 0, len(rows))
	for _, row := range rows {
		c, err := row.toConflict()
		if err != nil {
			return nil, err
		}
		group = append(group, c)
	}
	return group, nil
}

func deleteConflictTx(ctx context.Context, tx *sqlx.Tx, conflictID string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_conflicts WHERE id = ?", conflictID); err != nil {
		return fmt.Errorf("delete conflict %s: %w", conflictID, err)
	}
	return nil
}
