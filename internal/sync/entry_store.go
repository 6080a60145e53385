package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const entrySchema = `
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT NOT NULL,
    key TEXT NOT NULL,
    language TEXT NOT NULL,
    plural_form TEXT NOT NULL DEFAULT '',
    value TEXT NOT NULL DEFAULT '',
    comment TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    is_plural INTEGER NOT NULL DEFAULT 0,
    source_plural_text TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'translated',
    updated_at TEXT NOT NULL, -- RFC3339
    version INTEGER NOT NULL DEFAULT 1,
    UNIQUE(project_id, key, language, plural_form)
);

CREATE INDEX IF NOT EXISTS idx_entries_project ON entries(project_id);
CREATE INDEX IF NOT EXISTS idx_entries_key ON entries(project_id, key);
`

// dbEntry is used for scanning from the database where time is stored as TEXT.
type dbEntry struct {
	ID               int64  `db:"id"`
	ProjectID        string `db:"project_id"`
	Key              string `db:"key"`
	Language         string `db:"language"`
	PluralForm       string `db:"plural_form"`
	Value            string `db:"value"`
	Comment          string `db:"comment"`
	ContentHash      string `db:"content_hash"`
	IsPlural         bool   `db:"is_plural"`
	SourcePluralText string `db:"source_plural_text"`
	Status           string `db:"status"`
	UpdatedAt        string `db:"updated_at"`
	Version          int64  `db:"version"`
}

// EntryStore persists translation entries backed by SQLite.
type EntryStore struct {
	db *sqlx.DB
}

func NewEntryStore(db *sqlx.DB) (*EntryStore, error) {
	if _, err := db.Exec(entrySchema); err != nil {
		return nil, fmt.Errorf("initialize entries schema: %w", err)
	}
	return &EntryStore{db: db}, nil
}

// LoadProject returns the full entry snapshot for a project keyed by identity.
// Content hashes are recomputed from the stored values so the merge always
// sees fingerprints consistent with the hashing contract, no matter which
// code path last wrote the row.
func (s *EntryStore) LoadProject(ctx context.Context, projectID string) (map[EntryIdentity]*Entry, error) {
	var rows []dbEntry
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM entries WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("load entries for project %s: %w", projectID, err)
	}

	snapshot := make(map[EntryIdentity]*Entry, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		snapshot[e.Identity()] = e
	}

	stampHashes(snapshot)
	return snapshot, nil
}

// Get returns a single entry or nil when absent.
func (s *EntryStore) Get(ctx context.Context, projectID string, id EntryIdentity) (*Entry, error) {
	return getEntry(ctx, s.db, projectID, id)
}

func (row *dbEntry) toEntry() (*Entry, error) {
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for entry %d: %w", row.ID, err)
	}
	return &Entry{
		ID:               row.ID,
		ProjectID:        row.ProjectID,
		Key:              row.Key,
		Language:         row.Language,
		Plural:           PluralForm(row.PluralForm),
		Value:            row.Value,
		Comment:          row.Comment,
		ContentHash:      row.ContentHash,
		IsPlural:         row.IsPlural,
		SourcePluralText: row.SourcePluralText,
		Status:           row.Status,
		UpdatedAt:        updatedAt,
		Version:          row.Version,
	}, nil
}

// stampHashes recomputes content hashes for a loaded snapshot. Plural groups
// are hashed as one unit: every form row of a (key, language) group carries
// the group hash.
func stampHashes(snapshot map[EntryIdentity]*Entry) {
	type groupKey struct {
		key, language string
	}
	groups := make(map[groupKey][]*Entry)

	for _, e := range snapshot {
		if e.IsPlural {
			gk := groupKey{e.Key, e.Language}
			groups[gk] = append(groups[gk], e)
			continue
		}
		e.ContentHash = HashEntry(e.Value, e.Comment)
	}

	for _, members := range groups {
		forms := make(map[PluralForm]string, len(members))
		for _, e := range members {
			forms[e.Plural] = e.Value
		}
		hash := HashPluralGroup(forms, groupComment(members))
		for _, e := range members {
			e.ContentHash = hash
		}
	}
}

// groupComment picks the comment shared by a plural group: the "other" form
// wins, then the first non-empty comment in canonical order.
func groupComment(members []*Entry) string {
	byForm := make(map[PluralForm]*Entry, len(members))
	for _, e := range members {
		byForm[e.Plural] = e
	}
	if other, ok := byForm[PluralOther]; ok && other.Comment != "" {
		return other.Comment
	}
	for _, form := range pluralOrder {
		if e, ok := byForm[form]; ok && e.Comment != "" {
			return e.Comment
		}
	}
	return ""
}

// groupEntriesTx returns every stored form row of one plural group.
func groupEntriesTx(ctx context.Context, tx *sqlx.Tx, projectID, key, language string) ([]*Entry, error) {
	var rows []dbEntry
	err := tx.SelectContext(ctx, &rows, `
		SELECT * FROM entries
		WHERE project_id = ? AND key = ? AND language = ? AND is_plural = 1`,
		projectID, key, language)
	if err != nil {
		return nil, fmt.Errorf("load entry group %s/%s: %w", key, language, err)
	}

	members := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		members = append(members, e)
	}
	return members, nil
}

// restampGroupTx recomputes the shared group fingerprint from the stored rows
// and writes it back to every form of the group. The restamp is not a content
// change, so the version counter stays put.
func restampGroupTx(ctx context.Context, tx *sqlx.Tx, projectID, key, language string) error {
	members, err := groupEntriesTx(ctx, tx, projectID, key, language)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	forms := make(map[PluralForm]string, len(members))
	for _, e := range members {
		forms[e.Plural] = e.Value
	}
	hash := HashPluralGroup(forms, groupComment(members))

	_, err = tx.ExecContext(ctx, `
		UPDATE entries SET content_hash = ?
		WHERE project_id = ? AND key = ? AND language = ? AND is_plural = 1`,
		hash, projectID, key, language)
	if err != nil {
		return fmt.Errorf("restamp entry group %s/%s: %w", key, language, err)
	}
	return nil
}

func getEntry(ctx context.Context, q sqlx.QueryerContext, projectID string, id EntryIdentity) (*Entry, error) {
	var row dbEntry
	err := sqlx.GetContext(ctx, q, &row,
		"SELECT * FROM entries WHERE project_id = ? AND key = ? AND language = ? AND plural_form = ?",
		projectID, id.Key, id.Language, string(id.Plural))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry %v: %w", id, err)
	}
	return row.toEntry()
}

func insertEntryTx(ctx context.Context, tx *sqlx.Tx, projectID string, r *RemoteEntry, status string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entries (project_id, key, language, plural_form, value, comment, content_hash,
		                     is_plural, source_plural_text, status, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		projectID, r.Identity.Key, r.Identity.Language, string(r.Identity.Plural),
		r.Value, r.Comment, r.Hash, r.IsPlural, r.SourcePluralText, status, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert entry %v: %w", r.Identity, err)
	}
	return nil
}

// updateEntryTx writes remote content over an existing row, guarded by the
// optimistic-lock version counter. A version-mismatched row rejects the write.
func updateEntryTx(ctx context.Context, tx *sqlx.Tx, projectID string, r *RemoteEntry, prevVersion int64, status string, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE entries
		SET value = ?, comment = ?, content_hash = ?, is_plural = ?, source_plural_text = ?,
		    status = ?, updated_at = ?, version = version + 1
		WHERE project_id = ? AND key = ? AND language = ? AND plural_form = ? AND version = ?`,
		r.Value, r.Comment, r.Hash, r.IsPlural, r.SourcePluralText, status, now.Format(time.RFC3339),
		projectID, r.Identity.Key, r.Identity.Language, string(r.Identity.Plural), prevVersion)
	if err != nil {
		return fmt.Errorf("update entry %v: %w", r.Identity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry %v: %w", r.Identity, err)
	}
	if n == 0 {
		return fmt.Errorf("update entry %v: %w", r.Identity, ErrVersionConflict)
	}
	return nil
}

// deleteEntryTx removes exactly the targeted (key, language, plural_form) row,
// never sibling rows of the same key.
func deleteEntryTx(ctx context.Context, tx *sqlx.Tx, projectID string, id EntryIdentity, prevVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		DELETE FROM entries
		WHERE project_id = ? AND key = ? AND language = ? AND plural_form = ? AND version = ?`,
		projectID, id.Key, id.Language, string(id.Plural), prevVersion)
	if err != nil {
		return fmt.Errorf("delete entry %v: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry %v: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete entry %v: %w", id, ErrVersionConflict)
	}
	return nil
}
