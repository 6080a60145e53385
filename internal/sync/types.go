package sync

import (
	"context"
	"time"
)

// Entry status values. Entries written by a pull are marked pending review so
// translators can tell them apart from manual edits.
const (
	StatusTranslated    = "translated"
	StatusPendingReview = "pending_review"
)

// PluralForm is a CLDR plural category. The empty form marks a non-plural entry.
type PluralForm string

const (
	PluralNone  PluralForm = ""
	PluralZero  PluralForm = "zero"
	PluralOne   PluralForm = "one"
	PluralTwo   PluralForm = "two"
	PluralFew   PluralForm = "few"
	PluralMany  PluralForm = "many"
	PluralOther PluralForm = "other"
)

// pluralOrder is the canonical ordering used when hashing a plural group.
var pluralOrder = [...]PluralForm{PluralZero, PluralOne, PluralTwo, PluralFew, PluralMany, PluralOther}

func ValidPluralForm(s string) bool {
	switch PluralForm(s) {
	case PluralNone, PluralZero, PluralOne, PluralTwo, PluralFew, PluralMany, PluralOther:
		return true
	}
	return false
}

// EntryIdentity uniquely identifies one translatable unit within a project.
type EntryIdentity struct {
	Key      string     `json:"key"`
	Language string     `json:"language"`
	Plural   PluralForm `json:"pluralForm,omitempty"`
}

// Entry is one translatable unit stored in the cloud database.
type Entry struct {
	ID               int64
	ProjectID        string
	Key              string
	Language         string
	Plural           PluralForm
	Value            string
	Comment          string
	ContentHash      string
	IsPlural         bool
	SourcePluralText string
	Status           string
	UpdatedAt        time.Time
	Version          int64
}

func (e *Entry) Identity() EntryIdentity {
	return EntryIdentity{Key: e.Key, Language: e.Language, Plural: e.Plural}
}

// RemoteEntry is one translatable unit parsed from a remote file, pre-stamped
// with its content hash. For plural groups every form carries the group hash.
type RemoteEntry struct {
	Identity         EntryIdentity
	Value            string
	Comment          string
	Hash             string
	IsPlural         bool
	SourcePluralText string
}

// BaseState is the last remote snapshot successfully reconciled for one
// identity. It is the ancestor of the three-way merge.
type BaseState struct {
	Identity        EntryIdentity
	RemoteHash      string
	RemoteValue     string
	RemoteComment   string
	RemoteCommitSHA string
	SyncedAt        time.Time
	Version         int64
}

// ConflictType classifies an unresolved merge outcome.
type ConflictType string

const (
	ConflictBothModified    ConflictType = "both_modified"
	ConflictDeletedInCloud  ConflictType = "deleted_in_cloud"
	ConflictDeletedInGitHub ConflictType = "deleted_in_github"
	ConflictNeedsReview     ConflictType = "needs_review"
)

// PendingConflict is one unresolved identity awaiting human resolution.
// Plural-group forms carry their group context so a resolution can restore
// the shared group fingerprint.
type PendingConflict struct {
	ID               string       `json:"id"`
	ProjectID        string       `json:"projectId"`
	Identity         EntryIdentity `json:"identity"`
	Type             ConflictType `json:"type"`
	RemoteValue      string       `json:"remoteValue"`
	RemoteComment    string       `json:"remoteComment,omitempty"`
	LocalValue       string       `json:"localValue"`
	LocalModifiedAt  time.Time    `json:"localModifiedAt"`
	IsPlural         bool         `json:"isPlural,omitempty"`
	SourcePluralText string       `json:"sourcePluralText,omitempty"`
	RemoteCommitSHA  string       `json:"remoteCommitSha"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// ConflictSummary is the response shape for listing a project's conflict set.
type ConflictSummary struct {
	ProjectID string             `json:"projectId"`
	Total     int                `json:"total"`
	ByType    map[ConflictType]int `json:"byType"`
	Conflicts []*PendingConflict `json:"conflicts"`
}

// Project holds the GitHub linkage for one translation project.
type Project struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Format          string    `json:"format"`
	DefaultLanguage string    `json:"defaultLanguage"`
	Owner           string    `json:"owner"`
	Repo            string    `json:"repo"`
	Branch          string    `json:"branch"`
	Path            string    `json:"path,omitempty"`
	Globs           []string  `json:"globs,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RemoteFile is one file fetched from the remote repository.
type RemoteFile struct {
	Path    string
	SHA     string
	Content []byte
}

// RemoteTree is a consistent snapshot of the remote file set at one commit.
// The whole tree is gathered before any classification begins.
type RemoteTree struct {
	CommitSHA string
	Files     []RemoteFile
}

// RemoteSource locates the translation files inside a remote repository.
type RemoteSource struct {
	Owner  string
	Repo   string
	Branch string
	Path   string
	Globs  []string
}

// RemoteFetcher fetches the complete remote file set for a source.
type RemoteFetcher interface {
	FetchTree(ctx context.Context, src RemoteSource) (*RemoteTree, error)
}

// ParseFileError reports a single malformed remote file. Parse failures are
// isolated per file and never abort the pull.
type ParseFileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// FileParser turns remote files into entries keyed by identity, each entry
// pre-stamped with its content hash.
type FileParser interface {
	Format() string
	Parse(files []RemoteFile, defaultLanguage string) (map[EntryIdentity]*RemoteEntry, []ParseFileError)
}

// ParserRegistry resolves a FileParser by format name.
type ParserRegistry interface {
	Get(format string) (FileParser, bool)
}

// SnapshotStore archives the fetched remote file set after a successful pull.
type SnapshotStore interface {
	Save(ctx context.Context, projectID string, tree *RemoteTree) error
}
