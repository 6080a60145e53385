package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrInvalidResolution signals an unknown resolution kind.
var ErrInvalidResolution = errors.New("invalid conflict resolution")

// ResolutionKind selects how one pending conflict is resolved.
type ResolutionKind string

const (
	ResolveAcceptRemote ResolutionKind = "accept_remote"
	ResolveAcceptLocal  ResolutionKind = "accept_local"
	ResolveEdit         ResolutionKind = "edit"
	ResolveSkip         ResolutionKind = "skip"
)

// Resolution is one human decision on a pending conflict.
type Resolution struct {
	ConflictID string         `json:"conflictId"`
	Kind       ResolutionKind `json:"kind"`
	Value      string         `json:"value,omitempty"`
}

// MergeResult is the outcome of a preview or a pull. Conflicts and
// needs-review items are first-class successful results, not errors.
type MergeResult struct {
	ProjectID    string             `json:"projectId"`
	CommitSHA    string             `json:"commitSha"`
	Strategy     Strategy           `json:"strategy"`
	Preview      bool               `json:"preview"`
	ToApply      int                `json:"toApply"`
	ToAdd        int                `json:"toAdd"`
	ToDelete     int                `json:"toDelete"`
	Unchanged    int                `json:"unchanged"`
	Conflicts    int                `json:"conflicts"`
	NeedsReview  int                `json:"needsReview"`
	AutoResolved int                `json:"autoResolved,omitempty"`
	Result       *ApplyResult       `json:"result,omitempty"`
	ParseErrors  []ParseFileError   `json:"parseErrors,omitempty"`
	Pending      []*PendingConflict `json:"pendingConflicts,omitempty"`
}

// Service orchestrates pulls for translation projects. Pulls for different
// projects are fully independent and may run in parallel; within one project a
// pull is all-or-nothing.
type Service struct {
	db        *sqlx.DB
	entries   *EntryStore
	states    *StateStore
	conflicts *ConflictStore
	projects  *ProjectStore
	apply     *ApplyEngine
	fetcher   RemoteFetcher
	parsers   ParserRegistry
	snapshots SnapshotStore

	mu    sync.Mutex
	pulls map[string]*sync.Mutex
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithSnapshots archives the fetched remote file set after successful pulls.
func WithSnapshots(store SnapshotStore) ServiceOption {
	return func(s *Service) {
		s.snapshots = store
	}
}

func NewService(db *sqlx.DB, fetcher RemoteFetcher, parsers ParserRegistry, opts ...ServiceOption) (*Service, error) {
	entries, err := NewEntryStore(db)
	if err != nil {
		return nil, err
	}
	states, err := NewStateStore(db)
	if err != nil {
		return nil, err
	}
	conflicts, err := NewConflictStore(db)
	if err != nil {
		return nil, err
	}
	projects, err := NewProjectStore(db)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		db:        db,
		entries:   entries,
		states:    states,
		conflicts: conflicts,
		projects:  projects,
		apply:     NewApplyEngine(db),
		fetcher:   fetcher,
		parsers:   parsers,
		pulls:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Projects exposes project CRUD for the surrounding server.
func (s *Service) Projects() *ProjectStore {
	return s.projects
}

// Entries exposes read access to the entry store.
func (s *Service) Entries() *EntryStore {
	return s.entries
}

// snapshotSet holds the three immutable snapshots one classification runs over.
type snapshotSet struct {
	project     *Project
	tree        *RemoteTree
	remote      map[EntryIdentity]*RemoteEntry
	local       map[EntryIdentity]*Entry
	base        map[EntryIdentity]*BaseState
	parseErrors []ParseFileError
}

// PreviewPull classifies a project against its remote source without any side
// effects.
func (s *Service) PreviewPull(ctx context.Context, projectID string) (*MergeResult, error) {
	snap, err := s.gather(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ops := Classify(snap.remote, snap.local, snap.base)
	result := buildMergeResult(projectID, snap, ops, StrategyPrompt, 0)
	result.Preview = true
	return result, nil
}

// Pull classifies, applies accepted changes atomically, advances the ancestor
// state and persists remaining conflicts.
func (s *Service) Pull(ctx context.Context, projectID string, strategy Strategy) (*MergeResult, error) {
	if strategy == "" {
		strategy = StrategyPrompt
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}

	lock := s.pullLock(projectID)
	if !lock.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer lock.Unlock()

	tStart := time.Now()

	snap, err := s.gather(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ops := Classify(snap.remote, snap.local, snap.base)
	autoResolved := overlay(ops, strategy)
	pending := buildPendingConflicts(projectID, ops, snap.tree.CommitSHA)

	applied, err := s.apply.Apply(ctx, projectID, ops, snap.remote, snap.tree.CommitSHA, pending)
	if err != nil {
		return nil, err
	}

	if s.snapshots != nil {
		// backup is best effort, never fails the pull
		if err := s.snapshots.Save(ctx, projectID, snap.tree); err != nil {
			slog.Warn("snapshot save failed", "project", projectID, "commit", snap.tree.CommitSHA, "error", err)
		}
	}

	result := buildMergeResult(projectID, snap, ops, strategy, autoResolved)
	result.Result = applied
	result.Pending = pending

	slog.Info("pull",
		"project", projectID,
		"commit", snap.tree.CommitSHA,
		"strategy", strategy,
		"applied", applied.Applied,
		"added", applied.Added,
		"deleted", applied.Deleted,
		"unchanged", result.Unchanged,
		"conflicts", result.Conflicts,
		"needsReview", result.NeedsReview,
		"parseErrors", len(snap.parseErrors),
		"took", time.Since(tStart),
	)

	return result, nil
}

// GetPendingConflicts returns the conflict set produced by the most recent pull.
func (s *Service) GetPendingConflicts(ctx context.Context, projectID string) (*ConflictSummary, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.conflicts.Summary(ctx, projectID)
}

// ResolveConflicts applies human decisions against the current conflict set.
// Resolutions referencing conflicts superseded by a newer pull are reported as
// skipped, not errors.
func (s *Service) ResolveConflicts(ctx context.Context, projectID string, resolutions []Resolution) (*ApplyResult, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, &ApplyError{Op: "begin", Err: err}
	}

	result, err := s.resolveTx(ctx, tx, projectID, resolutions)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &ApplyError{Op: "commit", Err: err}
	}

	slog.Info("resolve conflicts",
		"project", projectID,
		"resolved", result.Resolved,
		"skipped", result.Skipped,
		"applied", result.Applied,
		"added", result.Added,
		"deleted", result.Deleted,
	)
	return result, nil
}

func (s *Service) resolveTx(ctx context.Context, tx *sqlx.Tx, projectID string, resolutions []Resolution) (*ApplyResult, error) {
	now := time.Now().UTC()
	result := &ApplyResult{}

	for _, res := range resolutions {
		c, err := getConflictTx(ctx, tx, projectID, res.ConflictID)
		if err != nil {
			return nil, &ApplyError{Op: "resolve", Err: err}
		}
		if c == nil {
			// superseded by a newer pull
			result.Skipped++
			continue
		}

		switch res.Kind {
		case ResolveAcceptLocal, ResolveSkip:
			// no database mutation

		case ResolveAcceptRemote:
			if err := s.resolveAcceptRemote(ctx, tx, c, now, result); err != nil {
				return nil, err
			}

		case ResolveEdit:
			if err := s.resolveEdit(ctx, tx, c, res.Value, now, result); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, res.Kind)
		}

		if err := deleteConflictTx(ctx, tx, c.ID); err != nil {
			return nil, &ApplyError{Op: "resolve", Err: err}
		}
		result.Resolved++
	}

	return result, nil
}

func (s *Service) resolveAcceptRemote(ctx context.Context, tx *sqlx.Tx, c *PendingConflict, now time.Time, result *ApplyResult) error {
	if c.IsPlural {
		return s.resolveGroupAcceptRemote(ctx, tx, c, now, result)
	}

	if c.Type == ConflictDeletedInGitHub {
		// accept the remote deletion
		entry, err := getEntry(ctx, tx, c.ProjectID, c.Identity)
		if err != nil {
			return &ApplyError{Op: "resolve", Err: err}
		}
		if entry != nil {
			if err := deleteEntryTx(ctx, tx, c.ProjectID, c.Identity, entry.Version); err != nil {
				return &ApplyError{Op: "resolve", Err: err}
			}
			result.Deleted++
		}
		if err := deleteStateTx(ctx, tx, c.ProjectID, c.Identity); err != nil {
			return &ApplyError{Op: "resolve", Err: err}
		}
		return nil
	}

	hash := HashEntry(c.RemoteValue, c.RemoteComment)
	remote := &RemoteEntry{
		Identity: c.Identity,
		Value:    c.RemoteValue,
		Comment:  c.RemoteComment,
		Hash:     hash,
	}
	if err := s.upsertResolved(ctx, tx, c, remote, StatusPendingReview, now, result); err != nil {
		return err
	}
	if err := advanceStateTx(ctx, tx, c.ProjectID, c.Identity, hash, c.RemoteValue, c.RemoteComment, c.RemoteCommitSHA, now); err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}
	return nil
}

// resolveGroupAcceptRemote resolves every pending form of a plural group with
// the remote content. Forms share one group fingerprint, so a single form
// cannot be resolved without moving its siblings with it.
func (s *Service) resolveGroupAcceptRemote(ctx context.Context, tx *sqlx.Tx, c *PendingConflict, now time.Time, result *ApplyResult) error {
	group, err := groupConflictsTx(ctx, tx, c.ProjectID, c.Identity.Key, c.Identity.Language)
	if err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}

	hash, err := remoteGroupHashTx(ctx, tx, c, group)
	if err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}

	for _, gc := range group {
		if gc.Type == ConflictDeletedInGitHub {
			entry, err := getEntry(ctx, tx, gc.ProjectID, gc.Identity)
			if err != nil {
				return &ApplyError{Op: "resolve", Err: err}
			}
			if entry != nil {
				if err := deleteEntryTx(ctx, tx, gc.ProjectID, gc.Identity, entry.Version); err != nil {
					return &ApplyError{Op: "resolve", Err: err}
				}
				result.Deleted++
			}
			if err := deleteStateTx(ctx, tx, gc.ProjectID, gc.Identity); err != nil {
				return &ApplyError{Op: "resolve", Err: err}
			}
			continue
		}

		remote := &RemoteEntry{
			Identity:         gc.Identity,
			Value:            gc.RemoteValue,
			Comment:          gc.RemoteComment,
			Hash:             hash,
			IsPlural:         true,
			SourcePluralText: gc.SourcePluralText,
		}
		if err := s.upsertResolved(ctx, tx, gc, remote, StatusPendingReview, now, result); err != nil {
			return err
		}
		if err := advanceStateTx(ctx, tx, gc.ProjectID, gc.Identity, hash, gc.RemoteValue, gc.RemoteComment, gc.RemoteCommitSHA, now); err != nil {
			return &ApplyError{Op: "resolve", Err: err}
		}
	}

	// surviving local-only forms may make the stored group differ from the
	// remote group, so the rows are restamped from what actually landed
	if err := restampGroupTx(ctx, tx, c.ProjectID, c.Identity.Key, c.Identity.Language); err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}

	return consumeGroupTx(ctx, tx, c, group, result)
}

func (s *Service) resolveEdit(ctx context.Context, tx *sqlx.Tx, c *PendingConflict, value string, now time.Time, result *ApplyResult) error {
	if c.IsPlural {
		return s.resolveGroupEdit(ctx, tx, c, value, now, result)
	}

	entry, err := getEntry(ctx, tx, c.ProjectID, c.Identity)
	if err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}

	comment := c.RemoteComment
	if entry != nil {
		comment = entry.Comment
	}
	edited := &RemoteEntry{
		Identity: c.Identity,
		Value:    value,
		Comment:  comment,
		Hash:     HashEntry(value, comment),
	}
	if err := s.upsertResolved(ctx, tx, c, edited, StatusTranslated, now, result); err != nil {
		return err
	}

	// the remote side is considered consumed by the edit
	if c.Type == ConflictDeletedInGitHub {
		if err := deleteStateTx(ctx, tx, c.ProjectID, c.Identity); err != nil {
			return &ApplyError{Op: "resolve", Err: err}
		}
		return nil
	}
	remoteHash := HashEntry(c.RemoteValue, c.RemoteComment)
	if err := advanceStateTx(ctx, tx, c.ProjectID, c.Identity, remoteHash, c.RemoteValue, c.RemoteComment, c.RemoteCommitSHA, now); err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}
	return nil
}

// resolveGroupEdit writes the edited value to the referenced form while its
// sibling forms keep their local values. The whole group's conflict set is
// consumed and the ancestor moves to the remote group fingerprint, so the
// resulting local state wins over an unchanged remote on the next pull.
func (s *Service) resolveGroupEdit(ctx context.Context, tx *sqlx.Tx, c *PendingConflict, value string, now time.Time, result *ApplyResult) error {
	group, err := groupConflictsTx(ctx, tx, c.ProjectID, c.Identity.Key, c.Identity.Language)
	if err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}

	entry, err := getEntry(ctx, tx, c.ProjectID, c.Identity)
	if err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}
	comment := c.RemoteComment
	sourceText := c.SourcePluralText
	if entry != nil {
		comment = entry.Comment
		if sourceText == "" {
			sourceText = entry.SourcePluralText
		}
	}
	edited := &RemoteEntry{
		Identity:         c.Identity,
		Value:            value,
		Comment:          comment,
		IsPlural:         true,
		SourcePluralText: sourceText,
	}
	if err := s.upsertResolved(ctx, tx, c, edited, StatusTranslated, now, result); err != nil {
		return err
	}
	if err := restampGroupTx(ctx, tx, c.ProjectID, c.Identity.Key, c.Identity.Language); err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}

	// the remote side is considered consumed by the edit
	hash, err := remoteGroupHashTx(ctx, tx, c, group)
	if err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}
	for _, gc := range group {
		if gc.Type == ConflictDeletedInGitHub || hash == "" {
			if err := deleteStateTx(ctx, tx, gc.ProjectID, gc.Identity); err != nil {
				return &ApplyError{Op: "resolve", Err: err}
			}
			continue
		}
		if err := advanceStateTx(ctx, tx, gc.ProjectID, gc.Identity, hash, gc.RemoteValue, gc.RemoteComment, gc.RemoteCommitSHA, now); err != nil {
			return &ApplyError{Op: "resolve", Err: err}
		}
	}

	return consumeGroupTx(ctx, tx, c, group, result)
}

// remoteGroupHashTx reconstructs the group fingerprint of the remote side at
// the conflicting commit. Conflicted forms carry their remote value on the
// conflict record; forms the pull already landed, added remotely while the
// rest of the group diverged, are recovered from their ancestor rows. Returns
// the empty string when the remote side has no forms left.
func remoteGroupHashTx(ctx context.Context, tx *sqlx.Tx, c *PendingConflict, group []*PendingConflict) (string, error) {
	forms := make(map[PluralForm]string, len(group))
	comment := ""
	for _, gc := range group {
		if gc.Type == ConflictDeletedInGitHub {
			continue
		}
		forms[gc.Identity.Plural] = gc.RemoteValue
		if comment == "" {
			comment = gc.RemoteComment
		}
	}

	states, err := groupStatesTx(ctx, tx, c.ProjectID, c.Identity.Key, c.Identity.Language)
	if err != nil {
		return "", err
	}
	for _, st := range states {
		if _, ok := forms[st.Identity.Plural]; ok {
			continue
		}
		if st.RemoteCommitSHA != c.RemoteCommitSHA {
			continue
		}
		forms[st.Identity.Plural] = st.RemoteValue
		if comment == "" {
			comment = st.RemoteComment
		}
	}

	if len(forms) == 0 {
		return "", nil
	}
	return HashPluralGroup(forms, comment), nil
}

// consumeGroupTx removes the sibling conflict records resolved alongside the
// referenced one. The referenced record itself is deleted by the caller.
func consumeGroupTx(ctx context.Context, tx *sqlx.Tx, c *PendingConflict, group []*PendingConflict, result *ApplyResult) error {
	for _, gc := range group {
		if gc.ID == c.ID {
			continue
		}
		if err := deleteConflictTx(ctx, tx, gc.ID); err != nil {
			return &ApplyError{Op: "resolve", Err: err}
		}
		result.Resolved++
	}
	return nil
}

func (s *Service) upsertResolved(ctx context.Context, tx *sqlx.Tx, c *PendingConflict, r *RemoteEntry, status string, now time.Time, result *ApplyResult) error {
	entry, err := getEntry(ctx, tx, c.ProjectID, c.Identity)
	if err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}
	if entry == nil {
		if err := insertEntryTx(ctx, tx, c.ProjectID, r, status, now); err != nil {
			return &ApplyError{Op: "resolve", Err: err}
		}
		result.Added++
		return nil
	}
	if err := updateEntryTx(ctx, tx, c.ProjectID, r, entry.Version, status, now); err != nil {
		return &ApplyError{Op: "resolve", Err: err}
	}
	result.Applied++
	return nil
}

// gather collects the three immutable snapshots for one project. The full
// remote file set is fetched before any classification begins.
func (s *Service) gather(ctx context.Context, projectID string) (*snapshotSet, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	parser, ok := s.parsers.Get(project.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, project.Format)
	}

	tree, err := s.fetcher.FetchTree(ctx, RemoteSource{
		Owner:  project.Owner,
		Repo:   project.Repo,
		Branch: project.Branch,
		Path:   project.Path,
		Globs:  project.Globs,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch remote tree: %w", err)
	}

	remote, parseErrors := parser.Parse(tree.Files, project.DefaultLanguage)
	for _, pe := range parseErrors {
		slog.Warn("parse error, file skipped", "project", projectID, "path", pe.Path, "error", pe.Err)
	}

	local, err := s.entries.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	base, err := s.states.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &snapshotSet{
		project:     project,
		tree:        tree,
		remote:      remote,
		local:       local,
		base:        base,
		parseErrors: parseErrors,
	}, nil
}

func (s *Service) pullLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.pulls[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.pulls[projectID] = lock
	}
	return lock
}

func buildMergeResult(projectID string, snap *snapshotSet, ops *MergeOps, strategy Strategy, autoResolved int) *MergeResult {
	return &MergeResult{
		ProjectID:    projectID,
		CommitSHA:    snap.tree.CommitSHA,
		Strategy:     strategy,
		ToApply:      len(ops.ToApply),
		ToAdd:        len(ops.ToAdd),
		ToDelete:     len(ops.ToDelete),
		Unchanged:    len(ops.Unchanged),
		Conflicts:    len(ops.Conflicts),
		NeedsReview:  len(ops.NeedsReview),
		AutoResolved: autoResolved,
		ParseErrors:  snap.parseErrors,
	}
}

// buildPendingConflicts turns the remaining conflict and needs-review outcomes
// into the replacement conflict set for the project.
func buildPendingConflicts(projectID string, ops *MergeOps, commitSHA string) []*PendingConflict {
	now := time.Now().UTC()
	pending := make([]*PendingConflict, 0, len(ops.Conflicts)+len(ops.NeedsReview))

	add := func(op *MergeOp) {
		c := &PendingConflict{
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			Identity:        op.Identity,
			Type:            op.Conflict,
			RemoteCommitSHA: commitSHA,
			CreatedAt:       now,
		}
		if op.Remote != nil {
			c.RemoteValue = op.Remote.Value
			c.RemoteComment = op.Remote.Comment
			c.IsPlural = op.Remote.IsPlural
			c.SourcePluralText = op.Remote.SourcePluralText
		}
		if op.Local != nil {
			c.LocalValue = op.Local.Value
			c.LocalModifiedAt = op.Local.UpdatedAt
			if op.Local.IsPlural {
				c.IsPlural = true
				if c.SourcePluralText == "" {
					c.SourcePluralText = op.Local.SourcePluralText
				}
			}
		}
		pending = append(pending, c)
	}

	for _, op := range ops.Conflicts {
		add(op)
	}
	for _, op := range ops.NeedsReview {
		add(op)
	}
	return pending
}
