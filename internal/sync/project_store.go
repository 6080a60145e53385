package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const projectSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    format TEXT NOT NULL,
    default_language TEXT NOT NULL,
    gh_owner TEXT NOT NULL,
    gh_repo TEXT NOT NULL,
    gh_branch TEXT NOT NULL DEFAULT 'main',
    gh_path TEXT NOT NULL DEFAULT '',
    gh_globs TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL -- RFC3339
);
`

type dbProject struct {
	ID              string `db:"id"`
	Name            string `db:"name"`
	Format          string `db:"format"`
	DefaultLanguage string `db:"default_language"`
	Owner           string `db:"gh_owner"`
	Repo            string `db:"gh_repo"`
	Branch          string `db:"gh_branch"`
	Path            string `db:"gh_path"`
	Globs           string `db:"gh_globs"`
	CreatedAt       string `db:"created_at"`
}

// ProjectStore persists the GitHub linkage per project.
type ProjectStore struct {
	db *sqlx.DB
}

func NewProjectStore(db *sqlx.DB) (*ProjectStore, error) {
	if _, err := db.Exec(projectSchema); err != nil {
		return nil, fmt.Errorf("initialize projects schema: %w", err)
	}
	return &ProjectStore{db: db}, nil
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*Project, error) {
	var row dbProject
	err := s.db.GetContext(ctx, &row, "SELECT * FROM projects WHERE id = ?", id)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("project %s: %w", id, ErrProjectNotFound)
		}
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return row.toProject()
}

func (s *ProjectStore) List(ctx context.Context) ([]*Project, error) {
	var rows []dbProject
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]*Project, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProject()
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// Save inserts or updates a project record.
func (s *ProjectStore) Save(ctx context.Context, p *Project) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Branch == "" {
		p.Branch = "main"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, format, default_language, gh_owner, gh_repo, gh_branch, gh_path, gh_globs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    name = excluded.name,
		    format = excluded.format,
		    default_language = excluded.default_language,
		    gh_owner = excluded.gh_owner,
		    gh_repo = excluded.gh_repo,
		    gh_branch = excluded.gh_branch,
		    gh_path = excluded.gh_path,
		    gh_globs = excluded.gh_globs`,
		p.ID, p.Name, p.Format, p.DefaultLanguage, p.Owner, p.Repo, p.Branch, p.Path,
		strings.Join(p.Globs, ","), p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

func (row *dbProject) toProject() (*Project, error) {
	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for project %s: %w", row.ID, err)
	}
	var globs []string
	if row.Globs != "" {
		globs = strings.Split(row.Globs, ",")
	}
	return &Project{
		ID:              row.ID,
		Name:            row.Name,
		Format:          row.Format,
		DefaultLanguage: row.DefaultLanguage,
		Owner:           row.Owner,
		Repo:            row.Repo,
		Branch:          row.Branch,
		Path:            row.Path,
		Globs:           globs,
		CreatedAt:       createdAt,
	}, nil
}
