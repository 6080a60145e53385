package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlocale/openlocale/internal/db"
	syncpkg "github.com/openlocale/openlocale/internal/sync"
)

type fakeFetcher struct {
	tree *syncpkg.RemoteTree
	err  error
}

func (f *fakeFetcher) FetchTree(ctx context.Context, src syncpkg.RemoteSource) (*syncpkg.RemoteTree, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tree, nil
}

type fakeParser struct {
	entries map[syncpkg.EntryIdentity]*syncpkg.RemoteEntry
}

func (p *fakeParser) Format() string { return "fake" }

func (p *fakeParser) Parse(files []syncpkg.RemoteFile, defaultLanguage string) (map[syncpkg.EntryIdentity]*syncpkg.RemoteEntry, []syncpkg.ParseFileError) {
	return p.entries, nil
}

type fakeRegistry map[string]syncpkg.FileParser

func (r fakeRegistry) Get(format string) (syncpkg.FileParser, bool) {
	p, ok := r[format]
	return p, ok
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeParser) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.NewSqliteDb(db.WithMaxOpenConns(1))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	parser := &fakeParser{entries: map[syncpkg.EntryIdentity]*syncpkg.RemoteEntry{}}
	fetcher := &fakeFetcher{tree: &syncpkg.RemoteTree{CommitSHA: "abc123"}}

	svc, err := syncpkg.NewService(database, fetcher, fakeRegistry{"fake": parser})
	require.NoError(t, err)

	require.NoError(t, svc.Projects().Save(context.Background(), &syncpkg.Project{
		ID:              "p1",
		Name:            "Test",
		Format:          "fake",
		DefaultLanguage: "en",
		Owner:           "acme",
		Repo:            "translations",
	}))

	h := New(svc)
	r := gin.New()
	r.GET("/api/v1/projects", h.ListProjects)
	r.POST("/api/v1/projects", h.SaveProject)
	r.POST("/api/v1/projects/:id/sync/preview", h.Preview)
	r.POST("/api/v1/projects/:id/sync/pull", h.Pull)
	r.GET("/api/v1/projects/:id/sync/conflicts", h.Conflicts)
	r.POST("/api/v1/projects/:id/sync/resolve", h.Resolve)
	return r, parser
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPullEndpoint(t *testing.T) {
	r, parser := newTestRouter(t)

	hello := syncpkg.EntryIdentity{Key: "hello", Language: "de"}
	parser.entries[hello] = &syncpkg.RemoteEntry{
		Identity: hello,
		Value:    "Hallo",
		Hash:     syncpkg.HashEntry("Hallo", ""),
	}

	w := doRequest(r, http.MethodPost, "/api/v1/projects/p1/sync/pull", PullRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result syncpkg.MergeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "abc123", result.CommitSHA)
	assert.Equal(t, 1, result.Result.Added)
}

func TestPullEndpointProjectNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/projects/missing/sync/pull", PullRequest{})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "E_PROJECT_NOT_FOUND")
}

func TestPullEndpointInvalidStrategy(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/projects/p1/sync/pull", PullRequest{Strategy: "yolo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "E_INVALID_REQUEST")
}

func TestPreviewEndpointHasNoSideEffects(t *testing.T) {
	r, parser := newTestRouter(t)

	hello := syncpkg.EntryIdentity{Key: "hello", Language: "de"}
	parser.entries[hello] = &syncpkg.RemoteEntry{
		Identity: hello,
		Value:    "Hallo",
		Hash:     syncpkg.HashEntry("Hallo", ""),
	}

	w := doRequest(r, http.MethodPost, "/api/v1/projects/p1/sync/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result syncpkg.MergeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Preview)
	assert.Equal(t, 1, result.ToAdd)
	assert.Nil(t, result.Result)
}

func TestConflictsEndpointEmpty(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/projects/p1/sync/conflicts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary syncpkg.ConflictSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Zero(t, summary.Total)
}

func TestResolveEndpointBadBody(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/projects/p1/sync/resolve", map[string]string{"nope": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "E_INVALID_REQUEST")
}

func TestProjectEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/projects", SaveProjectRequest{
		ID:              "p2",
		Name:            "Second",
		Format:          "fake",
		DefaultLanguage: "en",
		Owner:           "acme",
		Repo:            "more-translations",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(r, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "p1")
	assert.Contains(t, w.Body.String(), "p2")
}
