package sync

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlocale/openlocale/internal/github"
	"github.com/openlocale/openlocale/internal/server/handlers/api"
	"github.com/openlocale/openlocale/internal/sync"
)

type SyncHandler struct {
	svc *sync.Service
}

func New(svc *sync.Service) *SyncHandler {
	return &SyncHandler{
		svc: svc,
	}
}

type PullRequest struct {
	Strategy string `json:"strategy"`
}

type ResolveRequest struct {
	Resolutions []sync.Resolution `json:"resolutions" binding:"required"`
}

type SaveProjectRequest struct {
	ID              string   `json:"id" binding:"required"`
	Name            string   `json:"name" binding:"required"`
	Format          string   `json:"format" binding:"required"`
	DefaultLanguage string   `json:"defaultLanguage" binding:"required"`
	Owner           string   `json:"owner" binding:"required"`
	Repo            string   `json:"repo" binding:"required"`
	Branch          string   `json:"branch"`
	Path            string   `json:"path"`
	Globs           []string `json:"globs"`
}

func (h *SyncHandler) ListProjects(ctx *gin.Context) {
	projects, err := h.svc.Projects().List(ctx.Request.Context())
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}
	ctx.PureJSON(http.StatusOK, gin.H{
		"projects": projects,
	})
}

func (h *SyncHandler) SaveProject(ctx *gin.Context) {
	var req SaveProjectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	project := &sync.Project{
		ID:              req.ID,
		Name:            req.Name,
		Format:          req.Format,
		DefaultLanguage: req.DefaultLanguage,
		Owner:           req.Owner,
		Repo:            req.Repo,
		Branch:          req.Branch,
		Path:            req.Path,
		Globs:           req.Globs,
	}
	if err := h.svc.Projects().Save(ctx.Request.Context(), project); err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}
	ctx.PureJSON(http.StatusOK, gin.H{
		"project": project,
	})
}

// Preview classifies a project against its remote source without touching the
// database.
func (h *SyncHandler) Preview(ctx *gin.Context) {
	result, err := h.svc.PreviewPull(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.abortSyncError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, result)
}

func (h *SyncHandler) Pull(ctx *gin.Context) {
	var req PullRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && ctx.Request.ContentLength > 0 {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	result, err := h.svc.Pull(ctx.Request.Context(), ctx.Param("id"), sync.Strategy(req.Strategy))
	if err != nil {
		h.abortSyncError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, result)
}

func (h *SyncHandler) Conflicts(ctx *gin.Context) {
	summary, err := h.svc.GetPendingConflicts(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.abortSyncError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, summary)
}

func (h *SyncHandler) Resolve(ctx *gin.Context) {
	var req ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	result, err := h.svc.ResolveConflicts(ctx.Request.Context(), ctx.Param("id"), req.Resolutions)
	if err != nil {
		h.abortSyncError(ctx, err)
		return
	}
	ctx.PureJSON(http.StatusOK, result)
}

// abortSyncError maps service errors onto the API error taxonomy.
func (h *SyncHandler) abortSyncError(ctx *gin.Context, err error) {
	var transientErr *github.TransientError
	var applyErr *sync.ApplyError

	switch {
	case errors.Is(err, sync.ErrProjectNotFound):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeProjectNotFound, err)

	case errors.Is(err, sync.ErrSyncAlreadyRunning):
		api.AbortWithError(ctx, http.StatusConflict, api.CodeSyncRunning, err)

	case errors.Is(err, sync.ErrUnknownFormat):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeUnknownFormat, err)

	case errors.Is(err, sync.ErrInvalidStrategy),
		errors.Is(err, sync.ErrInvalidResolution):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)

	case github.IsAuthorization(err):
		api.AbortWithError(ctx, http.StatusBadGateway, api.CodeRemoteAuth, err)

	case github.IsNotFound(err):
		api.AbortWithError(ctx, http.StatusUnprocessableEntity, api.CodeRemoteNotFound, err)

	case errors.As(err, &transientErr):
		if transientErr.RetryAfter > 0 {
			ctx.Header("Retry-After", fmt.Sprintf("%.0f", transientErr.RetryAfter.Seconds()))
		}
		api.AbortWithError(ctx, http.StatusServiceUnavailable, api.CodeRemoteUnavailable, err)

	case errors.As(err, &applyErr):
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeApplyFailed, err)

	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
	}
}
