package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/gitviz/internal/api"
	"github.com/sakif/gitviz/internal/apperror"
	"github.com/sakif/gitviz/internal/chart"
	"github.com/sakif/gitviz/internal/model"
	"github.com/sakif/gitviz/internal/service"
	"github.com/sakif/gitviz/internal/session"
)

// Dashboard is implemented by *service.DashboardService.
type Dashboard interface {
	Me(ctx context.Context) (*model.User, error)
	Repositories(ctx context.Context) ([]model.Repository, error)
	Repository(ctx context.Context, id int64) (model.Repository, error)
	Branches(ctx context.Context, repositoryID int64) ([]model.Branch, error)
	Commits(ctx context.Context, b api.Branch) ([]model.Commit, error)
	Committers(ctx context.Context, b api.Branch) ([]model.Committer, error)
	Overview(ctx context.Context, b api.Branch) (service.BranchOverview, error)
	Timeline(ctx context.Context, b api.Branch) (service.Timeline, error)
	Stats(ctx context.Context, b api.Branch) (chart.Breakdowns, error)
	Assignments(ctx context.Context, repositoryID int64) ([]model.Assignment, error)
	CreateAssignment(ctx context.Context, repositoryID int64, in model.CreateAssignment) error
	DeleteAssignment(ctx context.Context, repositoryID, assignedNameID int64) error
}

// DashboardHandler serves the JSON the dashboard pages are drawn from.
// Every route sits behind RequireSession, so the request context always
// carries a signed-in session.
type DashboardHandler struct {
	dashboard Dashboard
	logger    *slog.Logger
}

func NewDashboardHandler(dashboard Dashboard, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// Routes mounts the handlers under /api.
func (h *DashboardHandler) Routes(r chi.Router) {
	r.Get("/me", h.HandleMe)
	r.Get("/repositories", h.HandleRepositories)
	r.Route("/repositories/{id}", func(r chi.Router) {
		r.Get("/", h.HandleRepository)
		r.Get("/branches", h.HandleBranches)
		r.Route("/branches/{branch}", func(r chi.Router) {
			r.Get("/commits", h.HandleCommits)
			r.Get("/committers", h.HandleCommitters)
			r.Get("/overview", h.HandleOverview)
			r.Get("/timeline", h.HandleTimeline)
			r.Get("/stats", h.HandleStats)
		})
		r.Get("/assignments", h.HandleAssignments)
		r.Post("/assignments", h.HandleCreateAssignment)
		r.Delete("/assignments/{assignmentID}", h.HandleDeleteAssignment)
	})
}

// HTTP: GET /api/me
func (h *DashboardHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.dashboard.Me(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HTTP: GET /api/repositories
func (h *DashboardHandler) HandleRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.dashboard.Repositories(r.Context())
	h.respond(w, r, repos, err)
}

// HTTP: GET /api/repositories/{id}
func (h *DashboardHandler) HandleRepository(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	repo, err := h.dashboard.Repository(r.Context(), id)
	h.respond(w, r, repo, err)
}

// HTTP: GET /api/repositories/{id}/branches
func (h *DashboardHandler) HandleBranches(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	branches, err := h.dashboard.Branches(r.Context(), id)
	h.respond(w, r, branches, err)
}

// HTTP: GET /api/repositories/{id}/branches/{branch}/commits?mapped=true
func (h *DashboardHandler) HandleCommits(w http.ResponseWriter, r *http.Request) {
	b, err := branchFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	commits, err := h.dashboard.Commits(r.Context(), b)
	h.respond(w, r, commits, err)
}

// HTTP: GET /api/repositories/{id}/branches/{branch}/committers?mapped=true
func (h *DashboardHandler) HandleCommitters(w http.ResponseWriter, r *http.Request) {
	b, err := branchFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	committers, err := h.dashboard.Committers(r.Context(), b)
	h.respond(w, r, committers, err)
}

// HTTP: GET /api/repositories/{id}/branches/{branch}/overview?mapped=true
func (h *DashboardHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	b, err := branchFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ov, err := h.dashboard.Overview(r.Context(), b)
	h.respond(w, r, ov, err)
}

// HandleTimeline returns the committer timeline. A part that is still
// loading or failed is reported in the body with status 200; only a
// total failure is an error response.
//
// HTTP: GET /api/repositories/{id}/branches/{branch}/timeline?mapped=true
func (h *DashboardHandler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	b, err := branchFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tl, err := h.dashboard.Timeline(r.Context(), b)
	h.respond(w, r, tl, err)
}

// HTTP: GET /api/repositories/{id}/branches/{branch}/stats?mapped=true
func (h *DashboardHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	b, err := branchFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.dashboard.Stats(r.Context(), b)
	h.respond(w, r, stats, err)
}

// HTTP: GET /api/repositories/{id}/assignments
func (h *DashboardHandler) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	assignments, err := h.dashboard.Assignments(r.Context(), id)
	h.respond(w, r, assignments, err)
}

// HandleCreateAssignment assigns one raw committer name to a key.
//
// HTTP: POST /api/repositories/{id}/assignments
// REQUEST BODY: {"key": "Alice", "assignedName": "alice@old-laptop"}
func (h *DashboardHandler) HandleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var in model.CreateAssignment
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	if err := h.dashboard.CreateAssignment(r.Context(), id, in); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// HTTP: DELETE /api/repositories/{id}/assignments/{assignmentID}
func (h *DashboardHandler) HandleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	assignmentID, err := int64Param(r, "assignmentID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.dashboard.DeleteAssignment(r.Context(), id, assignmentID); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respond writes data, or the error with a log line when err is set.
//
// An auth failure means the API no longer accepts the session's token, so
// the session is released: the next request gets 401 from RequireSession
// and the login route starts OAuth again instead of redirecting home.
func (h *DashboardHandler) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		h.logger.Warn("dashboard request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, apperror.ErrAuth) {
			if store, ok := session.FromContext(r.Context()); ok {
				store.Release()
			}
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// branchFrom reads {id}, {branch} and the mapped query parameter.
// Branch names may contain '/', so the segment arrives path-escaped.
func branchFrom(r *http.Request) (api.Branch, error) {
	id, err := int64Param(r, "id")
	if err != nil {
		return api.Branch{}, err
	}
	name, err := url.PathUnescape(chi.URLParam(r, "branch"))
	if err != nil || name == "" {
		return api.Branch{}, apperror.ValidationFailed("branch", "branch name is required")
	}
	mapped, err := boolQuery(r, "mapped", true)
	if err != nil {
		return api.Branch{}, err
	}
	return api.Branch{RepositoryID: id, Name: name, Mapped: mapped}, nil
}
