package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examfix/internal/handler/views"
	appI18n "github.com/pavelanni/examfix/internal/i18n"
	"github.com/pavelanni/examfix/internal/model"
	"github.com/pavelanni/examfix/internal/runner"
	"github.com/pavelanni/examfix/internal/scope"
	"github.com/pavelanni/examfix/internal/session"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	scope    *scope.Model
	runner   *runner.Runner
	sessions session.Store
	importer BankImporter
	config   model.AppConfig
}

// New creates a new Handler. importer may be nil when the backend cannot import.
func New(m *scope.Model, r *runner.Runner, s session.Store, importer BankImporter, cfg model.AppConfig) *Handler {
	return &Handler{scope: m, runner: r, sessions: s, importer: importer, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/logout", h.handleLogout)
			r.Get("/", h.handleDashboard)
			r.Post("/scope", h.handleSetScope)
			r.Post("/refresh", h.handleRefresh)
			r.Post("/select/toggle/{id}", h.handleToggle)
			r.Post("/select/all", h.handleSelectAll)
			r.Post("/select/none", h.handleSelectNone)
			r.Post("/run/start", h.handleStartRun)
			r.Post("/run/pause", h.handlePauseRun)
			r.Post("/run/stop", h.handleStopRun)
			r.Get("/admin/import", h.handleImportPage)
			r.Post("/admin/import", h.handleImportBank)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/run", h.handleRunState)
		r.Get("/api/scope", h.handleScopeState)
		r.Get("/run/stream", h.handleRunStream)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes an absolute route with the base path.
func (h *Handler) path(route string) string {
	return h.config.BasePath + route
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode json", "error", err)
	}
}

func (h *Handler) backToDashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.DashboardPage(views.DashboardData{
		User:      model.UserFromContext(r.Context()),
		Scope:     h.scope.Snapshot(),
		Run:       h.runner.Snapshot(),
		Notice:    h.takeNotice(w, r),
		CanImport: h.importer != nil,
	}))
}

func (h *Handler) handleSetScope(w http.ResponseWriter, r *http.Request) {
	next := model.Scope{
		ExamID:     r.FormValue("exam_id"),
		CourseID:   r.FormValue("course_id"),
		TypeFilter: model.ParseTypeFilter(r.FormValue("type")),
	}
	if err := h.scope.SetScope(r.Context(), next); err != nil {
		h.failNotice(w, r, err)
	}
	h.backToDashboard(w, r)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.scope.Refresh(r.Context()); err != nil {
		h.failNotice(w, r, err)
	}
	h.backToDashboard(w, r)
}

// Selection is frozen while a run is active so the checklist matches the run.
func (h *Handler) selectionLocked(w http.ResponseWriter, r *http.Request) bool {
	if h.runner.IsRunning() {
		h.failNotice(w, r, scope.ErrRunActive)
		h.backToDashboard(w, r)
		return true
	}
	return false
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	if h.selectionLocked(w, r) {
		return
	}
	h.scope.Toggle(chi.URLParam(r, "id"))
	h.backToDashboard(w, r)
}

func (h *Handler) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	if h.selectionLocked(w, r) {
		return
	}
	h.scope.SelectAll()
	h.backToDashboard(w, r)
}

func (h *Handler) handleSelectNone(w http.ResponseWriter, r *http.Request) {
	if h.selectionLocked(w, r) {
		return
	}
	h.scope.SelectNone()
	h.backToDashboard(w, r)
}

func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id, err := h.runner.Start(r.Context(), h.scope.Selected())
	if err != nil {
		h.failNotice(w, r, err)
	} else {
		slog.Info("run requested", "run_id", id, "user", userName(r))
		h.setNotice(w, views.Notice{Kind: "info", Text: appI18n.T(r.Context(), "RunStarted")})
	}
	h.backToDashboard(w, r)
}

func (h *Handler) handlePauseRun(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.TogglePause(); err != nil {
		h.failNotice(w, r, err)
	}
	h.backToDashboard(w, r)
}

func (h *Handler) handleStopRun(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Stop(); err != nil {
		h.failNotice(w, r, err)
	} else {
		h.setNotice(w, views.Notice{Kind: "info", Text: appI18n.T(r.Context(), "RunStopped")})
	}
	h.backToDashboard(w, r)
}

func (h *Handler) handleRunState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.runner.Snapshot())
}

func (h *Handler) handleScopeState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.scope.Snapshot())
}

// errorText turns a command error into a localized, human-readable message.
func errorText(r *http.Request, err error) string {
	ctx := r.Context()
	var le *scope.LoadError
	switch {
	case errors.As(err, &le):
		return appI18n.Td(ctx, "ErrLoad", map[string]any{"What": le.What, "Error": le.Err.Error()})
	case errors.Is(err, scope.ErrRunActive):
		return appI18n.T(ctx, "ErrRunActive")
	case errors.Is(err, runner.ErrEmptySelection):
		return appI18n.T(ctx, "ErrEmptySelection")
	case errors.Is(err, runner.ErrAlreadyRunning):
		return appI18n.T(ctx, "ErrAlreadyRunning")
	case errors.Is(err, runner.ErrNotRunning):
		return appI18n.T(ctx, "ErrNotRunning")
	default:
		return err.Error()
	}
}

func userName(r *http.Request) string {
	if u := model.UserFromContext(r.Context()); u != nil {
		return u.Username
	}
	return ""
}
