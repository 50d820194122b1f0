package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	sprig "github.com/go-task/slim-sprig/v3"

	"github.com/angora-org/angora/internal/build"
	"github.com/angora-org/angora/internal/logger"
)

//go:embed templates
var templatesFS embed.FS

// App serves the operator HTML pages. All data is fetched from the HTTP
// API, so the app can run on a different host than the core.
type App struct {
	client *resty.Client
	reload bool

	mu   sync.Mutex
	tmpl *template.Template
}

// NewApp builds the app against the API base URL. With reload enabled
// the templates are re-parsed on every request.
func NewApp(apiBaseURL string, reload bool) (*App, error) {
	app := &App{
		client: resty.New().SetBaseURL(apiBaseURL),
		reload: reload,
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	app.tmpl = tmpl
	return app, nil
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(sprig.FuncMap()).ParseFS(templatesFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}

// Routes mounts the HTML pages on the router.
func (a *App) Routes(r chi.Router) {
	r.Get("/", a.handleDashboard)
	r.Get("/schedule", a.handleSchedule)
	r.Get("/task/{name}", a.handleTask)
}

// fetch performs a GET against the API and returns the "data" member of
// the response body.
func (a *App) fetch(r *http.Request, path string, query map[string]string) (any, error) {
	var payload struct {
		Data  any    `json:"data"`
		Error string `json:"error"`
	}
	resp, err := a.client.R().
		SetContext(r.Context()).
		SetQueryParams(query).
		SetResult(&payload).
		SetError(&payload).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s: %s", path, payload.Error)
	}
	return payload.Data, nil
}

func (a *App) render(w http.ResponseWriter, r *http.Request, page string, data map[string]any) {
	tmpl := a.tmpl
	if a.reload {
		fresh, err := parseTemplates()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		a.mu.Lock()
		a.tmpl = fresh
		a.mu.Unlock()
		tmpl = fresh
	}

	data["AppName"] = build.AppName
	data["Version"] = build.Version

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, page, data); err != nil {
		logger.Error(r.Context(), "Failed to render page", "page", page, "err", err)
	}
}

func (a *App) handleDashboard(w http.ResponseWriter, r *http.Request) {
	byCategory, err := a.fetch(r, "/tasks/lastruntime/sorted/category", nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	a.render(w, r, "dashboard.gohtml", map[string]any{
		"Categories": byCategory,
	})
}

func (a *App) handleSchedule(w http.ResponseWriter, r *http.Request) {
	scheduled, err := a.fetch(r, "/tasks/scheduled", nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	repeating, err := a.fetch(r, "/tasks/repeating", nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	a.render(w, r, "schedule.gohtml", map[string]any{
		"Scheduled": scheduled,
		"Repeating": repeating,
	})
}

func (a *App) handleTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	query := map[string]string{"name": name}

	runtime, err := a.fetch(r, "/tasks/lastruntime", query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Secondary panels degrade to empty on error.
	history, err := a.fetch(r, "/task/history", query)
	if err != nil {
		logger.Warn(r.Context(), "Failed to fetch task history", "task", name, "err", err)
	}
	children, err := a.fetch(r, "/task/children", query)
	if err != nil {
		logger.Warn(r.Context(), "Failed to fetch task children", "task", name, "err", err)
	}
	parents, err := a.fetch(r, "/task/parents", query)
	if err != nil {
		logger.Warn(r.Context(), "Failed to fetch task parents", "task", name, "err", err)
	}
	logLines, err := a.fetch(r, "/task/log", query)
	if err != nil {
		logger.Debug(r.Context(), "No task log available", "task", name)
	}

	a.render(w, r, "task.gohtml", map[string]any{
		"Name":     name,
		"Runtime":  runtime,
		"History":  history,
		"Children": children,
		"Parents":  parents,
		"Log":      logLines,
	})
}
