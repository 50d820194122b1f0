package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/catalog"
	"github.com/angora-org/angora/internal/fileutil"
	"github.com/angora-org/angora/internal/persistence"
	"github.com/angora-org/angora/internal/stringutil"
	"github.com/angora-org/angora/internal/timer"
)

// logTailLines is how many trailing log lines the log endpoint returns.
const logTailLines = 100

// Store is the slice of the persistence layer the API reads from.
type Store interface {
	GetTasks(ctx context.Context, filter persistence.TaskFilter) ([]persistence.TaskRow, error)
	GetTasksToday(ctx context.Context, status string) ([]persistence.TaskRow, error)
	GetTasksLatest(ctx context.Context, name string) ([]persistence.TaskRow, error)
	GetMessagesToday(ctx context.Context) ([]persistence.MessageRow, error)
}

// API exposes the catalog, history and bus over HTTP.
type API struct {
	catalog   *catalog.Catalog
	store     Store
	publisher bus.Publisher
	exchange  string
}

// NewAPI builds the API over the given collaborators.
func NewAPI(cat *catalog.Catalog, store Store, publisher bus.Publisher, exchange string) *API {
	return &API{
		catalog:   cat,
		store:     store,
		publisher: publisher,
		exchange:  exchange,
	}
}

// Routes mounts every API endpoint on the router.
func (a *API) Routes(r chi.Router) {
	r.Get("/send", a.handleSend)
	r.Get("/tasks", a.handleTasks)
	r.Get("/tasks/reload", a.handleReload)
	r.Get("/tasks/today/notrun", a.handleTasksNotRun)
	r.Get("/tasks/today/{status}", a.handleTasksToday)
	r.Get("/tasks/lastruntime", a.handleLastRunTime)
	r.Get("/tasks/lastruntime/sorted/category", a.handleLastRunTimeByCategory)
	r.Get("/tasks/categories", a.handleCategories)
	r.Get("/tasks/scheduled", a.handleScheduled)
	r.Get("/tasks/repeating", a.handleRepeating)
	r.Get("/task/history", a.handleHistory)
	r.Get("/task/log", a.handleLog)
	r.Get("/task/children", a.handleChildren)
	r.Get("/task/parents", a.handleParents)
	r.Get("/messages/today", a.handleMessagesToday)
	r.Get("/health", a.handleHealth)
}

// TaskRuntime is a catalog task joined with its latest lifecycle row
// today.
type TaskRuntime struct {
	*catalog.Task
	Status      string `json:"status"`
	TimeStamp   string `json:"time_stamp"`
	LastRunTime string `json:"last_run_time"`
	Category    string `json:"category"`
}

// ScheduleEntry is a task with a time-based trigger, in display form.
type ScheduleEntry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	// Time is HH:MM for daily triggers; empty for repeating ones.
	Time string `json:"time,omitempty"`
	// EveryMinutes is the period for repeating triggers; zero for daily ones.
	EveryMinutes int `json:"every_minutes,omitempty"`
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	message := q.Get("message")
	if message == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("message is required"))
		return
	}
	queue := q.Get("queue")
	routingKey := q.Get("routing_key")
	if routingKey == "" {
		routingKey = queue
	}
	if routingKey == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("routing_key or queue is required"))
		return
	}

	// Params may be a JSON value; anything unparsable rides as a string.
	var data any
	if raw := q.Get("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			data = raw
		}
	}

	env := bus.NewEnvelope(a.exchange, queue, message, data)
	if err := a.publisher.Publish(r.Context(), routingKey, env); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": message})
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		task, err := a.catalog.Get(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeData(w, []*catalog.Task{task})
		return
	}
	writeData(w, a.catalog.Tasks())
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := a.catalog.Reload(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tasks":  len(a.catalog.Tasks()),
	})
}

func (a *API) handleTasksToday(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.GetTasksToday(r.Context(), chi.URLParam(r, "status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, rows)
}

func (a *API) handleTasksNotRun(w http.ResponseWriter, r *http.Request) {
	latest, err := a.store.GetTasksLatest(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ran := lo.SliceToMap(latest, func(row persistence.TaskRow) (string, bool) {
		return row.Name, true
	})
	notRun := lo.Filter(a.catalog.Tasks(), func(t *catalog.Task, _ int) bool {
		return !ran[t.Name]
	})
	writeData(w, notRun)
}

func (a *API) handleLastRunTime(w http.ResponseWriter, r *http.Request) {
	runtimes, err := a.taskRuntimes(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrTaskNotFound) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	writeData(w, runtimes)
}

func (a *API) handleLastRunTimeByCategory(w http.ResponseWriter, r *http.Request) {
	runtimes, err := a.taskRuntimes(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, lo.GroupBy(runtimes, func(rt TaskRuntime) string {
		return rt.Category
	}))
}

// taskRuntimes joins the catalog with today's latest lifecycle rows.
func (a *API) taskRuntimes(ctx context.Context, name string) ([]TaskRuntime, error) {
	tasks := a.catalog.Tasks()
	if name != "" {
		task, err := a.catalog.Get(name)
		if err != nil {
			return nil, err
		}
		tasks = []*catalog.Task{task}
	}

	latest, err := a.store.GetTasksLatest(ctx, name)
	if err != nil {
		return nil, err
	}
	byName := lo.SliceToMap(latest, func(row persistence.TaskRow) (string, persistence.TaskRow) {
		return row.Name, row
	})

	runtimes := make([]TaskRuntime, 0, len(tasks))
	for _, task := range tasks {
		rt := TaskRuntime{
			Task:        task,
			LastRunTime: "Never",
			Category:    stringutil.CategoryDisplay(task.ConfigSource),
		}
		if row, ok := byName[task.Name]; ok {
			rt.Status = row.Status
			rt.TimeStamp = row.TimeStamp
			if ts, err := stringutil.ParseTime(row.TimeStamp); err == nil {
				rt.LastRunTime = humanizeSince(time.Since(ts))
			}
		}
		runtimes = append(runtimes, rt)
	}
	return runtimes, nil
}

func humanizeSince(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%d hr %d min %d sec",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func (a *API) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeData(w, a.catalog.Categories())
}

func (a *API) handleScheduled(w http.ResponseWriter, _ *http.Request) {
	var entries []ScheduleEntry
	for _, task := range a.catalog.Tasks() {
		for _, label := range task.Triggers {
			if clock, ok := timer.ClockTime(label); ok {
				entries = append(entries, ScheduleEntry{Name: task.Name, Label: label, Time: clock})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Time != entries[j].Time {
			return entries[i].Time < entries[j].Time
		}
		return entries[i].Name < entries[j].Name
	})
	writeData(w, entries)
}

func (a *API) handleRepeating(w http.ResponseWriter, _ *http.Request) {
	var entries []ScheduleEntry
	for _, task := range a.catalog.Tasks() {
		for _, label := range task.Triggers {
			if minutes, ok := timer.IntervalMinutes(label); ok {
				entries = append(entries, ScheduleEntry{Name: task.Name, Label: label, EveryMinutes: minutes})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].EveryMinutes != entries[j].EveryMinutes {
			return entries[i].EveryMinutes < entries[j].EveryMinutes
		}
		return entries[i].Name < entries[j].Name
	})
	writeData(w, entries)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := a.store.GetTasks(r.Context(), persistence.TaskFilter{
		RunDate: q.Get("run_date"),
		Name:    q.Get("name"),
		Status:  q.Get("status"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, rows)
}

func (a *API) handleLog(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	task, err := a.catalog.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if task.Log == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("task %s has no log file", name))
		return
	}
	lines, err := fileutil.TailLines(task.Log, logTailLines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, lines)
}

func (a *API) handleChildren(w http.ResponseWriter, r *http.Request) {
	tree, err := a.catalog.ChildTree(r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeData(w, tree)
}

func (a *API) handleParents(w http.ResponseWriter, r *http.Request) {
	tree, err := a.catalog.ParentTree(r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeData(w, tree)
}

func (a *API) handleMessagesToday(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.GetMessagesToday(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, rows)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"status": "error", "error": err.Error()})
}
