package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/catalog"
	"github.com/angora-org/angora/internal/persistence"
	"github.com/angora-org/angora/internal/stringutil"
)

type fakeStore struct {
	tasks    []persistence.TaskRow
	latest   []persistence.TaskRow
	messages []persistence.MessageRow
	filter   persistence.TaskFilter
}

func (f *fakeStore) GetTasks(_ context.Context, filter persistence.TaskFilter) ([]persistence.TaskRow, error) {
	f.filter = filter
	return f.tasks, nil
}

func (f *fakeStore) GetTasksToday(_ context.Context, status string) ([]persistence.TaskRow, error) {
	if status == "" {
		return f.tasks, nil
	}
	var out []persistence.TaskRow
	for _, row := range f.tasks {
		if row.Status == status {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTasksLatest(_ context.Context, name string) ([]persistence.TaskRow, error) {
	if name == "" {
		return f.latest, nil
	}
	var out []persistence.TaskRow
	for _, row := range f.latest {
		if row.Name == name {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) GetMessagesToday(_ context.Context) ([]persistence.MessageRow, error) {
	return f.messages, nil
}

type fakePublisher struct {
	keys      []string
	published []*bus.Envelope
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, env *bus.Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, routingKey)
	f.published = append(f.published, env)
	return nil
}

func testServer(t *testing.T, store Store, pub bus.Publisher, logDir string) (*httptest.Server, *catalog.Catalog) {
	t.Helper()
	dir := t.TempDir()
	logLine := ""
	if logDir != "" {
		logLine = "\n  log: " + filepath.Join(logDir, "extract.log")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etl_jobs.yml"), []byte(`
- name: extract
  command: extract.sh
  triggers: [time.0630]
  messages: [extract.done]`+logLine+`
- name: load
  command: load.sh
  triggers: [extract.done, time.interval.15]
`), 0600))

	cat, err := catalog.Load(context.Background(), filepath.Join(dir, "*.yml"))
	require.NoError(t, err)

	api := NewAPI(cat, store, pub, "angora")
	r := chi.NewMux()
	api.Routes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, cat
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestHandleSend(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	ts, _ := testServer(t, &fakeStore{}, pub, "")

	var body map[string]any
	resp := getJSON(t, ts.URL+`/send?message=go&queue=angora&routing_key=angora&params=["a","b"]`, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	require.Len(t, pub.published, 1)
	env := pub.published[0]
	assert.Equal(t, "angora", env.Exchange)
	assert.Equal(t, "go", env.Message)
	assert.Equal(t, []any{"a", "b"}, env.Data)
	assert.Equal(t, []string{"angora"}, pub.keys)

	// Missing message is a client error.
	resp = getJSON(t, ts.URL+"/send?queue=angora", &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
}

func TestHandleTasks(t *testing.T) {
	t.Parallel()

	ts, _ := testServer(t, &fakeStore{}, &fakePublisher{}, "")

	var body struct {
		Data []map[string]any `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/tasks", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body.Data, 2)

	resp = getJSON(t, ts.URL+"/tasks?name=load", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "load", body.Data[0]["name"])
	// Parents are derived on load.
	assert.Equal(t, []any{"extract"}, body.Data[0]["parents"])

	var errBody map[string]any
	resp = getJSON(t, ts.URL+"/tasks?name=missing", &errBody)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "error", errBody["status"])
}

func TestHandleTasksToday(t *testing.T) {
	t.Parallel()

	store := &fakeStore{tasks: []persistence.TaskRow{
		{Name: "extract", Status: "success"},
		{Name: "load", Status: "fail"},
	}}
	ts, _ := testServer(t, store, &fakePublisher{}, "")

	var body struct {
		Data []map[string]any `json:"data"`
	}
	getJSON(t, ts.URL+"/tasks/today/fail", &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "load", body.Data[0]["name"])
}

func TestHandleTasksNotRun(t *testing.T) {
	t.Parallel()

	store := &fakeStore{latest: []persistence.TaskRow{{Name: "extract", Status: "success"}}}
	ts, _ := testServer(t, store, &fakePublisher{}, "")

	var body struct {
		Data []map[string]any `json:"data"`
	}
	getJSON(t, ts.URL+"/tasks/today/notrun", &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "load", body.Data[0]["name"])
}

func TestHandleLastRunTime(t *testing.T) {
	t.Parallel()

	stamp := stringutil.FormatTime(time.Now().Add(-90 * time.Minute))
	store := &fakeStore{latest: []persistence.TaskRow{
		{Name: "extract", Status: "success", TimeStamp: stamp},
	}}
	ts, _ := testServer(t, store, &fakePublisher{}, "")

	var body struct {
		Data []map[string]any `json:"data"`
	}
	getJSON(t, ts.URL+"/tasks/lastruntime", &body)
	require.Len(t, body.Data, 2)

	byName := map[string]map[string]any{}
	for _, entry := range body.Data {
		byName[entry["name"].(string)] = entry
	}
	assert.Equal(t, "success", byName["extract"]["status"])
	assert.Equal(t, "1 hr 30 min 0 sec", byName["extract"]["last_run_time"])
	assert.Equal(t, "ETL JOBS", byName["extract"]["category"])
	assert.Equal(t, "Never", byName["load"]["last_run_time"])
}

func TestHandleLastRunTimeByCategory(t *testing.T) {
	t.Parallel()

	ts, _ := testServer(t, &fakeStore{}, &fakePublisher{}, "")

	var body struct {
		Data map[string][]map[string]any `json:"data"`
	}
	getJSON(t, ts.URL+"/tasks/lastruntime/sorted/category", &body)
	require.Contains(t, body.Data, "ETL JOBS")
	assert.Len(t, body.Data["ETL JOBS"], 2)
}

func TestHandleCategories(t *testing.T) {
	t.Parallel()

	ts, _ := testServer(t, &fakeStore{}, &fakePublisher{}, "")

	var body struct {
		Data []string `json:"data"`
	}
	getJSON(t, ts.URL+"/tasks/categories", &body)
	assert.Equal(t, []string{"ETL JOBS"}, body.Data)
}

func TestHandleScheduledAndRepeating(t *testing.T) {
	t.Parallel()

	ts, _ := testServer(t, &fakeStore{}, &fakePublisher{}, "")

	var body struct {
		Data []map[string]any `json:"data"`
	}
	getJSON(t, ts.URL+"/tasks/scheduled", &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "extract", body.Data[0]["name"])
	assert.Equal(t, "06:30", body.Data[0]["time"])

	getJSON(t, ts.URL+"/tasks/repeating", &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "load", body.Data[0]["name"])
	assert.Equal(t, float64(15), body.Data[0]["every_minutes"])
}

func TestHandleHistory(t *testing.T) {
	t.Parallel()

	store := &fakeStore{tasks: []persistence.TaskRow{{Name: "extract", Status: "success"}}}
	ts, _ := testServer(t, store, &fakePublisher{}, "")

	var body struct {
		Data []map[string]any `json:"data"`
	}
	getJSON(t, ts.URL+"/task/history?name=extract&run_date=2026-08-25", &body)
	assert.Len(t, body.Data, 1)
	assert.Equal(t, "extract", store.filter.Name)
	assert.Equal(t, "2026-08-25", store.filter.RunDate)
}

func TestHandleLog(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "extract.log"),
		[]byte("line one\nline two\n"), 0600))
	ts, _ := testServer(t, &fakeStore{}, &fakePublisher{}, logDir)

	var body struct {
		Data []string `json:"data"`
	}
	resp := getJSON(t, ts.URL+"/task/log?name=extract", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"line one", "line two"}, body.Data)

	// Task without a log file configured.
	var errBody map[string]any
	resp = getJSON(t, ts.URL+"/task/log?name=load", &errBody)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleChildrenAndParents(t *testing.T) {
	t.Parallel()

	ts, _ := testServer(t, &fakeStore{}, &fakePublisher{}, "")

	var body struct {
		Data map[string][]string `json:"data"`
	}
	getJSON(t, ts.URL+"/task/children?name=extract", &body)
	assert.Equal(t, []string{"load"}, body.Data["extract"])

	getJSON(t, ts.URL+"/task/parents?name=load", &body)
	assert.Equal(t, []string{"extract"}, body.Data["load"])

	var errBody map[string]any
	resp := getJSON(t, ts.URL+"/task/children?name=missing", &errBody)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleMessagesToday(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messages: []persistence.MessageRow{
		{Message: "extract.done", Queue: "angora"},
	}}
	ts, _ := testServer(t, store, &fakePublisher{}, "")

	var body struct {
		Data []map[string]any `json:"data"`
	}
	getJSON(t, ts.URL+"/messages/today", &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "extract.done", body.Data[0]["message"])
}

func TestHandleReload(t *testing.T) {
	t.Parallel()

	ts, cat := testServer(t, &fakeStore{}, &fakePublisher{}, "")

	var body map[string]any
	resp := getJSON(t, ts.URL+"/tasks/reload", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["tasks"])
	assert.Len(t, cat.Tasks(), 2)
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	ts, _ := testServer(t, &fakeStore{}, &fakePublisher{}, "")

	var body map[string]any
	resp := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["uptime"])
}
