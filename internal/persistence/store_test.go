package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angora-org/angora/internal/stringutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "angora.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func stamp(t *testing.T, offset time.Duration) string {
	t.Helper()
	return stringutil.FormatTime(time.Now().Add(offset))
}

func TestInsertAndQueryMessages(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertMessage(ctx, "angora", "angora", "load.complete",
		map[string]any{"rows": 42}, stamp(t, -time.Minute)))
	require.NoError(t, store.InsertMessage(ctx, "angora", "angora", "export.start",
		nil, stamp(t, 0)))
	// Yesterday's message must not show up in today's view.
	require.NoError(t, store.InsertMessage(ctx, "angora", "angora", "old",
		nil, stringutil.FormatTime(time.Now().AddDate(0, 0, -1))))

	messages, err := store.GetMessagesToday(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "load.complete", messages[0].Message)
	assert.JSONEq(t, `{"rows":42}`, messages[0].Data)
	assert.Equal(t, "export.start", messages[1].Message)
	assert.Empty(t, messages[1].Data)
}

func TestGetTasksFilters(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	rows := []TaskRow{
		{Name: "extract", Trigger: "start", Command: "extract.sh", Status: "start", TimeStamp: stamp(t, -3 * time.Minute)},
		{Name: "extract", Trigger: "start", Command: "extract.sh", Status: "success", TimeStamp: stamp(t, -2 * time.Minute)},
		{Name: "load", Trigger: "extract.done", Command: "load.sh", Status: "fail", TimeStamp: stamp(t, -time.Minute)},
	}
	for _, row := range rows {
		require.NoError(t, store.InsertTask(ctx, row))
	}

	got, err := store.GetTasks(ctx, TaskFilter{Name: "extract"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "start", got[0].Status)
	assert.Equal(t, "success", got[1].Status)

	got, err = store.GetTasks(ctx, TaskFilter{Status: "fail"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "load", got[0].Name)

	got, err = store.GetTasks(ctx, TaskFilter{RunDate: stringutil.FormatDate(time.Now())})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.GetTasks(ctx, TaskFilter{RunDate: "1999-01-01"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.GetTasks(ctx, TaskFilter{Trigger: "extract.done", Command: "load.sh"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "load", got[0].Name)
}

func TestGetTasksToday(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertTask(ctx, TaskRow{
		Name: "old", Status: "success",
		TimeStamp: stringutil.FormatTime(time.Now().AddDate(0, 0, -1)),
	}))
	require.NoError(t, store.InsertTask(ctx, TaskRow{Name: "fresh", Status: "success"}))

	got, err := store.GetTasksToday(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Name)

	got, err = store.GetTasksToday(ctx, "fail")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetTasksLatest(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	rows := []TaskRow{
		{Name: "extract", Status: "start", TimeStamp: stamp(t, -4 * time.Minute)},
		{Name: "extract", Status: "success", TimeStamp: stamp(t, -3 * time.Minute)},
		{Name: "load", Status: "start", TimeStamp: stamp(t, -2 * time.Minute)},
		{Name: "load", Status: "fail", TimeStamp: stamp(t, -time.Minute)},
		// Yesterday's run of extract is out of scope.
		{Name: "extract", Status: "fail", TimeStamp: stringutil.FormatTime(time.Now().AddDate(0, 0, -1))},
	}
	for _, row := range rows {
		require.NoError(t, store.InsertTask(ctx, row))
	}

	got, err := store.GetTasksLatest(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "extract", got[0].Name)
	assert.Equal(t, "success", got[0].Status)
	assert.Equal(t, "load", got[1].Name)
	assert.Equal(t, "fail", got[1].Status)

	got, err = store.GetTasksLatest(ctx, "load")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fail", got[0].Status)

	got, err = store.GetTasksLatest(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRebindPostgres(t *testing.T) {
	t.Parallel()

	s := &Store{dialect: "postgres"}
	assert.Equal(t, "SELECT $1, $2", s.rebind("SELECT ?, ?"))

	s = &Store{dialect: "sqlite3"}
	assert.Equal(t, "SELECT ?, ?", s.rebind("SELECT ?, ?"))
}
