package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTaskFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDerivesGraph(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTaskFile(t, dir, "etl.yml", `
- name: extract
  command: echo extract
  triggers: [start]
  messages: [extract.done]
- name: transform
  command: echo transform
  triggers: [extract.done]
  messages: [transform.done]
- name: load
  command: echo load
  triggers: [transform.done, extract.done]
`)

	cat, err := Load(context.Background(), filepath.Join(dir, "*.yml"))
	require.NoError(t, err)
	require.Len(t, cat.Tasks(), 3)

	edges := cat.Edges()
	assert.ElementsMatch(t, []Edge{
		{Label: "extract.done", Source: "extract", Destination: "transform"},
		{Label: "extract.done", Source: "extract", Destination: "load"},
		{Label: "transform.done", Source: "transform", Destination: "load"},
	}, edges)

	load, err := cat.Get("load")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"extract", "transform"}, load.Parents)

	extract, err := cat.Get("extract")
	require.NoError(t, err)
	assert.Empty(t, extract.Parents)

	assert.Len(t, cat.TasksByTrigger("extract.done"), 2)
	assert.Empty(t, cat.TasksByTrigger("start.done"))

	_, err = cat.Get("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestChildAndParentTrees(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTaskFile(t, dir, "etl.yml", `
- name: extract
  command: echo extract
  messages: [extract.done]
- name: transform
  command: echo transform
  triggers: [extract.done]
  messages: [transform.done]
- name: load
  command: echo load
  triggers: [transform.done]
`)

	cat, err := Load(context.Background(), filepath.Join(dir, "*.yml"))
	require.NoError(t, err)

	children, err := cat.ChildTree("extract")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"extract":   {"transform"},
		"transform": {"load"},
		"load":      nil,
	}, children)

	parents, err := cat.ParentTree("load")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"load":      {"transform"},
		"transform": {"extract"},
		"extract":   nil,
	}, parents)

	// Memoized result is the same map per snapshot.
	again, err := cat.ChildTree("extract")
	require.NoError(t, err)
	assert.Equal(t, children, again)

	_, err = cat.ChildTree("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestTreesTerminateOnCycles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTaskFile(t, dir, "cycle.yml", `
- name: ping
  command: echo ping
  triggers: [pong.done]
  messages: [ping.done]
- name: pong
  command: echo pong
  triggers: [ping.done]
  messages: [pong.done]
- name: self
  command: echo self
  triggers: [self.done]
  messages: [self.done]
`)

	cat, err := Load(context.Background(), filepath.Join(dir, "*.yml"))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tree, err := cat.ChildTree("ping")
		assert.NoError(t, err)
		assert.Equal(t, map[string][]string{
			"ping": {"pong"},
			"pong": {"ping"},
		}, tree)

		tree, err = cat.ParentTree("self")
		assert.NoError(t, err)
		assert.Equal(t, map[string][]string{"self": {"self"}}, tree)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree traversal did not terminate on cyclic graph")
	}
}

func TestReloadKeepsPreviousSnapshotOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeTaskFile(t, dir, "tasks.yml", `
- name: alpha
  command: echo alpha
`)

	cat, err := Load(context.Background(), filepath.Join(dir, "*.yml"))
	require.NoError(t, err)
	require.Len(t, cat.Tasks(), 1)

	// Duplicate names must fail the reload wholesale.
	require.NoError(t, os.WriteFile(path, []byte(`
- name: alpha
  command: echo one
- name: alpha
  command: echo two
`), 0600))
	err = cat.Reload(context.Background())
	require.ErrorIs(t, err, ErrDuplicateTaskName)

	// Previous snapshot still serves.
	task, err := cat.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "echo alpha", task.Command)

	// Unknown keys fail too.
	require.NoError(t, os.WriteFile(path, []byte(`
- name: beta
  command: echo beta
  retries: 3
`), 0600))
	assert.Error(t, cat.Reload(context.Background()))
	assert.Len(t, cat.Tasks(), 1)
}

func TestCategories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTaskFile(t, dir, "billing_jobs.yml", `
- name: invoice
  command: echo invoice
`)
	writeTaskFile(t, dir, "reporting.yml", `
- name: report
  command: echo report
`)

	cat, err := Load(context.Background(), filepath.Join(dir, "*.yml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"BILLING JOBS", "REPORTING"}, cat.Categories())
}

func TestNormalizeExpandsVariables(t *testing.T) {
	t.Setenv("ANGORA_TEST_REGION", "eu-west")

	task := &Task{
		Name:    "export",
		Command: "export.sh ${ANGORA_TEST_REGION} $(date +%Y) $UNSET_ANGORA_VAR",
	}
	require.NoError(t, task.Normalize())

	year := time.Now().Format("2006")
	assert.Equal(t, "export.sh eu-west "+year+" $UNSET_ANGORA_VAR", task.Command)
}

func TestNormalizeLogDirectoryRule(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	task := &Task{Name: "My Job", Command: "echo hi", Log: dir}
	require.NoError(t, task.Normalize())
	assert.Equal(t, filepath.Join(dir, "my_job.log"), task.Log)

	// A non-directory path is kept as-is, and Normalize is idempotent.
	file := filepath.Join(dir, "custom.log")
	task = &Task{Name: "other", Command: "echo hi", Log: file}
	require.NoError(t, task.Normalize())
	require.NoError(t, task.Normalize())
	assert.Equal(t, file, task.Log)
}

func TestTaskMapRoundTrip(t *testing.T) {
	t.Parallel()

	replay := 2
	task := &Task{
		Name:          "export",
		Command:       "export.sh",
		Triggers:      []string{"start"},
		Messages:      []string{"export.done"},
		Parameters:    []string{"--fast"},
		Log:           "/tmp/export.log",
		ParentSuccess: true,
		Replay:        &replay,
		ConfigSource:  "etl.yml",
	}

	decoded, err := TaskFromMap(task.ToMap())
	require.NoError(t, err)
	assert.Equal(t, task.Name, decoded.Name)
	assert.Equal(t, task.Command, decoded.Command)
	assert.True(t, decoded.ParentSuccess)
	require.NotNil(t, decoded.Replay)
	assert.Equal(t, 2, *decoded.Replay)

	// Missing replay key means retry forever.
	decoded, err = TaskFromMap(map[string]any{"name": "t", "command": "c"})
	require.NoError(t, err)
	assert.Nil(t, decoded.Replay)

	_, err = TaskFromMap(map[string]any{"command": "c"})
	assert.Error(t, err)
	_, err = TaskFromMap(map[string]any{"name": "t"})
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	t.Parallel()

	replay := 1
	task := &Task{Name: "a", Command: "c", Parameters: []string{"x"}, Replay: &replay}
	clone := task.Clone()
	clone.Parameters[0] = "y"
	*clone.Replay = 9

	assert.Equal(t, "x", task.Parameters[0])
	assert.Equal(t, 1, *task.Replay)
}
