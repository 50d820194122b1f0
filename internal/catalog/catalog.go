package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/stringutil"
)

// Catalog holds the loaded task set and its derived dependency graph.
// Reload swaps in a complete new snapshot atomically; readers always see
// a consistent view and a failed reload keeps the previous one.
type Catalog struct {
	pattern string

	mu   sync.RWMutex
	snap *snapshot
}

type snapshot struct {
	tasks     []*Task
	byName    map[string]*Task
	byTrigger map[string][]*Task
	edges     []Edge

	memoMu      sync.Mutex
	childTrees  map[string]map[string][]string
	parentTrees map[string]map[string][]string
}

// New builds an empty catalog over the given glob pattern. Call Reload to
// populate it.
func New(pattern string) *Catalog {
	return &Catalog{
		pattern: pattern,
		snap:    newSnapshot(nil),
	}
}

// Load builds a catalog and performs the initial reload.
func Load(ctx context.Context, pattern string) (*Catalog, error) {
	c := New(pattern)
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newSnapshot(tasks []*Task) *snapshot {
	snap := &snapshot{
		tasks:       tasks,
		byName:      make(map[string]*Task, len(tasks)),
		byTrigger:   make(map[string][]*Task),
		childTrees:  make(map[string]map[string][]string),
		parentTrees: make(map[string]map[string][]string),
	}
	for _, task := range tasks {
		snap.byName[task.Name] = task
		for _, trigger := range task.Triggers {
			snap.byTrigger[trigger] = append(snap.byTrigger[trigger], task)
		}
	}
	snap.edges = buildEdges(tasks)

	parents := parentsOf(snap.edges)
	for _, task := range tasks {
		task.Parents = append([]string(nil), parents[task.Name]...)
	}
	return snap
}

// Reload re-reads every task file and swaps in the new snapshot. On any
// parse or validation error the current snapshot is retained and the
// error returned.
func (c *Catalog) Reload(ctx context.Context) error {
	tasks, err := loadFiles(c.pattern)
	if err != nil {
		logger.Error(ctx, "Catalog reload failed", "err", err)
		return fmt.Errorf("catalog reload: %w", err)
	}

	c.mu.Lock()
	c.snap = newSnapshot(tasks)
	c.mu.Unlock()

	logger.Info(ctx, "Catalog reloaded", "tasks", len(tasks), "pattern", c.pattern)
	return nil
}

func (c *Catalog) snapshot() *snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Tasks returns the current task set.
func (c *Catalog) Tasks() []*Task {
	return c.snapshot().tasks
}

// Get looks up a task by name.
func (c *Catalog) Get(name string) (*Task, error) {
	task, ok := c.snapshot().byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return task, nil
}

// TasksByTrigger returns every task whose triggers include the label.
func (c *Catalog) TasksByTrigger(label string) []*Task {
	return c.snapshot().byTrigger[label]
}

// Edges returns the derived dependency edges.
func (c *Catalog) Edges() []Edge {
	return c.snapshot().edges
}

// Categories returns the distinct display categories of the loaded tasks,
// sorted. A category is derived from the task's source file name.
func (c *Catalog) Categories() []string {
	categories := lo.Uniq(lo.Map(c.snapshot().tasks, func(t *Task, _ int) string {
		return stringutil.CategoryDisplay(t.ConfigSource)
	}))
	sort.Strings(categories)
	return categories
}

// ChildTree returns, for the named task and every descendant, the
// immediate children of that node. Results are memoized per snapshot.
func (c *Catalog) ChildTree(name string) (map[string][]string, error) {
	snap := c.snapshot()
	if _, ok := snap.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}

	snap.memoMu.Lock()
	defer snap.memoMu.Unlock()
	if tree, ok := snap.childTrees[name]; ok {
		return tree, nil
	}
	tree := subTree(name, childrenOf(snap.edges))
	snap.childTrees[name] = tree
	return tree, nil
}

// ParentTree returns, for the named task and every ancestor, the
// immediate parents of that node. Results are memoized per snapshot.
func (c *Catalog) ParentTree(name string) (map[string][]string, error) {
	snap := c.snapshot()
	if _, ok := snap.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}

	snap.memoMu.Lock()
	defer snap.memoMu.Unlock()
	if tree, ok := snap.parentTrees[name]; ok {
		return tree, nil
	}
	tree := subTree(name, parentsOf(snap.edges))
	snap.parentTrees[name] = tree
	return tree, nil
}
