package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
)

// loadFiles reads every task file matching the glob pattern. Each file is
// a YAML sequence of task definitions. Any parse error fails the whole
// load so a broken edit never replaces a working catalog.
func loadFiles(pattern string) ([]*Task, error) {
	files, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog pattern %q: %w", pattern, err)
	}
	sort.Strings(files)

	var tasks []*Task
	seen := make(map[string]string)

	for _, file := range files {
		loaded, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		for _, task := range loaded {
			if prev, ok := seen[task.Name]; ok {
				return nil, fmt.Errorf("%w: %s (in %s and %s)",
					ErrDuplicateTaskName, task.Name, prev, filepath.Base(file))
			}
			seen[task.Name] = filepath.Base(file)
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func loadFile(file string) ([]*Task, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", file, err)
	}

	var defs []map[string]any
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", file, err)
	}

	tasks := make([]*Task, 0, len(defs))
	for i, def := range defs {
		task, err := TaskFromMap(def)
		if err != nil {
			return nil, fmt.Errorf("task file %s entry %d: %w", file, i, err)
		}
		task.ConfigSource = filepath.Base(file)
		if err := task.Normalize(); err != nil {
			return nil, fmt.Errorf("task file %s: %w", file, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
