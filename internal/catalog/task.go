// Package catalog loads task specifications from declarative YAML files
// and derives the message/trigger dependency graph between them.
package catalog

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

var (
	// ErrDuplicateTaskName is returned when two catalog entries share a name.
	ErrDuplicateTaskName = errors.New("duplicate task name")
	// ErrTaskNotFound is returned when a lookup by name misses.
	ErrTaskNotFound = errors.New("task not found")
)

// Task is one catalog entry: a shell command with the message labels that
// trigger it and the labels it emits on success.
type Task struct {
	// Name uniquely identifies the task catalog-wide.
	Name string `json:"name" mapstructure:"name"`
	// Command is the shell command, subject to variable expansion.
	Command string `json:"command" mapstructure:"command"`
	// Triggers are the message labels that cause this task to be queued.
	Triggers []string `json:"triggers" mapstructure:"triggers"`
	// Messages are the labels emitted on successful completion.
	Messages []string `json:"messages" mapstructure:"messages"`
	// Parameters are appended to the command line at execution. Incoming
	// message payloads overwrite them at dispatch.
	Parameters []string `json:"parameters" mapstructure:"parameters"`
	// Log is the path stdout and stderr are appended to. A directory gets
	// the task's derived log file name appended; empty inherits stdio.
	Log string `json:"log" mapstructure:"log"`
	// ParentSuccess requires every parent to have succeeded today before
	// this task runs.
	ParentSuccess bool `json:"parent_success" mapstructure:"parent_success"`
	// Replay is the retry budget: nil means retry forever, N means at most
	// N further retries.
	Replay *int `json:"replay" mapstructure:"replay"`
	// ConfigSource is the file this task was loaded from.
	ConfigSource string `json:"config_source" mapstructure:"config_source"`
	// Parents is derived on reload: the names of tasks whose messages
	// intersect this task's triggers.
	Parents []string `json:"parents" mapstructure:"parents"`
}

// ToMap renders the task as a string-keyed map, the shape carried in
// envelope payloads.
func (t *Task) ToMap() map[string]any {
	var replay any
	if t.Replay != nil {
		replay = *t.Replay
	}
	return map[string]any{
		"name":           t.Name,
		"command":        t.Command,
		"triggers":       t.Triggers,
		"messages":       t.Messages,
		"parameters":     t.Parameters,
		"log":            t.Log,
		"parent_success": t.ParentSuccess,
		"replay":         replay,
		"config_source":  t.ConfigSource,
		"parents":        t.Parents,
	}
}

// TaskFromMap decodes a task from a string-keyed map, validating the key
// set. Unknown keys are an error so authoring typos surface at the parse
// boundary instead of silently dropping fields.
func TaskFromMap(data map[string]any) (*Task, error) {
	var task Task
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &task,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build task decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	if task.Name == "" {
		return nil, errors.New("task name is required")
	}
	if task.Command == "" {
		return nil, fmt.Errorf("task %s: command is required", task.Name)
	}
	return &task, nil
}

// Clone returns a deep copy; the runner mutates its working copy during
// one execution.
func (t *Task) Clone() *Task {
	clone := *t
	clone.Triggers = append([]string(nil), t.Triggers...)
	clone.Messages = append([]string(nil), t.Messages...)
	clone.Parameters = append([]string(nil), t.Parameters...)
	clone.Parents = append([]string(nil), t.Parents...)
	if t.Replay != nil {
		replay := *t.Replay
		clone.Replay = &replay
	}
	return &clone
}
