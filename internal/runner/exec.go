package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/angora-org/angora/internal/catalog"
	"github.com/angora-org/angora/internal/fileutil"
	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/stringutil"
)

// execCommand runs the task's shell-split command with its parameters
// appended. Output is appended to the task's log file, or inherited from
// the worker process when no log is configured.
func (r *Runner) execCommand(ctx context.Context, task *catalog.Task) error {
	words, err := shellwords.Parse(task.Command)
	if err != nil {
		return fmt.Errorf("failed to parse command %q: %w", task.Command, err)
	}
	if len(words) == 0 {
		return fmt.Errorf("task %s has an empty command", task.Name)
	}
	args := append(words[1:], task.Parameters...)

	cmd := exec.CommandContext(ctx, words[0], args...)
	if task.Log != "" {
		file, err := fileutil.OpenOrCreateFile(task.Log)
		if err != nil {
			return fmt.Errorf("failed to open log %s: %w", task.Log, err)
		}
		defer func() {
			_ = file.Close()
		}()
		cmd.Stdout = file
		cmd.Stderr = file
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	logger.Info(ctx, "Running command", "task", task.Name, "command", task.Command)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %q: %w", task.Command, err)
	}
	return nil
}

// appendLog writes a timestamped note to the task's log file. Tasks
// without a log file get the note on the worker's stderr instead.
func (r *Runner) appendLog(ctx context.Context, task *catalog.Task, note string) {
	line := fmt.Sprintf("%s %s\n", stringutil.FormatTime(time.Now()), note)
	if task.Log == "" {
		fmt.Fprint(os.Stderr, line)
		return
	}
	file, err := fileutil.OpenOrCreateFile(task.Log)
	if err != nil {
		logger.Error(ctx, "Failed to open task log", "task", task.Name, "err", err)
		return
	}
	defer func() {
		_ = file.Close()
	}()
	if _, err := file.WriteString(line); err != nil {
		logger.Error(ctx, "Failed to append task log", "task", task.Name, "err", err)
	}
}
