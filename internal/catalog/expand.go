package catalog

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/angora-org/angora/internal/fileutil"
	"github.com/angora-org/angora/internal/stringutil"
)

var (
	// dateRe matches the restricted $(date ...) substitution. Only the
	// date command is honored; no shell is ever invoked.
	dateRe = regexp.MustCompile(`\$\(date[^)]*\)`)
	// envRe matches $VAR and ${VAR} references.
	envRe = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)
)

// ExpandVars performs the two-stage variable expansion on a command or
// log string: $(date <args>) substrings are replaced by the first stdout
// line of /bin/date invoked with shell-split args, then $VAR and ${VAR}
// are expanded against the process environment. Unset variables are left
// untouched.
func ExpandVars(value string) (string, error) {
	var dateErr error
	value = dateRe.ReplaceAllStringFunc(value, func(match string) string {
		inner := strings.TrimSuffix(strings.TrimPrefix(match, "$("), ")")
		words, err := shellwords.Parse(inner)
		if err != nil {
			dateErr = fmt.Errorf("failed to parse %q: %w", match, err)
			return match
		}
		// words[0] is the literal "date".
		out, err := exec.Command("/bin/date", words[1:]...).Output()
		if err != nil {
			dateErr = fmt.Errorf("failed to run %q: %w", match, err)
			return match
		}
		line, _, _ := strings.Cut(string(out), "\n")
		return line
	})
	if dateErr != nil {
		return "", dateErr
	}

	value = envRe.ReplaceAllStringFunc(value, func(match string) string {
		name := strings.Trim(match[1:], "{}")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
	return value, nil
}

// Normalize applies variable expansion to the command and log path, and
// the directory rule to the log path: an existing directory gets the
// task's derived log file name appended. Normalize is idempotent, so it
// is safe to apply both at catalog load and when the runner instantiates
// its working copy.
func (t *Task) Normalize() error {
	command, err := ExpandVars(t.Command)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.Name, err)
	}
	t.Command = command

	if t.Log == "" {
		return nil
	}
	log, err := ExpandVars(t.Log)
	if err != nil {
		return fmt.Errorf("task %s: %w", t.Name, err)
	}
	if fileutil.IsDir(log) {
		log = filepath.Join(log, stringutil.TaskLogName(t.Name))
	}
	t.Log = log
	return nil
}
