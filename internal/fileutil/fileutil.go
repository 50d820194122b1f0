// Package fileutil provides file helpers used by the runner and the
// HTTP API.
package fileutil

import (
	"bufio"
	"fmt"
	"os"
)

// FileExists reports whether the given path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether the given path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// OpenOrCreateFile opens the file at path for appending, creating it if
// necessary. Writes are synced so concurrent appenders do not interleave
// partial lines.
func OpenOrCreateFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_SYNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	return f, nil
}

// TailLines returns the last n lines of the file at path without holding
// more than n lines in memory.
func TailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if n <= 0 {
		return nil, nil
	}

	// Ring buffer over the scanned lines.
	ring := make([]string, n)
	var total int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[total%n] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	count := total
	if count > n {
		count = n
	}
	lines := make([]string, 0, count)
	for i := total - count; i < total; i++ {
		lines = append(lines, ring[i%n])
	}
	return lines, nil
}
