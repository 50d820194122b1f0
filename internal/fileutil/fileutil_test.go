package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "exists.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(filepath.Join(dir, "missing.txt")))
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(file))
}

func TestOpenOrCreateFileAppends(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "out.log")

	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenOrCreateFile(file)
		require.NoError(t, err)
		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestTailLines(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "tail.log")
	var sb strings.Builder
	for i := 1; i <= 250; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(file, []byte(sb.String()), 0600))

	lines, err := TailLines(file, 100)
	require.NoError(t, err)
	require.Len(t, lines, 100)
	assert.Equal(t, "line 151", lines[0])
	assert.Equal(t, "line 250", lines[99])

	short, err := TailLines(file, 1000)
	require.NoError(t, err)
	assert.Len(t, short, 250)
}
