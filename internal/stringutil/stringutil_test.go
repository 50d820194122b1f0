package stringutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	tm := time.Date(2024, 3, 5, 9, 8, 7, 123456000, time.Local)
	assert.Equal(t, "2024-03-05 09:08:07.123456", FormatTime(tm))
	assert.Equal(t, "", FormatTime(time.Time{}))

	parsed, err := ParseTime("2024-03-05 09:08:07.123456")
	require.NoError(t, err)
	assert.True(t, tm.Equal(parsed))
}

func TestStartOfDay(t *testing.T) {
	t.Parallel()

	tm := time.Date(2024, 3, 5, 23, 59, 59, 0, time.Local)
	start := StartOfDay(tm)
	assert.Equal(t, "2024-03-05 00:00:00.000000", FormatTime(start))
	assert.Equal(t, "2024-03-05", FormatDate(tm))
}

func TestTruncString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", TruncString("abcdef", 3))
	assert.Equal(t, "ab", TruncString("ab", 3))
}

func TestTaskLogName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "my_job.log", TaskLogName("My Job"))
	assert.Equal(t, "backup.log", TaskLogName("backup"))
}

func TestCategoryDisplay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NIGHTLY JOBS", CategoryDisplay("nightly_jobs.yml"))
	assert.Equal(t, "ADHOC", CategoryDisplay("adhoc.yaml"))
}
