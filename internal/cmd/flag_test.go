package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericFlagsRejectGarbage(t *testing.T) {
	assert.Error(t, CmdWorker().ParseFlags([]string{"--concurrency", "12abc"}))
	assert.Error(t, CmdReplay().ParseFlags([]string{"--ttl", "10s"}))
	assert.Error(t, CmdWeb().ParseFlags([]string{"--port", "80x"}))
}

func TestNumericFlagsParse(t *testing.T) {
	cmd := CmdWorker()
	require.NoError(t, cmd.ParseFlags([]string{"--concurrency", "4"}))
	n, err := cmd.Flags().GetInt("concurrency")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	cmd = CmdWeb()
	require.NoError(t, cmd.ParseFlags([]string{"-p", "8080"}))
	port, err := cmd.Flags().GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)
}
