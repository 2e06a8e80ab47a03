package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAndReadChunk(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, StartConfig{Command: `echo hello`})
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := p.ReadChunk(ctx, buf, time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "hello")

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestReadChunkTimesOutOnSilentProcess(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, StartConfig{Command: `sleep 2`})
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, err = p.ReadChunk(ctx, buf, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadTimeout)

	require.NoError(t, p.Terminate(time.Second))
}

func TestNonZeroExitCodeReported(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, StartConfig{Command: `exit 3`})
	require.NoError(t, err)

	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestTerminateKillsLongRunningProcess(t *testing.T) {
	ctx := context.Background()
	p, err := Start(ctx, StartConfig{Command: `trap '' TERM; sleep 30`})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, p.Terminate(200*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second, "Terminate must fall back to SIGKILL rather than hang")
}

func TestEnvAndWorkingDirApplied(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p, err := Start(ctx, StartConfig{
		Command:    `echo "$GREETING:$(pwd)"`,
		WorkingDir: dir,
		Env:        map[string]string{"GREETING": "hi"},
	})
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := p.ReadChunk(ctx, buf, time.Second)
	require.NoError(t, err)
	out := string(buf[:n])
	assert.Contains(t, out, "hi:")
	assert.Contains(t, out, dir)

	_, err = p.Wait()
	require.NoError(t, err)
}
