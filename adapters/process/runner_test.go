package process

import (
	"bytes"
	"context"
	"log"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunner_Success(t *testing.T) {
	requireShell(t)
	r := NewRunner(internal.NewLogger(internal.LogLevelError))
	out, err := r.Run(context.Background(), ports.Command{Path: "sh", Args: []string{"-c", "echo hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(string(out)))
}

func TestRunner_ToolOutputLoggedAtTrace(t *testing.T) {
	requireShell(t)
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	tests := []struct {
		level internal.LogLevel
		want  bool
	}{
		{internal.LogLevelDebug, false},
		{internal.LogLevelTrace, true},
	}
	for _, tt := range tests {
		buf.Reset()
		r := NewRunner(internal.NewLogger(tt.level))
		_, err := r.Run(context.Background(), ports.Command{Path: "sh", Args: []string{"-c", "echo sampled 200"}})
		require.NoError(t, err)
		assert.Equal(t, tt.want, strings.Contains(buf.String(), "[TRACE] [process] sh output:\nsampled 200"), buf.String())
	}
}

func TestRunner_WorkingDirectory(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	r := NewRunner(internal.NewLogger(internal.LogLevelError))
	_, err := r.Run(context.Background(), ports.Command{Path: "sh", Args: []string{"-c", "echo x > marker"}, Dir: dir})
	require.NoError(t, err)
	assert.FileExists(t, dir+"/marker")
}

func TestRunner_FailureIsExternalProcessError(t *testing.T) {
	requireShell(t)
	r := NewRunner(internal.NewLogger(internal.LogLevelError))
	_, err := r.Run(context.Background(), ports.Command{Path: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeExternalProcess))
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestRunner_Cancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(internal.NewLogger(internal.LogLevelError))
	_, err := r.Run(ctx, ports.Command{Path: "sh", Args: []string{"-c", "sleep 5"}})
	assert.True(t, errors.HasCode(err, errors.CodeExternalProcess))
}

func TestLimitedBuffer_KeepsTail(t *testing.T) {
	var b limitedBuffer
	b.Write([]byte(strings.Repeat("a", maxOutput)))
	b.Write([]byte("tail"))
	assert.Equal(t, maxOutput, b.Len())
	assert.True(t, strings.HasSuffix(b.String(), "tail"))
}
