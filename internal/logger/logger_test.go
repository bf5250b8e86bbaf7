package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritersDefaultPaths(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers(42)
	require.NoError(t, err)
	require.NotNil(t, outW)
	require.NotNil(t, errW)
	defer func() { _ = outW.Close(); _ = errW.Close() }()

	_, err = outW.Write([]byte("hello stdout\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("hello stderr\n"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "worker-42.stdout.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello stdout")
	b, err = os.ReadFile(filepath.Join(dir, "worker-42.stderr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello stderr")
}

func TestWritersExplicitPathOverridesDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir, StdoutPath: filepath.Join(dir, "custom.log")}
	outW, _, err := c.Writers(7)
	require.NoError(t, err)
	require.NotNil(t, outW)
	defer func() { _ = outW.Close() }()
	_, err = outW.Write([]byte("x"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "custom.log"))
	assert.NoError(t, err)
}

func TestWritersEmptyConfig(t *testing.T) {
	outW, errW, err := Config{}.Writers(1)
	require.NoError(t, err)
	assert.Nil(t, outW)
	assert.Nil(t, errW)
}

func TestColorTextHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))
	lg.Info("supervisor up")
	lg.Error("worker down")
	out := buf.String()
	assert.True(t, strings.Contains(out, "\033[32m"), "info should be colored green")
	assert.True(t, strings.Contains(out, "\033[31m"), "error should be colored red")
	assert.Contains(t, out, "supervisor up")
	assert.Contains(t, out, "worker down")
}
