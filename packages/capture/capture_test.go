package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screenshot.sh")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

func TestCapture_InvokesScriptWithPositionalArgs(t *testing.T) {
	// The stand-in script writes its arguments where the image would go.
	script := writeScript(t, "#!/bin/sh\necho \"$1 $3\" > \"$2\"\n")
	imagePath := filepath.Join(t.TempDir(), "github", "001.png")

	r := NewRunner("sh", script)
	err := r.Capture(context.Background(), 42, imagePath, "http://localhost:9991")
	require.NoError(t, err)

	data, err := os.ReadFile(imagePath)
	require.NoError(t, err)
	assert.Equal(t, "42 http://localhost:9991", strings.TrimSpace(string(data)))
}

func TestCapture_CreatesImageDirectory(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\ntouch \"$2\"\n")
	imagePath := filepath.Join(t.TempDir(), "deeply", "nested", "001.png")

	r := NewRunner("sh", script)
	require.NoError(t, r.Capture(context.Background(), 1, imagePath, "http://localhost:9991"))

	_, err := os.Stat(imagePath)
	assert.NoError(t, err)
}

func TestCapture_NonZeroExit(t *testing.T) {
	script := writeScript(t, "#!/bin/sh\necho \"browser crashed\"\nexit 1\n")

	r := NewRunner("sh", script)
	err := r.Capture(context.Background(), 42, filepath.Join(t.TempDir(), "001.png"), "http://localhost:9991")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "screenshot script failed")
	assert.Contains(t, err.Error(), "browser crashed")
}
