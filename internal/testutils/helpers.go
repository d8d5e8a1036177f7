package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetupSpecDir creates a temporary directory holding the given specification
// documents (file name to YAML content) and returns its absolute path.
// It fails the test immediately on error.
func SetupSpecDir(t *testing.T, files map[string]string) string {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	for name, content := range files {
		WriteSpec(t, absPath, name, content)
	}
	return absPath
}

// WriteSpec creates or replaces one document in dir.
func WriteSpec(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644), "Failed to write %s", name)
}
