package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CreateTempFile returns a fresh file path under the test's temp dir. The
// file itself is not created.
func CreateTempFile(t *testing.T) (string, func()) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	tempFile := filepath.Join(t.TempDir(), name+".dat")
	return tempFile, func() {
		os.Remove(tempFile)
	}
}
