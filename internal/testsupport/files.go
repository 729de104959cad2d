package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// StageSource writes an uploaded source fixture under dir, creating parent
// directories as needed, and returns its path.
func StageSource(t testing.TB, dir, name string, contents []byte) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteFrames creates placeholder frame files named by source index and
// returns their paths in the given order.
func WriteFrames(t testing.TB, dir string, indexes ...int) []string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	paths := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		path := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", idx))
		if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		paths = append(paths, path)
	}
	return paths
}
