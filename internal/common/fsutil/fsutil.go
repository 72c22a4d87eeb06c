package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory. Other paths
// are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")), nil
}

// CacheDir returns the per-user directory for downloaded weights, falling
// back to a directory under the system temp dir.
func CacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "chatd", "models")
	}
	return filepath.Join(os.TempDir(), "chatd", "models")
}

// FileSize returns the size of the regular file at path. ok is false when
// the path is missing or is a directory.
func FileSize(path string) (size int64, ok bool) {
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return 0, false
	}
	return st.Size(), true
}

// EnsureParent creates the directory that will hold path.
func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
