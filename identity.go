// Canonical file identity.
//
// Two names for the same file must map to the same registry key, whether
// the file exists yet or not. Existing paths are resolved through
// EvalSymlinks. For a path that does not exist, the nearest existing
// ancestor is resolved and the missing tail re-joined, so the key computed
// before the file is created equals the key computed after.
package sharedfile

import (
	"os"
	"path/filepath"
)

// Canonical returns the absolute, cleaned, symlink-resolved form of path.
func Canonical(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var tail []string
	dir := abs
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			parts := append([]string{resolved}, tail...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return abs, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
	}
}
