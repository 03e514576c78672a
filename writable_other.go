//go:build !unix && !windows

package sharedfile

import "os"

// writable approximates access(2) from the owner write bit on platforms
// without a native probe.
func writable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().Perm()&0o200 != 0
}
