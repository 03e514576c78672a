//go:build unix

package sharedfile

import "golang.org/x/sys/unix"

// writable reports whether the current user may write path, following the
// same access(2) rules the kernel applies to open.
func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}
