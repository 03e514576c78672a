//go:build windows

package sharedfile

import "golang.org/x/sys/windows"

// writable reports whether path can be written. Windows ignores the
// read-only attribute on directories, so any existing directory counts as
// writable; a file is writable unless it carries FILE_ATTRIBUTE_READONLY.
func writable(path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false
	}
	if attrs&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
		return true
	}
	return attrs&windows.FILE_ATTRIBUTE_READONLY == 0
}
