// Package sharedfile lets independent processes, and goroutines within each
// process, share one small on-disk text file. Every SharedFile combines a
// reentrant in-process lock with a process-level lock on the physical file,
// and LineStore builds whole-file, line-oriented read/modify/write cycles on
// top of it.
//
// The process-level lock is a native advisory lock (flock / LockFileEx) where
// release is reliable, and a "<name>.lock" sentinel file on Windows, where
// it is not. A Registry hands out exactly one SharedFile per canonical path
// so that all callers in a process cooperate through the same in-process
// lock.
package sharedfile

import "errors"

// Sentinel errors for programmatic handling. Callers can use errors.Is to
// tell contention (ErrAlreadyLocked) apart from misuse (ErrNotLocked,
// ErrReadOnly) and malformed content (ErrLineTooLong).
var (
	ErrAlreadyLocked = errors.New("file is locked by another process")
	ErrNotLocked     = errors.New("lock not held by current goroutine")
	ErrLineTooLong   = errors.New("line exceeds maximum size")
	ErrReadOnly      = errors.New("file is read-only")
	ErrNotFound      = errors.New("key not found")
	ErrInvalidEntry  = errors.New("invalid key or value")
	ErrEmptyPath     = errors.New("path cannot be empty")
)
