// SharedFile: one physical file, locked across goroutines and processes.
//
// Lock order is always in-process first, process-level second, and the
// process-level lock is only touched at the outer boundary: the first Lock
// of a goroutine takes it, the matching final Unlock releases it, and
// reentrant calls in between only move the hold count. A failure to take
// the process lock rolls back the in-process lock before returning, and a
// failure to release it is logged, never returned.
package sharedfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultRetryDelay is the polling interval TryLockContext uses when none is
// given.
const DefaultRetryDelay = 10 * time.Millisecond

// SharedFile is the per-file lock state. Obtain one from a Registry; there
// is no Close, a SharedFile lives as long as something references it.
type SharedFile struct {
	path     string
	readOnly bool
	mode     os.FileMode
	kind     Strategy
	log      *log.Logger
	strategy LockStrategy
	mu       reentrantMutex
}

// newSharedFile never fails. If the file cannot be created the SharedFile
// comes back read-only.
func newSharedFile(path string, opts Options) *SharedFile {
	f := &SharedFile{
		path: path,
		mode: opts.FileMode,
		kind: opts.Strategy.resolve(),
		log:  opts.Logger,
	}
	if !opts.ReadOnly && !exists(path) {
		if err := create(path, opts.FileMode); err != nil {
			f.log.Error("create backing file", "path", path, "err", err)
		}
	}
	f.readOnly = opts.ReadOnly || readOnly(path)
	f.strategy = newStrategy(f.kind, path, f.readOnly)
	return f
}

// Path returns the canonical path of the file.
func (f *SharedFile) Path() string { return f.path }

// IsReadOnly reports whether the file was found unwritable at construction.
func (f *SharedFile) IsReadOnly() bool { return f.readOnly }

// Strategy returns the process-level lock in use.
func (f *SharedFile) Strategy() Strategy { return f.kind }

// ProcessLocked reports whether this process holds the process-level lock.
func (f *SharedFile) ProcessLocked() bool { return f.strategy.Locked() }

// HeldByCurrentGoroutine reports whether the calling goroutine holds the
// lock.
func (f *SharedFile) HeldByCurrentGoroutine() bool { return f.mu.heldByCurrent() }

// HoldCount returns the calling goroutine's reentrancy depth (0 if it does
// not hold the lock).
func (f *SharedFile) HoldCount() int { return f.mu.holdCount() }

// Lock blocks until the calling goroutine holds the file in this process and
// this process holds it on disk. A missing writable file is created first.
// Every successful Lock must be paired with one Unlock.
func (f *SharedFile) Lock() error {
	if !f.readOnly && !exists(f.path) {
		if err := create(f.path, f.mode); err != nil {
			return fmt.Errorf("create %s: %w", f.path, err)
		}
	}
	if !f.mu.lock() {
		return nil
	}
	if err := f.strategy.Lock(); err != nil {
		f.mu.release()
		return fmt.Errorf("lock %s: %w", f.path, err)
	}
	return nil
}

// TryLock acquires the lock without blocking. Any failure, contention or
// I/O, is reported as false; I/O causes are logged at debug level.
func (f *SharedFile) TryLock() bool {
	if !f.readOnly && !exists(f.path) {
		if err := create(f.path, f.mode); err != nil {
			f.log.Debug("trylock: create backing file", "path", f.path, "err", err)
			return false
		}
	}
	acquired, outer := f.mu.tryLock()
	if !acquired {
		return false
	}
	if !outer {
		return true
	}
	ok, err := f.strategy.TryLock()
	if err != nil {
		f.log.Debug("trylock: process lock", "path", f.path, "err", err)
	}
	if err != nil || !ok {
		f.mu.release()
		return false
	}
	return true
}

// TryLockContext polls TryLock every retryDelay until it succeeds or ctx
// ends. It is the bounded-wait form of Lock.
func (f *SharedFile) TryLockContext(ctx context.Context, retryDelay time.Duration) (bool, error) {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	ticker := time.NewTicker(retryDelay)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if f.TryLock() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock releases one hold. It is a no-op when the calling goroutine does
// not hold the lock. The process lock is released on the final hold only,
// and the in-process lock is released even if that fails.
func (f *SharedFile) Unlock() {
	held, last := f.mu.leave()
	if !held || !last {
		return
	}
	defer f.mu.release()
	if err := f.strategy.Unlock(); err != nil {
		f.log.Error("release process lock", "path", f.path, "err", err)
	}
}

// WithLock runs fn while holding the lock.
func (f *SharedFile) WithLock(fn func() error) error {
	if err := f.Lock(); err != nil {
		return err
	}
	defer f.Unlock()
	return fn()
}

func (f *SharedFile) String() string {
	return fmt.Sprintf("%s (%s, read-only=%t)", f.path, f.kind, f.readOnly)
}

// readOnly applies the construction-time rule: unwritable parent, or an
// existing file that is itself unwritable.
func readOnly(path string) bool {
	if !writable(filepath.Dir(path)) {
		return true
	}
	return exists(path) && !writable(path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// create makes an empty file without truncating one that appeared
// concurrently.
func create(path string, mode os.FileMode) error {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return fh.Close()
}
