// Advisory-lock strategy.
//
// The whole target file is locked with flock(2) on unix and LockFileEx on
// Windows, through gofrs/flock. The lock is taken once per outer
// acquisition and a fresh *flock.Flock is used each time, so a handle left
// behind by a failed unlock can never be reused. A read-only target is
// opened for reading but never locked at the OS level; nothing will write
// it, and a writable handle may not even be obtainable.
//
// SharedFile serialises Lock, TryLock and Unlock through its in-process
// lock. mu only guards the handles against concurrent Locked calls and is
// never held while waiting on another process.
package sharedfile

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
)

type advisoryLock struct {
	target   string
	readOnly bool
	locked   atomic.Bool

	mu     sync.Mutex
	flock  *flock.Flock // set while OS-locked
	reader *os.File     // set while "locked" on a read-only target
}

// Lock blocks until the OS lock is granted. A missing target is not locked.
func (l *advisoryLock) Lock() error {
	if l.locked.Load() || !regular(l.target) {
		return nil
	}
	if l.readOnly {
		return l.openReader()
	}

	fl := flock.New(l.target, flock.SetFlag(os.O_RDWR))
	if err := fl.Lock(); err != nil {
		fl.Close()
		return err
	}
	l.hold(fl)
	return nil
}

// TryLock attempts the OS lock without waiting for other processes.
func (l *advisoryLock) TryLock() (bool, error) {
	if l.locked.Load() || !regular(l.target) {
		return true, nil
	}
	if l.readOnly {
		if err := l.openReader(); err != nil {
			return false, err
		}
		return true, nil
	}

	fl := flock.New(l.target, flock.SetFlag(os.O_RDWR))
	ok, err := fl.TryLock()
	if err != nil || !ok {
		fl.Close()
		return false, err
	}
	l.hold(fl)
	return true, nil
}

// Unlock releases the OS lock if held and drops every handle. gofrs closes
// the descriptor only when the release succeeds; after a failed release the
// *os.File is unreachable and its descriptor is closed when it is
// collected.
func (l *advisoryLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.locked.Store(false)

	var err error
	if l.flock != nil {
		err = l.flock.Close()
		l.flock = nil
	}
	if l.reader != nil {
		if cerr := l.reader.Close(); err == nil {
			err = cerr
		}
		l.reader = nil
	}
	return err
}

func (l *advisoryLock) Locked() bool {
	return l.locked.Load()
}

func (l *advisoryLock) hold(fl *flock.Flock) {
	l.mu.Lock()
	l.flock = fl
	l.mu.Unlock()
	l.locked.Store(true)
}

func (l *advisoryLock) openReader() error {
	f, err := os.Open(l.target)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.reader = f
	l.mu.Unlock()
	l.locked.Store(true)
	return nil
}

// regular reports whether path names an existing regular file.
func regular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
