// Sentinel-file strategy.
//
// On Windows a native lock is not reliably released when the handle is
// closed, so the existence of "<name>.lock" next to the target is the lock.
// Creation uses O_EXCL, which is atomic across processes. An existing
// sentinel means another holder: ErrAlreadyLocked is returned immediately
// and never retried here. sentinelMu serialises check-and-create between
// SharedFiles of one process that name the same target through different
// registries.
//
// Sentinels left by a crashed process are not detected or broken. Held
// sentinels are recorded in a process-wide map from path to owner;
// ReleaseSentinels removes them, and the CLI calls it on exit and on
// SIGINT/SIGTERM. Unlock deletes a sentinel only while its own lock is the
// recorded owner.
package sharedfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// SentinelSuffix is appended to the target file name to form the marker.
const SentinelSuffix = ".lock"

var (
	sentinelMu sync.Mutex
	heldMu     sync.Mutex
	held       = make(map[string]*sentinelLock) // sentinel path -> owner
)

type sentinelLock struct {
	target   string
	readOnly bool
	locked   atomic.Bool
}

// SentinelPath returns the marker file used for target.
func SentinelPath(target string) string {
	return target + SentinelSuffix
}

func (l *sentinelLock) Lock() error {
	if l.locked.Load() || l.readOnly || !regular(l.target) {
		return nil
	}

	sentinelMu.Lock()
	defer sentinelMu.Unlock()

	path := SentinelPath(l.target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyLocked, path)
		}
		return err
	}
	f.Close()

	heldMu.Lock()
	held[path] = l
	heldMu.Unlock()
	l.locked.Store(true)
	return nil
}

// TryLock is Lock with contention reported as false: sentinel acquisition
// never waits.
func (l *sentinelLock) TryLock() (bool, error) {
	err := l.Lock()
	if errors.Is(err, ErrAlreadyLocked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Unlock deletes the sentinel. A sentinel that is already gone counts as
// released. One that cannot be deleted is reported (SharedFile logs it at
// error level) and the strategy still considers itself unlocked.
func (l *sentinelLock) Unlock() error {
	if !l.locked.Swap(false) {
		return nil
	}

	path := SentinelPath(l.target)
	heldMu.Lock()
	mine := held[path] == l
	if mine {
		delete(held, path)
	}
	heldMu.Unlock()
	if !mine {
		// Already removed by ReleaseSentinels; the file may now belong to
		// another holder.
		return nil
	}

	return removeSentinel(path)
}

func (l *sentinelLock) Locked() bool {
	return l.locked.Load()
}

func removeSentinel(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil
	}
	return err
}

// ReleaseSentinels deletes every sentinel this process currently holds.
// It is the safety net for abnormal termination; call it from main on exit
// and from signal handlers. Locks held through those sentinels are broken.
func ReleaseSentinels() error {
	heldMu.Lock()
	paths := make([]string, 0, len(held))
	for p := range held {
		paths = append(paths, p)
	}
	clear(held)
	heldMu.Unlock()

	var first error
	for _, p := range paths {
		if err := removeSentinel(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}
