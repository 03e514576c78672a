// Process-level locking for cross-process coordination.
//
// A LockStrategy performs the OS-level mutual exclusion for one physical
// file. SharedFile calls it only at the outer lock/unlock boundary, so a
// strategy never sees reentrant calls from the goroutine that already holds
// the in-process lock, and never sees two goroutines of the same process at
// once.
package sharedfile

import "runtime"

// Strategy selects the process-level lock implementation.
type Strategy int

const (
	StrategyAuto     Strategy = iota // Sentinel on Windows, advisory elsewhere
	StrategyAdvisory                 // flock(2) / LockFileEx on the target file
	StrategySentinel                 // "<name>.lock" marker file next to the target
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyAdvisory:
		return "advisory"
	case StrategySentinel:
		return "sentinel"
	default:
		return "unknown"
	}
}

// LockStrategy is the process-level half of a SharedFile lock.
type LockStrategy interface {
	// Lock blocks until this process holds the file, or fails.
	Lock() error
	// TryLock acquires the file without blocking.
	TryLock() (bool, error)
	// Unlock releases whatever Lock acquired. Resources are always
	// released; the error only reports what could not be cleaned up.
	Unlock() error
	// Locked reports whether this process currently holds the lock.
	Locked() bool
}

// isWindows is the platform known to mishandle native lock release.
var isWindows = runtime.GOOS == "windows"

// resolve turns StrategyAuto into a concrete strategy.
func (s Strategy) resolve() Strategy {
	if s != StrategyAuto {
		return s
	}
	if isWindows {
		return StrategySentinel
	}
	return StrategyAdvisory
}

func newStrategy(s Strategy, path string, readOnly bool) LockStrategy {
	if s.resolve() == StrategySentinel {
		return &sentinelLock{target: path, readOnly: readOnly}
	}
	return &advisoryLock{target: path, readOnly: readOnly}
}
