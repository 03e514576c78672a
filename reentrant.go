// Reentrant in-process lock.
//
// Go has no reentrant mutex, so ownership is tracked by goroutine ID. The
// owner field is read by every goroutine and written only while mu is held;
// holds is touched only by the owning goroutine. The outer acquisition is
// reported to the caller because that is the only point at which the
// process-level lock is taken, and the final release is split into leave and
// release so the caller can drop the process lock while still owning mu.
package sharedfile

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

type reentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Int64 // goroutine ID of the holder, 0 when free
	holds int
}

// lock blocks until the current goroutine owns m. It reports whether this
// call was the outer acquisition.
func (m *reentrantMutex) lock() bool {
	id := goid.Get()
	if m.owner.Load() == id {
		m.holds++
		return false
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.holds = 1
	return true
}

// tryLock acquires m without blocking. acquired is false when another
// goroutine holds m; outer is true only for a fresh acquisition.
func (m *reentrantMutex) tryLock() (acquired, outer bool) {
	id := goid.Get()
	if m.owner.Load() == id {
		m.holds++
		return true, false
	}
	if !m.mu.TryLock() {
		return false, false
	}
	m.owner.Store(id)
	m.holds = 1
	return true, true
}

// leave drops one hold. held is false when the current goroutine does not
// own m. last is true when the hold count would reach zero; in that case m
// stays owned until release is called.
func (m *reentrantMutex) leave() (held, last bool) {
	if m.owner.Load() != goid.Get() {
		return false, false
	}
	if m.holds > 1 {
		m.holds--
		return true, false
	}
	return true, true
}

// release gives up ownership. Only valid after leave reported last, or
// right after an outer acquisition that must be rolled back.
func (m *reentrantMutex) release() {
	m.holds = 0
	m.owner.Store(0)
	m.mu.Unlock()
}

func (m *reentrantMutex) heldByCurrent() bool {
	return m.owner.Load() == goid.Get()
}

// holdCount returns the reentrancy depth for the current goroutine, or 0 if
// another goroutine (or nobody) holds m.
func (m *reentrantMutex) holdCount() int {
	if !m.heldByCurrent() {
		return 0
	}
	return m.holds
}
