// Sentinel strategy tests.
//
// These run on every platform by forcing StrategySentinel. The marker file
// is the whole lock state, so most assertions are about whether
// "<name>.lock" exists at the right moments and whether a failed
// acquisition leaves the goroutine lock free.
package sharedfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSentinelCreatedAndRemoved(t *testing.T) {
	f := openTestFile(t, Options{Strategy: StrategySentinel})
	sentinel := SentinelPath(f.Path())

	if err := f.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("sentinel missing while locked: %v", err)
	}

	// Reentrant acquisition does not touch the sentinel.
	if err := f.Lock(); err != nil {
		t.Fatalf("reentrant Lock: %v", err)
	}
	f.Unlock()
	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("sentinel removed on inner Unlock: %v", err)
	}

	f.Unlock()
	if _, err := os.Stat(sentinel); !os.IsNotExist(err) {
		t.Fatalf("sentinel still present after Unlock (stat err %v)", err)
	}
}

// TestSentinelContention verifies that an existing marker is a hard
// failure for Lock, a plain false for TryLock, and that neither leaves the
// goroutine lock held.
func TestSentinelContention(t *testing.T) {
	f := openTestFile(t, Options{Strategy: StrategySentinel})
	if err := os.WriteFile(SentinelPath(f.Path()), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	err := f.Lock()
	if !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("Lock error = %v, want ErrAlreadyLocked", err)
	}
	if f.HeldByCurrentGoroutine() {
		t.Fatal("goroutine lock held after failed process lock")
	}

	if f.TryLock() {
		t.Fatal("TryLock succeeded over an existing sentinel")
	}
	if f.HeldByCurrentGoroutine() {
		t.Fatal("goroutine lock held after failed TryLock")
	}

	// Someone else's sentinel is never removed by us.
	f.Unlock()
	if _, err := os.Stat(SentinelPath(f.Path())); err != nil {
		t.Fatalf("foreign sentinel removed: %v", err)
	}
}

func TestSentinelTwoProcesses(t *testing.T) {
	p1, p2 := openTwoProcesses(t, StrategySentinel)

	if err := p1.Lock(); err != nil {
		t.Fatal(err)
	}
	if err := p2.Lock(); !errors.Is(err, ErrAlreadyLocked) {
		if err == nil {
			p2.Unlock()
		}
		t.Fatalf("p2 Lock error = %v, want ErrAlreadyLocked", err)
	}
	p1.Unlock()

	if err := p2.Lock(); err != nil {
		t.Fatalf("p2 Lock after release: %v", err)
	}
	p2.Unlock()
}

func TestSentinelSkipsReadOnlyAndMissing(t *testing.T) {
	dir := t.TempDir()

	missing := &sentinelLock{target: filepath.Join(dir, "missing.txt")}
	if err := missing.Lock(); err != nil {
		t.Fatalf("Lock on missing target: %v", err)
	}
	if missing.Locked() {
		t.Fatal("missing target reported locked")
	}

	path := filepath.Join(dir, "ro.txt")
	if err := os.WriteFile(path, []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ro := &sentinelLock{target: path, readOnly: true}
	if err := ro.Lock(); err != nil {
		t.Fatalf("Lock on read-only target: %v", err)
	}
	if _, err := os.Stat(SentinelPath(path)); !os.IsNotExist(err) {
		t.Fatal("sentinel created for a read-only target")
	}
}

func TestSentinelUnlockToleratesMissingMarker(t *testing.T) {
	f := openTestFile(t, Options{Strategy: StrategySentinel})
	if err := f.Lock(); err != nil {
		t.Fatal(err)
	}
	// Another party cleaned up behind our back.
	os.Remove(SentinelPath(f.Path()))

	f.Unlock()
	if f.HeldByCurrentGoroutine() {
		t.Fatal("Unlock did not release the goroutine lock")
	}
	if err := f.Lock(); err != nil {
		t.Fatalf("Lock after tolerated unlock: %v", err)
	}
	f.Unlock()
}

func TestReleaseSentinels(t *testing.T) {
	f := openTestFile(t, Options{Strategy: StrategySentinel})
	sentinel := SentinelPath(f.Path())
	if err := f.Lock(); err != nil {
		t.Fatal(err)
	}

	if err := ReleaseSentinels(); err != nil {
		t.Fatalf("ReleaseSentinels: %v", err)
	}
	if _, err := os.Stat(sentinel); !os.IsNotExist(err) {
		t.Fatal("sentinel survived ReleaseSentinels")
	}

	// A new holder takes the marker; our late Unlock must leave it alone.
	other, _ := newTestRegistry(t, Options{Strategy: StrategySentinel}).Get(f.Path())
	if err := other.Lock(); err != nil {
		t.Fatalf("other Lock: %v", err)
	}
	f.Unlock()
	if _, err := os.Stat(sentinel); err != nil {
		t.Fatalf("late Unlock removed another holder's sentinel: %v", err)
	}
	other.Unlock()
}
