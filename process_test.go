// Cross-process tests.
//
// The test binary re-executes itself as a helper that locks a file, prints
// "locked" and holds the lock until its stdin is closed. This is the only
// way to observe real inter-process behaviour; the two-registry tests in
// lock_test.go share one process and so one set of OS lock semantics.
package sharedfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

const (
	helperPathEnv     = "SHAREDFILE_HELPER_PATH"
	helperStrategyEnv = "SHAREDFILE_HELPER_STRATEGY"
)

// TestHelperProcess is not a real test. It runs only when re-executed by
// startHelper.
func TestHelperProcess(t *testing.T) {
	path := os.Getenv(helperPathEnv)
	if path == "" {
		return
	}
	s, _ := strconv.Atoi(os.Getenv(helperStrategyEnv))

	r := NewRegistry(Options{Strategy: Strategy(s), Logger: log.New(io.Discard)})
	f, err := r.Get(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := f.Lock(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println("locked")
	io.Copy(io.Discard, os.Stdin)
	f.Unlock()
	os.Exit(0)
}

// startHelper launches a process holding path's lock and returns a func that
// makes it release and exit.
func startHelper(t *testing.T, path string, s Strategy) func() {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(),
		helperPathEnv+"="+path,
		helperStrategyEnv+"="+strconv.Itoa(int(s)),
	)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}

	ready := make(chan bool, 1)
	go func() {
		sc := bufio.NewScanner(stdout)
		for sc.Scan() {
			if sc.Text() == "locked" {
				ready <- true
				return
			}
		}
		ready <- false
	}()
	select {
	case ok := <-ready:
		if !ok {
			cmd.Process.Kill()
			cmd.Wait()
			t.Fatal("helper exited without locking")
		}
	case <-time.After(10 * time.Second):
		cmd.Process.Kill()
		cmd.Wait()
		t.Fatal("helper did not lock in time")
	}

	var released bool
	release := func() {
		if released {
			return
		}
		released = true
		stdin.Close()
		if err := cmd.Wait(); err != nil {
			t.Errorf("helper: %v", err)
		}
	}
	t.Cleanup(release)
	return release
}

func TestProcessAdvisoryBlocks(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a helper process")
	}
	f := openTestFile(t, Options{Strategy: StrategyAdvisory})
	release := startHelper(t, f.Path(), StrategyAdvisory)

	if f.TryLock() {
		f.Unlock()
		t.Fatal("TryLock succeeded while another process held the file")
	}

	done := make(chan error, 1)
	go func() {
		err := f.Lock()
		if err == nil {
			f.Unlock()
		}
		done <- err
	}()
	select {
	case <-done:
		t.Fatal("Lock returned while another process held the file")
	case <-time.After(200 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Lock after helper released: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Lock never returned after helper released")
	}
}

func TestProcessSentinelFailsFast(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a helper process")
	}
	f := openTestFile(t, Options{Strategy: StrategySentinel})
	release := startHelper(t, f.Path(), StrategySentinel)

	if err := f.Lock(); !errors.Is(err, ErrAlreadyLocked) {
		if err == nil {
			f.Unlock()
		}
		t.Fatalf("Lock = %v, want ErrAlreadyLocked", err)
	}
	if f.HeldByCurrentGoroutine() {
		t.Fatal("goroutine lock held after failed process lock")
	}

	release()
	if _, err := os.Stat(SentinelPath(f.Path())); !os.IsNotExist(err) {
		t.Fatal("helper left its sentinel behind")
	}
	if err := f.Lock(); err != nil {
		t.Fatalf("Lock after helper released: %v", err)
	}
	f.Unlock()
}

// TestProcessReadOnlyReaderNotBlocked checks a read-only opener can read a
// file another process holds for writing.
func TestProcessReadOnlyReaderNotBlocked(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a helper process")
	}
	if runtime.GOOS == "windows" {
		t.Skip("LockFileEx locks are mandatory for reads on Windows")
	}
	path := filepath.Join(t.TempDir(), "shared.txt")
	os.WriteFile(path, []byte("a=1\n"), 0o600)
	startHelper(t, path, StrategyAdvisory)

	f, _ := newTestRegistry(t, Options{Strategy: StrategyAdvisory, ReadOnly: true}).Get(path)
	model := &kvLines{}
	done := make(chan error, 1)
	go func() { done <- NewLineStore(f, model, StoreOptions{}).ReadGuarded() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read-only reader blocked on another process's lock")
	}
	if len(model.lines) != 1 || model.lines[0] != "a=1" {
		t.Errorf("lines = %q", model.lines)
	}
}
