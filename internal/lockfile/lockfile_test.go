package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "widget.lock")
}

func TestAcquireWritesOwnPID(t *testing.T) {
	path := lockPath(t)
	if err := Acquire(path); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer Release(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("lock file does not contain a pid: %q", data)
	}
	if pid != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), pid)
	}
}

func TestAcquireContentionWithLiveHolder(t *testing.T) {
	path := lockPath(t)
	// This test process itself is the live holder.
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}

	err := Acquire(path)
	var contention *ContentionError
	if !errors.As(err, &contention) {
		t.Fatalf("expected ContentionError, got %v", err)
	}
	if contention.HolderPID != os.Getpid() {
		t.Errorf("expected holder pid %d, got %d", os.Getpid(), contention.HolderPID)
	}
	if !strings.Contains(contention.Error(), path) {
		t.Errorf("contention error should name the lock path: %v", contention)
	}
}

func TestAcquireRecoversStaleLock(t *testing.T) {
	path := lockPath(t)
	// Pid values this large cannot exist (pid_max caps far lower).
	if err := os.WriteFile(path, []byte("99999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Acquire(path); err != nil {
		t.Fatalf("Acquire should recover a stale lock: %v", err)
	}
	defer Release(path)

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), strconv.Itoa(os.Getpid())) {
		t.Errorf("lock should now hold our pid, got %q", data)
	}
}

func TestAcquireRecoversGarbageLock(t *testing.T) {
	path := lockPath(t)
	if err := os.WriteFile(path, []byte("not-a-pid"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Acquire(path); err != nil {
		t.Fatalf("Acquire should treat an unreadable lock as stale: %v", err)
	}
	Release(path)
}

func TestReleaseIdempotent(t *testing.T) {
	path := lockPath(t)
	if err := Acquire(path); err != nil {
		t.Fatal(err)
	}
	if err := Release(path); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := Release(path); err != nil {
		t.Fatalf("second Release should be a no-op: %v", err)
	}
	if err := Release(filepath.Join(t.TempDir(), "never-acquired.lock")); err != nil {
		t.Fatalf("Release after failed acquire should be a no-op: %v", err)
	}
}
