// Package lockfile enforces at-most-one concurrent run per spec via an
// exclusively-created pid file.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ContentionError reports that another live process holds the lock.
type ContentionError struct {
	Path      string
	HolderPID int
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("another run (pid %d) holds the lock at %s", e.HolderPID, e.Path)
}

// Acquire takes the lock at path for the current process.
//
// If a lock file already exists its stored pid is checked: a dead holder
// means a stale lock, which is removed before proceeding; a live holder
// fails with ContentionError. The staleness check is best-effort cleanup
// only — correctness comes from the O_EXCL create below, which at most
// one process can win.
func Acquire(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && processAlive(pid) {
			return &ContentionError{Path: path, HolderPID: pid}
		}
		// Stale or unreadable lock left behind by a dead run.
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			// Lost the create race to a concurrent acquirer.
			return &ContentionError{Path: path, HolderPID: readHolderPID(path)}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Release removes the lock file. Safe to call repeatedly or after a
// failed Acquire.
func Release(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// readHolderPID returns the pid stored in the lock file, or 0 if it
// cannot be read.
func readHolderPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// processAlive reports whether a process with the given pid exists.
// Signal 0 performs the existence check without delivering anything;
// EPERM means the process exists but belongs to another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
