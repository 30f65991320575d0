package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// initRepo creates a git repository with one commit and returns its root.
func initRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	git(t, root, "init", "-b", "main")
	git(t, root, "config", "user.email", "test@example.com")
	git(t, root, "config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("seed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	git(t, root, "add", "-A")
	git(t, root, "commit", "-m", "initial commit")
	return root
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func TestBranchName(t *testing.T) {
	m := NewManager()
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	got := m.BranchName("widget-rework", start)
	want := "specrun/widget-rework-20260830120000"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEnsureCreatesWorktree(t *testing.T) {
	root := initRepo(t)
	m := NewManager()
	path := filepath.Join(t.TempDir(), "ws")

	ws, err := m.Ensure(root, path, "widget")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !ws.Created {
		t.Error("expected Created=true for a fresh workspace")
	}
	if !strings.HasPrefix(ws.Branch, "specrun/widget-") {
		t.Errorf("unexpected branch name %q", ws.Branch)
	}
	if _, err := os.Stat(filepath.Join(path, "README.md")); err != nil {
		t.Errorf("worktree should contain repo files: %v", err)
	}
}

func TestEnsureReusesExistingWorkspace(t *testing.T) {
	root := initRepo(t)
	m := NewManager()
	path := filepath.Join(t.TempDir(), "ws")

	first, err := m.Ensure(root, path, "widget")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Ensure(root, path, "widget")
	if err != nil {
		t.Fatalf("Ensure on existing workspace failed: %v", err)
	}
	if second.Created {
		t.Error("expected Created=false on reuse")
	}
	if second.Branch != first.Branch {
		t.Errorf("reuse should recover the original branch: %q vs %q", second.Branch, first.Branch)
	}
}

func TestCommitIfDirty(t *testing.T) {
	root := initRepo(t)
	m := NewManager()
	path := filepath.Join(t.TempDir(), "ws")
	if _, err := m.Ensure(root, path, "widget"); err != nil {
		t.Fatal(err)
	}

	dirty, err := m.IsDirty(path)
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Fatal("fresh worktree should be clean")
	}

	committed, err := m.CommitIfDirty(path, "step 1.1: no changes")
	if err != nil {
		t.Fatal(err)
	}
	if committed {
		t.Error("clean workspace should not produce a commit")
	}

	if err := os.WriteFile(filepath.Join(path, "new.txt"), []byte("change\n"), 0644); err != nil {
		t.Fatal(err)
	}
	committed, err = m.CommitIfDirty(path, "step 1.1: add new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !committed {
		t.Error("dirty workspace should produce a commit")
	}

	// Idempotent: a second call right after has nothing left to commit.
	committed, err = m.CommitIfDirty(path, "step 1.1: add new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if committed {
		t.Error("second CommitIfDirty in a row should be a no-op")
	}

	subjects, err := m.Log(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(subjects) != 2 || subjects[0] != "step 1.1: add new.txt" {
		t.Errorf("unexpected log: %v", subjects)
	}
}

func TestRemove(t *testing.T) {
	root := initRepo(t)
	m := NewManager()
	path := filepath.Join(t.TempDir(), "ws")
	if _, err := m.Ensure(root, path, "widget"); err != nil {
		t.Fatal(err)
	}

	if err := m.Remove(root, path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("workspace directory should be gone")
	}

	// Removing again is a no-op.
	if err := m.Remove(root, path); err != nil {
		t.Fatalf("Remove of missing workspace should be a no-op: %v", err)
	}
}
