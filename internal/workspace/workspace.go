// Package workspace provides isolated, branch-backed working directories
// for runs, implemented as git worktrees of the target repository.
package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// BranchPrefix namespaces run branches created by this tool.
const BranchPrefix = "specrun"

// Manager performs git worktree operations against a repository.
type Manager struct {
	prefix string
	now    func() time.Time
}

// NewManager creates a workspace manager.
func NewManager() *Manager {
	return &Manager{prefix: BranchPrefix, now: time.Now}
}

// Workspace describes a provisioned working directory.
type Workspace struct {
	Path    string
	Branch  string
	Created bool // false when an existing workspace was reused
}

// BranchName builds the isolated branch name for a fresh run. The spec
// name plus the run-start timestamp keeps fresh runs unique while a
// resumed run reuses whatever branch its workspace is already on.
func (m *Manager) BranchName(specName string, start time.Time) string {
	return fmt.Sprintf("%s/%s-%s", m.prefix, specName, start.Format("20060102150405"))
}

// Ensure provisions the workspace for a spec. An existing directory at
// path is reused as-is (its current branch is recovered); otherwise a new
// worktree is created on a freshly named branch.
func (m *Manager) Ensure(repoRoot, path, specName string) (*Workspace, error) {
	if _, err := os.Stat(path); err == nil {
		branch, err := m.CurrentBranch(path)
		if err != nil {
			return nil, fmt.Errorf("failed to recover branch of existing workspace: %w", err)
		}
		return &Workspace{Path: path, Branch: branch, Created: false}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat workspace path: %w", err)
	}

	branch := m.BranchName(specName, m.now())
	if err := m.runGit(repoRoot, "worktree", "add", "-b", branch, path); err != nil {
		return nil, fmt.Errorf("failed to create worktree: %w", err)
	}
	return &Workspace{Path: path, Branch: branch, Created: true}, nil
}

// CurrentBranch returns the branch checked out at path.
func (m *Manager) CurrentBranch(path string) (string, error) {
	out, err := m.runGitOutput(path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsDirty reports whether path has uncommitted or untracked changes.
func (m *Manager) IsDirty(path string) (bool, error) {
	out, err := m.runGitOutput(path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitIfDirty stages and commits all changes when the workspace is
// dirty. Returns whether a commit occurred; calling it twice in a row
// produces at most one commit.
func (m *Manager) CommitIfDirty(path, message string) (bool, error) {
	dirty, err := m.IsDirty(path)
	if err != nil {
		return false, err
	}
	if !dirty {
		return false, nil
	}

	if err := m.runGit(path, "add", "-A"); err != nil {
		return false, fmt.Errorf("failed to stage changes: %w", err)
	}
	if err := m.runGit(path, "commit", "-m", message); err != nil {
		return false, fmt.Errorf("failed to commit changes: %w", err)
	}
	return true, nil
}

// Log returns the subjects of the most recent commits on the workspace
// branch, newest first.
func (m *Manager) Log(path string, limit int) ([]string, error) {
	out, err := m.runGitOutput(path, "log", fmt.Sprintf("-%d", limit), "--pretty=format:%s")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Remove tears down the worktree at path. A no-op when it does not exist.
func (m *Manager) Remove(repoRoot, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := m.runGit(repoRoot, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	return nil
}

func (m *Manager) runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func (m *Manager) runGitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}
