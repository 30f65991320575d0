// Package tmux manages supervision sessions: a run can be launched
// inside a tmux session with the driver streaming in one pane and a
// shell opened in the workspace next to it.
package tmux

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/GianlucaP106/gotmux/gotmux"
)

// Adapter wraps the gotmux client for session lifecycle management.
type Adapter struct {
	tmux *gotmux.Tmux
}

// NewAdapter creates an adapter bound to the default tmux binary.
func NewAdapter() (*Adapter, error) {
	tm, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("failed to create tmux client: %w", err)
	}
	return &Adapter{tmux: tm}, nil
}

// SessionName derives the tmux session name for a spec's run.
func SessionName(specName string) string {
	return "specrun-" + specName
}

// escapeShellCommand works around a gotmux quoting bug where ShellCommand
// is wrapped in single quotes (e.g. 'specrun run'). The shell interprets
// that as a single token, so multi-word commands fail with status 127.
// Replacing spaces with ' ' (close-quote, space, open-quote) makes
// gotmux's wrapping produce separately quoted words.
func escapeShellCommand(cmd string) string {
	return strings.ReplaceAll(cmd, " ", "' '")
}

// CreateRunSession creates a detached session for a run: the driver
// command streaming in the left pane and a plain shell in the workspace
// on the right.
func (a *Adapter) CreateRunSession(specName, workdir string, runArgs []string) error {
	name := SessionName(specName)
	session, err := a.tmux.NewSession(&gotmux.SessionOptions{
		Name:           name,
		StartDirectory: workdir,
		ShellCommand:   escapeShellCommand(strings.Join(runArgs, " ")),
	})
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", name, err)
	}

	windows, err := session.ListWindows()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}
	if len(windows) == 0 {
		return fmt.Errorf("no windows found in new session")
	}
	window := windows[0]
	if err := window.Rename(specName); err != nil {
		return fmt.Errorf("failed to rename window: %w", err)
	}

	panes, err := window.ListPanes()
	if err != nil || len(panes) == 0 {
		return fmt.Errorf("failed to get driver pane: %w", err)
	}
	if err := panes[0].SplitWindow(&gotmux.SplitWindowOptions{
		SplitDirection: gotmux.PaneSplitDirectionVertical,
		StartDirectory: workdir,
	}); err != nil {
		return fmt.Errorf("failed to split for shell pane: %w", err)
	}
	return nil
}

// SessionExists reports whether a session with the given name exists.
func (a *Adapter) SessionExists(name string) bool {
	sessions, err := a.tmux.ListSessions()
	if err != nil {
		return false
	}
	for _, s := range sessions {
		if s.Name == name {
			return true
		}
	}
	return false
}

// KillSession terminates a session by name.
func (a *Adapter) KillSession(name string) error {
	sessions, err := a.tmux.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, s := range sessions {
		if s.Name == name {
			return s.Kill()
		}
	}
	return fmt.Errorf("session %s not found", name)
}

// Attach replaces stdio with an attached tmux client for the session.
func (a *Adapter) Attach(name string) error {
	cmd := exec.Command("tmux", "attach-session", "-t", name)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to attach to session %s: %w", name, err)
	}
	return nil
}

// AttachInstructions returns a short usage hint for a session.
func AttachInstructions(name string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Attach to session: tmux attach -t %s\n", name))
	b.WriteString("  Left pane: driver output\n")
	b.WriteString("  Right pane: shell in the run workspace\n")
	b.WriteString("  Detach: Ctrl+b then d\n")
	return b.String()
}
