package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/tmux"
)

// AttachCmd returns the attach command
func AttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <spec-name>",
		Short: "Attach to a run's tmux session",
		Long: `Attach to the tmux session created by 'specrun run --tmux' for the
named spec. The current process is replaced by the tmux client, so
detaching returns to the shell.

Examples:
  specrun attach widget-api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := tmux.NewAdapter()
			if err != nil {
				return err
			}
			sessionName := tmux.SessionName(args[0])
			if !adapter.SessionExists(sessionName) {
				return fmt.Errorf("no session %s; start one with `specrun run --tmux`", sessionName)
			}

			tmuxPath, err := exec.LookPath("tmux")
			if err != nil {
				return fmt.Errorf("tmux not found in PATH: %w", err)
			}

			// Replace this process with the tmux client so detaching
			// drops straight back to the user's shell.
			execArgs := []string{"tmux", "attach", "-t", sessionName}
			if err := syscall.Exec(tmuxPath, execArgs, os.Environ()); err != nil {
				return fmt.Errorf("failed to exec tmux attach: %w", err)
			}
			return nil
		},
	}
}
