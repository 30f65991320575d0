package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/checkpoint"
	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/lockfile"
	"github.com/example/specrun/internal/workspace"
)

// CleanCmd returns the clean command
func CleanCmd() *cobra.Command {
	var withLogs bool

	cmd := &cobra.Command{
		Use:   "clean <spec-name>",
		Short: "Remove a spec's run state: lock, checkpoint, and workspace",
		Long: `Remove the lock file, checkpoint, and worktree workspace left behind
by runs of the named spec. Refuses to clean while another process holds
the lock. Step logs are kept unless --logs is given.

Examples:
  specrun clean widget-api
  specrun clean widget-api --logs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specName := args[0]
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// Taking the lock proves no live run owns this state.
			if err := lockfile.Acquire(cfg.LockPath(specName)); err != nil {
				return fmt.Errorf("cannot clean %s: %w", specName, err)
			}

			if err := checkpoint.Delete(cfg.CheckpointPath(specName)); err != nil {
				return err
			}

			wsPath := cfg.WorkspacePath(specName)
			repoRoot, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			if err := workspace.NewManager().Remove(repoRoot, wsPath); err != nil {
				return err
			}

			if withLogs {
				if err := os.RemoveAll(cfg.LogDir(specName)); err != nil {
					return fmt.Errorf("failed to remove logs: %w", err)
				}
			}

			if err := lockfile.Release(cfg.LockPath(specName)); err != nil {
				return err
			}
			fmt.Printf("✓ Cleaned run state for %s\n", specName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withLogs, "logs", false, "also remove step and gate logs")
	return cmd
}
