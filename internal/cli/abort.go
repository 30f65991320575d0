package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/control"
	"github.com/example/specrun/internal/registry"
)

// AbortCmd returns the abort command
func AbortCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abort <run-id>",
		Short: "Stop a run's driver process and mark the run failed",
		Long: `Terminate the driver process group for a run, gracefully first and
forcefully after the grace window. The run's checkpoint stays on disk,
so a later retry resumes from the last completed step.

Examples:
  specrun abort 3f2a9c1d
  specrun abort 3f2a9c1d --reason "wrong spec version"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := registry.Open(cfg.DBPath())
			if err != nil {
				return err
			}
			defer db.Close()

			server, err := control.NewServer(cfg, registry.New(db))
			if err != nil {
				return err
			}
			if err := server.Abort(args[0], reason); err != nil {
				return err
			}
			fmt.Printf("✓ Run %s aborted\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "aborted by operator", "reason recorded on the run")
	return cmd
}
