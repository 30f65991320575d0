package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/control"
	"github.com/example/specrun/internal/registry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve run control over MCP on stdio",
		Long: `Expose run control to a supervising process as an MCP server on
stdin/stdout. The supervisor can start runs, poll their status, retry
or abort them, and skip stuck steps; each run executes as a detached
child of this process.

Examples:
  specrun serve`,
		Args: cobra.NoArgs,
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
			return control.NewMCPServer(server).Run(cmd.Context())
		},
	}
}
