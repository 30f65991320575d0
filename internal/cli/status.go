package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/control"
	"github.com/example/specrun/internal/registry"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show registered runs, or one run's position and recent output",
		Long: `Without arguments, list every registered run with its status.
With a run id, show the run's current phase and step (from the
checkpoint when one exists, otherwise scraped from driver output),
the tail of its captured output, and its log files.

Examples:
  specrun status
  specrun status 3f2a9c1d`,
		Args: cobra.MaximumNArgs(1),
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
			reg := registry.New(db)

			if len(args) == 0 {
				return listRuns(reg)
			}

			server, err := control.NewServer(cfg, reg)
			if err != nil {
				return err
			}
			return printRunStatus(server, args[0])
		},
	}
}

func listRuns(reg *registry.Registry) error {
	runs, err := reg.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs registered.")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-9s  %s (%d phases, %d steps)\n",
			run.ID, statusLabel(run.Status), run.SpecName, run.PhaseCount, run.StepCount)
		if run.Reason != "" {
			fmt.Printf("          %s\n", run.Reason)
		}
	}
	return nil
}

func printRunStatus(server *control.Server, runID string) error {
	st, err := server.Status(runID)
	if err != nil {
		return err
	}
	run := st.Run

	fmt.Printf("Run %s: %s [%s]\n", run.ID, run.SpecName, statusLabel(run.Status))
	if st.CurrentPhase > 0 {
		fmt.Printf("  Position: phase %d, step %d of %d (via %s)\n",
			st.CurrentPhase, st.CurrentStep, run.StepCount, st.Source)
	} else {
		fmt.Println("  Position: unknown")
	}
	if run.Reason != "" {
		fmt.Printf("  Reason: %s\n", run.Reason)
	}
	if st.OutputTail != "" {
		fmt.Printf("\nRecent output:\n%s\n", st.OutputTail)
	}
	if len(st.LogFiles) > 0 {
		fmt.Println("\nLogs:")
		for _, f := range st.LogFiles {
			fmt.Printf("  %s\n", f)
		}
	}
	return nil
}

func statusLabel(status string) string {
	switch status {
	case registry.StatusRunning:
		return color.New(color.FgCyan).Sprint(status)
	case registry.StatusCompleted:
		return color.New(color.FgGreen).Sprint(status)
	case registry.StatusFailed:
		return color.New(color.FgRed).Sprint(status)
	default:
		return status
	}
}
