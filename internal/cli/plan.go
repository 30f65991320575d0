package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/driver"
	"github.com/example/specrun/internal/specfile"
)

// PlanCmd returns the plan command
func PlanCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "plan <spec.md>",
		Short: "Parse a spec and print its execution plan without running anything",
		Long: `Parse the spec document, report any grammar errors, and print the
phases, steps, and gates it would execute. Also reports whether the run
would be downgraded to non-isolated mode because of host-level service
commands in verification blocks.

Examples:
  specrun plan specs/widget-api.md
  specrun plan specs/widget-api.md --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := driver.New(cfg).DryRun(args[0]); err != nil {
				return err
			}
			if verbose {
				return printPlanDetail(args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print each step's verify and gate commands")
	return cmd
}

func printPlanDetail(specPath string) error {
	spec, err := specfile.Load(specPath)
	if err != nil {
		return err
	}
	fmt.Println("\nVerification detail:")
	for _, phase := range spec.Phases {
		for _, step := range phase.Steps {
			if len(step.Verify) == 0 {
				continue
			}
			fmt.Printf("  Step %s:\n", step.ID)
			for _, cmd := range step.Verify {
				fmt.Printf("    %s\n", cmd.String())
			}
		}
		for _, cmd := range phase.Gate {
			fmt.Printf("  Phase %d gate: %s\n", phase.Number, cmd.String())
		}
	}
	return nil
}
