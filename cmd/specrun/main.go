package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/cli"
	"github.com/example/specrun/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "specrun",
		Short:   "specrun - supervised execution of spec documents",
		Version: version.String(),
		Long: `specrun turns a structured spec document into a crash-safe run of a
coding agent: phases and steps execute in order, every step is verified
before the run moves on, and progress is checkpointed so an interrupted
run resumes where it stopped.`,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.PlanCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.AbortCmd())
	rootCmd.AddCommand(cli.AttachCmd())
	rootCmd.AddCommand(cli.CleanCmd())
	rootCmd.AddCommand(cli.ServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
