package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/driver"
	"github.com/example/specrun/internal/specfile"
	"github.com/example/specrun/internal/tmux"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var (
		quiet       bool
		failFast    bool
		noIsolation bool
		useTmux     bool
	)

	cmd := &cobra.Command{
		Use:   "run <spec.md>",
		Short: "Execute a spec document to completion",
		Long: `Execute the spec's phases and steps in order, delegating each step
to the coding agent and verifying it before moving on.

The run is resumable: progress is checkpointed after every completed
step, so re-running the same spec picks up where the last run stopped.
Work happens on a dedicated branch in a git worktree unless the spec
needs host-level services or --no-isolation is given.

Examples:
  specrun run specs/widget-api.md
  specrun run specs/widget-api.md --quiet --fail-fast
  specrun run specs/widget-api.md --tmux`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specPath := args[0]
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if useTmux {
				return runInTmux(specPath, quiet, failFast, noIsolation)
			}

			repoRoot, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			d := driver.New(cfg)
			return d.Run(driver.Options{
				SpecPath:    specPath,
				RepoRoot:    repoRoot,
				Quiet:       quiet,
				FailFast:    failFast,
				NoIsolation: noIsolation,
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "capture agent output to logs instead of streaming it")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first step failure instead of retrying")
	cmd.Flags().BoolVar(&noIsolation, "no-isolation", false, "run in the repository itself, without a worktree")
	cmd.Flags().BoolVar(&useTmux, "tmux", false, "run inside a tmux session with a workspace shell pane")
	return cmd
}

// runInTmux launches this binary's run command inside a dedicated tmux
// session and prints attach instructions instead of blocking.
func runInTmux(specPath string, quiet, failFast, noIsolation bool) error {
	spec, err := specfile.Load(specPath)
	if err != nil {
		return err
	}

	adapter, err := tmux.NewAdapter()
	if err != nil {
		return err
	}
	name := tmux.SessionName(spec.Name())
	if adapter.SessionExists(name) {
		return fmt.Errorf("session %s already exists; attach with `specrun attach %s` or kill it first", name, spec.Name())
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve own executable: %w", err)
	}
	runArgs := []string{exe, "run", specPath}
	if quiet {
		runArgs = append(runArgs, "--quiet")
	}
	if failFast {
		runArgs = append(runArgs, "--fail-fast")
	}
	if noIsolation {
		runArgs = append(runArgs, "--no-isolation")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := adapter.CreateRunSession(spec.Name(), cwd, runArgs); err != nil {
		return err
	}

	fmt.Printf("✓ Started run in tmux session: %s\n\n", name)
	fmt.Print(tmux.AttachInstructions(name))
	return nil
}
