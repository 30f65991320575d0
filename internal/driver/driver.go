// Package driver sequences a parsed plan: lock, workspace, checkpointed
// phase/step iteration, phase gates, and completion handoff.
package driver

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/example/specrun/internal/checkpoint"
	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/executor"
	"github.com/example/specrun/internal/lockfile"
	"github.com/example/specrun/internal/procrun"
	"github.com/example/specrun/internal/specfile"
	"github.com/example/specrun/internal/verify"
	"github.com/example/specrun/internal/workspace"
)

// GateError reports a failed phase gate. Gates are the aggregate
// correctness boundary: they are never retried and always abort the run.
type GateError struct {
	Phase  int
	Cmd    string
	Output string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("phase %d gate failed at %q", e.Phase, e.Cmd)
}

// Options configures one run.
type Options struct {
	SpecPath    string
	RepoRoot    string
	Quiet       bool // capture agent output instead of streaming it
	FailFast    bool
	NoIsolation bool // run directly in the repository, no worktree
}

// Driver owns the lifecycle of a single sequential run. Phases execute in
// order and steps within a phase execute in order; steps have file-level
// side effects that must serialize.
type Driver struct {
	cfg      *config.Config
	ws       *workspace.Manager
	runner   *procrun.Runner
	verifier *verify.Verifier
	out      io.Writer
}

// New creates a Driver.
func New(cfg *config.Config) *Driver {
	runner := procrun.NewRunner()
	return &Driver{
		cfg:      cfg,
		ws:       workspace.NewManager(),
		runner:   runner,
		verifier: verify.NewVerifier(runner),
		out:      os.Stdout,
	}
}

// Run executes the spec at opts.SpecPath to completion or first
// unrecovered failure. The lock is released on every exit path; the
// checkpoint is deleted only after the final phase's gate succeeds.
func (d *Driver) Run(opts Options) error {
	spec, err := specfile.Load(opts.SpecPath)
	if err != nil {
		return err
	}
	specName := spec.Name()

	d.printPlan(spec)

	isolate := !opts.NoIsolation
	if conflicts := specfile.IsolationConflicts(spec); isolate && len(conflicts) > 0 {
		fmt.Fprintf(d.out, "%s plan uses %v, which conflicts with workspace isolation; running in the repository instead\n",
			color.New(color.FgYellow).Sprint("!"), conflicts)
		isolate = false
	}

	lockPath := d.cfg.LockPath(specName)
	if err := lockfile.Acquire(lockPath); err != nil {
		return err
	}
	defer lockfile.Release(lockPath)

	workDir := opts.RepoRoot
	branch := ""
	if isolate {
		ws, err := d.ws.Ensure(opts.RepoRoot, d.cfg.WorkspacePath(specName), specName)
		if err != nil {
			return err
		}
		workDir = ws.Path
		branch = ws.Branch
		if ws.Created {
			fmt.Fprintf(d.out, "workspace created at %s on branch %s\n", ws.Path, ws.Branch)
		} else {
			fmt.Fprintf(d.out, "reusing workspace at %s on branch %s\n", ws.Path, ws.Branch)
		}
	}

	cpPath := d.cfg.CheckpointPath(specName)
	cp, err := checkpoint.Load(cpPath)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &checkpoint.Checkpoint{
			SpecPath:  opts.SpecPath,
			SpecHash:  spec.Hash,
			Branch:    branch,
			StartedAt: time.Now().UTC(),
		}
		if err := checkpoint.Save(cpPath, cp); err != nil {
			return err
		}
	} else {
		if warn := checkpoint.Validate(cp, opts.SpecPath, spec.Hash); warn != "" {
			fmt.Fprintf(d.out, "%s %s\n", color.New(color.FgYellow).Sprint("warning:"), warn)
		}
		fmt.Fprintf(d.out, "resuming from phase %d, step %d\n", cp.Phase+1, cp.Step+1)
	}

	exec := executor.NewExecutor(d.runner, d.verifier, d.ws, d.cfg, executor.Options{
		SpecName: specName,
		Mode:     agentMode(opts.Quiet),
		FailFast: opts.FailFast,
	})

	for pi := cp.Phase; pi < len(spec.Phases); pi++ {
		phase := spec.Phases[pi]
		fmt.Fprintf(d.out, "%s Phase %d: %s\n", color.New(color.FgCyan).Sprint("▸"), phase.Number, phase.Name)

		start := 0
		if pi == cp.Phase {
			start = cp.Step
		}
		for si := start; si < len(phase.Steps); si++ {
			step := phase.Steps[si]
			fmt.Fprintf(d.out, "  running step %s: %s\n", step.ID, step.Title)

			if err := exec.Execute(workDir, step); err != nil {
				d.printFailure(specName, err)
				return err
			}
			fmt.Fprintf(d.out, "  %s step %s\n", color.New(color.FgGreen).Sprint("✓"), step.ID)

			// Write-after-complete: the checkpoint always points at the
			// next unit of work, so a crash can only under-count.
			cp.Phase = pi
			cp.Step = si + 1
			cp.LastStepAt = time.Now().UTC()
			if err := checkpoint.Save(cpPath, cp); err != nil {
				return err
			}
		}

		if len(phase.Gate) > 0 {
			fmt.Fprintf(d.out, "  running phase %d gate\n", phase.Number)
			gateLog := d.cfg.GateLogPath(specName, phase.Number)
			result := d.verifier.RunAll(workDir, phase.Gate, gateLog, d.cfg.VerifyTimeoutMS)
			if !result.Success {
				gerr := &GateError{Phase: phase.Number, Cmd: result.FailedCmd.String(), Output: result.Output}
				d.printFailure(specName, gerr)
				return gerr
			}
			fmt.Fprintf(d.out, "  %s phase %d gate\n", color.New(color.FgGreen).Sprint("✓"), phase.Number)
		}

		cp.Phase = pi + 1
		cp.Step = 0
		cp.LastStepAt = time.Now().UTC()
		if err := checkpoint.Save(cpPath, cp); err != nil {
			return err
		}
	}

	if err := checkpoint.Delete(cpPath); err != nil {
		return err
	}
	d.printHandoff(specName, workDir, branch, isolate)
	return nil
}

// DryRun parses the spec and prints the plan without executing anything.
func (d *Driver) DryRun(specPath string) error {
	spec, err := specfile.Load(specPath)
	if err != nil {
		return err
	}
	d.printPlan(spec)
	if conflicts := specfile.IsolationConflicts(spec); len(conflicts) > 0 {
		fmt.Fprintf(d.out, "\nnote: %v would disable workspace isolation\n", conflicts)
	}
	return nil
}

func agentMode(quiet bool) procrun.AgentMode {
	if quiet {
		return procrun.ModeQuiet
	}
	return procrun.ModeStream
}

func (d *Driver) printPlan(spec *specfile.Spec) {
	fmt.Fprintf(d.out, "%s (%d phases, %d steps)\n", spec.Name(), len(spec.Phases), spec.TotalSteps())
	for _, phase := range spec.Phases {
		fmt.Fprintf(d.out, "  Phase %d: %s\n", phase.Number, phase.Name)
		for _, step := range phase.Steps {
			extra := ""
			if n := len(step.Verify); n > 0 {
				extra = fmt.Sprintf(" [%d verify]", n)
			}
			fmt.Fprintf(d.out, "    Step %s: %s%s\n", step.ID, step.Title, extra)
		}
		if len(phase.Gate) > 0 {
			fmt.Fprintf(d.out, "    Gate [%d commands]\n", len(phase.Gate))
		}
	}
}

func (d *Driver) printFailure(specName string, err error) {
	fmt.Fprintf(d.out, "%s %v\n", color.New(color.FgRed).Sprint("✗"), err)
	fmt.Fprintf(d.out, "transcripts: %s\n", d.cfg.LogDir(specName))
}

func (d *Driver) printHandoff(specName, workDir, branch string, isolated bool) {
	fmt.Fprintf(d.out, "%s all phases complete\n", color.New(color.FgGreen).Sprint("✓"))
	if !isolated {
		return
	}
	fmt.Fprintf(d.out, "\nchanges are on branch %s in %s\n", branch, workDir)
	fmt.Fprintf(d.out, "inspect:  git -C %s log --oneline\n", workDir)
	fmt.Fprintf(d.out, "merge:    git merge %s\n", branch)
	fmt.Fprintf(d.out, "clean up: specrun clean %s\n", specName)
}
