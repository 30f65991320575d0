// Package executor drives a single step: agent invocation with retry and
// backoff, verification, then a workspace commit.
package executor

import (
	"fmt"
	"time"

	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/procrun"
	"github.com/example/specrun/internal/specfile"
	"github.com/example/specrun/internal/verify"
)

// Backoff policy: a small fixed delay for the first retry, growing
// quadratically with the attempt index, capped.
const (
	backoffBase = 2 * time.Second
	backoffMax  = 60 * time.Second
)

// AgentRunner invokes the external coding agent.
type AgentRunner interface {
	RunAgent(cwd, prompt string, opts procrun.AgentOptions) (*procrun.AgentResult, error)
}

// VerifyRunner runs a step's verification commands.
type VerifyRunner interface {
	RunAll(cwd string, commands []specfile.VerifyCmd, logFile string, timeoutMS int) *verify.Result
}

// Committer commits workspace changes after a successful step.
type Committer interface {
	CommitIfDirty(path, message string) (bool, error)
}

// StepFailedError reports an agent invocation that exhausted its retries.
type StepFailedError struct {
	StepID   string
	Attempts int
	Summary  string
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %s", e.StepID, e.Attempts, e.Summary)
}

// VerificationFailedError reports a step whose verification commands
// exhausted their retries.
type VerificationFailedError struct {
	StepID    string
	Attempts  int
	FailedCmd string
	Output    string
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("step %s verification failed after %d attempt(s) at %q", e.StepID, e.Attempts, e.FailedCmd)
}

// Options configures step execution.
type Options struct {
	SpecName string
	Mode     procrun.AgentMode
	FailFast bool
}

// Executor executes steps against a workspace.
type Executor struct {
	agent    AgentRunner
	verifier VerifyRunner
	ws       Committer
	cfg      *config.Config
	opts     Options
	sleep    func(time.Duration)
}

// NewExecutor creates a step executor.
func NewExecutor(agent AgentRunner, verifier VerifyRunner, ws Committer, cfg *config.Config, opts Options) *Executor {
	return &Executor{
		agent:    agent,
		verifier: verifier,
		ws:       ws,
		cfg:      cfg,
		opts:     opts,
		sleep:    time.Sleep,
	}
}

// Execute runs one step to completion in cwd.
//
// Each attempt invokes the agent, then the step's verification commands.
// A failure of either is retried with backoff until attempts are
// exhausted (or immediately fatal under fail-fast), with the failure's
// output prepended to the next attempt's prompt as retry context. The
// workspace is committed only after both the agent and verification
// succeed.
//
// The step's own timeout override is deliberately ignored: the
// configured default is a hard upper bound across all steps, so no
// single malformed step can hang the run indefinitely.
func (e *Executor) Execute(cwd string, step specfile.Step) error {
	maxAttempts := e.cfg.MaxAttempts
	if e.opts.FailFast || maxAttempts < 1 {
		maxAttempts = 1
	}

	var retryContext string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		prompt := step.Prompt
		if retryContext != "" {
			prompt = fmt.Sprintf("The previous attempt at this step failed. Failure context:\n\n%s\n\nAddress the failure, then:\n\n%s", retryContext, step.Prompt)
		}

		agentLog := e.cfg.StepLogPath(e.opts.SpecName, step.ID, "agent", attempt)
		result, err := e.agent.RunAgent(cwd, prompt, procrun.AgentOptions{
			Command:   e.cfg.AgentCommand,
			Args:      e.cfg.AgentArgs,
			Mode:      e.opts.Mode,
			LogFile:   agentLog,
			TimeoutMS: e.cfg.StepTimeoutMS,
		})
		if err != nil {
			if attempt == maxAttempts {
				return &StepFailedError{StepID: step.ID, Attempts: attempt, Summary: result.Summary}
			}
			retryContext = result.Summary
			e.sleep(backoffDelay(attempt - 1))
			continue
		}

		if len(step.Verify) > 0 {
			verifyLog := e.cfg.StepLogPath(e.opts.SpecName, step.ID, "verify", attempt)
			vres := e.verifier.RunAll(cwd, step.Verify, verifyLog, e.cfg.VerifyTimeoutMS)
			if !vres.Success {
				if attempt == maxAttempts {
					return &VerificationFailedError{
						StepID:    step.ID,
						Attempts:  attempt,
						FailedCmd: vres.FailedCmd.String(),
						Output:    vres.Output,
					}
				}
				// A verification failure retries exactly like an agent
				// failure, with the verifier's output as new context.
				retryContext = vres.Output
				e.sleep(backoffDelay(attempt - 1))
				continue
			}
		}

		message := fmt.Sprintf("step %s: %s", step.ID, step.Title)
		if _, err := e.ws.CommitIfDirty(cwd, message); err != nil {
			return fmt.Errorf("failed to commit step %s: %w", step.ID, err)
		}
		return nil
	}

	// Unreachable: the loop always returns on its final attempt.
	return &StepFailedError{StepID: step.ID, Attempts: maxAttempts, Summary: "retries exhausted"}
}

// backoffDelay returns the sleep before the attempt after failed attempt
// index i (0-based).
func backoffDelay(i int) time.Duration {
	if i <= 0 {
		return backoffBase
	}
	d := backoffBase * time.Duration(i*i)
	if d > backoffMax {
		return backoffMax
	}
	return d
}
