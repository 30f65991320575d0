package procrun

import (
	"errors"
	"fmt"
	"strings"
)

// AgentMode selects how the external coding agent is supervised.
type AgentMode int

const (
	// ModeStream connects the agent's output to the controlling terminal
	// for interactive supervision.
	ModeStream AgentMode = iota
	// ModeQuiet fully captures output for unattended execution.
	ModeQuiet
)

// AgentOptions configures one agent invocation.
type AgentOptions struct {
	// Command is the agent executable, e.g. "claude".
	Command string
	// Args precede the prompt, e.g. ["-p"].
	Args      []string
	Mode      AgentMode
	LogFile   string
	TimeoutMS int
}

// AgentResult is the outcome of an agent invocation.
type AgentResult struct {
	Success bool
	Summary string
}

// catastrophicPhrases are output fragments that mark a failed invocation
// regardless of exit code. The agent's declared intent is a more reliable
// signal than its exit status, which is zero even when it gives up.
var catastrophicPhrases = []string{
	"i cannot complete",
	"i am unable to complete",
	"i can't help with",
	"i cannot help with",
	"fatal error",
	"critical error",
	"execution error",
}

// RunAgent invokes the external coding agent with the given prompt in
// cwd. In quiet mode the captured output is additionally scanned for
// catastrophic-failure phrases; a match fails the invocation even if the
// process exited zero.
func (r *Runner) RunAgent(cwd, prompt string, opts AgentOptions) (*AgentResult, error) {
	args := append(append([]string{}, opts.Args...), prompt)

	runOpts := Options{
		LogFile:   opts.LogFile,
		Stream:    opts.Mode == ModeStream,
		TimeoutMS: opts.TimeoutMS,
	}

	result, err := r.Run(cwd, opts.Command, args, runOpts)
	if err != nil {
		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			return &AgentResult{Summary: fmt.Sprintf("agent timed out after %dms; output tail:\n%s", timeoutErr.TimeoutMS, timeoutErr.OutputTail)}, err
		}
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return &AgentResult{Summary: fmt.Sprintf("agent exited with code %d: %s", cmdErr.ExitCode, tail(cmdErr.Stderr, tailBytes))}, err
		}
		return &AgentResult{Summary: err.Error()}, err
	}

	if opts.Mode == ModeQuiet {
		if phrase := scanCatastrophic(result.Stdout + "\n" + result.Stderr); phrase != "" {
			res := &AgentResult{Summary: fmt.Sprintf("agent reported failure (%q); output tail:\n%s", phrase, tail(result.Stdout, tailBytes))}
			return res, &CommandError{Cmd: opts.Command, ExitCode: 0, Stderr: res.Summary}
		}
	}

	return &AgentResult{Success: true, Summary: tail(result.Stdout, tailBytes)}, nil
}

// scanCatastrophic returns the first catastrophic phrase found in output,
// or "" when none match.
func scanCatastrophic(output string) string {
	lower := strings.ToLower(output)
	for _, phrase := range catastrophicPhrases {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}
