// Package verify runs ordered lists of verification commands, stopping
// at the first failure.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/specrun/internal/procrun"
	"github.com/example/specrun/internal/specfile"
)

// outputSeparator divides the transcripts of consecutive commands.
const outputSeparator = "\n--- %s ---\n"

// Result is the outcome of a verification pass.
type Result struct {
	Success bool
	// Output concatenates the transcript of every attempted command.
	Output string
	// FailedCmd is the first failing command when Success is false.
	FailedCmd *specfile.VerifyCmd
	// Err is the underlying error of the failed command.
	Err error
}

// Verifier executes verification commands through the process runner.
type Verifier struct {
	runner *procrun.Runner
}

// NewVerifier creates a Verifier.
func NewVerifier(runner *procrun.Runner) *Verifier {
	return &Verifier{runner: runner}
}

// RunAll executes commands strictly in order in cwd. The first failure
// stops the pass immediately; later commands never run. An empty list
// trivially succeeds. Output from every attempted command is collected
// for audit and written to logFile when non-empty.
func (v *Verifier) RunAll(cwd string, commands []specfile.VerifyCmd, logFile string, timeoutMS int) *Result {
	var output strings.Builder
	result := &Result{}

	for i := range commands {
		cmd := &commands[i]
		output.WriteString(fmt.Sprintf(outputSeparator, cmd.String()))

		res, err := v.runner.Run(cwd, cmd.Name, cmd.Args, procrun.Options{TimeoutMS: timeoutMS})
		if res != nil {
			output.WriteString(res.Stdout)
			if res.Stderr != "" {
				output.WriteString(res.Stderr)
			}
		}
		if err != nil {
			output.WriteString(fmt.Sprintf("\nFAILED: %v\n", err))
			result.FailedCmd = cmd
			result.Err = err
			break
		}
	}

	result.Success = result.FailedCmd == nil
	result.Output = output.String()
	writeLog(logFile, result.Output)
	return result
}

// writeLog persists the pass transcript. Best-effort: an unwritable log
// never fails a verification that already ran.
func writeLog(logFile, output string) {
	if logFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return
	}
	_ = os.WriteFile(logFile, []byte(output), 0644)
}
