// Package procrun spawns and supervises child processes with output
// capture and graceful-then-forceful timeout escalation.
package procrun

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// GracePeriod is how long a child gets between the graceful termination
// signal and the forceful kill.
const GracePeriod = 5 * time.Second

// tailBytes bounds how much captured stdout a timeout error carries.
const tailBytes = 2048

// Options configures a single supervised invocation.
type Options struct {
	// LogFile mirrors combined output to a file when non-empty.
	LogFile string
	// Stream mirrors output to the controlling terminal.
	Stream bool
	// TimeoutMS caps the child's runtime; 0 means no timeout.
	TimeoutMS int
}

// Result holds the captured output of a completed invocation.
type Result struct {
	Stdout string
	Stderr string
}

// CommandError reports a child that exited non-zero.
type CommandError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", e.Cmd, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// TimeoutError reports a child that had to be killed after exceeding its
// timeout. OutputTail carries the end of captured stdout for diagnostics.
type TimeoutError struct {
	Cmd        string
	TimeoutMS  int
	OutputTail string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %dms", e.Cmd, e.TimeoutMS)
}

// Runner supervises child processes. The launch hook and grace window are
// injectable for tests; NewRunner wires the real implementations.
type Runner struct {
	launch func(cmd *exec.Cmd) Process
	grace  time.Duration
}

// NewRunner creates a Runner backed by real OS processes.
func NewRunner() *Runner {
	return &Runner{launch: newOSProcess, grace: GracePeriod}
}

// Run executes cmd with args in cwd, capturing stdout and stderr
// incrementally. Non-zero exit yields a CommandError; exceeding the
// timeout yields a TimeoutError after SIGTERM, the grace window, and
// SIGKILL.
func (r *Runner) Run(cwd, name string, args []string, opts Options) (*Result, error) {
	display := name
	if len(args) > 0 {
		display += " " + strings.Join(args, " ")
	}

	var stdout, stderr bytes.Buffer
	outW := []io.Writer{&stdout}
	errW := []io.Writer{&stderr}

	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		fmt.Fprintf(logFile, "# command: %s\n# cwd: %s\n# started: %s\n\n", display, cwd, time.Now().Format(time.RFC3339))
		outW = append(outW, logFile)
		errW = append(errW, logFile)
	}
	if opts.Stream {
		outW = append(outW, os.Stdout)
		errW = append(errW, os.Stderr)
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = cwd
	cmd.Stdout = &syncWriter{w: io.MultiWriter(outW...)}
	cmd.Stderr = &syncWriter{w: io.MultiWriter(errW...)}

	proc := r.launch(cmd)
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", display, err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- proc.Wait() }()

	var timedOut bool
	var waitErr error

	if opts.TimeoutMS > 0 {
		timer := time.NewTimer(time.Duration(opts.TimeoutMS) * time.Millisecond)
		defer timer.Stop()

		select {
		case waitErr = <-waitDone:
		case <-timer.C:
			timedOut = true
			_ = proc.Terminate()
			select {
			case waitErr = <-waitDone:
			case <-time.After(r.grace):
				_ = proc.Kill()
				waitErr = <-waitDone
			}
		}
	} else {
		waitErr = <-waitDone
	}

	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if timedOut {
		return result, &TimeoutError{
			Cmd:        display,
			TimeoutMS:  opts.TimeoutMS,
			OutputTail: tail(result.Stdout, tailBytes),
		}
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return result, &CommandError{Cmd: display, ExitCode: exitCode, Stderr: result.Stderr}
	}
	return result, nil
}

// syncWriter serializes writes from the child's stdout and stderr pipes,
// which arrive on separate goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// tail returns the last n bytes of s, trimmed to whole lines when
// possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	if idx := strings.IndexByte(cut, '\n'); idx >= 0 && idx < len(cut)-1 {
		cut = cut[idx+1:]
	}
	return cut
}
