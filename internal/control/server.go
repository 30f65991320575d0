// Package control exposes orchestrator runs to a supervising process:
// spawning the driver as a child per run, tracking it in a registry, and
// serving run/status/retry/skip/abort operations.
package control

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/example/specrun/internal/checkpoint"
	"github.com/example/specrun/internal/config"
	"github.com/example/specrun/internal/procrun"
	"github.com/example/specrun/internal/registry"
	"github.com/example/specrun/internal/specfile"
	"github.com/example/specrun/internal/tmux"
)

// RunOptions configures a spawned run.
type RunOptions struct {
	FailFast    bool
	NoIsolation bool
}

// Server coordinates driver child processes. The registry is injected;
// the in-memory process table is guarded by a mutex because operations
// arrive concurrently from the remote transport.
type Server struct {
	cfg *config.Config
	reg *registry.Registry
	exe string // driver executable, normally this binary

	mu    sync.Mutex
	procs map[string]*childProc
}

type childProc struct {
	cmd  *exec.Cmd
	buf  *tailBuffer
	done chan struct{}
}

// NewServer creates a control server that spawns the current executable
// as the driver.
func NewServer(cfg *config.Config, reg *registry.Registry) (*Server, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve own executable: %w", err)
	}
	return &Server{cfg: cfg, reg: reg, exe: exe, procs: make(map[string]*childProc)}, nil
}

// Run validates that specPath parses, spawns the driver as a detached
// child with captured output, registers the run, and returns its id
// immediately. It never blocks on the run itself.
func (s *Server) Run(specPath string, opts RunOptions) (*registry.Run, error) {
	spec, err := specfile.Load(specPath)
	if err != nil {
		return nil, err
	}

	run := &registry.Run{
		ID:         registry.NewRunID(),
		SpecPath:   specPath,
		SpecName:   spec.Name(),
		Status:     registry.StatusRunning,
		PhaseCount: len(spec.Phases),
		StepCount:  spec.TotalSteps(),
	}
	if err := s.reg.Create(run); err != nil {
		return nil, err
	}

	if err := s.spawn(run, opts); err != nil {
		_ = s.reg.SetStatus(run.ID, registry.StatusFailed, err.Error())
		return nil, err
	}
	return run, nil
}

// spawn starts the driver child for run and begins supervising it.
func (s *Server) spawn(run *registry.Run, opts RunOptions) error {
	args := []string{"run", run.SpecPath, "--quiet"}
	if opts.FailFast {
		args = append(args, "--fail-fast")
	}
	if opts.NoIsolation {
		args = append(args, "--no-isolation")
	}

	logPath := filepath.Join(s.cfg.LogDir(run.SpecName), fmt.Sprintf("control_%s.txt", run.ID))
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}

	buf := newTailBuffer(64 * 1024)
	cmd := exec.Command(s.exe, args...)
	cmd.Stdout = io.MultiWriter(buf, logFile)
	cmd.Stderr = io.MultiWriter(buf, logFile)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start driver: %w", err)
	}

	proc := &childProc{cmd: cmd, buf: buf, done: make(chan struct{})}
	s.mu.Lock()
	s.procs[run.ID] = proc
	s.mu.Unlock()

	_ = s.reg.SetPID(run.ID, cmd.Process.Pid)

	go func() {
		defer logFile.Close()
		err := cmd.Wait()
		close(proc.done)

		// An abort already set a final status; do not overwrite it.
		current, getErr := s.reg.Get(run.ID)
		if getErr != nil || current.Status != registry.StatusRunning {
			return
		}
		if err != nil {
			_ = s.reg.SetStatus(run.ID, registry.StatusFailed, fmt.Sprintf("driver exited: %v", err))
		} else {
			_ = s.reg.SetStatus(run.ID, registry.StatusCompleted, "")
		}
	}()
	return nil
}

// Status describes a run's current position and recent output.
type Status struct {
	Run *registry.Run
	// CurrentPhase and CurrentStep are 1-indexed; 0 means unknown.
	CurrentPhase int
	CurrentStep  int
	// Source names where the position came from: "checkpoint" (the
	// authoritative on-disk record) or "output" (best-effort scraping).
	Source     string
	OutputTail string
	LogFiles   []string
}

// Progress markers in driver output, used only when no checkpoint is
// readable. The checkpoint is always preferred.
var (
	phaseMarkerRe = regexp.MustCompile(`Phase (\d+):`)
	stepMarkerRe  = regexp.MustCompile(`running step (\d+)\.(\d+)`)
)

// Status returns the run's status, best-known position, output tail, and
// discovered log files. Reads are non-blocking.
func (s *Server) Status(runID string) (*Status, error) {
	run, err := s.reg.Get(runID)
	if err != nil {
		return nil, err
	}

	st := &Status{Run: run, Source: "none"}

	if cp, err := checkpoint.Load(s.cfg.CheckpointPath(run.SpecName)); err == nil && cp != nil {
		st.CurrentPhase = cp.Phase + 1
		st.CurrentStep = cp.Step + 1
		st.Source = "checkpoint"
	}

	s.mu.Lock()
	proc := s.procs[runID]
	s.mu.Unlock()
	if proc != nil {
		st.OutputTail = proc.buf.String()
		if st.Source == "none" {
			if phase, step, ok := scrapeProgress(st.OutputTail); ok {
				st.CurrentPhase = phase
				st.CurrentStep = step
				st.Source = "output"
			}
		}
	}

	logDir := s.cfg.LogDir(run.SpecName)
	st.LogFiles = discoverLogs(logDir)
	return st, nil
}

// Retry respawns the driver for a failed or paused run. The driver
// resumes from the run's on-disk checkpoint.
func (s *Server) Retry(runID string) (*registry.Run, error) {
	run, err := s.reg.Get(runID)
	if err != nil {
		return nil, err
	}
	if run.Status != registry.StatusFailed && run.Status != registry.StatusPaused {
		return nil, fmt.Errorf("run %s is %s; only failed or paused runs can be retried", runID, run.Status)
	}

	if err := s.reg.SetStatus(runID, registry.StatusRunning, ""); err != nil {
		return nil, err
	}
	if err := s.spawn(run, RunOptions{}); err != nil {
		_ = s.reg.SetStatus(runID, registry.StatusFailed, err.Error())
		return nil, err
	}
	return s.reg.Get(runID)
}

// Skip records a human override for the run's current step and advances
// the tracked position without executing anything.
func (s *Server) Skip(runID, reason string) error {
	run, err := s.reg.Get(runID)
	if err != nil {
		return err
	}

	auditPath := filepath.Join(s.cfg.LogDir(run.SpecName), "audit.log")
	if err := appendAudit(auditPath, fmt.Sprintf("%s run %s: step skipped: %s",
		time.Now().UTC().Format(time.RFC3339), runID, reason)); err != nil {
		return err
	}
	return s.reg.AdvanceTrackedStep(runID)
}

// Abort terminates a run's driver child (gracefully, then forcefully
// after the grace window) and marks the run failed. The checkpoint stays
// on disk so a later Retry can resume.
func (s *Server) Abort(runID, reason string) error {
	run, err := s.reg.Get(runID)
	if err != nil {
		return err
	}

	if err := s.reg.SetStatus(runID, registry.StatusFailed, reason); err != nil {
		return err
	}

	s.mu.Lock()
	proc := s.procs[runID]
	s.mu.Unlock()

	switch {
	case proc != nil:
		s.terminate(proc)
	case run.PID > 0:
		// A run inherited from a previous control-server process: only
		// the pid survives, signal the group directly.
		_ = syscall.Kill(-run.PID, syscall.SIGTERM)
		time.Sleep(procrun.GracePeriod)
		_ = syscall.Kill(-run.PID, syscall.SIGKILL)
	}

	// A run started with --tmux may also own a session; kill it too.
	if adapter, err := tmux.NewAdapter(); err == nil {
		if name := tmux.SessionName(run.SpecName); adapter.SessionExists(name) {
			_ = adapter.KillSession(name)
		}
	}
	return nil
}

// terminate applies graceful-then-forceful escalation to a supervised
// child.
func (s *Server) terminate(proc *childProc) {
	if proc.cmd.Process == nil {
		return
	}
	pid := proc.cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-proc.done:
	case <-time.After(procrun.GracePeriod):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-proc.done
	}
}

// scrapeProgress recovers the last phase/step markers from driver
// output. Telemetry only; never trusted over the checkpoint.
func scrapeProgress(output string) (phase, step int, ok bool) {
	if m := phaseMarkerRe.FindAllStringSubmatch(output, -1); len(m) > 0 {
		phase, _ = strconv.Atoi(m[len(m)-1][1])
		ok = true
	}
	if m := stepMarkerRe.FindAllStringSubmatch(output, -1); len(m) > 0 {
		step, _ = strconv.Atoi(m[len(m)-1][2])
		ok = true
	}
	return phase, step, ok
}

func discoverLogs(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func appendAudit(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		return fmt.Errorf("failed to append audit line: %w", err)
	}
	return nil
}

// tailBuffer keeps the last cap bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	cap int
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{cap: capacity}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.cap {
		b.buf = b.buf[len(b.buf)-b.cap:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
