package procrun

import (
	"os/exec"
	"syscall"
)

// Process abstracts a supervised child so the escalation policy can be
// unit-tested with a fake and ported across platforms.
type Process interface {
	Start() error
	// Terminate requests graceful shutdown (SIGTERM to the group).
	Terminate() error
	// Kill forcefully ends the process (SIGKILL to the group).
	Kill() error
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
}

// osProcess runs a real child in its own process group so termination
// signals reach grandchildren too.
type osProcess struct {
	cmd *exec.Cmd
}

func newOSProcess(cmd *exec.Cmd) Process {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return &osProcess{cmd: cmd}
}

func (p *osProcess) Start() error {
	return p.cmd.Start()
}

func (p *osProcess) Terminate() error {
	return p.signalGroup(syscall.SIGTERM)
}

func (p *osProcess) Kill() error {
	return p.signalGroup(syscall.SIGKILL)
}

func (p *osProcess) Wait() error {
	return p.cmd.Wait()
}

// signalGroup signals the whole process group (negative pid).
func (p *osProcess) signalGroup(sig syscall.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-p.cmd.Process.Pid, sig)
}
