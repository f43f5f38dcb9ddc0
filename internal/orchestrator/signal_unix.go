//go:build !windows

package orchestrator

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup detaches cmd into its own process group so a graceful
// stop can signal the whole group, sweeping any grandchildren it spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// sendStop delivers the POSIX job-control stop signal (SIGSTOP) to the
// worker's PID.
func sendStop(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

// sendContinue delivers SIGCONT to resume a stopped worker.
func sendContinue(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}

// sendTerminate sends SIGTERM to the worker's process group (negative pid),
// sweeping any grandchildren.
func sendTerminate(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

// sendKill sends the uncatchable SIGKILL to the worker's process group.
func sendKill(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
