// Package pidfile enforces one game-server process per host through a PID
// file. Stale files left by crashed processes are detected and reclaimed;
// a live holder can be taken over explicitly for operator-forced restarts.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PIDFile guards a single server instance via a file holding the owner PID.
type PIDFile struct {
	path string
}

// New returns a guard over the given path. Nothing touches the filesystem
// until Acquire.
func New(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Acquire claims the PID file for this process. A file owned by a live
// process is an error; a stale or unreadable file is reclaimed silently.
func (p *PIDFile) Acquire() error {
	if pid, ok := p.currentHolder(); ok {
		if processAlive(pid) {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		_ = os.Remove(p.path)
	}

	body := fmt.Sprintf("%d\n", os.Getpid())
	if err := os.WriteFile(p.path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write PID file %s: %w", p.path, err)
	}
	return nil
}

// KillExisting terminates the current holder so a forced restart can take
// over. It signals SIGTERM, waits briefly, then escalates to SIGKILL.
func (p *PIDFile) KillExisting() error {
	pid, ok := p.currentHolder()
	if !ok {
		return nil
	}
	if !processAlive(pid) {
		_ = os.Remove(p.path)
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("terminate PID %d: %w", pid, err)
	}
	for i := 0; i < 50; i++ {
		if !processAlive(pid) {
			_ = os.Remove(p.path)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("kill PID %d: %w", pid, err)
	}
	_ = os.Remove(p.path)
	return nil
}

// Release removes the PID file. Missing files are not an error so shutdown
// paths can call it unconditionally.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file %s: %w", p.path, err)
	}
	return nil
}

// currentHolder reads the recorded PID. ok is false when the file is absent
// or holds garbage.
func (p *PIDFile) currentHolder() (int, bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive probes a PID with signal 0. EPERM means the process exists
// under another user, which still counts as alive.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
