// Copyright 2024 The XPIO Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package xpio

import (
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ExitStatus is the terminal state of a reaped child process: either
// a plain exit code, or termination by a signal.
type ExitStatus struct {
	Signaled bool
	Code     int
	Signal   syscall.Signal
}

// Process is a handle on a single child PID. It is registered with
// the package's SigChld reactor the moment a Spawn creates it, and
// unregistered once Close runs or the process is reaped.
type Process struct {
	mu     sync.Mutex
	pid    int32 // 0 once reaped
	status unix.WaitStatus
	ts     TaskState
	logger *logrus.Entry
}

func newProcess(pid int, logger *logrus.Entry) *Process {
	p := &Process{pid: int32(pid), logger: nilSafeLogger(logger)}
	globalSigChld.register(p)
	p.logger.WithField("pid", pid).Debug("xpio: process spawned")
	return p
}

// TaskState implements Task: a Process is itself usable as the task
// enqueued against its own exit, for callers with no richer task
// object of their own to resume.
func (p *Process) TaskState() *TaskState { return &p.ts }

// Pid returns the process's PID while it is running, and 0 once the
// process has been reaped; use TryWait to read its exit status.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pid == 0 {
		return 0
	}
	return int(p.pid)
}

// Kill sends SIGKILL to the process. It returns ErrNotRunning if the
// process has already been reaped.
func (p *Process) Kill() error {
	p.mu.Lock()
	pid := p.pid
	p.mu.Unlock()

	if pid <= 0 {
		return ErrNotRunning
	}
	if err := unix.Kill(int(pid), unix.SIGKILL); err != nil {
		return osErr("kill", err)
	}
	return nil
}

// Close releases the Process's bookkeeping. If the process is still
// running, Close kills it first, mirroring a child process finalizer
// that refuses to leak an unreaped, unmanaged PID.
func (p *Process) Close() error {
	p.ts.cancel()

	p.mu.Lock()
	pid := p.pid
	p.mu.Unlock()

	if pid > 0 {
		unix.Kill(int(pid), unix.SIGKILL)
		p.logger.WithField("pid", pid).Debug("xpio: killed still-running process on close")
	}
	globalSigChld.unregister(p)
	return nil
}

// TryWait returns the process's exit status without blocking. Before
// the process has exited, it returns ErrRetry; the caller should
// WhenWait and suspend until TQueue wakes it.
func (p *Process) TryWait() (ExitStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pid > 0 {
		return ExitStatus{}, ErrRetry
	}

	ws := p.status
	switch {
	case ws.Exited():
		return ExitStatus{Code: ws.ExitStatus()}, nil
	case ws.Signaled():
		return ExitStatus{Signaled: true, Signal: ws.Signal()}, nil
	default:
		return ExitStatus{}, ErrRetry
	}
}

// WhenWait enlists task to be woken when this process exits. task is
// usually some larger host-runtime object (whatever is waiting on the
// child) but may be the Process itself for callers with nothing
// richer to resume. The task is woken the next time q.Wait reaps an
// exited child matching this process.
func (p *Process) WhenWait(task Task, q *TQueue) {
	q.enqueueChild(p, task)
}
