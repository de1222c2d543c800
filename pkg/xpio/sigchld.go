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
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

// POSIX fail: querying the status of a child process has the side
// effect of releasing the process; the PID -> process mapping becomes
// invalid the moment it's reaped, and PIDs are recycled eagerly enough
// that a stale one can easily refer to an unrelated process by the
// time a caller gets around to using it.
//
// Strategy: a goroutine fed by signal.Notify(unix.SIGCHLD) stands in
// for the async-signal-safe C handler this package can't install; it
// only writes a wake-up byte to a self-pipe, because the real reaping
// (waitpid + updating Process state) has to happen on whichever
// TQueue.wait call is actually holding the child waiter table, not on
// the notify goroutine. Any TQueue might end up reaping a Process that
// another TQueue's waiter table is holding, so every wait() call
// sweeps its own child waiters both before and after poll.
type sigChld struct {
	mu      sync.Mutex
	pipeR   int
	pipeW   int
	procs   map[int32]*Process
	started bool
}

var globalSigChld sigChld

// ensureStarted lazily creates the self-pipe and the notify goroutine
// on the first Spawn call. Safe to call repeatedly and concurrently.
func (s *sigChld) ensureStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return os.NewSyscallError("pipe2", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return os.NewSyscallError("setnonblock", err)
	}

	s.pipeR = fds[0]
	s.pipeW = fds[1]
	s.procs = make(map[int32]*Process)
	s.started = true

	ch := make(chan os.Signal, 64)
	signal.Notify(ch, unix.SIGCHLD)
	go s.notifyLoop(ch)

	return nil
}

// notifyLoop forwards every SIGCHLD delivery to the self-pipe. It
// never touches process state directly: reap() does that, called from
// TQueue.wait on whichever goroutine is polling when the pipe wakes.
func (s *sigChld) notifyLoop(ch <-chan os.Signal) {
	for range ch {
		for {
			_, err := unix.Write(s.pipeW, []byte{1})
			if err != unix.EINTR {
				break
			}
		}
	}
}

// sigPipeFD returns the read end of the self-pipe that TQueue.wait
// polls for readability when it has pending child waiters.
func (s *sigChld) sigPipeFD() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeR
}

func (s *sigChld) register(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[p.pid] = p
}

func (s *sigChld) unregister(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, p.pid)
}

// reap drains the self-pipe, reaps every exited child with a
// non-blocking waitpid(-1) loop, and updates the matching registered
// Process. It returns the number of processes it updated so callers
// know whether to re-check their child waiter tables.
func (s *sigChld) reap() int {
	var buf [32]byte
	received := false
	for {
		n, err := unix.Read(s.pipeR, buf[:])
		if n > 0 {
			received = true
		}
		if err != nil || n < len(buf) {
			break
		}
	}
	if !received {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if pid > 0 {
			if p, ok := s.procs[int32(pid)]; ok {
				p.mu.Lock()
				p.pid = 0
				p.status = ws
				p.mu.Unlock()
				delete(s.procs, int32(pid))
				updated++
				p.logger.WithField("pid", pid).Debug("xpio: process reaped")
			}
			continue
		}
		if pid == -1 && err == unix.EINTR {
			continue
		}
		break
	}
	return updated
}
