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
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Infinite, passed to TQueue.Wait, blocks until some waiter becomes
// ready with no timeout.
const Infinite time.Duration = -1

// TQueue is a single-threaded waiter queue: tasks register interest in
// a socket becoming readable/writable, or a Process exiting, and
// TQueue.Wait blocks (via poll(2)) until at least one of them is
// ready. TQueue is not safe for concurrent use — the reactor this
// package models is cooperative and single-threaded by design.
type TQueue struct {
	readers      map[int]Task
	writers      map[int]Task
	childWaiters map[*Process]Task

	scratch []unix.PollFd
	logger  *logrus.Entry
}

// NewTQueue creates an empty waiter queue. logger may be nil, in which
// case the queue logs nothing.
func NewTQueue(logger *logrus.Entry) *TQueue {
	return &TQueue{
		readers:      make(map[int]Task),
		writers:      make(map[int]Task),
		childWaiters: make(map[*Process]Task),
		logger:       nilSafeLogger(logger),
	}
}

// IsEmpty reports whether the queue has no registered waiters of any
// kind.
func (q *TQueue) IsEmpty() bool {
	return len(q.readers) == 0 && len(q.writers) == 0 && len(q.childWaiters) == 0
}

func (q *TQueue) enqueueRead(fd int, t Task) {
	ts := t.TaskState()
	ts.enlist(q, func() { delete(q.readers, fd) })
	q.readers[fd] = t
}

func (q *TQueue) enqueueWrite(fd int, t Task) {
	ts := t.TaskState()
	ts.enlist(q, func() { delete(q.writers, fd) })
	q.writers[fd] = t
}

// enqueueChild registers t to be woken when p exits. p is only ever
// the table key (the condition being waited on); t is the caller's own
// task, which may be p itself or some other host-runtime object
// entirely, mirroring xpsocket_when_read/xpproc_when_wait pushing the
// caller-supplied task at Lua stack arg 2 rather than assuming self.
func (q *TQueue) enqueueChild(p *Process, t Task) {
	ts := t.TaskState()
	ts.enlist(q, func() { delete(q.childWaiters, p) })
	q.childWaiters[p] = t
}

// sweepChildWaiters moves every already-exited child waiter into
// ready and returns the updated ready slice along with the count of
// waiters still pending. It must run both before poll (a child may
// have exited and been reaped by another TQueue already) and after
// poll (this queue's own reap just ran).
func (q *TQueue) sweepChildWaiters(ready []Task) ([]Task, int) {
	pending := 0
	for p, t := range q.childWaiters {
		p.mu.Lock()
		exited := p.pid == 0
		p.mu.Unlock()

		if exited {
			delete(q.childWaiters, p)
			t.TaskState().clear()
			ready = append(ready, t)
		} else {
			pending++
		}
	}
	return ready, pending
}

// Wait blocks until at least one registered waiter is ready, or
// timeout elapses (Infinite blocks with no timeout), and returns the
// tasks that became ready. A nil, nil result with nothing registered
// and Infinite passed means there was nothing to ever wake the call,
// matching a caller bug rather than a real wait.
func (q *TQueue) Wait(timeout time.Duration) ([]Task, error) {
	timeoutMS := -1
	if timeout >= 0 {
		ms := timeout.Milliseconds()
		if ms < 0 {
			ms = 0
		} else if ms > math.MaxInt32 {
			ms = math.MaxInt32
		}
		timeoutMS = int(ms)
	}

	q.scratch = q.scratch[:0]
	slot := make(map[int]int, len(q.readers)+len(q.writers))

	for fd := range q.readers {
		slot[fd] = len(q.scratch)
		q.scratch = append(q.scratch, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	for fd := range q.writers {
		if idx, ok := slot[fd]; ok {
			q.scratch[idx].Events |= unix.POLLOUT
		} else {
			slot[fd] = len(q.scratch)
			q.scratch = append(q.scratch, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
		}
	}

	var ready []Task
	ready, numChildWaiters := q.sweepChildWaiters(ready)
	if len(ready) > 0 {
		timeoutMS = 0
	}

	sigIdx := -1
	if numChildWaiters > 0 {
		if err := globalSigChld.ensureStarted(); err != nil {
			return nil, err
		}
		sigIdx = len(q.scratch)
		q.scratch = append(q.scratch, unix.PollFd{Fd: int32(globalSigChld.sigPipeFD()), Events: unix.POLLIN})
	}

	if timeoutMS == -1 && len(q.scratch) == 0 {
		return nil, nil
	}

	var numOut int
	var err error
	for {
		numOut, err = unix.Poll(q.scratch, timeoutMS)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return nil, osErr("poll", err)
	}
	_ = numOut

	sockFDs := len(q.scratch)
	if sigIdx >= 0 {
		sockFDs--
	}
	for i := 0; i < sockFDs; i++ {
		pfd := q.scratch[i]
		fd := int(pfd.Fd)

		if pfd.Events&unix.POLLIN != 0 && pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			if t, ok := q.readers[fd]; ok {
				delete(q.readers, fd)
				t.TaskState().clear()
				ready = append(ready, t)
			}
		}
		if pfd.Events&unix.POLLOUT != 0 && pfd.Revents&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			if t, ok := q.writers[fd]; ok {
				delete(q.writers, fd)
				t.TaskState().clear()
				ready = append(ready, t)
			}
		}
	}

	if sigIdx >= 0 {
		pfd := q.scratch[sigIdx]
		if pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && globalSigChld.reap() > 0 {
			ready, _ = q.sweepChildWaiters(ready)
		}
	}

	q.logger.WithField("ready", len(ready)).Debug("xpio: tqueue wait returned")
	return ready, nil
}
