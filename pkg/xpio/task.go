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

// Task is implemented by anything the host runtime wants resumed when
// a Socket becomes readable/writable or a Process exits: a connection
// state machine, a coroutine handle, or (for simple callers) a Socket
// or Process itself. The interface exists because Go has no open,
// string-keyed object fields to mutate from outside the type the way
// the scripting runtime this package descends from does; TaskState is
// the explicit stand-in for the `_queue`/`_dequeue`/`_dequeuedata`
// fields spec.md §3 and §6 describe on the host's task object. Any
// type the host runtime owns can implement Task by embedding a
// TaskState and exposing it through TaskState(); the core never
// constructs a task itself, it only enqueues whatever the caller hands
// to WhenRead/WhenWrite/WhenWait, matching xpsocket_when_read pushing
// the caller's own task (Lua stack arg 2, distinct from the socket
// itself) in xpio_c.c.
type Task interface {
	TaskState() *TaskState
}

// TaskState is the bookkeeping a TQueue needs to keep a waiter
// registration and its cancellation together. A zero TaskState is not
// registered with any queue.
type TaskState struct {
	queue    *TQueue
	dequeue  func()
	enlisted bool
}

// enlist records a queue and a dequeue callback against a task. It
// panics if the task is already enlisted, matching the "scheduled
// twice" failure of double enqueue.
func (ts *TaskState) enlist(q *TQueue, dequeue func()) {
	if ts.enlisted {
		panic("xpio: task scheduled twice")
	}
	ts.queue = q
	ts.dequeue = dequeue
	ts.enlisted = true
}

// cancel removes the task's registration, if any. It is idempotent:
// calling it on a task that isn't enlisted is a no-op.
func (ts *TaskState) cancel() {
	if !ts.enlisted {
		return
	}
	dequeue := ts.dequeue
	ts.clear()
	dequeue()
}

// clear resets the registration bookkeeping without invoking the
// dequeue callback. TQueue.wait uses this when it wakes a task itself
// and is about to remove the waiter-table entry directly, so calling
// the dequeue closure too would be a redundant (if harmless) map
// delete.
func (ts *TaskState) clear() {
	ts.dequeue = nil
	ts.queue = nil
	ts.enlisted = false
}

// IsWaiting reports whether the task is currently enlisted with a
// queue, waiting for readiness or a child exit.
func (ts *TaskState) IsWaiting() bool {
	return ts.enlisted
}

// Cancel withdraws a pending registration without waiting for
// readiness. It is a public alias of cancel for callers that enlisted
// a task via WhenRead/WhenWrite/WhenWait and later change their mind
// (e.g. a timeout owned by the caller's own scheduler).
func (ts *TaskState) Cancel() {
	ts.cancel()
}
