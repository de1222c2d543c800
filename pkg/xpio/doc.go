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

// Package xpio is a cross-platform (POSIX) non-blocking I/O and
// child-process reactor: a single-threaded cooperative event loop
// (TQueue) that multiplexes readiness of sockets/pipes and termination
// of child processes into one poll(2) wait.
//
// The package owns three cooperating pieces: the task/waiter queue
// (TQueue), the non-blocking socket wrapper (Socket), and the
// child-process wrapper with a signal-safe reaper (Process, sigchld).
// Scheduling tasks, and holding per-task application state, is the
// caller's responsibility; xpio only reads and writes the small bit of
// bookkeeping state described by TaskState.
package xpio
