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

import "errors"

// ErrRetry is returned by try_* operations that would otherwise block.
// The caller should enlist with when_read/when_write/when_wait and
// suspend until TQueue.wait wakes the task.
var ErrRetry = errors.New("xpio: retry")

// ErrClosed is returned by Socket.Close when called on an already
// closed socket; closing is not idempotent.
var ErrClosed = errors.New("xpio: already closed")

// ErrUnknownSockopt is returned by Getsockopt/Setsockopt for any name
// outside the whitelist in sockopt.go.
var ErrUnknownSockopt = errors.New("xpio: unknown socket option")

// ErrNotRunning is returned by Process.Kill when the process has
// already been reaped.
var ErrNotRunning = errors.New("xpio: process not running")

// ErrMalformedAddr is returned by ParseAddr for syntactically invalid
// input.
var ErrMalformedAddr = errors.New("xpio: malformed address")
