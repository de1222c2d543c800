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
	"fmt"

	"golang.org/x/sys/unix"
)

// osErr wraps a syscall failure with the operation that produced it.
func osErr(op string, err error) error {
	return fmt.Errorf("xpio: %s: %w", op, err)
}

// isRetryable reports whether a syscall error means "can't proceed
// right now, enlist and wait" rather than a hard failure. EAGAIN and
// EWOULDBLOCK are the same errno on Linux, so they can't both be
// switch cases; this checks them with ==.
func isRetryable(err error) bool {
	return err == unix.EAGAIN ||
		err == unix.EWOULDBLOCK ||
		err == unix.EINTR ||
		err == unix.EINPROGRESS ||
		err == unix.EALREADY
}
