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
	"strings"

	"golang.org/x/sys/unix"
)

// GetTime returns the current wall-clock time as seconds since the
// epoch, with sub-second resolution, the same quantity
// xpio_gettime's gettimeofday-backed (double) tv_sec + tv_usec/1e6
// computes. Callers that need time.Time should use the standard
// library directly; this exists only to match spec.md §6's public
// operations catalog entry.
func GetTime() float64 {
	var tv unix.Timeval
	if err := unix.Gettimeofday(&tv); err != nil {
		return float64(0)
	}
	return float64(tv.Sec) + float64(tv.Usec)/1e6
}

// NextFD returns the next open file descriptor strictly greater than
// prev that does not have FD_CLOEXEC set, or ok == false if there is
// none up to RLIMIT_NOFILE. Pass -1 to start from descriptor 0. This
// mirrors xpio__nextfd, which a host runtime uses to walk inherited
// descriptors before deciding what to do with each (typically: close
// everything not explicitly wanted in a spawned child).
func NextFD(prev int) (fd int, ok bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, false
	}
	fdMax := int(rl.Max) - 1
	if fdMax < 0 {
		fdMax = int(rl.Cur) - 1
	}

	for candidate := prev + 1; candidate <= fdMax; candidate++ {
		flags, err := unix.FcntlInt(uintptr(candidate), unix.F_GETFD, 0)
		if err == nil && flags&unix.FD_CLOEXEC == 0 {
			return candidate, true
		}
	}
	return 0, false
}

// Env returns a snapshot of the current process environment as a
// name -> value map, the same "env" table xpio builds once at module
// load from the global `environ` array.
func Env() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[name] = value
	}
	return env
}
