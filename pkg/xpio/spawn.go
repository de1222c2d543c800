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
	"runtime"
	"strings"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/gocapability/capability"
	"golang.org/x/sys/unix"
)

// FDAction describes what a spawned child should do with one of its
// file descriptors before calling exec, processed in order:
//
//	{To: A, From: A}   do nothing, but force A into blocking mode
//	{To: A, From: B}   dup2(B, A), then force A into blocking mode
//	{To: A, From: -1}  close(A)
//
// This is the one place Spawn cannot be expressed through os/exec,
// whose ExtraFiles can only append a contiguous block starting at fd
// 3 — it has no way to ask for an arbitrary dup2 target.
type FDAction struct {
	To   int
	From int
}

// SpawnOptions configures a Spawn call beyond the bare argv/env/fd
// actions the source takes.
type SpawnOptions struct {
	// Dir is the child's working directory. Empty means inherit the
	// parent's.
	Dir string

	// DropCapabilities removes these Linux capabilities (by name, e.g.
	// "CAP_NET_RAW") from the child's bounding set between fork and
	// exec.
	DropCapabilities []string

	// CgroupPath, if set, is a cgroupfs path the child's PID is added
	// to right after the fork, before Spawn returns.
	CgroupPath string

	// Logger receives lifecycle events for the spawned process and its
	// SigChld registration. Nil means nothing is logged.
	Logger *logrus.Entry
}

// Spawn forks a child process, applies fdActions in order, then
// execve(path, argv, envp) in the child. A failed exec always exits
// the child with status 127, mirroring a shell's "command not found"
// convention; the parent never observes the exec error directly, only
// that exit status via Process.TryWait.
func Spawn(path string, argv, envp []string, fdActions []FDAction, opts SpawnOptions) (*Process, error) {
	argv0, err := unix.BytePtrFromString(path)
	if err != nil {
		return nil, osErr("spawn", err)
	}
	argvp, err := unix.SlicePtrFromStrings(argv)
	if err != nil {
		return nil, osErr("spawn", err)
	}
	envvp, err := unix.SlicePtrFromStrings(envp)
	if err != nil {
		return nil, osErr("spawn", err)
	}
	var dirPtr *byte
	if opts.Dir != "" {
		dirPtr, err = unix.BytePtrFromString(opts.Dir)
		if err != nil {
			return nil, osErr("spawn", err)
		}
	}

	capDrop, err := capabilitiesToDrop(opts.DropCapabilities)
	if err != nil {
		return nil, err
	}

	// The self-pipe and its SIGCHLD notifier must be live before the
	// clone below: if the child exits in the window between clone
	// returning and this registration, the signal is gone for good,
	// and nothing else will ever prompt a reap of that PID.
	if err := globalSigChld.ensureStarted(); err != nil {
		return nil, osErr("spawn", err)
	}

	// Locking the OS thread for the duration of fork keeps the
	// goroutine that calls clone(2) the same one that runs in the
	// child immediately after, which is what makes it safe to rely on
	// runtime.LockOSThread() semantics rather than Go's os/exec
	// machinery here.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	mask, err := blockAllSignals()
	if err != nil {
		return nil, osErr("spawn", err)
	}

	pid, _, errno := unix.RawSyscall6(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0, 0, 0, 0)
	if errno != 0 {
		restoreSignalMask(mask)
		return nil, osErr("clone", errno)
	}

	if pid == 0 {
		// Child. No Go allocations, no locks, no function calls that
		// might schedule past this point — only raw syscalls until
		// execve replaces this image or exit(127) gives up.
		childExec(dirPtr, fdActions, argv0, argvp, envvp, capDrop)
		// childExec never returns.
		panic("unreachable")
	}

	restoreSignalMask(mask)

	p := newProcess(int(pid), opts.Logger)

	if opts.CgroupPath != "" {
		if err := addToCgroup(opts.CgroupPath, int(pid)); err != nil {
			return p, fmt.Errorf("xpio: spawn: add to cgroup: %w", err)
		}
	}

	return p, nil
}

// childExec runs entirely in the forked child. It must not return; on
// any failure it calls exit(127) via a raw syscall, the same fallback
// the source's exec pipeline uses for every failure after fork. The
// one exception is a close action: an error closing that descriptor
// is ignored.
//
//go:norace
func childExec(dir *byte, fdActions []FDAction, argv0 *byte, argvp, envvp []*byte, capDrop []uintptr) {
	// Reset the signal mask to empty: the parent blocked every signal
	// across the fork to avoid one landing on the child before it's
	// ready, but the child should start with nothing blocked, the way
	// the source resets sigprocmask to an empty set right after fork.
	var empty unix.Sigset_t
	if _, _, errno := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, unix.SIG_SETMASK, uintptr(unsafe.Pointer(&empty)), 0, 8, 0, 0); errno != 0 {
		rawExit(127)
	}

	if dir != nil {
		if _, _, errno := unix.RawSyscall(unix.SYS_CHDIR, uintptr(unsafe.Pointer(dir)), 0, 0); errno != 0 {
			rawExit(127)
		}
	}

	for _, a := range fdActions {
		if a.From >= 0 {
			if a.From != a.To {
				if _, _, errno := unix.RawSyscall(unix.SYS_DUP2, uintptr(a.From), uintptr(a.To), 0); errno != 0 {
					rawExit(127)
				}
			}
			// Grant the child a blocking descriptor: non-blocking mode
			// is this library's concern, not something a spawned
			// program should inherit unasked.
			flags, _, errno := unix.RawSyscall(unix.SYS_FCNTL, uintptr(a.To), unix.F_GETFL, 0)
			if errno != 0 {
				rawExit(127)
			}
			if _, _, errno := unix.RawSyscall(unix.SYS_FCNTL, uintptr(a.To), unix.F_SETFL, flags&^unix.O_NONBLOCK); errno != 0 {
				rawExit(127)
			}
		} else {
			unix.RawSyscall(unix.SYS_CLOSE, uintptr(a.To), 0, 0)
		}
	}

	for _, capNum := range capDrop {
		if _, _, errno := unix.RawSyscall6(unix.SYS_PRCTL, unix.PR_CAPBSET_DROP, capNum, 0, 0, 0, 0); errno != 0 {
			rawExit(127)
		}
	}

	execve(argv0, argvp, envvp)
	rawExit(127)
}

func rawExit(code uintptr) {
	unix.RawSyscall(unix.SYS_EXIT, code, 0, 0)
}

//go:norace
func execve(path *byte, argv, envp []*byte) {
	var argv0, envp0 unsafe.Pointer
	if len(argv) > 0 {
		argv0 = unsafe.Pointer(&argv[0])
	}
	if len(envp) > 0 {
		envp0 = unsafe.Pointer(&envp[0])
	}
	unix.RawSyscall(unix.SYS_EXECVE, uintptr(unsafe.Pointer(path)), uintptr(argv0), uintptr(envp0))
}

// blockAllSignals masks every signal on the calling thread before
// fork, so a signal destined for this process can't land on the child
// between clone() and the child resetting its own mask, and returns
// the previous mask to restore in the parent.
func blockAllSignals() (unix.Sigset_t, error) {
	var full, old unix.Sigset_t
	for i := range full.Val {
		full.Val[i] = ^uint64(0)
	}
	if err := unix.RtSigprocmask(unix.SIG_SETMASK, &full, &old, 8); err != nil {
		return old, err
	}
	return old, nil
}

func restoreSignalMask(old unix.Sigset_t) {
	unix.RtSigprocmask(unix.SIG_SETMASK, &old, nil, 8)
}

// capabilitiesToDrop resolves capability names (e.g. "CAP_NET_RAW")
// to the numeric constants PR_CAPBSET_DROP expects, the same set
// gocapability's Cap type enumerates for sandbox.go's ambient/bounding
// set computation.
func capabilitiesToDrop(names []string) ([]uintptr, error) {
	if len(names) == 0 {
		return nil, nil
	}
	byName := make(map[string]capability.Cap, len(capability.List()))
	for _, c := range capability.List() {
		byName[strings.ToUpper(c.String())] = c
	}

	out := make([]uintptr, 0, len(names))
	for _, name := range names {
		c, ok := byName[strings.ToUpper(strings.TrimPrefix(name, "CAP_"))]
		if !ok {
			return nil, fmt.Errorf("xpio: spawn: unknown capability %q", name)
		}
		out = append(out, uintptr(c))
	}
	return out, nil
}
