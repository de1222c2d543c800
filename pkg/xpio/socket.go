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
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// SockType selects the socket family xpio knows how to create.
// Anything beyond IPv4 TCP/UDP is out of scope.
type SockType int

const (
	TCP SockType = iota
	UDP
)

// Socket wraps a single non-blocking file descriptor: a TCP/UDP
// socket, a pipe end, or any descriptor handed in via FDOpen. All
// operations are non-blocking; a call that would otherwise block
// returns ErrRetry and the caller is expected to enlist with
// WhenRead/WhenWrite and suspend until a TQueue wakes it.
type Socket struct {
	mu     sync.Mutex
	fd     int // -1 once closed
	ts     TaskState
	logger *logrus.Entry
}

func newSocket(fd int, logger *logrus.Entry) *Socket {
	return &Socket{fd: fd, logger: nilSafeLogger(logger)}
}

// TaskState implements Task: a Socket is itself usable as the task
// enqueued against its own fd, for callers with no richer task object
// of their own to resume.
func (s *Socket) TaskState() *TaskState { return &s.ts }

// NewSocket creates an AF_INET socket of the given type, already
// placed in non-blocking mode. logger may be nil, in which case the
// socket logs nothing.
func NewSocket(t SockType, logger *logrus.Entry) (*Socket, error) {
	var kind int
	switch t {
	case TCP:
		kind = unix.SOCK_STREAM
	case UDP:
		kind = unix.SOCK_DGRAM
	default:
		return nil, osErr("socket", unix.EINVAL)
	}

	fd, err := unix.Socket(unix.AF_INET, kind, 0)
	if err != nil {
		return nil, osErr("socket", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, osErr("socket", err)
	}
	s := newSocket(fd, logger)
	s.logger.WithField("fd", fd).Debug("xpio: socket created")
	return s, nil
}

// FDOpen wraps an existing file descriptor, dup'ing it so the new
// Socket owns an independent descriptor and closing it never
// surprises whatever else holds the original, and puts it into
// non-blocking mode. logger may be nil.
func FDOpen(fd int, logger *logrus.Entry) (*Socket, error) {
	dupped, err := unix.Dup(fd)
	if err != nil {
		return nil, osErr("dup", err)
	}
	if err := unix.SetNonblock(dupped, true); err != nil {
		unix.Close(dupped)
		return nil, osErr("fdopen", err)
	}
	return newSocket(dupped, logger), nil
}

// Pipe creates a connected pair of non-blocking Sockets wrapping the
// two ends of a pipe(2). logger may be nil.
func Pipe(logger *logrus.Entry) (r, w *Socket, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, nil, osErr("pipe", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, osErr("pipe", err)
		}
	}
	return newSocket(fds[0], logger), newSocket(fds[1], logger), nil
}

// SocketPair creates a connected pair of non-blocking Sockets wrapping
// a unix(7) SOCK_STREAM socketpair(2). logger may be nil.
func SocketPair(logger *logrus.Entry) (a, b *Socket, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, osErr("socketpair", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, osErr("socketpair", err)
		}
	}
	return newSocket(fds[0], logger), newSocket(fds[1], logger), nil
}

// Fileno returns the underlying file descriptor, or -1 if the socket
// is closed.
func (s *Socket) Fileno() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// Bind binds the socket to addr.
func (s *Socket) Bind(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Bind(s.fd, addrToSockaddr(addr)); err != nil {
		return osErr("bind", err)
	}
	return nil
}

// Listen marks the socket as a passive listener with the given
// backlog. A backlog of 0 defaults to 10, matching a plain listen()
// call with no explicit backlog argument.
func (s *Socket) Listen(backlog int) error {
	if backlog == 0 {
		backlog = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Listen(s.fd, backlog); err != nil {
		return osErr("listen", err)
	}
	return nil
}

// TryConnect attempts to connect to addr without blocking. A first
// call typically returns ErrRetry (EINPROGRESS); when the socket
// becomes writable the caller should call TryConnect again, which
// will see EISCONN (treated as success) or EALREADY/EINPROGRESS
// again, or a hard error.
func (s *Socket) TryConnect(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := unix.Connect(s.fd, addrToSockaddr(addr))
	if err == nil || err == unix.EISCONN {
		return nil
	}
	if isRetryable(err) {
		return ErrRetry
	}
	return osErr("connect", err)
}

// TryAccept accepts a pending connection without blocking, returning
// ErrRetry if none is ready. The accepted Socket is placed into
// non-blocking mode explicitly, since Linux does not propagate the
// listening socket's file status flags to accepted descriptors.
func (s *Socket) TryAccept() (*Socket, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	nfd, _, err := unix.Accept(fd)
	if err != nil {
		if isRetryable(err) {
			return nil, ErrRetry
		}
		return nil, osErr("accept", err)
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, osErr("accept", err)
	}
	s.logger.WithField("fd", nfd).Debug("xpio: accepted connection")
	return newSocket(nfd, s.logger), nil
}

// TryRead reads up to size bytes without blocking. It returns
// (nil, nil) at end of stream, (nil, ErrRetry) when no data is
// available yet, and (data, nil) otherwise. Reading zero bytes always
// succeeds trivially without touching the descriptor, since POSIX
// leaves a zero-length read's error-checking behavior
// implementation-defined.
func (s *Socket) TryRead(size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	buf := make([]byte, size)
	n, err := unix.Read(fd, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if n == 0 {
		return nil, nil
	}
	if isRetryable(err) {
		return nil, ErrRetry
	}
	return nil, osErr("read", err)
}

// TryWrite writes data without blocking, returning the number of
// bytes actually written, or ErrRetry if none could be written right
// now.
func (s *Socket) TryWrite(data []byte) (int, error) {
	s.mu.Lock()
	fd := s.fd
	s.mu.Unlock()

	n, err := unix.Write(fd, data)
	if err != nil {
		if isRetryable(err) {
			return 0, ErrRetry
		}
		return 0, osErr("write", err)
	}
	return n, nil
}

// Shutdown half- or fully-closes the socket. flags is any combination
// of "r" and "w" ("rw" for both); an empty flags string is a no-op
// that still reports success, the way the source treats a shutdown
// call with neither flag as trivially satisfied.
//
// SHUT_RDWR is not simply SHUT_RD|SHUT_WR bitwise-ORed — the three
// shutdown "how" values are small distinct integers, not a bitmask, so
// this maps the flag combination to the right one explicitly.
func (s *Socket) Shutdown(flags string) error {
	shutR := strings.ContainsRune(flags, 'r')
	shutW := strings.ContainsRune(flags, 'w')
	if !shutR && !shutW {
		return nil
	}

	how := unix.SHUT_RD
	switch {
	case shutR && shutW:
		how = unix.SHUT_RDWR
	case shutW:
		how = unix.SHUT_WR
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Shutdown(s.fd, how); err != nil {
		return osErr("shutdown", err)
	}
	return nil
}

// Close closes the underlying descriptor. It is not idempotent:
// closing an already-closed Socket returns ErrClosed.
func (s *Socket) Close() error {
	s.ts.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd == -1 {
		return ErrClosed
	}
	fd := s.fd
	s.fd = -1
	if err := unix.Close(fd); err != nil {
		return osErr("close", err)
	}
	s.logger.WithField("fd", fd).Debug("xpio: socket closed")
	return nil
}

// Getsockname returns the local address the socket is bound to.
func (s *Socket) Getsockname() (Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return Addr{}, osErr("getsockname", err)
	}
	return sockaddrToAddr(sa)
}

// Getpeername returns the address of the socket's connected peer.
func (s *Socket) Getpeername() (Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return Addr{}, osErr("getpeername", err)
	}
	return sockaddrToAddr(sa)
}

// Getsockopt reads a whitelisted socket option. Bool options return 0
// or 1; size options return a byte count.
func (s *Socket) Getsockopt(name string) (int, error) {
	opt, ok := findSockopt(name)
	if !ok {
		return 0, ErrUnknownSockopt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if opt.category == sockoptNB {
		flags, err := unix.FcntlInt(uintptr(s.fd), unix.F_GETFL, 0)
		if err != nil {
			return 0, osErr("getsockopt", err)
		}
		if flags&unix.O_NONBLOCK != 0 {
			return 1, nil
		}
		return 0, nil
	}

	v, err := unix.GetsockoptInt(s.fd, opt.level, opt.name)
	if err != nil {
		return 0, osErr("getsockopt", err)
	}
	return v, nil
}

// Setsockopt writes a whitelisted socket option. For SOCKOPT_BOOL
// options, any non-zero value means "on".
func (s *Socket) Setsockopt(name string, value int) error {
	opt, ok := findSockopt(name)
	if !ok {
		return ErrUnknownSockopt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if opt.category == sockoptNB {
		flags, err := unix.FcntlInt(uintptr(s.fd), unix.F_GETFL, 0)
		if err != nil {
			return osErr("setsockopt", err)
		}
		if value != 0 {
			flags |= unix.O_NONBLOCK
		} else {
			flags &^= unix.O_NONBLOCK
		}
		if _, err := unix.FcntlInt(uintptr(s.fd), unix.F_SETFL, flags); err != nil {
			return osErr("setsockopt", err)
		}
		return nil
	}

	if err := unix.SetsockoptInt(s.fd, opt.level, opt.name, value); err != nil {
		return osErr("setsockopt", err)
	}
	return nil
}

// WhenRead enlists task as a reader on this socket's fd in q. task is
// woken the next time q.Wait sees the descriptor become readable (or
// hit error/EOF/hangup); it is usually some larger host-runtime object
// (a connection state machine, a coroutine handle) but may be the
// Socket itself for callers with nothing richer to resume.
func (s *Socket) WhenRead(task Task, q *TQueue) {
	q.enqueueRead(s.Fileno(), task)
}

// WhenWrite enlists task as a writer on this socket's fd in q.
func (s *Socket) WhenWrite(task Task, q *TQueue) {
	q.enqueueWrite(s.Fileno(), task)
}

func addrToSockaddr(a Addr) *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: int(a.Port)}
	sa.Addr = a.IP
	return sa
}

func sockaddrToAddr(sa unix.Sockaddr) (Addr, error) {
	sin4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return Addr{}, osErr("getsockname", unix.EAFNOSUPPORT)
	}
	return Addr{IP: sin4.Addr, Port: uint16(sin4.Port)}, nil
}
