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
	"testing"
)

func TestPipeReadWrite(t *testing.T) {
	r, w, err := Pipe(nil)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	n, err := w.TryWrite([]byte("hello"))
	if err != nil {
		t.Fatalf("TryWrite: %v", err)
	}
	if n != 5 {
		t.Fatalf("TryWrite wrote %d bytes, want 5", n)
	}

	data, err := r.TryRead(16)
	if err != nil {
		t.Fatalf("TryRead: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("TryRead = %q, want %q", data, "hello")
	}
}

func TestPipeTryReadRetry(t *testing.T) {
	r, w, err := Pipe(nil)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if _, err := r.TryRead(16); err != ErrRetry {
		t.Fatalf("TryRead on empty pipe = %v, want ErrRetry", err)
	}
}

func TestPipeEOF(t *testing.T) {
	r, w, err := Pipe(nil)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := r.TryRead(16)
	if err != nil {
		t.Fatalf("TryRead after writer closed: %v", err)
	}
	if data != nil {
		t.Fatalf("TryRead after writer closed = %v, want nil (EOF)", data)
	}
}

func TestSocketCloseNotIdempotent(t *testing.T) {
	s, err := NewSocket(TCP, nil)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != ErrClosed {
		t.Fatalf("second Close = %v, want ErrClosed", err)
	}
}

func TestSocketReadZeroBytes(t *testing.T) {
	s, err := NewSocket(TCP, nil)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer s.Close()

	data, err := s.TryRead(0)
	if err != nil {
		t.Fatalf("TryRead(0): %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("TryRead(0) = %v, want empty", data)
	}
}

func TestSocketListenLoopback(t *testing.T) {
	listener, err := NewSocket(TCP, nil)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer listener.Close()

	if err := listener.Setsockopt("SO_REUSEADDR", 1); err != nil {
		t.Fatalf("Setsockopt: %v", err)
	}
	if err := listener.Bind(Addr{IP: [4]byte{127, 0, 0, 1}, Port: 0}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := listener.Listen(0); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	bound, err := listener.Getsockname()
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	if bound.Port == 0 {
		t.Fatalf("Getsockname returned port 0 after binding to an ephemeral port")
	}

	if _, err := listener.TryAccept(); err != ErrRetry {
		t.Fatalf("TryAccept with no pending connection = %v, want ErrRetry", err)
	}
}

func TestSocketUnknownSockopt(t *testing.T) {
	s, err := NewSocket(TCP, nil)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer s.Close()

	if _, err := s.Getsockopt("SO_BOGUS"); err != ErrUnknownSockopt {
		t.Fatalf("Getsockopt(bogus) = %v, want ErrUnknownSockopt", err)
	}
	if err := s.Setsockopt("SO_BOGUS", 1); err != ErrUnknownSockopt {
		t.Fatalf("Setsockopt(bogus) = %v, want ErrUnknownSockopt", err)
	}
}

func TestSocketNonblockSockopt(t *testing.T) {
	s, err := NewSocket(TCP, nil)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer s.Close()

	v, err := s.Getsockopt("O_NONBLOCK")
	if err != nil {
		t.Fatalf("Getsockopt(O_NONBLOCK): %v", err)
	}
	if v != 1 {
		t.Fatalf("Getsockopt(O_NONBLOCK) = %d, want 1 (NewSocket always sets it)", v)
	}
}
