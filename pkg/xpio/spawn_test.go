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
	"time"
)

func waitExit(t *testing.T, p *Process) ExitStatus {
	t.Helper()
	q := NewTQueue(nil)
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := p.TryWait()
		if err == nil {
			return status
		}
		if err != ErrRetry {
			t.Fatalf("TryWait: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for child to exit")
		}
		p.WhenWait(p, q)
		if _, err := q.Wait(time.Second); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
}

func TestSpawnExecFailureExits127(t *testing.T) {
	p, err := Spawn("/nonexistent/xpio-test-binary", []string{"/nonexistent/xpio-test-binary"}, nil, nil, SpawnOptions{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	status := waitExit(t, p)
	if status.Signaled || status.Code != 127 {
		t.Fatalf("exit status = %+v, want plain exit 127", status)
	}
}

func TestSpawnFDActionsRedirect(t *testing.T) {
	r, w, err := Pipe(nil)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()

	actions := []FDAction{
		{To: 1, From: w.Fileno()},
		{To: 2, From: w.Fileno()},
	}

	p, err := Spawn("/bin/sh", []string{"/bin/sh", "-c", "echo hello"}, nil, actions, SpawnOptions{})
	w.Close()
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	q := NewTQueue(nil)
	var out []byte
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := r.TryRead(256)
		if err == nil && data == nil {
			break // EOF
		}
		if err != nil && err != ErrRetry {
			t.Fatalf("TryRead: %v", err)
		}
		if err == nil {
			out = append(out, data...)
			continue
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out reading child output")
		}
		r.WhenRead(r, q)
		if _, werr := q.Wait(time.Second); werr != nil {
			t.Fatalf("Wait: %v", werr)
		}
	}

	if string(out) != "hello\n" {
		t.Fatalf("child output = %q, want %q", out, "hello\n")
	}

	waitExit(t, p)
}

func TestSpawnFDActionsClose(t *testing.T) {
	r, w, err := Pipe(nil)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	// Closing fd 1 in the child and writing to it should make the shell
	// exit non-zero rather than hang.
	actions := []FDAction{{To: 1, From: -1}}
	p, err := Spawn("/bin/sh", []string{"/bin/sh", "-c", "echo hi >&1"}, nil, actions, SpawnOptions{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	status := waitExit(t, p)
	if !status.Signaled && status.Code == 0 {
		t.Fatalf("expected a failing exit status writing to a closed fd 1, got %+v", status)
	}
}
