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

func spawnShell(t *testing.T, script string) *Process {
	t.Helper()
	p, err := Spawn("/bin/sh", []string{"/bin/sh", "-c", script}, []string{"PATH=/usr/bin:/bin"}, nil, SpawnOptions{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return p
}

func TestProcessTryWaitExit(t *testing.T) {
	p := spawnShell(t, "exit 7")
	defer p.Close()

	q := NewTQueue(nil)
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := p.TryWait()
		if err == nil {
			if status.Signaled {
				t.Fatalf("process exited via signal %v, want plain exit", status.Signal)
			}
			if status.Code != 7 {
				t.Fatalf("exit code = %d, want 7", status.Code)
			}
			return
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

func TestProcessKill(t *testing.T) {
	p := spawnShell(t, "sleep 30")
	defer p.Close()

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	q := NewTQueue(nil)
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := p.TryWait()
		if err == nil {
			if !status.Signaled {
				t.Fatalf("expected signaled exit status after Kill, got %+v", status)
			}
			return
		}
		if err != ErrRetry {
			t.Fatalf("TryWait: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for killed child to be reaped")
		}
		p.WhenWait(p, q)
		if _, err := q.Wait(time.Second); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
}

func TestProcessKillAfterExitReturnsErrNotRunning(t *testing.T) {
	p := spawnShell(t, "exit 0")
	defer p.Close()

	q := NewTQueue(nil)
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := p.TryWait()
		if err == nil {
			break
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

	if err := p.Kill(); err != ErrNotRunning {
		t.Fatalf("Kill after exit = %v, want ErrNotRunning", err)
	}
}
