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

	"github.com/containerd/console"
)

// SpawnPTY is a Spawn variant for interactive children: it allocates
// a console pair, wires the replica into the child's stdin/stdout/
// stderr ahead of the caller's own fdActions, and returns the master
// end as a Socket so the caller can WhenRead/WhenWrite on it like any
// other descriptor. Grounded on sandbox.go's console.NewWithSocket use
// for attaching a sandbox process to a controlling TTY.
func SpawnPTY(path string, argv, envp []string, fdActions []FDAction, opts SpawnOptions) (*Process, *Socket, error) {
	master, slavePath, err := console.NewPty()
	if err != nil {
		return nil, nil, osErr("spawn: pty", err)
	}
	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, nil, osErr("spawn: pty slave", err)
	}
	defer slave.Close()

	replicaFd := int(slave.Fd())
	ttyActions := append([]FDAction{
		{To: 0, From: replicaFd},
		{To: 1, From: replicaFd},
		{To: 2, From: replicaFd},
	}, fdActions...)

	masterSock, err := FDOpen(int(master.Fd()), opts.Logger)
	if err != nil {
		master.Close()
		return nil, nil, err
	}

	p, err := Spawn(path, argv, envp, ttyActions, opts)
	if err != nil {
		masterSock.Close()
		master.Close()
		return nil, nil, err
	}
	master.Close()
	return p, masterSock, nil
}
