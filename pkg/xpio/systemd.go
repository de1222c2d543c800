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
	"net"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/sirupsen/logrus"
)

// SocketFromSystemd recovers a named, pre-bound listening socket from
// LISTEN_FDS/LISTEN_FDNAMES and wraps it as a Socket already in
// non-blocking mode. It is the idiomatic counterpart of fdopen for a
// descriptor handed down by an init system rather than opened by this
// process, letting a unit file own the bind() call the way runsc's
// control socket is sometimes externally supplied. logger may be nil.
func SocketFromSystemd(name string, logger *logrus.Entry) (*Socket, error) {
	listeners, err := activation.ListenersWithNames()
	if err != nil {
		return nil, osErr("systemd socket activation", err)
	}

	ls, ok := listeners[name]
	if !ok || len(ls) == 0 {
		return nil, fmt.Errorf("xpio: no systemd socket named %q", name)
	}

	tl, ok := ls[0].(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("xpio: systemd socket %q is not a TCP listener", name)
	}

	f, err := tl.File()
	if err != nil {
		return nil, osErr("systemd socket activation", err)
	}
	defer f.Close()
	tl.Close()

	logger = nilSafeLogger(logger)
	logger.WithField("name", name).Debug("xpio: recovered systemd socket")
	return FDOpen(int(f.Fd()), logger)
}
