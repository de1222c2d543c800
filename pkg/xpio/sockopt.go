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

import "golang.org/x/sys/unix"

// sockoptKind distinguishes options whose value is a boolean on/off
// switch from options whose value is a byte count.
type sockoptKind int

const (
	sockoptBool sockoptKind = iota
	sockoptSize
)

// sockoptCategory distinguishes plain getsockopt/setsockopt options
// from the pseudo-option that toggles O_NONBLOCK via fcntl.
type sockoptCategory int

const (
	sockoptSO sockoptCategory = iota
	sockoptNB
)

type sockopt struct {
	kind     sockoptKind
	category sockoptCategory
	level    int
	name     int
}

// sockopts is the whitelist of option names Getsockopt/Setsockopt
// accept. Anything else is rejected with ErrUnknownSockopt rather than
// passed through to the kernel verbatim.
var sockopts = map[string]sockopt{
	"TCP_NODELAY":  {kind: sockoptBool, category: sockoptSO, level: unix.IPPROTO_TCP, name: unix.TCP_NODELAY},
	"SO_KEEPALIVE": {kind: sockoptBool, category: sockoptSO, level: unix.SOL_SOCKET, name: unix.SO_KEEPALIVE},
	"SO_REUSEADDR": {kind: sockoptBool, category: sockoptSO, level: unix.SOL_SOCKET, name: unix.SO_REUSEADDR},
	"SO_RCVBUF":    {kind: sockoptSize, category: sockoptSO, level: unix.SOL_SOCKET, name: unix.SO_RCVBUF},
	"SO_SNDBUF":    {kind: sockoptSize, category: sockoptSO, level: unix.SOL_SOCKET, name: unix.SO_SNDBUF},
	"O_NONBLOCK":   {kind: sockoptBool, category: sockoptNB},
}

func findSockopt(name string) (sockopt, bool) {
	o, ok := sockopts[name]
	return o, ok
}
