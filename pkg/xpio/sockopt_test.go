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

import "testing"

func TestFindSockopt(t *testing.T) {
	for _, name := range []string{"TCP_NODELAY", "SO_KEEPALIVE", "SO_REUSEADDR", "SO_RCVBUF", "SO_SNDBUF", "O_NONBLOCK"} {
		if _, ok := findSockopt(name); !ok {
			t.Errorf("findSockopt(%q) not found", name)
		}
	}
	if _, ok := findSockopt("SO_BOGUS"); ok {
		t.Error("findSockopt(SO_BOGUS) unexpectedly found")
	}
}
