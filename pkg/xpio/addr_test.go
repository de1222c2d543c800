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

	"github.com/google/go-cmp/cmp"
)

func TestParseAddr(t *testing.T) {
	cases := []struct {
		in   string
		want Addr
	}{
		{":123", Addr{IP: [4]byte{0, 0, 0, 0}, Port: 123}},
		{"1.2.3.4", Addr{IP: [4]byte{1, 2, 3, 4}, Port: 0}},
		{"123.4.5.255:258", Addr{IP: [4]byte{123, 4, 5, 255}, Port: 258}},
		{"1.2", Addr{IP: [4]byte{1, 0, 0, 2}, Port: 0}},
		{"1.2.3", Addr{IP: [4]byte{1, 2, 0, 3}, Port: 0}},
		{"", Addr{IP: [4]byte{0, 0, 0, 0}, Port: 0}},
	}

	for _, c := range cases {
		got, err := ParseAddr(c.in)
		if err != nil {
			t.Fatalf("ParseAddr(%q): unexpected error: %v", c.in, err)
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("ParseAddr(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func TestParseAddrMalformed(t *testing.T) {
	for _, in := range []string{"1.2.3.4.5", "1.2.3.4.5.6"} {
		if _, err := ParseAddr(in); err == nil {
			t.Errorf("ParseAddr(%q): expected error, got nil", in)
		}
	}
}

func TestAddrRoundTrip(t *testing.T) {
	addrs := []Addr{
		{IP: [4]byte{0, 0, 0, 0}, Port: 0},
		{IP: [4]byte{127, 0, 0, 1}, Port: 8080},
		{IP: [4]byte{255, 255, 255, 255}, Port: 65535},
		{IP: [4]byte{10, 0, 0, 1}, Port: 1},
	}

	for _, a := range addrs {
		got, err := ParseAddr(a.String())
		if err != nil {
			t.Fatalf("ParseAddr(%q): %v", a.String(), err)
		}
		if diff := cmp.Diff(a, got); diff != "" {
			t.Errorf("round trip of %v mismatch (-want +got):\n%s", a, diff)
		}
	}
}
