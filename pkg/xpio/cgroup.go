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

import "github.com/containerd/cgroups"

// addToCgroup loads an existing cgroup v1 hierarchy rooted at path and
// adds pid to it, the same post-fork placement sandbox.go performs
// once it has a live sandbox PID.
func addToCgroup(path string, pid int) error {
	control, err := cgroups.Load(cgroups.V1, cgroups.StaticPath(path))
	if err != nil {
		return osErr("cgroup load", err)
	}
	if err := control.Add(cgroups.Process{Pid: pid}); err != nil {
		return osErr("cgroup add", err)
	}
	return nil
}
