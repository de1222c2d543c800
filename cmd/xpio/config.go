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

package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ProcessConfig describes a child to spawn. It borrows its argv/env/
// cwd field shapes from specs.Process, the OCI runtime-spec type the
// teacher already depends on for bundle configs, rather than
// inventing a parallel one.
type ProcessConfig struct {
	Args []string `toml:"args"`
	Env  []string `toml:"env"`
	Cwd  string   `toml:"cwd"`
}

// toOCIProcess adapts the TOML-loaded fields into the subset of
// specs.Process this binary actually reads.
func (p ProcessConfig) toOCIProcess() specs.Process {
	return specs.Process{
		Args: p.Args,
		Env:  p.Env,
		Cwd:  p.Cwd,
	}
}

// CgroupConfig names a cgroup v1 path to place a spawned PID into.
type CgroupConfig struct {
	Path string `toml:"path"`
}

// Config is the on-disk shape `run`/`serve` load via --config.
type Config struct {
	Process          ProcessConfig `toml:"process"`
	DropCapabilities []string      `toml:"drop_capabilities"`
	Cgroup           CgroupConfig  `toml:"cgroup"`
	Listen           string        `toml:"listen"`
	PidFile          string        `toml:"pidfile"`
}

// LoadConfig decodes a TOML config file at path.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("xpio: load config %s: %w", path, err)
	}
	return &c, nil
}
