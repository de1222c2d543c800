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
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/talismancer/xpio/pkg/xpio"
)

// runCmd implements `xpio run`: spawn one or more processes from a
// TOML config and wait for them to exit, optionally fanning the spawn
// + wait out across goroutines with --parallel.
type runCmd struct {
	configPath string
	parallel   int
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "spawn a process and wait for it to exit" }
func (*runCmd) Usage() string {
	return "run -config <path> [-parallel N]\n"
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "path to a TOML process config")
	f.IntVar(&r.parallel, "parallel", 1, "number of copies to spawn concurrently")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if r.configPath == "" {
		fmt.Fprintln(os.Stderr, "xpio run: -config is required")
		return subcommands.ExitUsageError
	}

	cfg, err := LoadConfig(r.configPath)
	if err != nil {
		logrus.WithError(err).Error("loading config")
		return subcommands.ExitFailure
	}

	n := r.parallel
	if n < 1 {
		n = 1
	}

	var eg errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			return spawnAndWait(cfg, i)
		})
	}

	if err := eg.Wait(); err != nil {
		logrus.WithError(err).Error("run failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func spawnAndWait(cfg *Config, idx int) error {
	log := logrus.WithField("instance", idx)

	proc := cfg.Process.toOCIProcess()
	if len(proc.Args) == 0 {
		return fmt.Errorf("xpio run: config has no process.args")
	}

	opts := xpio.SpawnOptions{
		Dir:              proc.Cwd,
		DropCapabilities: cfg.DropCapabilities,
		CgroupPath:       cfg.Cgroup.Path,
		Logger:           log,
	}

	envp := proc.Env
	if len(envp) == 0 {
		// No env given in the config: inherit the host's, the same
		// default a plain exec() without an explicit envp would give.
		for name, value := range xpio.Env() {
			envp = append(envp, name+"="+value)
		}
	}

	p, err := xpio.Spawn(proc.Args[0], proc.Args, envp, nil, opts)
	if err != nil {
		return fmt.Errorf("xpio run: spawn: %w", err)
	}
	log.WithField("pid", p.Pid()).Info("spawned")

	q := xpio.NewTQueue(log)
	for {
		status, err := p.TryWait()
		if err == nil {
			if status.Signaled {
				log.WithField("signal", status.Signal).Info("child terminated by signal")
			} else {
				log.WithField("code", status.Code).Info("child exited")
			}
			return nil
		}
		if err != xpio.ErrRetry {
			return fmt.Errorf("xpio run: wait: %w", err)
		}

		p.WhenWait(p, q)
		if _, err := q.Wait(xpio.Infinite); err != nil {
			return fmt.Errorf("xpio run: wait: %w", err)
		}
	}
}
