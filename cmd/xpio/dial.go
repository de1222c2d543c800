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
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/talismancer/xpio/pkg/xpio"
)

// dialCmd implements `xpio dial`: connect to an address with
// exponential-backoff retry, printing the elapsed time on success.
type dialCmd struct {
	addr    string
	timeout time.Duration
}

func (*dialCmd) Name() string     { return "dial" }
func (*dialCmd) Synopsis() string { return "connect to an address, retrying with backoff" }
func (*dialCmd) Usage() string {
	return "dial -addr <host:port> [-timeout 10s]\n"
}

func (d *dialCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.addr, "addr", "", "address to connect to, e.g. 127.0.0.1:9000")
	f.DurationVar(&d.timeout, "timeout", 10*time.Second, "give up after this long")
}

func (d *dialCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if d.addr == "" {
		fmt.Fprintln(os.Stderr, "xpio dial: -addr is required")
		return subcommands.ExitUsageError
	}

	addr, err := xpio.ParseAddr(d.addr)
	if err != nil {
		logrus.WithError(err).Error("parsing -addr")
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	q := xpio.NewTQueue(logrus.WithField("component", "dial"))
	start := time.Now()
	sock, err := xpio.DialRetry(ctx, q, addr)
	if err != nil {
		logrus.WithError(err).Error("dial failed")
		return subcommands.ExitFailure
	}
	defer sock.Close()

	logrus.WithField("elapsed", time.Since(start)).Info("connected")
	return subcommands.ExitSuccess
}
