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

	"github.com/gofrs/flock"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/talismancer/xpio/pkg/xpio"
)

// serveCmd implements `xpio serve`: a TCP echo listener that exercises
// accept/read/write/close and backpressures its accept loop
// with a rate.Limiter, the way a real accept loop guards against an
// accept storm.
type serveCmd struct {
	configPath  string
	listen      string
	systemd     string
	pidFile     string
	acceptLimit float64
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run a TCP echo listener" }
func (*serveCmd) Usage() string {
	return "serve (-listen <addr> | -systemd <name>) [-pidfile <path>]\n"
}

func (s *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.configPath, "config", "", "optional TOML config (overridden by flags)")
	f.StringVar(&s.listen, "listen", "", "address to listen on, e.g. 0.0.0.0:9000")
	f.StringVar(&s.systemd, "systemd", "", "use a named LISTEN_FDS socket instead of binding one")
	f.StringVar(&s.pidFile, "pidfile", "", "advisory-lock pidfile path")
	f.Float64Var(&s.acceptLimit, "accept-rate", 100, "max accepts per second")
}

func (s *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	listen := s.listen
	pidFile := s.pidFile
	log := logrus.WithField("component", "serve")

	if s.configPath != "" {
		cfg, err := LoadConfig(s.configPath)
		if err != nil {
			log.WithError(err).Error("loading config")
			return subcommands.ExitFailure
		}
		if listen == "" {
			listen = cfg.Listen
		}
		if pidFile == "" {
			pidFile = cfg.PidFile
		}
	}
	if listen == "" && s.systemd == "" {
		fmt.Fprintln(os.Stderr, "xpio serve: one of -listen or -systemd is required")
		return subcommands.ExitUsageError
	}

	if pidFile != "" {
		lock := flock.New(pidFile)
		locked, err := lock.TryLock()
		if err != nil || !locked {
			log.WithField("pidfile", pidFile).Error("another instance holds the pidfile lock")
			return subcommands.ExitFailure
		}
		defer lock.Unlock()
	}

	listener, err := acquireListener(listen, s.systemd, log)
	if err != nil {
		log.WithError(err).Error("acquiring listener")
		return subcommands.ExitFailure
	}
	defer listener.Close()

	if err := runEchoServer(ctx, listener, s.acceptLimit, log); err != nil {
		log.WithError(err).Error("serve failed")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// acquireListener binds listen itself, or, if systemdName is set,
// recovers an already-bound-and-listening socket an init system
// handed down via LISTEN_FDS — the two are mutually exclusive ways to
// get the same bound, listening TCP socket runEchoServer accepts on.
func acquireListener(listen, systemdName string, log *logrus.Entry) (*xpio.Socket, error) {
	if systemdName != "" {
		listener, err := xpio.SocketFromSystemd(systemdName, log)
		if err != nil {
			return nil, fmt.Errorf("xpio serve: systemd socket: %w", err)
		}
		return listener, nil
	}

	addr, err := xpio.ParseAddr(listen)
	if err != nil {
		return nil, fmt.Errorf("xpio serve: parsing -listen address: %w", err)
	}

	listener, err := xpio.NewSocket(xpio.TCP, log)
	if err != nil {
		return nil, fmt.Errorf("xpio serve: socket: %w", err)
	}
	if err := listener.Setsockopt("SO_REUSEADDR", 1); err != nil {
		listener.Close()
		return nil, fmt.Errorf("xpio serve: setsockopt: %w", err)
	}
	if err := listener.Bind(addr); err != nil {
		listener.Close()
		return nil, fmt.Errorf("xpio serve: bind: %w", err)
	}
	if err := listener.Listen(64); err != nil {
		listener.Close()
		return nil, fmt.Errorf("xpio serve: listen: %w", err)
	}
	return listener, nil
}

// runEchoServer drives a single shared TQueue for the listener and
// every connection it accepts: one reactor, many independent tasks,
// which is the central engineering point of the whole package — a
// single poll(2) call multiplexing an arbitrary number of live
// readers and writers rather than one waiter per call. acceptTask and
// connTask are the tasks enqueued; neither is a Socket, demonstrating
// that WhenRead/WhenWrite/WhenWait resume whatever task the host
// runtime supplies, not just the socket or process itself.
func runEchoServer(ctx context.Context, listener *xpio.Socket, acceptRate float64, log *logrus.Entry) error {
	limiter := rate.NewLimiter(rate.Limit(acceptRate), int(acceptRate))
	q := xpio.NewTQueue(log)
	addr, _ := listener.Getsockname()
	log.WithField("addr", addr.String()).Info("listening")

	accept := &acceptTask{listener: listener, q: q, limiter: limiter, log: log}
	accept.rearm()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// A bounded timeout, rather than xpio.Infinite, is what lets
		// this single-threaded loop notice ctx cancellation promptly
		// instead of only between wakeups.
		ready, err := q.Wait(250 * time.Millisecond)
		if err != nil {
			return fmt.Errorf("xpio serve: wait: %w", err)
		}
		for _, t := range ready {
			switch task := t.(type) {
			case *acceptTask:
				task.resume()
			case *connTask:
				task.resume()
			}
		}
	}
}

// acceptTask is the task enqueued against the listening socket's
// readability. Resuming it accepts every pending connection the rate
// limiter currently allows and starts a connTask for each.
type acceptTask struct {
	ts       xpio.TaskState
	listener *xpio.Socket
	q        *xpio.TQueue
	limiter  *rate.Limiter
	log      *logrus.Entry
}

func (a *acceptTask) TaskState() *xpio.TaskState { return &a.ts }

func (a *acceptTask) rearm() { a.listener.WhenRead(a, a.q) }

func (a *acceptTask) resume() {
	for a.limiter.Allow() {
		conn, err := a.listener.TryAccept()
		if err == xpio.ErrRetry {
			break
		}
		if err != nil {
			a.log.WithError(err).Error("accept")
			break
		}
		c := &connTask{sock: conn, q: a.q, log: a.log}
		c.rearmRead()
	}
	a.rearm()
}

// connTask is a tiny per-connection echo state machine: read up to
// 4096 bytes, write everything read back out, then read again. It is
// the task enqueued against the connection's fd for both the read and
// write halves of that cycle.
type connTask struct {
	ts   xpio.TaskState
	sock *xpio.Socket
	q    *xpio.TQueue
	log  *logrus.Entry

	pending []byte // unwritten bytes from the most recent read
}

func (c *connTask) TaskState() *xpio.TaskState { return &c.ts }

func (c *connTask) rearmRead()  { c.sock.WhenRead(c, c.q) }
func (c *connTask) rearmWrite() { c.sock.WhenWrite(c, c.q) }

// resume dispatches to whichever half of the cycle is outstanding:
// a write in progress takes priority over starting a new read.
func (c *connTask) resume() {
	if len(c.pending) > 0 {
		c.resumeWrite()
		return
	}
	c.resumeRead()
}

func (c *connTask) resumeRead() {
	data, err := c.sock.TryRead(4096)
	switch {
	case err == xpio.ErrRetry:
		c.rearmRead()
	case err != nil:
		c.log.WithError(err).Debug("read")
		c.sock.Close()
	case data == nil:
		c.sock.Close() // end of stream
	default:
		c.pending = data
		c.resumeWrite()
	}
}

func (c *connTask) resumeWrite() {
	n, err := c.sock.TryWrite(c.pending)
	switch {
	case err == xpio.ErrRetry:
		c.rearmWrite()
	case err != nil:
		c.log.WithError(err).Debug("write")
		c.sock.Close()
	default:
		c.pending = c.pending[n:]
		if len(c.pending) > 0 {
			c.rearmWrite()
		} else {
			c.rearmRead()
		}
	}
}
