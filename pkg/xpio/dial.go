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
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// DialRetry connects a fresh TCP Socket to addr, retrying with
// exponential backoff until ctx is done. It is built entirely out of
// TryConnect/WhenWrite/TQueue.Wait — the same primitives a caller
// would use by hand — the way sandbox.go retries waiting for the
// sandbox's control socket with backoff.Retry.
func DialRetry(ctx context.Context, q *TQueue, addr Addr) (*Socket, error) {
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	var sock *Socket
	op := func() error {
		s, err := NewSocket(TCP, q.logger)
		if err != nil {
			return backoff.Permanent(err)
		}

		err = s.TryConnect(addr)
		if err == nil {
			sock = s
			return nil
		}
		if err != ErrRetry {
			s.Close()
			return err
		}

		s.WhenWrite(s, q)
		if _, waitErr := q.Wait(2 * time.Second); waitErr != nil {
			s.Close()
			return waitErr
		}

		if connErr := s.TryConnect(addr); connErr != nil {
			s.Close()
			return connErr
		}
		s.ts.cancel()
		sock = s
		return nil
	}

	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return sock, nil
}
