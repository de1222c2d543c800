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
	"io"

	"github.com/sirupsen/logrus"
)

// discardLogger is shared by every Socket/Process/TQueue created
// without an explicit logger, so a library user who doesn't care about
// logging doesn't pay for a *logrus.Logger allocation per call.
var discardLogger = func() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}()

// nilSafeLogger returns log if non-nil, otherwise the shared discard
// logger. Every constructor in this package that takes a *logrus.Entry
// runs its argument through this before storing it, so internal code
// never has to nil-check a logger field before using it.
func nilSafeLogger(log *logrus.Entry) *logrus.Entry {
	if log == nil {
		return discardLogger
	}
	return log
}
