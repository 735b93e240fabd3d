// Copyright (C) 2024 The dg-transform Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"io"
	"os"
)

// Handler is the interface to an object that consumes log messages.
type Handler interface {
	Handle(*Message)
}

// handler wraps a function into a Handler.
type handler func(*Message)

func (h handler) Handle(m *Message) { h(m) }

// NewHandler returns a Handler that invokes f for every message.
func NewHandler(f func(*Message)) Handler { return handler(f) }

// Writer returns a Handler that writes one line per message to w.
// Messages with StopProcess set exit the process with a failing code after
// being written.
func Writer(w io.Writer) Handler {
	return handler(func(m *Message) {
		fmt.Fprintln(w, m)
		if m.StopProcess {
			os.Exit(1)
		}
	})
}

// stderrHandler is the fallback used when no handler is on the context.
var stderrHandler = Writer(os.Stderr)
