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

// Package log provides context-first logging for the instrumentation passes
// and the tracing runtime.
//
// Handlers are carried on the context. The zero state (no handler installed)
// writes to stderr, so the runtime callbacks can log before any setup has
// happened.
package log

import (
	"context"
	"fmt"
	"time"
)

// Logger writes messages for a single context.
type Logger struct {
	handler  Handler
	severity Severity
	tag      string
}

// From returns a new Logger from the context ctx.
func From(ctx context.Context) *Logger {
	return &Logger{
		handler:  GetHandler(ctx),
		severity: GetSeverity(ctx),
		tag:      GetTag(ctx),
	}
}

// D logs a debug message to the logging target.
func D(ctx context.Context, fmt string, args ...interface{}) { From(ctx).D(fmt, args...) }

// I logs an info message to the logging target.
func I(ctx context.Context, fmt string, args ...interface{}) { From(ctx).I(fmt, args...) }

// W logs a warning message to the logging target.
func W(ctx context.Context, fmt string, args ...interface{}) { From(ctx).W(fmt, args...) }

// E logs an error message to the logging target.
func E(ctx context.Context, fmt string, args ...interface{}) { From(ctx).E(fmt, args...) }

// F logs a fatal message to the logging target.
// If stopProcess is true then the message indicates the process should stop.
func F(ctx context.Context, stopProcess bool, fmt string, args ...interface{}) {
	From(ctx).F(fmt, stopProcess, args...)
}

// Err logs err at error severity along with a printf-style description.
func Err(ctx context.Context, err error, f string, args ...interface{}) {
	From(ctx).E("%v: %v", fmt.Sprintf(f, args...), err)
}

// D logs a debug message to the logging target.
func (l *Logger) D(fmt string, args ...interface{}) { l.Logf(Debug, false, fmt, args...) }

// I logs an info message to the logging target.
func (l *Logger) I(fmt string, args ...interface{}) { l.Logf(Info, false, fmt, args...) }

// W logs a warning message to the logging target.
func (l *Logger) W(fmt string, args ...interface{}) { l.Logf(Warning, false, fmt, args...) }

// E logs an error message to the logging target.
func (l *Logger) E(fmt string, args ...interface{}) { l.Logf(Error, false, fmt, args...) }

// F logs a fatal message to the logging target.
// If stopProcess is true then the message indicates the process should stop.
func (l *Logger) F(fmt string, stopProcess bool, args ...interface{}) {
	l.Logf(Fatal, stopProcess, fmt, args...)
}

// Logf logs a printf-style message at severity s to the logging target.
func (l *Logger) Logf(s Severity, stopProcess bool, f string, args ...interface{}) {
	if s < l.severity {
		return
	}
	h := l.handler
	if h == nil {
		h = stderrHandler
	}
	h.Handle(&Message{
		Text:        fmt.Sprintf(f, args...),
		Time:        time.Now(),
		Severity:    s,
		StopProcess: stopProcess,
		Tag:         l.tag,
	})
}

// Message is a single log record as handed to a Handler.
type Message struct {
	Text        string
	Time        time.Time
	Severity    Severity
	StopProcess bool
	Tag         string
}

func (m *Message) String() string {
	if m.Tag != "" {
		return fmt.Sprintf("%s: [%s] %s", m.Severity, m.Tag, m.Text)
	}
	return fmt.Sprintf("%s: %s", m.Severity, m.Text)
}
