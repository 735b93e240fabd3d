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

// Severity is the importance of a log message.
type Severity int

const (
	// Debug is the severity for messages only useful when diagnosing problems.
	Debug Severity = iota
	// Info is the severity for regular progress messages.
	Info
	// Warning is the severity for messages about possible problems.
	Warning
	// Error is the severity for messages about things that have gone wrong.
	Error
	// Fatal is the severity for messages about things that prevent the
	// process from continuing.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "Debug"
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case Fatal:
		return "Fatal"
	default:
		return "?"
	}
}

// Short returns the single character name of the severity.
func (s Severity) Short() string {
	switch s {
	case Debug:
		return "D"
	case Info:
		return "I"
	case Warning:
		return "W"
	case Error:
		return "E"
	case Fatal:
		return "F"
	default:
		return "?"
	}
}
