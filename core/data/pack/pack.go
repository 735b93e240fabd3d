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

// Package pack provides length-prefixed proto record streams.
//
// A pack stream is a magic header followed by varint length-prefixed
// marshaled messages. Each stream carries a homogeneous record type; the
// reader is handed a fresh message of the expected type per record.
package pack

import (
	"fmt"

	"github.com/chrisliu/dg-transform/core/fault"
)

const (
	// ErrIncorrectMagic is the error returned when the stream header is not
	// matched.
	ErrIncorrectMagic = fault.Const("Incorrect pack magic header")

	maxRecordSize = 1 << 30
)

var (
	// MinMajorVersion is the minimum supported major version of pack streams.
	MinMajorVersion = 1

	// MaxMajorVersion is the maximum supported major version of pack streams.
	MaxMajorVersion = 1

	// header is the header written by this package including the version.
	header = []byte("DGPack\r\n1.0\n\x00")
)

// Version identifies the format revision of a pack stream.
type Version struct {
	Major int // Major version is incremented for format breaking changes.
	Minor int // Minor version is incremented for backwards compatible changes.
}

// ErrUnsupportedVersion is the error returned when the header version is one
// this package cannot handle.
type ErrUnsupportedVersion struct{ Version Version }

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("Unsupported pack stream version: %v.%v", e.Version.Major, e.Version.Minor)
}
