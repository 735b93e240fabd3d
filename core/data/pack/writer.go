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

package pack

import (
	"encoding/binary"
	"io"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// Writer is the type for a pack stream writer.
// They should only be constructed by NewWriter.
type Writer struct {
	to      io.Writer
	sizebuf [binary.MaxVarintLen64]byte
}

// NewWriter constructs and returns a new Writer that writes to the supplied
// output stream.
// This method will write the pack magic and version header to the underlying
// stream.
func NewWriter(to io.Writer) (*Writer, error) {
	w := &Writer{to: to}
	if _, err := w.to.Write(header); err != nil {
		return nil, errors.Wrap(err, "Writing pack header")
	}
	return w, nil
}

// Marshal appends one record to the stream.
func (w *Writer) Marshal(msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "Marshaling pack record")
	}
	n := binary.PutUvarint(w.sizebuf[:], uint64(len(data)))
	if _, err := w.to.Write(w.sizebuf[:n]); err != nil {
		return errors.Wrap(err, "Writing pack record size")
	}
	if _, err := w.to.Write(data); err != nil {
		return errors.Wrap(err, "Writing pack record")
	}
	return nil
}

// Flush forwards to the underlying stream's Flush if it has one.
func (w *Writer) Flush() error {
	if f, ok := w.to.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
