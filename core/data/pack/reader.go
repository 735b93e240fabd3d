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
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
)

// Reader is the type for a pack stream reader.
// They should only be constructed by NewReader.
type Reader struct {
	from *bufio.Reader
	buf  []byte
}

// NewReader constructs a new Reader that consumes the supplied stream.
// This method reads and verifies the pack header, adjusting the stream's
// position.
func NewReader(from io.Reader) (*Reader, error) {
	r := &Reader{from: bufio.NewReader(from)}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// Unmarshal reads the next record of the stream into msg.
// It returns io.EOF when the stream is exhausted at a record boundary.
func (r *Reader) Unmarshal(msg proto.Message) error {
	size, err := binary.ReadUvarint(r.from)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.Wrap(err, "Reading pack record size")
	}
	if size > maxRecordSize {
		return fmt.Errorf("Pack record size %v exceeds limit", size)
	}
	if uint64(cap(r.buf)) < size {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.from, r.buf); err != nil {
		return errors.Wrap(err, "Reading pack record")
	}
	if err := proto.Unmarshal(r.buf, msg); err != nil {
		return errors.Wrap(err, "Unmarshaling pack record")
	}
	return nil
}

// ForEach reads every remaining record of the stream, invoking cb with a
// fresh message from create per record.
func (r *Reader) ForEach(ctx context.Context, create func() proto.Message, cb func(proto.Message) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := create()
		switch err := r.Unmarshal(msg); err {
		case nil:
			if err := cb(msg); err != nil {
				return err
			}
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

func (r *Reader) readHeader() error {
	got := make([]byte, len(header))
	if _, err := io.ReadFull(r.from, got); err != nil {
		return ErrIncorrectMagic
	}
	if !bytes.Equal(got[:8], header[:8]) {
		return ErrIncorrectMagic
	}
	if got[9] != '.' || got[11] != '\n' || got[12] != 0 {
		return ErrIncorrectMagic
	}
	v := Version{Major: int(got[8] - '0'), Minor: int(got[10] - '0')}
	if v.Major < MinMajorVersion || v.Major > MaxMajorVersion {
		return ErrUnsupportedVersion{Version: v}
	}
	return nil
}
