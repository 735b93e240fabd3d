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

package tracer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/chrisliu/dg-transform/core/data/pack"
	"github.com/pkg/errors"
)

// instInterval is a range of dynamic instruction indices inside which trace
// events are emitted. The end is inclusive; an interval without an end runs
// to the end of the program.
type instInterval struct {
	start  uint64
	end    uint64
	hasEnd bool
}

func closedInterval(start, end uint64) instInterval {
	return instInterval{start: start, end: end, hasEnd: true}
}

func openInterval(start uint64) instInterval {
	return instInterval{start: start}
}

// contains reports whether the dynamic instruction id falls in the
// interval.
func (i instInterval) contains(id uint64) bool {
	return id >= i.start && (!i.hasEnd || id <= i.end)
}

func (i instInterval) String() string {
	if i.hasEnd {
		return fmt.Sprintf("InstInterval [%d, %d]", i.start, i.end)
	}
	return fmt.Sprintf("InstInterval [%d, inf]", i.start)
}

// intervalIter walks the assigned intervals in order, owning one output
// stream at a time.
type intervalIter struct {
	intervals []instInterval
	path      string
	create    func(path string) (io.WriteCloser, error)

	idx int
	out io.WriteCloser
	w   *pack.Writer

	serialized uint64
	timeFF     time.Time
	timeStart  time.Time
}

func newIntervalIter(intervals []instInterval, path string, create func(string) (io.WriteCloser, error)) (*intervalIter, error) {
	it := &intervalIter{intervals: intervals, path: path, create: create}
	if !it.done() {
		if err := it.open(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

func (it *intervalIter) done() bool { return it.idx >= len(it.intervals) }

func (it *intervalIter) cur() instInterval { return it.intervals[it.idx] }

// advance moves to the next interval, rotating the output stream. It
// returns true once the iterator has reached the end.
func (it *intervalIter) advance() (bool, error) {
	if it.done() {
		panic("advancing a finished interval iterator")
	}
	if it.out != nil {
		it.out.Close()
		it.out, it.w = nil, nil
	}
	it.idx++
	it.serialized = 0
	if it.done() {
		return true, nil
	}
	return false, it.open()
}

func (it *intervalIter) open() error {
	out, err := it.create(it.curPath())
	if err != nil {
		return errors.Wrapf(err, "Creating trace output %v", it.curPath())
	}
	w, err := pack.NewWriter(out)
	if err != nil {
		out.Close()
		return errors.Wrapf(err, "Writing trace output %v", it.curPath())
	}
	it.out, it.w = out, w
	return nil
}

// curPath derives the current interval's output path by inserting the
// interval index before the extension.
func (it *intervalIter) curPath() string {
	ext := filepath.Ext(it.path)
	stem := strings.TrimSuffix(filepath.Base(it.path), ext)
	return filepath.Join(filepath.Dir(it.path), fmt.Sprintf("%s.%d%s", stem, it.idx, ext))
}
