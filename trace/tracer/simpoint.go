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
	"context"
	"io"

	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/core/data/pack"
	"github.com/chrisliu/dg-transform/core/log"
	"github.com/chrisliu/dg-transform/trace/trace_pb"
	"github.com/pkg/errors"
)

// SimPoint accumulates per-block execution counts in fixed-size dynamic
// instruction windows, emitting one frequency record per window.
type SimPoint struct {
	ctx context.Context

	intervalSize uint64
	out          io.WriteCloser
	w            *pack.Writer

	cur  uint64
	freq map[uint64]uint64
}

var _ Context = (*SimPoint)(nil)

// NewSimPoint builds a SimPoint context from the environment:
// DG_BB_INTERVAL_SIZE instructions per window, records written to
// DG_BB_INTERVAL_PATH.
func NewSimPoint(ctx context.Context, cfg Config) (*SimPoint, error) {
	cfg = cfg.orDefaults()
	size, err := envU64(cfg.Getenv, EnvBBIntervalSize)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.Errorf("%v must be positive", EnvBBIntervalSize)
	}
	path, err := envPath(cfg.Getenv, EnvBBIntervalPath)
	if err != nil {
		return nil, err
	}
	out, err := cfg.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Creating BB interval output %v", path)
	}
	w, err := pack.NewWriter(out)
	if err != nil {
		out.Close()
		return nil, errors.Wrapf(err, "Writing BB interval output %v", path)
	}
	return &SimPoint{
		ctx:          ctx,
		intervalSize: size,
		out:          out,
		w:            w,
		freq:         map[uint64]uint64{},
	}, nil
}

// IncDynamicInstCount ticks the dynamic instruction counter, emitting a
// window record whenever a window fills.
func (c *SimPoint) IncDynamicInstCount() {
	c.cur++
	if c.cur%c.intervalSize != 0 {
		return
	}
	rec := &trace_pb.BBInterval{
		InstStart: c.cur - c.intervalSize,
		InstEnd:   c.cur - 1,
		Freq:      c.freq,
	}
	if err := c.w.Marshal(rec); err != nil {
		log.F(c.ctx, true, "Writing BB interval record: %v", err)
	}
	if err := c.w.Flush(); err != nil {
		log.F(c.ctx, true, "Flushing BB interval output: %v", err)
	}
	c.freq = map[uint64]uint64{}
}

// RecordBasicBlock counts one execution of the block in the open window.
func (c *SimPoint) RecordBasicBlock(id canon.BBID, isFuncEntry bool) {
	c.freq[uint64(id)]++
}

// GetCallSite is not meaningful in SimPoint mode.
func (c *SimPoint) GetCallSite(id canon.InstID) canon.CallID { return canon.InvalidCallID }

// RecordReturnFromCall is not meaningful in SimPoint mode.
func (c *SimPoint) RecordReturnFromCall(handle canon.CallID, numRetiredInBB uint64) {}

// RecordLoadInst is not meaningful in SimPoint mode.
func (c *SimPoint) RecordLoadInst(id canon.InstID, addr uint64) {}

// RecordStoreInst is not meaningful in SimPoint mode.
func (c *SimPoint) RecordStoreInst(id canon.InstID, addr uint64) {}
