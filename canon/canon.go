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

// Package canon assigns stable dense identifiers to the basic blocks and
// executable instructions of a module, and persists the assignment to a
// sidecar file so a later pass can reproduce it exactly.
package canon

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/chrisliu/dg-transform/core/data/pack"
	"github.com/chrisliu/dg-transform/ir"
	"github.com/chrisliu/dg-transform/trace/trace_pb"
	"github.com/pkg/errors"
)

// InstID identifies an executable instruction. Zero is invalid.
type InstID uint64

// BBID identifies a basic block. Zero is invalid.
type BBID uint64

// CallID is a runtime-issued call-site handle. Zero is invalid.
type CallID uint64

const (
	InvalidInstID InstID = 0
	InvalidBBID   BBID   = 0
	InvalidCallID CallID = 0

	FirstInstID InstID = 1
	FirstBBID   BBID   = 1
	FirstCallID CallID = 1
)

// bbMeta is the per-block record mirrored by the sidecar.
type bbMeta struct {
	bb        *ir.Block
	id        BBID
	instStart InstID
}

// ID is a bijective mapping between IR entities and dense identifiers. It
// owns nothing inside the IR.
type ID struct {
	instToID map[*ir.Inst]InstID
	bbToID   map[*ir.Block]BBID
	idToInst map[InstID]*ir.Inst
	idToBB   map[BBID]*ir.Block
	meta     []bbMeta
}

// New walks the module in (function, block, instruction) order, assigning
// sequential identifiers to every basic block and executable instruction.
func New(m *ir.Module) *ID {
	c := newEmpty()
	curInst := FirstInstID
	curBB := FirstBBID
	for _, f := range m.Funcs {
		for _, bb := range f.Blocks {
			c.meta = append(c.meta, bbMeta{bb: bb, id: curBB, instStart: curInst})
			c.bbToID[bb] = curBB
			curBB++
			for _, i := range ir.ExecutableInsts(bb) {
				c.instToID[i] = curInst
				curInst++
			}
		}
	}
	c.buildReverseMaps()
	return c
}

// Load reproduces an assignment from a sidecar written by Serialize. The
// record order must equal the module's natural walk order; any mismatch
// between a record and the live IR is an error.
func Load(ctx context.Context, m *ir.Module, path string) (*ID, error) {
	byName := map[string]map[string]*ir.Block{}
	for _, f := range m.Funcs {
		bbs := map[string]*ir.Block{}
		for _, bb := range f.Blocks {
			bbs[bb.OperandName()] = bb
		}
		byName[f.Name] = bbs
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Opening sidecar %v", path)
	}
	defer file.Close()

	r, err := pack.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(err, "Reading sidecar %v", path)
	}

	c := newEmpty()
	for {
		rec := &trace_pb.CanonicalBB{}
		if err := r.Unmarshal(rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(err, "Reading sidecar %v", path)
		}
		bbs, ok := byName[rec.FunctionName]
		if !ok {
			return nil, errors.Errorf("sidecar names function %q not present in the module", rec.FunctionName)
		}
		bb, ok := bbs[rec.BasicBlockName]
		if !ok {
			return nil, errors.Errorf("sidecar names block %v of %q not present in the module",
				rec.BasicBlockName, rec.FunctionName)
		}
		c.meta = append(c.meta, bbMeta{bb: bb, id: BBID(rec.Id), instStart: InstID(rec.InstStartId)})
	}

	curInst := FirstInstID
	curBB := FirstBBID
	for _, meta := range c.meta {
		if curBB != meta.id {
			return nil, errors.Errorf("sidecar block id %v does not match walk order id %v", meta.id, curBB)
		}
		if curInst != meta.instStart {
			return nil, errors.Errorf("sidecar instruction start id %v does not match walk order id %v",
				meta.instStart, curInst)
		}
		c.bbToID[meta.bb] = curBB
		curBB++
		for _, i := range ir.ExecutableInsts(meta.bb) {
			c.instToID[i] = curInst
			curInst++
		}
	}

	c.buildReverseMaps()
	return c, nil
}

// InstID returns the identifier of an executable instruction. Asking for an
// unmapped instruction is a programmer error.
func (c *ID) InstID(i *ir.Inst) InstID {
	id, ok := c.instToID[i]
	if !ok {
		panic(fmt.Sprintf("instruction %v has no canonical id", i.Op))
	}
	return id
}

// BBID returns the identifier of a basic block.
func (c *ID) BBID(bb *ir.Block) BBID {
	id, ok := c.bbToID[bb]
	if !ok {
		panic(fmt.Sprintf("block %v has no canonical id", bb.OperandName()))
	}
	return id
}

// Inst is the inverse of InstID.
func (c *ID) Inst(id InstID) *ir.Inst {
	i, ok := c.idToInst[id]
	if !ok {
		panic(fmt.Sprintf("no instruction with canonical id %v", id))
	}
	return i
}

// BB is the inverse of BBID.
func (c *ID) BB(id BBID) *ir.Block {
	bb, ok := c.idToBB[id]
	if !ok {
		panic(fmt.Sprintf("no block with canonical id %v", id))
	}
	return bb
}

// HasInst reports whether the identifier maps to an instruction.
func (c *ID) HasInst(id InstID) bool {
	_, ok := c.idToInst[id]
	return ok
}

// HasBB reports whether the identifier maps to a block.
func (c *ID) HasBB(id BBID) bool {
	_, ok := c.idToBB[id]
	return ok
}

// NumInsts returns the count of mapped instructions.
func (c *ID) NumInsts() uint64 { return uint64(len(c.instToID)) }

// NumBBs returns the count of mapped blocks.
func (c *ID) NumBBs() uint64 { return uint64(len(c.bbToID)) }

// Record is one sidecar record, in walk order.
type Record struct {
	FunctionName string
	BBName       string
	BBID         BBID
	FirstInstID  InstID
}

// Records returns the per-block records in walk order.
func (c *ID) Records() []Record {
	recs := make([]Record, len(c.meta))
	for idx, meta := range c.meta {
		recs[idx] = Record{
			FunctionName: meta.bb.Func().Name,
			BBName:       meta.bb.OperandName(),
			BBID:         meta.id,
			FirstInstID:  meta.instStart,
		}
	}
	return recs
}

// Serialize writes the sidecar to path.
func (c *ID) Serialize(ctx context.Context, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Creating sidecar %v", path)
	}
	defer file.Close()

	w, err := pack.NewWriter(file)
	if err != nil {
		return errors.Wrapf(err, "Writing sidecar %v", path)
	}
	for _, meta := range c.meta {
		rec := &trace_pb.CanonicalBB{
			FunctionName:   meta.bb.Func().Name,
			BasicBlockName: meta.bb.OperandName(),
			Id:             uint64(meta.id),
			InstStartId:    uint64(meta.instStart),
		}
		if err := w.Marshal(rec); err != nil {
			return errors.Wrapf(err, "Writing sidecar %v", path)
		}
	}
	return nil
}

func newEmpty() *ID {
	return &ID{
		instToID: map[*ir.Inst]InstID{},
		bbToID:   map[*ir.Block]BBID{},
		idToInst: map[InstID]*ir.Inst{},
		idToBB:   map[BBID]*ir.Block{},
	}
}

func (c *ID) buildReverseMaps() {
	for i, id := range c.instToID {
		c.idToInst[id] = i
	}
	for bb, id := range c.bbToID {
		c.idToBB[id] = bb
	}
}
