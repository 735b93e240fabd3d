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

package trace

import (
	"context"

	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/ir"
	"github.com/pkg/errors"
)

// InstTracePass instruments a module for instruction tracing. It reads the
// canonical identifier sidecar written by a previous SimPointPass run so
// both passes agree on identifiers.
//
// For each function it materializes a call-site handle slot, then rewrites
// in two phases: first the op-specific callbacks (block entries, memory,
// call-site restore preludes), then the handle fetches and the per
// instruction tick. The two-phase split keeps the cached executable lists
// valid while instructions are inserted.
type InstTracePass struct {
	UIDFile string
}

func (p *InstTracePass) Name() string { return "insttrace" }

// execView caches the executable instruction list per block.
type execView map[*ir.Block][]*ir.Inst

func (v execView) of(bb *ir.Block) []*ir.Inst {
	if x, ok := v[bb]; ok {
		return x
	}
	x := ir.ExecutableInsts(bb)
	v[bb] = x
	return x
}

// instIdx returns the retire offset of i inside its block's executable
// list.
func instIdx(i *ir.Inst, execs []*ir.Inst) uint64 {
	for idx, o := range execs {
		if o == i {
			return uint64(idx)
		}
	}
	panic("instruction not in its executable view")
}

// funcMeta is the per-function rewriting state.
type funcMeta struct {
	// csHandle is the materialized call-site handle slot (an alloca result).
	// It exists so the successor of a call can name the call that returned
	// to it.
	csHandle *ir.Local
	// restored marks instructions that already carry a restore prelude, so
	// a block targeted by multiple invokes receives it at most once.
	restored map[*ir.Inst]bool
}

// isInstrumentedFunction reports whether a call to f is treated as a call
// site. Intrinsics are ignored; indirect calls (nil callee) are
// conservatively instrumented since the callee is potentially traced.
func isInstrumentedFunction(f *ir.Function) bool {
	return f == nil || !f.IsIntrinsic()
}

// Run rewrites the module in place.
func (p *InstTracePass) Run(ctx context.Context, m *ir.Module) error {
	uidFile := p.UIDFile
	if uidFile == "" {
		uidFile = *UIDFile
	}
	if uidFile == "" {
		return errors.New("must provide the UID file")
	}

	ii := NewInterface(m)
	cid, err := canon.Load(ctx, m, uidFile)
	if err != nil {
		return err
	}

	xbb := execView{}
	for _, f := range m.Funcs {
		meta := &funcMeta{restored: map[*ir.Inst]bool{}}

		for _, bb := range f.Blocks {
			if err := p.instrumentBlock(bb, xbb, meta, ii, cid); err != nil {
				return err
			}
		}

		for _, bb := range f.Blocks {
			for _, i := range xbb.of(bb) {
				switch i.Op {
				case ir.Call:
					if !isInstrumentedFunction(i.Callee) {
						break
					}
					p.instrumentGetCSHandle(i, meta, ii, cid)
				case ir.Invoke:
					p.instrumentGetCSHandle(i, meta, ii, cid)
				}
				bb.InsertBefore(i, callTo(ii.IncDynamicInstCount, nil))
			}
		}
	}

	return nil
}

func (p *InstTracePass) instrumentBlock(bb *ir.Block, xbb execView, meta *funcMeta, ii *Interface, cid *canon.ID) error {
	for idx, i := range xbb.of(bb) {
		if idx == 0 {
			bb.InsertBefore(i, callTo(ii.RecordBasicBlock, nil,
				ir.Const(cid.BBID(bb)), boolConst(bb.IsEntry())))
		}
		if err := p.instrumentInst(i, xbb, meta, ii, cid); err != nil {
			return err
		}
	}
	return nil
}

func (p *InstTracePass) instrumentInst(i *ir.Inst, xbb execView, meta *funcMeta, ii *Interface, cid *canon.ID) error {
	bb := i.Block()
	instID := ir.Const(cid.InstID(i))

	switch i.Op {
	case ir.Load:
		bb.InsertBefore(i, callTo(ii.RecordLoadInst, nil, instID, i.Addr))

	case ir.Store:
		bb.InsertBefore(i, callTo(ii.RecordStoreInst, nil, instID, i.Addr))

	case ir.Call:
		if !isInstrumentedFunction(i.Callee) {
			break
		}
		if meta.csHandle == nil {
			p.initCSHandle(bb.Func(), meta, ii)
		}
		// The next executable instruction in the same block carries the
		// restore prelude.
		execs := xbb.of(bb)
		next := execs[instIdx(i, execs)+1]
		p.instrumentRestoreCSHandle(next, execs, meta, ii)

	case ir.Invoke:
		if meta.csHandle == nil {
			p.initCSHandle(bb.Func(), meta, ii)
		}
		for _, dest := range []*ir.Block{i.NormalDest, i.UnwindDest} {
			execs := xbb.of(dest)
			p.instrumentRestoreCSHandle(execs[0], execs, meta, ii)
		}

	case ir.CallBr, ir.CatchSwitch, ir.CatchRet, ir.CatchPad, ir.CleanupPad, ir.CleanupRet:
		return errors.Errorf("unsupported instruction: %v", i.Op)
	}
	return nil
}

// initCSHandle materializes the function's call-site handle slot: an alloca
// at the entry block's first position, initialized to the invalid handle
// immediately after the allocas.
func (p *InstTracePass) initCSHandle(f *ir.Function, meta *funcMeta, ii *Interface) {
	entry := f.Entry()
	meta.csHandle = &ir.Local{Name: "cs.handle"}
	entry.InsertBefore(entry.Insts[0], &ir.Inst{Op: ir.Alloca, Dst: meta.csHandle})

	at := firstNonPhiDbgAlloca(entry)
	entry.InsertBefore(at, &ir.Inst{
		Op:   ir.Store,
		Addr: meta.csHandle,
		Val:  ir.Const(canon.InvalidCallID),
	})
}

// instrumentGetCSHandle inserts the handle fetch at a call site: the
// runtime issues a fresh handle, which is written to the slot before the
// call executes.
func (p *InstTracePass) instrumentGetCSHandle(i *ir.Inst, meta *funcMeta, ii *Interface, cid *canon.ID) {
	if meta.csHandle == nil {
		panic("call-site slot missing; restore preludes are placed in the first phase")
	}
	h := &ir.Local{Name: "cs.new"}
	i.Block().InsertBefore(i,
		callTo(ii.GetCallSite, h, ir.Const(cid.InstID(i))),
		&ir.Inst{Op: ir.Store, Addr: meta.csHandle, Val: h},
	)
}

// instrumentRestoreCSHandle inserts the restore prelude before i: report
// the slot's handle and i's retire offset to the runtime, then reset the
// slot. The prelude runs on every path that reaches i, whether or not a
// call fired; the runtime ignores invalid handles.
func (p *InstTracePass) instrumentRestoreCSHandle(i *ir.Inst, execs []*ir.Inst, meta *funcMeta, ii *Interface) {
	if meta.restored[i] {
		return
	}
	meta.restored[i] = true

	h := &ir.Local{Name: "cs.cur"}
	i.Block().InsertBefore(i,
		&ir.Inst{Op: ir.Load, Dst: h, Addr: meta.csHandle},
		callTo(ii.RecordReturnFromCall, nil, h, ir.Const(instIdx(i, execs))),
		&ir.Inst{Op: ir.Store, Addr: meta.csHandle, Val: ir.Const(canon.InvalidCallID)},
	)
}

// firstNonPhiDbgAlloca returns the insertion point after the block's
// leading phis, markers and allocas.
func firstNonPhiDbgAlloca(bb *ir.Block) *ir.Inst {
	for _, i := range bb.Insts {
		switch i.Op {
		case ir.Phi, ir.DebugMarker, ir.LifetimeStart, ir.LifetimeEnd, ir.Alloca:
			continue
		}
		return i
	}
	panic("block " + bb.OperandName() + " has no insertion point")
}
