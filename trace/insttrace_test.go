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

package trace_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/core/log"
	"github.com/chrisliu/dg-transform/ir"
	"github.com/chrisliu/dg-transform/ir/irtest"
	"github.com/chrisliu/dg-transform/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSidecar persists the canonical assignment of the pristine module,
// the way a profiling run would have.
func writeSidecar(t *testing.T, ctx context.Context, m *ir.Module) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uid.pb")
	require.NoError(t, canon.New(m).Serialize(ctx, path))
	return path
}

func TestInstTraceRequiresUIDFile(t *testing.T) {
	ctx := log.Testing(t)
	err := (&trace.InstTracePass{}).Run(ctx, irtest.CallReturn())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UID file")
}

func TestInstTraceCallSite(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.CallReturn()
	cid := canon.New(m)
	mainEntry := m.Func("main").Entry()
	callInst := mainEntry.Insts[0]
	retInst := mainEntry.Insts[1]
	callID := cid.InstID(callInst)

	require.NoError(t, (&trace.InstTracePass{UIDFile: writeSidecar(t, ctx, m)}).Run(ctx, m))

	// Entry block shape: the slot alloca leads, then its invalidation
	// store, then the block entry callback, and at the site itself
	// [getCallSite, store, tick, call].
	insts := mainEntry.Insts
	require.Equal(t, ir.Alloca, insts[0].Op)
	slot := insts[0].Dst
	require.NotNil(t, slot)
	require.Equal(t, ir.Store, insts[1].Op)
	assert.Equal(t, slot, insts[1].Addr)
	assert.Equal(t, ir.Const(canon.InvalidCallID), insts[1].Val)

	p := indexWhere(insts, func(i *ir.Inst) bool { return i == callInst })
	require.Greater(t, p, 3)
	assert.True(t, isCallTo(insts[p-3], trace.SymGetCallSite))
	assert.Equal(t, ir.Const(callID), insts[p-3].Args[0])
	handle := insts[p-3].Dst
	require.NotNil(t, handle)
	require.Equal(t, ir.Store, insts[p-2].Op)
	assert.Equal(t, slot, insts[p-2].Addr)
	assert.Equal(t, ir.Value(handle), insts[p-2].Val)
	assert.True(t, isCallTo(insts[p-1], trace.SymIncDynamicInstCount))

	// The next executable instruction carries the restore prelude: load the
	// slot, report the return with the retire offset, reset the slot.
	q := indexWhere(insts, func(i *ir.Inst) bool { return i == retInst })
	require.Greater(t, q, p+3)
	assert.True(t, isCallTo(insts[q-1], trace.SymIncDynamicInstCount))
	require.Equal(t, ir.Store, insts[q-2].Op)
	assert.Equal(t, slot, insts[q-2].Addr)
	assert.Equal(t, ir.Const(canon.InvalidCallID), insts[q-2].Val)
	require.True(t, isCallTo(insts[q-3], trace.SymRecordReturnFromCall))
	assert.Equal(t, ir.Const(1), insts[q-3].Args[1], "the return resumes at retire offset 1")
	require.Equal(t, ir.Load, insts[q-4].Op)
	assert.Equal(t, slot, insts[q-4].Addr)
	assert.Equal(t, insts[q-4].Dst, insts[q-3].Args[0])
}

func TestInstTraceMemoryCallbacks(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.StraightLine()
	cid := canon.New(m)
	before := execInsts(m)

	require.NoError(t, (&trace.InstTracePass{UIDFile: writeSidecar(t, ctx, m)}).Run(ctx, m))

	for bb, execs := range before {
		for _, i := range execs {
			switch i.Op {
			case ir.Load, ir.Store:
				sym := trace.SymRecordLoadInst
				if i.Op == ir.Store {
					sym = trace.SymRecordStoreInst
				}
				p := indexWhere(bb.Insts, func(o *ir.Inst) bool { return o == i })
				// [record, tick, inst]
				require.GreaterOrEqual(t, p, 2)
				assert.True(t, isCallTo(bb.Insts[p-1], trace.SymIncDynamicInstCount))
				rec := bb.Insts[p-2]
				require.True(t, isCallTo(rec, sym), "%v at %d", i.Op, p)
				assert.Equal(t, ir.Const(cid.InstID(i)), rec.Args[0])
				assert.Equal(t, i.Addr, rec.Args[1])
			}
		}
	}
}

func TestInstTraceSkipsIntrinsics(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.UninstrumentedCalls()
	require.NoError(t, (&trace.InstTracePass{UIDFile: writeSidecar(t, ctx, m)}).Run(ctx, m))

	entry := m.Func("main").Entry()
	sites := 0
	for _, i := range entry.Insts {
		if isCallTo(i, trace.SymGetCallSite) {
			sites++
		}
	}
	// The external call is a site; the intrinsic call is not.
	assert.Equal(t, 1, sites)
}

func TestInstTraceInvokePreludes(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.InvokeThrow()
	require.NoError(t, (&trace.InstTracePass{UIDFile: writeSidecar(t, ctx, m)}).Run(ctx, m))

	main := m.Func("main")
	for _, name := range []string{"cont", "lpad"} {
		var bb *ir.Block
		for _, b := range main.Blocks {
			if b.Name == name {
				bb = b
			}
		}
		require.NotNil(t, bb)
		count := 0
		for _, i := range bb.Insts {
			if isCallTo(i, trace.SymRecordReturnFromCall) {
				count++
			}
		}
		assert.Equal(t, 1, count, "one restore prelude in %s", name)
	}
}

func TestInstTraceInvokeSharedSuccessor(t *testing.T) {
	// Two invokes unwinding to the same landing pad: the prelude is placed
	// at most once.
	ctx := log.Testing(t)
	m := &ir.Module{}

	foo := m.AddFunction("foo")
	fooEntry := foo.AddBlock("entry")
	fooEntry.Add(&ir.Inst{Op: ir.Ret, Val: ir.Const(0)})

	main := m.AddFunction("main")
	entry := main.AddBlock("entry")
	mid := main.AddBlock("mid")
	cont := main.AddBlock("cont")
	lpad := main.AddBlock("lpad")

	entry.Add(&ir.Inst{Op: ir.Invoke, Callee: foo, NormalDest: mid, UnwindDest: lpad})
	mid.Add(&ir.Inst{Op: ir.Invoke, Callee: foo, NormalDest: cont, UnwindDest: lpad})
	cont.Add(&ir.Inst{Op: ir.Ret, Val: ir.Const(0)})
	caught := &ir.Local{Name: "caught"}
	lpad.Add(&ir.Inst{Op: ir.LandingPad, Dst: caught})
	lpad.Add(&ir.Inst{Op: ir.Ret, Val: caught})

	require.NoError(t, (&trace.InstTracePass{UIDFile: writeSidecar(t, ctx, m)}).Run(ctx, m))

	count := 0
	for _, i := range lpad.Insts {
		if isCallTo(i, trace.SymRecordReturnFromCall) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestInstTraceUnsupported(t *testing.T) {
	ctx := log.Testing(t)
	for _, op := range []ir.Opcode{ir.CallBr, ir.CatchSwitch, ir.CatchRet, ir.CatchPad, ir.CleanupPad, ir.CleanupRet} {
		m := &ir.Module{}
		f := m.AddFunction("f")
		bb := f.AddBlock("entry")
		bb.Add(&ir.Inst{Op: op})
		bb.Add(&ir.Inst{Op: ir.Ret})

		err := (&trace.InstTracePass{UIDFile: writeSidecar(t, ctx, m)}).Run(ctx, m)
		require.Error(t, err, "%v", op)
		assert.Contains(t, err.Error(), "unsupported instruction")
	}
}

func TestPromoteForwardsSameBlockLoads(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.CallReturn()
	require.NoError(t, trace.Run(ctx, m, trace.InstTracePipeline(writeSidecar(t, ctx, m))...))

	// The restore prelude's slot load follows its store in the same block,
	// so promotion turns it into a copy.
	entry := m.Func("main").Entry()
	loads, copies := 0, 0
	for _, i := range entry.Insts {
		switch i.Op {
		case ir.Load:
			loads++
		case ir.Copy:
			copies++
		}
	}
	assert.Zero(t, loads)
	assert.Equal(t, 1, copies)
}

func TestPromoteKeepsCrossBlockSlots(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.InvokeThrow()
	require.NoError(t, trace.Run(ctx, m, trace.InstTracePipeline(writeSidecar(t, ctx, m))...))

	// The invoke's restore preludes live in the successor blocks; their
	// slot loads cannot be forwarded.
	main := m.Func("main")
	for _, name := range []string{"cont", "lpad"} {
		for _, bb := range main.Blocks {
			if bb.Name != name {
				continue
			}
			loads := 0
			for _, i := range bb.Insts {
				if i.Op == ir.Load {
					loads++
				}
			}
			assert.Equal(t, 1, loads, name)
		}
	}
}

func TestPromoteLeavesEscapingAllocas(t *testing.T) {
	ctx := log.Testing(t)
	m := &ir.Module{}
	sink := m.AddExternal("sink")
	f := m.AddFunction("f")
	bb := f.AddBlock("entry")
	addr := &ir.Local{Name: "a"}
	v := &ir.Local{Name: "v"}
	bb.Add(&ir.Inst{Op: ir.Alloca, Dst: addr})
	bb.Add(&ir.Inst{Op: ir.Store, Addr: addr, Val: ir.Const(4)})
	bb.Add(&ir.Inst{Op: ir.Call, Callee: sink, Args: []ir.Value{addr}})
	load := bb.Add(&ir.Inst{Op: ir.Load, Dst: v, Addr: addr})
	bb.Add(&ir.Inst{Op: ir.Ret, Val: v})

	require.NoError(t, (&trace.PromotePass{}).Run(ctx, m))
	assert.Equal(t, ir.Load, load.Op, "an escaping slot keeps its loads")
}
