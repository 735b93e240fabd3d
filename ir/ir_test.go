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

package ir_test

import (
	"testing"

	"github.com/chrisliu/dg-transform/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutableInsts(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f")
	pred := f.AddBlock("entry")
	bb := f.AddBlock("join")
	pred.Add(&ir.Inst{Op: ir.Br, Dest: bb})

	x := &ir.Local{Name: "x"}
	phi := bb.Add(&ir.Inst{Op: ir.Phi, Dst: x, Incoming: []ir.PhiIn{{From: pred, V: ir.Const(1)}}})
	dbg := bb.Add(&ir.Inst{Op: ir.DebugMarker})
	alloca := bb.Add(&ir.Inst{Op: ir.Alloca, Dst: &ir.Local{Name: "a"}})
	start := bb.Add(&ir.Inst{Op: ir.LifetimeStart})
	load := bb.Add(&ir.Inst{Op: ir.Load, Dst: &ir.Local{Name: "v"}, Addr: x})
	end := bb.Add(&ir.Inst{Op: ir.LifetimeEnd})
	ret := bb.Add(&ir.Inst{Op: ir.Ret, Val: ir.Const(0)})

	execs := ir.ExecutableInsts(bb)
	assert.Equal(t, []*ir.Inst{alloca, load, ret}, execs)

	for _, i := range []*ir.Inst{phi, dbg, start, end} {
		assert.False(t, ir.IsExecutable(i), "%v", i.Op)
	}
	for _, i := range execs {
		assert.True(t, ir.IsExecutable(i), "%v", i.Op)
	}
}

func TestExecutableInstsTerminatorOnly(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f")
	bb := f.AddBlock("entry")
	ret := bb.Add(&ir.Inst{Op: ir.Ret})

	assert.Equal(t, []*ir.Inst{ret}, ir.ExecutableInsts(bb))
}

func TestExecutableInstsLandingPad(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f")
	bb := f.AddBlock("lpad")
	bb.Add(&ir.Inst{Op: ir.LandingPad, Dst: &ir.Local{Name: "e"}})
	ret := bb.Add(&ir.Inst{Op: ir.Ret, Val: ir.Const(0)})

	assert.Equal(t, []*ir.Inst{ret}, ir.ExecutableInsts(bb))
}

func TestOperandName(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f")
	named := f.AddBlock("entry")
	anon1 := f.AddBlock("")
	anon2 := f.AddBlock("")

	assert.Equal(t, "%entry", named.OperandName())
	assert.Equal(t, "%1", anon1.OperandName())
	assert.Equal(t, "%2", anon2.OperandName())
}

func TestIsEntry(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f")
	entry := f.AddBlock("entry")
	other := f.AddBlock("other")

	assert.True(t, entry.IsEntry())
	assert.False(t, other.IsEntry())
	assert.Equal(t, entry, f.Entry())
}

func TestInsertBefore(t *testing.T) {
	m := &ir.Module{}
	f := m.AddFunction("f")
	bb := f.AddBlock("entry")
	first := bb.Add(&ir.Inst{Op: ir.Alloca, Dst: &ir.Local{Name: "a"}})
	ret := bb.Add(&ir.Inst{Op: ir.Ret})

	a := &ir.Inst{Op: ir.DebugMarker}
	b := &ir.Inst{Op: ir.DebugMarker}
	bb.InsertBefore(ret, a, b)

	require.Equal(t, []*ir.Inst{first, a, b, ret}, bb.Insts)
	assert.Equal(t, bb, a.Block())

	// A second insertion before the same instruction lands after the first.
	c := &ir.Inst{Op: ir.DebugMarker}
	bb.InsertBefore(ret, c)
	assert.Equal(t, []*ir.Inst{first, a, b, c, ret}, bb.Insts)
}

func TestIsIntrinsic(t *testing.T) {
	m := &ir.Module{}
	assert.True(t, m.AddExternal("llvm.donothing").IsIntrinsic())
	assert.False(t, m.AddExternal("ext").IsIntrinsic())
}

func TestAddExternalReuses(t *testing.T) {
	m := &ir.Module{}
	a := m.AddExternal("ext")
	b := m.AddExternal("ext")
	assert.Equal(t, a, b)
	assert.Len(t, m.Funcs, 1)
}
