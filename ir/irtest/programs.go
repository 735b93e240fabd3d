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

// Package irtest builds the small programs the instrumentation and runtime
// tests execute.
package irtest

import "github.com/chrisliu/dg-transform/ir"

// StraightLine returns a module whose main runs an entry block of ten
// executable instructions into an exit block of one.
func StraightLine() *ir.Module {
	m := &ir.Module{}
	f := m.AddFunction("main")
	entry := f.AddBlock("entry")
	exit := f.AddBlock("exit")

	addr := &ir.Local{Name: "a"}
	entry.Add(&ir.Inst{Op: ir.Alloca, Dst: addr})
	entry.Add(&ir.Inst{Op: ir.Store, Addr: addr, Val: ir.Const(1)})
	x := &ir.Local{Name: "x"}
	entry.Add(&ir.Inst{Op: ir.Load, Dst: x, Addr: addr})
	prev := ir.Value(x)
	for _, name := range []string{"y1", "y2", "y3", "y4", "y5"} {
		y := &ir.Local{Name: name}
		entry.Add(&ir.Inst{Op: ir.Arith, AOp: ir.Add, Dst: y, LHS: prev, RHS: ir.Const(1)})
		prev = y
	}
	entry.Add(&ir.Inst{Op: ir.Store, Addr: addr, Val: prev})
	entry.Add(&ir.Inst{Op: ir.Br, Dest: exit})

	exit.Add(&ir.Inst{Op: ir.Ret, Val: prev})
	return m
}

// Loop returns loop(n) with an odd/even branch in its body, and a main
// calling loop(128).
func Loop() *ir.Module {
	m := &ir.Module{}

	n := &ir.Local{Name: "n"}
	f := m.AddFunction("loop", n)
	entry := f.AddBlock("entry")
	header := f.AddBlock("header")
	body := f.AddBlock("body")
	odd := f.AddBlock("odd")
	even := f.AddBlock("even")
	latch := f.AddBlock("latch")
	exit := f.AddBlock("exit")

	sumAddr := &ir.Local{Name: "sum.addr"}
	iAddr := &ir.Local{Name: "i.addr"}
	entry.Add(&ir.Inst{Op: ir.Alloca, Dst: sumAddr})
	entry.Add(&ir.Inst{Op: ir.Store, Addr: sumAddr, Val: ir.Const(0)})
	entry.Add(&ir.Inst{Op: ir.Alloca, Dst: iAddr})
	entry.Add(&ir.Inst{Op: ir.Store, Addr: iAddr, Val: ir.Const(0)})
	entry.Add(&ir.Inst{Op: ir.Br, Dest: header})

	i := &ir.Local{Name: "i"}
	cmp := &ir.Local{Name: "cmp"}
	header.Add(&ir.Inst{Op: ir.Load, Dst: i, Addr: iAddr})
	header.Add(&ir.Inst{Op: ir.Arith, AOp: ir.CmpLT, Dst: cmp, LHS: i, RHS: n})
	header.Add(&ir.Inst{Op: ir.CondBr, Cond: cmp, Dest: body, Else: exit})

	iBody := &ir.Local{Name: "i.body"}
	rem := &ir.Local{Name: "rem"}
	body.Add(&ir.Inst{Op: ir.Load, Dst: iBody, Addr: iAddr})
	body.Add(&ir.Inst{Op: ir.Arith, AOp: ir.Mod, Dst: rem, LHS: iBody, RHS: ir.Const(2)})
	body.Add(&ir.Inst{Op: ir.CondBr, Cond: rem, Dest: odd, Else: even})

	sumOdd := &ir.Local{Name: "sum.odd"}
	iOdd := &ir.Local{Name: "i.odd"}
	sumOddNext := &ir.Local{Name: "sum.odd.next"}
	odd.Add(&ir.Inst{Op: ir.Load, Dst: sumOdd, Addr: sumAddr})
	odd.Add(&ir.Inst{Op: ir.Load, Dst: iOdd, Addr: iAddr})
	odd.Add(&ir.Inst{Op: ir.Arith, AOp: ir.Add, Dst: sumOddNext, LHS: sumOdd, RHS: iOdd})
	odd.Add(&ir.Inst{Op: ir.Store, Addr: sumAddr, Val: sumOddNext})
	odd.Add(&ir.Inst{Op: ir.Br, Dest: latch})

	sumEven := &ir.Local{Name: "sum.even"}
	iEven := &ir.Local{Name: "i.even"}
	sumEvenNext := &ir.Local{Name: "sum.even.next"}
	even.Add(&ir.Inst{Op: ir.Load, Dst: sumEven, Addr: sumAddr})
	even.Add(&ir.Inst{Op: ir.Load, Dst: iEven, Addr: iAddr})
	even.Add(&ir.Inst{Op: ir.Arith, AOp: ir.Mul, Dst: sumEvenNext, LHS: sumEven, RHS: iEven})
	even.Add(&ir.Inst{Op: ir.Store, Addr: sumAddr, Val: sumEvenNext})
	even.Add(&ir.Inst{Op: ir.Br, Dest: latch})

	iLatch := &ir.Local{Name: "i.latch"}
	iNext := &ir.Local{Name: "i.next"}
	latch.Add(&ir.Inst{Op: ir.Load, Dst: iLatch, Addr: iAddr})
	latch.Add(&ir.Inst{Op: ir.Arith, AOp: ir.Add, Dst: iNext, LHS: iLatch, RHS: ir.Const(1)})
	latch.Add(&ir.Inst{Op: ir.Store, Addr: iAddr, Val: iNext})
	latch.Add(&ir.Inst{Op: ir.Br, Dest: header})

	result := &ir.Local{Name: "result"}
	exit.Add(&ir.Inst{Op: ir.Load, Dst: result, Addr: sumAddr})
	exit.Add(&ir.Inst{Op: ir.Ret, Val: result})

	main := m.AddFunction("main")
	mainEntry := main.AddBlock("entry")
	val := &ir.Local{Name: "val"}
	mainEntry.Add(&ir.Inst{Op: ir.Call, Dst: val, Callee: f, Args: []ir.Value{ir.Const(128)}})
	mainEntry.Add(&ir.Inst{Op: ir.Ret, Val: ir.Const(0)})
	return m
}

// CallReturn returns main calling foo, which returns immediately.
func CallReturn() *ir.Module {
	m := &ir.Module{}

	main := m.AddFunction("main")
	mainEntry := main.AddBlock("entry")

	foo := m.AddFunction("foo")
	fooEntry := foo.AddBlock("entry")
	fooEntry.Add(&ir.Inst{Op: ir.Ret, Val: ir.Const(42)})

	val := &ir.Local{Name: "val"}
	mainEntry.Add(&ir.Inst{Op: ir.Call, Dst: val, Callee: foo})
	mainEntry.Add(&ir.Inst{Op: ir.Ret, Val: val})
	return m
}

// UninstrumentedCalls returns main calling an external function and an
// intrinsic. Neither callee is traced: the external call is a site whose
// callee never enters, the intrinsic is not a site at all.
func UninstrumentedCalls() *ir.Module {
	m := &ir.Module{}

	main := m.AddFunction("main")
	entry := main.AddBlock("entry")

	ext := m.AddExternal("ext")
	donothing := m.AddExternal("llvm.donothing")

	val := &ir.Local{Name: "val"}
	entry.Add(&ir.Inst{Op: ir.Call, Dst: val, Callee: ext})
	entry.Add(&ir.Inst{Op: ir.Call, Callee: donothing})
	entry.Add(&ir.Inst{Op: ir.Ret, Val: val})
	return m
}

// InvokeThrow returns main invoking foo, which throws. The landing pad in
// main catches and returns the thrown value.
func InvokeThrow() *ir.Module {
	m := &ir.Module{}

	main := m.AddFunction("main")
	entry := main.AddBlock("entry")
	cont := main.AddBlock("cont")
	lpad := main.AddBlock("lpad")

	foo := m.AddFunction("foo")
	fooEntry := foo.AddBlock("entry")
	fooEntry.Add(&ir.Inst{Op: ir.Throw, Val: ir.Const(7)})

	val := &ir.Local{Name: "val"}
	entry.Add(&ir.Inst{Op: ir.Invoke, Dst: val, Callee: foo, NormalDest: cont, UnwindDest: lpad})

	cont.Add(&ir.Inst{Op: ir.Ret, Val: val})

	caught := &ir.Local{Name: "caught"}
	lpad.Add(&ir.Inst{Op: ir.LandingPad, Dst: caught})
	lpad.Add(&ir.Inst{Op: ir.Ret, Val: caught})
	return m
}
