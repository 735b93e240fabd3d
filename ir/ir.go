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

// Package ir models the intermediate representation the instrumentation
// passes rewrite.
//
// The surface is deliberately narrow: a module is an ordered list of
// functions, a function an ordered list of blocks, a block an ordered list
// of instructions. Passes ask for opcodes and operands and insert
// instructions; they never inspect anything deeper.
package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies the operation an instruction performs.
type Opcode int

const (
	// InvalidOp is the zero opcode; it never appears in a well-formed block.
	InvalidOp Opcode = iota

	// Non-executable markers.
	Phi
	DebugMarker
	LifetimeStart
	LifetimeEnd
	LandingPad

	// Executable instructions.
	Alloca
	Copy
	Arith
	Load
	Store
	Br
	CondBr
	Ret
	Throw
	Call
	Invoke

	// Unsupported by the instrumentation passes.
	CallBr
	CatchSwitch
	CatchRet
	CatchPad
	CleanupPad
	CleanupRet
)

var opcodeNames = map[Opcode]string{
	InvalidOp:     "invalid",
	Phi:           "phi",
	DebugMarker:   "dbg",
	LifetimeStart: "lifetime.start",
	LifetimeEnd:   "lifetime.end",
	LandingPad:    "landingpad",
	Alloca:        "alloca",
	Copy:          "copy",
	Arith:         "arith",
	Load:          "load",
	Store:         "store",
	Br:            "br",
	CondBr:        "condbr",
	Ret:           "ret",
	Throw:         "throw",
	Call:          "call",
	Invoke:        "invoke",
	CallBr:        "callbr",
	CatchSwitch:   "catchswitch",
	CatchRet:      "catchret",
	CatchPad:      "catchpad",
	CleanupPad:    "cleanuppad",
	CleanupRet:    "cleanupret",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("opcode<%d>", int(o))
}

// IsTerminator returns true if the opcode ends a basic block.
func (o Opcode) IsTerminator() bool {
	switch o {
	case Br, CondBr, Ret, Throw, Invoke, CallBr, CatchSwitch, CatchRet, CleanupRet:
		return true
	}
	return false
}

// ArithOp selects the operation of an Arith instruction.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Mod
	CmpLT
	CmpEQ
)

func (o ArithOp) String() string {
	switch o {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Mod:
		return "mod"
	case CmpLT:
		return "cmplt"
	case CmpEQ:
		return "cmpeq"
	}
	return fmt.Sprintf("arithop<%d>", int(o))
}

// Value is an instruction operand: either a Const or a *Local.
type Value interface {
	isValue()
}

// Const is an unsigned 64-bit immediate.
type Const uint64

func (Const) isValue() {}

// Local is a function-local virtual register. Alloca results and call
// results are locals like any other.
type Local struct {
	Name string
}

func (*Local) isValue() {}

func (l *Local) String() string { return "%" + l.Name }

// PhiIn is one incoming edge of a Phi instruction.
type PhiIn struct {
	From *Block
	V    Value
}

// Inst is a single IR instruction. Which operand fields are meaningful
// depends on Op:
//
//	Alloca:       Dst
//	Copy:         Dst, Val
//	Arith:        Dst, AOp, LHS, RHS
//	Load:         Dst, Addr
//	Store:        Addr, Val
//	Br:           Dest
//	CondBr:       Cond, Dest, Else
//	Ret:          Val (optional)
//	Throw:        Val
//	Call:         Dst (optional), Callee (nil = indirect via Target), Args
//	Invoke:       as Call, plus NormalDest, UnwindDest
//	Phi:          Dst, Incoming
//	LandingPad:   Dst (bound to the in-flight thrown value)
type Inst struct {
	Op  Opcode
	AOp ArithOp

	Dst  *Local
	Addr Value
	Val  Value
	LHS  Value
	RHS  Value
	Cond Value

	Callee *Function // nil on an indirect call
	Target Value     // indirect call: index into Module.FuncTable
	Args   []Value

	Dest       *Block // Br, CondBr true edge
	Else       *Block // CondBr false edge
	NormalDest *Block // Invoke
	UnwindDest *Block // Invoke

	Incoming []PhiIn

	block *Block
}

// Block returns the basic block containing the instruction.
func (i *Inst) Block() *Block { return i.block }

// Block is a basic block: an ordered instruction list ending in a
// terminator.
type Block struct {
	Name  string
	Insts []*Inst

	fn *Function
}

// Func returns the function containing the block.
func (b *Block) Func() *Function { return b.fn }

// IsEntry returns true if the block is its function's entry block.
func (b *Block) IsEntry() bool {
	return b.fn != nil && len(b.fn.Blocks) > 0 && b.fn.Blocks[0] == b
}

// OperandName returns the IR-printed operand form of the block: "%name", or
// "%<position>" for anonymous blocks. The result is unique within a
// function.
func (b *Block) OperandName() string {
	if b.Name != "" {
		return "%" + b.Name
	}
	for idx, o := range b.fn.Blocks {
		if o == b {
			return fmt.Sprintf("%%%d", idx)
		}
	}
	return "%?"
}

// Add appends an instruction to the block and returns it.
func (b *Block) Add(i *Inst) *Inst {
	i.block = b
	b.Insts = append(b.Insts, i)
	return i
}

// InsertBefore inserts insts immediately before pos, which must be an
// instruction of the block. Insertions are placed in argument order, so the
// last inserted instruction ends up adjacent to pos.
func (b *Block) InsertBefore(pos *Inst, insts ...*Inst) {
	at := b.indexOf(pos)
	for _, i := range insts {
		i.block = b
	}
	b.Insts = append(b.Insts[:at], append(append([]*Inst{}, insts...), b.Insts[at:]...)...)
}

func (b *Block) indexOf(i *Inst) int {
	for idx, o := range b.Insts {
		if o == i {
			return idx
		}
	}
	panic(fmt.Sprintf("instruction not in block %v", b.OperandName()))
}

// Terminator returns the block's final instruction.
func (b *Block) Terminator() *Inst {
	if len(b.Insts) == 0 {
		return nil
	}
	return b.Insts[len(b.Insts)-1]
}

// Function is a named sequence of basic blocks. External functions carry no
// blocks and resolve at run time through the interpreter's extern table.
type Function struct {
	Name     string
	Params   []*Local
	Blocks   []*Block
	External bool

	mod *Module
}

// Module returns the module containing the function.
func (f *Function) Module() *Module { return f.mod }

// Entry returns the function's entry block.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// IsIntrinsic returns true for compiler intrinsics, which the passes never
// treat as call sites.
func (f *Function) IsIntrinsic() bool {
	return strings.HasPrefix(f.Name, "llvm.")
}

// AddBlock appends a new named block to the function.
func (f *Function) AddBlock(name string) *Block {
	b := &Block{Name: name, fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Module is a whole compilation unit.
type Module struct {
	Funcs []*Function

	// FuncTable resolves indirect call targets: a Call with a nil Callee
	// evaluates Target to an index into this table.
	FuncTable []*Function
}

// AddFunction appends a new function to the module.
func (m *Module) AddFunction(name string, params ...*Local) *Function {
	f := &Function{Name: name, Params: params, mod: m}
	m.Funcs = append(m.Funcs, f)
	return f
}

// AddExternal appends a new external function declaration to the module,
// returning the existing declaration if the name is already bound.
func (m *Module) AddExternal(name string, params ...*Local) *Function {
	if f := m.Func(name); f != nil {
		return f
	}
	f := &Function{Name: name, Params: params, External: true, mod: m}
	m.Funcs = append(m.Funcs, f)
	return f
}

// Func returns the function with the given name, or nil.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
