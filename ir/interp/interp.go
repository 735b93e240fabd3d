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

// Package interp executes ir modules.
//
// It exists to drive instrumented modules: external functions dispatch
// through an Externs table, which is how an instrumented program reaches the
// runtime callbacks. It is an execution vehicle, not a performance artifact.
package interp

import (
	"context"

	"github.com/chrisliu/dg-transform/ir"
	"github.com/pkg/errors"
)

// Externs resolves external function symbols at run time.
type Externs map[string]func(args []uint64) uint64

// Interp executes a module.
type Interp struct {
	Module  *ir.Module
	Externs Externs

	// Mem is the flat memory load and store addresses resolve in.
	Mem map[uint64]uint64

	brk uint64
}

// allocaBase is the first address handed out for alloca slots.
const allocaBase = 0x1000

// New returns an interpreter for the module with an empty extern table.
func New(m *ir.Module) *Interp {
	return &Interp{
		Module:  m,
		Externs: Externs{},
		Mem:     map[uint64]uint64{},
		brk:     allocaBase,
	}
}

// thrown is an exception unwinding through interpreter frames.
type thrown struct {
	val uint64
}

// Run executes the named function with the given arguments and returns its
// result. An exception that unwinds past the entry function is an error.
func (in *Interp) Run(ctx context.Context, entry string, args ...uint64) (uint64, error) {
	f := in.Module.Func(entry)
	if f == nil {
		return 0, errors.Errorf("no function %q in module", entry)
	}
	ret, th, err := in.call(ctx, f, args)
	if err != nil {
		return 0, err
	}
	if th != nil {
		return 0, errors.Errorf("uncaught exception %v from %q", th.val, entry)
	}
	return ret, nil
}

func (in *Interp) call(ctx context.Context, f *ir.Function, args []uint64) (uint64, *thrown, error) {
	if f.External {
		fn, ok := in.Externs[f.Name]
		if !ok {
			return 0, nil, errors.Errorf("unbound external function %q", f.Name)
		}
		return fn(args), nil, nil
	}
	if len(args) != len(f.Params) {
		return 0, nil, errors.Errorf("%q takes %d arguments, got %d", f.Name, len(f.Params), len(args))
	}

	regs := map[*ir.Local]uint64{}
	for idx, p := range f.Params {
		regs[p] = args[idx]
	}

	cur := f.Entry()
	if cur == nil {
		return 0, nil, errors.Errorf("%q has no blocks", f.Name)
	}
	var prev *ir.Block
	var pending *thrown // set when entering a block along an unwind edge

	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		var next *ir.Block
		var nextPending *thrown

	insts:
		for _, i := range cur.Insts {
			switch i.Op {
			case ir.DebugMarker, ir.LifetimeStart, ir.LifetimeEnd:
				// Bookkeeping only.

			case ir.Phi:
				v, err := in.phi(regs, i, prev)
				if err != nil {
					return 0, nil, err
				}
				regs[i.Dst] = v

			case ir.LandingPad:
				if pending == nil {
					return 0, nil, errors.Errorf("landing pad in %v entered without an in-flight exception", cur.OperandName())
				}
				regs[i.Dst] = pending.val
				pending = nil

			case ir.Alloca:
				regs[i.Dst] = in.brk
				in.brk += 8

			case ir.Copy:
				v, err := in.eval(regs, i.Val)
				if err != nil {
					return 0, nil, err
				}
				regs[i.Dst] = v

			case ir.Arith:
				v, err := in.arith(regs, i)
				if err != nil {
					return 0, nil, err
				}
				regs[i.Dst] = v

			case ir.Load:
				addr, err := in.eval(regs, i.Addr)
				if err != nil {
					return 0, nil, err
				}
				regs[i.Dst] = in.Mem[addr]

			case ir.Store:
				addr, err := in.eval(regs, i.Addr)
				if err != nil {
					return 0, nil, err
				}
				v, err := in.eval(regs, i.Val)
				if err != nil {
					return 0, nil, err
				}
				in.Mem[addr] = v

			case ir.Br:
				next = i.Dest
				break insts

			case ir.CondBr:
				c, err := in.eval(regs, i.Cond)
				if err != nil {
					return 0, nil, err
				}
				if c != 0 {
					next = i.Dest
				} else {
					next = i.Else
				}
				break insts

			case ir.Ret:
				if i.Val == nil {
					return 0, nil, nil
				}
				v, err := in.eval(regs, i.Val)
				if err != nil {
					return 0, nil, err
				}
				return v, nil, nil

			case ir.Throw:
				v, err := in.eval(regs, i.Val)
				if err != nil {
					return 0, nil, err
				}
				return 0, &thrown{val: v}, nil

			case ir.Call:
				ret, th, err := in.dispatch(ctx, regs, i)
				if err != nil {
					return 0, nil, err
				}
				if th != nil {
					// A plain call has no unwind edge; keep unwinding.
					return 0, th, nil
				}
				if i.Dst != nil {
					regs[i.Dst] = ret
				}

			case ir.Invoke:
				ret, th, err := in.dispatch(ctx, regs, i)
				if err != nil {
					return 0, nil, err
				}
				if th != nil {
					next = i.UnwindDest
					nextPending = th
				} else {
					if i.Dst != nil {
						regs[i.Dst] = ret
					}
					next = i.NormalDest
				}
				break insts

			default:
				return 0, nil, errors.Errorf("cannot execute %v instruction", i.Op)
			}
		}

		if next == nil {
			return 0, nil, errors.Errorf("block %v of %q fell off its end", cur.OperandName(), f.Name)
		}
		prev, cur = cur, next
		pending = nextPending
	}
}

// dispatch resolves and executes the callee of a call or invoke.
func (in *Interp) dispatch(ctx context.Context, regs map[*ir.Local]uint64, i *ir.Inst) (uint64, *thrown, error) {
	callee := i.Callee
	if callee == nil {
		idx, err := in.eval(regs, i.Target)
		if err != nil {
			return 0, nil, err
		}
		if idx >= uint64(len(in.Module.FuncTable)) {
			return 0, nil, errors.Errorf("indirect call target %v out of range", idx)
		}
		callee = in.Module.FuncTable[idx]
	}
	args := make([]uint64, len(i.Args))
	for n, a := range i.Args {
		v, err := in.eval(regs, a)
		if err != nil {
			return 0, nil, err
		}
		args[n] = v
	}
	return in.call(ctx, callee, args)
}

func (in *Interp) phi(regs map[*ir.Local]uint64, i *ir.Inst, prev *ir.Block) (uint64, error) {
	for _, inc := range i.Incoming {
		if inc.From == prev {
			return in.eval(regs, inc.V)
		}
	}
	return 0, errors.Errorf("phi in %v has no incoming edge for the taken predecessor", i.Block().OperandName())
}

func (in *Interp) arith(regs map[*ir.Local]uint64, i *ir.Inst) (uint64, error) {
	l, err := in.eval(regs, i.LHS)
	if err != nil {
		return 0, err
	}
	r, err := in.eval(regs, i.RHS)
	if err != nil {
		return 0, err
	}
	switch i.AOp {
	case ir.Add:
		return l + r, nil
	case ir.Sub:
		return l - r, nil
	case ir.Mul:
		return l * r, nil
	case ir.Mod:
		if r == 0 {
			return 0, errors.New("mod by zero")
		}
		return l % r, nil
	case ir.CmpLT:
		if l < r {
			return 1, nil
		}
		return 0, nil
	case ir.CmpEQ:
		if l == r {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Errorf("cannot execute %v arith op", i.AOp)
}

func (in *Interp) eval(regs map[*ir.Local]uint64, v ir.Value) (uint64, error) {
	switch v := v.(type) {
	case ir.Const:
		return uint64(v), nil
	case *ir.Local:
		r, ok := regs[v]
		if !ok {
			return 0, errors.Errorf("read of unset local %v", v)
		}
		return r, nil
	case nil:
		return 0, errors.New("missing operand")
	}
	return 0, errors.Errorf("cannot evaluate operand %v", v)
}
