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

package main

import (
	"os"

	"github.com/chrisliu/dg-transform/ir"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// The YAML program schema mirrors the ir model: functions hold blocks hold
// instructions. Integer operands are constants; string operands name
// function-local registers. Bare words that YAML reads as booleans (y, n,
// yes, no, on, off, true, false) are not strings and are rejected as
// operands; quoted, they name registers like any other string.

type programDesc struct {
	Functions []funcDesc `yaml:"functions"`
	FuncTable []string   `yaml:"func_table"`
}

type funcDesc struct {
	Name     string      `yaml:"name"`
	External bool        `yaml:"external"`
	Params   []string    `yaml:"params"`
	Blocks   []blockDesc `yaml:"blocks"`
}

type blockDesc struct {
	Name  string     `yaml:"name"`
	Insts []instDesc `yaml:"insts"`
}

type instDesc struct {
	Op  string `yaml:"op"`
	AOp string `yaml:"aop"`
	Dst string `yaml:"dst"`

	Addr interface{} `yaml:"addr"`
	Val  interface{} `yaml:"val"`
	LHS  interface{} `yaml:"lhs"`
	RHS  interface{} `yaml:"rhs"`
	Cond interface{} `yaml:"cond"`

	Callee string        `yaml:"callee"`
	Target interface{}   `yaml:"target"`
	Args   []interface{} `yaml:"args"`

	Dest   string `yaml:"dest"`
	Else   string `yaml:"else"`
	Normal string `yaml:"normal"`
	Unwind string `yaml:"unwind"`

	Incoming []phiDesc `yaml:"incoming"`
}

type phiDesc struct {
	From string      `yaml:"from"`
	Val  interface{} `yaml:"val"`
}

var opcodes = map[string]ir.Opcode{
	"phi":            ir.Phi,
	"dbg":            ir.DebugMarker,
	"lifetime.start": ir.LifetimeStart,
	"lifetime.end":   ir.LifetimeEnd,
	"landingpad":     ir.LandingPad,
	"alloca":         ir.Alloca,
	"copy":           ir.Copy,
	"arith":          ir.Arith,
	"load":           ir.Load,
	"store":          ir.Store,
	"br":             ir.Br,
	"condbr":         ir.CondBr,
	"ret":            ir.Ret,
	"throw":          ir.Throw,
	"call":           ir.Call,
	"invoke":         ir.Invoke,
	"callbr":         ir.CallBr,
	"catchswitch":    ir.CatchSwitch,
	"catchret":       ir.CatchRet,
	"catchpad":       ir.CatchPad,
	"cleanuppad":     ir.CleanupPad,
	"cleanupret":     ir.CleanupRet,
}

var arithOps = map[string]ir.ArithOp{
	"add":   ir.Add,
	"sub":   ir.Sub,
	"mul":   ir.Mul,
	"mod":   ir.Mod,
	"cmplt": ir.CmpLT,
	"cmpeq": ir.CmpEQ,
}

// loadProgramFile reads a YAML program description into an ir module.
func loadProgramFile(path string) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Reading program %v", path)
	}
	return loadProgram(data)
}

func loadProgram(data []byte) (*ir.Module, error) {
	desc := programDesc{}
	if err := yaml.UnmarshalStrict(data, &desc); err != nil {
		return nil, errors.Wrap(err, "Parsing program description")
	}

	m := &ir.Module{}

	// First create every function and block so references resolve, then
	// fill in the instructions.
	blocks := map[string]map[string]*ir.Block{}
	for _, fd := range desc.Functions {
		if fd.External {
			params := make([]*ir.Local, len(fd.Params))
			for idx, p := range fd.Params {
				params[idx] = &ir.Local{Name: p}
			}
			m.AddExternal(fd.Name, params...)
			continue
		}
		params := make([]*ir.Local, len(fd.Params))
		for idx, p := range fd.Params {
			params[idx] = &ir.Local{Name: p}
		}
		f := m.AddFunction(fd.Name, params...)
		bbs := map[string]*ir.Block{}
		for _, bd := range fd.Blocks {
			if _, ok := bbs[bd.Name]; ok {
				return nil, errors.Errorf("duplicate block %q in %q", bd.Name, fd.Name)
			}
			bbs[bd.Name] = f.AddBlock(bd.Name)
		}
		blocks[fd.Name] = bbs
	}

	for _, fd := range desc.Functions {
		if fd.External {
			continue
		}
		f := m.Func(fd.Name)
		locals := map[string]*ir.Local{}
		for _, p := range f.Params {
			locals[p.Name] = p
		}
		ld := &loader{m: m, f: f, blocks: blocks[fd.Name], locals: locals}
		for _, bd := range fd.Blocks {
			bb := ld.blocks[bd.Name]
			for _, id := range bd.Insts {
				i, err := ld.inst(id)
				if err != nil {
					return nil, errors.Wrapf(err, "Function %q block %q", fd.Name, bd.Name)
				}
				bb.Add(i)
			}
		}
	}

	for _, name := range desc.FuncTable {
		f := m.Func(name)
		if f == nil {
			return nil, errors.Errorf("func_table names unknown function %q", name)
		}
		m.FuncTable = append(m.FuncTable, f)
	}

	return m, nil
}

type loader struct {
	m      *ir.Module
	f      *ir.Function
	blocks map[string]*ir.Block
	locals map[string]*ir.Local
}

func (l *loader) inst(d instDesc) (*ir.Inst, error) {
	op, ok := opcodes[d.Op]
	if !ok {
		return nil, errors.Errorf("unknown opcode %q", d.Op)
	}
	i := &ir.Inst{Op: op}

	if d.AOp != "" {
		aop, ok := arithOps[d.AOp]
		if !ok {
			return nil, errors.Errorf("unknown arith op %q", d.AOp)
		}
		i.AOp = aop
	}
	if d.Dst != "" {
		i.Dst = l.local(d.Dst)
	}

	var err error
	if i.Addr, err = l.value(d.Addr); err != nil {
		return nil, err
	}
	if i.Val, err = l.value(d.Val); err != nil {
		return nil, err
	}
	if i.LHS, err = l.value(d.LHS); err != nil {
		return nil, err
	}
	if i.RHS, err = l.value(d.RHS); err != nil {
		return nil, err
	}
	if i.Cond, err = l.value(d.Cond); err != nil {
		return nil, err
	}
	if i.Target, err = l.value(d.Target); err != nil {
		return nil, err
	}
	for _, a := range d.Args {
		v, err := l.value(a)
		if err != nil {
			return nil, err
		}
		i.Args = append(i.Args, v)
	}

	if d.Callee != "" {
		i.Callee = l.m.Func(d.Callee)
		if i.Callee == nil {
			return nil, errors.Errorf("unknown callee %q", d.Callee)
		}
	}

	if i.Dest, err = l.block(d.Dest); err != nil {
		return nil, err
	}
	if i.Else, err = l.block(d.Else); err != nil {
		return nil, err
	}
	if i.NormalDest, err = l.block(d.Normal); err != nil {
		return nil, err
	}
	if i.UnwindDest, err = l.block(d.Unwind); err != nil {
		return nil, err
	}

	for _, p := range d.Incoming {
		from, err := l.block(p.From)
		if err != nil {
			return nil, err
		}
		if from == nil {
			return nil, errors.New("phi incoming edge needs a from block")
		}
		v, err := l.value(p.Val)
		if err != nil {
			return nil, err
		}
		i.Incoming = append(i.Incoming, ir.PhiIn{From: from, V: v})
	}

	return i, nil
}

func (l *loader) local(name string) *ir.Local {
	if v, ok := l.locals[name]; ok {
		return v
	}
	v := &ir.Local{Name: name}
	l.locals[name] = v
	return v
}

func (l *loader) value(v interface{}) (ir.Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case int:
		if v < 0 {
			return nil, errors.Errorf("negative constant %v", v)
		}
		return ir.Const(v), nil
	case int64:
		if v < 0 {
			return nil, errors.Errorf("negative constant %v", v)
		}
		return ir.Const(v), nil
	case uint64:
		return ir.Const(v), nil
	case string:
		return l.local(v), nil
	}
	return nil, errors.Errorf("cannot interpret operand %v", v)
}

func (l *loader) block(name string) (*ir.Block, error) {
	if name == "" {
		return nil, nil
	}
	bb, ok := l.blocks[name]
	if !ok {
		return nil, errors.Errorf("unknown block %q", name)
	}
	return bb, nil
}
