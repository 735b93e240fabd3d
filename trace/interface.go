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

// Package trace rewrites ir modules to call the tracing runtime.
//
// Two passes are provided: SimPointPass instruments for basic-block
// frequency profiles, InstTracePass for full instruction traces. Both keep
// program semantics intact; the rewritten module only gains calls to the
// runtime callback symbols declared by Interface.
package trace

import (
	"github.com/chrisliu/dg-transform/ir"
)

// Runtime callback symbols. The instrumented module calls these; the
// tracer package binds them at run time.
const (
	SymIncDynamicInstCount  = "incDynamicInstCount"
	SymGetCallSite          = "getCallSite"
	SymRecordReturnFromCall = "recordReturnFromCall"
	SymRecordBasicBlock     = "recordBasicBlock"
	SymRecordLoadInst       = "recordLoadInst"
	SymRecordStoreInst      = "recordStoreInst"
)

// Interface binds the runtime callbacks into a module as external function
// declarations with fixed signatures.
type Interface struct {
	// incDynamicInstCount() — tick one dynamic executable instruction.
	IncDynamicInstCount *ir.Function
	// getCallSite(inst_id) → handle — allocate a fresh call-site handle.
	GetCallSite *ir.Function
	// recordReturnFromCall(handle, num_retired) — resumption after a call.
	RecordReturnFromCall *ir.Function
	// recordBasicBlock(bb_id, is_func_entry) — entering a basic block.
	RecordBasicBlock *ir.Function
	// recordLoadInst(inst_id, addr) — a load is about to execute.
	RecordLoadInst *ir.Function
	// recordStoreInst(inst_id, addr) — a store is about to execute.
	RecordStoreInst *ir.Function
}

// NewInterface declares the callback symbols in the module, reusing any
// existing declarations.
func NewInterface(m *ir.Module) *Interface {
	return &Interface{
		IncDynamicInstCount:  m.AddExternal(SymIncDynamicInstCount),
		GetCallSite:          m.AddExternal(SymGetCallSite, &ir.Local{Name: "inst_id"}),
		RecordReturnFromCall: m.AddExternal(SymRecordReturnFromCall, &ir.Local{Name: "handle"}, &ir.Local{Name: "num_retired"}),
		RecordBasicBlock:     m.AddExternal(SymRecordBasicBlock, &ir.Local{Name: "bb_id"}, &ir.Local{Name: "is_func_entry"}),
		RecordLoadInst:       m.AddExternal(SymRecordLoadInst, &ir.Local{Name: "inst_id"}, &ir.Local{Name: "addr"}),
		RecordStoreInst:      m.AddExternal(SymRecordStoreInst, &ir.Local{Name: "inst_id"}, &ir.Local{Name: "addr"}),
	}
}

// callTo builds a call instruction to a callback symbol.
func callTo(f *ir.Function, dst *ir.Local, args ...ir.Value) *ir.Inst {
	return &ir.Inst{Op: ir.Call, Callee: f, Dst: dst, Args: args}
}

// boolConst encodes a bool operand as 0 or 1.
func boolConst(b bool) ir.Value {
	if b {
		return ir.Const(1)
	}
	return ir.Const(0)
}
