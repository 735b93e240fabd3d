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
	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/ir/interp"
	"github.com/chrisliu/dg-transform/trace"
)

// Externs binds the instrumentation callback symbols of an instrumented
// module to a context, for execution under the interpreter.
func Externs(c Context) interp.Externs {
	return interp.Externs{
		trace.SymIncDynamicInstCount: func(args []uint64) uint64 {
			c.IncDynamicInstCount()
			return 0
		},
		trace.SymGetCallSite: func(args []uint64) uint64 {
			return uint64(c.GetCallSite(canon.InstID(args[0])))
		},
		trace.SymRecordReturnFromCall: func(args []uint64) uint64 {
			c.RecordReturnFromCall(canon.CallID(args[0]), args[1])
			return 0
		},
		trace.SymRecordBasicBlock: func(args []uint64) uint64 {
			c.RecordBasicBlock(canon.BBID(args[0]), args[1] != 0)
			return 0
		},
		trace.SymRecordLoadInst: func(args []uint64) uint64 {
			c.RecordLoadInst(canon.InstID(args[0]), args[1])
			return 0
		},
		trace.SymRecordStoreInst: func(args []uint64) uint64 {
			c.RecordStoreInst(canon.InstID(args[0]), args[1])
			return 0
		},
	}
}
