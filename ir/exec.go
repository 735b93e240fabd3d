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

package ir

// IsExecutable reports whether an instruction corresponds to real program
// semantics. Debug and lifetime markers, phis and landing-pad declarators
// are bookkeeping only: they receive no identifiers and never tick the
// dynamic instruction counter.
func IsExecutable(i *Inst) bool {
	switch i.Op {
	case Phi, DebugMarker, LifetimeStart, LifetimeEnd, LandingPad:
		return false
	}
	return true
}

// ExecutableInsts returns the ordered executable instructions of a block,
// from the first non-phi, non-debug, non-lifetime instruction through the
// terminator. The result is never empty for a well-formed block: every
// reachable block has at least its terminator.
func ExecutableInsts(b *Block) []*Inst {
	execs := make([]*Inst, 0, len(b.Insts))
	for _, i := range b.Insts {
		if IsExecutable(i) {
			execs = append(execs, i)
		}
	}
	if len(execs) == 0 {
		panic("block " + b.OperandName() + " has no executable instructions")
	}
	return execs
}
