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

	"github.com/chrisliu/dg-transform/ir"
)

// PromotePass turns slot traffic into register traffic where possible: a
// load from a non-escaping alloca whose value is known from an earlier
// store in the same block becomes a copy. Cross-block loads (the unwind
// paths of invokes) keep their slots.
type PromotePass struct{}

func (p *PromotePass) Name() string { return "promote" }

// Run rewrites the module in place.
func (p *PromotePass) Run(ctx context.Context, m *ir.Module) error {
	for _, f := range m.Funcs {
		promotable := nonEscapingAllocas(f)
		for _, bb := range f.Blocks {
			last := map[*ir.Local]ir.Value{}
			for _, i := range bb.Insts {
				switch i.Op {
				case ir.Store:
					if slot, ok := i.Addr.(*ir.Local); ok && promotable[slot] {
						last[slot] = i.Val
					}
				case ir.Load:
					if slot, ok := i.Addr.(*ir.Local); ok && promotable[slot] {
						if v, ok := last[slot]; ok {
							i.Op = ir.Copy
							i.Val = v
							i.Addr = nil
						}
					}
				}
			}
		}
	}
	return nil
}

// nonEscapingAllocas returns the alloca results of f whose only uses are as
// load and store addresses. Nothing else can observe or modify such a slot,
// so same-block store-to-load forwarding is sound across calls.
func nonEscapingAllocas(f *ir.Function) map[*ir.Local]bool {
	allocas := map[*ir.Local]bool{}
	for _, bb := range f.Blocks {
		for _, i := range bb.Insts {
			if i.Op == ir.Alloca && i.Dst != nil {
				allocas[i.Dst] = true
			}
		}
	}

	escape := func(v ir.Value) {
		if l, ok := v.(*ir.Local); ok {
			delete(allocas, l)
		}
	}
	for _, bb := range f.Blocks {
		for _, i := range bb.Insts {
			switch i.Op {
			case ir.Load:
				// Address use only.
			case ir.Store:
				escape(i.Val)
			default:
				escape(i.Addr)
				escape(i.Val)
				escape(i.LHS)
				escape(i.RHS)
				escape(i.Cond)
				escape(i.Target)
				for _, a := range i.Args {
					escape(a)
				}
				for _, in := range i.Incoming {
					escape(in.V)
				}
			}
		}
	}
	return allocas
}
