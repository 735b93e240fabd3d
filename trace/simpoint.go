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

	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/core/log"
	"github.com/chrisliu/dg-transform/ir"
)

// SimPointPass instruments a module for basic-block frequency profiling:
// every block reports its entry, every executable instruction ticks the
// dynamic instruction counter. It assigns fresh canonical identifiers and
// writes them to the UIDFile sidecar.
type SimPointPass struct {
	UIDFile string
}

func (p *SimPointPass) Name() string { return "simpoint" }

// Run rewrites the module in place.
func (p *SimPointPass) Run(ctx context.Context, m *ir.Module) error {
	ii := NewInterface(m)
	cid := canon.New(m)

	for _, f := range m.Funcs {
		for _, bb := range f.Blocks {
			p.instrumentBlock(bb, ii, cid)
		}
	}

	uidFile := p.UIDFile
	if uidFile == "" {
		uidFile = *UIDFile
	}
	if uidFile == "" {
		log.W(ctx, "UID file is not written")
		return nil
	}
	return cid.Serialize(ctx, uidFile)
}

func (p *SimPointPass) instrumentBlock(bb *ir.Block, ii *Interface, cid *canon.ID) {
	// Cache the executable list first: inserting invalidates positions, not
	// the cached instruction pointers.
	for idx, i := range ir.ExecutableInsts(bb) {
		if idx == 0 {
			bb.InsertBefore(i, callTo(ii.RecordBasicBlock, nil,
				ir.Const(cid.BBID(bb)), boolConst(bb.IsEntry())))
		}
		bb.InsertBefore(i, callTo(ii.IncDynamicInstCount, nil))
	}
}
