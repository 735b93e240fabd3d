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

	"github.com/chrisliu/dg-transform/core/log"
	"github.com/chrisliu/dg-transform/ir"
	"github.com/pkg/errors"
)

// Pass is a module rewriting step.
type Pass interface {
	Name() string
	Run(ctx context.Context, m *ir.Module) error
}

// InstTracePipeline is the pass sequence for instruction tracing. The slot
// materialization must run before scalar promotion.
func InstTracePipeline(uidFile string) []Pass {
	return []Pass{
		&InstTracePass{UIDFile: uidFile},
		&PromotePass{},
	}
}

// Run executes the passes in order on the module.
func Run(ctx context.Context, m *ir.Module, passes ...Pass) error {
	for _, p := range passes {
		log.D(ctx, "Running %s pass", p.Name())
		if err := p.Run(ctx, m); err != nil {
			return errors.Wrapf(err, "Pass %s", p.Name())
		}
	}
	return nil
}
