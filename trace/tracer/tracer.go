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

// Package tracer is the runtime half of the instrumentation: the rewritten
// program calls into a process-wide context on every dynamic instruction.
//
// The runtime is single-threaded and cooperative. Every callback returns
// synchronously before the corresponding host instruction executes, and the
// traced program must not enter callbacks from multiple threads.
//
// For each instruction, the convention is:
//
//	record...()             [any order]
//	incDynamicInstCount()   [always last]
//	execute actual instruction
package tracer

import (
	"context"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/core/log"
)

// Environment variables consulted by the runtime.
const (
	EnvMode = "DG_MODE" // { SimPoint, InstTrace }

	// SimPoint.
	EnvBBIntervalSize = "DG_BB_INTERVAL_SIZE"
	EnvBBIntervalPath = "DG_BB_INTERVAL_PATH"

	// InstTrace.
	EnvTracePath    = "DG_TRACE_PATH"
	EnvInstStart    = "DG_INST_START"
	EnvInstMax      = "DG_INST_MAX"
	EnvSimPointPath = "DG_SIMPOINT_PATH"
)

// Context receives the instrumentation callbacks.
type Context interface {
	// IncDynamicInstCount ticks one dynamic executable instruction.
	IncDynamicInstCount()
	// GetCallSite allocates a fresh handle for the call site.
	GetCallSite(id canon.InstID) canon.CallID
	// RecordReturnFromCall signals resumption after a call.
	RecordReturnFromCall(handle canon.CallID, numRetiredInBB uint64)
	// RecordBasicBlock fires once per dynamic basic block entry.
	RecordBasicBlock(id canon.BBID, isFuncEntry bool)
	// RecordLoadInst fires before a load executes.
	RecordLoadInst(id canon.InstID, addr uint64)
	// RecordStoreInst fires before a store executes.
	RecordStoreInst(id canon.InstID, addr uint64)
}

// Config carries the runtime's process dependencies so tests can observe
// termination and time.
type Config struct {
	// Getenv resolves environment variables. Defaults to os.Getenv.
	Getenv func(string) string
	// Exit terminates the process. Defaults to os.Exit.
	Exit func(code int)
	// Clock is the time source for the fast-forward and trace timing
	// reports. Defaults to the wall clock.
	Clock clock.Clock
	// Create opens an output stream for writing. Defaults to os.Create.
	Create func(path string) (io.WriteCloser, error)
}

func (c Config) orDefaults() Config {
	if c.Getenv == nil {
		c.Getenv = os.Getenv
	}
	if c.Exit == nil {
		c.Exit = os.Exit
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Create == nil {
		c.Create = func(path string) (io.WriteCloser, error) { return os.Create(path) }
	}
	return c
}

var singleton Context

// Get returns the process-wide context, resolving the mode from the
// environment on first use. All instrumentation callbacks route to it.
func Get(ctx context.Context) Context {
	if singleton == nil {
		singleton = New(ctx, Config{})
	}
	return singleton
}

// New instantiates the context matching the configured mode. Absent or
// unknown mode, or invalid mode configuration, is fatal.
func New(ctx context.Context, cfg Config) Context {
	cfg = cfg.orDefaults()
	switch mode := cfg.Getenv(EnvMode); mode {
	case "SimPoint":
		c, err := NewSimPoint(ctx, cfg)
		if err != nil {
			log.E(ctx, "%v", err)
			cfg.Exit(1)
			return nil
		}
		return c
	case "InstTrace":
		c, err := NewInstTrace(ctx, cfg)
		if err != nil {
			log.E(ctx, "%v", err)
			cfg.Exit(1)
			return nil
		}
		return c
	default:
		log.E(ctx, "Unrecognized instrumentation mode: %v", mode)
		cfg.Exit(1)
		return nil
	}
}
