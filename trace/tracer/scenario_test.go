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

package tracer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/core/log"
	"github.com/chrisliu/dg-transform/ir"
	"github.com/chrisliu/dg-transform/ir/interp"
	"github.com/chrisliu/dg-transform/ir/irtest"
	"github.com/chrisliu/dg-transform/trace"
	"github.com/chrisliu/dg-transform/trace/tracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instrumentSimPoint rewrites m for profiling and returns the pristine
// canonical assignment, which the pass reproduces.
func instrumentSimPoint(t *testing.T, ctx context.Context, m *ir.Module) *canon.ID {
	t.Helper()
	cid := canon.New(m)
	require.NoError(t, trace.Run(ctx, m, &trace.SimPointPass{UIDFile: writeSidecar(t, ctx, m)}))
	return cid
}

// instrumentInstTrace rewrites m for tracing and returns the pristine
// canonical assignment.
func instrumentInstTrace(t *testing.T, ctx context.Context, m *ir.Module) *canon.ID {
	t.Helper()
	cid := canon.New(m)
	require.NoError(t, trace.Run(ctx, m, trace.InstTracePipeline(writeSidecar(t, ctx, m))...))
	return cid
}

func execute(t *testing.T, ctx context.Context, m *ir.Module, c tracer.Context, externs interp.Externs) uint64 {
	t.Helper()
	in := interp.New(m)
	in.Externs = tracer.Externs(c)
	for name, fn := range externs {
		in.Externs[name] = fn
	}
	got, err := in.Run(ctx, "main")
	require.NoError(t, err)
	return got
}

// Pure straight-line: two windows close before the program exits; the
// eleventh instruction closes none.
func TestSimPointStraightLine(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.StraightLine()
	cid := instrumentSimPoint(t, ctx, m)
	entryID := uint64(cid.BBID(m.Func("main").Entry()))

	fs := newMemFS()
	c, err := tracer.NewSimPoint(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvBBIntervalSize: "5",
			tracer.EnvBBIntervalPath: "bb.pb",
		}.get,
		Create: fs.create,
	})
	require.NoError(t, err)
	execute(t, ctx, m, c, nil)

	windows := decodeIntervals(t, fs, "bb.pb")
	require.Len(t, windows, 2)

	assert.Equal(t, uint64(0), windows[0].InstStart)
	assert.Equal(t, uint64(4), windows[0].InstEnd)
	assert.Equal(t, map[uint64]uint64{entryID: 1}, windows[0].Freq)

	assert.Equal(t, uint64(5), windows[1].InstStart)
	assert.Equal(t, uint64(9), windows[1].InstEnd)
	assert.Empty(t, windows[1].Freq, "no block is entered inside the second window")
}

// Loop profile: windows tile the run in 64-instruction steps, and a window
// never records more block entries than it has instructions.
func TestSimPointLoop(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.Loop()
	cid := instrumentSimPoint(t, ctx, m)
	headerID := uint64(cid.BBID(m.Func("loop").Blocks[1]))

	fs := newMemFS()
	c, err := tracer.NewSimPoint(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvBBIntervalSize: "64",
			tracer.EnvBBIntervalPath: "bb.pb",
		}.get,
		Create: fs.create,
	})
	require.NoError(t, err)
	execute(t, ctx, m, c, nil)

	windows := decodeIntervals(t, fs, "bb.pb")
	require.NotEmpty(t, windows)
	sawHeader := false
	for n, w := range windows {
		assert.Equal(t, uint64(n*64), w.InstStart)
		assert.Equal(t, uint64(n*64+63), w.InstEnd)
		blocks := uint64(0)
		for _, count := range w.Freq {
			blocks += count
		}
		// Block entries per window are bounded by the window size.
		assert.LessOrEqual(t, blocks, uint64(64), "window %d", n)
		if w.Freq[headerID] > 0 {
			sawHeader = true
		}
	}
	assert.True(t, sawHeader, "the loop header dominates the profile")
}

// Simple call and return.
func TestInstTraceCallReturn(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.CallReturn()
	callInst := m.Func("main").Entry().Insts[0]
	cid := instrumentInstTrace(t, ctx, m)
	mainBB := uint64(cid.BBID(m.Func("main").Entry()))
	fooBB := uint64(cid.BBID(m.Func("foo").Entry()))
	callID := uint64(cid.InstID(callInst))

	fs := newMemFS()
	rec := &exitRecorder{}
	c, err := tracer.NewInstTrace(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvTracePath: "trace.pb",
			tracer.EnvInstStart: "0",
			tracer.EnvInstMax:   "3",
		}.get,
		Create: fs.create,
		Exit:   rec.exit,
	})
	require.NoError(t, err)
	got := execute(t, ctx, m, c, nil)
	assert.Equal(t, uint64(42), got)
	assert.Equal(t, []int{0}, rec.codes, "all intervals complete")

	events := decodeEvents(t, fs, "trace.0.pb")
	require.Len(t, events, 4)

	snap := events[0].GetCallStack()
	require.NotNil(t, snap, "a traced interval begins with a stack snapshot")
	require.Len(t, snap.Frames, 1)
	assert.Equal(t, mainBB, snap.Frames[0].BbId)
	assert.Equal(t, uint64(0), snap.Frames[0].NumRetired)
	assert.False(t, snap.Frames[0].IsCall)

	call := events[1].GetInst()
	require.NotNil(t, call)
	assert.Equal(t, callID, call.InstId)
	assert.NotNil(t, call.GetCall())

	bb := events[2].GetBb()
	require.NotNil(t, bb)
	assert.Equal(t, fooBB, bb.BbId)

	adj := events[3].GetStackAdjustment()
	require.NotNil(t, adj)
	assert.Equal(t, fooBB, adj.TopFrame.BbId)
	assert.Equal(t, uint64(1), adj.TopFrame.NumRetired)
	assert.Equal(t, uint64(1), adj.NumPoppedFrames)
	assert.Nil(t, adj.NewFrame)
}

// Uninstrumented callees: an external call is a site that never enters, an
// intrinsic is not a site at all. The pending call resolves silently.
func TestInstTraceUninstrumentedCall(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.UninstrumentedCalls()
	instrumentInstTrace(t, ctx, m)

	fs := newMemFS()
	rec := &exitRecorder{}
	c, err := tracer.NewInstTrace(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvTracePath: "trace.pb",
			tracer.EnvInstStart: "0",
			tracer.EnvInstMax:   "3",
		}.get,
		Create: fs.create,
		Exit:   rec.exit,
	})
	require.NoError(t, err)
	got := execute(t, ctx, m, c, interp.Externs{
		"ext":            func([]uint64) uint64 { return 5 },
		"llvm.donothing": func([]uint64) uint64 { return 0 },
	})
	assert.Equal(t, uint64(5), got)
	assert.Equal(t, []int{0}, rec.codes)

	events := decodeEvents(t, fs, "trace.0.pb")
	require.Len(t, events, 1, "only the snapshot; nothing enters or unwinds")
	snap := events[0].GetCallStack()
	require.NotNil(t, snap)
	assert.Len(t, snap.Frames, 1)
}

// Invoke with unwind: the exception pops the callee frame and the landing
// pad entry folds into the stack adjustment.
func TestInstTraceInvokeUnwind(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.InvokeThrow()
	invokeInst := m.Func("main").Entry().Insts[0]
	cid := instrumentInstTrace(t, ctx, m)
	invokeID := uint64(cid.InstID(invokeInst))
	lpadBB := uint64(cid.BBID(m.Func("main").Blocks[2]))
	fooBB := uint64(cid.BBID(m.Func("foo").Entry()))

	fs := newMemFS()
	rec := &exitRecorder{}
	c, err := tracer.NewInstTrace(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvTracePath: "trace.pb",
			tracer.EnvInstStart: "0",
			tracer.EnvInstMax:   "3",
		}.get,
		Create: fs.create,
		Exit:   rec.exit,
	})
	require.NoError(t, err)
	got := execute(t, ctx, m, c, nil)
	assert.Equal(t, uint64(7), got, "the landing pad returns the thrown value")
	assert.Equal(t, []int{0}, rec.codes)

	events := decodeEvents(t, fs, "trace.0.pb")
	require.Len(t, events, 4)

	require.NotNil(t, events[0].GetCallStack())

	call := events[1].GetInst()
	require.NotNil(t, call)
	assert.Equal(t, invokeID, call.InstId)
	assert.NotNil(t, call.GetCall())

	bb := events[2].GetBb()
	require.NotNil(t, bb)
	assert.Equal(t, fooBB, bb.BbId)

	adj := events[3].GetStackAdjustment()
	require.NotNil(t, adj)
	assert.Equal(t, fooBB, adj.TopFrame.BbId)
	assert.Equal(t, uint64(1), adj.TopFrame.NumRetired)
	assert.Equal(t, uint64(1), adj.NumPoppedFrames)
	require.NotNil(t, adj.NewFrame, "the landing pad entry folds into the adjustment")
	assert.Equal(t, lpadBB, adj.NewFrame.BbId)
	assert.Equal(t, uint64(0), adj.NewFrame.NumRetired)
}

// Multi-interval from a SimPoints file: one output stream per interval,
// each beginning with a snapshot.
func TestInstTraceSimPointIntervals(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.Loop()
	instrumentInstTrace(t, ctx, m)

	spPath := filepath.Join(t.TempDir(), "simpoints.txt")
	require.NoError(t, os.WriteFile(spPath, []byte("100,199,0\n500,599,0\n"), 0666))

	fs := newMemFS()
	rec := &exitRecorder{}
	c, err := tracer.NewInstTrace(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvTracePath:    filepath.Join("out", "trace.pb"),
			tracer.EnvSimPointPath: spPath,
		}.get,
		Create: fs.create,
		Exit:   rec.exit,
	})
	require.NoError(t, err)
	execute(t, ctx, m, c, nil)
	assert.Equal(t, []int{0}, rec.codes)

	for _, path := range []string{
		filepath.Join("out", "trace.0.pb"),
		filepath.Join("out", "trace.1.pb"),
	} {
		events := decodeEvents(t, fs, path)
		require.NotEmpty(t, events, path)
		snap := events[0].GetCallStack()
		require.NotNil(t, snap, "%v begins with a snapshot", path)
		assert.Len(t, snap.Frames, 2, "main and loop are live at the interval start")
	}
	assert.Len(t, fs.files, 2)
}

// An interval of length one: the snapshot plus one tick's worth of events.
func TestInstTraceLengthOneInterval(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.Loop()
	instrumentInstTrace(t, ctx, m)

	fs := newMemFS()
	rec := &exitRecorder{}
	c, err := tracer.NewInstTrace(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvTracePath: "trace.pb",
			tracer.EnvInstStart: "5",
			tracer.EnvInstMax:   "1",
		}.get,
		Create: fs.create,
		Exit:   rec.exit,
	})
	require.NoError(t, err)
	execute(t, ctx, m, c, nil)
	assert.Equal(t, []int{0}, rec.codes)

	events := decodeEvents(t, fs, "trace.0.pb")
	require.NotEmpty(t, events)
	require.NotNil(t, events[0].GetCallStack())
}

// An open-ended interval flushes every event eagerly; the runtime never
// exits the process.
func TestInstTraceOpenEnded(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.CallReturn()
	instrumentInstTrace(t, ctx, m)

	fs := newMemFS()
	rec := &exitRecorder{}
	c, err := tracer.NewInstTrace(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvTracePath: "trace.pb",
			tracer.EnvInstStart: "0",
		}.get,
		Create: fs.create,
		Exit:   rec.exit,
	})
	require.NoError(t, err)
	execute(t, ctx, m, c, nil)
	assert.Empty(t, rec.codes, "an open interval never completes")

	events := decodeEvents(t, fs, "trace.0.pb")
	assert.Len(t, events, 4, "every event is flushed as it is emitted")
}

// Ticks outside every interval leave no events behind.
func TestInstTraceSkipsColdRegion(t *testing.T) {
	ctx := log.Testing(t)
	m := irtest.Loop()
	instrumentInstTrace(t, ctx, m)

	fs := newMemFS()
	rec := &exitRecorder{}
	c, err := tracer.NewInstTrace(ctx, tracer.Config{
		Getenv: fakeEnv{
			tracer.EnvTracePath: "trace.pb",
			tracer.EnvInstStart: "100",
			tracer.EnvInstMax:   "50",
		}.get,
		Create: fs.create,
		Exit:   rec.exit,
	})
	require.NoError(t, err)
	execute(t, ctx, m, c, nil)
	assert.Equal(t, []int{0}, rec.codes)

	events := decodeEvents(t, fs, "trace.0.pb")
	require.NotEmpty(t, events)
	require.NotNil(t, events[0].GetCallStack())

	// The snapshot reflects the call depth at instruction 100: main and
	// loop.
	assert.Len(t, events[0].GetCallStack().Frames, 2)
}
