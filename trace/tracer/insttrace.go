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
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/core/log"
	"github.com/chrisliu/dg-transform/trace/trace_pb"
)

// serializeTESize bounds the event buffer when the active interval has a
// known end. Open-ended intervals flush after every event instead.
const serializeTESize = 1000

// pendingCall is a call site that has fired but whose callee has not yet
// been observed entering or returning.
type pendingCall struct {
	id     canon.InstID
	handle canon.CallID
	isReal bool // set once the callee's entry block is observed
}

func (p pendingCall) set() bool { return p.handle != canon.InvalidCallID }

// callFrame is one shadow call stack frame. numRetired counts the
// executable instructions retired in curBB since the block was entered.
type callFrame struct {
	curBB      canon.BBID
	numRetired uint64
	pending    pendingCall
}

func (f callFrame) String() string {
	s := fmt.Sprintf("Frame %d::%d", f.curBB, f.numRetired)
	if f.pending.set() {
		s += fmt.Sprintf(" (@%d, %d, isReal: %v)", f.pending.handle, f.pending.id, f.pending.isReal)
	}
	return s
}

// tickState stages the callbacks that fired before the current tick. At
// most one of each kind arrives per tick.
type tickState struct {
	bb struct {
		set         bool
		id          canon.BBID
		isFuncEntry bool
	}
	ret struct {
		handle     canon.CallID // invalid = not set
		numRetired uint64
	}
	call struct {
		id     canon.InstID
		handle canon.CallID // invalid = not set
	}
	mem struct {
		set     bool
		isLoad  bool
		id      canon.InstID
		addr    uint64
	}
}

// InstTrace reconstructs the dynamic call stack and emits an event stream
// for each assigned instruction interval.
type InstTrace struct {
	ctx   context.Context
	exit  func(int)
	clock clock.Clock

	curInstID     uint64
	curCallHandle canon.CallID

	iter  *intervalIter
	stack []callFrame
	tick  tickState

	events       []*trace_pb.TraceEvent
	canSerialize bool

	timeAllStart time.Time
}

var _ Context = (*InstTrace)(nil)

// NewInstTrace builds an InstTrace context from the environment. Intervals
// come from DG_INST_START / DG_INST_MAX, or DG_SIMPOINT_PATH, or default to
// the whole run; interval i writes to DG_TRACE_PATH with ".<i>" inserted
// before the extension.
func NewInstTrace(ctx context.Context, cfg Config) (*InstTrace, error) {
	cfg = cfg.orDefaults()

	intervals, err := traceIntervals(ctx, cfg.Getenv)
	if err != nil {
		return nil, err
	}
	path, err := envPath(cfg.Getenv, EnvTracePath)
	if err != nil {
		return nil, err
	}
	iter, err := newIntervalIter(intervals, path, cfg.Create)
	if err != nil {
		return nil, err
	}

	log.I(ctx, "Assigned Intervals:")
	for idx, iv := range intervals {
		log.I(ctx, "  %d. %v", idx+1, iv)
	}

	c := &InstTrace{
		ctx:           ctx,
		exit:          cfg.Exit,
		clock:         cfg.Clock,
		curCallHandle: canon.FirstCallID,
		iter:          iter,
	}

	if iter.done() {
		log.I(ctx, "No intervals to trace")
		c.exit(0)
		return c, nil
	}

	now := c.clock.Now()
	c.timeAllStart = now
	c.iter.timeFF = now
	return c, nil
}

// GetCallSite allocates a fresh handle for the call site and stages the
// call for the coming tick.
func (c *InstTrace) GetCallSite(id canon.InstID) canon.CallID {
	handle := c.curCallHandle
	c.curCallHandle++

	c.tick.call.id = id
	c.tick.call.handle = handle
	return handle
}

// RecordReturnFromCall stages the resumption after a call. Restore preludes
// run on paths where no call fired; those report the invalid handle and are
// ignored.
func (c *InstTrace) RecordReturnFromCall(handle canon.CallID, numRetiredInBB uint64) {
	if handle == canon.InvalidCallID {
		return
	}
	c.tick.ret.handle = handle
	c.tick.ret.numRetired = numRetiredInBB
}

// RecordBasicBlock stages a block entry.
func (c *InstTrace) RecordBasicBlock(id canon.BBID, isFuncEntry bool) {
	c.tick.bb.set = true
	c.tick.bb.id = id
	c.tick.bb.isFuncEntry = isFuncEntry
}

// RecordLoadInst stages a load.
func (c *InstTrace) RecordLoadInst(id canon.InstID, addr uint64) {
	c.tick.mem.set = true
	c.tick.mem.isLoad = true
	c.tick.mem.id = id
	c.tick.mem.addr = addr
}

// RecordStoreInst stages a store.
func (c *InstTrace) RecordStoreInst(id canon.InstID, addr uint64) {
	c.tick.mem.set = true
	c.tick.mem.isLoad = false
	c.tick.mem.id = id
	c.tick.mem.addr = addr
}

// IncDynamicInstCount applies the staged callbacks and retires one dynamic
// instruction.
//
// The staged effects describe branch/return/exception control flow that
// executed *before* this instruction, and are resolved in a fixed order:
// returns (plain or exception unwinding) first, then block entry, then the
// first-in-interval stack snapshot, then the instruction itself retires.
func (c *InstTrace) IncDynamicInstCount() {
	cur := c.curInstID
	c.curInstID++
	next := c.curInstID

	if c.iter.done() {
		c.tick = tickState{}
		return
	}

	isFirstInInterval := cur == c.iter.cur().start

	ignoreBBEnter := false
	if c.tick.ret.handle != canon.InvalidCallID {
		ignoreBBEnter = c.resolveReturn()
	}

	if !ignoreBBEnter && c.tick.bb.set {
		c.resolveBBEnter()
	}

	// If we entered a new interval, save the call stack *before* executing
	// this instruction.
	if isFirstInInterval {
		now := c.clock.Now()
		c.iter.timeStart = now
		log.I(c.ctx, "Interval %d %v", c.iter.idx, c.iter.cur())
		log.I(c.ctx, "[FF Time]    %v s", int64(now.Sub(c.iter.timeFF)/time.Second))
		log.I(c.ctx, "[Total Time] %v s", int64(now.Sub(c.timeAllStart)/time.Second))
		c.dumpCallStack()

		c.canSerialize = true
		c.serializeCallStack()
	}

	if len(c.stack) == 0 {
		panic("shadow call stack is empty at retire")
	}
	top := &c.stack[len(c.stack)-1]
	top.numRetired++

	if c.tick.call.handle != canon.InvalidCallID {
		if top.pending.set() {
			panic("call site fired with a pending call outstanding")
		}
		top.pending = pendingCall{id: c.tick.call.id, handle: c.tick.call.handle}
	}

	if c.tick.mem.set {
		c.serializeMemory(c.tick.mem.id, c.tick.mem.addr)
	}

	c.tick = tickState{}

	if !c.iter.cur().contains(cur) {
		return
	}

	// Check if the next instruction still belongs to the current interval.
	if !c.iter.cur().contains(next) {
		c.flushEvents()
		c.canSerialize = false

		now := c.clock.Now()
		log.I(c.ctx, "Finished Interval %d %v", c.iter.idx, c.iter.cur())
		log.I(c.ctx, " - Serialize count %d", c.iter.serialized)
		log.I(c.ctx, "[Trace Time] %v s", int64(now.Sub(c.iter.timeStart)/time.Second))

		done, err := c.iter.advance()
		if err != nil {
			log.F(c.ctx, true, "%v", err)
			return
		}
		if done {
			log.I(c.ctx, "Finished all intervals")
			c.exit(0)
			return
		}
		c.iter.timeFF = now
	}
}

// resolveReturn applies a staged return: either the callee was never traced
// (the handle is still pending on the top frame), or real frames are popped
// until the frame owning the handle surfaces. Returns true if the staged
// block entry was folded into the emitted stack adjustment.
func (c *InstTrace) resolveReturn() bool {
	if len(c.stack) == 0 {
		panic("return staged on an empty shadow stack")
	}

	callee := &c.stack[len(c.stack)-1]
	if callee.pending.handle == c.tick.ret.handle {
		// Case: called function was not traced.
		if callee.pending.isReal {
			panic("pending call became real without a frame push")
		}
		if !c.tick.bb.set && callee.numRetired != c.tick.ret.numRetired {
			panic(fmt.Sprintf("retire count mismatch resolving uninstrumented return: %d != %d",
				callee.numRetired, c.tick.ret.numRetired))
		}
		callee.pending = pendingCall{}
		return false
	}

	calleeBB := callee.curBB
	calleeRetired := callee.numRetired

	popped := uint64(0)
	for len(c.stack) > 0 && c.stack[len(c.stack)-1].pending.handle != c.tick.ret.handle {
		popped++
		c.stack = c.stack[:len(c.stack)-1]
	}
	if len(c.stack) == 0 {
		panic(fmt.Sprintf("no frame owns call handle %d during unwind", c.tick.ret.handle))
	}

	top := &c.stack[len(c.stack)-1]
	if !top.pending.isReal {
		panic("unwound to a frame whose pending call never entered")
	}
	top.pending = pendingCall{}
	top.numRetired = c.tick.ret.numRetired

	if c.tick.bb.set {
		if c.tick.bb.isFuncEntry {
			panic("function entry cannot fold into a stack adjustment")
		}
		top.curBB = c.tick.bb.id
		c.serializeStackAdjustNew(calleeBB, calleeRetired, popped, top.curBB, top.numRetired)
		return true
	}
	c.serializeStackAdjust(calleeBB, calleeRetired, popped)
	return false
}

// resolveBBEnter applies a staged block entry. A function entry promotes
// the caller's pending call and pushes a fresh frame; any other entry
// retargets the top frame.
func (c *InstTrace) resolveBBEnter() {
	if c.tick.bb.isFuncEntry {
		if len(c.stack) > 0 {
			top := &c.stack[len(c.stack)-1]
			if top.pending.set() {
				top.pending.isReal = true
				c.serializeCall(top.pending.id)
			} else {
				// Special case: control moved from a global initializer into
				// the actual entry function without a call site firing.
				if len(c.stack) != 1 {
					panic("function entry without a pending call on a deep stack")
				}
				c.serializeStackAdjust(top.curBB, top.numRetired, 1)
				c.stack = c.stack[:0]
			}
		}
		c.stack = append(c.stack, callFrame{curBB: c.tick.bb.id})
	} else {
		if len(c.stack) == 0 {
			panic("non-entry block entered on an empty shadow stack")
		}
		top := &c.stack[len(c.stack)-1]
		if top.pending.set() {
			panic("branch taken with a pending call outstanding")
		}
		top.curBB = c.tick.bb.id
		top.numRetired = 0
	}
	c.serializeBBEnter(c.tick.bb.id)
}

func (c *InstTrace) serializeCallStack() {
	if !c.canSerialize {
		panic("call stack snapshot outside an active interval")
	}
	frames := make([]*trace_pb.BBFrame, len(c.stack))
	for idx, f := range c.stack {
		frames[idx] = &trace_pb.BBFrame{
			BbId:       uint64(f.curBB),
			NumRetired: f.numRetired,
			IsCall:     f.pending.set() && f.pending.isReal,
		}
	}
	c.emit(&trace_pb.TraceEvent{Event: &trace_pb.TraceEvent_CallStack{
		CallStack: &trace_pb.CallStack{Frames: frames},
	}})
}

func (c *InstTrace) serializeStackAdjust(topBB canon.BBID, topNumRetired, numPopped uint64) {
	if !c.canSerialize {
		return
	}
	c.emit(&trace_pb.TraceEvent{Event: &trace_pb.TraceEvent_StackAdjustment{
		StackAdjustment: &trace_pb.StackAdjustment{
			TopFrame:        &trace_pb.BBFrame{BbId: uint64(topBB), NumRetired: topNumRetired},
			NumPoppedFrames: numPopped,
		},
	}})
}

func (c *InstTrace) serializeStackAdjustNew(topBB canon.BBID, topNumRetired, numPopped uint64, newBB canon.BBID, newNumRetired uint64) {
	if !c.canSerialize {
		return
	}
	c.emit(&trace_pb.TraceEvent{Event: &trace_pb.TraceEvent_StackAdjustment{
		StackAdjustment: &trace_pb.StackAdjustment{
			TopFrame:        &trace_pb.BBFrame{BbId: uint64(topBB), NumRetired: topNumRetired},
			NumPoppedFrames: numPopped,
			NewFrame:        &trace_pb.BBFrame{BbId: uint64(newBB), NumRetired: newNumRetired},
		},
	}})
}

func (c *InstTrace) serializeCall(id canon.InstID) {
	if !c.canSerialize {
		return
	}
	c.emit(&trace_pb.TraceEvent{Event: &trace_pb.TraceEvent_Inst{
		Inst: &trace_pb.DynamicInst{
			InstId: uint64(id),
			Kind:   &trace_pb.DynamicInst_Call{Call: &trace_pb.Call{}},
		},
	}})
}

func (c *InstTrace) serializeBBEnter(id canon.BBID) {
	if !c.canSerialize {
		return
	}
	c.emit(&trace_pb.TraceEvent{Event: &trace_pb.TraceEvent_Bb{
		Bb: &trace_pb.BBEnter{BbId: uint64(id)},
	}})
}

func (c *InstTrace) serializeMemory(id canon.InstID, addr uint64) {
	if !c.canSerialize {
		return
	}
	c.emit(&trace_pb.TraceEvent{Event: &trace_pb.TraceEvent_Inst{
		Inst: &trace_pb.DynamicInst{
			InstId: uint64(id),
			Kind:   &trace_pb.DynamicInst_Memory{Memory: &trace_pb.Memory{Address: addr}},
		},
	}})
}

// emit buffers an event, flushing eagerly when the interval end is unknown
// and on a full buffer otherwise.
func (c *InstTrace) emit(te *trace_pb.TraceEvent) {
	c.events = append(c.events, te)
	if !c.iter.cur().hasEnd || len(c.events) == serializeTESize {
		c.flushEvents()
	}
}

func (c *InstTrace) flushEvents() {
	for _, te := range c.events {
		if err := c.iter.w.Marshal(te); err != nil {
			log.F(c.ctx, true, "Writing trace event: %v", err)
		}
	}
	c.iter.serialized += uint64(len(c.events))
	c.events = c.events[:0]
	if err := c.iter.w.Flush(); err != nil {
		log.F(c.ctx, true, "Flushing trace output: %v", err)
	}
}

func (c *InstTrace) dumpCallStack() {
	log.D(c.ctx, "Call Stack:")
	if len(c.stack) == 0 {
		log.D(c.ctx, "  [empty]")
		return
	}
	for idx, f := range c.stack {
		log.D(c.ctx, "  [%d] %v", idx, f)
	}
}
