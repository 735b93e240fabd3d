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

// Package trace_pb holds the wire messages of the sidecar, SimPoint profile
// and instruction trace streams.
//
// Hand-maintained; kept in sync with trace.proto.
package trace_pb

import (
	proto "github.com/golang/protobuf/proto"
)

// CanonicalBB is one record of the canonical identifier sidecar. Records are
// written in IR walk order so the sidecar can be replayed against the module.
type CanonicalBB struct {
	FunctionName   string `protobuf:"bytes,1,opt,name=function_name,json=functionName,proto3" json:"function_name,omitempty"`
	BasicBlockName string `protobuf:"bytes,2,opt,name=basic_block_name,json=basicBlockName,proto3" json:"basic_block_name,omitempty"`
	Id             uint64 `protobuf:"varint,3,opt,name=id,proto3" json:"id,omitempty"`
	InstStartId    uint64 `protobuf:"varint,4,opt,name=inst_start_id,json=instStartId,proto3" json:"inst_start_id,omitempty"`
}

func (m *CanonicalBB) Reset()         { *m = CanonicalBB{} }
func (m *CanonicalBB) String() string { return proto.CompactTextString(m) }
func (*CanonicalBB) ProtoMessage()    {}

func (m *CanonicalBB) GetFunctionName() string {
	if m != nil {
		return m.FunctionName
	}
	return ""
}

func (m *CanonicalBB) GetBasicBlockName() string {
	if m != nil {
		return m.BasicBlockName
	}
	return ""
}

func (m *CanonicalBB) GetId() uint64 {
	if m != nil {
		return m.Id
	}
	return 0
}

func (m *CanonicalBB) GetInstStartId() uint64 {
	if m != nil {
		return m.InstStartId
	}
	return 0
}

// BBInterval is one basic-block frequency window of a SimPoint profile.
type BBInterval struct {
	InstStart uint64            `protobuf:"varint,1,opt,name=inst_start,json=instStart,proto3" json:"inst_start,omitempty"`
	InstEnd   uint64            `protobuf:"varint,2,opt,name=inst_end,json=instEnd,proto3" json:"inst_end,omitempty"`
	Freq      map[uint64]uint64 `protobuf:"bytes,3,rep,name=freq,proto3" json:"freq,omitempty" protobuf_key:"varint,1,opt,name=key,proto3" protobuf_val:"varint,2,opt,name=value,proto3"`
}

func (m *BBInterval) Reset()         { *m = BBInterval{} }
func (m *BBInterval) String() string { return proto.CompactTextString(m) }
func (*BBInterval) ProtoMessage()    {}

func (m *BBInterval) GetInstStart() uint64 {
	if m != nil {
		return m.InstStart
	}
	return 0
}

func (m *BBInterval) GetInstEnd() uint64 {
	if m != nil {
		return m.InstEnd
	}
	return 0
}

func (m *BBInterval) GetFreq() map[uint64]uint64 {
	if m != nil {
		return m.Freq
	}
	return nil
}

// BBFrame is one shadow call stack frame.
type BBFrame struct {
	BbId       uint64 `protobuf:"varint,1,opt,name=bb_id,json=bbId,proto3" json:"bb_id,omitempty"`
	NumRetired uint64 `protobuf:"varint,2,opt,name=num_retired,json=numRetired,proto3" json:"num_retired,omitempty"`
	IsCall     bool   `protobuf:"varint,3,opt,name=is_call,json=isCall,proto3" json:"is_call,omitempty"`
}

func (m *BBFrame) Reset()         { *m = BBFrame{} }
func (m *BBFrame) String() string { return proto.CompactTextString(m) }
func (*BBFrame) ProtoMessage()    {}

func (m *BBFrame) GetBbId() uint64 {
	if m != nil {
		return m.BbId
	}
	return 0
}

func (m *BBFrame) GetNumRetired() uint64 {
	if m != nil {
		return m.NumRetired
	}
	return 0
}

func (m *BBFrame) GetIsCall() bool {
	if m != nil {
		return m.IsCall
	}
	return false
}

type CallStack struct {
	Frames []*BBFrame `protobuf:"bytes,1,rep,name=frames,proto3" json:"frames,omitempty"`
}

func (m *CallStack) Reset()         { *m = CallStack{} }
func (m *CallStack) String() string { return proto.CompactTextString(m) }
func (*CallStack) ProtoMessage()    {}

func (m *CallStack) GetFrames() []*BBFrame {
	if m != nil {
		return m.Frames
	}
	return nil
}

type StackAdjustment struct {
	TopFrame        *BBFrame `protobuf:"bytes,1,opt,name=top_frame,json=topFrame,proto3" json:"top_frame,omitempty"`
	NumPoppedFrames uint64   `protobuf:"varint,2,opt,name=num_popped_frames,json=numPoppedFrames,proto3" json:"num_popped_frames,omitempty"`
	NewFrame        *BBFrame `protobuf:"bytes,3,opt,name=new_frame,json=newFrame,proto3" json:"new_frame,omitempty"`
}

func (m *StackAdjustment) Reset()         { *m = StackAdjustment{} }
func (m *StackAdjustment) String() string { return proto.CompactTextString(m) }
func (*StackAdjustment) ProtoMessage()    {}

func (m *StackAdjustment) GetTopFrame() *BBFrame {
	if m != nil {
		return m.TopFrame
	}
	return nil
}

func (m *StackAdjustment) GetNumPoppedFrames() uint64 {
	if m != nil {
		return m.NumPoppedFrames
	}
	return 0
}

func (m *StackAdjustment) GetNewFrame() *BBFrame {
	if m != nil {
		return m.NewFrame
	}
	return nil
}

type BBEnter struct {
	BbId uint64 `protobuf:"varint,1,opt,name=bb_id,json=bbId,proto3" json:"bb_id,omitempty"`
}

func (m *BBEnter) Reset()         { *m = BBEnter{} }
func (m *BBEnter) String() string { return proto.CompactTextString(m) }
func (*BBEnter) ProtoMessage()    {}

func (m *BBEnter) GetBbId() uint64 {
	if m != nil {
		return m.BbId
	}
	return 0
}

type Call struct {
}

func (m *Call) Reset()         { *m = Call{} }
func (m *Call) String() string { return proto.CompactTextString(m) }
func (*Call) ProtoMessage()    {}

type Memory struct {
	Address uint64 `protobuf:"varint,1,opt,name=address,proto3" json:"address,omitempty"`
}

func (m *Memory) Reset()         { *m = Memory{} }
func (m *Memory) String() string { return proto.CompactTextString(m) }
func (*Memory) ProtoMessage()    {}

func (m *Memory) GetAddress() uint64 {
	if m != nil {
		return m.Address
	}
	return 0
}

type DynamicInst struct {
	InstId uint64 `protobuf:"varint,1,opt,name=inst_id,json=instId,proto3" json:"inst_id,omitempty"`
	// Types that are valid to be assigned to Kind:
	//	*DynamicInst_Call
	//	*DynamicInst_Memory
	Kind isDynamicInst_Kind `protobuf_oneof:"kind"`
}

func (m *DynamicInst) Reset()         { *m = DynamicInst{} }
func (m *DynamicInst) String() string { return proto.CompactTextString(m) }
func (*DynamicInst) ProtoMessage()    {}

type isDynamicInst_Kind interface {
	isDynamicInst_Kind()
}

type DynamicInst_Call struct {
	Call *Call `protobuf:"bytes,2,opt,name=call,proto3,oneof"`
}

type DynamicInst_Memory struct {
	Memory *Memory `protobuf:"bytes,3,opt,name=memory,proto3,oneof"`
}

func (*DynamicInst_Call) isDynamicInst_Kind() {}

func (*DynamicInst_Memory) isDynamicInst_Kind() {}

func (m *DynamicInst) GetInstId() uint64 {
	if m != nil {
		return m.InstId
	}
	return 0
}

func (m *DynamicInst) GetKind() isDynamicInst_Kind {
	if m != nil {
		return m.Kind
	}
	return nil
}

func (m *DynamicInst) GetCall() *Call {
	if x, ok := m.GetKind().(*DynamicInst_Call); ok {
		return x.Call
	}
	return nil
}

func (m *DynamicInst) GetMemory() *Memory {
	if x, ok := m.GetKind().(*DynamicInst_Memory); ok {
		return x.Memory
	}
	return nil
}

// XXX_OneofWrappers is for the internal use of the proto package.
func (*DynamicInst) XXX_OneofWrappers() []interface{} {
	return []interface{}{
		(*DynamicInst_Call)(nil),
		(*DynamicInst_Memory)(nil),
	}
}

// TraceEvent is one entry of an instruction trace stream.
type TraceEvent struct {
	// Types that are valid to be assigned to Event:
	//	*TraceEvent_CallStack
	//	*TraceEvent_StackAdjustment
	//	*TraceEvent_Bb
	//	*TraceEvent_Inst
	Event isTraceEvent_Event `protobuf_oneof:"event"`
}

func (m *TraceEvent) Reset()         { *m = TraceEvent{} }
func (m *TraceEvent) String() string { return proto.CompactTextString(m) }
func (*TraceEvent) ProtoMessage()    {}

type isTraceEvent_Event interface {
	isTraceEvent_Event()
}

type TraceEvent_CallStack struct {
	CallStack *CallStack `protobuf:"bytes,1,opt,name=call_stack,json=callStack,proto3,oneof"`
}

type TraceEvent_StackAdjustment struct {
	StackAdjustment *StackAdjustment `protobuf:"bytes,2,opt,name=stack_adjustment,json=stackAdjustment,proto3,oneof"`
}

type TraceEvent_Bb struct {
	Bb *BBEnter `protobuf:"bytes,3,opt,name=bb,proto3,oneof"`
}

type TraceEvent_Inst struct {
	Inst *DynamicInst `protobuf:"bytes,4,opt,name=inst,proto3,oneof"`
}

func (*TraceEvent_CallStack) isTraceEvent_Event() {}

func (*TraceEvent_StackAdjustment) isTraceEvent_Event() {}

func (*TraceEvent_Bb) isTraceEvent_Event() {}

func (*TraceEvent_Inst) isTraceEvent_Event() {}

func (m *TraceEvent) GetEvent() isTraceEvent_Event {
	if m != nil {
		return m.Event
	}
	return nil
}

func (m *TraceEvent) GetCallStack() *CallStack {
	if x, ok := m.GetEvent().(*TraceEvent_CallStack); ok {
		return x.CallStack
	}
	return nil
}

func (m *TraceEvent) GetStackAdjustment() *StackAdjustment {
	if x, ok := m.GetEvent().(*TraceEvent_StackAdjustment); ok {
		return x.StackAdjustment
	}
	return nil
}

func (m *TraceEvent) GetBb() *BBEnter {
	if x, ok := m.GetEvent().(*TraceEvent_Bb); ok {
		return x.Bb
	}
	return nil
}

func (m *TraceEvent) GetInst() *DynamicInst {
	if x, ok := m.GetEvent().(*TraceEvent_Inst); ok {
		return x.Inst
	}
	return nil
}

// XXX_OneofWrappers is for the internal use of the proto package.
func (*TraceEvent) XXX_OneofWrappers() []interface{} {
	return []interface{}{
		(*TraceEvent_CallStack)(nil),
		(*TraceEvent_StackAdjustment)(nil),
		(*TraceEvent_Bb)(nil),
		(*TraceEvent_Inst)(nil),
	}
}

func init() {
	proto.RegisterType((*CanonicalBB)(nil), "dg.trace.CanonicalBB")
	proto.RegisterType((*BBInterval)(nil), "dg.trace.BBInterval")
	proto.RegisterMapType((map[uint64]uint64)(nil), "dg.trace.BBInterval.FreqEntry")
	proto.RegisterType((*BBFrame)(nil), "dg.trace.BBFrame")
	proto.RegisterType((*CallStack)(nil), "dg.trace.CallStack")
	proto.RegisterType((*StackAdjustment)(nil), "dg.trace.StackAdjustment")
	proto.RegisterType((*BBEnter)(nil), "dg.trace.BBEnter")
	proto.RegisterType((*Call)(nil), "dg.trace.Call")
	proto.RegisterType((*Memory)(nil), "dg.trace.Memory")
	proto.RegisterType((*DynamicInst)(nil), "dg.trace.DynamicInst")
	proto.RegisterType((*TraceEvent)(nil), "dg.trace.TraceEvent")
}
