// Package callstack implements Nova's CallFrame and CallStack (spec.md
// §3.3, component C), including self-tail-call frame folding.
//
// The teacher's pkg/vm/vm.go keeps a []StackFrame purely for diagnostics
// (pushFrame/popFrame around every message send) and its
// pkg/vm/errors.go renders it innermost-first. Nova's evaluator is
// tree-walking rather than bytecode-stepped, so a frame corresponds to a
// function/method/lambda activation rather than a message send, and a
// frame additionally tracks tail_hits so self-tail-calls can reuse it in
// place per spec.md §4.3.5 instead of growing the stack.
package callstack

import "github.com/kristofer/nova/internal/novaerr"

// Frame is one activation record.
type Frame struct {
	FunctionName string
	SourceFile   string
	Line         int
	Column       int
	ParamSummary string
	TailHits     int // incremented on each self-tail-call fold, spec.md §3.3
}

// Stack is the call stack for one logical execution context (one
// Interpreter — spec.md §3.4/§5 gives each child interpreter its own).
type Stack struct {
	frames []Frame
	limit  int // frame-count cap applied only at format time, spec.md §3.3 default 16
}

// New creates an empty call stack. limit is the frame-omission threshold
// used when formatting a trace; 0 means use the spec default of 16.
func New(limit int) *Stack {
	if limit <= 0 {
		limit = 16
	}
	return &Stack{limit: limit}
}

// Push adds a new frame — called on every function/method/lambda
// invocation (spec.md §4.3 step 4), never for a self-tail-call.
func (s *Stack) Push(f Frame) {
	s.frames = append(s.frames, f)
}

// Pop removes the top frame.
func (s *Stack) Pop() {
	if len(s.frames) > 0 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Peek returns the top frame and whether the stack is non-empty.
func (s *Stack) Peek() (*Frame, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	return &s.frames[len(s.frames)-1], true
}

// Clear empties the stack (used between top-level REPL evaluations).
func (s *Stack) Clear() { s.frames = nil }

// Size reports the current depth — the recursion-depth enforcement point
// for security.Policy reads this (spec.md §4.7).
func (s *Stack) Size() int { return len(s.frames) }

// FoldTailCall implements spec.md §4.3.5: a self-tail-call never pushes
// a new frame. Instead it overwrites the current frame's parameter
// summary with the new call's arguments, increments tail_hits, and
// preserves the frame's original (outermost) source line.
func (s *Stack) FoldTailCall(newParamSummary string) {
	if len(s.frames) == 0 {
		return
	}
	top := &s.frames[len(s.frames)-1]
	top.ParamSummary = newParamSummary
	top.TailHits++
}

// Snapshot copies the current frames into novaerr.Frame records,
// outermost-first, for attaching to a thrown error (spec.md §4.8
// frame_snapshot).
func (s *Stack) Snapshot() []novaerr.Frame {
	out := make([]novaerr.Frame, len(s.frames))
	for i, f := range s.frames {
		out[i] = novaerr.Frame{
			FunctionName: f.FunctionName,
			SourceFile:   f.SourceFile,
			Line:         f.Line,
			Column:       f.Column,
			ParamSummary: f.ParamSummary,
			TailHits:     f.TailHits,
		}
	}
	return out
}

// Limit returns the configured frame-omission threshold.
func (s *Stack) Limit() int { return s.limit }
