// Package novaerr defines the structured error record every Nova runtime
// failure is carried in, plus the call-stack-aware formatting applied at the
// outermost eval boundary.
//
// This is the tree-walking-evaluator analog of the teacher's
// pkg/vm/errors.go: a RuntimeError there pairs a message with a
// []StackFrame and renders "<message>\n\nStack trace:\n  at ...". Nova
// generalizes the pair into {Kind, Message, Payload, Cause, Frames} so the
// evaluator can classify failures (spec.md §7's taxonomy), preserve a host
// exception as Cause without losing it (spec.md §4.8), and mark policy
// failures as uncatchable by user try/catch.
package novaerr

import (
	"fmt"
	"strings"
)

// Kind buckets a runtime failure per spec.md §7. It is a taxonomy, not a
// concrete error type: callers switch on Kind, not on Go type identity.
type Kind int

const (
	KindUndefinedVariable Kind = iota
	KindMethodNotFound
	KindKeyNotFound
	KindNoSuchEnumEntry
	KindVariableAlreadyDefined
	KindConstructorArgMismatch
	KindAbstractInstantiation
	KindVisibilityError
	KindSealedExtensionForbidden
	KindCastFailure
	KindIncomparableOperands
	KindNotCallable
	KindDivisionByZero
	KindIndexOutOfBounds
	KindUser
	KindResultUnwrap
	KindSecurityDenied
	KindRecursionLimit
	KindLoopLimit
	KindTimeout
	KindHost
)

var kindNames = map[Kind]string{
	KindUndefinedVariable:      "UndefinedVariable",
	KindMethodNotFound:         "MethodNotFound",
	KindKeyNotFound:            "KeyNotFound",
	KindNoSuchEnumEntry:        "NoSuchEnumEntry",
	KindVariableAlreadyDefined: "VariableAlreadyDefined",
	KindConstructorArgMismatch: "ConstructorArgMismatch",
	KindAbstractInstantiation:  "AbstractInstantiation",
	KindVisibilityError:        "VisibilityError",
	KindSealedExtensionForbidden: "SealedExtensionForbidden",
	KindCastFailure:            "CastFailure",
	KindIncomparableOperands:   "IncomparableOperands",
	KindNotCallable:            "NotCallable",
	KindDivisionByZero:         "DivisionByZero",
	KindIndexOutOfBounds:       "IndexOutOfBounds",
	KindUser:                   "User",
	KindResultUnwrap:           "ResultUnwrap",
	KindSecurityDenied:         "SecurityDenied",
	KindRecursionLimit:         "RecursionLimit",
	KindLoopLimit:              "LoopLimit",
	KindTimeout:                "Timeout",
	KindHost:                   "Host",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// policyKinds are uncatchable by user try/catch per spec.md §4.7/§7: a
// budget breach must bypass any catch of the same apparent shape.
var policyKinds = map[Kind]bool{
	KindSecurityDenied: true,
	KindRecursionLimit: true,
	KindLoopLimit:      true,
	KindTimeout:        true,
}

// Frame is one entry of the frame_snapshot captured with an Error. It
// mirrors callstack.Frame's printable fields without importing that
// package (which itself imports novaerr for its own diagnostics).
type Frame struct {
	FunctionName string
	SourceFile   string
	Line         int
	Column       int
	ParamSummary string
	TailHits     int
}

// Error is the structured record every Nova failure is carried in.
type Error struct {
	Kind    Kind
	Message string
	Payload interface{} // the raw thrown value for `throw v`, or nil
	Cause   error       // preserved host-side exception, see hostinterop
	Frames  []Frame
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCause preserves the host-interop bridge's contract: the original
// cause must never be lost (spec.md §4.8).
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithPayload(payload interface{}) *Error {
	e.Payload = payload
	return e
}

func (e *Error) WithFrames(frames []Frame) *Error {
	e.Frames = frames
	return e
}

// Uncatchable reports whether user try/catch must let this error pass
// through untouched, per spec.md's Policy-kind taxonomy.
func (e *Error) Uncatchable() bool {
	return policyKinds[e.Kind]
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteString(")")
	}
	if len(e.Frames) > 0 {
		b.WriteString("\n\nCall Stack:\n")
		writeFrames(&b, e.Frames, 16)
	}
	return b.String()
}

// writeFrames renders frames outermost-first with a fixed limit, folding
// the middle when exceeded per spec.md §3.3 ("N frames omitted").
func writeFrames(b *strings.Builder, frames []Frame, limit int) {
	n := len(frames)
	if n <= limit {
		for _, f := range frames {
			writeFrame(b, f)
		}
		return
	}
	half := limit / 2
	for _, f := range frames[:half] {
		writeFrame(b, f)
	}
	omitted := n - limit
	fmt.Fprintf(b, "  ... %d frames omitted (tail-call collapsed or depth-folded) ...\n", omitted)
	for _, f := range frames[n-half:] {
		writeFrame(b, f)
	}
}

func writeFrame(b *strings.Builder, f Frame) {
	fmt.Fprintf(b, "  at %s(%s:%d:%d) [params: %s]", f.FunctionName, f.SourceFile, f.Line, f.Column, f.ParamSummary)
	if f.TailHits > 0 {
		fmt.Fprintf(b, " (%d tail-call frames omitted)", f.TailHits)
	}
	b.WriteString("\n")
}

// Is allows errors.Is(err, novaerr.New(KindDivisionByZero, "")) style kind
// matching in catch-arm type tests.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
