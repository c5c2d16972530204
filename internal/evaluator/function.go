// Function, the evaluator's closure Value, lives here rather than in
// package value because it must reference both an env.Environment (its
// captured lexical scope) and an ast.Node (its body) — putting it in
// value would create value->env and value->ast import cycles, since
// both env and ast are built on top of value. Keeping Function (and the
// rest of the evaluator's call machinery) one level up is the same
// layering discipline the teacher uses by keeping pkg/vm's Block/
// Instance types out of pkg/ast entirely.
package evaluator

import (
	"fmt"

	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// Function is a user-defined function/method/lambda closure (spec.md
// §4.2: "a lambda literal records the currently active Environment").
type Function struct {
	name       string
	params     []ast.Param
	body       []ast.Statement
	closure    *env.Environment
	recv       value.Value // bound `this` for methods/scope-function blocks, nil for free functions
	recvName   string      // "this" normally, "it" for let/also/run-style single-arg binds
	declClass  string      // declaring class name, "" for free functions/lambdas
	visibility string
}

// NewFunction builds a closure capturing env at the point of declaration.
func NewFunction(name string, params []ast.Param, body []ast.Statement, closure *env.Environment) *Function {
	return &Function{name: name, params: params, body: body, closure: closure}
}

// BindReceiver returns a copy of f bound to recv under recvName — used
// for method dispatch (this) and scope functions (it/this).
func (f *Function) BindReceiver(recv value.Value, recvName string) *Function {
	bound := *f
	bound.recv = recv
	bound.recvName = recvName
	return &bound
}

func (f *Function) Arity() int { return len(f.params) }
func (f *Function) Name() string {
	if f.name == "" {
		return "<lambda>"
	}
	return f.name
}

func (f *Function) TypeName() string    { return "Function" }
func (f *Function) AsBool() bool        { return true }
func (f *Function) AsInt() int64        { return 0 }
func (f *Function) AsLong() int64       { return 0 }
func (f *Function) AsFloat() float32    { return 0 }
func (f *Function) AsDouble() float64   { return 0 }
func (f *Function) AsString() string    { return fmt.Sprintf("<function %s>", f.Name()) }
func (f *Function) Hash() uint64        { return value.String(fmt.Sprintf("%p", f)).Hash() }
func (f *Function) ToHost() interface{} { return f }
func (f *Function) IsNumber() bool      { return false }
func (f *Function) IsCollection() bool  { return false }
func (f *Function) Equals(o value.Value) bool {
	of, ok := o.(*Function)
	return ok && f == of
}

// controlSignal is how break/continue/return unwind through Eval's
// recursive-descent without Go panics, mirroring the teacher's use of a
// sentinel return-value pair (pkg/vm/vm.go returns (Value, error) and
// checks a dedicated returnSignal type) generalized to the three kinds
// Nova's control flow needs.
type controlSignal struct {
	kind  signalKind
	value value.Value // for return
}

type signalKind int

const (
	signalNone signalKind = iota
	signalBreak
	signalContinue
	signalReturn
)

// IsNone reports whether sig represents ordinary fall-through (no
// break/continue/return in flight) — the only part of controlSignal an
// embedder outside this package needs to observe, e.g. to reject a
// top-level break/continue/return escaping a compilation unit.
func (sig controlSignal) IsNone() bool { return sig.kind == signalNone }

// bindParams binds call arguments into a fresh child environment of the
// function's closure, applying defaults and vararg collection.
func bindParams(params []ast.Param, args []value.Value, closure *env.Environment, recv value.Value, recvName string) (*env.Environment, error) {
	callEnv := closure.NewChild()
	if recv != nil && recvName != "" {
		callEnv.DefineVal(recvName, recv)
	}
	// Kotlin-style implicit `it`: a lambda literal with no declared
	// parameter list binds its sole argument as `it` (spec.md §4.3's
	// lambda-literal shorthand), e.g. `xs.map { it * 2 }`.
	if len(params) == 0 && len(args) >= 1 {
		callEnv.DefineVal("it", args[0])
	}
	i := 0
	for pi, p := range params {
		if p.Vararg {
			rest := make([]value.Value, 0)
			for ; i < len(args); i++ {
				rest = append(rest, args[i])
			}
			callEnv.DefineVal(p.Name, value.NewList(rest))
			continue
		}
		if i < len(args) {
			callEnv.DefineVal(p.Name, args[i])
			i++
		} else if p.Default != nil {
			// Default expressions are evaluated lazily by the caller
			// (Call), which has access to eval(); Null is bound here as
			// a placeholder that Call replaces with the default.
			callEnv.DefineVal(p.Name, value.Null)
		} else {
			return nil, novaerr.Newf(novaerr.KindConstructorArgMismatch,
				"missing argument %q (position %d) calling function", p.Name, pi)
		}
	}
	return callEnv, nil
}

// Call invokes f with args. A self-tail-call occupying tail position of
// f's own body (spec.md §4.3.5) never recurses in Go: the trampoline
// below loops in place, folding the existing CallFrame instead of
// pushing a new one, so f(N) for arbitrarily large N holds a single Go
// stack frame and a single CallFrame. file/line identify the initial
// call site for the frame.
func (ev *Evaluator) Call(f *Function, args []value.Value, stack *callstack.Stack, file string, line int) (value.Value, error) {
	pushed := false
	defer func() {
		if pushed {
			stack.Pop()
		}
	}()

	for {
		if err := ev.Budget.CheckRecursion(stack.Size() + 1); err != nil {
			return nil, err
		}

		summary := paramSummary(f.params, args)
		if pushed {
			stack.FoldTailCall(summary)
		} else {
			stack.Push(callstack.Frame{
				FunctionName: f.Name(),
				SourceFile:   file,
				Line:         line,
				ParamSummary: summary,
			})
			pushed = true
		}

		callEnv, err := bindParams(f.params, args, f.closure, f.recv, f.recvName)
		if err != nil {
			return nil, err
		}
		// Fill in lazily-evaluated defaults now that we have an eval context.
		for i, p := range f.params {
			if !p.Vararg && i >= len(args) && p.Default != nil {
				dv, derr := ev.Eval(p.Default, callEnv, stack)
				if derr != nil {
					return nil, derr
				}
				callEnv.Redefine(p.Name, dv, true)
			}
		}

		out, err := ev.evalBodyTail(f.body, callEnv, stack, f)
		if err != nil {
			return nil, err
		}
		if out.args != nil {
			args = out.args
			continue
		}
		if out.sig.kind == signalReturn {
			return out.sig.value, nil
		}
		return out.value, nil
	}
}

func paramSummary(params []ast.Param, args []value.Value) string {
	s := ""
	for i := range params {
		if i > 0 {
			s += ", "
		}
		if i < len(args) {
			s += args[i].AsString()
		} else {
			s += "<default>"
		}
	}
	return s
}
