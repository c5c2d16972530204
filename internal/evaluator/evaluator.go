// Package evaluator implements Nova's tree-walking evaluator (spec.md
// §4.3, component F/the interpreter's core): dispatch over every AST
// node kind, method resolution, operator dispatch, null-safety
// operators, control flow, destructuring, pipeline/placeholder, partial
// application, chained comparison, scope functions, and tail-call
// elimination wired into internal/callstack.
//
// The teacher's pkg/vm/vm.go is a bytecode interpreter (a `for`-loop
// over compiled instructions with an explicit operand stack). Nova's
// evaluator keeps the same overall shape — one big per-node-kind
// dispatch, an explicit CallStack pushed/popped around every
// activation, structured errors threaded as Go `error` returns rather
// than panics — but dispatches directly over ast.Node instead of a
// bytecode stream, since spec.md §6 separates `precompile_to_mir` from
// tree evaluation only as an optional two-phase API, not
// as the primary execution path.
package evaluator

import (
	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/classes"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/hostinterop"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/security"
	"github.com/kristofer/nova/internal/value"
)

// ExtensionKey identifies a registered extension function/property by
// the receiver's static-or-runtime type name, its name, and arity
// (spec.md §4.3.1 step 3: "keyed by (receiver_static_or_runtime_type,
// method_name, arity)").
type ExtensionKey struct {
	TypeName string
	Name     string
	Arity    int
}

// Evaluator holds everything one logical execution context needs that
// is not per-call (the CallStack and Environment chain are per-call /
// per-scope and threaded explicitly through Eval instead). A fresh
// Evaluator is cheap; interpreter.Interpreter owns one per child
// interpreter (spec.md §3.4/§5's per-thread isolation).
type Evaluator struct {
	Budget     *security.Budget
	Bridge     *hostinterop.Bridge
	Extensions map[ExtensionKey]*Function
	Processors map[string]*Function // user-registered annotation-processor registry, spec.md §4.3.11

	// NativeProcessors holds the built-in @data/@builder annotation
	// processors (and any host-registered Go-native ones); checked before
	// Processors, so a Processors entry sharing a native name is not run.
	NativeProcessors map[string]func(ev *Evaluator, cd *classes.ClassDef, args []value.Value) error
	Natives    map[string]NativeFn
	DeclUnit   int // increments once per top-level eval() call, spec.md §4.4 sealed enforcement

	// Classes/Interfaces is a flat, program-wide name registry so `is
	// Type`/`as Type` and superclass/interface lookups work without
	// threading an environment through every call site; class/interface
	// declarations are also bound as ordinary values in their declaring
	// scope for construction/companion access.
	Classes    map[string]*classes.ClassDef
	Interfaces map[string]*classes.Interface
}

// NativeFn is a host-registered function (spec.md §6's register_native/
// register_all), distinct from builtins.NativeFunc only in that it also
// receives the evaluator/env/stack for natives that need to call back
// into Nova (e.g. a native higher-order function).
type NativeFn func(ev *Evaluator, args []value.Value, scope *env.Environment, stack *callstack.Stack) (value.Value, error)

func New() *Evaluator {
	ev := &Evaluator{
		Extensions: map[ExtensionKey]*Function{},
		Processors: map[string]*Function{},
		Natives:    map[string]NativeFn{},
		Classes:    map[string]*classes.ClassDef{},
		Interfaces: map[string]*classes.Interface{},
	}
	ev.NativeProcessors = defaultAnnotationProcessors()
	return ev
}

// Eval dispatches a single expression node to a Value. Statement-only
// nodes are rejected here; EvalStatement handles the full node set.
func (ev *Evaluator) Eval(n ast.Expression, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	if err := ev.Budget.CheckTimeout(); err != nil {
		return nil, err
	}
	switch node := n.(type) {
	case *ast.Literal:
		return evalLiteral(node), nil
	case *ast.Identifier:
		return scope.Get(node.Name)
	case *ast.StringInterp:
		return ev.evalStringInterp(node, scope, stack)
	case *ast.Binary:
		return ev.evalBinary(node, scope, stack)
	case *ast.Unary:
		return ev.evalUnary(node, scope, stack)
	case *ast.ChainedComparison:
		return ev.evalChainedComparison(node, scope, stack)
	case *ast.TernaryExpr:
		if truthy, err := ev.evalTruthy(node.Cond, scope, stack); err != nil {
			return nil, err
		} else if truthy {
			return ev.Eval(node.Then, scope, stack)
		}
		return ev.Eval(node.Else, scope, stack)
	case *ast.Elvis:
		left, err := ev.Eval(node.Left, scope, stack)
		if err != nil {
			return nil, err
		}
		if value.IsNull(left) {
			return ev.Eval(node.Right, scope, stack)
		}
		return left, nil
	case *ast.ErrorPropagation:
		return ev.evalErrorPropagation(node, scope, stack)
	case *ast.Pipeline:
		return ev.evalPipeline(node, scope, stack)
	case *ast.Placeholder:
		return nil, novaerr.New(novaerr.KindUser, "_ used outside a pipeline/partial-application context")
	case *ast.PartialApp:
		return ev.evalPartialApp(node, scope, stack)
	case *ast.Call:
		return ev.evalCall(node, scope, stack)
	case *ast.MemberAccess:
		return ev.evalMemberAccess(node, scope, stack)
	case *ast.MethodCall:
		return ev.evalMethodCall(node, scope, stack)
	case *ast.IndexAccess:
		return ev.evalIndexAccess(node, scope, stack)
	case *ast.ListLit:
		return ev.evalListLit(node, scope, stack)
	case *ast.MapLit:
		return ev.evalMapLit(node, scope, stack)
	case *ast.RangeLit:
		return ev.evalRangeLit(node, scope, stack)
	case *ast.LambdaLit:
		return NewFunction("", node.Params, node.Body, scope), nil
	case *ast.ScopeShorthand:
		return ev.evalScopeShorthand(node, scope, stack)
	case *ast.MethodRef:
		return ev.evalMethodRef(node, scope, stack)
	case *ast.ConstructorRef:
		return ev.evalConstructorRef(node, scope, stack)
	case *ast.IfExpr:
		v, sig, err := ev.evalIfAsExpr(node, scope, stack)
		if err != nil || sig.kind != signalNone {
			return propagateOrNil(v, sig, err)
		}
		return v, nil
	case *ast.WhenExpr:
		v, sig, err := ev.evalWhen(node, scope, stack)
		if err != nil || sig.kind != signalNone {
			return propagateOrNil(v, sig, err)
		}
		return v, nil
	case *ast.TryCatchFinally:
		v, sig, err := ev.evalTry(node, scope, stack)
		if err != nil || sig.kind != signalNone {
			return propagateOrNil(v, sig, err)
		}
		return v, nil
	case *ast.IfLet:
		v, sig, err := ev.evalIfLet(node, scope, stack)
		if err != nil || sig.kind != signalNone {
			return propagateOrNil(v, sig, err)
		}
		return v, nil
	}
	return nil, novaerr.Newf(novaerr.KindUser, "unsupported expression node %T", n)
}

// propagateOrNil turns a non-return control signal escaping an
// expression-context evaluation (e.g. `break` inside the branch of an
// `if` used as an expression) into an error, since break/continue are
// only legal inside an enclosing loop; signalReturn is allowed to
// surface since if/when/try are themselves expressions nested in a
// function body that a `return` inside a branch may legitimately unwind
// through — evalBlock is the one that actually interprets signalReturn.
func propagateOrNil(v value.Value, sig controlSignal, err error) (value.Value, error) {
	if err != nil {
		return nil, err
	}
	if sig.kind == signalReturn {
		return nil, &returnUnwind{sig}
	}
	return nil, novaerr.New(novaerr.KindUser, "break/continue used outside a loop")
}

// returnUnwind threads a pending return signal up through Eval's
// expression-typed return path so evalBlock (which only calls
// EvalStatement) can observe it; EvalStatement evaluates every
// ExpressionStatement through evalExprUnwrapReturn, which unwraps this
// sentinel type back into a controlSignal.
type returnUnwind struct{ sig controlSignal }

func (r *returnUnwind) Error() string { return "internal: return unwind (not a user-visible error)" }

func evalLiteral(l *ast.Literal) value.Value {
	switch l.Kind {
	case "null":
		return value.Null
	case "unit":
		return value.Unit
	case "bool":
		return value.NewBool(l.Bool)
	case "int":
		return value.NewInt(l.Int)
	case "long":
		return value.NewLong(l.Int)
	case "float":
		return value.NewFloat(float32(l.Float))
	case "double":
		return value.NewDouble(l.Float)
	case "char":
		return value.NewChar(l.Char)
	default:
		return value.NewString(l.Str)
	}
}

func (ev *Evaluator) evalTruthy(e ast.Expression, scope *env.Environment, stack *callstack.Stack) (bool, error) {
	v, err := ev.Eval(e, scope, stack)
	if err != nil {
		return false, err
	}
	return value.Truthy(v), nil
}

func (ev *Evaluator) evalStringInterp(n *ast.StringInterp, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	var b []byte
	for i, part := range n.Parts {
		b = append(b, part...)
		if i < len(n.Exprs) {
			v, err := ev.Eval(n.Exprs[i], scope, stack)
			if err != nil {
				return nil, err
			}
			b = append(b, v.AsString()...)
		}
	}
	return value.NewString(string(b)), nil
}

func (ev *Evaluator) evalListLit(n *ast.ListLit, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	elems := make([]value.Value, 0, len(n.Elements))
	for _, e := range n.Elements {
		if sp, ok := e.(*ast.SpreadArg); ok {
			v, err := ev.Eval(sp.Value, scope, stack)
			if err != nil {
				return nil, err
			}
			lst, ok := v.(*value.List)
			if !ok {
				return nil, novaerr.New(novaerr.KindCastFailure, "spread target is not a List")
			}
			elems = append(elems, lst.Elems...)
			continue
		}
		v, err := ev.Eval(e, scope, stack)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return value.NewList(elems), nil
}

func (ev *Evaluator) evalMapLit(n *ast.MapLit, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	m := value.NewMap()
	for _, entry := range n.Entries {
		k, err := ev.Eval(entry.Key, scope, stack)
		if err != nil {
			return nil, err
		}
		v, err := ev.Eval(entry.Value, scope, stack)
		if err != nil {
			return nil, err
		}
		m.Set(k, v)
	}
	return m, nil
}

func (ev *Evaluator) evalRangeLit(n *ast.RangeLit, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	start, err := ev.Eval(n.Start, scope, stack)
	if err != nil {
		return nil, err
	}
	end, err := ev.Eval(n.End, scope, stack)
	if err != nil {
		return nil, err
	}
	return value.Range{Start: start.AsLong(), End: end.AsLong(), Inclusive: n.Inclusive}, nil
}

func (ev *Evaluator) evalErrorPropagation(n *ast.ErrorPropagation, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	v, err := ev.Eval(n.Operand, scope, stack)
	if err != nil {
		return nil, err
	}
	if value.IsNull(v) {
		return nil, &returnUnwind{controlSignal{kind: signalReturn, value: value.Null}}
	}
	if r, ok := v.(value.Result); ok && !r.IsOk {
		wrapped := value.Result{IsOk: false, Err: r.Err}
		return nil, &returnUnwind{controlSignal{kind: signalReturn, value: wrapped}}
	}
	if r, ok := v.(value.Result); ok {
		return r.Value, nil
	}
	return v, nil
}
