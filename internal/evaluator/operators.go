package evaluator

import (
	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/classes"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// operatorMethodNames maps a binary token to the user-overload method
// name the left operand's class may define (spec.md §4.3.2).
var operatorMethodNames = map[string]string{
	"+": "plus", "-": "minus", "*": "times", "/": "div", "%": "rem",
}

func (ev *Evaluator) evalBinary(n *ast.Binary, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	// && and || short-circuit without evaluating the right operand
	// (spec.md §4.1).
	if n.Op == "&&" {
		l, err := ev.evalTruthy(n.Left, scope, stack)
		if err != nil || !l {
			return value.NewBool(false), err
		}
		r, err := ev.evalTruthy(n.Right, scope, stack)
		return value.NewBool(r), err
	}
	if n.Op == "||" {
		l, err := ev.evalTruthy(n.Left, scope, stack)
		if err != nil {
			return nil, err
		}
		if l {
			return value.NewBool(true), nil
		}
		r, err := ev.evalTruthy(n.Right, scope, stack)
		return value.NewBool(r), err
	}
	if n.Op == "in" {
		left, err := ev.Eval(n.Left, scope, stack)
		if err != nil {
			return nil, err
		}
		right, err := ev.Eval(n.Right, scope, stack)
		if err != nil {
			return nil, err
		}
		return ev.evalContains(left, right, scope, stack)
	}

	left, err := ev.Eval(n.Left, scope, stack)
	if err != nil {
		return nil, err
	}
	right, err := ev.Eval(n.Right, scope, stack)
	if err != nil {
		return nil, err
	}
	return ev.applyBinaryOp(n.Op, left, right, scope, stack)
}

func (ev *Evaluator) evalContains(container, item value.Value, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	switch c := container.(type) {
	case value.Range:
		return value.NewBool(c.Contains(item.AsLong())), nil
	case *value.List:
		for _, e := range c.Elems {
			if e.Equals(item) {
				return value.NewBool(true), nil
			}
		}
		return value.NewBool(false), nil
	case *value.Map:
		_, ok := c.Get(item)
		return value.NewBool(ok), nil
	case value.String:
		return value.NewBool(containsRune(string(c), item)), nil
	default:
		if fn, ok := ev.resolveUserMethod(container, "contains", 1); ok {
			return ev.callBound(fn, container, []value.Value{item}, stack, "", 0)
		}
		return nil, novaerr.Newf(novaerr.KindMethodNotFound, "'in' is not supported on %s", container.TypeName())
	}
}

func containsRune(s string, item value.Value) bool {
	sub, ok := item.(value.String)
	if !ok {
		return false
	}
	return len(sub) == 0 || stringContains(s, string(sub))
}

func stringContains(s, sub string) bool {
	return len(sub) <= len(s) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// applyBinaryOp implements spec.md §4.1/§4.3.2's dispatch order: a
// user-defined operator method on the left operand's class wins first,
// then the built-in numeric/string/collection semantics.
func (ev *Evaluator) applyBinaryOp(op string, left, right value.Value, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	if methodName, ok := operatorMethodNames[op]; ok {
		if fn, ok := ev.resolveUserMethod(left, methodName, 1); ok {
			return ev.callBound(fn, left, []value.Value{right}, stack, "", 0)
		}
	}
	switch op {
	case "+":
		return ev.evalPlus(left, right)
	case "-":
		return ev.arith(left, right, func(a, b float64) float64 { return a - b })
	case "*":
		return ev.arith(left, right, func(a, b float64) float64 { return a * b })
	case "/":
		return ev.evalDiv(left, right)
	case "%":
		return ev.evalRem(left, right)
	case "==":
		return value.NewBool(left.Equals(right)), nil
	case "!=":
		return value.NewBool(!left.Equals(right)), nil
	case "<", "<=", ">", ">=":
		return ev.evalCompare(op, left, right)
	}
	return nil, novaerr.Newf(novaerr.KindUser, "unknown operator %q", op)
}

func (ev *Evaluator) evalPlus(left, right value.Value) (value.Value, error) {
	if ls, ok := left.(value.String); ok {
		return value.NewString(string(ls) + right.AsString()), nil
	}
	if _, ok := right.(value.String); ok {
		return value.NewString(left.AsString() + right.AsString()), nil
	}
	if ll, ok := left.(*value.List); ok {
		if rl, ok := right.(*value.List); ok {
			out := make([]value.Value, 0, len(ll.Elems)+len(rl.Elems))
			out = append(out, ll.Elems...)
			out = append(out, rl.Elems...)
			return value.NewList(out), nil
		}
	}
	if lm, ok := left.(*value.Map); ok {
		if rm, ok := right.(*value.Map); ok {
			return lm.Merge(rm), nil
		}
	}
	if left.IsNumber() && right.IsNumber() {
		return ev.arith(left, right, func(a, b float64) float64 { return a + b })
	}
	return nil, novaerr.Newf(novaerr.KindUser, "'+' is not supported between %s and %s", left.TypeName(), right.TypeName())
}

// arith promotes both operands to the widest numeric rank (spec.md
// §4.1's lattice Int < Long < Float < Double) and applies fn, then
// narrows the result back down, except Int results that overflow the
// 32-bit range, which promote to Long (SPEC_FULL.md open question (a)).
func (ev *Evaluator) arith(left, right value.Value, fn func(a, b float64) float64) (value.Value, error) {
	ln, lok := left.(value.Numeric)
	rn, rok := right.(value.Numeric)
	if !lok || !rok {
		return nil, novaerr.Newf(novaerr.KindCastFailure, "arithmetic requires numeric operands, got %s and %s", left.TypeName(), right.TypeName())
	}
	rank := value.PromoteRank(ln, rn)
	result := fn(left.AsDouble(), right.AsDouble())
	return narrowNumeric(rank, result), nil
}

func narrowNumeric(rank int, result float64) value.Value {
	switch rank {
	case 0: // rankInt
		i := int64(result)
		if i < -2147483648 || i > 2147483647 {
			return value.NewLong(i)
		}
		return value.NewInt(i)
	case 1:
		return value.NewLong(int64(result))
	case 2:
		return value.NewFloat(float32(result))
	default:
		return value.NewDouble(result)
	}
}

func (ev *Evaluator) evalDiv(left, right value.Value) (value.Value, error) {
	ln, lok := left.(value.Numeric)
	rn, rok := right.(value.Numeric)
	if !lok || !rok {
		return nil, novaerr.Newf(novaerr.KindCastFailure, "'/' requires numeric operands")
	}
	rank := value.PromoteRank(ln, rn)
	if rank <= 1 && right.AsDouble() == 0 {
		return nil, novaerr.New(novaerr.KindDivisionByZero, "division by zero")
	}
	return narrowNumeric(rank, left.AsDouble()/right.AsDouble()), nil
}

// evalRem implements truncation-toward-zero modulo (spec.md §4.1).
func (ev *Evaluator) evalRem(left, right value.Value) (value.Value, error) {
	ln, lok := left.(value.Numeric)
	rn, rok := right.(value.Numeric)
	if !lok || !rok {
		return nil, novaerr.Newf(novaerr.KindCastFailure, "'%%' requires numeric operands")
	}
	rank := value.PromoteRank(ln, rn)
	if rank <= 1 {
		r := right.AsLong()
		if r == 0 {
			return nil, novaerr.New(novaerr.KindDivisionByZero, "division by zero")
		}
		l := left.AsLong()
		return narrowNumeric(rank, float64(l%r)), nil
	}
	a, b := left.AsDouble(), right.AsDouble()
	q := float64(int64(a / b))
	return narrowNumeric(rank, a-q*b), nil
}

func (ev *Evaluator) evalCompare(op string, left, right value.Value) (value.Value, error) {
	cmp, err := ev.compareValues(left, right)
	if err != nil {
		return nil, err
	}
	switch op {
	case "<":
		return value.NewBool(cmp < 0), nil
	case "<=":
		return value.NewBool(cmp <= 0), nil
	case ">":
		return value.NewBool(cmp > 0), nil
	default:
		return value.NewBool(cmp >= 0), nil
	}
}

// compareValues implements spec.md §4.1's comparison dispatch: numeric
// via widest rank, strings lexicographically, else a user compareTo, or
// IncomparableOperands.
func (ev *Evaluator) compareValues(left, right value.Value) (int, error) {
	if ln, ok := left.(value.Numeric); ok {
		if rn, ok := right.(value.Numeric); ok {
			_ = rn
			a, b := left.AsDouble(), right.AsDouble()
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			default:
				return 0, nil
			}
		}
		_ = ln
	}
	if ls, ok := left.(value.String); ok {
		if rs, ok := right.(value.String); ok {
			switch {
			case ls < rs:
				return -1, nil
			case ls > rs:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if fn, ok := ev.resolveUserMethod(left, "compareTo", 1); ok {
		result, err := ev.callBound(fn, left, []value.Value{right}, nil, "", 0)
		if err != nil {
			return 0, err
		}
		return int(result.AsInt()), nil
	}
	return 0, novaerr.Newf(novaerr.KindIncomparableOperands, "cannot compare %s and %s", left.TypeName(), right.TypeName())
}

func (ev *Evaluator) evalUnary(n *ast.Unary, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	if n.Op == "++" || n.Op == "--" {
		return ev.evalIncDec(n, scope, stack)
	}
	v, err := ev.Eval(n.Operand, scope, stack)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "!":
		return value.NewBool(!value.Truthy(v)), nil
	case "-":
		if fn, ok := ev.resolveUserMethod(v, "unaryMinus", 0); ok {
			return ev.callBound(fn, v, nil, stack, "", 0)
		}
		if num, ok := v.(value.Numeric); ok {
			return narrowNumeric(value.PromoteRank(num, num), -v.AsDouble()), nil
		}
		return nil, novaerr.Newf(novaerr.KindCastFailure, "unary '-' requires a number, got %s", v.TypeName())
	case "+":
		if fn, ok := ev.resolveUserMethod(v, "unaryPlus", 0); ok {
			return ev.callBound(fn, v, nil, stack, "", 0)
		}
		return v, nil
	}
	return nil, novaerr.Newf(novaerr.KindUser, "unknown unary operator %q", n.Op)
}

func (ev *Evaluator) evalIncDec(n *ast.Unary, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	id, ok := n.Operand.(*ast.Identifier)
	if !ok {
		return nil, novaerr.New(novaerr.KindUser, "++/-- require a variable operand")
	}
	cur, err := scope.Get(id.Name)
	if err != nil {
		return nil, err
	}
	methodName := "inc"
	if n.Op == "--" {
		methodName = "dec"
	}
	var next value.Value
	if fn, ok := ev.resolveUserMethod(cur, methodName, 0); ok {
		next, err = ev.callBound(fn, cur, nil, stack, "", 0)
	} else if num, ok := cur.(value.Numeric); ok {
		delta := 1.0
		if n.Op == "--" {
			delta = -1.0
		}
		next = narrowNumeric(value.PromoteRank(num, num), cur.AsDouble()+delta)
	} else {
		return nil, novaerr.Newf(novaerr.KindCastFailure, "++/-- require a number or inc/dec method on %s", cur.TypeName())
	}
	if err != nil {
		return nil, err
	}
	if err := scope.Assign(id.Name, next); err != nil {
		return nil, err
	}
	if n.Postfix {
		return cur, nil
	}
	return next, nil
}

// evalChainedComparison implements spec.md §4.3.9: `a < b < c` becomes
// `(a<b) && (b<c)` with each shared middle operand evaluated once.
func (ev *Evaluator) evalChainedComparison(n *ast.ChainedComparison, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	vals := make([]value.Value, len(n.Operands))
	for i, o := range n.Operands {
		v, err := ev.Eval(o, scope, stack)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	for i, op := range n.Ops {
		result, err := ev.applyBinaryOp(op, vals[i], vals[i+1], scope, stack)
		if err != nil {
			return nil, err
		}
		if !value.Truthy(result) {
			return value.NewBool(false), nil
		}
	}
	return value.NewBool(true), nil
}

// resolveUserMethod looks for a user-class operator-overload method on
// the given arity, used by applyBinaryOp/evalUnary before falling back
// to built-in semantics (spec.md §4.3.2).
func (ev *Evaluator) resolveUserMethod(recv value.Value, name string, arity int) (*Function, bool) {
	inst, ok := recv.(*classes.Instance)
	if !ok {
		return nil, false
	}
	m, ok := inst.Class.ResolveMethod(name)
	if !ok {
		return nil, false
	}
	fn, ok := m.Fn.(*Function)
	if !ok || fn.Arity() != arity {
		return nil, false
	}
	return fn, true
}

func (ev *Evaluator) callBound(fn *Function, recv value.Value, args []value.Value, stack *callstack.Stack, file string, line int) (value.Value, error) {
	if stack == nil {
		stack = callstack.New(0)
	}
	bound := fn.BindReceiver(recv, "this")
	return ev.Call(bound, args, stack, file, line)
}
