// Tail-call detection (spec.md §4.3.5): for a call expression in tail
// position of a user function body, where the callee is the same
// function (self-recursion), Function.Call folds the current CallFrame
// and restarts in place instead of recursing. Tail position is: the
// last expression of the function body, or the last expression of a
// branch of an if/when/try that is itself in tail position (a try with
// a non-empty finally never qualifies, since finally must still run
// after control returns from the call).
//
// This file keeps the detection logic separate from evalBlock/
// evalIfAsExpr/evalWhen/evalTry: those remain the ordinary, non-tail
// evaluators used everywhere else (loop bodies, non-tail statements,
// nested lambdas), while evalBodyTail and friends are only ever invoked
// from Function.Call's trampoline on the single statement occupying
// tail position.
package evaluator

import (
	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// tailOutcome is evalBodyTail's result: either an ordinary (value,
// signal) pair, or — when args is non-nil — a detected self-tail-call
// whose already-evaluated arguments Function.Call's trampoline should
// restart the loop with.
type tailOutcome struct {
	value value.Value
	sig   controlSignal
	args  []value.Value
}

// evalBodyTail runs a function body with tail-call detection enabled
// for its last statement. self identifies the currently-executing
// Function so only a genuine self-recursive call in tail position
// folds; pass nil to disable detection (e.g. for constructors/init
// blocks, which spec.md never asks to be tail-call eligible).
func (ev *Evaluator) evalBodyTail(stmts []ast.Statement, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, error) {
	for i, s := range stmts {
		if i != len(stmts)-1 {
			v, sig, err := ev.EvalStatement(s, scope, stack)
			if err != nil {
				return tailOutcome{}, err
			}
			if sig.kind != signalNone {
				return tailOutcome{value: v, sig: sig}, nil
			}
			continue
		}
		return ev.evalStmtTail(s, scope, stack, self)
	}
	return tailOutcome{value: value.Unit}, nil
}

// evalStmtTail evaluates s, which occupies tail position in self's
// body.
func (ev *Evaluator) evalStmtTail(s ast.Statement, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, error) {
	switch node := s.(type) {
	case *ast.ExpressionStatement:
		return ev.evalExprTail(node.Expr, scope, stack, self)
	case *ast.ReturnStmt:
		if node.Value == nil {
			return tailOutcome{sig: controlSignal{kind: signalReturn, value: value.Unit}}, nil
		}
		out, err := ev.evalExprTail(node.Value, scope, stack, self)
		if err != nil {
			return tailOutcome{}, err
		}
		if out.args != nil {
			return out, nil
		}
		return tailOutcome{sig: controlSignal{kind: signalReturn, value: out.value}}, nil
	case *ast.IfExpr:
		return ev.tailIf(node, scope, stack, self)
	case *ast.WhenExpr:
		return ev.tailWhen(node, scope, stack, self)
	case *ast.TryCatchFinally:
		return ev.tailTry(node, scope, stack, self)
	case *ast.IfLet:
		return ev.tailIfLet(node, scope, stack, self)
	default:
		v, sig, err := ev.EvalStatement(s, scope, stack)
		return tailOutcome{value: v, sig: sig}, err
	}
}

// evalExprTail evaluates e, an expression occupying tail position. The
// only shape that can actually fold is a direct self-recursive Call;
// everything else either forwards tail position into a nested branch
// or falls back to ordinary expression evaluation.
func (ev *Evaluator) evalExprTail(e ast.Expression, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, error) {
	switch node := e.(type) {
	case *ast.Call:
		if self != nil && ev.isSelfCall(node, scope, self) {
			args, err := ev.evalArgs(node.Args, node.SpreadAt, scope, stack)
			if err != nil {
				return tailOutcome{}, err
			}
			return tailOutcome{args: args}, nil
		}
		v, err := ev.Eval(node, scope, stack)
		return tailOutcome{value: v}, err
	case *ast.IfExpr:
		return ev.tailIf(node, scope, stack, self)
	case *ast.WhenExpr:
		return ev.tailWhen(node, scope, stack, self)
	case *ast.TryCatchFinally:
		return ev.tailTry(node, scope, stack, self)
	case *ast.IfLet:
		return ev.tailIfLet(node, scope, stack, self)
	default:
		v, err := ev.Eval(e, scope, stack)
		return tailOutcome{value: v}, err
	}
}

func (ev *Evaluator) tailIf(node *ast.IfExpr, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, error) {
	cond, err := ev.Eval(node.Cond, scope, stack)
	if err != nil {
		return tailOutcome{}, err
	}
	branchScope := scope.NewChild()
	if value.Truthy(cond) {
		return ev.evalBodyTail(node.Then, branchScope, stack, self)
	}
	if node.Else != nil {
		return ev.evalBodyTail(node.Else, branchScope, stack, self)
	}
	return tailOutcome{value: value.Unit}, nil
}

func (ev *Evaluator) tailIfLet(node *ast.IfLet, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, error) {
	v, err := ev.Eval(node.Value, scope, stack)
	if err != nil {
		return tailOutcome{}, err
	}
	branchScope := scope.NewChild()
	if !value.IsNull(v) {
		branchScope.DefineVal(node.Name, v)
		return ev.evalBodyTail(node.Then, branchScope, stack, self)
	}
	if node.Else != nil {
		return ev.evalBodyTail(node.Else, branchScope, stack, self)
	}
	return tailOutcome{value: value.Unit}, nil
}

func (ev *Evaluator) tailWhen(node *ast.WhenExpr, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, error) {
	whenScope := scope.NewChild()
	var subject value.Value
	if node.Subject != nil {
		v, err := ev.Eval(node.Subject, whenScope, stack)
		if err != nil {
			return tailOutcome{}, err
		}
		subject = v
		if node.BindName != "" {
			whenScope.DefineVal(node.BindName, v)
		}
	}
	for _, arm := range node.Arms {
		matched, err := ev.whenArmMatches(arm, subject, node.Subject != nil, whenScope, stack)
		if err != nil {
			return tailOutcome{}, err
		}
		if matched {
			return ev.evalBodyTail(arm.Body, whenScope.NewChild(), stack, self)
		}
	}
	return tailOutcome{value: value.Unit}, nil
}

// tailTry forwards tail position into the try block (and whichever
// catch clause runs) only when there is no finally — a finally must
// still observe control returning from the nested call, so a call
// guarded by one is not in true tail position and is evaluated the
// ordinary (non-folding) way instead.
func (ev *Evaluator) tailTry(node *ast.TryCatchFinally, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, error) {
	if len(node.Finally) > 0 {
		v, sig, err := ev.evalTry(node, scope, stack)
		return tailOutcome{value: v, sig: sig}, err
	}

	out, err := ev.evalBodyTail(node.Try, scope.NewChild(), stack, self)
	if err == nil {
		return out, nil
	}
	nerr, ok := err.(*novaerr.Error)
	if !ok || nerr.Uncatchable() {
		return tailOutcome{}, err
	}
	out, matched, cerr := ev.tryCatchTail(node.Catches, nerr, scope, stack, self)
	if !matched {
		return tailOutcome{}, err
	}
	return out, cerr
}

// tryCatchTail mirrors tryCatch but evaluates the matched catch body
// with tail-call detection still active, so `try { ... } catch(e) {
// f(...) }` (no finally) still folds a self-recursive tail call inside
// the catch arm.
func (ev *Evaluator) tryCatchTail(catches []ast.CatchClause, thrown *novaerr.Error, scope *env.Environment, stack *callstack.Stack, self *Function) (tailOutcome, bool, error) {
	for _, c := range catches {
		if c.TypeName != "" && c.TypeName != thrown.Kind.String() && c.TypeName != "Exception" && c.TypeName != "Throwable" {
			continue
		}
		catchScope := scope.NewChild()
		var bound value.Value
		if thrown.Payload != nil {
			if pv, ok := thrown.Payload.(value.Value); ok {
				bound = pv
			}
		}
		if bound == nil {
			bound = value.NewString(thrown.Message)
		}
		catchScope.DefineVal(c.ErrName, bound)
		out, err := ev.evalBodyTail(c.Body, catchScope, stack, self)
		if err != nil {
			return tailOutcome{}, true, err
		}
		return out, true, nil
	}
	return tailOutcome{}, false, nil
}

func (ev *Evaluator) isSelfCall(call *ast.Call, scope *env.Environment, self *Function) bool {
	id, ok := call.Callee.(*ast.Identifier)
	if !ok || id.Name != self.Name() {
		return false
	}
	v, err := scope.Get(id.Name)
	if err != nil {
		return false
	}
	fn, ok := v.(*Function)
	return ok && fn == self
}
