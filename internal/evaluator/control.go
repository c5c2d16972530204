package evaluator

import (
	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/classes"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

// EvalStatement executes one statement, returning its value (for
// expression-statements and expression-shaped statements like if/when/
// try), a control signal (break/continue/return), and any error.
func (ev *Evaluator) EvalStatement(s ast.Statement, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	if err := ev.Budget.CheckTimeout(); err != nil {
		return nil, controlSignal{}, err
	}
	switch node := s.(type) {
	case *ast.ExpressionStatement:
		switch e := node.Expr.(type) {
		case *ast.IfExpr:
			return ev.evalIfAsExpr(e, scope, stack)
		case *ast.WhenExpr:
			return ev.evalWhen(e, scope, stack)
		case *ast.TryCatchFinally:
			return ev.evalTry(e, scope, stack)
		case *ast.IfLet:
			return ev.evalIfLet(e, scope, stack)
		}
		v, err := ev.evalExprUnwrapReturn(node.Expr, scope, stack)
		return v.value, v, err
	case *ast.ValDecl:
		return value.Unit, controlSignal{}, ev.evalValVarDecl(node.Name, node.Destructure, node.Value, scope, stack, true)
	case *ast.VarDecl:
		return value.Unit, controlSignal{}, ev.evalValVarDecl(node.Name, node.Destructure, node.Value, scope, stack, false)
	case *ast.AssignStmt:
		return value.Unit, controlSignal{}, ev.evalAssign(node, scope, stack)
	case *ast.CompoundAssign:
		return value.Unit, controlSignal{}, ev.evalCompoundAssign(node, scope, stack)
	case *ast.Destructuring:
		return value.Unit, controlSignal{}, ev.evalDestructuringAssign(node, scope, stack)
	case *ast.ReturnStmt:
		if node.Value == nil {
			return nil, controlSignal{kind: signalReturn, value: value.Unit}, nil
		}
		v, err := ev.Eval(node.Value, scope, stack)
		if err != nil {
			return nil, controlSignal{}, err
		}
		return nil, controlSignal{kind: signalReturn, value: v}, nil
	case *ast.BreakStmt:
		return nil, controlSignal{kind: signalBreak}, nil
	case *ast.ContinueStmt:
		return nil, controlSignal{kind: signalContinue}, nil
	case *ast.ThrowStmt:
		v, err := ev.Eval(node.Value, scope, stack)
		if err != nil {
			return nil, controlSignal{}, err
		}
		return nil, controlSignal{}, throwValue(v, stack)
	case *ast.ForStmt:
		return ev.evalFor(node, scope, stack)
	case *ast.WhileStmt:
		return ev.evalWhile(node, scope, stack)
	case *ast.GuardLet:
		return ev.evalGuardLet(node, scope, stack)
	case *ast.FunDecl:
		fn := NewFunction(node.Name, node.Params, node.Body, scope)
		return value.Unit, controlSignal{}, scope.DefineVal(node.Name, fn)
	case *ast.ExtensionFun:
		key := ExtensionKey{TypeName: node.ReceiverType, Name: node.Fun.Name, Arity: len(node.Fun.Params)}
		ev.Extensions[key] = NewFunction(node.Fun.Name, node.Fun.Params, node.Fun.Body, scope)
		return value.Unit, controlSignal{}, nil
	case *ast.ClassDecl:
		return value.Unit, controlSignal{}, ev.evalClassDecl(node, scope, stack)
	case *ast.EnumDecl:
		return value.Unit, controlSignal{}, ev.evalEnumDecl(node, scope, stack)
	case *ast.InterfaceDecl:
		return value.Unit, controlSignal{}, ev.evalInterfaceDecl(node, scope)
	case *ast.ObjectDecl:
		return value.Unit, controlSignal{}, ev.evalObjectDecl(node, scope)
	case *ast.AnnotationClassDecl:
		return value.Unit, controlSignal{}, nil // annotation classes only carry metadata, nothing to evaluate
	// Expression-shaped statements used standalone (if/when/try as a
	// bare statement) share the expression evaluators but need their
	// signal propagated rather than swallowed.
	case *ast.IfExpr:
		return ev.evalIfAsExpr(node, scope, stack)
	case *ast.WhenExpr:
		return ev.evalWhen(node, scope, stack)
	case *ast.TryCatchFinally:
		return ev.evalTry(node, scope, stack)
	case *ast.IfLet:
		return ev.evalIfLet(node, scope, stack)
	}
	return nil, controlSignal{}, novaerr.Newf(novaerr.KindUser, "unsupported statement node %T", s)
}

// evalExprUnwrapReturn evaluates an expression in statement position,
// converting a *returnUnwind sentinel error (raised by error
// propagation or a nested if/when/try branch's `return`) back into a
// real controlSignal.
func (ev *Evaluator) evalExprUnwrapReturn(e ast.Expression, scope *env.Environment, stack *callstack.Stack) (controlSignal, error) {
	v, err := ev.Eval(e, scope, stack)
	if err != nil {
		if ru, ok := err.(*returnUnwind); ok {
			return ru.sig, nil
		}
		return controlSignal{}, err
	}
	return controlSignal{value: v}, nil
}

// evalBlock executes a statement list as one lexical body, returning
// the last expression-statement's value (spec.md's "if/when/try is
// itself an expression whose value is the last expression of the taken
// branch/arm") alongside any escaping control signal.
func (ev *Evaluator) evalBlock(stmts []ast.Statement, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	var last value.Value = value.Unit
	for i, s := range stmts {
		isLast := i == len(stmts)-1
		v, sig, err := ev.EvalStatement(s, scope, stack)

		// evalBlock itself never folds a tail call — that only happens
		// when Function.Call evaluates a body via evalBodyTail
		// (tailcall.go), which knows the currently-executing Function
		// and can special-case its last statement.
		if err != nil {
			return nil, controlSignal{}, err
		}
		if sig.kind != signalNone {
			return v, sig, nil
		}
		if isLast {
			last = v
		}
	}
	return last, controlSignal{}, nil
}

func (ev *Evaluator) evalValVarDecl(name string, destructure []string, valueExpr ast.Expression, scope *env.Environment, stack *callstack.Stack, immutable bool) error {
	v, err := ev.Eval(valueExpr, scope, stack)
	if err != nil {
		return err
	}
	if destructure != nil {
		return ev.bindDestructure(destructure, v, scope, immutable)
	}
	if immutable {
		return scope.DefineVal(name, v)
	}
	return scope.DefineVar(name, v)
}

// bindDestructure implements spec.md §4.3.6: element-wise for a List,
// componentN() for a user class, "_" skips a position.
func (ev *Evaluator) bindDestructure(names []string, v value.Value, scope *env.Environment, immutable bool) error {
	components, err := ev.destructureComponents(v, len(names))
	if err != nil {
		return err
	}
	for i, name := range names {
		if name == "_" {
			continue
		}
		var bindErr error
		if immutable {
			bindErr = scope.DefineVal(name, components[i])
		} else {
			bindErr = scope.DefineVar(name, components[i])
		}
		if bindErr != nil {
			return bindErr
		}
	}
	return nil
}

func (ev *Evaluator) destructureComponents(v value.Value, n int) ([]value.Value, error) {
	switch val := v.(type) {
	case *value.List:
		if n > len(val.Elems) {
			return nil, novaerr.New(novaerr.KindConstructorArgMismatch, "destructuring pattern has more positions than the List has elements")
		}
		return val.Elems[:n], nil
	case value.Pair:
		out := make([]value.Value, 0, n)
		for i := 0; i < n; i++ {
			c, ok := val.At(int64(i))
			if !ok {
				return nil, novaerr.New(novaerr.KindConstructorArgMismatch, "destructuring pattern has more positions than the Pair has components")
			}
			out = append(out, c)
		}
		return out, nil
	default:
		out := make([]value.Value, n)
		for i := 0; i < n; i++ {
			c, err := ev.callComponentN(v, i+1)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
}

func (ev *Evaluator) evalAssign(node *ast.AssignStmt, scope *env.Environment, stack *callstack.Stack) error {
	v, err := ev.Eval(node.Value, scope, stack)
	if err != nil {
		return err
	}
	return ev.assignTo(node.Target, v, scope, stack)
}

func (ev *Evaluator) assignTo(target ast.Expression, v value.Value, scope *env.Environment, stack *callstack.Stack) error {
	switch t := target.(type) {
	case *ast.Identifier:
		return scope.Assign(t.Name, v)
	case *ast.MemberAccess:
		recv, err := ev.Eval(t.Receiver, scope, stack)
		if err != nil {
			return err
		}
		return ev.setMember(recv, t.Name, v)
	case *ast.IndexAccess:
		recv, err := ev.Eval(t.Receiver, scope, stack)
		if err != nil {
			return err
		}
		idx, err := ev.Eval(t.Index, scope, stack)
		if err != nil {
			return err
		}
		_, err = ev.indexSet(recv, idx, v, scope, stack)
		return err
	}
	return novaerr.New(novaerr.KindUser, "invalid assignment target")
}

func (ev *Evaluator) evalCompoundAssign(node *ast.CompoundAssign, scope *env.Environment, stack *callstack.Stack) error {
	if node.Op == "??=" {
		cur, err := ev.Eval(node.Target, scope, stack)
		if err != nil {
			return err
		}
		if !value.IsNull(cur) {
			return nil
		}
		rhs, err := ev.Eval(node.Value, scope, stack)
		if err != nil {
			return err
		}
		return ev.assignTo(node.Target, rhs, scope, stack)
	}
	cur, err := ev.Eval(node.Target, scope, stack)
	if err != nil {
		return err
	}
	rhs, err := ev.Eval(node.Value, scope, stack)
	if err != nil {
		return err
	}
	op := map[string]string{"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%"}[node.Op]
	result, err := ev.applyBinaryOp(op, cur, rhs, scope, stack)
	if err != nil {
		return err
	}
	return ev.assignTo(node.Target, result, scope, stack)
}

func (ev *Evaluator) evalDestructuringAssign(node *ast.Destructuring, scope *env.Environment, stack *callstack.Stack) error {
	v, err := ev.Eval(node.Value, scope, stack)
	if err != nil {
		return err
	}
	components, err := ev.destructureComponents(v, len(node.Names))
	if err != nil {
		return err
	}
	for i, name := range node.Names {
		if name == "_" {
			continue
		}
		if err := scope.Assign(name, components[i]); err != nil {
			return err
		}
	}
	return nil
}

func (ev *Evaluator) evalIfAsExpr(node *ast.IfExpr, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	cond, err := ev.Eval(node.Cond, scope, stack)
	if err != nil {
		return nil, controlSignal{}, err
	}
	branchScope := scope.NewChild()
	if value.Truthy(cond) {
		return ev.evalBlock(node.Then, branchScope, stack)
	}
	if node.Else != nil {
		return ev.evalBlock(node.Else, branchScope, stack)
	}
	return value.Unit, controlSignal{}, nil
}

func (ev *Evaluator) evalIfLet(node *ast.IfLet, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	v, err := ev.Eval(node.Value, scope, stack)
	if err != nil {
		return nil, controlSignal{}, err
	}
	branchScope := scope.NewChild()
	if !value.IsNull(v) {
		branchScope.DefineVal(node.Name, v)
		return ev.evalBlock(node.Then, branchScope, stack)
	}
	if node.Else != nil {
		return ev.evalBlock(node.Else, branchScope, stack)
	}
	return value.Unit, controlSignal{}, nil
}

func (ev *Evaluator) evalGuardLet(node *ast.GuardLet, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	v, err := ev.Eval(node.Value, scope, stack)
	if err != nil {
		return nil, controlSignal{}, err
	}
	if !value.IsNull(v) {
		scope.DefineVal(node.Name, v)
		return value.Unit, controlSignal{}, nil
	}
	return ev.evalBlock(node.ElseBody, scope.NewChild(), stack)
}

func (ev *Evaluator) evalWhen(node *ast.WhenExpr, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	whenScope := scope.NewChild()
	var subject value.Value
	if node.Subject != nil {
		v, err := ev.Eval(node.Subject, whenScope, stack)
		if err != nil {
			return nil, controlSignal{}, err
		}
		subject = v
		if node.BindName != "" {
			whenScope.DefineVal(node.BindName, v)
		}
	}
	for _, arm := range node.Arms {
		matched, err := ev.whenArmMatches(arm, subject, node.Subject != nil, whenScope, stack)
		if err != nil {
			return nil, controlSignal{}, err
		}
		if matched {
			return ev.evalBlock(arm.Body, whenScope.NewChild(), stack)
		}
	}
	return value.Unit, controlSignal{}, nil
}

func (ev *Evaluator) whenArmMatches(arm ast.WhenArm, subject value.Value, bound bool, scope *env.Environment, stack *callstack.Stack) (bool, error) {
	if arm.IsElse {
		return true, nil
	}
	if !bound {
		return ev.evalTruthy(arm.Cond, scope, stack)
	}
	switch {
	case arm.Literal != nil:
		lit, err := ev.Eval(arm.Literal, scope, stack)
		if err != nil {
			return false, err
		}
		return subject.Equals(lit), nil
	case arm.RangeTest != nil:
		r, err := ev.Eval(arm.RangeTest, scope, stack)
		if err != nil {
			return false, err
		}
		rng, ok := r.(value.Range)
		if !ok {
			return false, novaerr.New(novaerr.KindCastFailure, "when(in ...) requires a Range")
		}
		return rng.Contains(subject.AsLong()), nil
	case arm.TypeTest != "":
		return ev.isInstanceOf(subject, arm.TypeTest), nil
	}
	return false, nil
}

// isInstanceOf backs `is Type` checks in when-arms and the `as?` safe
// cast; built-in type names match TypeName() directly, user classes
// check the ClassDef chain/interfaces.
func (ev *Evaluator) isInstanceOf(v value.Value, typeName string) bool {
	if v.TypeName() == typeName {
		return true
	}
	if inst, ok := v.(*classes.Instance); ok {
		if cd, ok2 := ev.lookupClass(typeName); ok2 {
			return inst.Class.IsSubclassOf(cd)
		}
		if iface, ok2 := ev.lookupInterface(typeName); ok2 {
			return inst.Class.ImplementsInterface(iface)
		}
	}
	return false
}

func (ev *Evaluator) evalFor(node *ast.ForStmt, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	iterable, err := ev.Eval(node.Iterable, scope, stack)
	if err != nil {
		return nil, controlSignal{}, err
	}
	items, err := ev.toIterable(iterable)
	if err != nil {
		return nil, controlSignal{}, err
	}
	for _, item := range items {
		if err := ev.Budget.CheckLoopIteration(); err != nil {
			return nil, controlSignal{}, err
		}
		loopScope := scope.NewChild()
		if len(node.VarNames) == 1 {
			loopScope.DefineVal(node.VarNames[0], item)
		} else {
			components, err := ev.destructureComponents(item, len(node.VarNames))
			if err != nil {
				return nil, controlSignal{}, err
			}
			for i, name := range node.VarNames {
				if name != "_" {
					loopScope.DefineVal(name, components[i])
				}
			}
		}
		_, sig, err := ev.evalBlock(node.Body, loopScope, stack)
		if err != nil {
			return nil, controlSignal{}, err
		}
		if sig.kind == signalBreak {
			break
		}
		if sig.kind == signalReturn {
			return nil, sig, nil
		}
	}
	return value.Unit, controlSignal{}, nil
}

func (ev *Evaluator) evalWhile(node *ast.WhileStmt, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	for {
		truthy, err := ev.evalTruthy(node.Cond, scope, stack)
		if err != nil {
			return nil, controlSignal{}, err
		}
		if !truthy {
			break
		}
		if err := ev.Budget.CheckLoopIteration(); err != nil {
			return nil, controlSignal{}, err
		}
		_, sig, err := ev.evalBlock(node.Body, scope.NewChild(), stack)
		if err != nil {
			return nil, controlSignal{}, err
		}
		if sig.kind == signalBreak {
			break
		}
		if sig.kind == signalReturn {
			return nil, sig, nil
		}
	}
	return value.Unit, controlSignal{}, nil
}

// evalTry implements spec.md §4.3.4's try/catch/finally: finally always
// runs; a throw from finally supersedes the in-flight error/signal
// (SPEC_FULL.md open-question decision (c) extends the same rule to an
// in-flight `return`: a `return` inside finally replaces it).
func (ev *Evaluator) evalTry(node *ast.TryCatchFinally, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, error) {
	v, sig, err := ev.evalBlock(node.Try, scope.NewChild(), stack)

	if err != nil {
		if nerr, ok := err.(*novaerr.Error); ok && !nerr.Uncatchable() {
			if caught, csig, ce, cerr := ev.tryCatch(node.Catches, nerr, scope, stack); ce {
				v, sig, err = caught, csig, cerr
			}
		}
	}

	if len(node.Finally) > 0 {
		fv, fsig, ferr := ev.evalBlock(node.Finally, scope.NewChild(), stack)
		if ferr != nil {
			return nil, controlSignal{}, ferr
		}
		if fsig.kind != signalNone {
			return fv, fsig, nil
		}
	}
	return v, sig, err
}

func (ev *Evaluator) tryCatch(catches []ast.CatchClause, thrown *novaerr.Error, scope *env.Environment, stack *callstack.Stack) (value.Value, controlSignal, bool, error) {
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
		v, sig, err := ev.evalBlock(c.Body, catchScope, stack)
		if err != nil {
			return nil, controlSignal{}, true, err
		}
		return v, sig, true, nil
	}
	return nil, controlSignal{}, false, nil
}

// throwValue wraps a thrown user value into a *novaerr.Error carrying
// it as Payload (spec.md §4.3.4 "throw v ... string values produce
// plain-text messages, other values are stringified").
func throwValue(v value.Value, stack *callstack.Stack) error {
	msg := v.AsString()
	return novaerr.New(novaerr.KindUser, msg).WithPayload(v).WithFrames(stack.Snapshot())
}

// toIterable normalizes List/Array/Range/Map(entries)/String into a
// slice of Values for `for` loops (spec.md §4.3.4).
func (ev *Evaluator) toIterable(v value.Value) ([]value.Value, error) {
	switch it := v.(type) {
	case *value.List:
		return it.Elems, nil
	case *value.Array:
		return it.Elems, nil
	case value.Range:
		return it.ToList().Elems, nil
	case *value.Map:
		entries := it.Entries()
		out := make([]value.Value, len(entries))
		for i, e := range entries {
			out[i] = e
		}
		return out, nil
	case value.String:
		runes := []rune(string(it))
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.NewChar(r)
		}
		return out, nil
	default:
		return nil, novaerr.Newf(novaerr.KindCastFailure, "%s is not iterable", v.TypeName())
	}
}
