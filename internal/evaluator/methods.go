// Member/method/index dispatch (spec.md §4.3.1's resolution order: own
// methods -> superclass chain -> interfaces -> companion -> extension
// functions -> built-ins -> host-object methods -> MethodNotFound) plus
// the built-in method tables for String/List/Map/Range/Pair/Result and
// the numeric types (spec.md §4.5).
package evaluator

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/classes"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/hostinterop"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

func (ev *Evaluator) evalCall(n *ast.Call, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	callee, err := ev.Eval(n.Callee, scope, stack)
	if err != nil {
		return nil, err
	}
	args, err := ev.evalArgs(n.Args, n.SpreadAt, scope, stack)
	if err != nil {
		return nil, err
	}
	line := n.Line
	file := ""
	if id, ok := n.Callee.(*ast.Identifier); ok {
		return ev.invoke(callee, args, scope, stack, file, line, id.Name)
	}
	return ev.invoke(callee, args, scope, stack, file, line, "")
}

func (ev *Evaluator) evalArgs(argNodes []ast.Expression, spreadAt map[int]bool, scope *env.Environment, stack *callstack.Stack) ([]value.Value, error) {
	args := make([]value.Value, 0, len(argNodes))
	for i, a := range argNodes {
		v, err := ev.Eval(a, scope, stack)
		if err != nil {
			return nil, err
		}
		if spreadAt[i] {
			lst, ok := v.(*value.List)
			if !ok {
				return nil, novaerr.New(novaerr.KindCastFailure, "spread argument is not a List")
			}
			args = append(args, lst.Elems...)
			continue
		}
		args = append(args, v)
	}
	return args, nil
}

// invoke dispatches a resolved callee value: a user Function, a native,
// a class (construction), a host ClassHandle, or a SAM-convertible
// lambda target.
func (ev *Evaluator) invoke(callee value.Value, args []value.Value, scope *env.Environment, stack *callstack.Stack, file string, line int, name string) (value.Value, error) {
	switch c := callee.(type) {
	case *Function:
		return ev.Call(c, args, stack, file, line)
	case *classes.ClassDef:
		return ev.Instantiate(c, args, stack)
	case *hostinterop.ClassHandle:
		if ev.Bridge == nil {
			return nil, novaerr.New(novaerr.KindHost, "host interop is not configured")
		}
		return ev.Bridge.New(c, args)
	default:
		if nf, ok := ev.Natives[name]; ok && name != "" {
			return nf(ev, args, scope, stack)
		}
		if nc, ok := callee.(NativeCallable); ok {
			return nc.Call(args)
		}
		return nil, novaerr.Newf(novaerr.KindNotCallable, "%s is not callable", callee.TypeName())
	}
}

// NativeCallable is satisfied by any value.Value an embedder hands back
// from internal/interpreter's RegisterNative/RegisterAll (a native Go
// function wrapped as a first-class Nova value) — letting invoke/callAny
// dispatch to it by interface rather than needing a concrete-type case
// for every registration style, the same way *nativeClosure already does
// for pipeline partial-application results.
type NativeCallable interface {
	value.Value
	Call(args []value.Value) (value.Value, error)
}

func (ev *Evaluator) evalMemberAccess(n *ast.MemberAccess, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	recv, err := ev.Eval(n.Receiver, scope, stack)
	if err != nil {
		return nil, err
	}
	if n.Safe && value.IsNull(recv) {
		return value.Null, nil
	}
	return ev.getMember(recv, n.Name, stack)
}

func (ev *Evaluator) getMember(recv value.Value, name string, stack *callstack.Stack) (value.Value, error) {
	switch r := recv.(type) {
	case *classes.Instance:
		if v, err := r.GetField(name, ""); err == nil {
			return v, nil
		}
		if m, ok := r.Class.ResolveMethod(name); ok && m.Fn.Arity() == 0 {
			switch fn := m.Fn.(type) {
			case *Function:
				return ev.callBound(fn, r, nil, stack, "", 0)
			case *nativeDataMethod:
				return fn.fn(r, nil)
			}
		}
		if v, ok := builtinProperty(r, name); ok {
			return v, nil
		}
		return nil, novaerr.Newf(novaerr.KindMethodNotFound, "%s has no member %q", r.Class.Name, name)
	case *classes.ClassDef:
		if r.CompanionVars != nil {
			return r.CompanionVars.Get(name)
		}
		if name == "name" {
			return value.NewString(r.Name), nil
		}
		return nil, novaerr.Newf(novaerr.KindMethodNotFound, "class %s has no companion member %q", r.Name, name)
	case *classes.Object:
		return r.Resolve().Get(name)
	case *hostinterop.ExternalObject:
		if ev.Bridge == nil {
			return nil, novaerr.New(novaerr.KindHost, "host interop is not configured")
		}
		return ev.Bridge.GetMember(r, name)
	default:
		if v, ok := builtinProperty(recv, name); ok {
			return v, nil
		}
		return nil, novaerr.Newf(novaerr.KindMethodNotFound, "%s has no member %q", recv.TypeName(), name)
	}
}

func (ev *Evaluator) setMember(recv value.Value, name string, v value.Value) error {
	switch r := recv.(type) {
	case *classes.Instance:
		return r.SetField(name, v, "")
	case *classes.ClassDef:
		if r.CompanionVars != nil {
			return r.CompanionVars.Assign(name, v)
		}
	case *hostinterop.ExternalObject:
		if ev.Bridge != nil {
			return ev.Bridge.SetMember(r, name, v)
		}
	}
	return novaerr.Newf(novaerr.KindMethodNotFound, "%s has no settable member %q", recv.TypeName(), name)
}

// builtinProperty backs the handful of built-in getter-shaped properties
// (spec.md §4.5): size/length, first/second, isOk/value/error.
func builtinProperty(recv value.Value, name string) (value.Value, bool) {
	switch r := recv.(type) {
	case *value.List:
		switch name {
		case "size":
			return value.NewInt(int64(len(r.Elems))), true
		case "isEmpty":
			return value.NewBool(len(r.Elems) == 0), true
		case "isNotEmpty":
			return value.NewBool(len(r.Elems) != 0), true
		case "indices":
			return value.Range{Start: 0, End: int64(len(r.Elems)) - 1, Inclusive: true}, true
		}
	case *value.Map:
		switch name {
		case "size":
			return value.NewInt(int64(r.Size())), true
		case "isEmpty":
			return value.NewBool(r.Size() == 0), true
		case "keys":
			return value.NewList(r.Keys()), true
		case "values":
			return value.NewList(r.Values()), true
		}
	case value.String:
		if name == "length" {
			return value.NewInt(int64(len(string(r)))), true
		}
	case value.Pair:
		switch name {
		case "first":
			return r.First, true
		case "second":
			return r.Second, true
		}
	case value.Range:
		switch name {
		case "first":
			return value.NewLong(r.Start), true
		case "last":
			end := r.End
			if !r.Inclusive {
				end--
			}
			return value.NewLong(end), true
		}
	case value.Result:
		switch name {
		case "isOk":
			return value.NewBool(r.IsOk), true
		case "value":
			if r.IsOk {
				return r.Value, true
			}
			return value.Null, true
		case "error":
			if !r.IsOk {
				return r.Err, true
			}
			return value.Null, true
		}
	}
	return nil, false
}

func (ev *Evaluator) evalMethodCall(n *ast.MethodCall, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	recv, err := ev.Eval(n.Receiver, scope, stack)
	if err != nil {
		return nil, err
	}
	if n.Safe && value.IsNull(recv) {
		return value.Null, nil
	}
	args, err := ev.evalArgs(n.Args, n.SpreadAt, scope, stack)
	if err != nil {
		return nil, err
	}
	return ev.callMethod(recv, n.Name, args, scope, stack)
}

// callMethod implements spec.md §4.3.1's full resolution order for a
// method call: own/superclass/interface (via ClassDef.ResolveMethod),
// then companion static, then registered extension function, then
// built-in method table, then host object, then MethodNotFound.
func (ev *Evaluator) callMethod(recv value.Value, name string, args []value.Value, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	if b, ok := recv.(*builderInstance); ok {
		if v, handled, err := ev.builderMethod(b, name, args, stack); handled {
			return v, err
		}
	}
	if inst, ok := recv.(*classes.Instance); ok {
		if m, ok := inst.Class.ResolveMethod(name); ok {
			if err := classes.CheckMethodVisibility(m, "", inst.Class); err != nil {
				return nil, err
			}
			switch fn := m.Fn.(type) {
			case *Function:
				return ev.callBound(fn, inst, args, stack, "", 0)
			case *nativeDataMethod:
				return fn.fn(inst, args)
			}
		}
	}
	if cd, ok := recv.(*classes.ClassDef); ok {
		if name == "values" && cd.EnumEntries != nil {
			return value.NewList(classes.EnumValues(cd)), nil
		}
		if name == "valueOf" && cd.EnumEntries != nil && len(args) == 1 {
			inst, err := classes.EnumValueOf(cd, args[0].AsString())
			if err != nil {
				return nil, err
			}
			return inst, nil
		}
		if cd.CompanionVars != nil {
			if v, err := cd.CompanionVars.Get(name); err == nil {
				if fn, ok := v.(*Function); ok {
					return ev.Call(fn, args, stack, "", 0)
				}
			}
		}
	}
	if key := (ExtensionKey{TypeName: recv.TypeName(), Name: name, Arity: len(args)}); true {
		if fn, ok := ev.Extensions[key]; ok {
			return ev.callBound(fn, recv, args, stack, "", 0)
		}
	}
	if v, handled, err := ev.builtinMethod(recv, name, args, scope, stack); handled {
		return v, err
	}
	if ext, ok := recv.(*hostinterop.ExternalObject); ok && ev.Bridge != nil {
		return ev.Bridge.CallMethod(ext.FQN, ext, name, args)
	}
	return nil, novaerr.Newf(novaerr.KindMethodNotFound, "%s has no method %q", recv.TypeName(), name)
}

// callComponentN backs destructuring's fallback to a user class's
// componentN() methods (spec.md §4.3.6).
func (ev *Evaluator) callComponentN(v value.Value, n int) (value.Value, error) {
	name := "component" + itoa(n)
	return ev.callMethod(v, name, nil, nil, callstack.New(0))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (ev *Evaluator) callFunctionValue(fv value.Value, args []value.Value, stack *callstack.Stack) (value.Value, error) {
	fn, ok := fv.(*Function)
	if !ok {
		return nil, novaerr.Newf(novaerr.KindNotCallable, "%s is not callable", fv.TypeName())
	}
	return ev.Call(fn, args, stack, "", 0)
}

// --- Index access ----------------------------------------------------------

func (ev *Evaluator) evalIndexAccess(n *ast.IndexAccess, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	recv, err := ev.Eval(n.Receiver, scope, stack)
	if err != nil {
		return nil, err
	}
	if n.Safe && value.IsNull(recv) {
		return value.Null, nil
	}
	idx, err := ev.Eval(n.Index, scope, stack)
	if err != nil {
		return nil, err
	}
	return ev.indexGet(recv, idx, stack)
}

func (ev *Evaluator) indexGet(recv, idx value.Value, stack *callstack.Stack) (value.Value, error) {
	switch r := recv.(type) {
	case *value.List:
		i, err := normalizeIndex(idx.AsLong(), len(r.Elems))
		if err != nil {
			return nil, err
		}
		return r.Elems[i], nil
	case *value.Array:
		i, err := normalizeIndex(idx.AsLong(), len(r.Elems))
		if err != nil {
			return nil, err
		}
		return r.Elems[i], nil
	case *value.Map:
		v, ok := r.Get(idx)
		if !ok {
			return value.Null, nil
		}
		return v, nil
	case value.String:
		runes := []rune(string(r))
		i, err := normalizeIndex(idx.AsLong(), len(runes))
		if err != nil {
			return nil, err
		}
		return value.NewChar(runes[i]), nil
	case value.Pair:
		c, ok := r.At(idx.AsLong())
		if !ok {
			return nil, novaerr.New(novaerr.KindIndexOutOfBounds, "Pair index out of bounds")
		}
		return c, nil
	default:
		if fn, ok := ev.resolveUserMethod(recv, "get", 1); ok {
			return ev.callBound(fn, recv, []value.Value{idx}, stack, "", 0)
		}
		return nil, novaerr.Newf(novaerr.KindCastFailure, "%s does not support index access", recv.TypeName())
	}
}

func (ev *Evaluator) indexSet(recv, idx, v value.Value, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	switch r := recv.(type) {
	case *value.List:
		i, err := normalizeIndex(idx.AsLong(), len(r.Elems))
		if err != nil {
			return nil, err
		}
		r.Elems[i] = v
		return value.Unit, nil
	case *value.Array:
		i, err := normalizeIndex(idx.AsLong(), len(r.Elems))
		if err != nil {
			return nil, err
		}
		r.Elems[i] = v
		return value.Unit, nil
	case *value.Map:
		r.Set(idx, v)
		return value.Unit, nil
	default:
		if fn, ok := ev.resolveUserMethod(recv, "set", 2); ok {
			return ev.callBound(fn, recv, []value.Value{idx, v}, stack, "", 0)
		}
		return nil, novaerr.Newf(novaerr.KindCastFailure, "%s does not support index assignment", recv.TypeName())
	}
}

func normalizeIndex(i int64, n int) (int64, error) {
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, novaerr.Newf(novaerr.KindIndexOutOfBounds, "index %d out of bounds for length %d", i, n)
	}
	return i, nil
}

// --- Pipeline / partial application / scope functions / refs --------------

// evalPipeline implements spec.md §4.3.7: `x |> f(_, y)` evaluates x
// once and substitutes it for the Placeholder inside Call's args (or
// appends it as the sole argument when Call has no Placeholder).
func (ev *Evaluator) evalPipeline(n *ast.Pipeline, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	v, err := ev.Eval(n.Value, scope, stack)
	if err != nil {
		return nil, err
	}
	args, hasPlaceholder, err := ev.evalArgsWithPlaceholder(n.Call.Args, v, scope, stack)
	if err != nil {
		return nil, err
	}
	if !hasPlaceholder {
		args = append([]value.Value{v}, args...)
	}
	callee, err := ev.Eval(n.Call.Callee, scope, stack)
	if err != nil {
		return nil, err
	}
	return ev.invoke(callee, args, scope, stack, "", n.Line, calleeName(n.Call.Callee))
}

func calleeName(e ast.Expression) string {
	if id, ok := e.(*ast.Identifier); ok {
		return id.Name
	}
	return ""
}

func (ev *Evaluator) evalArgsWithPlaceholder(argNodes []ast.Expression, placeholderValue value.Value, scope *env.Environment, stack *callstack.Stack) ([]value.Value, bool, error) {
	found := false
	out := make([]value.Value, 0, len(argNodes))
	for _, a := range argNodes {
		if _, ok := a.(*ast.Placeholder); ok {
			out = append(out, placeholderValue)
			found = true
			continue
		}
		v, err := ev.Eval(a, scope, stack)
		if err != nil {
			return nil, false, err
		}
		out = append(out, v)
	}
	return out, found, nil
}

// evalPartialApp implements spec.md §4.3.8: a Call with one or more `_`
// placeholders, not immediately invoked, becomes a lambda of as many
// parameters as there are placeholders, in left-to-right order.
func (ev *Evaluator) evalPartialApp(n *ast.PartialApp, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	callee, err := ev.Eval(n.Call.Callee, scope, stack)
	if err != nil {
		return nil, err
	}
	fixed := make([]value.Value, len(n.Call.Args))
	var phIdx []int
	for i, a := range n.Call.Args {
		if _, ok := a.(*ast.Placeholder); ok {
			phIdx = append(phIdx, i)
			continue
		}
		v, err := ev.Eval(a, scope, stack)
		if err != nil {
			return nil, err
		}
		fixed[i] = v
	}
	name := calleeName(n.Call.Callee)
	invoke := func(holes []value.Value) (value.Value, error) {
		args := make([]value.Value, len(fixed))
		copy(args, fixed)
		for j, i := range phIdx {
			args[i] = holes[j]
		}
		return ev.invoke(callee, args, scope, stack, "", n.Line, name)
	}
	return &nativeClosure{arity: len(phIdx), label: "<partial " + name + ">", fn: invoke}, nil
}

// nativeClosure wraps a Go closure as a callable Value, used for partial
// application results and a few built-in higher-order helpers that need
// to hand back something `invoke` can dispatch to as *Function would.
type nativeClosure struct {
	arity int
	label string
	fn    func(args []value.Value) (value.Value, error)
}

func (c *nativeClosure) TypeName() string    { return "Function" }
func (c *nativeClosure) AsBool() bool        { return true }
func (c *nativeClosure) AsInt() int64        { return 0 }
func (c *nativeClosure) AsLong() int64       { return 0 }
func (c *nativeClosure) AsFloat() float32    { return 0 }
func (c *nativeClosure) AsDouble() float64   { return 0 }
func (c *nativeClosure) AsString() string    { return c.label }
func (c *nativeClosure) Hash() uint64        { return value.String(c.label).Hash() }
func (c *nativeClosure) ToHost() interface{} { return c.fn }
func (c *nativeClosure) IsNumber() bool      { return false }
func (c *nativeClosure) IsCollection() bool  { return false }
func (c *nativeClosure) Equals(o value.Value) bool {
	oc, ok := o.(*nativeClosure)
	return ok && c == oc
}
func (c *nativeClosure) Arity() int    { return c.arity }
func (c *nativeClosure) Name() string  { return c.label }
func (c *nativeClosure) Call(args []value.Value) (value.Value, error) { return c.fn(args) }

func (ev *Evaluator) callAny(fv value.Value, args []value.Value, stack *callstack.Stack) (value.Value, error) {
	switch f := fv.(type) {
	case *Function:
		return ev.Call(f, args, stack, "", 0)
	case *nativeClosure:
		return f.Call(args)
	default:
		if nc, ok := fv.(NativeCallable); ok {
			return nc.Call(args)
		}
		return nil, novaerr.Newf(novaerr.KindNotCallable, "%s is not callable", fv.TypeName())
	}
}

// evalScopeShorthand implements spec.md §4.3.10's let/also/run/apply/
// takeIf/takeUnless.
func (ev *Evaluator) evalScopeShorthand(n *ast.ScopeShorthand, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	recv, err := ev.Eval(n.Receiver, scope, stack)
	if err != nil {
		return nil, err
	}
	blockScope := scope.NewChild()
	bindName := n.ItOrThis
	switch n.Kind {
	case "let", "also":
		if bindName == "" {
			bindName = "it"
		}
		blockScope.DefineVal(bindName, recv)
	case "run", "apply":
		if bindName == "" {
			bindName = "this"
		}
		blockScope.DefineVal(bindName, recv)
	case "takeIf", "takeUnless":
		if bindName == "" {
			bindName = "it"
		}
		blockScope.DefineVal(bindName, recv)
	}
	result, sig, err := ev.evalBlock(n.Block, blockScope, stack)
	if err != nil {
		return nil, err
	}
	if sig.kind == signalReturn {
		return nil, &returnUnwind{sig}
	}
	switch n.Kind {
	case "let", "run":
		return result, nil
	case "also", "apply":
		return recv, nil
	case "takeIf":
		if value.Truthy(result) {
			return recv, nil
		}
		return value.Null, nil
	case "takeUnless":
		if !value.Truthy(result) {
			return recv, nil
		}
		return value.Null, nil
	}
	return value.Unit, nil
}

func (ev *Evaluator) evalMethodRef(n *ast.MethodRef, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	if n.Receiver == nil {
		v, err := scope.Get(n.Name)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	recv, err := ev.Eval(n.Receiver, scope, stack)
	if err != nil {
		return nil, err
	}
	name := n.Name
	return &nativeClosure{arity: -1, label: "<method-ref " + name + ">", fn: func(args []value.Value) (value.Value, error) {
		return ev.callMethod(recv, name, args, scope, stack)
	}}, nil
}

func (ev *Evaluator) evalConstructorRef(n *ast.ConstructorRef, scope *env.Environment, stack *callstack.Stack) (value.Value, error) {
	cd, ok := ev.lookupClass(n.TypeName)
	if !ok {
		return nil, novaerr.Newf(novaerr.KindUser, "unknown type %q in constructor reference", n.TypeName)
	}
	return &nativeClosure{arity: len(cd.PrimaryParams), label: "<ctor " + n.TypeName + ">", fn: func(args []value.Value) (value.Value, error) {
		return ev.Instantiate(cd, args, stack)
	}}, nil
}

// --- built-in method tables --------------------------------------------

// builtinMethod implements spec.md §4.5's instance methods on the
// structural types: String, List, Map, Range, Pair, Result, and the
// numeric types. handled=false lets callMethod fall through to
// MethodNotFound / host dispatch.
func (ev *Evaluator) builtinMethod(recv value.Value, name string, args []value.Value, scope *env.Environment, stack *callstack.Stack) (value.Value, bool, error) {
	switch r := recv.(type) {
	case *value.List:
		return ev.listMethod(r, name, args, stack)
	case *value.Map:
		return ev.mapMethod(r, name, args, stack)
	case value.String:
		return stringMethod(r, name, args)
	case value.Range:
		return rangeMethod(r, name, args)
	case value.Pair:
		return pairMethod(r, name, args)
	case value.Result:
		return ev.resultMethod(r, name, args, stack)
	default:
		if recv.IsNumber() {
			return numberMethod(recv, name, args)
		}
	}
	return nil, false, nil
}

func (ev *Evaluator) listMethod(l *value.List, name string, args []value.Value, stack *callstack.Stack) (value.Value, bool, error) {
	switch name {
	case "map":
		out := make([]value.Value, len(l.Elems))
		for i, e := range l.Elems {
			v, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			out[i] = v
		}
		return value.NewList(out), true, nil
	case "filter":
		out := []value.Value{}
		for _, e := range l.Elems {
			v, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				out = append(out, e)
			}
		}
		return value.NewList(out), true, nil
	case "forEach":
		for _, e := range l.Elems {
			if _, err := ev.callAny(args[0], []value.Value{e}, stack); err != nil {
				return nil, true, err
			}
		}
		return value.Unit, true, nil
	case "reduce":
		if len(l.Elems) == 0 {
			return nil, true, novaerr.New(novaerr.KindUser, "reduce on empty List")
		}
		acc := l.Elems[0]
		for _, e := range l.Elems[1:] {
			v, err := ev.callAny(args[0], []value.Value{acc, e}, stack)
			if err != nil {
				return nil, true, err
			}
			acc = v
		}
		return acc, true, nil
	case "fold":
		acc := args[0]
		for _, e := range l.Elems {
			v, err := ev.callAny(args[1], []value.Value{acc, e}, stack)
			if err != nil {
				return nil, true, err
			}
			acc = v
		}
		return acc, true, nil
	case "find", "firstOrNull":
		if name == "firstOrNull" && len(args) == 0 {
			if len(l.Elems) == 0 {
				return value.Null, true, nil
			}
			return l.Elems[0], true, nil
		}
		for _, e := range l.Elems {
			v, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				return e, true, nil
			}
		}
		return value.Null, true, nil
	case "any":
		for _, e := range l.Elems {
			v, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				return value.NewBool(true), true, nil
			}
		}
		return value.NewBool(false), true, nil
	case "all":
		for _, e := range l.Elems {
			v, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			if !value.Truthy(v) {
				return value.NewBool(false), true, nil
			}
		}
		return value.NewBool(true), true, nil
	case "none":
		for _, e := range l.Elems {
			v, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				return value.NewBool(false), true, nil
			}
		}
		return value.NewBool(true), true, nil
	case "sorted":
		out := append([]value.Value{}, l.Elems...)
		sort.SliceStable(out, func(i, j int) bool { c, _ := ev.compareValues(out[i], out[j]); return c < 0 })
		return value.NewList(out), true, nil
	case "sortedDescending":
		out := append([]value.Value{}, l.Elems...)
		sort.SliceStable(out, func(i, j int) bool { c, _ := ev.compareValues(out[i], out[j]); return c > 0 })
		return value.NewList(out), true, nil
	case "sortedBy":
		out := append([]value.Value{}, l.Elems...)
		keyed := make([]value.Value, len(out))
		for i, e := range out {
			k, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			keyed[i] = k
		}
		sort.SliceStable(out, func(i, j int) bool { c, _ := ev.compareValues(keyed[i], keyed[j]); return c < 0 })
		return value.NewList(out), true, nil
	case "reversed":
		out := make([]value.Value, len(l.Elems))
		for i, e := range l.Elems {
			out[len(out)-1-i] = e
		}
		return value.NewList(out), true, nil
	case "take":
		n := int(args[0].AsLong())
		if n > len(l.Elems) {
			n = len(l.Elems)
		}
		return value.NewList(append([]value.Value{}, l.Elems[:n]...)), true, nil
	case "drop":
		n := int(args[0].AsLong())
		if n > len(l.Elems) {
			n = len(l.Elems)
		}
		return value.NewList(append([]value.Value{}, l.Elems[n:]...)), true, nil
	case "first":
		if len(l.Elems) == 0 {
			return nil, true, novaerr.New(novaerr.KindIndexOutOfBounds, "first() on empty List")
		}
		return l.Elems[0], true, nil
	case "last":
		if len(l.Elems) == 0 {
			return nil, true, novaerr.New(novaerr.KindIndexOutOfBounds, "last() on empty List")
		}
		return l.Elems[len(l.Elems)-1], true, nil
	case "getOrNull":
		i := args[0].AsLong()
		if i < 0 || i >= int64(len(l.Elems)) {
			return value.Null, true, nil
		}
		return l.Elems[i], true, nil
	case "getOrElse":
		i := args[0].AsLong()
		if i >= 0 && i < int64(len(l.Elems)) {
			return l.Elems[i], true, nil
		}
		v, err := ev.callAny(args[1], []value.Value{value.NewLong(i)}, stack)
		return v, true, err
	case "contains":
		for _, e := range l.Elems {
			if e.Equals(args[0]) {
				return value.NewBool(true), true, nil
			}
		}
		return value.NewBool(false), true, nil
	case "indexOf":
		for i, e := range l.Elems {
			if e.Equals(args[0]) {
				return value.NewInt(int64(i)), true, nil
			}
		}
		return value.NewInt(-1), true, nil
	case "joinToString":
		sep := ", "
		if len(args) > 0 {
			sep = args[0].AsString()
		}
		parts := make([]string, len(l.Elems))
		for i, e := range l.Elems {
			parts[i] = e.AsString()
		}
		return value.NewString(strings.Join(parts, sep)), true, nil
	case "sum":
		var total float64
		allInt := true
		for _, e := range l.Elems {
			total += e.AsDouble()
			if _, ok := e.(value.Double); ok {
				allInt = false
			}
			if _, ok := e.(value.Float); ok {
				allInt = false
			}
		}
		if allInt {
			return value.NewLong(int64(total)), true, nil
		}
		return value.NewDouble(total), true, nil
	case "distinct":
		out := []value.Value{}
		for _, e := range l.Elems {
			dup := false
			for _, o := range out {
				if e.Equals(o) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, e)
			}
		}
		return value.NewList(out), true, nil
	case "flatMap":
		out := []value.Value{}
		for _, e := range l.Elems {
			v, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			sub, ok := v.(*value.List)
			if !ok {
				return nil, true, novaerr.New(novaerr.KindCastFailure, "flatMap selector must return a List")
			}
			out = append(out, sub.Elems...)
		}
		return value.NewList(out), true, nil
	case "groupBy":
		m := value.NewMap()
		for _, e := range l.Elems {
			k, err := ev.callAny(args[0], []value.Value{e}, stack)
			if err != nil {
				return nil, true, err
			}
			existing, ok := m.Get(k)
			if !ok {
				m.Set(k, value.NewList([]value.Value{e}))
				continue
			}
			lst := existing.(*value.List)
			lst.Elems = append(lst.Elems, e)
		}
		return m, true, nil
	case "chunked":
		n := int(args[0].AsLong())
		out := []value.Value{}
		for i := 0; i < len(l.Elems); i += n {
			end := i + n
			if end > len(l.Elems) {
				end = len(l.Elems)
			}
			out = append(out, value.NewList(append([]value.Value{}, l.Elems[i:end]...)))
		}
		return value.NewList(out), true, nil
	case "zip":
		other, ok := args[0].(*value.List)
		if !ok {
			return nil, true, novaerr.New(novaerr.KindCastFailure, "zip argument must be a List")
		}
		n := len(l.Elems)
		if len(other.Elems) < n {
			n = len(other.Elems)
		}
		out := make([]value.Value, n)
		for i := 0; i < n; i++ {
			out[i] = value.Pair{First: l.Elems[i], Second: other.Elems[i]}
		}
		return value.NewList(out), true, nil
	case "toList", "toMutableList":
		return value.NewList(append([]value.Value{}, l.Elems...)), true, nil
	case "plus":
		other, ok := args[0].(*value.List)
		if !ok {
			return value.NewList(append(append([]value.Value{}, l.Elems...), args[0])), true, nil
		}
		return value.NewList(append(append([]value.Value{}, l.Elems...), other.Elems...)), true, nil
	case "component1", "component2", "component3", "component4", "component5":
		idx := int(name[len(name)-1] - '1')
		if idx >= len(l.Elems) {
			return nil, true, novaerr.New(novaerr.KindIndexOutOfBounds, "componentN out of range")
		}
		return l.Elems[idx], true, nil
	}
	return nil, false, nil
}

func (ev *Evaluator) mapMethod(m *value.Map, name string, args []value.Value, stack *callstack.Stack) (value.Value, bool, error) {
	switch name {
	case "get":
		v, ok := m.Get(args[0])
		if !ok {
			return value.Null, true, nil
		}
		return v, true, nil
	case "getOrDefault":
		v, ok := m.Get(args[0])
		if !ok {
			return args[1], true, nil
		}
		return v, true, nil
	case "containsKey":
		_, ok := m.Get(args[0])
		return value.NewBool(ok), true, nil
	case "containsValue":
		for _, v := range m.Values() {
			if v.Equals(args[0]) {
				return value.NewBool(true), true, nil
			}
		}
		return value.NewBool(false), true, nil
	case "keys":
		return value.NewList(m.Keys()), true, nil
	case "values":
		return value.NewList(m.Values()), true, nil
	case "entries":
		entries := m.Entries()
		out := make([]value.Value, len(entries))
		for i, e := range entries {
			out[i] = e
		}
		return value.NewList(out), true, nil
	case "size":
		return value.NewInt(int64(m.Size())), true, nil
	case "isEmpty":
		return value.NewBool(m.Size() == 0), true, nil
	case "forEach":
		for _, e := range m.Entries() {
			if _, err := ev.callAny(args[0], []value.Value{e.First, e.Second}, stack); err != nil {
				return nil, true, err
			}
		}
		return value.Unit, true, nil
	case "map":
		out := make([]value.Value, 0, m.Size())
		for _, e := range m.Entries() {
			v, err := ev.callAny(args[0], []value.Value{e.First, e.Second}, stack)
			if err != nil {
				return nil, true, err
			}
			out = append(out, v)
		}
		return value.NewList(out), true, nil
	case "filter":
		out := value.NewMap()
		for _, e := range m.Entries() {
			v, err := ev.callAny(args[0], []value.Value{e.First, e.Second}, stack)
			if err != nil {
				return nil, true, err
			}
			if value.Truthy(v) {
				out.Set(e.First, e.Second)
			}
		}
		return out, true, nil
	case "mapValues":
		out := value.NewMap()
		for _, e := range m.Entries() {
			v, err := ev.callAny(args[0], []value.Value{e.Second}, stack)
			if err != nil {
				return nil, true, err
			}
			out.Set(e.First, v)
		}
		return out, true, nil
	case "mapKeys":
		out := value.NewMap()
		for _, e := range m.Entries() {
			k, err := ev.callAny(args[0], []value.Value{e.First}, stack)
			if err != nil {
				return nil, true, err
			}
			out.Set(k, e.Second)
		}
		return out, true, nil
	case "plus":
		other, ok := args[0].(*value.Map)
		if !ok {
			return nil, true, novaerr.New(novaerr.KindCastFailure, "Map.plus expects a Map")
		}
		return m.Merge(other), true, nil
	case "remove":
		m.Delete(args[0])
		return value.Unit, true, nil
	case "put", "set":
		m.Set(args[0], args[1])
		return value.Unit, true, nil
	}
	return nil, false, nil
}

func stringMethod(s value.String, name string, args []value.Value) (value.Value, bool, error) {
	str := string(s)
	switch name {
	case "uppercase", "toUpperCase":
		return value.NewString(strings.ToUpper(str)), true, nil
	case "lowercase", "toLowerCase":
		return value.NewString(strings.ToLower(str)), true, nil
	case "trim":
		return value.NewString(strings.TrimSpace(str)), true, nil
	case "split":
		sep := ""
		if len(args) > 0 {
			sep = args[0].AsString()
		}
		parts := strings.Split(str, sep)
		out := make([]value.Value, len(parts))
		for i, p := range parts {
			out[i] = value.NewString(p)
		}
		return value.NewList(out), true, nil
	case "substring":
		runes := []rune(str)
		start := int(args[0].AsLong())
		end := len(runes)
		if len(args) > 1 {
			end = int(args[1].AsLong())
		}
		if start < 0 || end > len(runes) || start > end {
			return nil, true, novaerr.New(novaerr.KindIndexOutOfBounds, "substring indices out of bounds")
		}
		return value.NewString(string(runes[start:end])), true, nil
	case "replace":
		return value.NewString(strings.ReplaceAll(str, args[0].AsString(), args[1].AsString())), true, nil
	case "contains":
		return value.NewBool(strings.Contains(str, args[0].AsString())), true, nil
	case "startsWith":
		return value.NewBool(strings.HasPrefix(str, args[0].AsString())), true, nil
	case "endsWith":
		return value.NewBool(strings.HasSuffix(str, args[0].AsString())), true, nil
	case "reversed":
		runes := []rune(str)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return value.NewString(string(runes)), true, nil
	case "repeat":
		return value.NewString(strings.Repeat(str, int(args[0].AsLong()))), true, nil
	case "padStart":
		n := int(args[0].AsLong())
		pad := " "
		if len(args) > 1 {
			pad = args[1].AsString()
		}
		for len([]rune(str)) < n && pad != "" {
			str = pad + str
		}
		return value.NewString(str), true, nil
	case "padEnd":
		n := int(args[0].AsLong())
		pad := " "
		if len(args) > 1 {
			pad = args[1].AsString()
		}
		for len([]rune(str)) < n && pad != "" {
			str = str + pad
		}
		return value.NewString(str), true, nil
	case "toIntOrNull":
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return value.Null, true, nil
		}
		return value.NewInt(n), true, nil
	case "toDoubleOrNull":
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return value.Null, true, nil
		}
		return value.NewDouble(f), true, nil
	case "isEmpty":
		return value.NewBool(str == ""), true, nil
	case "isNotEmpty":
		return value.NewBool(str != ""), true, nil
	case "isBlank":
		return value.NewBool(strings.TrimSpace(str) == ""), true, nil
	case "toList":
		runes := []rune(str)
		out := make([]value.Value, len(runes))
		for i, r := range runes {
			out[i] = value.NewChar(r)
		}
		return value.NewList(out), true, nil
	case "plus":
		return value.NewString(str + args[0].AsString()), true, nil
	}
	return nil, false, nil
}

func rangeMethod(r value.Range, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "contains":
		return value.NewBool(r.Contains(args[0].AsLong())), true, nil
	case "toList":
		return r.ToList(), true, nil
	case "step":
		n := args[0].AsLong()
		if n <= 0 {
			return nil, true, novaerr.New(novaerr.KindUser, "step must be positive")
		}
		all := r.ToSlice()
		out := []value.Value{}
		for i := int64(0); i < int64(len(all)); i += n {
			out = append(out, value.NewLong(all[i]))
		}
		return value.NewList(out), true, nil
	case "isEmpty":
		return value.NewBool(r.Size() == 0), true, nil
	}
	return nil, false, nil
}

func pairMethod(p value.Pair, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "toList":
		return value.NewList([]value.Value{p.First, p.Second}), true, nil
	case "component1":
		return p.First, true, nil
	case "component2":
		return p.Second, true, nil
	}
	return nil, false, nil
}

func (ev *Evaluator) resultMethod(r value.Result, name string, args []value.Value, stack *callstack.Stack) (value.Value, bool, error) {
	switch name {
	case "getOrNull":
		if r.IsOk {
			return r.Value, true, nil
		}
		return value.Null, true, nil
	case "getOrElse":
		if r.IsOk {
			return r.Value, true, nil
		}
		v, err := ev.callAny(args[0], []value.Value{r.Err}, stack)
		return v, true, err
	case "getOrThrow":
		if r.IsOk {
			return r.Value, true, nil
		}
		return nil, true, novaerr.Newf(novaerr.KindResultUnwrap, "getOrThrow on an Err result: %s", r.Err.AsString()).WithPayload(r.Err)
	case "map":
		if !r.IsOk {
			return r, true, nil
		}
		v, err := ev.callAny(args[0], []value.Value{r.Value}, stack)
		if err != nil {
			return nil, true, err
		}
		return value.Ok(v), true, nil
	case "onSuccess":
		if r.IsOk {
			if _, err := ev.callAny(args[0], []value.Value{r.Value}, stack); err != nil {
				return nil, true, err
			}
		}
		return r, true, nil
	case "onFailure":
		if !r.IsOk {
			if _, err := ev.callAny(args[0], []value.Value{r.Err}, stack); err != nil {
				return nil, true, err
			}
		}
		return r, true, nil
	}
	return nil, false, nil
}

func numberMethod(recv value.Value, name string, args []value.Value) (value.Value, bool, error) {
	switch name {
	case "toInt":
		return value.NewInt(recv.AsInt()), true, nil
	case "toLong":
		return value.NewLong(recv.AsLong()), true, nil
	case "toFloat":
		return value.NewFloat(recv.AsFloat()), true, nil
	case "toDouble":
		return value.NewDouble(recv.AsDouble()), true, nil
	case "toString":
		return value.NewString(recv.AsString()), true, nil
	case "coerceIn":
		lo, hi := args[0].AsDouble(), args[1].AsDouble()
		x := recv.AsDouble()
		if x < lo {
			x = lo
		}
		if x > hi {
			x = hi
		}
		if num, ok := recv.(value.Numeric); ok {
			return narrowNumeric(value.PromoteRank(num, num), x), true, nil
		}
		return value.NewDouble(x), true, nil
	case "compareTo":
		a, b := recv.AsDouble(), args[0].AsDouble()
		switch {
		case a < b:
			return value.NewInt(-1), true, nil
		case a > b:
			return value.NewInt(1), true, nil
		default:
			return value.NewInt(0), true, nil
		}
	}
	return nil, false, nil
}

