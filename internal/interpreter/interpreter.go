// Package interpreter is Nova's embedding API (spec.md §6):
// the façade an embedding application constructs and calls Eval on,
// wiring together everything a logical execution context needs —
// evaluator, root environment, security budget/policy, host-interop
// bridge, scheduler, logger, and stdio.
//
// The teacher's cmd/smog/main.go builds this wiring ad hoc, local to
// main() (a persistent vm.VM + compiler.Compiler recreated for each
// run, kept alive across REPL turns by closing over them in runREPL).
// Interpreter pulls that wiring out into a reusable, embeddable struct
// so a host application — not just the nova CLI — can construct one,
// register natives, and call Eval repeatedly against a persistent root
// scope, the same "keep the VM alive across turns" shape smog's REPL
// uses, generalized beyond a single main().
package interpreter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/kristofer/nova/internal/builtins"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/classes"
	"github.com/kristofer/nova/internal/concurrency"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/evaluator"
	"github.com/kristofer/nova/internal/hostinterop"
	"github.com/kristofer/nova/internal/nlog"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/parser"
	"github.com/kristofer/nova/internal/security"
	"github.com/kristofer/nova/internal/value"
)

// Interpreter is one logical execution context: a root Environment, an
// Evaluator, and the ambient services (security budget/policy, host
// bridge, scheduler, logger, stdio) every Eval call threads through.
type Interpreter struct {
	eval      *evaluator.Evaluator
	root      *env.Environment
	stack     *callstack.Stack
	policy    *security.Policy
	registry  *hostinterop.Registry
	scheduler concurrency.Scheduler
	logger    nlog.Logger
	io        *builtins.IO
	replMode  bool
}

// New builds an Interpreter under security.Standard() — spec.md §4.7's
// default policy for an embedder that doesn't ask for a specific level.
func New() *Interpreter {
	return NewWithPolicy(security.Standard())
}

// NewUnrestricted and NewStrict mirror security.Unrestricted/Strict for
// callers who want to name the level explicitly at construction time.
func NewUnrestricted() *Interpreter { return NewWithPolicy(security.Unrestricted()) }
func NewStrict() *Interpreter       { return NewWithPolicy(security.Strict()) }

// NewWithPolicy builds a fresh root Interpreter under an explicit policy.
func NewWithPolicy(policy *security.Policy) *Interpreter {
	registry := hostinterop.NewRegistry()
	ev := evaluator.New()
	ev.Budget = security.NewBudget(policy)
	ev.Bridge = hostinterop.NewBridge(registry, policy)

	ioSink := &builtins.IO{Out: os.Stdout, Err: os.Stderr, In: bufio.NewReader(os.Stdin)}
	root := env.New()
	installBuiltins(ev, root, ioSink)

	it := &Interpreter{
		eval:      ev,
		root:      root,
		stack:     callstack.New(recursionLimit(policy)),
		policy:    policy,
		registry:  registry,
		scheduler: concurrency.NewDefaultScheduler(),
		logger:    nlog.Default(),
		io:        ioSink,
	}
	return it
}

// NewChild builds a nested interpreter sharing the parent's class/
// interface/extension/native registries and host bridge (spec.md §3.4's
// "child interpreters inherit the parent's declarations") but with its
// own root scope chained off the parent's, and its own call stack and
// budget — so recursion/timeout limits are tracked per child, not
// pooled with the parent's.
func (parent *Interpreter) NewChild() *Interpreter {
	ev := *parent.eval
	ev.Budget = security.NewBudget(parent.policy)
	child := &Interpreter{
		eval:      &ev,
		root:      parent.root.NewChild(),
		stack:     callstack.New(recursionLimit(parent.policy)),
		policy:    parent.policy,
		registry:  parent.registry,
		scheduler: parent.scheduler,
		logger:    parent.logger,
		io:        parent.io,
		replMode:  parent.replMode,
	}
	return child
}

func recursionLimit(p *security.Policy) int {
	if p == nil || p.MaxRecursionDepth <= 0 {
		return 0
	}
	return p.MaxRecursionDepth
}

func installBuiltins(ev *evaluator.Evaluator, root *env.Environment, io *builtins.IO) {
	for name, fn := range builtins.Math() {
		defineNative(ev, root, name, fn)
	}
	for name, fn := range builtins.Core(io) {
		defineNative(ev, root, name, fn)
	}
}

// defineNative binds name to a first-class marker value in root (so
// `val f = println` and passing a built-in to forEach/map resolve it
// through evaluator.NativeCallable) and registers the same fn under
// ev.Natives (so a direct call `println(x)` dispatches through invoke's
// by-name fast path without going through a value-level type switch).
func defineNative(ev *evaluator.Evaluator, root *env.Environment, name string, fn builtins.NativeFunc) {
	root.DefineVal(name, nativeFuncValue{name: name, fn: fn})
	ev.Natives[name] = func(_ *evaluator.Evaluator, args []value.Value, _ *env.Environment, _ *callstack.Stack) (value.Value, error) {
		return fn(args)
	}
}

// nativeFuncValue adapts a builtins.NativeFunc (no evaluator/env access)
// into an ordinary callable value.Value, so it resolves through the same
// invoke() path as user-defined functions in methods.go.
type nativeFuncValue struct {
	name string
	fn   builtins.NativeFunc
}

func (n nativeFuncValue) TypeName() string    { return "Function" }
func (n nativeFuncValue) AsBool() bool        { return true }
func (n nativeFuncValue) AsInt() int64        { return 0 }
func (n nativeFuncValue) AsLong() int64       { return 0 }
func (n nativeFuncValue) AsFloat() float32    { return 0 }
func (n nativeFuncValue) AsDouble() float64   { return 0 }
func (n nativeFuncValue) AsString() string    { return fmt.Sprintf("<native %s>", n.name) }
func (n nativeFuncValue) Hash() uint64        { return value.String(n.name).Hash() }
func (n nativeFuncValue) ToHost() interface{} { return n.fn }
func (n nativeFuncValue) IsNumber() bool      { return false }
func (n nativeFuncValue) IsCollection() bool  { return false }
func (n nativeFuncValue) Equals(o value.Value) bool {
	of, ok := o.(nativeFuncValue)
	return ok && of.name == n.name
}
func (n nativeFuncValue) Arity() int    { return -1 }
func (n nativeFuncValue) Name() string  { return n.name }
func (n nativeFuncValue) Call(args []value.Value) (value.Value, error) {
	return n.fn(args)
}

// SetREPLMode toggles the root environment's REPL redefinition leniency
// (spec.md §4.4: at the top level of a REPL, re-declaring a val/var/fun
// that already exists replaces it instead of erroring).
func (it *Interpreter) SetREPLMode(on bool) {
	it.replMode = on
	it.root.SetREPLMode(on)
}

// SetStdout/SetStderr/SetStdin redirect the Core() builtins' io/print
// sink (spec.md §3.4's embeddable stdio). The IO struct backing Core's
// closures is shared by pointer, so the change also applies to natives
// already installed — no reinstall needed.
func (it *Interpreter) SetStdout(w io.Writer) { it.io.Out = w }
func (it *Interpreter) SetStderr(w io.Writer) { it.io.Err = w }
func (it *Interpreter) SetStdin(r io.Reader)  { it.io.In = bufio.NewReader(r) }

// SetScheduler installs a custom concurrency.Scheduler (spec.md §4.6's
// Scheduler SPI), e.g. a host-UI-thread-aware one in place of the
// default goroutine-pool scheduler.
func (it *Interpreter) SetScheduler(s concurrency.Scheduler) { it.scheduler = s }

// Scheduler returns the active scheduler, for natives that need to
// spawn scoped work (concurrency.Group) against it.
func (it *Interpreter) Scheduler() concurrency.Scheduler { return it.scheduler }

// SetLogger replaces the interpreter's nlog.Logger. The evaluator, call
// stack and scheduler write no tracing to it.
func (it *Interpreter) SetLogger(l nlog.Logger) { it.logger = l }

// Registry exposes the host-interop type registry so an embedder can
// call RegisterType/RegisterStatic directly when RegisterNative's
// reflection-based convenience methods below don't fit.
func (it *Interpreter) Registry() *hostinterop.Registry { return it.registry }

// RegisterNative installs a single Go function as a Nova-callable value
// named name in the root scope (spec.md §6's register_native). fn may be
// any non-variadic Go function; a variadic one is rejected when called.
// Arguments/return values are marshalled via hostinterop's reflection
// helpers the same way CallMethod marshals host-object method calls.
func (it *Interpreter) RegisterNative(name string, fn interface{}) error {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return novaerr.Newf(novaerr.KindUser, "RegisterNative(%q): not a function", name)
	}
	hv := hostNativeValue{name: name, fn: rv}
	it.root.DefineVal(name, hv)
	it.eval.Natives[name] = func(_ *evaluator.Evaluator, args []value.Value, _ *env.Environment, _ *callstack.Stack) (value.Value, error) {
		return hv.Call(args)
	}
	return nil
}

// RegisterAll bulk-registers every exported method of host as a native
// function (spec.md §6's register_all, for a Go struct exposing a batch
// of related host functions as methods rather than one-by-one
// RegisterNative calls). Method names are lower-camel-cased to match
// Nova's naming convention (e.g. host.ReadFile -> readFile).
func (it *Interpreter) RegisterAll(host interface{}) error {
	rv := reflect.ValueOf(host)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() {
			continue
		}
		if err := it.RegisterNative(lowerFirst(m.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'A' && r[0] <= 'Z' {
		r[0] += 'a' - 'A'
	}
	return string(r)
}

// hostNativeValue wraps an arbitrary reflected Go func as a callable
// value.Value, marshalling args/results through hostinterop.ToValue and
// the bridge's arg-marshalling convention.
type hostNativeValue struct {
	name string
	fn   reflect.Value
}

func (n hostNativeValue) TypeName() string    { return "Function" }
func (n hostNativeValue) AsBool() bool        { return true }
func (n hostNativeValue) AsInt() int64        { return 0 }
func (n hostNativeValue) AsLong() int64       { return 0 }
func (n hostNativeValue) AsFloat() float32    { return 0 }
func (n hostNativeValue) AsDouble() float64   { return 0 }
func (n hostNativeValue) AsString() string    { return fmt.Sprintf("<native %s>", n.name) }
func (n hostNativeValue) Hash() uint64        { return value.String(n.name).Hash() }
func (n hostNativeValue) ToHost() interface{} { return n.fn.Interface() }
func (n hostNativeValue) IsNumber() bool      { return false }
func (n hostNativeValue) IsCollection() bool  { return false }
func (n hostNativeValue) Equals(o value.Value) bool {
	of, ok := o.(hostNativeValue)
	return ok && of.name == n.name
}
func (n hostNativeValue) Arity() int   { return n.fn.Type().NumIn() }
func (n hostNativeValue) Name() string { return n.name }
func (n hostNativeValue) Call(args []value.Value) (value.Value, error) {
	fnType := n.fn.Type()
	if fnType.IsVariadic() {
		return nil, novaerr.Newf(novaerr.KindUser, "native %q: variadic host functions are not supported", n.name)
	}
	if len(args) != fnType.NumIn() {
		return nil, novaerr.Newf(novaerr.KindConstructorArgMismatch,
			"native %q expects %d args, got %d", n.name, fnType.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		want := fnType.In(i)
		hv := reflect.ValueOf(a.ToHost())
		if !hv.IsValid() {
			hv = reflect.Zero(want)
		} else if hv.Type() != want && hv.Type().ConvertibleTo(want) {
			hv = hv.Convert(want)
		}
		in[i] = hv
	}
	out := n.fn.Call(in)
	switch len(out) {
	case 0:
		return value.Unit, nil
	case 1:
		return hostinterop.ToValue(out[0].Interface()), nil
	default:
		// Convention: (result, error) — mirrors hostinterop.Bridge's own
		// firstResultToValue handling of a trailing error return.
		last := out[len(out)-1]
		if errIface, ok := last.Interface().(error); ok && last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			if errIface != nil {
				return nil, novaerr.New(novaerr.KindHost, errIface.Error()).WithCause(errIface)
			}
			return hostinterop.ToValue(out[0].Interface()), nil
		}
		return hostinterop.ToValue(out[0].Interface()), nil
	}
}

// RegisterAnnotationProcessor installs a user-defined, Go-native
// annotation processor (spec.md §4.3.11), called with the class's
// declared annotation arguments at class-declaration time — the same
// signature the built-in @data/@builder processors use, so it is
// checked via the same NativeProcessors table. Registering under an
// existing name, "data" and "builder" included, replaces that processor.
func (it *Interpreter) RegisterAnnotationProcessor(name string, fn func(ev *evaluator.Evaluator, cd *classes.ClassDef, args []value.Value) error) {
	it.eval.NativeProcessors[name] = fn
}

// Eval parses source as one compilation unit and evaluates its
// top-level statements against the interpreter's persistent root scope,
// returning the value of the last expression statement (spec.md §6's
// eval(source[, filename])). filename is not used; error frames carry no
// source file name. Each call starts a fresh security budget.
func (it *Interpreter) Eval(source string, filename string) (value.Value, error) {
	it.eval.DeclUnit++
	it.eval.Budget = security.NewBudget(it.policy)
	prog, err := parser.Parse(source)
	if err != nil {
		return nil, novaerr.New(novaerr.KindUser, err.Error())
	}
	it.stack.Clear()
	var last value.Value = value.Unit
	for _, stmt := range prog.Statements {
		v, sig, serr := it.eval.EvalStatement(stmt, it.root, it.stack)
		if serr != nil {
			if ne, ok := serr.(*novaerr.Error); ok {
				ne.Frames = it.stack.Snapshot()
			}
			return nil, serr
		}
		if !sig.IsNone() {
			return nil, novaerr.New(novaerr.KindUser, "break/return/continue used at top level")
		}
		last = v
	}
	return last, nil
}

// EvalREPL evaluates one REPL turn: the same as Eval, but with
// SetREPLMode(true) semantics implicitly honored via the root
// environment's redefinition leniency, and never clearing Classes/
// extensions registered by earlier turns (spec.md §6's "declarations
// accumulate across REPL turns").
func (it *Interpreter) EvalREPL(source string) (value.Value, error) {
	wasREPL := it.replMode
	if !wasREPL {
		it.SetREPLMode(true)
	}
	return it.Eval(source, "<repl>")
}
