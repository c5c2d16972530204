// Package hostinterop implements Nova's Java.* host bridge (spec.md
// §4.9, component I): type lookup, static member access, construction,
// SAM conversion, and bidirectional Value<->host marshalling, all gated
// by an internal/security Policy.
//
// The teacher has no host-interop layer; this package is grounded on
// the pack's only available facility for dynamic host access, the
// standard library's reflect package, which is the justified
// stdlib-only exception recorded in DESIGN.md: no third-party library
// in the retrieved examples exposes arbitrary Go-type reflection the
// way a JVM's java.lang.Class does, so there is nothing from the corpus
// to wire here instead.
package hostinterop

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/security"
	"github.com/kristofer/nova/internal/value"
)

// Registry maps fully-qualified names ("java.util.ArrayList"-style
// strings, reused here for any registered host type regardless of its
// real Go import path) to reflect.Type, standing in for a JVM
// classloader since Nova's host is the Go runtime rather than a JVM.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
	// statics holds package-level functions/values registered under a
	// "pkg.Name" key, since Go has no reflect.Value for bare functions
	// outside a struct the way Java statics work.
	statics map[string]reflect.Value
}

func NewRegistry() *Registry {
	return &Registry{types: map[string]reflect.Type{}, statics: map[string]reflect.Value{}}
}

// RegisterType binds fqn to a Go type so `Java.type(fqn)` / `Java.new`
// can find it; embedders call this during setup (spec.md §6's
// register_all is the bulk-registration entry point, layered on top of
// this by the interpreter package).
func (r *Registry) RegisterType(fqn string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[fqn] = t
}

// RegisterStatic binds fqn (e.g. "java.lang.Math.max") to a callable or
// value Go reflect.Value for Java.static/Java.field.
func (r *Registry) RegisterStatic(fqn string, v reflect.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statics[fqn] = v
}

// ClassHandle is the Value returned by `Java.type(fqn)`/`javaClass(fqn)`.
// Calling it (spec.md: "calling it invokes the best-matching
// constructor") is wired by the evaluator's Call dispatch checking for
// this type.
type ClassHandle struct {
	FQN string
	typ reflect.Type
	reg *Registry
}

func (c *ClassHandle) TypeName() string    { return "ClassHandle" }
func (c *ClassHandle) AsBool() bool        { return true }
func (c *ClassHandle) AsInt() int64        { return 0 }
func (c *ClassHandle) AsLong() int64       { return 0 }
func (c *ClassHandle) AsFloat() float32    { return 0 }
func (c *ClassHandle) AsDouble() float64   { return 0 }
func (c *ClassHandle) AsString() string    { return "class " + c.FQN }
func (c *ClassHandle) Hash() uint64        { return value.String(c.FQN).Hash() }
func (c *ClassHandle) ToHost() interface{} { return c.typ }
func (c *ClassHandle) IsNumber() bool      { return false }
func (c *ClassHandle) IsCollection() bool  { return false }
func (c *ClassHandle) Equals(o value.Value) bool {
	oc, ok := o.(*ClassHandle)
	return ok && c.FQN == oc.FQN
}

// ExternalObject wraps a live host value (spec.md §4.9's marshalling
// table row "Instance -> ExternalObject proxy"): member access attempts
// JavaBean-style getters/setters, then a direct (reflected) field;
// method calls resolve by name with the overload-resolution order
// spec.md names (exact -> numeric widening -> boxing -> varargs).
type ExternalObject struct {
	Host reflect.Value
	FQN  string
}

func (e *ExternalObject) TypeName() string    { return "ExternalObject" }
func (e *ExternalObject) AsBool() bool        { return true }
func (e *ExternalObject) AsInt() int64        { return 0 }
func (e *ExternalObject) AsLong() int64       { return 0 }
func (e *ExternalObject) AsFloat() float32    { return 0 }
func (e *ExternalObject) AsDouble() float64   { return 0 }
func (e *ExternalObject) AsString() string    { return fmt.Sprintf("%v", e.Host.Interface()) }
func (e *ExternalObject) Hash() uint64        { return value.String(e.AsString()).Hash() }
func (e *ExternalObject) ToHost() interface{} { return e.Host.Interface() }
func (e *ExternalObject) IsNumber() bool      { return false }
func (e *ExternalObject) IsCollection() bool  { return false }
func (e *ExternalObject) Equals(o value.Value) bool {
	oe, ok := o.(*ExternalObject)
	return ok && e.Host.Interface() == oe.Host.Interface()
}

// Bridge ties a Registry to a security.Policy; every public entry point
// checks the policy first (spec.md §4.7's "Host-class load"/"Host
// method invocation" enforcement points).
type Bridge struct {
	Reg    *Registry
	Policy *security.Policy
}

func NewBridge(reg *Registry, policy *security.Policy) *Bridge {
	return &Bridge{Reg: reg, Policy: policy}
}

// Type implements Java.type(fqn)/javaClass(fqn).
func (b *Bridge) Type(fqn string) (*ClassHandle, error) {
	if !b.Policy.IsClassAllowed(fqn) {
		return nil, security.Denied("class " + fqn)
	}
	b.Reg.mu.RLock()
	t, ok := b.Reg.types[fqn]
	b.Reg.mu.RUnlock()
	if !ok {
		return nil, novaerr.Newf(novaerr.KindHost, "no host type registered for %q", fqn)
	}
	return &ClassHandle{FQN: fqn, typ: t, reg: b.Reg}, nil
}

// New implements Java.new(fqn, args...) / calling a ClassHandle: it
// picks the best-matching exported constructor-shaped function
// registered under "fqn.New" (Go has no constructors, so embedders
// register a factory function under that convention), or falls back to
// reflect.New for a zero-arg struct construction.
func (b *Bridge) New(h *ClassHandle, args []value.Value) (*ExternalObject, error) {
	if !b.Policy.IsClassAllowed(h.FQN) {
		return nil, security.Denied("construct " + h.FQN)
	}
	b.Reg.mu.RLock()
	factory, ok := b.Reg.statics[h.FQN+".New"]
	b.Reg.mu.RUnlock()
	if ok {
		hostArgs, err := marshalArgs(factory.Type(), args)
		if err != nil {
			return nil, err
		}
		results := factory.Call(hostArgs)
		return &ExternalObject{Host: results[0], FQN: h.FQN}, nil
	}
	if len(args) != 0 {
		return nil, novaerr.Newf(novaerr.KindConstructorArgMismatch, "no constructor registered for %s with %d args", h.FQN, len(args))
	}
	return &ExternalObject{Host: reflect.New(h.typ).Elem(), FQN: h.FQN}, nil
}

// Static implements Java.static(fqn, method, args...).
func (b *Bridge) Static(fqn, method string, args []value.Value) (value.Value, error) {
	if !b.Policy.IsMethodAllowed(fqn, method) {
		return nil, security.Denied(fqn + "::" + method)
	}
	b.Reg.mu.RLock()
	fn, ok := b.Reg.statics[fqn+"."+method]
	b.Reg.mu.RUnlock()
	if !ok {
		return nil, novaerr.Newf(novaerr.KindMethodNotFound, "no static method %s.%s registered", fqn, method)
	}
	hostArgs, err := marshalArgs(fn.Type(), args)
	if err != nil {
		return nil, err
	}
	results := fn.Call(hostArgs)
	return firstResultToValue(results, fn.Type())
}

// Field implements Java.field(fqn, name): a registered static value.
func (b *Bridge) Field(fqn, name string) (value.Value, error) {
	if !b.Policy.IsMethodAllowed(fqn, name) {
		return nil, security.Denied(fqn + "::" + name)
	}
	b.Reg.mu.RLock()
	v, ok := b.Reg.statics[fqn+"."+name]
	b.Reg.mu.RUnlock()
	if !ok {
		return nil, novaerr.Newf(novaerr.KindHost, "no static field %s.%s registered", fqn, name)
	}
	return ToValue(v.Interface()), nil
}

// GetMember implements ExternalObject member access: JavaBean getter
// first (getField()/isField()), then a direct struct field.
func (b *Bridge) GetMember(obj *ExternalObject, name string) (value.Value, error) {
	rv := obj.Host
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	title := strings.ToUpper(name[:1]) + name[1:]
	if m := findMethod(obj.Host, "Get"+title); m.IsValid() && m.Type().NumIn() == 0 {
		return firstResultToValue(m.Call(nil), m.Type())
	}
	if m := findMethod(obj.Host, "Is"+title); m.IsValid() && m.Type().NumIn() == 0 {
		return firstResultToValue(m.Call(nil), m.Type())
	}
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName(title); f.IsValid() {
			return ToValue(f.Interface()), nil
		}
	}
	return nil, novaerr.Newf(novaerr.KindMethodNotFound, "no field or getter %q on %s", name, obj.FQN)
}

// SetMember implements ExternalObject member assignment: setField(v)
// first, then a direct field.
func (b *Bridge) SetMember(obj *ExternalObject, name string, v value.Value) error {
	title := strings.ToUpper(name[:1]) + name[1:]
	if m := findMethod(obj.Host, "Set"+title); m.IsValid() && m.Type().NumIn() == 1 {
		args, err := marshalArgs(m.Type(), []value.Value{v})
		if err != nil {
			return err
		}
		m.Call(args)
		return nil
	}
	rv := obj.Host
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName(title); f.IsValid() && f.CanSet() {
			f.Set(reflect.ValueOf(v.ToHost()))
			return nil
		}
	}
	return novaerr.Newf(novaerr.KindMethodNotFound, "no settable field %q on %s", name, obj.FQN)
}

// CallMethod resolves and invokes a method by name on an ExternalObject
// (spec.md §4.9's overload resolution: exact -> numeric widening ->
// boxing -> varargs; findMethod + marshalArgs together implement the
// widening/boxing steps via reflect's own assignability rules, and
// variadic Go methods cover the varargs step).
func (b *Bridge) CallMethod(fqn string, obj *ExternalObject, name string, args []value.Value) (value.Value, error) {
	if !b.Policy.IsMethodAllowed(fqn, name) {
		return nil, security.Denied(fqn + "::" + name)
	}
	m := findMethod(obj.Host, name)
	if !m.IsValid() {
		return nil, novaerr.Newf(novaerr.KindMethodNotFound, "no method %q on %s", name, obj.FQN)
	}
	hostArgs, err := marshalArgs(m.Type(), args)
	if err != nil {
		return nil, err
	}
	results := m.Call(hostArgs)
	return firstResultToValue(results, m.Type())
}

func findMethod(rv reflect.Value, name string) reflect.Value {
	m := rv.MethodByName(name)
	if m.IsValid() {
		return m
	}
	if rv.Kind() != reflect.Ptr && rv.CanAddr() {
		return rv.Addr().MethodByName(name)
	}
	return reflect.Value{}
}

// marshalArgs converts Nova Values to the host function's expected
// argument types, widening numerics and boxing into interface{}
// parameters as needed.
func marshalArgs(fnType reflect.Type, args []value.Value) ([]reflect.Value, error) {
	variadic := fnType.IsVariadic()
	n := fnType.NumIn()
	out := make([]reflect.Value, 0, len(args))
	for i, a := range args {
		var want reflect.Type
		switch {
		case variadic && i >= n-1:
			want = fnType.In(n - 1).Elem()
		case i < n:
			want = fnType.In(i)
		default:
			return nil, novaerr.Newf(novaerr.KindConstructorArgMismatch, "too many arguments: got %d, want %d", len(args), n)
		}
		hv, err := toHostTyped(a, want)
		if err != nil {
			return nil, err
		}
		out = append(out, hv)
	}
	return out, nil
}

func toHostTyped(v value.Value, want reflect.Type) (reflect.Value, error) {
	if want.Kind() == reflect.Interface {
		return reflect.ValueOf(v.ToHost()), nil
	}
	host := v.ToHost()
	hv := reflect.ValueOf(host)
	if !hv.IsValid() {
		return reflect.Zero(want), nil
	}
	if hv.Type().ConvertibleTo(want) {
		return hv.Convert(want), nil
	}
	return reflect.Value{}, novaerr.Newf(novaerr.KindCastFailure, "cannot convert %s to %s", v.TypeName(), want)
}

func firstResultToValue(results []reflect.Value, fnType reflect.Type) (value.Value, error) {
	if len(results) == 0 {
		return value.Unit, nil
	}
	// Trailing error-typed return preserves the cause per spec.md §4.8.
	if last := results[len(results)-1]; fnType.Out(len(results)-1) == reflect.TypeOf((*error)(nil)).Elem() {
		if !last.IsNil() {
			return nil, novaerr.New(novaerr.KindHost, last.Interface().(error).Error()).WithCause(last.Interface().(error))
		}
		if len(results) == 1 {
			return value.Unit, nil
		}
		return ToValue(results[0].Interface()), nil
	}
	return ToValue(results[0].Interface()), nil
}

// ToValue marshals a raw Go value into a Nova Value per spec.md §4.9's
// table, wrapping anything unrecognized as an ExternalObject.
func ToValue(host interface{}) value.Value {
	switch h := host.(type) {
	case nil:
		return value.Null
	case bool:
		return value.NewBool(h)
	case int:
		return value.NewInt(int64(h))
	case int64:
		return value.NewLong(h)
	case float32:
		return value.NewFloat(h)
	case float64:
		return value.NewDouble(h)
	case string:
		return value.NewString(h)
	case rune:
		return value.NewChar(h)
	case value.Value:
		return h
	default:
		return &ExternalObject{Host: reflect.ValueOf(host)}
	}
}

// SAMProxy wraps a Nova lambda so it satisfies a host interface
// requiring exactly one abstract method (spec.md §4.9 SAM conversion).
// invoke is supplied by the evaluator (it knows how to call a Function
// value); SAMProxy only needs to remember which lambda to call.
type SAMProxy struct {
	Invoke func(args []value.Value) (value.Value, error)
}

// Call lets Go-side code that received a SAMProxy's single method
// invoke back into Nova.
func (p *SAMProxy) Call(args ...interface{}) (interface{}, error) {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = ToValue(a)
	}
	result, err := p.Invoke(vals)
	if err != nil {
		return nil, err
	}
	return result.ToHost(), nil
}
