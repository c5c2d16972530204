// Annotation processing (spec.md §4.3.11). Processors run once per class
// declaration, in annotation order, after the class's method table is
// built but before it is handed back to the caller — so a processor can
// add synthetic methods the declaring scope will see.
package evaluator

import (
	"strings"

	"github.com/kristofer/nova/internal/ast"
	"github.com/kristofer/nova/internal/callstack"
	"github.com/kristofer/nova/internal/classes"
	"github.com/kristofer/nova/internal/env"
	"github.com/kristofer/nova/internal/novaerr"
	"github.com/kristofer/nova/internal/value"
)

func defaultAnnotationProcessors() map[string]func(ev *Evaluator, cd *classes.ClassDef, args []value.Value) error {
	return map[string]func(ev *Evaluator, cd *classes.ClassDef, args []value.Value) error{
		"data":    processDataAnnotation,
		"builder": processBuilderAnnotation,
	}
}

// runAnnotations implements the class-declaration-time pass of spec.md
// §4.3.11/§4.4 step 6: for every @name(args) on the declaration, the
// native processor of that name runs if there is one; otherwise the
// user-registered processor of that name runs. A user-registered
// processor sharing a native processor's name is not run.
func (ev *Evaluator) runAnnotations(node []ast.Annotation, cd *classes.ClassDef, scope *env.Environment, stack *callstack.Stack) error {
	for _, ann := range node {
		args := make([]value.Value, len(ann.Args))
		for i, a := range ann.Args {
			v, err := ev.Eval(a, scope, stack)
			if err != nil {
				return err
			}
			args[i] = v
		}
		if proc, ok := ev.NativeProcessors[ann.Name]; ok {
			if err := proc(ev, cd, args); err != nil {
				return err
			}
			continue
		}
		if fn, ok := ev.Processors[ann.Name]; ok {
			argMap := value.NewMap()
			for i, a := range args {
				argMap.Set(value.NewInt(int64(i)), a)
			}
			if _, err := ev.Call(fn, []value.Value{cd, argMap}, stack, "", 0); err != nil {
				return err
			}
			continue
		}
		return novaerr.Newf(novaerr.KindUser, "no annotation processor registered for @%s", ann.Name)
	}
	return nil
}

// processDataAnnotation backs @data: componentN() for each primary
// constructor parameter, structural equals/hashCode/toString, and
// copy(overrides...).
func processDataAnnotation(ev *Evaluator, cd *classes.ClassDef, args []value.Value) error {
	params := cd.PrimaryParams
	for i, p := range params {
		n := i + 1
		name := p.Name
		cd.Methods["component"+itoa(n)] = &classes.MethodEntry{
			Fn:           &nativeDataMethod{name: "component" + itoa(n), arity: 0, fn: func(inst *classes.Instance, _ []value.Value) (value.Value, error) { return inst.GetField(name, "") }},
			Visibility:   "public",
			DeclaringCls: cd.Name,
		}
	}
	cd.Methods["toString"] = &classes.MethodEntry{
		Fn: &nativeDataMethod{name: "toString", arity: 0, fn: func(inst *classes.Instance, _ []value.Value) (value.Value, error) {
			return value.NewString(dataToString(cd, inst)), nil
		}},
		Visibility: "public", DeclaringCls: cd.Name,
	}
	cd.Methods["equals"] = &classes.MethodEntry{
		Fn: &nativeDataMethod{name: "equals", arity: 1, fn: func(inst *classes.Instance, a []value.Value) (value.Value, error) {
			other, ok := a[0].(*classes.Instance)
			if !ok || other.Class != cd {
				return value.NewBool(false), nil
			}
			for _, p := range params {
				v1, _ := inst.GetField(p.Name, "")
				v2, _ := other.GetField(p.Name, "")
				if v1 == nil || v2 == nil || !v1.Equals(v2) {
					return value.NewBool(false), nil
				}
			}
			return value.NewBool(true), nil
		}},
		Visibility: "public", DeclaringCls: cd.Name,
	}
	cd.Methods["hashCode"] = &classes.MethodEntry{
		Fn: &nativeDataMethod{name: "hashCode", arity: 0, fn: func(inst *classes.Instance, _ []value.Value) (value.Value, error) {
			var h uint64 = 17
			for _, p := range params {
				v, _ := inst.GetField(p.Name, "")
				if v != nil {
					h = h*31 + v.Hash()
				}
			}
			return value.NewLong(int64(h)), nil
		}},
		Visibility: "public", DeclaringCls: cd.Name,
	}
	cd.Methods["copy"] = &classes.MethodEntry{
		Fn: &nativeDataMethod{name: "copy", arity: -1, fn: func(inst *classes.Instance, a []value.Value) (value.Value, error) {
			fieldEnv := env.New()
			newInst := classes.NewInstance(cd, fieldEnv)
			for i, p := range params {
				v, _ := inst.GetField(p.Name, "")
				if i < len(a) && a[i] != nil {
					v = a[i]
				}
				fieldEnv.DefineVar(p.Name, v)
			}
			fieldEnv.DefineVal("this", newInst)
			return newInst, nil
		}},
		Visibility: "public", DeclaringCls: cd.Name,
	}
	return nil
}

func dataToString(cd *classes.ClassDef, inst *classes.Instance) string {
	var b strings.Builder
	b.WriteString(cd.Name)
	b.WriteString("(")
	for i, p := range cd.PrimaryParams {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteString("=")
		v, err := inst.GetField(p.Name, "")
		if err == nil && v != nil {
			b.WriteString(v.AsString())
		}
	}
	b.WriteString(")")
	return b.String()
}

// processBuilderAnnotation backs @builder: a Companion.builder() entry
// point returning a fluent builder object with a setter per primary
// constructor parameter and a build() that constructs the instance.
func processBuilderAnnotation(ev *Evaluator, cd *classes.ClassDef, args []value.Value) error {
	if cd.CompanionVars == nil {
		cd.CompanionVars = env.New()
	}
	params := cd.PrimaryParams
	builderFn := &nativeClosure{arity: 0, label: "<builder " + cd.Name + ">", fn: func([]value.Value) (value.Value, error) {
		return newBuilderInstance(cd, params), nil
	}}
	return cd.CompanionVars.DefineVal("builder", builderFn)
}

// builderInstance is the Go-native object @builder hands back: a
// mutable field bag plus setFoo(v)/build() methods resolved through
// getMember/callMethod like any other value.
type builderInstance struct {
	cd     *classes.ClassDef
	fields map[string]value.Value
}

func newBuilderInstance(cd *classes.ClassDef, params []ast.Param) *builderInstance {
	return &builderInstance{cd: cd, fields: map[string]value.Value{}}
}

func (b *builderInstance) TypeName() string    { return "Builder<" + b.cd.Name + ">" }
func (b *builderInstance) AsBool() bool        { return true }
func (b *builderInstance) AsInt() int64        { return 0 }
func (b *builderInstance) AsLong() int64       { return 0 }
func (b *builderInstance) AsFloat() float32    { return 0 }
func (b *builderInstance) AsDouble() float64   { return 0 }
func (b *builderInstance) AsString() string    { return "<builder " + b.cd.Name + ">" }
func (b *builderInstance) Hash() uint64        { return value.String(b.AsString()).Hash() }
func (b *builderInstance) ToHost() interface{} { return b }
func (b *builderInstance) IsNumber() bool      { return false }
func (b *builderInstance) IsCollection() bool  { return false }
func (b *builderInstance) Equals(o value.Value) bool {
	ob, ok := o.(*builderInstance)
	return ok && ob == b
}

// builderMethod intercepts setX/build calls on a builderInstance; wired
// into callMethod ahead of the generic built-in tables.
func (ev *Evaluator) builderMethod(b *builderInstance, name string, args []value.Value, stack *callstack.Stack) (value.Value, bool, error) {
	if name == "build" {
		inst, err := ev.Instantiate(b.cd, b.paramArgs(), stack)
		return inst, true, err
	}
	if strings.HasPrefix(name, "set") && len(name) > 3 && len(args) == 1 {
		field := strings.ToLower(name[3:4]) + name[4:]
		b.fields[field] = args[0]
		return b, true, nil
	}
	return nil, false, nil
}

func (b *builderInstance) paramArgs() []value.Value {
	out := make([]value.Value, len(b.cd.PrimaryParams))
	for i, p := range b.cd.PrimaryParams {
		if v, ok := b.fields[p.Name]; ok {
			out[i] = v
		} else {
			out[i] = value.Null
		}
	}
	return out
}

// nativeDataMethod is a classes.Callable implementation for @data's
// generated methods, which need direct field access rather than an
// ast.FunDecl body to evaluate.
type nativeDataMethod struct {
	name  string
	arity int
	fn    func(inst *classes.Instance, args []value.Value) (value.Value, error)
}

func (m *nativeDataMethod) TypeName() string    { return "Function" }
func (m *nativeDataMethod) AsBool() bool        { return true }
func (m *nativeDataMethod) AsInt() int64        { return 0 }
func (m *nativeDataMethod) AsLong() int64       { return 0 }
func (m *nativeDataMethod) AsFloat() float32    { return 0 }
func (m *nativeDataMethod) AsDouble() float64   { return 0 }
func (m *nativeDataMethod) AsString() string    { return "<fn " + m.name + ">" }
func (m *nativeDataMethod) Hash() uint64        { return value.String(m.name).Hash() }
func (m *nativeDataMethod) ToHost() interface{} { return m.fn }
func (m *nativeDataMethod) IsNumber() bool      { return false }
func (m *nativeDataMethod) IsCollection() bool  { return false }
func (m *nativeDataMethod) Equals(o value.Value) bool {
	om, ok := o.(*nativeDataMethod)
	return ok && om == m
}
func (m *nativeDataMethod) Arity() int   { return m.arity }
func (m *nativeDataMethod) Name() string { return m.name }
